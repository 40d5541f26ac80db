package calendar

import (
	"context"
	"fmt"
	"time"
)

// BackfillSource lists the records that should exist in a newly connected
// calendar. Implemented by an adapter over the appointment store.
type BackfillSource interface {
	ListUpcomingEvents(ctx context.Context, from time.Time) ([]EventSource, error)
}

// BackfillResult summarizes a backfill run for one user.
type BackfillResult struct {
	UserID   string            `json:"userId"`
	Created  int               `json:"created"`
	Failed   int               `json:"failed"`
	EventIDs map[string]string `json:"-"` // source id -> event id, persisted by the caller
	Errors   []RecipientError  `json:"errors,omitempty"`
}

// BackfillUser mirrors all upcoming records into one user's newly connected
// calendar. Like the fan-out, it is best effort per record.
func (s *Service) BackfillUser(ctx context.Context, source BackfillSource, userID string) (*BackfillResult, error) {
	conn, err := s.conns.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	api, err := s.provider.ForConnection(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("calendar: backfill connect %s: %w", userID, err)
	}

	sources, err := source.ListUpcomingEvents(ctx, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("calendar: backfill list: %w", err)
	}

	result := &BackfillResult{UserID: userID, EventIDs: make(map[string]string)}
	for _, src := range sources {
		if _, ok := src.EventIDs[userID]; ok {
			// Already mirrored for this user.
			continue
		}
		id, err := api.CreateEvent(ctx, eventFromSource(src))
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, RecipientError{UserID: userID, Error: fmt.Sprintf("%s: %v", src.ID, err)})
			s.metrics.ObserveFanout("backfill", "error")
			s.logger.Warn("backfill failed for record", "user_id", userID, "source_id", src.ID, "error", err)
			continue
		}
		result.Created++
		result.EventIDs[src.ID] = id
		s.metrics.ObserveFanout("backfill", "ok")
	}

	s.logger.Info("calendar backfill complete",
		"user_id", userID, "created", result.Created, "failed", result.Failed)
	return result, nil
}
