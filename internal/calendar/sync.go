package calendar

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/brightkind/clinic-platform/internal/observability/metrics"
	"github.com/brightkind/clinic-platform/pkg/logging"
)

var syncTracer = otel.Tracer("clinic.internal.calendar")

// Service mirrors appointment changes into every connected staff member's
// external calendar.
//
// The mirroring contract is eventually consistent, at-most-once, no-retry:
// each recipient is attempted once per triggering write, failures are logged
// and counted but never surfaced as a failure of the primary write, and
// nothing reconciles mirrors that drift.
type Service struct {
	conns    ConnectionRepository
	provider ProviderFactory
	shared   EventsAPI // optional admin-provisioned shared calendar
	logger   *logging.Logger
	metrics  *metrics.SyncMetrics

	mu      sync.Mutex
	lastRun []SyncResult // ring of recent results for the debug endpoint
}

// NewService builds the sync service. shared may be nil.
func NewService(conns ConnectionRepository, provider ProviderFactory, shared EventsAPI, logger *logging.Logger, m *metrics.SyncMetrics) *Service {
	if conns == nil {
		panic("calendar: connection repository required")
	}
	if provider == nil {
		panic("calendar: provider factory required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		conns:    conns,
		provider: provider,
		shared:   shared,
		logger:   logger,
		metrics:  m,
	}
}

// SyncAppointment fans the operation out to every stored connection. A
// failure for one recipient never aborts the others. The returned result
// carries the provider event id per recipient so the caller can persist the
// (record id, recipient) -> event id mapping.
func (s *Service) SyncAppointment(ctx context.Context, src EventSource, op Operation, creatorUserID string) SyncResult {
	ctx, span := syncTracer.Start(ctx, "calendar.sync")
	defer span.End()
	span.SetAttributes(
		attribute.String("operation", string(op)),
		attribute.String("source_kind", string(src.Kind)),
		attribute.String("source_id", src.ID),
	)

	start := time.Now()
	result := SyncResult{Operation: op, EventIDs: make(map[string]string)}

	if !ValidOperation(op) {
		result.Failed = 1
		result.Errors = append(result.Errors, RecipientError{Error: ErrInvalidOperation.Error()})
		return result
	}

	conns, err := s.conns.List(ctx)
	if err != nil {
		s.logger.Error("calendar sync could not list connections",
			"operation", op, "source_id", src.ID, "error", err)
		result.Failed = 1
		result.Errors = append(result.Errors, RecipientError{Error: err.Error()})
		return result
	}

	ev := eventFromSource(src)
	for i := range conns {
		conn := conns[i]
		if err := s.syncRecipient(ctx, &conn, src, ev, op, &result); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, RecipientError{UserID: conn.UserID, Error: err.Error()})
			s.metrics.ObserveFanout(string(op), "error")
			s.logger.Warn("calendar sync failed for recipient",
				"operation", op,
				"source_id", src.ID,
				"user_id", conn.UserID,
				"creator_user_id", creatorUserID,
				"error", err,
			)
			continue
		}
		result.Succeeded++
		s.metrics.ObserveFanout(string(op), "ok")
	}

	if s.shared != nil {
		if err := s.syncShared(ctx, src, ev, op, &result); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, RecipientError{UserID: "shared-calendar", Error: err.Error()})
			s.metrics.ObserveFanout(string(op), "error")
			s.logger.Warn("shared calendar sync failed",
				"operation", op, "source_id", src.ID, "error", err)
		} else {
			result.Succeeded++
			s.metrics.ObserveFanout(string(op), "ok")
		}
	}

	s.metrics.ObserveFanoutLatency(string(op), time.Since(start).Seconds())
	s.recordResult(result)

	s.logger.Info("calendar sync complete",
		"operation", op,
		"source_kind", src.Kind,
		"source_id", src.ID,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)
	return result
}

func (s *Service) syncRecipient(ctx context.Context, conn *Connection, src EventSource, ev Event, op Operation, result *SyncResult) error {
	api, err := s.provider.ForConnection(ctx, conn)
	if err != nil {
		return err
	}

	existingID := src.EventIDs[conn.UserID]
	switch op {
	case OpCreate:
		id, err := api.CreateEvent(ctx, ev)
		if err != nil {
			return err
		}
		result.EventIDs[conn.UserID] = id
	case OpUpdate:
		if existingID == "" {
			// This recipient connected after the record was created; their
			// mirror does not exist yet, so an update becomes a create.
			id, err := api.CreateEvent(ctx, ev)
			if err != nil {
				return err
			}
			result.EventIDs[conn.UserID] = id
			return nil
		}
		if err := api.UpdateEvent(ctx, existingID, ev); err != nil {
			return err
		}
		result.EventIDs[conn.UserID] = existingID
	case OpDelete:
		if existingID == "" {
			return nil
		}
		if err := api.DeleteEvent(ctx, existingID); err != nil {
			return err
		}
	}
	return nil
}

const sharedEventKey = "shared-calendar"

func (s *Service) syncShared(ctx context.Context, src EventSource, ev Event, op Operation, result *SyncResult) error {
	existingID := src.EventIDs[sharedEventKey]
	switch op {
	case OpCreate:
		id, err := s.shared.CreateEvent(ctx, ev)
		if err != nil {
			return err
		}
		result.EventIDs[sharedEventKey] = id
	case OpUpdate:
		if existingID == "" {
			id, err := s.shared.CreateEvent(ctx, ev)
			if err != nil {
				return err
			}
			result.EventIDs[sharedEventKey] = id
			return nil
		}
		if err := s.shared.UpdateEvent(ctx, existingID, ev); err != nil {
			return err
		}
		result.EventIDs[sharedEventKey] = existingID
	case OpDelete:
		if existingID == "" {
			return nil
		}
		return s.shared.DeleteEvent(ctx, existingID)
	}
	return nil
}

const maxRecentResults = 20

func (s *Service) recordResult(res SyncResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = append(s.lastRun, res)
	if len(s.lastRun) > maxRecentResults {
		s.lastRun = s.lastRun[len(s.lastRun)-maxRecentResults:]
	}
}

// RecentResults returns recent fan-out outcomes for the debug endpoint.
func (s *Service) RecentResults() []SyncResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SyncResult, len(s.lastRun))
	copy(out, s.lastRun)
	return out
}
