package appointments

import (
	"context"
	"time"

	"github.com/brightkind/clinic-platform/internal/calendar"
)

// backfillHorizon bounds how far ahead a newly connected calendar is
// populated.
const backfillHorizon = 90 * 24 * time.Hour

// CalendarBackfill adapts the appointment store to the calendar backfill
// source: every non-cancelled appointment coming up within the horizon.
type CalendarBackfill struct {
	repo Repository
}

func NewCalendarBackfill(repo Repository) *CalendarBackfill {
	if repo == nil {
		panic("appointments: repository cannot be nil")
	}
	return &CalendarBackfill{repo: repo}
}

func (b *CalendarBackfill) ListUpcomingEvents(ctx context.Context, from time.Time) ([]calendar.EventSource, error) {
	appts, err := b.repo.ListByRange(ctx, from, from.Add(backfillHorizon))
	if err != nil {
		return nil, err
	}
	sources := make([]calendar.EventSource, 0, len(appts))
	for i := range appts {
		a := &appts[i]
		if a.Status == StatusCancelled {
			continue
		}
		sources = append(sources, calendar.EventSource{
			Kind:          calendar.SourceAppointment,
			ID:            a.ID,
			ClientName:    a.ClientName,
			ClinicianID:   a.ClinicianID,
			ClinicianName: a.ClinicianName,
			Type:          a.Type,
			Location:      a.Location,
			Notes:         a.Content,
			Start:         a.StartAt,
			End:           a.EndAt(),
			EventIDs:      a.CalendarEventIDs,
		})
	}
	return sources, nil
}
