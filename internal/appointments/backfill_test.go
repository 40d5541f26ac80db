package appointments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightkind/clinic-platform/internal/calendar"
)

func TestBackfillListsUpcomingOnly(t *testing.T) {
	repo := NewInMemoryRepository()
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	seed := []Appointment{
		{ID: "past", ClinicianID: "u1", StartAt: now.Add(-48 * time.Hour), DurationMinutes: 60, Status: StatusConfirmed},
		{ID: "soon", ClinicianID: "u1", ClientName: "Jordan Lee", StartAt: now.Add(24 * time.Hour), DurationMinutes: 60, Status: StatusConfirmed},
		{ID: "cancelled", ClinicianID: "u1", StartAt: now.Add(48 * time.Hour), DurationMinutes: 60, Status: StatusCancelled},
		{ID: "far", ClinicianID: "u1", StartAt: now.Add(backfillHorizon + time.Hour), DurationMinutes: 60, Status: StatusConfirmed},
	}
	for i := range seed {
		require.NoError(t, repo.Create(context.Background(), &seed[i]))
	}

	sources, err := NewCalendarBackfill(repo).ListUpcomingEvents(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "soon", sources[0].ID)
	assert.Equal(t, calendar.SourceAppointment, sources[0].Kind)
	assert.Equal(t, "Jordan Lee", sources[0].ClientName)
	assert.Equal(t, sources[0].Start.Add(time.Hour), sources[0].End)
}
