package appointments

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}

func appt(id, clinicianID, location, start string, minutes int, status Status) Appointment {
	ts, _ := time.Parse(time.RFC3339, start)
	return Appointment{
		ID:              id,
		ClinicianID:     clinicianID,
		ClinicianName:   "Dr. Smith",
		Location:        location,
		StartAt:         ts,
		DurationMinutes: minutes,
		Status:          status,
	}
}

func TestCheckConflictsOverlapSameClinician(t *testing.T) {
	existing := []Appointment{
		appt("a1", "clin-1", "Room 1", "2025-07-25T10:00:00Z", 60, StatusConfirmed),
	}
	w := Window{
		ClinicianID:     "clin-1",
		Start:           mustTime(t, "2025-07-25T10:30:00Z"),
		DurationMinutes: 60,
	}

	res := CheckConflicts(w, existing, DefaultPolicy())
	assert.True(t, res.HasConflict)
	assert.Len(t, res.Conflicts, 1)
	assert.Contains(t, res.Message, "Dr. Smith")
}

func TestCheckConflictsBoundaryTouchIsNotConflict(t *testing.T) {
	existing := []Appointment{
		appt("a1", "clin-1", "", "2025-07-25T10:00:00Z", 60, StatusConfirmed),
	}
	// Starts exactly when the existing one ends.
	w := Window{
		ClinicianID:     "clin-1",
		Start:           mustTime(t, "2025-07-25T11:00:00Z"),
		DurationMinutes: 60,
	}

	res := CheckConflicts(w, existing, DefaultPolicy())
	assert.False(t, res.HasConflict)
}

func TestCheckConflictsCancelledIgnored(t *testing.T) {
	existing := []Appointment{
		appt("a1", "clin-1", "", "2025-07-25T10:00:00Z", 60, StatusCancelled),
	}
	w := Window{
		ClinicianID:     "clin-1",
		Start:           mustTime(t, "2025-07-25T10:00:00Z"),
		DurationMinutes: 60,
	}

	res := CheckConflicts(w, existing, DefaultPolicy())
	assert.False(t, res.HasConflict)
}

func TestCheckConflictsDifferentClinicianNoConflict(t *testing.T) {
	existing := []Appointment{
		appt("a1", "clin-1", "Room 1", "2025-07-25T10:00:00Z", 60, StatusConfirmed),
	}
	w := Window{
		ClinicianID:     "clin-2",
		Location:        "Room 2",
		Start:           mustTime(t, "2025-07-25T10:30:00Z"),
		DurationMinutes: 60,
	}

	res := CheckConflicts(w, existing, DefaultPolicy())
	assert.False(t, res.HasConflict)
}

func TestCheckConflictsLocationPolicy(t *testing.T) {
	existing := []Appointment{
		appt("a1", "clin-1", "Room 1", "2025-07-25T10:00:00Z", 60, StatusConfirmed),
	}
	w := Window{
		ClinicianID:     "clin-2",
		Location:        "Room 1",
		Start:           mustTime(t, "2025-07-25T10:30:00Z"),
		DurationMinutes: 60,
	}

	// Default policy: same location alone does not conflict.
	res := CheckConflicts(w, existing, DefaultPolicy())
	assert.False(t, res.HasConflict)

	policy := DefaultPolicy()
	policy.SameLocationConflicts = true
	res = CheckConflicts(w, existing, policy)
	assert.True(t, res.HasConflict)
	assert.Contains(t, res.Message, "Room 1")
}

func TestCheckConflictsExcludesSelfOnEdit(t *testing.T) {
	existing := []Appointment{
		appt("a1", "clin-1", "", "2025-07-25T10:00:00Z", 60, StatusConfirmed),
	}
	w := Window{
		ClinicianID:     "clin-1",
		Start:           mustTime(t, "2025-07-25T10:15:00Z"),
		DurationMinutes: 45,
		ExcludeID:       "a1",
	}

	res := CheckConflicts(w, existing, DefaultPolicy())
	assert.False(t, res.HasConflict)
}

func TestValidateWindowDurationBounds(t *testing.T) {
	now := mustTime(t, "2025-07-01T00:00:00Z")
	policy := DefaultPolicy()
	base := Window{Start: mustTime(t, "2025-07-25T10:00:00Z")}

	for _, minutes := range []int{14, 481, 0, -30} {
		w := base
		w.DurationMinutes = minutes
		assert.ErrorIs(t, ValidateWindow(w, now, policy), ErrDurationOutOfRange, "minutes=%d", minutes)
	}
	for _, minutes := range []int{15, 480, 60} {
		w := base
		w.DurationMinutes = minutes
		assert.NoError(t, ValidateWindow(w, now, policy), "minutes=%d", minutes)
	}
}

func TestValidateWindowRejectsPastStart(t *testing.T) {
	now := mustTime(t, "2025-07-25T12:00:00Z")
	w := Window{
		Start:           mustTime(t, "2025-07-25T11:59:59Z"),
		DurationMinutes: 60,
	}
	assert.ErrorIs(t, ValidateWindow(w, now, DefaultPolicy()), ErrStartInPast)

	// Starting exactly now is allowed; only strictly-past starts are rejected.
	w.Start = now
	assert.NoError(t, ValidateWindow(w, now, DefaultPolicy()))
}
