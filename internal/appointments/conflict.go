package appointments

import (
	"fmt"
	"strings"
	"time"
)

// ConflictPolicy tunes how candidate windows are validated and compared.
//
// Whether two overlapping appointments for different clinicians at the same
// location should conflict is a product decision, so it is a knob rather than
// a rule.
type ConflictPolicy struct {
	SameLocationConflicts bool
	MinDurationMinutes    int
	MaxDurationMinutes    int
}

// DefaultPolicy matches the clinic's standing rules.
func DefaultPolicy() ConflictPolicy {
	return ConflictPolicy{
		SameLocationConflicts: false,
		MinDurationMinutes:    15,
		MaxDurationMinutes:    480,
	}
}

// Window is a candidate appointment slot to validate.
type Window struct {
	ClinicianID     string
	ClinicianName   string
	ClientID        string
	Location        string
	Start           time.Time
	DurationMinutes int

	// ExcludeID skips one existing appointment, so edits do not conflict
	// with themselves.
	ExcludeID string
}

// End returns the exclusive end of the window.
func (w Window) End() time.Time {
	return w.Start.Add(time.Duration(w.DurationMinutes) * time.Minute)
}

// ConflictResult describes the outcome of a conflict check.
type ConflictResult struct {
	HasConflict bool          `json:"hasConflict"`
	Message     string        `json:"message,omitempty"`
	Conflicts   []Appointment `json:"conflicts,omitempty"`
}

// ValidateWindow rejects windows that start in the past or whose duration is
// outside the permitted range. Boundaries are inclusive: exactly
// MinDurationMinutes or MaxDurationMinutes is accepted.
func ValidateWindow(w Window, now time.Time, policy ConflictPolicy) error {
	if w.DurationMinutes < policy.MinDurationMinutes || w.DurationMinutes > policy.MaxDurationMinutes {
		return ErrDurationOutOfRange
	}
	if w.Start.Before(now) {
		return ErrStartInPast
	}
	return nil
}

// CheckConflicts compares a candidate window against existing appointments.
// Pure and side-effect free; callers run it both for live warnings while the
// form is edited and as a final guard immediately before persisting.
//
// Two windows overlap iff a.Start < b.End && b.Start < a.End. Touching at the
// boundary (one ends exactly when the other starts) is not an overlap.
// Cancelled appointments never conflict.
func CheckConflicts(w Window, existing []Appointment, policy ConflictPolicy) ConflictResult {
	var conflicts []Appointment
	var reasons []string

	for i := range existing {
		other := &existing[i]
		if other.ID == w.ExcludeID {
			continue
		}
		if other.Status == StatusCancelled {
			continue
		}
		if !overlaps(w.Start, w.End(), other.StartAt, other.EndAt()) {
			continue
		}

		sameClinician := other.ClinicianID == w.ClinicianID
		sameLocation := policy.SameLocationConflicts &&
			w.Location != "" && strings.EqualFold(other.Location, w.Location)
		if !sameClinician && !sameLocation {
			continue
		}

		conflicts = append(conflicts, *other)
		if sameClinician {
			reasons = append(reasons, fmt.Sprintf(
				"%s already has %s from %s to %s",
				other.ClinicianName,
				describeClient(other),
				other.StartAt.Format("15:04"),
				other.EndAt().Format("15:04"),
			))
		} else {
			reasons = append(reasons, fmt.Sprintf(
				"%s is occupied from %s to %s",
				other.Location,
				other.StartAt.Format("15:04"),
				other.EndAt().Format("15:04"),
			))
		}
	}

	if len(conflicts) == 0 {
		return ConflictResult{}
	}
	return ConflictResult{
		HasConflict: true,
		Message:     strings.Join(reasons, "; "),
		Conflicts:   conflicts,
	}
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func describeClient(a *Appointment) string {
	if a.ClientName != "" {
		return "an appointment with " + a.ClientName
	}
	return "an appointment"
}
