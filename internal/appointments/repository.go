package appointments

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository defines the interface for appointment storage.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id string) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id string) error
	ListByClinician(ctx context.Context, clinicianID string, from, to time.Time) ([]Appointment, error)
	ListByRange(ctx context.Context, from, to time.Time) ([]Appointment, error)
	SetCalendarEventIDs(ctx context.Context, id string, eventIDs map[string]string) error
}

// InMemoryRepository is an in-memory Repository used in tests and local runs.
type InMemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*Appointment
}

// NewInMemoryRepository creates a new in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{items: make(map[string]*Appointment)}
}

func (r *InMemoryRepository) Create(ctx context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.items[a.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *InMemoryRepository) Update(ctx context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[a.ID]; !ok {
		return ErrNotFound
	}
	cp := *a
	r.items[a.ID] = &cp
	return nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *InMemoryRepository) ListByClinician(ctx context.Context, clinicianID string, from, to time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Appointment
	for _, a := range r.items {
		if a.ClinicianID != clinicianID {
			continue
		}
		if inRange(a, from, to) {
			out = append(out, *a)
		}
	}
	sortByStart(out)
	return out, nil
}

func (r *InMemoryRepository) ListByRange(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Appointment
	for _, a := range r.items {
		if inRange(a, from, to) {
			out = append(out, *a)
		}
	}
	sortByStart(out)
	return out, nil
}

func (r *InMemoryRepository) SetCalendarEventIDs(ctx context.Context, id string, eventIDs map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok {
		return ErrNotFound
	}
	if len(eventIDs) == 0 {
		a.CalendarEventIDs = nil
		return nil
	}
	if a.CalendarEventIDs == nil {
		a.CalendarEventIDs = make(map[string]string, len(eventIDs))
	}
	for k, v := range eventIDs {
		a.CalendarEventIDs[k] = v
	}
	return nil
}

func inRange(a *Appointment, from, to time.Time) bool {
	if !from.IsZero() && a.EndAt().Before(from) {
		return false
	}
	if !to.IsZero() && !a.StartAt.Before(to) {
		return false
	}
	return true
}

func sortByStart(items []Appointment) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].StartAt.Before(items[j].StartAt)
	})
}
