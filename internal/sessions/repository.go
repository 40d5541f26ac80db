package sessions

import (
	"context"
	"sort"
	"sync"
)

// Repository persists session notes.
type Repository interface {
	Create(ctx context.Context, n *Note) error
	GetByID(ctx context.Context, id string) (*Note, error)
	Update(ctx context.Context, n *Note) error
	Delete(ctx context.Context, id string) error
	ListByClient(ctx context.Context, clientID string) ([]Note, error)
	CountByClient(ctx context.Context, clientID string) (int, error)
	SetCalendarEventIDs(ctx context.Context, id string, eventIDs map[string]string) error
	SetAttachmentKeys(ctx context.Context, id string, keys []string) error
}

// InMemoryRepository keeps notes in a map for local runs and tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*Note
}

var _ Repository = (*InMemoryRepository)(nil)

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{items: make(map[string]*Note)}
}

func (r *InMemoryRepository) Create(ctx context.Context, n *Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *n
	r.items[n.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (r *InMemoryRepository) Update(ctx context.Context, n *Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[n.ID]; !ok {
		return ErrNotFound
	}
	cp := *n
	r.items[n.ID] = &cp
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

func (r *InMemoryRepository) ListByClient(ctx context.Context, clientID string) ([]Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Note
	for _, n := range r.items {
		if n.ClientID == clientID {
			out = append(out, *n)
		}
	}
	sortByStart(out)
	return out, nil
}

func (r *InMemoryRepository) CountByClient(ctx context.Context, clientID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, n := range r.items {
		if n.ClientID == clientID {
			count++
		}
	}
	return count, nil
}

func (r *InMemoryRepository) SetCalendarEventIDs(ctx context.Context, id string, eventIDs map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return ErrNotFound
	}
	if len(eventIDs) == 0 {
		n.CalendarEventIDs = nil
		return nil
	}
	if n.CalendarEventIDs == nil {
		n.CalendarEventIDs = make(map[string]string, len(eventIDs))
	}
	for k, v := range eventIDs {
		n.CalendarEventIDs[k] = v
	}
	return nil
}

func (r *InMemoryRepository) SetAttachmentKeys(ctx context.Context, id string, keys []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return ErrNotFound
	}
	n.AttachmentKeys = append([]string(nil), keys...)
	return nil
}

func sortByStart(items []Note) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].StartAt.Before(items[j].StartAt)
	})
}
