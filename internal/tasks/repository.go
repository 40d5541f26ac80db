package tasks

import (
	"context"
	"sort"
	"sync"
)

// Repository persists tasks.
type Repository interface {
	Create(ctx context.Context, t *Task) error
	GetByID(ctx context.Context, id string) (*Task, error)
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Task, error)
	ListByAssignee(ctx context.Context, assigneeID string) ([]Task, error)
}

// InMemoryRepository keeps tasks in a map for local runs and tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*Task
}

var _ Repository = (*InMemoryRepository)(nil)

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{items: make(map[string]*Task)}
}

func (r *InMemoryRepository) Create(ctx context.Context, t *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.items[t.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *InMemoryRepository) Update(ctx context.Context, t *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[t.ID]; !ok {
		return ErrNotFound
	}
	cp := *t
	r.items[t.ID] = &cp
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

func (r *InMemoryRepository) List(ctx context.Context) ([]Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Task, 0, len(r.items))
	for _, t := range r.items {
		out = append(out, *t)
	}
	sortByCreated(out)
	return out, nil
}

func (r *InMemoryRepository) ListByAssignee(ctx context.Context, assigneeID string) ([]Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Task
	for _, t := range r.items {
		if t.AssigneeID == assigneeID {
			out = append(out, *t)
		}
	}
	sortByCreated(out)
	return out, nil
}

func sortByCreated(items []Task) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
