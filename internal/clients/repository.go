package clients

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Repository persists client records.
type Repository interface {
	Create(ctx context.Context, c *Client) error
	GetByID(ctx context.Context, id string) (*Client, error)
	Update(ctx context.Context, c *Client) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Client, error)
	ListByClinician(ctx context.Context, clinicianID string) ([]Client, error)
	SetDocument(ctx context.Context, id, documentID, documentURL string) error
}

// InMemoryRepository keeps clients in a map for local runs and tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*Client
}

var _ Repository = (*InMemoryRepository)(nil)

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{items: make(map[string]*Client)}
}

func (r *InMemoryRepository) Create(ctx context.Context, c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.items[c.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *InMemoryRepository) Update(ctx context.Context, c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[c.ID]; !ok {
		return ErrNotFound
	}
	cp := *c
	r.items[c.ID] = &cp
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

func (r *InMemoryRepository) List(ctx context.Context) ([]Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Client, 0, len(r.items))
	for _, c := range r.items {
		out = append(out, *c)
	}
	sortByName(out)
	return out, nil
}

func (r *InMemoryRepository) ListByClinician(ctx context.Context, clinicianID string) ([]Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Client
	for _, c := range r.items {
		if c.OnTeam(clinicianID) {
			out = append(out, *c)
		}
	}
	sortByName(out)
	return out, nil
}

func (r *InMemoryRepository) SetDocument(ctx context.Context, id, documentID, documentURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[id]
	if !ok {
		return ErrNotFound
	}
	c.DocumentID = documentID
	c.DocumentURL = documentURL
	return nil
}

func sortByName(items []Client) {
	sort.Slice(items, func(i, j int) bool {
		a := strings.ToLower(items[i].LastName + " " + items[i].FirstName)
		b := strings.ToLower(items[j].LastName + " " + items[j].FirstName)
		return a < b
	})
}
