package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightkind/clinic-platform/internal/auth"
	"github.com/brightkind/clinic-platform/pkg/logging"
)

func newCachedRepo(t *testing.T) (*CachedRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewCachedRepository(NewInMemoryRepository(), redisClient, logging.Default()), mr
}

func article(title, category string) *Article {
	now := time.Now().UTC()
	return &Article{
		ID:        "kb-" + title,
		Title:     title,
		Category:  category,
		Body:      "body of " + title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCachedListRoundTrip(t *testing.T) {
	repo, _ := newCachedRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, article("Emergency protocol", "safety")))
	require.NoError(t, repo.Put(ctx, article("Billing codes", "admin")))

	items, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)

	cached, err := repo.warm(ctx)
	require.NoError(t, err)
	assert.True(t, cached, "list should be cached after a read")

	// Served from cache on the second read.
	again, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, items, again)
}

func TestMutationsInvalidateCache(t *testing.T) {
	repo, _ := newCachedRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, article("Emergency protocol", "safety")))
	_, err := repo.List(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.Put(ctx, article("New hire checklist", "hr")))
	cached, err := repo.warm(ctx)
	require.NoError(t, err)
	assert.False(t, cached, "a write must clear the cached list")

	items, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	require.NoError(t, repo.Delete(ctx, "kb-New hire checklist"))
	items, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestCacheFailureDegradesToStore(t *testing.T) {
	repo, mr := newCachedRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, article("Emergency protocol", "safety")))
	mr.Close()

	items, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestHandlerCRUDAndSearch(t *testing.T) {
	repo, _ := newCachedRepo(t)
	h := NewHandler(repo, logging.Default())

	r := chi.NewRouter()
	r.Post("/api/kb", h.Create)
	r.Get("/api/kb", h.List)
	r.Get("/api/kb/{id}", h.Get)
	r.Put("/api/kb/{id}", h.Update)
	r.Delete("/api/kb/{id}", h.Delete)

	post := func(body map[string]any) Article {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
		req := httptest.NewRequest(http.MethodPost, "/api/kb", &buf)
		req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{
			UserID: "user-amy", Role: auth.RoleClinician,
		}))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var a Article
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&a))
		return a
	}

	post(map[string]any{"title": "Fire drill procedure", "category": "safety", "tags": []string{"emergency"}})
	created := post(map[string]any{"title": "Telehealth setup", "category": "tech"})

	// Missing title rejected.
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/kb", bytes.NewBufferString(`{"body":"x"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Category filter.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/kb?category=safety", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var items []Article
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&items))
	require.Len(t, items, 1)
	assert.Equal(t, "Fire drill procedure", items[0].Title)

	// Tag search.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/kb?q=emergency", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	items = nil
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&items))
	assert.Len(t, items, 1)

	// Update and delete.
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(map[string]any{"body": "updated body"}))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/kb/"+created.ID, &buf))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/kb/"+created.ID, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/kb/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
