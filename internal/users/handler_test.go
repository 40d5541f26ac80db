package users

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightkind/clinic-platform/internal/auth"
	"github.com/brightkind/clinic-platform/internal/compliance"
	"github.com/brightkind/clinic-platform/pkg/logging"
)

func newTestRouter(t *testing.T) (*chi.Mux, *InMemoryRepository) {
	t.Helper()
	repo := NewInMemoryRepository()
	audit := compliance.NewAuditService(compliance.NewInMemoryEvents(), logging.Default())
	h := NewHandler(repo, audit, logging.Default())

	r := chi.NewRouter()
	r.Post("/api/users", h.Create)
	r.Get("/api/users", h.List)
	r.Get("/api/users/me", h.Me)
	r.Get("/api/users/{id}", h.Get)
	r.Put("/api/users/{id}", h.Update)
	r.Delete("/api/users/{id}", h.Delete)
	return r, repo
}

func requestAs(identity auth.Identity, method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

var (
	admin     = auth.Identity{UserID: "user-dana", Name: "Dana Cole", Role: auth.RoleAdmin}
	clinician = auth.Identity{UserID: "user-amy", Name: "Amy Park", Role: auth.RoleClinician}
)

func TestUserMutationsRequireAdmin(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(clinician, http.MethodPost, "/api/users", map[string]any{
		"name": "New Hire",
	}))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(admin, http.MethodPost, "/api/users", map[string]any{
		"name": "New Hire",
		"role": "Clinician",
	}))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, auth.RoleClinician, created.Role)
	assert.True(t, created.Active)
}

func TestUnknownRoleDefaultsToStaff(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(admin, http.MethodPost, "/api/users", map[string]any{
		"name": "Front Desk",
		"role": "Wizard",
	}))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, auth.RoleStaff, created.Role)
}

func TestDeactivatedUserFailsLookup(t *testing.T) {
	router, repo := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(admin, http.MethodPost, "/api/users", map[string]any{
		"name": "Former Staff",
	}))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	lookup := LookupFunc(repo)
	_, ok := lookup(created.ID)
	require.True(t, ok)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(admin, http.MethodPut, "/api/users/"+created.ID, map[string]any{
		"active": false,
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	_, ok = lookup(created.ID)
	assert.False(t, ok)
}

func TestMeReturnsCallerIdentity(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(clinician, http.MethodGet, "/api/users/me", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var me auth.Identity
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&me))
	assert.Equal(t, "user-amy", me.UserID)
}

func TestListUsersSorted(t *testing.T) {
	_, repo := newTestRouter(t)
	now := time.Now().UTC()
	for _, name := range []string{"Zoe", "Abe", "Mia"} {
		require.NoError(t, repo.Put(context.Background(), &User{
			ID: "u-" + name, Name: name, Role: auth.RoleStaff, Active: true, CreatedAt: now,
		}))
	}
	items, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "Abe", items[0].Name)
	assert.Equal(t, "Zoe", items[2].Name)
}
