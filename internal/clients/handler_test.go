package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightkind/clinic-platform/internal/auth"
	"github.com/brightkind/clinic-platform/internal/compliance"
	"github.com/brightkind/clinic-platform/internal/documents"
	"github.com/brightkind/clinic-platform/pkg/logging"
)

type stubDocs struct {
	mu     sync.Mutex
	nextID int
	bodies map[string]string
}

func (f *stubDocs) CreateDocument(ctx context.Context, title string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("doc-%d", f.nextID)
	if f.bodies == nil {
		f.bodies = make(map[string]string)
	}
	f.bodies[id] = ""
	return id, "https://docs.example.com/" + id, nil
}

func (f *stubDocs) AppendText(ctx context.Context, documentID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[documentID] += text
	return nil
}

func newTestHandler(t *testing.T) (*Handler, *InMemoryRepository, *stubDocs, *compliance.InMemoryEvents) {
	t.Helper()
	repo := NewInMemoryRepository()
	docsAPI := &stubDocs{}
	docs := documents.NewService(documents.NewInMemoryMappings(), docsAPI, logging.Default(), nil)
	auditStore := compliance.NewInMemoryEvents()
	audit := compliance.NewAuditService(auditStore, logging.Default())
	return NewHandler(repo, docs, audit, logging.Default()), repo, docsAPI, auditStore
}

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/api/clients", h.Create)
	r.Get("/api/clients", h.List)
	r.Get("/api/clients/{id}", h.Get)
	r.Put("/api/clients/{id}", h.Update)
	r.Delete("/api/clients/{id}", h.Delete)
	return r
}

func requestAs(identity auth.Identity, method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

var clinician = auth.Identity{UserID: "user-amy", Name: "Amy Park", Role: auth.RoleClinician}

func TestCreateClientGeneratesDocument(t *testing.T) {
	h, repo, docsAPI, audit := newTestHandler(t)
	router := newTestRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(clinician, http.MethodPost, "/api/clients", map[string]any{
		"firstName":          "Jordan",
		"lastName":           "Reyes",
		"email":              "jordan@example.com",
		"primaryClinicianId": "user-amy",
	}))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created Client
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, StatusActive, created.Status)
	assert.Equal(t, "Jordan Reyes", created.FullName())
	assert.NotEmpty(t, created.DocumentID)
	assert.Contains(t, created.DocumentURL, created.DocumentID)

	stored, err := repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.DocumentID, stored.DocumentID)
	assert.Len(t, docsAPI.bodies, 1)

	require.Len(t, audit.Events, 1)
	assert.Equal(t, "client", audit.Events[0].RecordType)
}

func TestCreateClientValidation(t *testing.T) {
	h, _, _, _ := newTestHandler(t)
	router := newTestRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(clinician, http.MethodPost, "/api/clients", map[string]any{
		"firstName": "Jordan",
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(clinician, http.MethodPost, "/api/clients", map[string]any{
		"firstName": "Jordan", "lastName": "Reyes", "status": "archived",
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateDemographicsAppendsToDocument(t *testing.T) {
	h, _, docsAPI, _ := newTestHandler(t)
	router := newTestRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(clinician, http.MethodPost, "/api/clients", map[string]any{
		"firstName": "Jordan", "lastName": "Reyes",
	}))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created Client
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(clinician, http.MethodPut, "/api/clients/"+created.ID, map[string]any{
		"demographics": map[string]any{"occupation": "florist", "pronouns": "they/them"},
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	body := docsAPI.bodies[created.DocumentID]
	assert.Contains(t, body, "florist")
	assert.Contains(t, body, "Jordan Reyes")

	// An update without demographics does not touch the document.
	before := docsAPI.bodies[created.DocumentID]
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(clinician, http.MethodPut, "/api/clients/"+created.ID, map[string]any{
		"phone": "555-0100",
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, before, docsAPI.bodies[created.DocumentID])
}

func TestDeleteClientRequiresAdmin(t *testing.T) {
	h, repo, _, _ := newTestHandler(t)
	router := newTestRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(clinician, http.MethodPost, "/api/clients", map[string]any{
		"firstName": "Jordan", "lastName": "Reyes",
	}))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created Client
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(clinician, http.MethodDelete, "/api/clients/"+created.ID, nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := auth.Identity{UserID: "user-dana", Name: "Dana Cole", Role: auth.RoleAdmin}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(admin, http.MethodDelete, "/api/clients/"+created.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := repo.GetByID(context.Background(), created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListClientsByClinician(t *testing.T) {
	h, _, _, _ := newTestHandler(t)
	router := newTestRouter(h)

	for i, primary := range []string{"user-amy", "user-ben", "user-amy"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, requestAs(clinician, http.MethodPost, "/api/clients", map[string]any{
			"firstName":          fmt.Sprintf("Client%d", i),
			"lastName":           "Test",
			"primaryClinicianId": primary,
		}))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	// Team membership counts too.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(clinician, http.MethodPost, "/api/clients", map[string]any{
		"firstName":          "Shared",
		"lastName":           "Case",
		"primaryClinicianId": "user-ben",
		"teamClinicianIds":   []string{"user-amy"},
	}))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(clinician, http.MethodGet, "/api/clients?clinicianId=user-amy", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []Client
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&mine))
	assert.Len(t, mine, 3)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(clinician, http.MethodGet, "/api/clients", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var all []Client
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&all))
	assert.Len(t, all, 4)

	// Sorted by last name, then first.
	var names []string
	for _, c := range all {
		names = append(names, c.FullName())
	}
	assert.True(t, strings.HasPrefix(names[0], "Shared"), "expected Case first, got %v", names)
}
