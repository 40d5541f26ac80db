package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
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

func newTestRouter(t *testing.T) (*chi.Mux, *stubDocs) {
	t.Helper()
	docsAPI := &stubDocs{}
	docs := documents.NewService(documents.NewInMemoryMappings(), docsAPI, logging.Default(), nil)
	audit := compliance.NewAuditService(compliance.NewInMemoryEvents(), logging.Default())
	h := NewHandler(NewInMemoryRepository(), docs, audit, logging.Default())

	r := chi.NewRouter()
	r.Post("/api/reports", h.Create)
	r.Get("/api/reports", h.List)
	r.Get("/api/reports/{id}", h.Get)
	r.Put("/api/reports/{id}", h.Update)
	r.Delete("/api/reports/{id}", h.Delete)
	return r, docsAPI
}

func authedRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	return req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{
		UserID: "user-amy", Name: "Amy Park", Role: auth.RoleClinician,
	}))
}

func TestCreateReportAppendsAssessment(t *testing.T) {
	router, docsAPI := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/reports", map[string]any{
		"clientId":    "client-1",
		"clientName":  "Jordan Reyes",
		"title":       "Quarterly Progress Review",
		"periodStart": "2026-06-01",
		"periodEnd":   "2026-08-31",
		"summary":     "Steady improvement in anxiety management.",
		"goals":       []string{"Continue weekly sessions", "Introduce group work"},
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "user-amy", created.CreatedBy)

	require.Len(t, docsAPI.bodies, 1)
	for _, body := range docsAPI.bodies {
		assert.Contains(t, body, "Jordan Reyes")
		assert.Contains(t, body, "anxiety management")
	}
}

func TestCreateReportValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/reports", map[string]any{
		"title": "No client",
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/reports", map[string]any{
		"clientId": "client-1",
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportLifecycle(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/reports", map[string]any{
		"clientId": "client-1",
		"title":    "Intake Assessment",
	}))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPut, "/api/reports/"+created.ID, map[string]any{
		"summary": "Completed after second visit.",
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/reports?clientId=client-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var items []Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&items))
	require.Len(t, items, 1)
	assert.Equal(t, "Completed after second visit.", items[0].Summary)

	// Listing without a client is rejected.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/reports", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodDelete, "/api/reports/"+created.ID, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/reports/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
