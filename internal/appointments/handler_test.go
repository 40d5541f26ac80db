package appointments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightkind/clinic-platform/internal/auth"
	"github.com/brightkind/clinic-platform/internal/calendar"
	"github.com/brightkind/clinic-platform/internal/compliance"
	"github.com/brightkind/clinic-platform/pkg/logging"
)

type stubEvents struct {
	mu      sync.Mutex
	created []calendar.Event
	updated []string
	deleted []string
	nextID  int
	fail    bool
}

func (f *stubEvents) CreateEvent(ctx context.Context, ev calendar.Event) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", fmt.Errorf("provider unavailable")
	}
	f.nextID++
	f.created = append(f.created, ev)
	return fmt.Sprintf("evt-%d", f.nextID), nil
}

func (f *stubEvents) UpdateEvent(ctx context.Context, eventID string, ev calendar.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("provider unavailable")
	}
	f.updated = append(f.updated, eventID)
	return nil
}

func (f *stubEvents) DeleteEvent(ctx context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("provider unavailable")
	}
	f.deleted = append(f.deleted, eventID)
	return nil
}

type stubProvider struct {
	events *stubEvents
}

func (f *stubProvider) ForConnection(ctx context.Context, conn *calendar.Connection) (calendar.EventsAPI, error) {
	return f.events, nil
}

func newTestHandler(t *testing.T, connectedUsers ...string) (*Handler, *InMemoryRepository, *stubEvents, *compliance.InMemoryEvents) {
	t.Helper()

	repo := NewInMemoryRepository()
	events := &stubEvents{}
	conns := calendar.NewInMemoryConnections()
	for _, userID := range connectedUsers {
		require.NoError(t, conns.Put(context.Background(), &calendar.Connection{
			UserID:       userID,
			AccessToken:  "token",
			RefreshToken: "refresh",
		}))
	}
	svc := calendar.NewService(conns, &stubProvider{events: events}, nil, logging.Default(), nil)
	auditStore := compliance.NewInMemoryEvents()
	audit := compliance.NewAuditService(auditStore, logging.Default())

	h := NewHandler(repo, svc, audit, nil, DefaultPolicy(), logging.Default())
	return h, repo, events, auditStore
}

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/api/appointments", h.Create)
	r.Get("/api/appointments", h.List)
	r.Get("/api/appointments/{id}", h.Get)
	r.Put("/api/appointments/{id}", h.Update)
	r.Delete("/api/appointments/{id}", h.Delete)
	r.Post("/api/appointments/check-conflicts", h.CheckConflicts)
	return r
}

func authedRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	ctx := auth.WithIdentity(req.Context(), auth.Identity{
		UserID: "user-amy", Name: "Amy Park", Role: auth.RoleClinician,
	})
	return req.WithContext(ctx)
}

func createBody(start time.Time) map[string]any {
	return map[string]any{
		"clientId":      "client-1",
		"clientName":    "Jordan Reyes",
		"clinicianId":   "user-amy",
		"clinicianName": "Amy Park",
		"type":          "Individual Session",
		"dateOfSession": start.Format(time.RFC3339),
		"duration":      60,
		"location":      "Room A",
	}
}

func TestCreateAppointment(t *testing.T) {
	h, repo, events, audit := newTestHandler(t, "user-amy", "user-ben")
	router := newTestRouter(h)
	start := time.Now().Add(24 * time.Hour).Truncate(time.Second)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/appointments", createBody(start)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created Appointment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, StatusConfirmed, created.Status)
	assert.Equal(t, "user-amy", created.CreatedBy)

	// One mirrored event per connected user.
	assert.Len(t, created.CalendarEventIDs, 2)
	assert.Len(t, events.created, 2)

	stored, err := repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.CalendarEventIDs, stored.CalendarEventIDs)

	require.Len(t, audit.Events, 1)
	assert.Equal(t, compliance.ActionCreate, audit.Events[0].Action)
	assert.Equal(t, "user-amy", audit.Events[0].ActorID)
}

func TestCreateAppointmentValidation(t *testing.T) {
	h, _, _, _ := newTestHandler(t)
	router := newTestRouter(h)
	start := time.Now().Add(24 * time.Hour)

	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing client", func(b map[string]any) { delete(b, "clientId") }},
		{"missing clinician", func(b map[string]any) { delete(b, "clinicianId") }},
		{"missing start", func(b map[string]any) { delete(b, "dateOfSession") }},
		{"bad status", func(b map[string]any) { b["status"] = "done" }},
		{"too short", func(b map[string]any) { b["duration"] = 10 }},
		{"too long", func(b map[string]any) { b["duration"] = 481 }},
		{"in the past", func(b map[string]any) {
			b["dateOfSession"] = time.Now().Add(-time.Hour).Format(time.RFC3339)
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := createBody(start)
			tc.mutate(body)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/appointments", body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCreateAppointmentConflict(t *testing.T) {
	h, _, _, _ := newTestHandler(t)
	router := newTestRouter(h)
	start := time.Now().Add(24 * time.Hour).Truncate(time.Second)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/appointments", createBody(start)))
	require.Equal(t, http.StatusCreated, rec.Code)

	// Same clinician, overlapping slot.
	body := createBody(start.Add(30 * time.Minute))
	body["clientId"] = "client-2"
	body["clientName"] = "Sam Okafor"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/appointments", body))
	require.Equal(t, http.StatusConflict, rec.Code)

	var res ConflictResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.True(t, res.HasConflict)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "client-1", res.Conflicts[0].ClientID)

	// Back to back is fine.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/appointments", createBody(start.Add(60*time.Minute))))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateSurvivesCalendarFailure(t *testing.T) {
	h, repo, events, _ := newTestHandler(t, "user-amy")
	events.fail = true
	router := newTestRouter(h)
	start := time.Now().Add(24 * time.Hour).Truncate(time.Second)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/appointments", createBody(start)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created Appointment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	stored, err := repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.CalendarEventIDs)
}

func TestUpdateAppointment(t *testing.T) {
	h, repo, events, _ := newTestHandler(t, "user-amy")
	router := newTestRouter(h)
	start := time.Now().Add(24 * time.Hour).Truncate(time.Second)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/appointments", createBody(start)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created Appointment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	newStart := start.Add(2 * time.Hour)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPut, "/api/appointments/"+created.ID, map[string]any{
		"dateOfSession": newStart.Format(time.RFC3339),
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, stored.StartAt.Equal(newStart))

	// The mirrored event was updated in place, not recreated.
	assert.Len(t, events.created, 1)
	assert.Len(t, events.updated, 1)
	assert.Equal(t, created.CalendarEventIDs["user-amy"], events.updated[0])
}

func TestUpdateToCancelledRemovesCalendarEvents(t *testing.T) {
	h, repo, events, _ := newTestHandler(t, "user-amy")
	router := newTestRouter(h)
	start := time.Now().Add(24 * time.Hour).Truncate(time.Second)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/appointments", createBody(start)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created Appointment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPut, "/api/appointments/"+created.ID, map[string]any{
		"status": "cancelled",
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Len(t, events.deleted, 1)
	stored, err := repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)
	assert.Empty(t, stored.CalendarEventIDs)
}

func TestDeleteAppointmentKeepsCancelledRecord(t *testing.T) {
	h, repo, events, audit := newTestHandler(t, "user-amy")
	router := newTestRouter(h)
	start := time.Now().Add(24 * time.Hour).Truncate(time.Second)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/appointments", createBody(start)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created Appointment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodDelete, "/api/appointments/"+created.ID, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	stored, err := repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)
	assert.Len(t, events.deleted, 1)

	require.Len(t, audit.Events, 2)
	assert.Equal(t, compliance.ActionDelete, audit.Events[1].Action)

	// A cancelled slot no longer blocks the window.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/appointments", createBody(start)))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestGetAndListAppointments(t *testing.T) {
	h, _, _, _ := newTestHandler(t)
	router := newTestRouter(h)
	start := time.Now().Add(24 * time.Hour).Truncate(time.Second)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/appointments", createBody(start)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created Appointment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	other := createBody(start.Add(3 * time.Hour))
	other["clinicianId"] = "user-ben"
	other["clinicianName"] = "Ben Liu"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/appointments", other))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/appointments/"+created.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/appointments", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var all []Appointment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&all))
	assert.Len(t, all, 2)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/appointments?clinicianId=user-ben", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []Appointment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&mine))
	require.Len(t, mine, 1)
	assert.Equal(t, "user-ben", mine[0].ClinicianID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/appointments/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckConflictsEndpointIsReadOnly(t *testing.T) {
	h, repo, _, _ := newTestHandler(t)
	router := newTestRouter(h)
	start := time.Now().Add(24 * time.Hour).Truncate(time.Second)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/appointments", createBody(start)))
	require.Equal(t, http.StatusCreated, rec.Code)

	probe := map[string]any{
		"clinicianId":   "user-amy",
		"clientId":      "client-2",
		"dateOfSession": start.Add(15 * time.Minute).Format(time.RFC3339),
		"duration":      30,
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/appointments/check-conflicts", probe))
	require.Equal(t, http.StatusOK, rec.Code)

	var res ConflictResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.True(t, res.HasConflict)
	assert.NotEmpty(t, res.Message)

	items, err := repo.ListByRange(context.Background(), start.Add(-time.Hour), start.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
