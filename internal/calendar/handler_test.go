package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightkind/clinic-platform/internal/auth"
	"github.com/brightkind/clinic-platform/internal/observability/metrics"
	"github.com/brightkind/clinic-platform/pkg/logging"
)

type recordingEventIDStore struct {
	calls map[string]map[string]string
}

func (r *recordingEventIDStore) SetCalendarEventIDs(ctx context.Context, sourceID string, eventIDs map[string]string) error {
	if r.calls == nil {
		r.calls = make(map[string]map[string]string)
	}
	if r.calls[sourceID] == nil {
		r.calls[sourceID] = make(map[string]string)
	}
	for k, v := range eventIDs {
		r.calls[sourceID][k] = v
	}
	return nil
}

func newTestHandler(t *testing.T, conns ConnectionRepository, provider ProviderFactory, backfill BackfillSource) (*Handler, *recordingEventIDStore) {
	t.Helper()
	m := metrics.NewSyncMetrics(prometheus.NewRegistry())
	svc := NewService(conns, provider, nil, logging.New("error"), m)
	store := &recordingEventIDStore{}
	return NewHandler(svc, conns, backfill, store, logging.New("error")), store
}

func TestSyncAppointmentEndpoint(t *testing.T) {
	conns := NewInMemoryConnections()
	connectUsers(t, conns, "u1", "u2")
	provider := &fakeProvider{apis: map[string]*fakeEvents{
		"u1": newFakeEvents(), "u2": newFakeEvents(),
	}}
	handler, store := newTestHandler(t, conns, provider, nil)

	body := map[string]any{
		"appointment": map[string]any{
			"id":            "appt-9",
			"clientName":    "John Doe",
			"clinicianId":   "clin-1",
			"clinicianName": "Dr. Smith",
			"dateOfSession": "2025-07-25T10:00:00Z",
			"duration":      60,
		},
		"operation":     "create",
		"creatorUserId": "u1",
	}
	buf, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/api/calendar/sync-appointment", bytes.NewReader(buf))
	rec := httptest.NewRecorder()
	handler.SyncAppointment(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result SyncResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	// Event ids were persisted back to the source record.
	assert.Len(t, store.calls["appt-9"], 2)
}

func TestSyncAppointmentRejectsBadOperation(t *testing.T) {
	handler, _ := newTestHandler(t, NewInMemoryConnections(), &fakeProvider{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/calendar/sync-appointment",
		bytes.NewReader([]byte(`{"appointment":{"id":"a"},"operation":"upsert"}`)))
	rec := httptest.NewRecorder()
	handler.SyncAppointment(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncExistingEndpoint(t *testing.T) {
	conns := NewInMemoryConnections()
	connectUsers(t, conns, "u-new")
	provider := &fakeProvider{apis: map[string]*fakeEvents{"u-new": newFakeEvents()}}
	backfill := &staticBackfill{sources: []EventSource{sampleSource()}}
	handler, store := newTestHandler(t, conns, provider, backfill)

	req := httptest.NewRequest(http.MethodPost, "/api/calendar/sync-existing",
		bytes.NewReader([]byte(`{"userId":"u-new"}`)))
	rec := httptest.NewRecorder()
	handler.SyncExisting(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result BackfillResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Created)
	assert.NotEmpty(t, store.calls["appt-1"]["u-new"])
}

func TestSyncExistingUnknownUser(t *testing.T) {
	handler, _ := newTestHandler(t, NewInMemoryConnections(), &fakeProvider{}, &staticBackfill{})

	req := httptest.NewRequest(http.MethodPost, "/api/calendar/sync-existing",
		bytes.NewReader([]byte(`{"userId":"ghost"}`)))
	rec := httptest.NewRecorder()
	handler.SyncExisting(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpsertConnectionKeepsRefreshToken(t *testing.T) {
	conns := NewInMemoryConnections()
	handler, _ := newTestHandler(t, conns, &fakeProvider{}, nil)

	first := connectionRequest{
		UserID:       "u1",
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		TokenExpiry:  time.Now().Add(time.Hour),
	}
	buf, _ := json.Marshal(first)
	rec := httptest.NewRecorder()
	handler.UpsertConnection(rec, httptest.NewRequest(http.MethodPut, "/api/calendar/connection", bytes.NewReader(buf)))
	require.Equal(t, http.StatusOK, rec.Code)

	// Re-auth without a refresh token must not lose the stored one.
	second := first
	second.AccessToken = "at-2"
	second.RefreshToken = ""
	buf, _ = json.Marshal(second)
	rec = httptest.NewRecorder()
	handler.UpsertConnection(rec, httptest.NewRequest(http.MethodPut, "/api/calendar/connection", bytes.NewReader(buf)))
	require.Equal(t, http.StatusOK, rec.Code)

	conn, err := conns.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "at-2", conn.AccessToken)
	assert.Equal(t, "rt-1", conn.RefreshToken)
}

func TestDeleteConnectionAuthorization(t *testing.T) {
	conns := NewInMemoryConnections()
	connectUsers(t, conns, "u1")
	handler, _ := newTestHandler(t, conns, &fakeProvider{}, nil)

	// A different non-admin user may not disconnect someone else.
	req := httptest.NewRequest(http.MethodDelete, "/api/calendar/connection/u1", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: "u2", Role: auth.RoleClinician}))
	rec := httptest.NewRecorder()
	handler.DeleteConnection(rec, req, "u1")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The owner may.
	req = httptest.NewRequest(http.MethodDelete, "/api/calendar/connection/u1", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: "u1", Role: auth.RoleClinician}))
	rec = httptest.NewRecorder()
	handler.DeleteConnection(rec, req, "u1")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestDebugEndpoint(t *testing.T) {
	conns := NewInMemoryConnections()
	require.NoError(t, conns.Put(context.Background(), &Connection{
		UserID:      "u1",
		AccessToken: "tok",
		TokenExpiry: time.Now().Add(-time.Hour),
	}))
	handler, _ := newTestHandler(t, conns, &fakeProvider{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/debug/calendar", nil)
	rec := httptest.NewRecorder()
	handler.Debug(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		ConnectedUsers int                `json:"connectedUsers"`
		Connections    []connectionHealth `json:"connections"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.ConnectedUsers)
	require.Len(t, body.Connections, 1)
	assert.True(t, body.Connections[0].Expired)
}
