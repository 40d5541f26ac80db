package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightkind/clinic-platform/internal/observability/metrics"
	"github.com/brightkind/clinic-platform/pkg/logging"
)

// fakeEvents is an EventsAPI recording calls, optionally failing.
type fakeEvents struct {
	mu      sync.Mutex
	fail    bool
	created []Event
	updated map[string]Event
	deleted []string
	nextID  int
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{updated: make(map[string]Event)}
}

func (f *fakeEvents) CreateEvent(ctx context.Context, ev Event) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("provider unavailable")
	}
	f.nextID++
	f.created = append(f.created, ev)
	return fmt.Sprintf("evt-%d", f.nextID), nil
}

func (f *fakeEvents) UpdateEvent(ctx context.Context, eventID string, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("provider unavailable")
	}
	f.updated[eventID] = ev
	return nil
}

func (f *fakeEvents) DeleteEvent(ctx context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("provider unavailable")
	}
	f.deleted = append(f.deleted, eventID)
	return nil
}

// fakeProvider hands out a per-user fakeEvents.
type fakeProvider struct {
	apis map[string]*fakeEvents
}

func (p *fakeProvider) ForConnection(ctx context.Context, conn *Connection) (EventsAPI, error) {
	api, ok := p.apis[conn.UserID]
	if !ok {
		return nil, errors.New("no credentials")
	}
	return api, nil
}

func testService(t *testing.T, conns ConnectionRepository, provider ProviderFactory) *Service {
	t.Helper()
	m := metrics.NewSyncMetrics(prometheus.NewRegistry())
	return NewService(conns, provider, nil, logging.New("error"), m)
}

func connectUsers(t *testing.T, repo ConnectionRepository, ids ...string) {
	t.Helper()
	for _, id := range ids {
		err := repo.Put(context.Background(), &Connection{
			UserID:      id,
			AccessToken: "tok-" + id,
			TokenExpiry: time.Now().Add(time.Hour),
		})
		require.NoError(t, err)
	}
}

func sampleSource() EventSource {
	start := time.Date(2025, 7, 25, 10, 0, 0, 0, time.UTC)
	return EventSource{
		Kind:          SourceAppointment,
		ID:            "appt-1",
		ClientName:    "John Doe",
		ClinicianName: "Dr. Smith",
		Start:         start,
		End:           start.Add(time.Hour),
	}
}

func TestSyncCreateFansOutToAllConnections(t *testing.T) {
	conns := NewInMemoryConnections()
	connectUsers(t, conns, "u1", "u2", "u3")
	provider := &fakeProvider{apis: map[string]*fakeEvents{
		"u1": newFakeEvents(), "u2": newFakeEvents(), "u3": newFakeEvents(),
	}}
	svc := testService(t, conns, provider)

	result := svc.SyncAppointment(context.Background(), sampleSource(), OpCreate, "u1")

	assert.Equal(t, 3, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	assert.Len(t, result.EventIDs, 3)
	for _, api := range provider.apis {
		assert.Len(t, api.created, 1)
	}
}

func TestSyncOneFailureDoesNotAbortOthers(t *testing.T) {
	conns := NewInMemoryConnections()
	connectUsers(t, conns, "u1", "u2", "u3", "u4")
	failing := newFakeEvents()
	failing.fail = true
	provider := &fakeProvider{apis: map[string]*fakeEvents{
		"u1": newFakeEvents(), "u2": failing, "u3": newFakeEvents(), "u4": newFakeEvents(),
	}}
	svc := testService(t, conns, provider)

	result := svc.SyncAppointment(context.Background(), sampleSource(), OpCreate, "u1")

	// N connected users, 1 simulated failure: N-1 successes, 1 failure.
	assert.Equal(t, 3, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "u2", result.Errors[0].UserID)
	// The failed recipient got no event id.
	_, ok := result.EventIDs["u2"]
	assert.False(t, ok)
}

func TestSyncUpdateUsesStoredEventIDs(t *testing.T) {
	conns := NewInMemoryConnections()
	connectUsers(t, conns, "u1", "u2")
	u1 := newFakeEvents()
	u2 := newFakeEvents()
	provider := &fakeProvider{apis: map[string]*fakeEvents{"u1": u1, "u2": u2}}
	svc := testService(t, conns, provider)

	src := sampleSource()
	src.EventIDs = map[string]string{"u1": "evt-existing"}

	result := svc.SyncAppointment(context.Background(), src, OpUpdate, "u1")

	assert.Equal(t, 2, result.Succeeded)
	// u1 had a mirror: updated in place.
	_, updated := u1.updated["evt-existing"]
	assert.True(t, updated)
	// u2 connected later: update degrades to create.
	assert.Len(t, u2.created, 1)
	assert.NotEmpty(t, result.EventIDs["u2"])
}

func TestSyncDeleteSkipsRecipientsWithoutMirror(t *testing.T) {
	conns := NewInMemoryConnections()
	connectUsers(t, conns, "u1", "u2")
	u1 := newFakeEvents()
	u2 := newFakeEvents()
	provider := &fakeProvider{apis: map[string]*fakeEvents{"u1": u1, "u2": u2}}
	svc := testService(t, conns, provider)

	src := sampleSource()
	src.EventIDs = map[string]string{"u1": "evt-1"}

	result := svc.SyncAppointment(context.Background(), src, OpDelete, "u1")

	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, []string{"evt-1"}, u1.deleted)
	assert.Empty(t, u2.deleted)
}

func TestSyncInvalidOperation(t *testing.T) {
	conns := NewInMemoryConnections()
	svc := testService(t, conns, &fakeProvider{})

	result := svc.SyncAppointment(context.Background(), sampleSource(), Operation("merge"), "u1")
	assert.Equal(t, 1, result.Failed)
}

func TestSyncNoConnectionsIsNoOp(t *testing.T) {
	conns := NewInMemoryConnections()
	svc := testService(t, conns, &fakeProvider{apis: map[string]*fakeEvents{}})

	result := svc.SyncAppointment(context.Background(), sampleSource(), OpCreate, "u1")
	assert.Equal(t, 0, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
}

func TestSharedCalendarMirrored(t *testing.T) {
	conns := NewInMemoryConnections()
	shared := newFakeEvents()
	m := metrics.NewSyncMetrics(prometheus.NewRegistry())
	svc := NewService(conns, &fakeProvider{apis: map[string]*fakeEvents{}}, shared, logging.New("error"), m)

	result := svc.SyncAppointment(context.Background(), sampleSource(), OpCreate, "u1")
	assert.Equal(t, 1, result.Succeeded)
	assert.Len(t, shared.created, 1)
	assert.NotEmpty(t, result.EventIDs[sharedEventKey])
}

type staticBackfill struct {
	sources []EventSource
}

func (s *staticBackfill) ListUpcomingEvents(ctx context.Context, from time.Time) ([]EventSource, error) {
	return s.sources, nil
}

func TestBackfillUser(t *testing.T) {
	conns := NewInMemoryConnections()
	connectUsers(t, conns, "u-new")
	api := newFakeEvents()
	provider := &fakeProvider{apis: map[string]*fakeEvents{"u-new": api}}
	svc := testService(t, conns, provider)

	already := sampleSource()
	already.ID = "appt-old"
	already.EventIDs = map[string]string{"u-new": "evt-already"}
	fresh := sampleSource()

	result, err := svc.BackfillUser(context.Background(), &staticBackfill{sources: []EventSource{already, fresh}}, "u-new")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 0, result.Failed)
	assert.Len(t, api.created, 1)
	assert.NotEmpty(t, result.EventIDs["appt-1"])
}

func TestBackfillUnknownUser(t *testing.T) {
	conns := NewInMemoryConnections()
	svc := testService(t, conns, &fakeProvider{})

	_, err := svc.BackfillUser(context.Background(), &staticBackfill{}, "ghost")
	assert.ErrorIs(t, err, ErrConnectionNotFound)
}

type countingRefresher struct {
	mu   sync.Mutex
	seen []string
	fail map[string]bool
}

func (r *countingRefresher) Refresh(ctx context.Context, conn *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, conn.UserID)
	if r.fail[conn.UserID] {
		return errors.New("refresh denied")
	}
	conn.TokenExpiry = time.Now().Add(time.Hour)
	return nil
}

func TestWorkerRefreshesOnlyExpiring(t *testing.T) {
	conns := NewInMemoryConnections()
	require.NoError(t, conns.Put(context.Background(), &Connection{
		UserID: "expiring", RefreshToken: "r", TokenExpiry: time.Now().Add(time.Minute),
	}))
	require.NoError(t, conns.Put(context.Background(), &Connection{
		UserID: "healthy", RefreshToken: "r", TokenExpiry: time.Now().Add(24 * time.Hour),
	}))

	refresher := &countingRefresher{fail: map[string]bool{}}
	m := metrics.NewSyncMetrics(prometheus.NewRegistry())
	w := NewTokenRefreshWorker(conns, refresher, logging.New("error"), m).
		WithRefreshBefore(10 * time.Minute)

	w.refreshExpiring(context.Background())

	assert.Equal(t, []string{"expiring"}, refresher.seen)
}
