package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdock/pkg/bus"
)

type memStore struct {
	mu        sync.Mutex
	notices   map[uuid.UUID]Notice
	audits    []AuditEntry
	failAudit error
	lastLimit int
}

func newMemStore() *memStore {
	return &memStore{notices: map[uuid.UUID]Notice{}}
}

func (s *memStore) SaveNotice(_ context.Context, n Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notices[n.ID]; !ok {
		s.notices[n.ID] = n
	}
	return nil
}

func (s *memStore) InsertAudit(_ context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAudit != nil {
		return s.failAudit
	}
	s.audits = append(s.audits, e)
	return nil
}

func (s *memStore) Notices(_ context.Context, userID string, limit int) ([]Notice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLimit = limit
	out := []Notice{}
	for _, n := range s.notices {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

type fakeBus struct {
	handlers map[string]func(context.Context, []byte) error
	durables []string
	closed   int
}

func (b *fakeBus) Subscribe(_ context.Context, subj, durable string, fn func(context.Context, []byte) error) (io.Closer, error) {
	if b.handlers == nil {
		b.handlers = map[string]func(context.Context, []byte) error{}
	}
	b.handlers[subj] = fn
	b.durables = append(b.durables, durable)
	return closerFunc(func() error { b.closed++; return nil }), nil
}

func (b *fakeBus) deliver(t *testing.T, subj string, v any) error {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	fn, ok := b.handlers[subj]
	require.True(t, ok, "no subscription for %s", subj)
	return fn(context.Background(), data)
}

func startNotifier(t *testing.T) (*Notifier, *memStore, *fakeBus) {
	t.Helper()
	store := newMemStore()
	b := &fakeBus{}
	n, err := New(store, b, prometheus.NewRegistry(), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, n.Start(context.Background()))
	return n, store, b
}

func TestStartSubscribesAndCloses(t *testing.T) {
	n, _, b := startNotifier(t)
	assert.Len(t, b.handlers, 3)
	assert.Equal(t, []string{"notifier-success", "notifier-agents-created", "notifier-agents-updated"}, b.durables)

	require.NoError(t, n.Close())
	assert.Equal(t, 3, b.closed)
	require.NoError(t, n.Close())
	assert.Equal(t, 3, b.closed)
}

func TestSuccessNoticeIsStoredOnce(t *testing.T) {
	n, store, b := startNotifier(t)
	agentID := uuid.New()
	evt := bus.SuccessNotice{
		AgentID:   agentID.String(),
		AgentName: "DocBot",
		UserID:    "user-1",
		Message:   `Agent "DocBot" was submitted for review.`,
		At:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, b.deliver(t, bus.SubjectSuccessNotices, evt))
	require.NoError(t, b.deliver(t, bus.SubjectSuccessNotices, evt))

	require.Len(t, store.notices, 1)
	for id, got := range store.notices {
		assert.Equal(t, noticeID(agentID, KindSuccess), id)
		assert.Equal(t, agentID, got.AgentID)
		assert.Equal(t, KindSuccess, got.Kind)
		assert.Equal(t, evt.At, got.CreatedAt)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(n.events.WithLabelValues(bus.SubjectSuccessNotices, resultStored)))
}

func TestMalformedEventsAreDropped(t *testing.T) {
	n, store, b := startNotifier(t)

	assert.NoError(t, b.deliver(t, bus.SubjectSuccessNotices, bus.SuccessNotice{AgentID: "not-a-uuid", Message: "hi"}))
	assert.NoError(t, b.deliver(t, bus.SubjectSuccessNotices, bus.SuccessNotice{AgentID: uuid.NewString()}))
	assert.NoError(t, b.deliver(t, bus.SubjectAgentCreated, bus.AgentEvent{}))
	assert.NoError(t, b.handlers[bus.SubjectAgentUpdated](context.Background(), []byte("{")))

	assert.Empty(t, store.notices)
	assert.Empty(t, store.audits)
	assert.Equal(t, 2.0, testutil.ToFloat64(n.events.WithLabelValues(bus.SubjectSuccessNotices, resultDropped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(n.events.WithLabelValues(bus.SubjectAgentUpdated, resultDropped)))
}

func TestStorageFailureIsRedelivered(t *testing.T) {
	n, store, b := startNotifier(t)
	store.failAudit = errors.New("connection reset")

	err := b.deliver(t, bus.SubjectAgentCreated, bus.AgentEvent{AgentID: "a1", Record: map[string]any{"agent_name": "DocBot"}})
	require.ErrorIs(t, err, store.failAudit)
	assert.Equal(t, 1.0, testutil.ToFloat64(n.events.WithLabelValues(bus.SubjectAgentCreated, resultStorageFailed)))
}

func TestAgentEventsLeaveAuditTrail(t *testing.T) {
	_, store, b := startNotifier(t)

	require.NoError(t, b.deliver(t, bus.SubjectAgentCreated, bus.AgentEvent{
		AgentID:   "a1",
		AgentName: "DocBot",
		Record:    map[string]any{"agent_name": "DocBot", "tags": "AI/ML"},
	}))
	require.NoError(t, b.deliver(t, bus.SubjectAgentUpdated, bus.AgentEvent{
		AgentID:   "a1",
		UserID:    "user-1",
		AgentName: "DocBot",
		Previous:  map[string]any{"agent_name": "DocBot", "tags": "AI/ML"},
		Record:    map[string]any{"agent_name": "DocBot", "tags": "AI/ML,Cloud", "roi": "2x"},
	}))

	require.Len(t, store.audits, 2)
	created := store.audits[0]
	assert.Equal(t, systemActor, created.Actor)
	assert.Equal(t, actionAgentCreated, created.Action)
	assert.Equal(t, "a1", created.Obj)
	assert.Len(t, created.Details["changes"], 2)

	updated := store.audits[1]
	assert.Equal(t, "user-1", updated.Actor)
	assert.Equal(t, actionAgentUpdated, updated.Action)
	assert.Equal(t, map[string]map[string]any{
		"tags": {"old": "AI/ML", "new": "AI/ML,Cloud"},
		"roi":  {"old": nil, "new": "2x"},
	}, updated.Details["changes"])
}

func TestComputeDiff(t *testing.T) {
	cases := []struct {
		name     string
		previous map[string]any
		current  map[string]any
		want     map[string]map[string]any
	}{
		{"both empty", nil, nil, map[string]map[string]any{}},
		{"removed key", map[string]any{"roi": "2x"}, map[string]any{}, map[string]map[string]any{"roi": {"old": "2x", "new": nil}}},
		{"nested equal", map[string]any{"deployments": []any{map[string]any{"service_name": "EKS"}}},
			map[string]any{"deployments": []any{map[string]any{"service_name": "EKS"}}}, map[string]map[string]any{}},
		{"nested change", map[string]any{"deployments": []any{}},
			map[string]any{"deployments": []any{"x"}}, map[string]map[string]any{"deployments": {"old": []any{}, "new": []any{"x"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, computeDiff(tc.previous, tc.current))
		})
	}
}

func TestListNotices(t *testing.T) {
	n, store, b := startNotifier(t)
	require.NoError(t, b.deliver(t, bus.SubjectSuccessNotices, bus.SuccessNotice{
		AgentID: uuid.NewString(), UserID: "user-1", Message: "saved",
	}))
	srv := httptest.NewServer(n.Routes(nil))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/v1/users/user-1/notices?limit=500")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Notices []Notice `json:"notices"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Notices, 1)
	assert.Equal(t, "saved", body.Notices[0].Message)
	assert.Equal(t, maxNoticeLimit, store.lastLimit)

	bad, err := http.Get(srv.URL + "/v1/users/user-1/notices?limit=-1")
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestNewValidatesDependencies(t *testing.T) {
	_, err := New(nil, &fakeBus{}, prometheus.NewRegistry(), zerolog.Nop())
	assert.Error(t, err)
	_, err = New(newMemStore(), nil, prometheus.NewRegistry(), zerolog.Nop())
	assert.Error(t, err)
}
