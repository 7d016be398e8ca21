package wizard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agentdock/services/deployments"
)

type fakeCapabilities struct {
	list []Capability
	err  error
}

func (f *fakeCapabilities) Capabilities(context.Context) ([]Capability, error) {
	return f.list, f.err
}

type fakeDeploymentDir struct {
	mu   sync.Mutex
	byID map[string][]deployments.Candidate
}

func (f *fakeDeploymentDir) Deployments(_ context.Context, id string) ([]deployments.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id], nil
}

type fakeVocabulary struct {
	mu    sync.Mutex
	vocab Vocabulary
	err   error
	added []VocabularyAddition
}

func (f *fakeVocabulary) Vocabulary(context.Context) (Vocabulary, error) {
	return f.vocab, f.err
}

func (f *fakeVocabulary) AddVocabulary(_ context.Context, add VocabularyAddition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, add)
	return nil
}

type updateCall struct {
	id      string
	payload Payload
}

type fakeStore struct {
	mu        sync.Mutex
	record    AgentRecord
	getErr    error
	createErr error
	updateErr error
	created   []Payload
	updated   []updateCall
	entered   chan struct{}
	block     chan struct{}
}

func (s *fakeStore) Agent(context.Context, string) (AgentRecord, error) {
	return s.record, s.getErr
}

func (s *fakeStore) wait() {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.block != nil {
		<-s.block
	}
}

func (s *fakeStore) Create(_ context.Context, p Payload) (string, error) {
	s.wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return "", s.createErr
	}
	s.created = append(s.created, p)
	return "agent-1", nil
}

func (s *fakeStore) Update(_ context.Context, id string, p Payload) error {
	s.wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updated = append(s.updated, updateCall{id: id, payload: p})
	return nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *fakeNotifier) Success(_ context.Context, notice Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return nil
}

type statusErr struct {
	code int
	msg  string
}

func (e statusErr) Error() string   { return e.msg }
func (e statusErr) HTTPStatus() int { return e.code }
func (e statusErr) Detail() string  { return e.msg }

var errUnavailable = errors.New("service unavailable")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
}

type env struct {
	caps     *fakeCapabilities
	deps     *fakeDeploymentDir
	vocab    *fakeVocabulary
	store    *fakeStore
	notifier *fakeNotifier
	clock    *fakeClock
	outcomes []string
	refresh  []string
}

func newEnv() *env {
	return &env{
		caps: &fakeCapabilities{list: []Capability{
			{ID: "cap-doc", Name: "Document Processing"},
			{ID: "cap-chat", Name: "Conversational AI"},
		}},
		deps: &fakeDeploymentDir{byID: map[string][]deployments.Candidate{
			"cap-doc": {
				{Provider: "AWS", ServiceName: "Textract", DeploymentType: "SaaS", Region: "us-east-1"},
				{Provider: "GCP", ServiceName: "Document AI", DeploymentType: "SaaS"},
			},
			"cap-chat": {
				{Provider: "Azure", ServiceName: "Bot Service", DeploymentType: "PaaS"},
			},
		}},
		vocab:    &fakeVocabulary{vocab: DefaultFallbacks().Vocabulary},
		store:    &fakeStore{},
		notifier: &fakeNotifier{},
		clock:    newFakeClock(),
	}
}

func (e *env) open(t *testing.T, cfg Config) *Wizard {
	t.Helper()
	if cfg.UserID == "" {
		cfg.UserID = "user-42"
	}
	cfg.Now = e.clock.Now
	cfg.OnSubmit = func(_ Mode, outcome string) { e.outcomes = append(e.outcomes, outcome) }
	cfg.OnRefresh = func(id string) { e.refresh = append(e.refresh, id) }
	w, err := New(Services{
		Capabilities: e.caps,
		Deployments:  e.deps,
		Vocabulary:   e.vocab,
		Agents:       e.store,
		Notifier:     e.notifier,
	}, cfg)
	require.NoError(t, err)
	return w
}

func fillBasics(t *testing.T, w *Wizard) {
	t.Helper()
	require.NoError(t, w.Update(func(d *Draft) {
		d.Name = "DocBot"
		d.Description = "Extracts fields from scanned documents"
		d.Tags = NewStringSet("AI/ML", "Cloud")
		d.TargetPersonas = NewStringSet("Developer")
	}))
	require.NoError(t, w.SetAgentType("Autonomous Agent"))
	require.NoError(t, w.SetValueProposition("Productivity"))
}
