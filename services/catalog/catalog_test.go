package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdock/pkg/bus"
	"agentdock/services/deployments"
	"agentdock/services/directory"
	"agentdock/services/wizard"
)

type memRepo struct {
	mu     sync.Mutex
	caps   []Capability
	deps   map[string][]Deployment
	vocab  []VocabularyEntry
	agents map[uuid.UUID]Agent
}

func newMemRepo() *memRepo {
	return &memRepo{
		caps: []Capability{{ID: "cap-doc", Name: "Document Processing"}, {ID: "cap-search", Name: "Search & Retrieval"}},
		deps: map[string][]Deployment{
			"cap-doc": {{Provider: "AWS", ServiceName: "Textract", DeploymentType: "SaaS", Region: "us-east-1"}},
		},
		agents: map[uuid.UUID]Agent{},
	}
}

func (m *memRepo) Capabilities(context.Context) ([]Capability, error) { return m.caps, nil }

func (m *memRepo) Deployments(_ context.Context, id string) ([]Deployment, error) {
	return m.deps[id], nil
}

func (m *memRepo) Vocabulary(context.Context) (Vocabulary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := Vocabulary{AgentTypes: []string{}, ValuePropositions: []string{}, Tags: []string{}, TargetPersonas: []string{"Developer"}}
	for _, e := range m.vocab {
		switch e.Kind {
		case KindAgentType:
			v.AgentTypes = append(v.AgentTypes, e.Value)
		case KindValueProposition:
			v.ValuePropositions = append(v.ValuePropositions, e.Value)
		case KindTag:
			v.Tags = append(v.Tags, e.Value)
		}
	}
	return v, nil
}

func (m *memRepo) AddVocabulary(_ context.Context, entries []VocabularyEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vocab = append(m.vocab, entries...)
	return nil
}

func (m *memRepo) Agent(_ context.Context, id uuid.UUID) (Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return Agent{}, ErrNotFound
	}
	return a, nil
}

func (m *memRepo) CreateAgent(_ context.Context, a Agent, uploads []Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.Assets = append([]Asset{}, uploads...)
	m.agents[a.ID] = a
	return nil
}

func (m *memRepo) UpdateAgent(_ context.Context, a Agent, uploads []Asset) (Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.agents[a.ID]
	if !ok {
		return Agent{}, ErrNotFound
	}
	a.Assets = append(append([]Asset{}, prev.Assets...), uploads...)
	m.agents[a.ID] = a
	return prev, nil
}

type storedObject struct {
	bucket, key, contentType, sha string
	data                         []byte
}

type memObjects struct {
	mu   sync.Mutex
	puts []storedObject
}

func (m *memObjects) PutObject(_ context.Context, bucket, key, contentType string, r io.Reader, size int64, sha string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return io.ErrShortWrite
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts = append(m.puts, storedObject{bucket: bucket, key: key, contentType: contentType, sha: sha, data: data})
	return nil
}

type harness struct {
	repo    *memRepo
	objects *memObjects
	events  *bus.Recorder
	srv     *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{repo: newMemRepo(), objects: &memObjects{}, events: &bus.Recorder{}}
	api, err := New(h.repo, h.objects, h.events, Config{
		Bucket:         "agent-assets",
		StorageBaseURL: "https://agent-assets.s3.us-east-1.amazonaws.com/",
	}, zerolog.Nop())
	require.NoError(t, err)
	api.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	routes, err := api.Routes()
	require.NoError(t, err)
	h.srv = httptest.NewServer(routes)
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) client(t *testing.T, user string) *directory.Client {
	t.Helper()
	c, err := directory.New(h.srv.URL, directory.WithUserID(user))
	require.NoError(t, err)
	return c
}

func docBotPayload(t *testing.T, user string) wizard.Payload {
	t.Helper()
	var d wizard.Draft
	d.Name = "DocBot"
	d.Description = "Extracts fields"
	d.Tags = wizard.NewStringSet("AI/ML")
	d.Capabilities.Add("cap-doc", "Document Processing")
	d.Documentation.Readme = &wizard.File{Name: "README.md", ContentType: "text/markdown", Data: []byte("# DocBot")}
	d.Files = []wizard.File{{Name: "demo reel.mp4", ContentType: "video/mp4", Data: []byte{1, 2, 3}}}

	p, err := wizard.BuildPayload(d, user, []deployments.Option{
		deployments.Fetched{Deployment: deployments.Deployment{
			Provider: "AWS", ServiceName: "Textract", DeploymentType: "SaaS", CapabilityID: "cap-doc",
		}},
	})
	require.NoError(t, err)
	return p
}

func TestDirectoryEndpoints(t *testing.T) {
	h := newHarness(t)
	c := h.client(t, "user-1")
	ctx := context.Background()

	caps, err := c.Capabilities(ctx)
	require.NoError(t, err)
	assert.Len(t, caps, 2)

	cands, err := c.Deployments(ctx, "cap-doc")
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "Textract", cands[0].ServiceName)

	cands, err = c.Deployments(ctx, "cap-unknown")
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestAddVocabularyTrimsAndDeduplicates(t *testing.T) {
	h := newHarness(t)
	c := h.client(t, "user-1")
	ctx := context.Background()

	require.NoError(t, c.AddVocabulary(ctx, wizard.VocabularyAddition{
		AgentType: " Swarm ",
		Tags:      []string{"Edge", "Edge", " "},
	}))
	v, err := c.Vocabulary(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Swarm"}, v.AgentTypes)
	assert.Equal(t, []string{"Edge"}, v.Tags)
	assert.Equal(t, []string{"Developer"}, v.TargetPersonas)

	resp, err := http.DefaultClient.Do(mustRequest(t, http.MethodPut, h.srv.URL+"/v1/onboarding/filters",
		"application/json", `{"agent_type":"x","unexpected":true}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateStoresAttachmentsAndPublishes(t *testing.T) {
	h := newHarness(t)
	c := h.client(t, "user-1")
	ctx := context.Background()

	id, err := c.Create(ctx, docBotPayload(t, "user-1"))
	require.NoError(t, err)

	rec, err := c.Agent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "DocBot", rec.Name)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, []wizard.Capability{{ID: "cap-doc", Name: "Document Processing"}}, rec.Capabilities)
	require.Len(t, rec.Deployments, 1)
	assert.Equal(t, "fetched", deployments.Origin(rec.Deployments[0]))
	assert.Equal(t, "https://agent-assets.s3.us-east-1.amazonaws.com/agents/"+id+"/readme/README.md", rec.Documentation.ReadmeURL)

	require.Len(t, rec.Assets, 1)
	asset := rec.Assets[0]
	assert.Equal(t, "demo reel.mp4", asset.Name)
	assert.Equal(t, "video/mp4", asset.MediaType)
	assert.True(t, strings.HasPrefix(asset.FilePath, "agents/"+id+"/files/"))
	assert.True(t, strings.HasSuffix(asset.FilePath, "-demo_reel.mp4"))

	require.Len(t, h.objects.puts, 2)
	for _, put := range h.objects.puts {
		assert.Equal(t, "agent-assets", put.bucket)
		sum := sha256.Sum256(put.data)
		assert.Equal(t, hex.EncodeToString(sum[:]), put.sha)
	}

	assert.Equal(t, []string{bus.SubjectAgentCreated}, h.events.Subjects())
	var evt bus.AgentEvent
	require.NoError(t, json.Unmarshal(h.events.Events[0].Data, &evt))
	assert.Equal(t, id, evt.AgentID)
	assert.Equal(t, "DocBot", evt.Record["agent_name"])
	assert.Nil(t, evt.Previous)
}

func TestUpdateKeepsOwnerAndReportsPrevious(t *testing.T) {
	h := newHarness(t)
	owner := h.client(t, "user-1")
	ctx := context.Background()

	id, err := owner.Create(ctx, docBotPayload(t, "user-1"))
	require.NoError(t, err)

	p := docBotPayload(t, "user-1")
	p.Fields[wizard.FieldAgentName] = "DocBot 2"
	p.Attachments = nil
	require.NoError(t, owner.Update(ctx, id, p))

	rec, err := owner.Agent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "DocBot 2", rec.Name)
	assert.Contains(t, rec.Documentation.ReadmeURL, "/readme/README.md", "readme survives an update without upload")
	assert.Len(t, rec.Assets, 1)

	require.Equal(t, []string{bus.SubjectAgentCreated, bus.SubjectAgentUpdated}, h.events.Subjects())
	var evt bus.AgentEvent
	require.NoError(t, json.Unmarshal(h.events.Events[1].Data, &evt))
	assert.Equal(t, "DocBot", evt.Previous["agent_name"])
	assert.Equal(t, "DocBot 2", evt.Record["agent_name"])

	intruder := h.client(t, "user-2")
	p.Fields[wizard.FieldUserID] = "user-2"
	err = intruder.Update(ctx, id, p)
	se := wizard.ClassifySubmitError(err)
	require.NotNil(t, se)
	assert.Equal(t, http.StatusForbidden, se.Status)
	assert.Equal(t, wizard.CategoryAuth, se.Category)

	err = owner.Update(ctx, uuid.NewString(), p)
	var status *directory.StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusNotFound, status.StatusCode)
}

func TestAgentFormRejections(t *testing.T) {
	h := newHarness(t)

	cases := []struct {
		name   string
		user   string
		form   url.Values
		status int
	}{
		{"no identity", "", url.Values{"agent_name": {"DocBot"}}, http.StatusUnauthorized},
		{"identity from form", "", url.Values{"agent_name": {"DocBot"}, "user_id": {"user-9"}}, http.StatusCreated},
		{"missing name", "user-1", url.Values{"description": {"x"}}, http.StatusUnprocessableEntity},
		{"deployments not an array", "user-1", url.Values{"agent_name": {"DocBot"}, "deployments": {`{"a":1}`}}, http.StatusBadRequest},
		{"deployments omitted", "user-1", url.Values{"agent_name": {"DocBot"}}, http.StatusCreated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := mustRequest(t, http.MethodPost, h.srv.URL+"/v1/agents",
				"application/x-www-form-urlencoded", tc.form.Encode())
			if tc.user != "" {
				req.Header.Set(UserHeader, tc.user)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestGetAgentErrors(t *testing.T) {
	h := newHarness(t)

	cases := []struct {
		path   string
		status int
	}{
		{"/v1/agents/not-a-uuid", http.StatusBadRequest},
		{"/v1/agents/" + uuid.NewString(), http.StatusNotFound},
	}
	for _, tc := range cases {
		resp, err := http.Get(h.srv.URL + tc.path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, tc.status, resp.StatusCode, tc.path)
	}
}

func TestZipCapabilities(t *testing.T) {
	assert.Equal(t, []Capability{{ID: "c1", Name: "c1"}},
		zipCapabilities("c1", "Search, Retrieval"), "a name containing the separator breaks the pairing")
	assert.Equal(t, []Capability{{ID: "c1", Name: "A"}, {ID: "c2", Name: "B"}}, zipCapabilities("c1,c2", "A, B"))
	assert.Equal(t, []Capability{{ID: "c1", Name: "c1"}, {ID: "c2", Name: "c2"}}, zipCapabilities("c1,c2", "A"))
	assert.Empty(t, zipCapabilities("", ""))
}

func TestNewValidatesDependencies(t *testing.T) {
	_, err := New(nil, &memObjects{}, nil, Config{Bucket: "b"}, zerolog.Nop())
	assert.Error(t, err)
	_, err = New(newMemRepo(), nil, nil, Config{Bucket: "b"}, zerolog.Nop())
	assert.Error(t, err)
	_, err = New(newMemRepo(), &memObjects{}, nil, Config{Bucket: " "}, zerolog.Nop())
	assert.Error(t, err)
}

func mustRequest(t *testing.T, method, target, contentType, body string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, target, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	return req
}
