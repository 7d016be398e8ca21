package console

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdock/pkg/render"
	"agentdock/services/deployments"
	"agentdock/services/directory"
	"agentdock/services/wizard"
)

type fakeCatalog struct {
	mu        sync.Mutex
	record    wizard.AgentRecord
	createErr error
	created   []wizard.Payload
	updated   []string
	added     []wizard.VocabularyAddition
	notices   []wizard.Notice
}

func (f *fakeCatalog) Capabilities(context.Context) ([]wizard.Capability, error) {
	return []wizard.Capability{
		{ID: "cap-doc", Name: "Document Processing"},
		{ID: "cap-search", Name: "Search & Retrieval"},
	}, nil
}

func (f *fakeCatalog) Deployments(_ context.Context, id string) ([]deployments.Candidate, error) {
	if id != "cap-doc" {
		return nil, nil
	}
	return []deployments.Candidate{{Provider: "AWS", ServiceName: "Textract", DeploymentType: "SaaS", Region: "us-east-1"}}, nil
}

func (f *fakeCatalog) Vocabulary(context.Context) (wizard.Vocabulary, error) {
	return wizard.Vocabulary{
		AgentTypes:        []string{"Autonomous Agent"},
		ValuePropositions: []string{"Cost Reduction"},
		Tags:              []string{"AI/ML"},
		TargetPersonas:    []string{"Developer"},
	}, nil
}

func (f *fakeCatalog) AddVocabulary(_ context.Context, add wizard.VocabularyAddition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, add)
	return nil
}

func (f *fakeCatalog) Agent(context.Context, string) (wizard.AgentRecord, error) {
	return f.record, nil
}

func (f *fakeCatalog) Create(_ context.Context, p wizard.Payload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, p)
	return "agent-1", nil
}

func (f *fakeCatalog) Update(_ context.Context, id string, _ wizard.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, id)
	return nil
}

func (f *fakeCatalog) Success(_ context.Context, n wizard.Notice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, n)
	return nil
}

type harness struct {
	console *Console
	catalog *fakeCatalog
	server  *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cat := &fakeCatalog{}
	renderer, err := render.New()
	require.NoError(t, err)

	c, err := New(func(string) wizard.Services {
		return wizard.Services{Capabilities: cat, Deployments: cat, Vocabulary: cat, Agents: cat, Notifier: cat}
	}, renderer, Config{
		TransitionWindow: -1,
		Registry:         prometheus.NewRegistry(),
	}, zerolog.Nop())
	require.NoError(t, err)

	srv := httptest.NewServer(c.Routes())
	t.Cleanup(srv.Close)
	return &harness{console: c, catalog: cat, server: srv}
}

func (h *harness) do(t *testing.T, method, path, user string, body any) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, h.server.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (h *harness) open(t *testing.T, user string, body any) stateJSON {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/v1/wizards", user, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeBody[stateJSON](t, resp)
}

func basics() map[string]any {
	return map[string]any{
		"agent_name":        "DocBot",
		"description":       "Extracts fields from scanned documents",
		"agent_type":        "Autonomous Agent",
		"value_proposition": "Bespoke Value",
		"target_personas":   []string{"Developer"},
		"tags":              []string{"AI/ML"},
		"key_features":      []string{"OCR", "Tables"},
	}
}

func (h *harness) fillRequired(t *testing.T, user, id string) {
	t.Helper()
	resp := h.do(t, http.MethodPatch, "/v1/wizards/"+id+"/draft", user, basics())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = h.do(t, http.MethodPost, "/v1/wizards/"+id+"/capabilities/cap-doc/toggle", user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// fetched waits until the background deployment fetch has merged its options.
func (h *harness) fetched(t *testing.T, user, id string) stateJSON {
	t.Helper()
	var st stateJSON
	require.Eventually(t, func() bool {
		resp := h.do(t, http.MethodGet, "/v1/wizards/"+id, user, nil)
		st = decodeBody[stateJSON](t, resp)
		return len(st.PendingCapabilities) == 0 && len(st.Deployments) > 0
	}, 2*time.Second, 10*time.Millisecond)
	return st
}

func uploadFiles(t *testing.T, h *harness, user, id string, files map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		field := wizard.AttachmentFiles
		if strings.EqualFold(name, "README.md") {
			field = wizard.AttachmentReadme
		}
		part, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, _ = io.WriteString(part, content)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, h.server.URL+"/v1/wizards/"+id+"/files", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(UserHeader, user)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestCreateFlowEndToEnd(t *testing.T) {
	h := newHarness(t)
	st := h.open(t, "user-1", map[string]string{"mode": "create"})
	id := st.ID
	assert.Equal(t, 1, st.Step)
	assert.Equal(t, 5, st.TotalSteps)
	assert.Equal(t, []string{"Autonomous Agent"}, st.Vocabulary.AgentTypes)

	resp := h.do(t, http.MethodPatch, "/v1/wizards/"+id+"/draft", "user-1", basics())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st = decodeBody[stateJSON](t, resp)
	assert.False(t, st.Draft.AgentType.Custom)
	assert.True(t, st.Draft.ValueProposition.Custom)

	resp = h.do(t, http.MethodPost, "/v1/wizards/"+id+"/advance", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, decodeBody[stateJSON](t, resp).Step)

	resp = h.do(t, http.MethodPost, "/v1/wizards/"+id+"/capabilities/cap-doc/toggle", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st = h.fetched(t, "user-1", id)
	require.Len(t, st.Deployments, 1)
	assert.Equal(t, "Textract", st.Deployments[0].Option.ServiceName)
	assert.Equal(t, "Document Processing", st.Deployments[0].Option.CapabilityName)
	assert.False(t, st.Deployments[0].Selected)

	resp = h.do(t, http.MethodPost, "/v1/wizards/"+id+"/deployments/0/toggle", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = h.do(t, http.MethodPost, "/v1/wizards/"+id+"/deployments", "user-1", map[string]string{
		"service_provider": "On-prem", "service_name": "Tesseract", "capability_id": "cap-doc",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, map[string]int{"index": 1}, decodeBody[map[string]int](t, resp))

	resp = h.do(t, http.MethodPost, "/v1/wizards/"+id+"/advance", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = uploadFiles(t, h, "user-1", id, map[string]string{"walkthrough.mp4": "0123456789", "README.md": "# DocBot"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	st = decodeBody[stateJSON](t, resp)
	require.Len(t, st.Draft.Files, 1)
	assert.Equal(t, "/v1/wizards/"+id+"/files/0", st.Draft.Files[0].URL)
	require.NotNil(t, st.Draft.Documentation.Readme)
	assert.Equal(t, "README.md", st.Draft.Documentation.Readme.Name)

	resp = h.do(t, http.MethodGet, "/v1/wizards/"+id+"/assets", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[struct {
		Assets []assetJSON `json:"assets"`
	}](t, resp)
	require.Len(t, got.Assets, 1)
	assert.True(t, got.Assets[0].Local)
	assert.True(t, got.Assets[0].IsVideo())
	assert.Equal(t, got.Assets[0].URL, got.Assets[0].RetryURL)

	for range 2 {
		resp = h.do(t, http.MethodPost, "/v1/wizards/"+id+"/advance", "user-1", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp = h.do(t, http.MethodGet, "/v1/wizards/"+id+"/preview?format=text", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	text, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(text), "DocBot")
	assert.Contains(t, string(text), "Deployments (2 selected)")
	assert.Contains(t, string(text), "On-prem / Tesseract")

	resp = h.do(t, http.MethodPost, "/v1/wizards/"+id+"/submit", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"agent_id": "agent-1"}, decodeBody[map[string]string](t, resp))

	require.Len(t, h.catalog.created, 1)
	payload := h.catalog.created[0]
	assert.Equal(t, "cap-doc", payload.Get(wizard.FieldCapabilityIDs))
	assert.Equal(t, "user-1", payload.Get(wizard.FieldUserID))
	assert.Len(t, payload.Attachments, 2)
	require.Len(t, h.catalog.added, 1)
	assert.Equal(t, "Bespoke Value", h.catalog.added[0].ValueProposition)
	require.Len(t, h.catalog.notices, 1)
	assert.Equal(t, "agent-1", h.catalog.notices[0].AgentID)

	st = decodeBody[stateJSON](t, h.do(t, http.MethodGet, "/v1/wizards/"+id, "user-1", nil))
	assert.True(t, st.Closed)
	assert.Equal(t, "agent-1", st.AgentID)
	resp = h.do(t, http.MethodPost, "/v1/wizards/"+id+"/advance", "user-1", nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)

	m := h.console.metrics
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues("create", wizard.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues(deployments.OutcomeMerged)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions))
}

func TestAdvanceReportsViolations(t *testing.T) {
	h := newHarness(t)
	id := h.open(t, "user-1", nil).ID

	resp := h.do(t, http.MethodPost, "/v1/wizards/"+id+"/advance", "user-1", nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decodeBody[struct {
		Violations []wizard.FieldError `json:"violations"`
	}](t, resp)
	fields := make([]string, 0, len(body.Violations))
	for _, v := range body.Violations {
		fields = append(fields, v.Field)
	}
	assert.Equal(t, []string{"agent_name", "description", "agent_type", "value_proposition", "by_persona"}, fields)

	st := decodeBody[stateJSON](t, h.do(t, http.MethodGet, "/v1/wizards/"+id, "user-1", nil))
	assert.Equal(t, 1, st.Step)
}

func TestSessionsAreScopedToCaller(t *testing.T) {
	h := newHarness(t)
	id := h.open(t, "user-1", nil).ID

	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/v1/wizards/"+id, "user-2", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodDelete, "/v1/wizards/"+id, "user-2", nil).StatusCode)
	assert.Equal(t, http.StatusNoContent, h.do(t, http.MethodDelete, "/v1/wizards/"+id, "user-1", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/v1/wizards/"+id, "user-1", nil).StatusCode)
	assert.Equal(t, 0.0, testutil.ToFloat64(h.console.metrics.sessions))
}

func TestNavigationConflicts(t *testing.T) {
	h := newHarness(t)
	id := h.open(t, "user-1", nil).ID

	resp := h.do(t, http.MethodPost, "/v1/wizards/"+id+"/jump", "user-1", map[string]int{"step": 3})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp = h.do(t, http.MethodPost, "/v1/wizards/"+id+"/jump", "user-1", map[string]int{"step": 9})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/v1/wizards/"+id+"/retreat", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeBody[stateJSON](t, resp).Closed, "retreat from the first step closes a create wizard")
	resp = h.do(t, http.MethodPatch, "/v1/wizards/"+id+"/draft", "user-1", basics())
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestEditRetreatIsRefused(t *testing.T) {
	h := newHarness(t)
	h.catalog.record = wizard.AgentRecord{
		ID:           "agent-7",
		Name:         "DocBot",
		ByPersona:    "Developer",
		Capabilities: []wizard.Capability{{ID: "legacy", Name: "document processing"}},
	}
	st := h.open(t, "user-1", map[string]string{"mode": "edit", "agent_id": "agent-7"})
	assert.Equal(t, 4, st.TotalSteps)
	assert.Empty(t, st.OpenError)
	assert.Equal(t, "DocBot", st.Draft.Name)
	require.Len(t, st.Draft.Capabilities, 1)
	assert.Equal(t, "cap-doc", st.Draft.Capabilities[0].ID)

	resp := h.do(t, http.MethodPost, "/v1/wizards/"+st.ID+"/retreat", "user-1", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestOpenRejectsEditWithoutAgent(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, http.MethodPost, "/v1/wizards", "user-1", map[string]string{"mode": "edit"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = h.do(t, http.MethodPost, "/v1/wizards", "user-1", map[string]string{"mode": "delete"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitErrors(t *testing.T) {
	cases := []struct {
		name     string
		user     string
		err      error
		status   int
		category wizard.Category
	}{
		{"rejected payload", "user-1", &directory.StatusError{StatusCode: 422, Message: "agent_name is required"}, http.StatusUnprocessableEntity, wizard.CategoryBadRequest},
		{"catalog failure", "user-1", &directory.StatusError{StatusCode: 500}, http.StatusBadGateway, wizard.CategoryServer},
		{"expired session", "user-1", &directory.StatusError{StatusCode: 401}, http.StatusUnauthorized, wizard.CategoryAuth},
		{"anonymous", "", nil, http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.catalog.createErr = tc.err
			id := h.open(t, tc.user, nil).ID
			h.fillRequired(t, tc.user, id)

			resp := h.do(t, http.MethodPost, "/v1/wizards/"+id+"/submit", tc.user, nil)
			require.Equal(t, tc.status, resp.StatusCode)
			body := decodeBody[map[string]any](t, resp)
			if tc.category != "" {
				assert.Equal(t, string(tc.category), body["category"])
				st := decodeBody[stateJSON](t, h.do(t, http.MethodGet, "/v1/wizards/"+id, tc.user, nil))
				require.NotNil(t, st.LastError)
				assert.Equal(t, tc.category, st.LastError.Category)
				assert.False(t, st.Closed, "draft is kept for retry")
			}
			assert.Empty(t, h.catalog.created)
		})
	}
}

func TestStagedFiles(t *testing.T) {
	h := newHarness(t)
	id := h.open(t, "user-1", nil).ID

	resp := uploadFiles(t, h, "user-1", id, map[string]string{"shot.png": "0123456789"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, h.server.URL+"/v1/wizards/"+id+"/files/0", nil)
	require.NoError(t, err)
	req.Header.Set(UserHeader, "user-1")
	req.Header.Set("Range", "bytes=0-3")
	rangeResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer rangeResp.Body.Close()
	assert.Equal(t, http.StatusPartialContent, rangeResp.StatusCode)
	data, _ := io.ReadAll(rangeResp.Body)
	assert.Equal(t, "0123", string(data))
	assert.Equal(t, "image/png", rangeResp.Header.Get("Content-Type"))

	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/v1/wizards/"+id+"/files/4", "user-1", nil).StatusCode)
	resp = h.do(t, http.MethodDelete, "/v1/wizards/"+id+"/files/0", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeBody[stateJSON](t, resp).Draft.Files)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodDelete, "/v1/wizards/"+id+"/files/0", "user-1", nil).StatusCode)

	resp = uploadFiles(t, h, "user-1", id, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeploymentEndpoints(t *testing.T) {
	h := newHarness(t)
	id := h.open(t, "user-1", nil).ID
	h.fillRequired(t, "user-1", id)
	h.fetched(t, "user-1", id)

	resp := h.do(t, http.MethodPost, "/v1/wizards/"+id+"/deployments", "user-1", map[string]string{"service_provider": "On-prem"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "manual options need a service name")

	resp = h.do(t, http.MethodPut, "/v1/wizards/"+id+"/deployments/0", "user-1", map[string]string{
		"service_provider": "AWS", "service_name": "Comprehend",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "fetched options are read-only")

	resp = h.do(t, http.MethodPost, "/v1/wizards/"+id+"/deployments/select-all", "user-1", map[string]bool{"selected": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decodeBody[stateJSON](t, resp)
	require.Len(t, st.Deployments, 1)
	assert.True(t, st.Deployments[0].Selected)

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/v1/wizards/"+id+"/deployments/7/toggle", "user-1", nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodDelete, "/v1/wizards/"+id+"/deployments/x", "user-1", nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/v1/wizards/"+id+"/capabilities/nope/toggle", "user-1", nil).StatusCode)

	resp = h.do(t, http.MethodPost, "/v1/wizards/"+id+"/capabilities/cap-doc/toggle", "user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeBody[stateJSON](t, resp).Deployments, "deactivating a capability sweeps its options")
}

func TestClassifyEndpoint(t *testing.T) {
	h := newHarness(t)
	body := map[string]any{
		"records": []map[string]string{
			{"name": "first", "asset_url": "https://bucket.s3.amazonaws.com/a.mp4"},
			{"name": "second", "asset_url": "https://bucket.s3.amazonaws.com/a.mp4?x=1"},
		},
		"preview_urls": "https://bucket.s3.amazonaws.com/a.mp4",
	}
	type result struct {
		Assets []json.RawMessage `json:"assets"`
	}

	resp := h.do(t, http.MethodPost, "/v1/assets/classify", "", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[result](t, resp).Assets, 1)

	body["key_mode"] = "exact"
	resp = h.do(t, http.MethodPost, "/v1/assets/classify", "", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[result](t, resp).Assets, 2)

	body["key_mode"] = "fuzzy"
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/v1/assets/classify", "", body).StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.open(t, "user-1", nil)

	resp := h.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "agentdock_wizard_sessions 1")
}

func TestNewValidatesDependencies(t *testing.T) {
	renderer, err := render.New()
	require.NoError(t, err)
	_, err = New(nil, renderer, Config{}, zerolog.Nop())
	assert.Error(t, err)
	_, err = New(func(string) wizard.Services { return wizard.Services{} }, nil, Config{}, zerolog.Nop())
	assert.Error(t, err)
}
