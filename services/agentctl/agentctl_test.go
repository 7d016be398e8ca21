package agentctl

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"filippo.io/age"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdock/services/assets"
	"agentdock/services/deployments"
	"agentdock/services/wizard"
)

type fakeCatalog struct {
	mu        sync.Mutex
	caps      []wizard.Capability
	deploys   map[string][]deployments.Candidate
	record    wizard.AgentRecord
	created   []wizard.Payload
	updated   map[string]wizard.Payload
	createErr error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		caps: []wizard.Capability{{ID: "c1", Name: "Document Intelligence"}, {ID: "c2", Name: "Speech"}},
		deploys: map[string][]deployments.Candidate{
			"c1": {{Provider: "AWS", ServiceName: "Textract", DeploymentType: "SaaS", Region: "us-east-1"}},
			"c2": {{Provider: "Azure", ServiceName: "Speech", DeploymentType: "SaaS", Region: "westeurope"}},
		},
		updated: map[string]wizard.Payload{},
	}
}

func (f *fakeCatalog) Capabilities(context.Context) ([]wizard.Capability, error) { return f.caps, nil }

func (f *fakeCatalog) Deployments(_ context.Context, id string) ([]deployments.Candidate, error) {
	return f.deploys[id], nil
}

func (f *fakeCatalog) Vocabulary(context.Context) (wizard.Vocabulary, error) {
	return wizard.Vocabulary{
		AgentTypes:        []string{"Assistant"},
		ValuePropositions: []string{"Productivity"},
		Tags:              []string{"AI/ML"},
		TargetPersonas:    []string{"Developer"},
	}, nil
}

func (f *fakeCatalog) AddVocabulary(context.Context, wizard.VocabularyAddition) error { return nil }

func (f *fakeCatalog) Agent(_ context.Context, id string) (wizard.AgentRecord, error) {
	if id != f.record.ID {
		return wizard.AgentRecord{}, errors.New("agent not found")
	}
	return f.record, nil
}

func (f *fakeCatalog) Create(_ context.Context, p wizard.Payload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, p)
	return "a-1", nil
}

func (f *fakeCatalog) Update(_ context.Context, id string, p wizard.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated[id] = p
	return nil
}

func (f *fakeCatalog) services(out io.Writer) wizard.Services {
	return wizard.Services{
		Capabilities: f,
		Deployments:  f,
		Vocabulary:   f,
		Agents:       f,
		Notifier:     PrintNotifier{Out: out},
	}
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const onboardDraft = `
agent_name: DocBot
description: Reads invoices
key_features: [OCR, Extraction]
agent_type: Assistant
value_proposition: Productivity
tags: [AI/ML]
target_personas: [Developer]
capabilities: [document intelligence]
select_fetched: true
deployments:
  - provider: GCP
    service_name: Document AI
    deployment_type: SaaS
    region: europe-west1
    capability: c1
demo_links: [https://example.com/demo.mp4]
files: [screen.png]
documentation:
  api_docs_url: https://docs.example.com
  readme: README.md
`

func TestOnboardFromDraftFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "screen.png", "png")
	writeFile(t, dir, "README.md", "# DocBot")
	draft, err := LoadDraft(writeFile(t, dir, "draft.yaml", onboardDraft))
	require.NoError(t, err)

	cat := newFakeCatalog()
	var out bytes.Buffer
	id, err := Run(context.Background(), RunConfig{
		Services: cat.services(&out),
		UserID:   "user-1",
		Draft:    draft,
		Logger:   zerolog.Nop(),
		Stdout:   &out,
	})
	require.NoError(t, err)
	assert.Equal(t, "a-1", id)

	require.Len(t, cat.created, 1)
	p := cat.created[0]
	assert.Equal(t, "DocBot", p.Get(wizard.FieldAgentName))
	assert.Equal(t, "c1", p.Get(wizard.FieldCapabilityIDs))
	assert.Contains(t, p.Get(wizard.FieldDeployments), "Textract")
	assert.Contains(t, p.Get(wizard.FieldDeployments), "Document AI")
	assert.Len(t, p.Attachments, 2)

	assert.Contains(t, out.String(), `Agent "DocBot" was submitted for review.`)
	assert.Contains(t, out.String(), "agent a-1 submitted")
}

func TestOnboardReportsValidationErrors(t *testing.T) {
	dir := t.TempDir()
	draft, err := LoadDraft(writeFile(t, dir, "draft.yaml", "agent_name: DocBot\n"))
	require.NoError(t, err)

	cat := newFakeCatalog()
	var out bytes.Buffer
	_, err = Run(context.Background(), RunConfig{
		Services: cat.services(&out),
		UserID:   "user-1",
		Draft:    draft,
		Logger:   zerolog.Nop(),
		Stdout:   &out,
	})
	var verrs wizard.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, out.String(), "step 1")
	assert.Contains(t, out.String(), "- description: Description is required")
	assert.Empty(t, cat.created)
}

func TestOnboardReportsSubmitCategory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "screen.png", "png")
	writeFile(t, dir, "README.md", "# DocBot")
	draft, err := LoadDraft(writeFile(t, dir, "draft.yaml", onboardDraft))
	require.NoError(t, err)

	cat := newFakeCatalog()
	cat.createErr = errors.New("connection refused")
	var out bytes.Buffer
	_, err = Run(context.Background(), RunConfig{
		Services: cat.services(&out),
		UserID:   "user-1",
		Draft:    draft,
		Logger:   zerolog.Nop(),
		Stdout:   &out,
	})
	var se *wizard.SubmitError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, out.String(), "submission failed ("+string(se.Category)+")")
}

func TestEditAppliesPatch(t *testing.T) {
	cat := newFakeCatalog()
	cat.record = wizard.AgentRecord{
		ID:               "a-9",
		Name:             "DocBot",
		Description:      "Reads invoices",
		AgentType:        "Assistant",
		ValueProposition: "Productivity",
		ByPersona:        "Developer",
		Capabilities:     []wizard.Capability{{ID: "c1", Name: "Document Intelligence"}},
	}
	dir := t.TempDir()
	draft, err := LoadDraft(writeFile(t, dir, "patch.yaml", "description: Reads receipts\ncapabilities: [c2]\n"))
	require.NoError(t, err)

	var out bytes.Buffer
	id, err := Run(context.Background(), RunConfig{
		Services: cat.services(&out),
		UserID:   "user-1",
		AgentID:  "a-9",
		Draft:    draft,
		Logger:   zerolog.Nop(),
		Stdout:   &out,
	})
	require.NoError(t, err)
	assert.Equal(t, "a-9", id)
	p, ok := cat.updated["a-9"]
	require.True(t, ok)
	assert.Equal(t, "Reads receipts", p.Get(wizard.FieldDescription))
	assert.Equal(t, "DocBot", p.Get(wizard.FieldAgentName))
	assert.Equal(t, "c2", p.Get(wizard.FieldCapabilityIDs))
	assert.Contains(t, out.String(), "agent a-9 updated")
}

func TestResolveCapability(t *testing.T) {
	catalog := []wizard.Capability{{ID: "c1", Name: "Speech"}, {ID: "c2", Name: "Vision"}}

	id, err := resolveCapability(catalog, "c2")
	require.NoError(t, err)
	assert.Equal(t, "c2", id)

	id, err = resolveCapability(catalog, " speech ")
	require.NoError(t, err)
	assert.Equal(t, "c1", id)

	_, err = resolveCapability(catalog, "Robotics")
	assert.ErrorIs(t, err, wizard.ErrUnknownCapability)
}

func TestClassifyAssets(t *testing.T) {
	dir := t.TempDir()
	manifest, err := LoadAssetManifest(writeFile(t, dir, "assets.yaml", `
assets:
  - name: demo
    asset_url: https://bucket.s3.amazonaws.com/agents/1/demo.mp4?X-Amz-Signature=abc
  - name: shot
    file_path: https://cdn.example.com/shot.png
preview_urls: https://bucket.s3.amazonaws.com/agents/1/demo.mp4
`))
	require.NoError(t, err)

	var out bytes.Buffer
	got, err := ClassifyAssets(ClassifyConfig{Manifest: manifest, Stdout: &out})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, assets.KindVideo, got[0].Kind)
	assert.Equal(t, assets.KindImage, got[1].Kind)
	assert.True(t, strings.HasPrefix(out.String(), "#"))
	assert.Len(t, strings.Split(strings.TrimSpace(out.String()), "\n"), 3)

	got, err = ClassifyAssets(ClassifyConfig{
		Manifest: manifest,
		Previews: "https://youtu.be/abc",
		Assets:   assets.Config{KeyMode: assets.KeyExact},
		Stdout:   io.Discard,
	})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func readArchive(t *testing.T, path string) map[string][]byte {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	dec, err := zstd.NewReader(f)
	require.NoError(t, err)
	defer dec.Close()

	files := map[string][]byte{}
	tr := tar.NewReader(dec)
	for {
		h, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		files[h.Name] = data
	}
	return files
}

func exportFixture() *fakeCatalog {
	cat := newFakeCatalog()
	cat.record = wizard.AgentRecord{
		ID:   "a-9",
		Name: "DocBot",
		Deployments: []deployments.Option{
			deployments.Candidate{Provider: "AWS", ServiceName: "Textract"}.ForCapability("c1", "Document Intelligence"),
		},
		Assets:      []assets.Record{{Name: "demo", AssetURL: "https://cdn.example.com/demo.mp4"}},
		PreviewURLs: "https://youtu.be/abc",
	}
	return cat
}

func TestExportWritesArchive(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "docbot.tar.zst")
	m, err := Export(context.Background(), ExportConfig{
		Agents:  exportFixture(),
		AgentID: "a-9",
		Output:  out,
		Now:     func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
		Stdout:  io.Discard,
	})
	require.NoError(t, err)
	assert.Equal(t, "DocBot", m.AgentName)
	assert.Empty(t, m.Signature)
	require.Len(t, m.Entries, 3)

	files := readArchive(t, out)
	assert.Len(t, files, 4)
	assert.Contains(t, string(files[manifestFileName]), "agent_id: a-9")
	assert.Contains(t, string(files[deploymentsFileName]), "Textract")
	assert.Contains(t, string(files[assetsFileName]), "https://youtu.be/abc")

	var buf bytes.Buffer
	_, err = Verify(context.Background(), VerifyConfig{Path: out, Stdout: &buf})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "unsigned")
}

func TestExportSignatureRoundTrip(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	signer, err := NewSigner(identity.String(), "")
	require.NoError(t, err)
	assert.Equal(t, identity.Recipient().String(), signer.Recipient())

	out := filepath.Join(t.TempDir(), "docbot.tar.zst")
	m, err := Export(context.Background(), ExportConfig{
		Agents:  exportFixture(),
		AgentID: "a-9",
		Output:  out,
		Signer:  signer,
		Stdout:  io.Discard,
	})
	require.NoError(t, err)
	require.NotEmpty(t, m.Signature)

	verifier, err := NewSigner("", signer.PublicKeyBase64())
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = Verify(context.Background(), VerifyConfig{Path: out, Signer: verifier, Stdout: &buf})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "signature ok")

	other, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	wrong, err := NewSigner(other.String(), "")
	require.NoError(t, err)
	_, err = Verify(context.Background(), VerifyConfig{Path: out, Signer: wrong, Stdout: io.Discard})
	assert.Error(t, err)
}

func TestExportRequiresKnownAgent(t *testing.T) {
	_, err := Export(context.Background(), ExportConfig{
		Agents:  exportFixture(),
		AgentID: "missing",
		Output:  filepath.Join(t.TempDir(), "x.tar.zst"),
		Stdout:  io.Discard,
	})
	assert.ErrorContains(t, err, "load agent missing")
}

func TestNewSignerValidatesKeys(t *testing.T) {
	s, err := NewSigner("", "")
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.False(t, s.CanSign())

	_, err = NewSigner("not-a-key", "")
	assert.Error(t, err)
	_, err = NewSigner("", "c2hvcnQ=")
	assert.Error(t, err)
}
