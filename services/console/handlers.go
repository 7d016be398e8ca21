package console

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"agentdock/services/assets"
	"agentdock/services/deployments"
	"agentdock/services/wizard"
)

// UserHeader carries the caller identity.
const UserHeader = "X-User-ID"

const multipartMemory = 32 << 20

var (
	errSessionNotFound = errors.New("wizard session not found")
	errNoFiles         = errors.New("no files in upload")
	errFileNotFound    = errors.New("staged file not found")
)

func callerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(UserHeader))
}

// sessionFor resolves the {wizardID} session owned by the caller, answering 404 otherwise.
func (c *Console) sessionFor(w http.ResponseWriter, r *http.Request) (*session, bool) {
	s, ok := c.lookup(chi.URLParam(r, "wizardID"), callerID(r))
	if !ok {
		respondError(w, http.StatusNotFound, errSessionNotFound)
		return nil, false
	}
	return s, true
}

func intParam(r *http.Request, name string) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return n, nil
}

// respondWizardError maps wizard and resolver errors onto HTTP statuses.
func respondWizardError(w http.ResponseWriter, err error) {
	var verrs wizard.ValidationErrors
	if errors.As(err, &verrs) {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      verrs.Error(),
			"violations": []wizard.FieldError(verrs),
		})
		return
	}
	var se *wizard.SubmitError
	if errors.As(err, &se) {
		status := http.StatusBadGateway
		if se.Status >= 400 && se.Status < 500 {
			status = se.Status
		}
		respondJSON(w, status, map[string]any{"error": se.Message, "category": se.Category})
		return
	}

	switch {
	case errors.Is(err, wizard.ErrClosed):
		respondError(w, http.StatusGone, err)
	case errors.Is(err, wizard.ErrNoIdentity):
		respondError(w, http.StatusUnauthorized, err)
	case errors.Is(err, wizard.ErrTransitioning),
		errors.Is(err, wizard.ErrSubmitInProgress),
		errors.Is(err, wizard.ErrRetreatDisabled),
		errors.Is(err, wizard.ErrForwardJump),
		errors.Is(err, deployments.ErrNotManual):
		respondError(w, http.StatusConflict, err)
	case errors.Is(err, wizard.ErrStepRange),
		errors.Is(err, wizard.ErrUnknownCapability),
		errors.Is(err, deployments.ErrIndexRange),
		errors.Is(err, deployments.ErrInvalidManual):
		respondError(w, http.StatusBadRequest, err)
	default:
		respondError(w, http.StatusInternalServerError, err)
	}
}

func (c *Console) respondState(w http.ResponseWriter, status int, s *session) {
	respondJSON(w, status, stateView(s))
}

// mutate runs fn against the session and answers with the new state.
func (c *Console) mutate(fn func(r *http.Request, s *session) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := c.sessionFor(w, r)
		if !ok {
			return
		}
		if err := fn(r, s); err != nil {
			respondWizardError(w, err)
			return
		}
		c.respondState(w, http.StatusOK, s)
	}
}

type openRequest struct {
	Mode    string `json:"mode"`
	AgentID string `json:"agent_id"`
}

func (c *Console) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	mode, err := wizard.ParseMode(req.Mode)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	s, err := c.openSession(r.Context(), callerID(r), mode, req.AgentID)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	c.log.Info().Str("wizard_id", s.id).Str("mode", string(mode)).Str("agent_id", req.AgentID).Msg("wizard opened")
	c.respondState(w, http.StatusCreated, s)
}

func (c *Console) handleState(w http.ResponseWriter, r *http.Request) {
	s, ok := c.sessionFor(w, r)
	if !ok {
		return
	}
	c.respondState(w, http.StatusOK, s)
}

func (c *Console) handleDiscard(w http.ResponseWriter, r *http.Request) {
	if !c.Discard(chi.URLParam(r, "wizardID"), callerID(r)) {
		respondError(w, http.StatusNotFound, errSessionNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Console) handleAdvance(r *http.Request, s *session) error {
	return s.wizard.Advance(r.Context())
}

func (c *Console) handleRetreat(_ *http.Request, s *session) error {
	return s.wizard.Retreat()
}

func (c *Console) handleJump(r *http.Request, s *session) error {
	var req struct {
		Step int `json:"step"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return fmt.Errorf("%w: %v", wizard.ErrStepRange, err)
	}
	return s.wizard.Jump(req.Step)
}

func (c *Console) handlePatchDraft(w http.ResponseWriter, r *http.Request) {
	s, ok := c.sessionFor(w, r)
	if !ok {
		return
	}
	var patch draftPatch
	if err := decodeJSON(r, &patch); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.wizard.Update(patch.apply); err != nil {
		respondWizardError(w, err)
		return
	}
	c.respondState(w, http.StatusOK, s)
}

func (c *Console) handleToggleCapability(r *http.Request, s *session) error {
	_, err := s.wizard.ToggleCapability(chi.URLParam(r, "capabilityID"))
	return err
}

func (c *Console) handleAddDeployment(w http.ResponseWriter, r *http.Request) {
	s, ok := c.sessionFor(w, r)
	if !ok {
		return
	}
	var d deployments.Deployment
	if err := decodeJSON(r, &d); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	i, err := s.wizard.AddDeployment(d)
	if err != nil {
		respondWizardError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int{"index": i})
}

func (c *Console) handleUpdateDeployment(w http.ResponseWriter, r *http.Request) {
	s, ok := c.sessionFor(w, r)
	if !ok {
		return
	}
	i, err := intParam(r, "index")
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	var d deployments.Deployment
	if err := decodeJSON(r, &d); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.wizard.UpdateDeployment(i, d); err != nil {
		respondWizardError(w, err)
		return
	}
	c.respondState(w, http.StatusOK, s)
}

func (c *Console) handleRemoveDeployment(r *http.Request, s *session) error {
	i, err := intParam(r, "index")
	if err != nil {
		return fmt.Errorf("%w: %v", deployments.ErrIndexRange, err)
	}
	return s.wizard.RemoveDeployment(i)
}

func (c *Console) handleToggleDeployment(r *http.Request, s *session) error {
	i, err := intParam(r, "index")
	if err != nil {
		return fmt.Errorf("%w: %v", deployments.ErrIndexRange, err)
	}
	_, err = s.wizard.ToggleDeployment(i)
	return err
}

func (c *Console) handleSelectAllDeployments(w http.ResponseWriter, r *http.Request) {
	s, ok := c.sessionFor(w, r)
	if !ok {
		return
	}
	var req struct {
		Selected *bool `json:"selected"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	all := req.Selected == nil || *req.Selected
	if err := s.wizard.SelectAllDeployments(all); err != nil {
		respondWizardError(w, err)
		return
	}
	c.respondState(w, http.StatusOK, s)
}

func (c *Console) handleUploadFiles(w http.ResponseWriter, r *http.Request) {
	s, ok := c.sessionFor(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, c.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		respondError(w, http.StatusBadRequest, err)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var staged []wizard.File
	for _, fh := range r.MultipartForm.File[wizard.AttachmentFiles] {
		f, err := readUpload(fh)
		if err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		staged = append(staged, f)
	}
	var readme *wizard.File
	if fhs := r.MultipartForm.File[wizard.AttachmentReadme]; len(fhs) > 0 {
		f, err := readUpload(fhs[0])
		if err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		readme = &f
	}
	if len(staged) == 0 && readme == nil {
		respondError(w, http.StatusBadRequest, errNoFiles)
		return
	}

	err := s.wizard.Update(func(d *wizard.Draft) {
		d.Files = append(d.Files, staged...)
		if readme != nil {
			d.Documentation.Readme = readme
		}
	})
	if err != nil {
		respondWizardError(w, err)
		return
	}
	c.log.Debug().Str("wizard_id", s.id).Int("files", len(staged)).Bool("readme", readme != nil).Msg("files staged")
	c.respondState(w, http.StatusCreated, s)
}

func readUpload(fh *multipart.FileHeader) (wizard.File, error) {
	f, err := fh.Open()
	if err != nil {
		return wizard.File{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return wizard.File{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	ct := fh.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		if byExt := mime.TypeByExtension(filepath.Ext(fh.Filename)); byExt != "" {
			ct = byExt
		}
	}
	if ct == "" {
		ct = "application/octet-stream"
	}
	return wizard.File{Name: filepath.Base(fh.Filename), ContentType: ct, Size: int64(len(data)), Data: data}, nil
}

func (c *Console) handleServeFile(w http.ResponseWriter, r *http.Request) {
	s, ok := c.sessionFor(w, r)
	if !ok {
		return
	}
	n, err := intParam(r, "index")
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	files := s.wizard.Draft().Files
	if n < 0 || n >= len(files) {
		respondError(w, http.StatusNotFound, errFileNotFound)
		return
	}
	f := files[n]
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Cache-Control", "private, no-store")
	http.ServeContent(w, r, f.Name, time.Time{}, bytes.NewReader(f.Data))
}

func (c *Console) handleRemoveFile(w http.ResponseWriter, r *http.Request) {
	s, ok := c.sessionFor(w, r)
	if !ok {
		return
	}
	n, err := intParam(r, "index")
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	found := false
	err = s.wizard.Update(func(d *wizard.Draft) {
		if n >= 0 && n < len(d.Files) {
			d.Files = slices.Delete(d.Files, n, n+1)
			found = true
		}
	})
	if err != nil {
		respondWizardError(w, err)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, errFileNotFound)
		return
	}
	c.respondState(w, http.StatusOK, s)
}

func (c *Console) handleAssets(w http.ResponseWriter, r *http.Request) {
	s, ok := c.sessionFor(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"assets": assetViews(s.wizard.Assets(c.classifier, s.localURL)),
	})
}

func (c *Console) handlePreview(w http.ResponseWriter, r *http.Request) {
	s, ok := c.sessionFor(w, r)
	if !ok {
		return
	}
	p := s.wizard.Preview(c.classifier, s.localURL)
	text, err := c.renderer.Render("preview.tmpl", p)
	if err != nil {
		c.log.Error().Err(err).Str("wizard_id", s.id).Msg("render preview")
		respondError(w, http.StatusInternalServerError, errors.New("render preview"))
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, text)
		return
	}
	respondJSON(w, http.StatusOK, previewView(p, text))
}

func (c *Console) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s, ok := c.sessionFor(w, r)
	if !ok {
		return
	}
	id, err := s.wizard.Submit(r.Context())
	if err != nil {
		respondWizardError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"agent_id": id})
}

type classifyRequest struct {
	Records     []assets.Record `json:"records"`
	PreviewURLs string          `json:"preview_urls"`
	KeyMode     string          `json:"key_mode"`
}

// handleClassify runs the asset classifier over caller-supplied records without a session.
func (c *Console) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	classifier := c.classifier
	if strings.TrimSpace(req.KeyMode) != "" {
		mode, err := assets.ParseKeyMode(req.KeyMode)
		if err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		cfg := c.config.Assets
		cfg.KeyMode = mode
		classifier = assets.New(cfg)
	}
	items := classifier.Classify(req.Records, req.PreviewURLs)
	respondJSON(w, http.StatusOK, map[string]any{"assets": items})
}
