package catalog

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	gos3 "agentdock/pkg/s3"
	"agentdock/services/wizard"
)

// UserHeader carries the caller identity when the form has no user_id.
const UserHeader = "X-User-ID"

var errAgentNameRequired = errors.New("agent_name is required")

type agentForm struct {
	values url.Values
	readme *multipart.FileHeader
	files  []*multipart.FileHeader
}

func parseAgentForm(r *http.Request, maxMemory int64) (*agentForm, error) {
	err := r.ParseMultipartForm(maxMemory)
	switch {
	case errors.Is(err, http.ErrNotMultipart):
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("parse form: %w", err)
		}
		return &agentForm{values: r.PostForm}, nil
	case err != nil:
		return nil, fmt.Errorf("parse multipart form: %w", err)
	}

	f := &agentForm{values: url.Values(r.MultipartForm.Value)}
	if readme := r.MultipartForm.File[wizard.AttachmentReadme]; len(readme) > 0 {
		f.readme = readme[0]
	}
	f.files = r.MultipartForm.File[wizard.AttachmentFiles]
	return f, nil
}

func (f *agentForm) get(name string) string {
	return strings.TrimSpace(f.values.Get(name))
}

// callerID prefers the form's user_id over the identity header.
func (f *agentForm) callerID(r *http.Request) string {
	if id := f.get(wizard.FieldUserID); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get(UserHeader))
}

func (f *agentForm) agent() (Agent, error) {
	a := Agent{
		Name:             f.get(wizard.FieldAgentName),
		Description:      f.get(wizard.FieldDescription),
		KeyFeatures:      f.get(wizard.FieldKeyFeatures),
		ROI:              f.get(wizard.FieldROI),
		AgentType:        f.get(wizard.FieldAgentType),
		ValueProposition: f.get(wizard.FieldValueProposition),
		Tags:             f.get(wizard.FieldTags),
		ByPersona:        f.get(wizard.FieldByPersona),
		BundledAgents:    f.get(wizard.FieldBundledAgents),
		ByCapability:     f.get(wizard.FieldByCapability),
		CapabilityIDs:    f.get(wizard.FieldCapabilityIDs),
		DemoLinks:        f.get(wizard.FieldDemoLinks),
		PreviewURLs:      f.get(wizard.FieldPreviewURLs),
		Documentation: Documentation{
			SDKDetails:      f.get(wizard.FieldSDKDetails),
			APIDocsURL:      f.get(wizard.FieldAPIDocsURL),
			SampleInput:     f.get(wizard.FieldSampleInput),
			SampleOutput:    f.get(wizard.FieldSampleOutput),
			SecurityDetails: f.get(wizard.FieldSecurityDetails),
			RelatedLinks:    f.get(wizard.FieldRelatedLinks),
		},
	}
	if a.Name == "" {
		return Agent{}, errAgentNameRequired
	}
	a.Capabilities = zipCapabilities(a.CapabilityIDs, a.ByCapability)

	raw := f.get(wizard.FieldDeployments)
	if raw == "" {
		raw = "[]"
	}
	var items []map[string]any
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return Agent{}, fmt.Errorf("deployments must be a JSON array of objects: %w", err)
	}
	a.Deployments = json.RawMessage(raw)
	return a, nil
}

// storeAttachments uploads the readme and asset files under agents/<id>/ and returns the
// asset rows to record plus the readme URL, if any.
func (a *API) storeAttachments(ctx context.Context, agentID uuid.UUID, f *agentForm) ([]Asset, string, error) {
	prefix := path.Join("agents", agentID.String())

	var readmeURL string
	if f.readme != nil {
		key := path.Join(prefix, "readme", safeName(f.readme.Filename))
		if _, err := a.upload(ctx, key, f.readme); err != nil {
			return nil, "", err
		}
		readmeURL = gos3.ObjectURL(a.config.StorageBaseURL, key)
	}

	uploads := make([]Asset, 0, len(f.files))
	for _, fh := range f.files {
		id := uuid.New()
		key := path.Join(prefix, "files", id.String()+"-"+safeName(fh.Filename))
		contentType, err := a.upload(ctx, key, fh)
		if err != nil {
			return nil, "", err
		}
		uploads = append(uploads, Asset{
			ID:        id,
			Name:      fh.Filename,
			AssetURL:  gos3.ObjectURL(a.config.StorageBaseURL, key),
			FilePath:  key,
			MediaType: contentType,
		})
	}
	return uploads, readmeURL, nil
}

func (a *API) upload(ctx context.Context, key string, fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return "", fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	sum := sha256.Sum256(data)
	contentType := contentTypeOf(fh)

	if err := a.objects.PutObject(ctx, a.config.Bucket, key, contentType, bytes.NewReader(data), int64(len(data)), hex.EncodeToString(sum[:])); err != nil {
		return "", fmt.Errorf("store %s: %w", key, err)
	}
	a.log.Debug().Str("key", key).Int("bytes", len(data)).Msg("attachment stored")
	return contentType, nil
}

func contentTypeOf(fh *multipart.FileHeader) string {
	if ct := strings.TrimSpace(fh.Header.Get("Content-Type")); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(fh.Filename))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func safeName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return strings.ReplaceAll(name, " ", "_")
}
