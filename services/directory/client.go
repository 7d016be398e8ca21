// Package directory is the typed client for the catalog service: capability and deployment
// directories, the onboarding vocabulary, and agent persistence. Every response is
// validated against a JSON schema before it is decoded.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"agentdock/services/assets"
	"agentdock/services/deployments"
	"agentdock/services/wizard"
)

const (
	defaultTimeout  = 15 * time.Second
	maxResponseSize = 4 << 20
	// UserHeader carries the caller identity to the catalog service.
	UserHeader = "X-User-ID"
)

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("catalog returned %d", e.StatusCode)
	}
	return fmt.Sprintf("catalog returned %d: %s", e.StatusCode, e.Message)
}

// HTTPStatus exposes the status for error classification.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// Detail is the server-provided reason.
func (e *StatusError) Detail() string { return e.Message }

// Client talks to the catalog service.
type Client struct {
	base   *url.URL
	http   *http.Client
	userID string
	log    zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithUserID sets the identity sent on every request.
func WithUserID(id string) Option {
	return func(c *Client) { c.userID = strings.TrimSpace(id) }
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New returns a client for the catalog at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("catalog base url is required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid catalog base url %q", baseURL)
	}
	c := &Client{
		base: u,
		http: &http.Client{Timeout: defaultTimeout},
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ForUser returns a copy of c sending id as the caller identity.
func (c *Client) ForUser(id string) *Client {
	cp := *c
	cp.userID = strings.TrimSpace(id)
	return &cp
}

func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.base.String() + "/" + strings.Join(escaped, "/")
}

func (c *Client) do(ctx context.Context, method, endpoint, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.userID != "" {
		req.Header.Set(UserHeader, c.userID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

func errorMessage(data []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return body.Error
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return msg
}

func (c *Client) getJSON(ctx context.Context, schema, endpoint string, out any) error {
	data, err := c.do(ctx, http.MethodGet, endpoint, "", nil)
	if err != nil {
		return err
	}
	return decode(schema, data, out)
}

func decode(schema string, data []byte, out any) error {
	if err := Validate(schema, data); err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ParseError{Resource: schema, Err: err}
	}
	return nil
}

// Capabilities lists the capability directory.
func (c *Client) Capabilities(ctx context.Context) ([]wizard.Capability, error) {
	var body struct {
		Capabilities []wizard.Capability `json:"capabilities"`
	}
	if err := c.getJSON(ctx, SchemaCapabilities, c.endpoint("v1", "capabilities"), &body); err != nil {
		return nil, err
	}
	return body.Capabilities, nil
}

// Deployments lists the deployment candidates for a capability.
func (c *Client) Deployments(ctx context.Context, capabilityID string) ([]deployments.Candidate, error) {
	var body struct {
		Deployments []deployments.Candidate `json:"deployments"`
	}
	if err := c.getJSON(ctx, SchemaDeployments, c.endpoint("v1", "capabilities", capabilityID, "deployments"), &body); err != nil {
		return nil, err
	}
	return body.Deployments, nil
}

// Vocabulary fetches the onboarding reference vocabulary.
func (c *Client) Vocabulary(ctx context.Context) (wizard.Vocabulary, error) {
	var v wizard.Vocabulary
	if err := c.getJSON(ctx, SchemaVocabulary, c.endpoint("v1", "onboarding", "filters"), &v); err != nil {
		return wizard.Vocabulary{}, err
	}
	return v, nil
}

// AddVocabulary appends custom values. Fields left empty are sent empty.
func (c *Client) AddVocabulary(ctx context.Context, add wizard.VocabularyAddition) error {
	if add.Tags == nil {
		add.Tags = []string{}
	}
	body, err := json.Marshal(add)
	if err != nil {
		return fmt.Errorf("marshal vocabulary: %w", err)
	}
	_, err = c.do(ctx, http.MethodPut, c.endpoint("v1", "onboarding", "filters"), "application/json", bytes.NewReader(body))
	return err
}

type agentWire struct {
	wizard.AgentRecord
	Deployments json.RawMessage `json:"deployments"`
}

// Agent fetches a stored agent.
func (c *Client) Agent(ctx context.Context, id string) (wizard.AgentRecord, error) {
	var w agentWire
	if err := c.getJSON(ctx, SchemaAgent, c.endpoint("v1", "agents", id), &w); err != nil {
		return wizard.AgentRecord{}, err
	}
	rec := w.AgentRecord
	if len(w.Deployments) > 0 && string(w.Deployments) != "null" {
		opts, err := deployments.DecodeOptions(w.Deployments)
		if err != nil {
			return wizard.AgentRecord{}, &ParseError{Resource: SchemaAgent, Err: err}
		}
		rec.Deployments = opts
	}
	if rec.Assets == nil {
		rec.Assets = []assets.Record{}
	}
	return rec, nil
}

// Create persists a new agent and returns its id.
func (c *Client) Create(ctx context.Context, p wizard.Payload) (string, error) {
	return c.save(ctx, http.MethodPost, c.endpoint("v1", "agents"), p)
}

// Update replaces a stored agent.
func (c *Client) Update(ctx context.Context, id string, p wizard.Payload) error {
	_, err := c.save(ctx, http.MethodPut, c.endpoint("v1", "agents", id), p)
	return err
}

func (c *Client) save(ctx context.Context, method, endpoint string, p wizard.Payload) (string, error) {
	body, contentType, err := EncodeMultipart(p)
	if err != nil {
		return "", err
	}
	data, err := c.do(ctx, method, endpoint, contentType, body)
	if err != nil {
		return "", err
	}
	var saved struct {
		ID string `json:"id"`
	}
	if err := decode(SchemaSaved, data, &saved); err != nil {
		return "", err
	}
	c.log.Debug().Str("agent_id", saved.ID).Str("method", method).Msg("agent saved")
	return saved.ID, nil
}

// EncodeMultipart writes the payload as multipart/form-data: fields in name order, then
// attachments in payload order.
func EncodeMultipart(p wizard.Payload) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range p.FieldNames() {
		if err := mw.WriteField(name, p.Fields[name]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", name, err)
		}
	}
	for _, a := range p.Attachments {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, a.Field, a.FileName))
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create part %s: %w", a.FileName, err)
		}
		if _, err := part.Write(a.Data); err != nil {
			return nil, "", fmt.Errorf("write part %s: %w", a.FileName, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}
