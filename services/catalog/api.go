// Package catalog serves the capability and deployment directories, the onboarding
// vocabulary and agent persistence, including attachment uploads to object storage.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agentdock/pkg/bus"
)

const (
	defaultMaxUploadBytes = 64 << 20
	uploadTimeout         = 2 * time.Minute
)

// ErrNotFound is returned by a Repository when a record does not exist.
var ErrNotFound = errors.New("not found")

// Capability is a capability directory entry.
type Capability struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Deployment is a deployment candidate offered for a capability.
type Deployment struct {
	Provider       string `json:"provider" db:"provider"`
	ServiceName    string `json:"service_name" db:"service_name"`
	DeploymentType string `json:"deployment_type" db:"deployment_type"`
	Region         string `json:"region" db:"region"`
}

// Vocabulary is the onboarding reference vocabulary.
type Vocabulary struct {
	AgentTypes        []string `json:"agent_types"`
	ValuePropositions []string `json:"value_propositions"`
	Tags              []string `json:"tags"`
	TargetPersonas    []string `json:"target_personas"`
}

// Vocabulary kinds as stored.
const (
	KindAgentType        = "agent_type"
	KindValueProposition = "value_proposition"
	KindTag              = "tag"
	KindTargetPersona    = "target_persona"
)

// VocabularyEntry is one stored vocabulary value.
type VocabularyEntry struct {
	Kind  string
	Value string
}

// Documentation is the documentation block of an agent.
type Documentation struct {
	SDKDetails      string `json:"sdk_details"`
	APIDocsURL      string `json:"api_docs_url"`
	SampleInput     string `json:"sample_input"`
	SampleOutput    string `json:"sample_output"`
	SecurityDetails string `json:"security_details"`
	RelatedLinks    string `json:"related_links"`
	ReadmeURL       string `json:"readme_url"`
}

// Asset is an uploaded attachment of an agent.
type Asset struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	AssetURL  string    `json:"asset_url,omitempty"`
	FilePath  string    `json:"file_path,omitempty"`
	MediaType string    `json:"media_type,omitempty"`
}

// Agent is a stored agent. Multi-valued fields keep their delimited form.
type Agent struct {
	ID               uuid.UUID       `json:"id"`
	UserID           string          `json:"user_id"`
	Name             string          `json:"agent_name"`
	Description      string          `json:"description"`
	KeyFeatures      string          `json:"key_features"`
	ROI              string          `json:"roi"`
	AgentType        string          `json:"agent_type"`
	ValueProposition string          `json:"value_proposition"`
	Tags             string          `json:"tags"`
	ByPersona        string          `json:"by_persona"`
	BundledAgents    string          `json:"bundled_agents"`
	ByCapability     string          `json:"by_capability"`
	CapabilityIDs    string          `json:"capability_ids"`
	Capabilities     []Capability    `json:"capabilities"`
	Deployments      json.RawMessage `json:"deployments"`
	DemoLinks        string          `json:"demo_links"`
	PreviewURLs      string          `json:"preview_urls"`
	Documentation    Documentation   `json:"documentation"`
	Assets           []Asset         `json:"assets"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Repository is the persistence behind the catalog handlers.
type Repository interface {
	Capabilities(ctx context.Context) ([]Capability, error)
	Deployments(ctx context.Context, capabilityID string) ([]Deployment, error)
	Vocabulary(ctx context.Context) (Vocabulary, error)
	AddVocabulary(ctx context.Context, entries []VocabularyEntry) error
	Agent(ctx context.Context, id uuid.UUID) (Agent, error)
	CreateAgent(ctx context.Context, a Agent, uploads []Asset) error
	// UpdateAgent replaces the agent fields, appends uploads and returns the record as it
	// was before the write.
	UpdateAgent(ctx context.Context, a Agent, uploads []Asset) (Agent, error)
}

// ObjectStore receives attachment uploads.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key, contentType string, r io.Reader, size int64, sha256 string) error
}

// Config controls runtime behaviour for the catalog handlers.
type Config struct {
	Bucket string
	// StorageBaseURL prefixes object keys to form the stored asset URLs.
	StorageBaseURL string
	MaxUploadBytes int64
}

// API wires dependencies and configuration for HTTP handlers.
type API struct {
	repo    Repository
	objects ObjectStore
	bus     bus.Publisher
	config  Config
	log     zerolog.Logger
	now     func() time.Time
}

// New initialises the API. The publisher is optional.
func New(repo Repository, objects ObjectStore, publisher bus.Publisher, cfg Config, logger zerolog.Logger) (*API, error) {
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	if objects == nil {
		return nil, errors.New("object store is required")
	}
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}

	return &API{
		repo:    repo,
		objects: objects,
		bus:     publisher,
		config:  cfg,
		log:     logger,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}
