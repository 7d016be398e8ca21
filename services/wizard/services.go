package wizard

import (
	"context"

	"agentdock/services/assets"
	"agentdock/services/deployments"
)

// CapabilityDirectory lists the capabilities an agent can be associated with.
type CapabilityDirectory interface {
	Capabilities(ctx context.Context) ([]Capability, error)
}

// VocabularyService reads and extends the onboarding reference vocabulary.
type VocabularyService interface {
	Vocabulary(ctx context.Context) (Vocabulary, error)
	AddVocabulary(ctx context.Context, add VocabularyAddition) error
}

// AgentStore fetches and persists agent records.
type AgentStore interface {
	Agent(ctx context.Context, id string) (AgentRecord, error)
	Create(ctx context.Context, p Payload) (string, error)
	Update(ctx context.Context, id string, p Payload) error
}

// Notifier shows the success notice after a create.
type Notifier interface {
	Success(ctx context.Context, n Notice) error
}

// Notice is handed to the Notifier after a successful create.
type Notice struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
}

// StoredDocumentation is the documentation record nested in a stored agent.
type StoredDocumentation struct {
	SDKDetails      string `json:"sdk_details"`
	APIDocsURL      string `json:"api_docs_url"`
	SampleInput     string `json:"sample_input"`
	SampleOutput    string `json:"sample_output"`
	SecurityDetails string `json:"security_details"`
	RelatedLinks    string `json:"related_links"`
	ReadmeURL       string `json:"readme_url"`
}

// AgentRecord is a stored agent as returned by the AgentStore. Multi-valued fields keep
// their delimited wire form; hydration splits them.
type AgentRecord struct {
	ID               string               `json:"id"`
	UserID           string               `json:"user_id"`
	Name             string               `json:"agent_name"`
	Description      string               `json:"description"`
	KeyFeatures      string               `json:"key_features"`
	ROI              string               `json:"roi"`
	AgentType        string               `json:"agent_type"`
	ValueProposition string               `json:"value_proposition"`
	Tags             string               `json:"tags"`
	ByPersona        string               `json:"by_persona"`
	BundledAgents    string               `json:"bundled_agents"`
	DemoLinks        string               `json:"demo_links"`
	Capabilities     []Capability         `json:"capabilities"`
	Deployments      []deployments.Option `json:"-"`
	Documentation    StoredDocumentation  `json:"documentation"`
	Assets           []assets.Record      `json:"assets"`
	PreviewURLs      string               `json:"preview_urls"`
}
