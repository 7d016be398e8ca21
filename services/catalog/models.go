package catalog

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type vocabularyModel struct {
	ID        int64     `gorm:"type:bigserial;primaryKey"`
	Kind      string    `gorm:"type:text;not null"`
	Value     string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func (vocabularyModel) TableName() string { return "vocabulary" }

type agentModel struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey"`
	UserID           string         `gorm:"type:text;not null"`
	Name             string         `gorm:"type:text;not null"`
	Description      string         `gorm:"type:text"`
	KeyFeatures      string         `gorm:"type:text"`
	ROI              string         `gorm:"column:roi;type:text"`
	AgentType        string         `gorm:"type:text"`
	ValueProposition string         `gorm:"type:text"`
	Tags             string         `gorm:"type:text"`
	ByPersona        string         `gorm:"type:text"`
	BundledAgents    string         `gorm:"type:text"`
	ByCapability     string         `gorm:"type:text"`
	CapabilityIDs    string         `gorm:"column:capability_ids;type:text"`
	Deployments      datatypes.JSON `gorm:"type:jsonb"`
	DemoLinks        string         `gorm:"type:text"`
	PreviewURLs      string         `gorm:"column:preview_urls;type:text"`
	SDKDetails       string         `gorm:"column:sdk_details;type:text"`
	APIDocsURL       string         `gorm:"column:api_docs_url;type:text"`
	SampleInput      string         `gorm:"type:text"`
	SampleOutput     string         `gorm:"type:text"`
	SecurityDetails  string         `gorm:"type:text"`
	RelatedLinks     string         `gorm:"type:text"`
	ReadmeURL        string         `gorm:"column:readme_url;type:text"`
	CreatedAt        time.Time      `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt        time.Time      `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

func (agentModel) TableName() string { return "agents" }

type agentAssetModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	AgentID   uuid.UUID `gorm:"type:uuid;not null"`
	Name      string    `gorm:"type:text"`
	AssetURL  string    `gorm:"column:asset_url;type:text"`
	FilePath  string    `gorm:"type:text"`
	MediaType string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func (agentAssetModel) TableName() string { return "agent_assets" }

func (m agentAssetModel) toAPI() Asset {
	return Asset{
		ID:        m.ID,
		Name:      m.Name,
		AssetURL:  m.AssetURL,
		FilePath:  m.FilePath,
		MediaType: m.MediaType,
	}
}

func assetModelsFor(agentID uuid.UUID, uploads []Asset) []agentAssetModel {
	out := make([]agentAssetModel, 0, len(uploads))
	for _, a := range uploads {
		id := a.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		out = append(out, agentAssetModel{
			ID:        id,
			AgentID:   agentID,
			Name:      a.Name,
			AssetURL:  a.AssetURL,
			FilePath:  a.FilePath,
			MediaType: a.MediaType,
		})
	}
	return out
}

func agentModelFrom(a Agent) agentModel {
	deps := datatypes.JSON(a.Deployments)
	if len(deps) == 0 {
		deps = datatypes.JSON("[]")
	}
	return agentModel{
		ID:               a.ID,
		UserID:           a.UserID,
		Name:             a.Name,
		Description:      a.Description,
		KeyFeatures:      a.KeyFeatures,
		ROI:              a.ROI,
		AgentType:        a.AgentType,
		ValueProposition: a.ValueProposition,
		Tags:             a.Tags,
		ByPersona:        a.ByPersona,
		BundledAgents:    a.BundledAgents,
		ByCapability:     a.ByCapability,
		CapabilityIDs:    a.CapabilityIDs,
		Deployments:      deps,
		DemoLinks:        a.DemoLinks,
		PreviewURLs:      a.PreviewURLs,
		SDKDetails:       a.Documentation.SDKDetails,
		APIDocsURL:       a.Documentation.APIDocsURL,
		SampleInput:      a.Documentation.SampleInput,
		SampleOutput:     a.Documentation.SampleOutput,
		SecurityDetails:  a.Documentation.SecurityDetails,
		RelatedLinks:     a.Documentation.RelatedLinks,
		ReadmeURL:        a.Documentation.ReadmeURL,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func (m agentModel) toAPI(assets []agentAssetModel) Agent {
	items := make([]Asset, 0, len(assets))
	for _, a := range assets {
		items = append(items, a.toAPI())
	}
	deps := json.RawMessage(m.Deployments)
	if len(deps) == 0 {
		deps = json.RawMessage("[]")
	}
	return Agent{
		ID:               m.ID,
		UserID:           m.UserID,
		Name:             m.Name,
		Description:      m.Description,
		KeyFeatures:      m.KeyFeatures,
		ROI:              m.ROI,
		AgentType:        m.AgentType,
		ValueProposition: m.ValueProposition,
		Tags:             m.Tags,
		ByPersona:        m.ByPersona,
		BundledAgents:    m.BundledAgents,
		ByCapability:     m.ByCapability,
		CapabilityIDs:    m.CapabilityIDs,
		Capabilities:     zipCapabilities(m.CapabilityIDs, m.ByCapability),
		Deployments:      deps,
		DemoLinks:        m.DemoLinks,
		PreviewURLs:      m.PreviewURLs,
		Documentation: Documentation{
			SDKDetails:      m.SDKDetails,
			APIDocsURL:      m.APIDocsURL,
			SampleInput:     m.SampleInput,
			SampleOutput:    m.SampleOutput,
			SecurityDetails: m.SecurityDetails,
			RelatedLinks:    m.RelatedLinks,
			ReadmeURL:       m.ReadmeURL,
		},
		Assets:    items,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// updates lists every writable column so empty values overwrite stored ones.
func (m agentModel) updates() map[string]any {
	return map[string]any{
		"user_id":           m.UserID,
		"name":              m.Name,
		"description":       m.Description,
		"key_features":      m.KeyFeatures,
		"roi":               m.ROI,
		"agent_type":        m.AgentType,
		"value_proposition": m.ValueProposition,
		"tags":              m.Tags,
		"by_persona":        m.ByPersona,
		"bundled_agents":    m.BundledAgents,
		"by_capability":     m.ByCapability,
		"capability_ids":    m.CapabilityIDs,
		"deployments":       m.Deployments,
		"demo_links":        m.DemoLinks,
		"preview_urls":      m.PreviewURLs,
		"sdk_details":       m.SDKDetails,
		"api_docs_url":      m.APIDocsURL,
		"sample_input":      m.SampleInput,
		"sample_output":     m.SampleOutput,
		"security_details":  m.SecurityDetails,
		"related_links":     m.RelatedLinks,
		"readme_url":        m.ReadmeURL,
	}
}

// zipCapabilities pairs the comma-separated ids with the ", "-joined names. When the
// counts disagree the ids stand in for the names.
func zipCapabilities(ids, names string) []Capability {
	idList := splitTrim(ids, ",")
	nameList := splitTrim(names, ", ")
	out := make([]Capability, 0, len(idList))
	for i, id := range idList {
		name := id
		if len(nameList) == len(idList) {
			name = nameList[i]
		}
		out = append(out, Capability{ID: id, Name: name})
	}
	return out
}

func splitTrim(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// snapshot flattens the agent into the field map carried on bus events.
func (a Agent) snapshot() map[string]any {
	if a.ID == uuid.Nil {
		return nil
	}
	var deps any = []any{}
	if len(a.Deployments) > 0 {
		_ = json.Unmarshal(a.Deployments, &deps)
	}
	return map[string]any{
		"agent_name":        a.Name,
		"description":       a.Description,
		"key_features":      a.KeyFeatures,
		"roi":               a.ROI,
		"agent_type":        a.AgentType,
		"value_proposition": a.ValueProposition,
		"tags":              a.Tags,
		"by_persona":        a.ByPersona,
		"bundled_agents":    a.BundledAgents,
		"by_capability":     a.ByCapability,
		"capability_ids":    a.CapabilityIDs,
		"deployments":       deps,
		"demo_links":        a.DemoLinks,
		"preview_urls":      a.PreviewURLs,
		"sdk_details":       a.Documentation.SDKDetails,
		"api_docs_url":      a.Documentation.APIDocsURL,
		"sample_input":      a.Documentation.SampleInput,
		"sample_output":     a.Documentation.SampleOutput,
		"security_details":  a.Documentation.SecurityDetails,
		"related_links":     a.Documentation.RelatedLinks,
		"readme_url":        a.Documentation.ReadmeURL,
	}
}
