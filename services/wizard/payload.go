package wizard

import (
	"fmt"
	"sort"
	"strings"

	"agentdock/services/deployments"
)

// Payload field names.
const (
	FieldUserID           = "user_id"
	FieldAgentName        = "agent_name"
	FieldDescription      = "description"
	FieldKeyFeatures      = "key_features"
	FieldROI              = "roi"
	FieldAgentType        = "agent_type"
	FieldValueProposition = "value_proposition"
	FieldTags             = "tags"
	FieldByPersona        = "by_persona"
	FieldBundledAgents    = "bundled_agents"
	FieldByCapability     = "by_capability"
	FieldCapabilityIDs    = "capability_ids"
	FieldDeployments      = "deployments"
	FieldDemoLinks        = "demo_links"
	FieldPreviewURLs      = "preview_urls"
	FieldSDKDetails       = "sdk_details"
	FieldAPIDocsURL       = "api_docs_url"
	FieldSampleInput      = "sample_input"
	FieldSampleOutput     = "sample_output"
	FieldSecurityDetails  = "security_details"
	FieldRelatedLinks     = "related_links"

	AttachmentReadme = "readme"
	AttachmentFiles  = "files"
)

// Attachment is a binary part of the payload.
type Attachment struct {
	Field       string
	FileName    string
	ContentType string
	Data        []byte
}

// Payload is the flattened persistence form of a draft.
type Payload struct {
	Fields      map[string]string
	Attachments []Attachment
}

// Get returns a field value.
func (p Payload) Get(name string) string { return p.Fields[name] }

// FieldNames returns the field names sorted.
func (p Payload) FieldNames() []string {
	names := make([]string, 0, len(p.Fields))
	for k := range p.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// BuildPayload flattens d with only the selected deployment options.
func BuildPayload(d Draft, userID string, selected []deployments.Option) (Payload, error) {
	deps, err := deployments.EncodeSelected(selected)
	if err != nil {
		return Payload{}, fmt.Errorf("encode deployments: %w", err)
	}

	fields := map[string]string{
		FieldUserID:           userID,
		FieldAgentName:        strings.TrimSpace(d.Name),
		FieldDescription:      strings.TrimSpace(d.Description),
		FieldKeyFeatures:      joinNonEmpty(d.KeyFeatures, semicolonSep),
		FieldROI:              strings.TrimSpace(d.ROI),
		FieldAgentType:        strings.TrimSpace(d.AgentType.Value),
		FieldValueProposition: strings.TrimSpace(d.ValueProposition.Value),
		FieldTags:             joinNonEmpty(d.Tags.Values(), commaSep),
		FieldByPersona:        joinNonEmpty(d.TargetPersonas.Values(), semicolonSep),
		FieldBundledAgents:    joinNonEmpty(d.BundledAgents.Values(), commaSep),
		FieldByCapability:     joinNonEmpty(d.Capabilities.Names(), capNameSep),
		FieldCapabilityIDs:    joinNonEmpty(d.Capabilities.IDs(), commaSep),
		FieldDeployments:      deps,
		FieldDemoLinks:        joinNonEmpty(d.DemoLinks, commaSep),
		FieldPreviewURLs:      strings.TrimSpace(d.PreviewURLs),
		FieldSDKDetails:       strings.TrimSpace(d.Documentation.SDKDetails),
		FieldAPIDocsURL:       strings.TrimSpace(d.Documentation.APIDocsURL),
		FieldSampleInput:      d.Documentation.SampleInput,
		FieldSampleOutput:     d.Documentation.SampleOutput,
		FieldSecurityDetails:  strings.TrimSpace(d.Documentation.SecurityDetails),
		FieldRelatedLinks:     joinNonEmpty(d.Documentation.References, commaSep),
	}

	var atts []Attachment
	if r := d.Documentation.Readme; r != nil {
		atts = append(atts, Attachment{Field: AttachmentReadme, FileName: r.Name, ContentType: r.ContentType, Data: r.Data})
	}
	for _, f := range d.Files {
		atts = append(atts, Attachment{Field: AttachmentFiles, FileName: f.Name, ContentType: f.ContentType, Data: f.Data})
	}
	return Payload{Fields: fields, Attachments: atts}, nil
}
