package console

import (
	"strings"

	"agentdock/services/assets"
	"agentdock/services/deployments"
	"agentdock/services/wizard"
)

type fileJSON struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URL         string `json:"url,omitempty"`
}

type draftJSON struct {
	Name             string               `json:"agent_name"`
	Description      string               `json:"description"`
	KeyFeatures      []string             `json:"key_features"`
	ROI              string               `json:"roi"`
	AgentType        wizard.Choice        `json:"agent_type"`
	ValueProposition wizard.Choice        `json:"value_proposition"`
	Tags             []string             `json:"tags"`
	BundledAgents    []string             `json:"bundled_agents"`
	TargetPersonas   []string             `json:"target_personas"`
	Capabilities     []wizard.Capability  `json:"capabilities"`
	DemoLinks        []string             `json:"demo_links"`
	Files            []fileJSON           `json:"files"`
	Documentation    wizard.Documentation `json:"documentation"`
	Assets           []assets.Record      `json:"assets"`
	PreviewURLs      string               `json:"preview_urls"`
}

func draftView(d wizard.Draft, local wizard.LocalURL) draftJSON {
	caps := make([]wizard.Capability, 0, d.Capabilities.Len())
	for _, id := range d.Capabilities.IDs() {
		caps = append(caps, wizard.Capability{ID: id, Name: d.Capabilities.Name(id)})
	}
	files := make([]fileJSON, 0, len(d.Files))
	for i, f := range d.Files {
		files = append(files, fileJSON{Name: f.Name, ContentType: f.ContentType, Size: f.Size, URL: local(i, f)})
	}
	return draftJSON{
		Name:             d.Name,
		Description:      d.Description,
		KeyFeatures:      nonNil(d.KeyFeatures),
		ROI:              d.ROI,
		AgentType:        d.AgentType,
		ValueProposition: d.ValueProposition,
		Tags:             nonNil(d.Tags.Values()),
		BundledAgents:    nonNil(d.BundledAgents.Values()),
		TargetPersonas:   nonNil(d.TargetPersonas.Values()),
		Capabilities:     caps,
		DemoLinks:        nonNil(d.DemoLinks),
		Files:            files,
		Documentation:    d.Documentation,
		Assets:           d.Assets,
		PreviewURLs:      d.PreviewURLs,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// draftPatch carries the fields a PATCH replaces; absent fields are left alone.
type draftPatch struct {
	Name             *string   `json:"agent_name"`
	Description      *string   `json:"description"`
	KeyFeatures      *[]string `json:"key_features"`
	ROI              *string   `json:"roi"`
	AgentType        *string   `json:"agent_type"`
	ValueProposition *string   `json:"value_proposition"`
	Tags             *[]string `json:"tags"`
	BundledAgents    *[]string `json:"bundled_agents"`
	TargetPersonas   *[]string `json:"target_personas"`
	DemoLinks        *[]string `json:"demo_links"`
	Documentation    *docPatch `json:"documentation"`
}

type docPatch struct {
	SDKDetails      *string   `json:"sdk_details"`
	APIDocsURL      *string   `json:"api_docs_url"`
	SampleInput     *string   `json:"sample_input"`
	SampleOutput    *string   `json:"sample_output"`
	SecurityDetails *string   `json:"security_details"`
	References      *[]string `json:"references"`
	RemoveReadme    bool      `json:"remove_readme"`
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func (p draftPatch) apply(d *wizard.Draft) {
	setString(&d.Name, p.Name)
	setString(&d.Description, p.Description)
	setString(&d.ROI, p.ROI)
	if p.KeyFeatures != nil {
		d.KeyFeatures = *p.KeyFeatures
	}
	if p.AgentType != nil {
		d.AgentType = wizard.Choice{Value: strings.TrimSpace(*p.AgentType)}
	}
	if p.ValueProposition != nil {
		d.ValueProposition = wizard.Choice{Value: strings.TrimSpace(*p.ValueProposition)}
	}
	if p.Tags != nil {
		d.Tags = wizard.NewStringSet(*p.Tags...)
	}
	if p.BundledAgents != nil {
		d.BundledAgents = wizard.NewStringSet(*p.BundledAgents...)
	}
	if p.TargetPersonas != nil {
		d.TargetPersonas = wizard.NewStringSet(*p.TargetPersonas...)
	}
	if p.DemoLinks != nil {
		d.DemoLinks = *p.DemoLinks
	}
	if doc := p.Documentation; doc != nil {
		setString(&d.Documentation.SDKDetails, doc.SDKDetails)
		setString(&d.Documentation.APIDocsURL, doc.APIDocsURL)
		setString(&d.Documentation.SampleInput, doc.SampleInput)
		setString(&d.Documentation.SampleOutput, doc.SampleOutput)
		setString(&d.Documentation.SecurityDetails, doc.SecurityDetails)
		if doc.References != nil {
			d.Documentation.References = *doc.References
		}
		if doc.RemoveReadme {
			d.Documentation.Readme = nil
		}
	}
}

type errorJSON struct {
	Category wizard.Category `json:"category"`
	Status   int             `json:"status,omitempty"`
	Message  string          `json:"message"`
}

type stateJSON struct {
	ID                  string              `json:"id"`
	Mode                wizard.Mode         `json:"mode"`
	AgentID             string              `json:"agent_id,omitempty"`
	Step                int                 `json:"step"`
	TotalSteps          int                 `json:"total_steps"`
	StepTitle           string              `json:"step_title"`
	Transitioning       bool                `json:"transitioning"`
	Submitting          bool                `json:"submitting"`
	Closed              bool                `json:"closed"`
	CanRetreat          bool                `json:"can_retreat"`
	Draft               draftJSON           `json:"draft"`
	Capabilities        []wizard.Capability `json:"capabilities"`
	Deployments         []deployments.View  `json:"deployments"`
	PendingCapabilities []string            `json:"pending_capabilities"`
	Vocabulary          wizard.Vocabulary   `json:"vocabulary"`
	LastError           *errorJSON          `json:"last_error,omitempty"`
	OpenError           string              `json:"open_error,omitempty"`
}

func stateView(s *session) stateJSON {
	st := s.wizard.State()
	out := stateJSON{
		ID:                  s.id,
		Mode:                st.Mode,
		AgentID:             st.AgentID,
		Step:                st.Step,
		TotalSteps:          st.TotalSteps,
		StepTitle:           st.StepTitle,
		Transitioning:       st.Transitioning,
		Submitting:          st.Submitting,
		Closed:              st.Closed,
		CanRetreat:          st.CanRetreat,
		Draft:               draftView(st.Draft, s.localURL),
		Capabilities:        st.Capabilities,
		Deployments:         st.Deployments,
		PendingCapabilities: nonNil(st.PendingCapabilities),
		Vocabulary:          st.Vocabulary,
		OpenError:           s.opened,
	}
	if st.LastError != nil {
		out.LastError = &errorJSON{Category: st.LastError.Category, Status: st.LastError.Status, Message: st.LastError.Message}
	}
	return out
}

type assetJSON struct {
	assets.DisplayAsset
	RetryURL string `json:"retry_url"`
}

func assetViews(items []assets.DisplayAsset) []assetJSON {
	out := make([]assetJSON, 0, len(items))
	for _, it := range items {
		out = append(out, assetJSON{DisplayAsset: it, RetryURL: it.URL})
	}
	return out
}

type previewJSON struct {
	Name             string                   `json:"agent_name"`
	Description      string                   `json:"description"`
	AgentType        string                   `json:"agent_type"`
	ValueProposition string                   `json:"value_proposition"`
	ROI              string                   `json:"roi"`
	Tags             []string                 `json:"tags"`
	Personas         []string                 `json:"target_personas"`
	BundledAgents    []string                 `json:"bundled_agents"`
	Capabilities     []string                 `json:"capabilities"`
	KeyFeatures      []string                 `json:"key_features"`
	Deployments      []deployments.Deployment `json:"deployments"`
	Assets           []assets.DisplayAsset    `json:"assets"`
	SDKDetails       string                   `json:"sdk_details"`
	APIDocsURL       string                   `json:"api_docs_url"`
	SecurityDetails  string                   `json:"security_details"`
	ReadmeName       string                   `json:"readme"`
	References       []string                 `json:"references"`
	Text             string                   `json:"text"`
}

func previewView(p wizard.Preview, text string) previewJSON {
	return previewJSON{
		Name:             p.Name,
		Description:      p.Description,
		AgentType:        p.AgentType,
		ValueProposition: p.ValueProposition,
		ROI:              p.ROI,
		Tags:             nonNil(p.Tags),
		Personas:         nonNil(p.Personas),
		BundledAgents:    nonNil(p.BundledAgents),
		Capabilities:     nonNil(p.Capabilities),
		KeyFeatures:      nonNil(p.KeyFeatures),
		Deployments:      p.Deployments,
		Assets:           p.Assets,
		SDKDetails:       p.SDKDetails,
		APIDocsURL:       p.APIDocsURL,
		SecurityDetails:  p.SecurityDetails,
		ReadmeName:       p.ReadmeName,
		References:       nonNil(p.References),
		Text:             text,
	}
}
