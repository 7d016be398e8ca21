package wizard

import (
	"strings"

	"agentdock/services/assets"
	"agentdock/services/deployments"
)

// LocalURL returns where a staged, not yet uploaded file can be viewed.
type LocalURL func(index int, f File) string

// AssetRecords returns the stored asset records followed by one local record per staged file.
func (d Draft) AssetRecords(local LocalURL) []assets.Record {
	recs := make([]assets.Record, 0, len(d.Assets)+len(d.Files))
	recs = append(recs, d.Assets...)
	if local == nil {
		return recs
	}
	for i, f := range d.Files {
		u := local(i, f)
		if u == "" {
			continue
		}
		recs = append(recs, assets.Record{
			Name:      f.Name,
			AssetURL:  u,
			MediaType: f.ContentType,
			Local:     true,
			FileName:  f.Name,
		})
	}
	return recs
}

// PreviewCSV joins the stored preview URLs with the draft's demo links.
func (d Draft) PreviewCSV() string {
	parts := assets.SplitPreviewURLs(d.PreviewURLs)
	for _, l := range d.DemoLinks {
		if l = strings.TrimSpace(l); l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, ",")
}

// Assets classifies the draft's demo assets for display.
func (w *Wizard) Assets(c *assets.Classifier, local LocalURL) []assets.DisplayAsset {
	d := w.Draft()
	return c.Classify(d.AssetRecords(local), d.PreviewCSV())
}

// Preview is the read-only summary rendered on the preview step.
type Preview struct {
	Name             string
	Description      string
	AgentType        string
	ValueProposition string
	ROI              string
	Tags             []string
	Personas         []string
	BundledAgents    []string
	Capabilities     []string
	KeyFeatures      []string
	Deployments      []deployments.Deployment
	Assets           []assets.DisplayAsset
	SDKDetails       string
	APIDocsURL       string
	SecurityDetails  string
	ReadmeName       string
	References       []string
}

// Preview summarises the draft with the selected deployments and classified assets.
func (w *Wizard) Preview(c *assets.Classifier, local LocalURL) Preview {
	d := w.Draft()
	selected := w.resolver.Selected()
	deps := make([]deployments.Deployment, 0, len(selected))
	for _, o := range selected {
		deps = append(deps, o.Details())
	}

	readme := d.Documentation.ReadmeURL
	if d.Documentation.Readme != nil {
		readme = d.Documentation.Readme.Name
	}
	return Preview{
		Name:             d.Name,
		Description:      d.Description,
		AgentType:        d.AgentType.Value,
		ValueProposition: d.ValueProposition.Value,
		ROI:              d.ROI,
		Tags:             d.Tags.Values(),
		Personas:         d.TargetPersonas.Values(),
		BundledAgents:    d.BundledAgents.Values(),
		Capabilities:     d.Capabilities.Names(),
		KeyFeatures:      d.KeyFeatures,
		Deployments:      deps,
		Assets:           c.Classify(d.AssetRecords(local), d.PreviewCSV()),
		SDKDetails:       d.Documentation.SDKDetails,
		APIDocsURL:       d.Documentation.APIDocsURL,
		SecurityDetails:  d.Documentation.SecurityDetails,
		ReadmeName:       readme,
		References:       d.Documentation.References,
	}
}

// State is a point-in-time view of the wizard.
type State struct {
	Mode                Mode
	AgentID             string
	Step                int
	TotalSteps          int
	StepTitle           string
	Transitioning       bool
	Submitting          bool
	Closed              bool
	CanRetreat          bool
	Draft               Draft
	Capabilities        []Capability
	Deployments         []deployments.View
	PendingCapabilities []string
	Vocabulary          Vocabulary
	LastError           *SubmitError
}

// State snapshots the wizard.
func (w *Wizard) State() State {
	views, pending := w.resolver.Snapshot()

	w.mu.Lock()
	defer w.mu.Unlock()
	agentID := w.cfg.AgentID
	if w.submittedID != "" {
		agentID = w.submittedID
	}
	return State{
		Mode:                w.cfg.Mode,
		AgentID:             agentID,
		Step:                w.step,
		TotalSteps:          w.cfg.Mode.TotalSteps(),
		StepTitle:           StepTitle(w.step),
		Transitioning:       w.transitioningLocked(),
		Submitting:          w.submitting,
		Closed:              w.closed,
		CanRetreat:          !w.closed && (w.step > StepBasics || w.cfg.Mode == ModeCreate),
		Draft:               w.draft.Clone(),
		Capabilities:        w.capabilityListLocked(),
		Deployments:         views,
		PendingCapabilities: pending,
		Vocabulary:          w.vocab,
		LastError:           w.lastError,
	}
}
