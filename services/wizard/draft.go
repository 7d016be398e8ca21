package wizard

import (
	"slices"
	"strings"

	"agentdock/services/assets"
)

// StringSet is an insertion-ordered set of trimmed, non-empty strings.
type StringSet struct {
	items []string
}

// NewStringSet builds a set from values, dropping blanks and duplicates.
func NewStringSet(values ...string) StringSet {
	var s StringSet
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts v and reports whether it was new.
func (s *StringSet) Add(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" || s.Has(v) {
		return false
	}
	s.items = append(s.items, v)
	return true
}

// Remove deletes v and reports whether it was present.
func (s *StringSet) Remove(v string) bool {
	v = strings.TrimSpace(v)
	for i, it := range s.items {
		if it == v {
			s.items = slices.Delete(s.items, i, i+1)
			return true
		}
	}
	return false
}

// Toggle adds v when absent and removes it otherwise.
func (s *StringSet) Toggle(v string) {
	if !s.Remove(v) {
		s.Add(v)
	}
}

// Has reports membership.
func (s StringSet) Has(v string) bool {
	return slices.Contains(s.items, strings.TrimSpace(v))
}

// Values returns a copy in insertion order.
func (s StringSet) Values() []string { return slices.Clone(s.items) }

// Len is the number of members.
func (s StringSet) Len() int { return len(s.items) }

// Equal compares membership, ignoring order.
func (s StringSet) Equal(o StringSet) bool {
	if len(s.items) != len(o.items) {
		return false
	}
	for _, it := range s.items {
		if !o.Has(it) {
			return false
		}
	}
	return true
}

func (s StringSet) clone() StringSet { return StringSet{items: slices.Clone(s.items)} }

// Choice is a categorical value drawn from the reference vocabulary or typed by the user.
type Choice struct {
	Value  string `json:"value"`
	Custom bool   `json:"custom"`
}

// Capability is one entry of the capability directory.
type Capability struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CapabilitySelection is the ordered list of selected capability ids with their names.
type CapabilitySelection struct {
	ids   []string
	names map[string]string
}

// Has reports whether id is selected.
func (c CapabilitySelection) Has(id string) bool { return slices.Contains(c.ids, id) }

// Add appends id when absent.
func (c *CapabilitySelection) Add(id, name string) bool {
	if id == "" || c.Has(id) {
		return false
	}
	if c.names == nil {
		c.names = make(map[string]string)
	}
	c.ids = append(c.ids, id)
	c.names[id] = name
	return true
}

// Remove drops id.
func (c *CapabilitySelection) Remove(id string) bool {
	for i, it := range c.ids {
		if it == id {
			c.ids = slices.Delete(c.ids, i, i+1)
			delete(c.names, id)
			return true
		}
	}
	return false
}

// IDs returns the selected ids in order.
func (c CapabilitySelection) IDs() []string { return slices.Clone(c.ids) }

// Name returns the display name recorded for id.
func (c CapabilitySelection) Name(id string) string { return c.names[id] }

// Names returns display names in selection order, falling back to the id.
func (c CapabilitySelection) Names() []string {
	out := make([]string, 0, len(c.ids))
	for _, id := range c.ids {
		if n := c.names[id]; n != "" {
			out = append(out, n)
		} else {
			out = append(out, id)
		}
	}
	return out
}

// Len is the number of selected capabilities.
func (c CapabilitySelection) Len() int { return len(c.ids) }

func (c CapabilitySelection) clone() CapabilitySelection {
	out := CapabilitySelection{ids: slices.Clone(c.ids), names: make(map[string]string, len(c.names))}
	for k, v := range c.names {
		out.names[k] = v
	}
	return out
}

// File is an attachment staged in the wizard.
type File struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Data        []byte `json:"-"`
}

// Documentation groups the documentation step fields.
type Documentation struct {
	SDKDetails      string   `json:"sdk_details"`
	APIDocsURL      string   `json:"api_docs_url"`
	SampleInput     string   `json:"sample_input"`
	SampleOutput    string   `json:"sample_output"`
	SecurityDetails string   `json:"security_details"`
	Readme          *File    `json:"readme,omitempty"`
	ReadmeURL       string   `json:"readme_url,omitempty"`
	References      []string `json:"references"`
}

// Draft is the agent record being assembled by the wizard.
type Draft struct {
	Name             string
	Description      string
	KeyFeatures      []string
	ROI              string
	AgentType        Choice
	ValueProposition Choice
	Tags             StringSet
	BundledAgents    StringSet
	TargetPersonas   StringSet
	Capabilities     CapabilitySelection
	DemoLinks        []string
	Files            []File
	Documentation    Documentation

	// Assets and PreviewURLs are carried over from the stored agent in edit mode.
	Assets      []assets.Record
	PreviewURLs string
}

// Clone returns a deep copy so callers cannot mutate wizard state.
func (d Draft) Clone() Draft {
	out := d
	out.KeyFeatures = slices.Clone(d.KeyFeatures)
	out.Tags = d.Tags.clone()
	out.BundledAgents = d.BundledAgents.clone()
	out.TargetPersonas = d.TargetPersonas.clone()
	out.Capabilities = d.Capabilities.clone()
	out.DemoLinks = slices.Clone(d.DemoLinks)
	out.Files = slices.Clone(d.Files)
	out.Assets = slices.Clone(d.Assets)
	out.Documentation.References = slices.Clone(d.Documentation.References)
	if d.Documentation.Readme != nil {
		readme := *d.Documentation.Readme
		out.Documentation.Readme = &readme
	}
	return out
}
