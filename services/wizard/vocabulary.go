package wizard

import (
	"slices"
	"strings"
)

// Vocabulary is the onboarding reference vocabulary.
type Vocabulary struct {
	AgentTypes        []string `json:"agent_types"`
	ValuePropositions []string `json:"value_propositions"`
	Tags              []string `json:"tags"`
	TargetPersonas    []string `json:"target_personas"`
}

// VocabularyAddition appends user-introduced values. Missing fields are sent empty.
type VocabularyAddition struct {
	AgentType        string   `json:"agent_type"`
	ValueProposition string   `json:"value_proposition"`
	Tags             []string `json:"tags"`
}

// Empty reports whether there is nothing to add.
func (a VocabularyAddition) Empty() bool {
	return a.AgentType == "" && a.ValueProposition == "" && len(a.Tags) == 0
}

func containsFold(list []string, v string) bool {
	v = strings.TrimSpace(v)
	return slices.ContainsFunc(list, func(s string) bool { return strings.EqualFold(strings.TrimSpace(s), v) })
}

// Fallbacks are the tables used when a directory service is unavailable.
type Fallbacks struct {
	Vocabulary   Vocabulary
	Capabilities []Capability
}

// DefaultFallbacks returns the built-in fallback tables.
func DefaultFallbacks() Fallbacks {
	return Fallbacks{
		Vocabulary: Vocabulary{
			AgentTypes: []string{
				"Autonomous Agent",
				"Conversational Assistant",
				"Workflow Automation",
				"Data Analysis",
				"Multi-Agent System",
			},
			ValuePropositions: []string{
				"Cost Reduction",
				"Productivity",
				"Revenue Growth",
				"Risk Mitigation",
				"Customer Experience",
			},
			Tags: []string{
				"AI/ML",
				"Cloud",
				"Analytics",
				"Automation",
				"Security",
				"NLP",
				"Computer Vision",
			},
			TargetPersonas: []string{
				"Developer",
				"Data Scientist",
				"Business Analyst",
				"IT Operations",
				"Executive",
			},
		},
		Capabilities: []Capability{
			{ID: "document-processing", Name: "Document Processing"},
			{ID: "conversational-ai", Name: "Conversational AI"},
			{ID: "data-extraction", Name: "Data Extraction"},
			{ID: "image-analysis", Name: "Image Analysis"},
			{ID: "code-generation", Name: "Code Generation"},
			{ID: "search-retrieval", Name: "Search & Retrieval"},
		},
	}
}

// withFallback fills empty lists from fb.
func (v Vocabulary) withFallback(fb Vocabulary) Vocabulary {
	pick := func(a, b []string) []string {
		if len(a) > 0 {
			return a
		}
		return slices.Clone(b)
	}
	return Vocabulary{
		AgentTypes:        pick(v.AgentTypes, fb.AgentTypes),
		ValuePropositions: pick(v.ValuePropositions, fb.ValuePropositions),
		Tags:              pick(v.Tags, fb.Tags),
		TargetPersonas:    pick(v.TargetPersonas, fb.TargetPersonas),
	}
}

// additions returns the draft values missing from v.
func (v Vocabulary) additions(d Draft) VocabularyAddition {
	var add VocabularyAddition
	if val := strings.TrimSpace(d.AgentType.Value); val != "" && !containsFold(v.AgentTypes, val) {
		add.AgentType = val
	}
	if val := strings.TrimSpace(d.ValueProposition.Value); val != "" && !containsFold(v.ValuePropositions, val) {
		add.ValueProposition = val
	}
	for _, tag := range d.Tags.Values() {
		if !containsFold(v.Tags, tag) {
			add.Tags = append(add.Tags, tag)
		}
	}
	return add
}
