package wizard

import (
	"fmt"
	"net/url"
	"strings"
)

// Mode selects between onboarding a new agent and editing a stored one.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

// Step numbers, 1-based.
const (
	StepBasics        = 1
	StepCapabilities  = 2
	StepAssets        = 3
	StepDocumentation = 4
	StepPreview       = 5
)

var stepTitles = map[int]string{
	StepBasics:        "Basics",
	StepCapabilities:  "Capabilities & deployments",
	StepAssets:        "Demo assets",
	StepDocumentation: "Documentation",
	StepPreview:       "Preview & submit",
}

// TotalSteps is the step count for the mode. Edit mode has no preview step.
func (m Mode) TotalSteps() int {
	if m == ModeEdit {
		return StepDocumentation
	}
	return StepPreview
}

// ParseMode accepts "create" or "edit".
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeCreate, "":
		return ModeCreate, nil
	case ModeEdit:
		return ModeEdit, nil
	}
	return "", fmt.Errorf("unknown wizard mode %q", s)
}

// StepTitle returns the header for step n.
func StepTitle(n int) string { return stepTitles[n] }

type rule func(d Draft) []FieldError

var stepRules = map[int][]rule{
	StepBasics:        {requireBasics, requirePersona},
	StepCapabilities:  {requireCapability},
	StepAssets:        {demoLinksAreURLs},
	StepDocumentation: {documentationURLs},
}

func required(field, label, value string) []FieldError {
	if strings.TrimSpace(value) == "" {
		return []FieldError{{Field: field, Message: label + " is required"}}
	}
	return nil
}

func requireBasics(d Draft) []FieldError {
	var errs []FieldError
	errs = append(errs, required("agent_name", "Agent name", d.Name)...)
	errs = append(errs, required("description", "Description", d.Description)...)
	errs = append(errs, required("agent_type", "Agent type", d.AgentType.Value)...)
	errs = append(errs, required("value_proposition", "Value proposition", d.ValueProposition.Value)...)
	return errs
}

func requirePersona(d Draft) []FieldError {
	if d.TargetPersonas.Len() == 0 {
		return []FieldError{{Field: "by_persona", Message: "Select at least one target persona"}}
	}
	return nil
}

func requireCapability(d Draft) []FieldError {
	if d.Capabilities.Len() == 0 {
		return []FieldError{{Field: "capability_ids", Message: "Select at least one capability"}}
	}
	return nil
}

func demoLinksAreURLs(d Draft) []FieldError {
	var errs []FieldError
	for i, link := range d.DemoLinks {
		if strings.TrimSpace(link) == "" {
			continue
		}
		if !IsWebURL(link) {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("demo_links[%d]", i),
				Message: fmt.Sprintf("Demo link %q must be an http or https URL", link),
			})
		}
	}
	return errs
}

func documentationURLs(d Draft) []FieldError {
	var errs []FieldError
	if u := strings.TrimSpace(d.Documentation.APIDocsURL); u != "" && !IsWebURL(u) {
		errs = append(errs, FieldError{Field: "api_docs_url", Message: "API documentation URL must be an http or https URL"})
	}
	for i, ref := range d.Documentation.References {
		if strings.TrimSpace(ref) == "" {
			continue
		}
		if !IsWebURL(ref) {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("related_links[%d]", i),
				Message: fmt.Sprintf("Reference link %q must be an http or https URL", ref),
			})
		}
	}
	return errs
}

// IsWebURL reports whether s is an absolute http(s) URL with a host.
func IsWebURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ValidateStep checks the rules owned by step n.
func ValidateStep(d Draft, n int) ValidationErrors {
	var errs ValidationErrors
	for _, r := range stepRules[n] {
		errs = append(errs, r(d)...)
	}
	return errs
}

// Validate runs every rule and returns all violations.
func Validate(d Draft) ValidationErrors {
	var errs ValidationErrors
	for n := StepBasics; n <= StepDocumentation; n++ {
		errs = append(errs, ValidateStep(d, n)...)
	}
	return errs
}
