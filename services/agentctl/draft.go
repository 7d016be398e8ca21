package agentctl

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"agentdock/services/deployments"
	"agentdock/services/wizard"
)

// DraftFile is the YAML form of an agent draft. Absent fields leave the wizard's value
// untouched, so the same format serves as an edit patch.
type DraftFile struct {
	Name             *string             `yaml:"agent_name"`
	Description      *string             `yaml:"description"`
	KeyFeatures      []string            `yaml:"key_features"`
	ROI              *string             `yaml:"roi"`
	AgentType        *string             `yaml:"agent_type"`
	ValueProposition *string             `yaml:"value_proposition"`
	Tags             []string            `yaml:"tags"`
	BundledAgents    []string            `yaml:"bundled_agents"`
	TargetPersonas   []string            `yaml:"target_personas"`
	Capabilities     []string            `yaml:"capabilities"`
	SelectFetched    bool                `yaml:"select_fetched"`
	Deployments      []DeploymentEntry   `yaml:"deployments"`
	DemoLinks        []string            `yaml:"demo_links"`
	Files            []string            `yaml:"files"`
	Documentation    *DocumentationEntry `yaml:"documentation"`

	// dir resolves relative file paths.
	dir string
}

// DeploymentEntry is a manual deployment option. Capability may be an id or a name.
type DeploymentEntry struct {
	Provider       string `yaml:"provider"`
	ServiceName    string `yaml:"service_name"`
	DeploymentType string `yaml:"deployment_type"`
	Region         string `yaml:"region"`
	Capability     string `yaml:"capability"`
}

// DocumentationEntry mirrors the documentation step.
type DocumentationEntry struct {
	SDKDetails      *string  `yaml:"sdk_details"`
	APIDocsURL      *string  `yaml:"api_docs_url"`
	SampleInput     *string  `yaml:"sample_input"`
	SampleOutput    *string  `yaml:"sample_output"`
	SecurityDetails *string  `yaml:"security_details"`
	References      []string `yaml:"references"`
	Readme          string   `yaml:"readme"`
}

// LoadDraft reads a draft file. Attachment paths are resolved against its directory.
func LoadDraft(path string) (DraftFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DraftFile{}, fmt.Errorf("read draft: %w", err)
	}
	var d DraftFile
	if err := yaml.Unmarshal(data, &d); err != nil {
		return DraftFile{}, fmt.Errorf("parse draft %s: %w", path, err)
	}
	d.dir = filepath.Dir(path)
	return d, nil
}

func (f DraftFile) readFile(path string) (wizard.File, error) {
	if !filepath.IsAbs(path) && f.dir != "" {
		path = filepath.Join(f.dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return wizard.File{}, fmt.Errorf("read attachment: %w", err)
	}
	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return wizard.File{Name: filepath.Base(path), ContentType: ct, Size: int64(len(data)), Data: data}, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

// Apply writes the draft into w: fields first, then capabilities, then deployments once the
// capability fetches have settled.
func (f DraftFile) Apply(w *wizard.Wizard) error {
	files := make([]wizard.File, 0, len(f.Files))
	for _, p := range f.Files {
		file, err := f.readFile(p)
		if err != nil {
			return err
		}
		files = append(files, file)
	}
	var readme *wizard.File
	if f.Documentation != nil && f.Documentation.Readme != "" {
		file, err := f.readFile(f.Documentation.Readme)
		if err != nil {
			return err
		}
		readme = &file
	}

	err := w.Update(func(d *wizard.Draft) {
		setString(&d.Name, f.Name)
		setString(&d.Description, f.Description)
		setString(&d.ROI, f.ROI)
		if f.AgentType != nil {
			d.AgentType = wizard.Choice{Value: strings.TrimSpace(*f.AgentType)}
		}
		if f.ValueProposition != nil {
			d.ValueProposition = wizard.Choice{Value: strings.TrimSpace(*f.ValueProposition)}
		}
		if f.KeyFeatures != nil {
			d.KeyFeatures = f.KeyFeatures
		}
		if f.Tags != nil {
			d.Tags = wizard.NewStringSet(f.Tags...)
		}
		if f.BundledAgents != nil {
			d.BundledAgents = wizard.NewStringSet(f.BundledAgents...)
		}
		if f.TargetPersonas != nil {
			d.TargetPersonas = wizard.NewStringSet(f.TargetPersonas...)
		}
		if f.DemoLinks != nil {
			d.DemoLinks = f.DemoLinks
		}
		d.Files = append(d.Files, files...)
		if doc := f.Documentation; doc != nil {
			setString(&d.Documentation.SDKDetails, doc.SDKDetails)
			setString(&d.Documentation.APIDocsURL, doc.APIDocsURL)
			setString(&d.Documentation.SampleInput, doc.SampleInput)
			setString(&d.Documentation.SampleOutput, doc.SampleOutput)
			setString(&d.Documentation.SecurityDetails, doc.SecurityDetails)
			if doc.References != nil {
				d.Documentation.References = doc.References
			}
			if readme != nil {
				d.Documentation.Readme = readme
			}
		}
	})
	if err != nil {
		return err
	}

	if f.Capabilities != nil {
		if err := f.applyCapabilities(w); err != nil {
			return err
		}
	}
	w.Settle()

	if f.SelectFetched {
		if err := w.SelectAllDeployments(true); err != nil {
			return err
		}
	}
	for _, entry := range f.Deployments {
		capID := ""
		if entry.Capability != "" {
			id, err := resolveCapability(w.Capabilities(), entry.Capability)
			if err != nil {
				return err
			}
			capID = id
		}
		_, err := w.AddDeployment(deployments.Deployment{
			Provider:       entry.Provider,
			ServiceName:    entry.ServiceName,
			DeploymentType: entry.DeploymentType,
			Region:         entry.Region,
			CapabilityID:   capID,
		})
		if err != nil {
			return fmt.Errorf("deployment %s/%s: %w", entry.Provider, entry.ServiceName, err)
		}
	}
	return nil
}

// applyCapabilities makes the selection equal to the listed capabilities.
func (f DraftFile) applyCapabilities(w *wizard.Wizard) error {
	catalog := w.Capabilities()
	want := make(map[string]struct{}, len(f.Capabilities))
	order := make([]string, 0, len(f.Capabilities))
	for _, ref := range f.Capabilities {
		id, err := resolveCapability(catalog, ref)
		if err != nil {
			return err
		}
		if _, dup := want[id]; !dup {
			want[id] = struct{}{}
			order = append(order, id)
		}
	}

	current := w.Draft().Capabilities
	for _, id := range current.IDs() {
		if _, keep := want[id]; !keep {
			if _, err := w.ToggleCapability(id); err != nil {
				return err
			}
		}
	}
	for _, id := range order {
		if current.Has(id) {
			continue
		}
		if _, err := w.ToggleCapability(id); err != nil {
			return err
		}
	}
	return nil
}

func resolveCapability(catalog []wizard.Capability, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	for _, c := range catalog {
		if c.ID == ref {
			return c.ID, nil
		}
	}
	for _, c := range catalog {
		if strings.EqualFold(strings.TrimSpace(c.Name), ref) {
			return c.ID, nil
		}
	}
	return "", errors.Join(wizard.ErrUnknownCapability, fmt.Errorf("no capability named %q", ref))
}
