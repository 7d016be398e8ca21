// Package deployments resolves the infrastructure deployment options offered for an agent's
// capabilities, merges them with options the user typed in, and tracks which ones are
// selected for submission.
package deployments

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Deployment is the shared shape of fetched and manual options.
type Deployment struct {
	Provider       string `json:"service_provider"`
	ServiceName    string `json:"service_name"`
	DeploymentType string `json:"deployment_type"`
	Region         string `json:"cloud_region"`
	CapabilityID   string `json:"capability_id"`
	CapabilityName string `json:"capability_name"`
}

// Key identifies a deployment for deduplication.
type Key struct {
	CapabilityID   string
	Provider       string
	ServiceName    string
	DeploymentType string
}

// Key returns the dedup key. Comparison is whitespace- and case-insensitive.
func (d Deployment) Key() Key {
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	return Key{
		CapabilityID:   strings.TrimSpace(d.CapabilityID),
		Provider:       norm(d.Provider),
		ServiceName:    norm(d.ServiceName),
		DeploymentType: norm(d.DeploymentType),
	}
}

func (d Deployment) trimmed() Deployment {
	return Deployment{
		Provider:       strings.TrimSpace(d.Provider),
		ServiceName:    strings.TrimSpace(d.ServiceName),
		DeploymentType: strings.TrimSpace(d.DeploymentType),
		Region:         strings.TrimSpace(d.Region),
		CapabilityID:   strings.TrimSpace(d.CapabilityID),
		CapabilityName: strings.TrimSpace(d.CapabilityName),
	}
}

// Option is either Fetched or Manual.
type Option interface {
	Details() Deployment
	isOption()
}

// Fetched is an option retrieved from the deployment directory for a capability.
type Fetched struct{ Deployment }

// Manual is an option the user entered by hand.
type Manual struct{ Deployment }

func (f Fetched) Details() Deployment { return f.Deployment }
func (m Manual) Details() Deployment  { return m.Deployment }
func (Fetched) isOption()             {}
func (Manual) isOption()              {}

// Origin names the variant of o for display and wire encoding.
func Origin(o Option) string {
	switch o.(type) {
	case Fetched:
		return "fetched"
	case Manual:
		return "manual"
	default:
		panic(fmt.Sprintf("deployments: unknown option type %T", o))
	}
}

// Candidate is one record returned by the deployment directory.
type Candidate struct {
	Provider       string `json:"provider"`
	ServiceName    string `json:"service_name"`
	DeploymentType string `json:"deployment_type"`
	Region         string `json:"region"`
}

// ForCapability attaches the owning capability to a directory candidate.
func (c Candidate) ForCapability(id, name string) Fetched {
	return Fetched{Deployment{
		Provider:       c.Provider,
		ServiceName:    c.ServiceName,
		DeploymentType: c.DeploymentType,
		Region:         c.Region,
		CapabilityID:   id,
		CapabilityName: name,
	}.trimmed()}
}

type wireOption struct {
	Deployment
	Manual bool `json:"is_manual"`
}

// EncodeSelected renders options as the JSON array the persistence service expects. An
// empty selection encodes as "[]".
func EncodeSelected(opts []Option) (string, error) {
	wire := make([]wireOption, 0, len(opts))
	for _, o := range opts {
		_, manual := o.(Manual)
		wire = append(wire, wireOption{Deployment: o.Details(), Manual: manual})
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("encode deployments: %w", err)
	}
	return string(data), nil
}

// DecodeOptions parses the stored JSON array back into options.
func DecodeOptions(data []byte) ([]Option, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var wire []wireOption
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode deployments: %w", err)
	}
	out := make([]Option, 0, len(wire))
	for _, w := range wire {
		if w.Manual {
			out = append(out, Manual{w.Deployment})
		} else {
			out = append(out, Fetched{w.Deployment})
		}
	}
	return out, nil
}
