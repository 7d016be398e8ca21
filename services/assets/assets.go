// Package assets turns the two independently sourced demo-asset inputs of an agent (discrete
// asset records and a comma-separated preview URL string) into one ordered, de-duplicated
// sequence of display assets classified as video or image.
package assets

import (
	"fmt"
	"strings"
)

// Kind is the media kind a display asset renders as.
type Kind string

const (
	KindVideo Kind = "video"
	KindImage Kind = "image"
)

// Source records which input produced a display asset.
type Source string

const (
	SourceAsset   Source = "asset"
	SourcePreview Source = "preview"
)

// KeyMode selects how URLs are reduced to dedup keys.
type KeyMode string

const (
	// KeyCanonical drops scheme and fragment everywhere and the query of storage objects, so
	// signed or cache-busted variants of one stored object collapse. Other hosts keep their
	// query, and YouTube URLs key by video id.
	KeyCanonical KeyMode = "canonical"
	// KeyExact keeps the query string.
	KeyExact KeyMode = "exact"
)

// DefaultProxyPath is the same-origin endpoint storage URLs are routed through.
const DefaultProxyPath = "/v1/assets/proxy"

// Record is one persisted (or locally staged) demo asset. The URL fields are consulted in
// order: AssetURL, FilePath, DemoLink, Link.
type Record struct {
	ID        string `json:"id,omitempty" yaml:"id,omitempty"`
	Name      string `json:"name" yaml:"name"`
	AssetURL  string `json:"asset_url,omitempty" yaml:"asset_url,omitempty"`
	FilePath  string `json:"file_path,omitempty" yaml:"file_path,omitempty"`
	DemoLink  string `json:"demo_link,omitempty" yaml:"demo_link,omitempty"`
	Link      string `json:"link,omitempty" yaml:"link,omitempty"`
	MediaType string `json:"media_type,omitempty" yaml:"media_type,omitempty"`

	// Local marks a file staged in the current session but not yet uploaded. Its URL is
	// served as-is and FileName drives classification.
	Local    bool   `json:"local,omitempty" yaml:"local,omitempty"`
	FileName string `json:"file_name,omitempty" yaml:"file_name,omitempty"`
}

// URL returns the first non-empty URL field in priority order.
func (r Record) URL() string {
	for _, v := range []string{r.AssetURL, r.FilePath, r.DemoLink, r.Link} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// DisplayAsset is one entry of the classifier output.
type DisplayAsset struct {
	URL    string `json:"url"`
	Kind   Kind   `json:"kind"`
	Source Source `json:"source"`
	Name   string `json:"name,omitempty"`
	Local  bool   `json:"local,omitempty"`
}

// IsVideo reports whether the asset renders in a video player.
func (d DisplayAsset) IsVideo() bool { return d.Kind == KindVideo }

// Config controls URL normalization and dedup keys.
type Config struct {
	// ProxyPath is prefixed to storage URLs; defaults to DefaultProxyPath.
	ProxyPath string
	// StorageBaseURL expands path-like values (agents/1/demo.mp4) to full storage URLs.
	StorageBaseURL string
	// StorageHosts lists self-hosted storage endpoints in addition to AWS S3 hosts.
	StorageHosts []string
	KeyMode      KeyMode
}

func (c Config) withDefaults() Config {
	if c.ProxyPath == "" {
		c.ProxyPath = DefaultProxyPath
	}
	if c.KeyMode == "" {
		c.KeyMode = KeyCanonical
	}
	return c
}

// ParseKeyMode maps a configuration string onto a KeyMode.
func ParseKeyMode(s string) (KeyMode, error) {
	switch KeyMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", KeyCanonical:
		return KeyCanonical, nil
	case KeyExact:
		return KeyExact, nil
	default:
		return "", fmt.Errorf("unknown asset key mode %q", s)
	}
}

// AsRecords converts classifier output back into records whose names preserve the output
// order, so the result can be fed through Classify again.
func AsRecords(items []DisplayAsset) []Record {
	out := make([]Record, 0, len(items))
	for i, item := range items {
		rec := Record{
			Name:     fmt.Sprintf("%06d", i),
			AssetURL: item.URL,
			Local:    item.Local,
		}
		if item.Kind == KindVideo {
			rec.MediaType = string(KindVideo)
		} else {
			rec.MediaType = string(KindImage)
		}
		out = append(out, rec)
	}
	return out
}
