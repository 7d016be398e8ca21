package agentctl

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"agentdock/services/assets"
)

// AssetManifest is the YAML input of `assets classify`.
type AssetManifest struct {
	Assets      []assets.Record `yaml:"assets"`
	PreviewURLs string          `yaml:"preview_urls"`
}

// LoadAssetManifest reads an asset manifest file.
func LoadAssetManifest(path string) (AssetManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AssetManifest{}, fmt.Errorf("read asset manifest: %w", err)
	}
	var m AssetManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return AssetManifest{}, fmt.Errorf("parse asset manifest %s: %w", path, err)
	}
	return m, nil
}

// ClassifyConfig configures an offline classification.
type ClassifyConfig struct {
	Manifest AssetManifest
	// Previews overrides the manifest's preview_urls when set.
	Previews string
	Assets   assets.Config
	Stdout   io.Writer
}

// ClassifyAssets classifies the manifest and prints one row per display asset.
func ClassifyAssets(cfg ClassifyConfig) ([]assets.DisplayAsset, error) {
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	previews := cfg.Manifest.PreviewURLs
	if cfg.Previews != "" {
		previews = cfg.Previews
	}

	out := assets.New(cfg.Assets).Classify(cfg.Manifest.Assets, previews)

	tw := tabwriter.NewWriter(cfg.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tKIND\tSOURCE\tNAME\tURL")
	for i, a := range out {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, a.Kind, a.Source, a.Name, a.URL)
	}
	if err := tw.Flush(); err != nil {
		return nil, err
	}
	return out, nil
}
