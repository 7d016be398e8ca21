package agentctl

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"agentdock/services/assets"
	"agentdock/services/deployments"
	"agentdock/services/wizard"
)

const (
	manifestFileName    = "manifest.yaml"
	agentFileName       = "agent.json"
	deploymentsFileName = "deployments.json"
	assetsFileName      = "assets.json"
	manifestVersion     = "1"
)

// Manifest describes an export archive.
type Manifest struct {
	Version          string          `yaml:"version"`
	AgentID          string          `yaml:"agent_id"`
	AgentName        string          `yaml:"agent_name"`
	CreatedAt        time.Time       `yaml:"created_at"`
	Signer           string          `yaml:"signer,omitempty"`
	SigningPublicKey string          `yaml:"signing_public_key,omitempty"`
	Signature        string          `yaml:"signature,omitempty"`
	Entries          []ManifestEntry `yaml:"entries"`
}

// SigningBytes marshals the manifest without its signature.
func (m Manifest) SigningBytes() ([]byte, error) {
	clone := m
	clone.Signature = ""
	return yaml.Marshal(clone)
}

// ManifestEntry describes one file in the archive.
type ManifestEntry struct {
	Path   string `yaml:"path"`
	Size   int64  `yaml:"size"`
	SHA256 string `yaml:"sha256"`
}

// AgentReader loads a stored agent.
type AgentReader interface {
	Agent(ctx context.Context, id string) (wizard.AgentRecord, error)
}

// ExportConfig configures an agent export.
type ExportConfig struct {
	Agents     AgentReader
	AgentID    string
	Output     string
	Classifier *assets.Classifier
	// Signer is optional; a nil signer writes an unsigned archive.
	Signer *Signer
	Now    func() time.Time
	Stdout io.Writer
}

type archiveFile struct {
	name string
	data []byte
}

// Export writes a tar.zst archive holding the stored agent, its selected deployments and its
// classified display assets, indexed by a manifest of checksums.
func Export(ctx context.Context, cfg ExportConfig) (*Manifest, error) {
	if cfg.Agents == nil {
		return nil, errors.New("agent reader is required")
	}
	if cfg.AgentID == "" {
		return nil, errors.New("agent id is required")
	}
	if cfg.Output == "" {
		return nil, errors.New("output path is required")
	}
	if cfg.Classifier == nil {
		cfg.Classifier = assets.New(assets.Config{})
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}

	rec, err := cfg.Agents.Agent(ctx, cfg.AgentID)
	if err != nil {
		return nil, fmt.Errorf("load agent %s: %w", cfg.AgentID, err)
	}

	agentJSON, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode agent: %w", err)
	}
	deploymentsJSON, err := deployments.EncodeSelected(rec.Deployments)
	if err != nil {
		return nil, err
	}
	display := cfg.Classifier.Classify(rec.Assets, rec.PreviewURLs)
	if display == nil {
		display = []assets.DisplayAsset{}
	}
	assetsJSON, err := json.MarshalIndent(display, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode assets: %w", err)
	}

	files := []archiveFile{
		{name: agentFileName, data: agentJSON},
		{name: deploymentsFileName, data: []byte(deploymentsJSON)},
		{name: assetsFileName, data: assetsJSON},
	}

	manifest := &Manifest{
		Version:   manifestVersion,
		AgentID:   rec.ID,
		AgentName: rec.Name,
		CreatedAt: cfg.Now().UTC().Truncate(time.Second),
	}
	if manifest.AgentID == "" {
		manifest.AgentID = cfg.AgentID
	}
	for _, f := range files {
		sum := sha256.Sum256(f.data)
		manifest.Entries = append(manifest.Entries, ManifestEntry{
			Path:   f.name,
			Size:   int64(len(f.data)),
			SHA256: hex.EncodeToString(sum[:]),
		})
	}

	if cfg.Signer.CanSign() {
		manifest.Signer = cfg.Signer.Recipient()
		manifest.SigningPublicKey = cfg.Signer.PublicKeyBase64()
		payload, err := manifest.SigningBytes()
		if err != nil {
			return nil, fmt.Errorf("marshal manifest for signing: %w", err)
		}
		if manifest.Signature, err = cfg.Signer.Sign(payload); err != nil {
			return nil, fmt.Errorf("sign manifest: %w", err)
		}
	}

	manifestBytes, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	files = append([]archiveFile{{name: manifestFileName, data: manifestBytes}}, files...)

	if err := writeArchive(cfg.Output, manifest.CreatedAt, files); err != nil {
		return nil, err
	}

	fmt.Fprintf(cfg.Stdout, "wrote %s (%s, %d assets)\n", cfg.Output, manifest.AgentName, len(display))
	return manifest, nil
}

func writeArchive(output string, modTime time.Time, files []archiveFile) (err error) {
	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	encoder, err := zstd.NewWriter(file)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	tw := tar.NewWriter(encoder)

	for _, f := range files {
		header := &tar.Header{
			Name:     f.name,
			Mode:     0o644,
			Size:     int64(len(f.data)),
			ModTime:  modTime,
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("write header for %q: %w", f.name, err)
		}
		if _, err := tw.Write(f.data); err != nil {
			return fmt.Errorf("write %q: %w", f.name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("close zstd: %w", err)
	}
	return nil
}

// VerifyConfig configures archive verification.
type VerifyConfig struct {
	Path string
	// Signer pins the expected key. Without one the signature is reported but not checked.
	Signer *Signer
	Stdout io.Writer
}

// Verify reads an export archive, checks every entry against the manifest checksums and,
// when a signer is configured, verifies the manifest signature.
func Verify(ctx context.Context, cfg VerifyConfig) (*Manifest, error) {
	if cfg.Path == "" {
		return nil, errors.New("archive path is required")
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}

	file, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer decoder.Close()

	var (
		manifest *Manifest
		sums     = map[string]ManifestEntry{}
	)
	tr := tar.NewReader(decoder)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read archive: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		if header.Name == manifestFileName {
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("read manifest: %w", err)
			}
			manifest = &Manifest{}
			if err := yaml.Unmarshal(data, manifest); err != nil {
				return nil, fmt.Errorf("parse manifest: %w", err)
			}
			continue
		}

		hash := sha256.New()
		n, err := io.Copy(hash, tr)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", header.Name, err)
		}
		sums[header.Name] = ManifestEntry{Path: header.Name, Size: n, SHA256: hex.EncodeToString(hash.Sum(nil))}
	}

	if manifest == nil {
		return nil, errors.New("archive has no manifest")
	}
	for _, want := range manifest.Entries {
		got, ok := sums[want.Path]
		if !ok {
			return nil, fmt.Errorf("archive is missing %q", want.Path)
		}
		if got.Size != want.Size || got.SHA256 != want.SHA256 {
			return nil, fmt.Errorf("sha256 mismatch for %q", want.Path)
		}
	}

	switch {
	case manifest.Signature == "":
		fmt.Fprintf(cfg.Stdout, "%s: unsigned\n", cfg.Path)
	case cfg.Signer == nil:
		fmt.Fprintf(cfg.Stdout, "%s: signed by %s (not checked)\n", cfg.Path, manifest.SigningPublicKey)
	default:
		payload, err := manifest.SigningBytes()
		if err != nil {
			return nil, fmt.Errorf("marshal manifest for verification: %w", err)
		}
		if err := cfg.Signer.Verify(payload, manifest.Signature, manifest.SigningPublicKey); err != nil {
			return nil, err
		}
		fmt.Fprintf(cfg.Stdout, "%s: signature ok\n", cfg.Path)
	}
	fmt.Fprintf(cfg.Stdout, "%s: %d entries match for agent %s\n", cfg.Path, len(manifest.Entries), manifest.AgentID)
	return manifest, nil
}
