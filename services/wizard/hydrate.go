package wizard

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"agentdock/services/deployments"
)

// Open loads the capability list and vocabulary and, in edit mode, hydrates the draft from
// the stored agent. The fetches run in parallel and may complete in any order. Directory
// failures fall back to the injected tables; only a failed agent fetch is returned, and the
// wizard stays usable either way.
func (w *Wizard) Open(ctx context.Context) error {
	var g errgroup.Group

	g.Go(func() error {
		caps, err := w.svc.Capabilities.Capabilities(ctx)
		if err != nil {
			w.log.Warn().Err(err).Msg("fetch capability list, using fallback")
			caps = w.fallbacks.Capabilities
		}
		w.SetCapabilityCatalog(caps)
		return nil
	})

	g.Go(func() error {
		vocab, err := w.svc.Vocabulary.Vocabulary(ctx)
		if err != nil {
			w.log.Warn().Err(err).Msg("fetch onboarding vocabulary, using fallback")
			vocab = Vocabulary{}
		}
		w.mu.Lock()
		w.vocab = vocab.withFallback(w.fallbacks.Vocabulary)
		w.refreshChoicesLocked()
		w.mu.Unlock()
		return nil
	})

	if w.cfg.Mode == ModeEdit {
		g.Go(func() error {
			rec, err := w.svc.Agents.Agent(ctx, w.cfg.AgentID)
			if err != nil {
				w.log.Error().Err(err).Msg("hydrate agent")
				return fmt.Errorf("load agent %s: %w", w.cfg.AgentID, err)
			}
			w.hydrate(rec)
			return nil
		})
	}
	return g.Wait()
}

// SetCapabilityCatalog replaces the capability reference list and retries reconciliation.
func (w *Wizard) SetCapabilityCatalog(caps []Capability) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.catalog = caps
	w.catalogLoaded = true
	w.reconcileLocked()
}

func (w *Wizard) hydrate(rec AgentRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	caps := w.draft.Capabilities
	w.draft = draftFromRecord(rec)
	w.draft.Capabilities = caps
	w.refreshChoicesLocked()

	w.storedCaps = rec.Capabilities
	w.storedDeps = rec.Deployments
	w.storedLoaded = true
	w.reconcileLocked()
}

func draftFromRecord(rec AgentRecord) Draft {
	doc := rec.Documentation
	return Draft{
		Name:             rec.Name,
		Description:      rec.Description,
		KeyFeatures:      SplitFeatures(rec.KeyFeatures),
		ROI:              rec.ROI,
		AgentType:        Choice{Value: strings.TrimSpace(rec.AgentType)},
		ValueProposition: Choice{Value: strings.TrimSpace(rec.ValueProposition)},
		Tags:             NewStringSet(SplitComma(rec.Tags)...),
		BundledAgents:    NewStringSet(SplitComma(rec.BundledAgents)...),
		TargetPersonas:   NewStringSet(SplitSemicolon(rec.ByPersona)...),
		DemoLinks:        SplitComma(rec.DemoLinks),
		Documentation: Documentation{
			SDKDetails:      doc.SDKDetails,
			APIDocsURL:      doc.APIDocsURL,
			SampleInput:     doc.SampleInput,
			SampleOutput:    doc.SampleOutput,
			SecurityDetails: doc.SecurityDetails,
			ReadmeURL:       doc.ReadmeURL,
			References:      SplitComma(doc.RelatedLinks),
		},
		Assets:      rec.Assets,
		PreviewURLs: rec.PreviewURLs,
	}
}

// reconcileLocked maps the stored capabilities onto the reference list once both are known.
// Matching is by display name since the two services may assign different ids; a stored
// capability with no match keeps the id the agent record carried.
func (w *Wizard) reconcileLocked() {
	if w.reconciled || !w.catalogLoaded || !w.storedLoaded {
		return
	}
	w.reconciled = true

	caps, remap := ReconcileCapabilities(w.catalog, w.storedCaps)
	for _, c := range caps {
		w.draft.Capabilities.Add(c.ID, c.Name)
	}

	opts := make([]deployments.Option, 0, len(w.storedDeps))
	selected := make([]int, 0, len(w.storedDeps))
	for i, o := range w.storedDeps {
		d := o.Details()
		if c, ok := remap[d.CapabilityID]; ok {
			d.CapabilityID = c.ID
			d.CapabilityName = c.Name
		}
		switch o.(type) {
		case deployments.Manual:
			opts = append(opts, deployments.Manual{Deployment: d})
		default:
			opts = append(opts, deployments.Fetched{Deployment: d})
		}
		selected = append(selected, i)
	}
	w.resolver.Restore(opts, selected)

	for _, c := range caps {
		w.activateLocked(c.ID, c.Name)
	}
	w.log.Debug().Int("capabilities", len(caps)).Int("deployments", len(opts)).Msg("capabilities reconciled")
}

// ReconcileCapabilities matches stored capabilities to the catalog by case-insensitive name.
// It returns the reconciled list and, for each stored id that changed, the catalog entry.
func ReconcileCapabilities(catalog, stored []Capability) ([]Capability, map[string]Capability) {
	byName := make(map[string]Capability, len(catalog))
	for _, c := range catalog {
		byName[strings.ToLower(strings.TrimSpace(c.Name))] = c
	}

	out := make([]Capability, 0, len(stored))
	remap := make(map[string]Capability)
	seen := make(map[string]struct{}, len(stored))
	for _, s := range stored {
		c := Capability{ID: strings.TrimSpace(s.ID), Name: strings.TrimSpace(s.Name)}
		if m, ok := byName[strings.ToLower(c.Name)]; ok && c.Name != "" {
			if c.ID != "" && c.ID != m.ID {
				remap[c.ID] = m
			}
			c = m
		}
		if c.ID == "" {
			c.ID = c.Name
		}
		if c.ID == "" {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out, remap
}
