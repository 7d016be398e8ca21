package wizard

import (
	"context"
	"errors"
	"slices"
	"strings"

	"agentdock/services/deployments"
)

// ErrUnknownCapability is returned when toggling an id that is neither listed nor selected.
var ErrUnknownCapability = errors.New("unknown capability")

// Capabilities returns the capability list offered for selection.
func (w *Wizard) Capabilities() []Capability {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.capabilityListLocked()
}

// capabilityListLocked is the catalog followed by selected capabilities it does not list.
func (w *Wizard) capabilityListLocked() []Capability {
	list := slices.Clone(w.catalog)
	if !w.catalogLoaded {
		list = slices.Clone(w.fallbacks.Capabilities)
	}
	for _, id := range w.draft.Capabilities.IDs() {
		if !slices.ContainsFunc(list, func(c Capability) bool { return c.ID == id }) {
			list = append(list, Capability{ID: id, Name: w.draft.Capabilities.Name(id)})
		}
	}
	return list
}

func (w *Wizard) capabilityNameLocked(id string) (string, bool) {
	if w.draft.Capabilities.Has(id) {
		return w.draft.Capabilities.Name(id), true
	}
	for _, c := range w.capabilityListLocked() {
		if c.ID == id {
			return c.Name, true
		}
	}
	return "", false
}

// ToggleCapability selects or deselects a capability. Selecting starts a background fetch of
// its deployment options; deselecting sweeps every option owned by it.
func (w *Wizard) ToggleCapability(id string) (bool, error) {
	id = strings.TrimSpace(id)
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guardLocked(); err != nil {
		return false, err
	}
	name, ok := w.capabilityNameLocked(id)
	if !ok {
		return false, ErrUnknownCapability
	}

	if w.draft.Capabilities.Has(id) {
		w.draft.Capabilities.Remove(id)
		removed := w.resolver.Deactivate(id)
		w.log.Debug().Str("capability_id", id).Int("removed", removed).Msg("capability deselected")
		return false, nil
	}
	w.draft.Capabilities.Add(id, name)
	w.activateLocked(id, name)
	return true, nil
}

// activateLocked marks the capability active and resolves it in the background.
func (w *Wizard) activateLocked(id, name string) {
	w.resolver.MarkActive(id, name)
	w.fetches.Add(1)
	go func() {
		defer w.fetches.Done()
		ctx, cancel := context.WithTimeout(context.Background(), w.cfg.FetchTimeout)
		defer cancel()
		// failures are logged by the resolver and leave the collection unchanged
		_ = w.resolver.Resolve(ctx, id, name)
	}()
}

// AddDeployment appends a manual option, selected. A capability id without a name takes the
// selected capability's name.
func (w *Wizard) AddDeployment(d deployments.Deployment) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guardLocked(); err != nil {
		return -1, err
	}
	w.fillCapabilityNameLocked(&d)
	return w.resolver.AddManual(d)
}

// UpdateDeployment edits the manual option at i.
func (w *Wizard) UpdateDeployment(i int, d deployments.Deployment) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guardLocked(); err != nil {
		return err
	}
	w.fillCapabilityNameLocked(&d)
	return w.resolver.UpdateManual(i, d)
}

func (w *Wizard) fillCapabilityNameLocked(d *deployments.Deployment) {
	if d.CapabilityID == "" || d.CapabilityName != "" {
		return
	}
	if name, ok := w.capabilityNameLocked(strings.TrimSpace(d.CapabilityID)); ok {
		d.CapabilityName = name
	}
}

// RemoveDeployment deletes the option at i.
func (w *Wizard) RemoveDeployment(i int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guardLocked(); err != nil {
		return err
	}
	return w.resolver.Remove(i)
}

// ToggleDeployment flips selection of the option at i.
func (w *Wizard) ToggleDeployment(i int) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guardLocked(); err != nil {
		return false, err
	}
	return w.resolver.Toggle(i)
}

// SelectAllDeployments selects every option, or none.
func (w *Wizard) SelectAllDeployments(all bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guardLocked(); err != nil {
		return err
	}
	w.resolver.SelectAll(all)
	return nil
}

// Deployments renders the option collection and the capabilities still being fetched.
func (w *Wizard) Deployments() ([]deployments.View, []string) {
	return w.resolver.Snapshot()
}

// SelectedDeployments returns the options that will be submitted.
func (w *Wizard) SelectedDeployments() []deployments.Option {
	return w.resolver.Selected()
}
