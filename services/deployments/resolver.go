package deployments

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrIndexRange is returned for positions outside the collection.
	ErrIndexRange = errors.New("deployment index out of range")
	// ErrNotManual is returned when editing an option the directory supplied.
	ErrNotManual = errors.New("only manual deployment options can be edited")
	// ErrInvalidManual is returned when a manual option lacks a provider or service name.
	ErrInvalidManual = errors.New("manual deployment requires a provider and service name")
)

// Directory returns the deployment candidates for a capability.
type Directory interface {
	Deployments(ctx context.Context, capabilityID string) ([]Candidate, error)
}

// Fetch outcomes reported to the observer.
const (
	OutcomeMerged    = "merged"
	OutcomeDiscarded = "discarded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Resolver owns the accumulated option collection and its selection.
type Resolver struct {
	dir      Directory
	log      zerolog.Logger
	observer func(outcome string)

	mu       sync.Mutex
	options  []Option
	selected *Selection
	active   map[string]string
	inflight map[string]struct{}
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the logger used for directory failures.
func WithLogger(l zerolog.Logger) ResolverOption {
	return func(r *Resolver) { r.log = l }
}

// WithObserver registers a callback invoked once per Resolve with its outcome.
func WithObserver(fn func(outcome string)) ResolverOption {
	return func(r *Resolver) { r.observer = fn }
}

// NewResolver creates an empty Resolver backed by dir.
func NewResolver(dir Directory, opts ...ResolverOption) (*Resolver, error) {
	if dir == nil {
		return nil, errors.New("deployment directory is required")
	}
	r := &Resolver{
		dir:      dir,
		log:      zerolog.Nop(),
		selected: NewSelection(),
		active:   make(map[string]string),
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Resolver) observe(outcome string) {
	if r.observer != nil {
		r.observer(outcome)
	}
}

// Activate marks the capability active and resolves its options.
func (r *Resolver) Activate(ctx context.Context, capabilityID, capabilityName string) error {
	capabilityID = strings.TrimSpace(capabilityID)
	if capabilityID == "" {
		return errors.New("capability id is required")
	}
	r.MarkActive(capabilityID, capabilityName)
	return r.Resolve(ctx, capabilityID, capabilityName)
}

// MarkActive records the capability as active without fetching. Callers that resolve in the
// background mark first so a later Deactivate is never overtaken.
func (r *Resolver) MarkActive(capabilityID, capabilityName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[strings.TrimSpace(capabilityID)] = capabilityName
}

// Resolve fetches candidates for the capability and appends the ones whose key is not
// already present. A fetch already in flight for the same capability makes this a no-op.
// Results for a capability that is no longer active when the fetch returns are discarded.
func (r *Resolver) Resolve(ctx context.Context, capabilityID, capabilityName string) error {
	r.mu.Lock()
	if _, busy := r.inflight[capabilityID]; busy {
		r.mu.Unlock()
		r.observe(OutcomeSkipped)
		return nil
	}
	r.inflight[capabilityID] = struct{}{}
	r.mu.Unlock()

	candidates, err := r.dir.Deployments(ctx, capabilityID)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, capabilityID)

	if err != nil {
		r.log.Warn().Err(err).Str("capability_id", capabilityID).Msg("fetch deployment options")
		r.observe(OutcomeFailed)
		return fmt.Errorf("fetch deployments for %s: %w", capabilityID, err)
	}
	if _, ok := r.active[capabilityID]; !ok {
		r.log.Debug().Str("capability_id", capabilityID).Msg("capability deactivated before fetch completed")
		r.observe(OutcomeDiscarded)
		return nil
	}

	present := make(map[Key]struct{}, len(r.options))
	for _, o := range r.options {
		present[o.Details().Key()] = struct{}{}
	}
	added := 0
	for _, c := range candidates {
		opt := c.ForCapability(capabilityID, capabilityName)
		if opt.Provider == "" && opt.ServiceName == "" {
			continue
		}
		k := opt.Key()
		if _, dup := present[k]; dup {
			continue
		}
		present[k] = struct{}{}
		r.options = append(r.options, opt)
		added++
	}
	r.log.Debug().Str("capability_id", capabilityID).Int("added", added).Msg("merged deployment options")
	r.observe(OutcomeMerged)
	return nil
}

// Deactivate marks the capability inactive and sweeps every option owned by it, fetched or
// manual. It returns the number of options removed.
func (r *Resolver) Deactivate(capabilityID string) int {
	capabilityID = strings.TrimSpace(capabilityID)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, capabilityID)

	removed := 0
	for i := len(r.options) - 1; i >= 0; i-- {
		if r.options[i].Details().CapabilityID != capabilityID {
			continue
		}
		r.removeLocked(i)
		removed++
	}
	return removed
}

func (r *Resolver) removeLocked(i int) {
	r.options = slices.Delete(r.options, i, i+1)
	r.selected.AdjustForRemoval(i)
}

// AddManual appends a user-entered option and selects it. It returns the new position.
func (r *Resolver) AddManual(d Deployment) (int, error) {
	d = d.trimmed()
	if d.Provider == "" || d.ServiceName == "" {
		return -1, ErrInvalidManual
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.options = append(r.options, Manual{d})
	idx := len(r.options) - 1
	r.selected.Select(idx)
	return idx, nil
}

// UpdateManual replaces the manual option at i.
func (r *Resolver) UpdateManual(i int, d Deployment) error {
	d = d.trimmed()
	if d.Provider == "" || d.ServiceName == "" {
		return ErrInvalidManual
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.options) {
		return ErrIndexRange
	}
	if _, ok := r.options[i].(Manual); !ok {
		return ErrNotManual
	}
	r.options[i] = Manual{d}
	return nil
}

// Remove deletes the option at i and re-maps the selection.
func (r *Resolver) Remove(i int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.options) {
		return ErrIndexRange
	}
	r.removeLocked(i)
	return nil
}

// Toggle flips selection of the option at i.
func (r *Resolver) Toggle(i int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.options) {
		return false, ErrIndexRange
	}
	return r.selected.Toggle(i), nil
}

// SelectAll selects every option when select is true, or clears the selection.
func (r *Resolver) SelectAll(selectAll bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !selectAll {
		r.selected.SelectAll(nil)
		return
	}
	all := make([]int, len(r.options))
	for i := range all {
		all[i] = i
	}
	r.selected.SelectAll(all)
}

// Restore appends options hydrated from a stored agent after whatever the collection
// already holds. selected indexes into opts. A stored fetched option whose key is already
// present is not appended again; its selection carries over to the existing entry.
func (r *Resolver) Restore(opts []Option, selected []int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[int]struct{}, len(selected))
	for _, i := range selected {
		want[i] = struct{}{}
	}
	present := make(map[Key]int, len(r.options))
	for i, o := range r.options {
		if _, ok := o.(Fetched); ok {
			present[o.Details().Key()] = i
		}
	}

	for i, o := range opts {
		pos := -1
		if f, ok := o.(Fetched); ok {
			if at, dup := present[f.Key()]; dup {
				pos = at
			}
		}
		if pos < 0 {
			r.options = append(r.options, o)
			pos = len(r.options) - 1
			if f, ok := o.(Fetched); ok {
				present[f.Key()] = pos
			}
		}
		if _, ok := want[i]; ok {
			r.selected.Select(pos)
		}
	}
}

// IsActive reports whether the capability is active.
func (r *Resolver) IsActive(capabilityID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[capabilityID]
	return ok
}

// Pending reports whether a fetch for the capability is in flight.
func (r *Resolver) Pending(capabilityID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inflight[capabilityID]
	return ok
}

// Options returns a copy of the collection.
func (r *Resolver) Options() []Option {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.options)
}

// SelectedIndices returns the selection in ascending order.
func (r *Resolver) SelectedIndices() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected.Indices()
}

// Selected returns the selected options in collection order.
func (r *Resolver) Selected() []Option {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Option, 0, r.selected.Len())
	for _, i := range r.selected.Indices() {
		if i < len(r.options) {
			out = append(out, r.options[i])
		}
	}
	return out
}

// View is a read-only rendering of one option.
type View struct {
	Index    int        `json:"index"`
	Origin   string     `json:"origin"`
	Selected bool       `json:"selected"`
	Option   Deployment `json:"option"`
}

// Snapshot renders the collection with selection state and in-flight capabilities.
func (r *Resolver) Snapshot() (views []View, pending []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	views = make([]View, 0, len(r.options))
	for i, o := range r.options {
		views = append(views, View{
			Index:    i,
			Origin:   Origin(o),
			Selected: r.selected.Has(i),
			Option:   o.Details(),
		})
	}
	for id := range r.inflight {
		pending = append(pending, id)
	}
	slices.Sort(pending)
	return views, pending
}
