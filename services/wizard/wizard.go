// Package wizard drives the multi-step agent onboarding and edit flow: step progression,
// per-step validation, hydration of stored agents, deployment resolution per capability, and
// assembly of the persistence payload.
package wizard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"agentdock/services/deployments"
)

const (
	DefaultTransitionWindow = 300 * time.Millisecond
	DefaultFetchTimeout     = 15 * time.Second
)

// Submission outcomes reported to Config.OnSubmit.
const (
	OutcomeSuccess = "success"
	OutcomeInvalid = "invalid"
)

// Config controls one wizard instance.
type Config struct {
	Mode Mode
	// AgentID is the stored agent being edited. Required in edit mode.
	AgentID string
	// UserID is the authenticated identity. Without it the wizard can be used but never submitted.
	UserID           string
	TransitionWindow time.Duration
	FetchTimeout     time.Duration
	Fallbacks        *Fallbacks
	Now              func() time.Time
	Logger           zerolog.Logger
	// OnRefresh is invoked with the agent id after a successful edit.
	OnRefresh func(agentID string)
	// OnSubmit observes every submission attempt with its outcome.
	OnSubmit        func(mode Mode, outcome string)
	ResolverOptions []deployments.ResolverOption
}

// Services are the collaborators the wizard calls.
type Services struct {
	Capabilities CapabilityDirectory
	Deployments  deployments.Directory
	Vocabulary   VocabularyService
	Agents       AgentStore
	// Notifier is optional.
	Notifier Notifier
}

// Wizard is one onboarding or edit session. All methods are safe for concurrent use.
type Wizard struct {
	svc       Services
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time
	fallbacks Fallbacks
	resolver  *deployments.Resolver
	fetches   sync.WaitGroup

	mu              sync.Mutex
	step            int
	draft           Draft
	transitionUntil time.Time
	submitting      bool
	closed          bool
	submittedID     string
	lastError       *SubmitError

	vocab         Vocabulary
	catalog       []Capability
	catalogLoaded bool

	storedCaps   []Capability
	storedDeps   []deployments.Option
	storedLoaded bool
	reconciled   bool
}

// New validates the collaborators and returns a wizard on step 1.
func New(svc Services, cfg Config) (*Wizard, error) {
	if svc.Capabilities == nil {
		return nil, errors.New("capability directory is required")
	}
	if svc.Deployments == nil {
		return nil, errors.New("deployment directory is required")
	}
	if svc.Vocabulary == nil {
		return nil, errors.New("vocabulary service is required")
	}
	if svc.Agents == nil {
		return nil, errors.New("agent store is required")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeCreate
	}
	if cfg.Mode != ModeCreate && cfg.Mode != ModeEdit {
		return nil, errors.New("unknown wizard mode")
	}
	cfg.AgentID = strings.TrimSpace(cfg.AgentID)
	if cfg.Mode == ModeEdit && cfg.AgentID == "" {
		return nil, errors.New("agent id is required in edit mode")
	}
	if cfg.TransitionWindow < 0 {
		cfg.TransitionWindow = 0
	} else if cfg.TransitionWindow == 0 {
		cfg.TransitionWindow = DefaultTransitionWindow
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	fb := DefaultFallbacks()
	if cfg.Fallbacks != nil {
		fb = *cfg.Fallbacks
	}

	log := cfg.Logger.With().Str("component", "wizard").Str("mode", string(cfg.Mode)).Logger()
	if cfg.AgentID != "" {
		log = log.With().Str("agent_id", cfg.AgentID).Logger()
	}
	ropts := append([]deployments.ResolverOption{deployments.WithLogger(log)}, cfg.ResolverOptions...)
	resolver, err := deployments.NewResolver(svc.Deployments, ropts...)
	if err != nil {
		return nil, err
	}

	w := &Wizard{
		svc:       svc,
		cfg:       cfg,
		log:       log,
		now:       cfg.Now,
		fallbacks: fb,
		resolver:  resolver,
		step:      StepBasics,
		vocab:     fb.Vocabulary,
	}
	if cfg.Mode == ModeCreate {
		w.storedLoaded = true
		w.reconciled = true
	}
	return w, nil
}

// Mode returns the wizard mode.
func (w *Wizard) Mode() Mode { return w.cfg.Mode }

// AgentID returns the edited agent id, or the created one after a successful submit.
func (w *Wizard) AgentID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submittedID != "" {
		return w.submittedID
	}
	return w.cfg.AgentID
}

// Settle blocks until every background deployment fetch has merged.
func (w *Wizard) Settle() { w.fetches.Wait() }

// Close discards the draft without saving.
func (w *Wizard) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeLocked()
}

func (w *Wizard) closeLocked() {
	if w.closed {
		return
	}
	w.closed = true
	w.draft = Draft{}
	w.log.Debug().Int("step", w.step).Msg("wizard closed")
}

// Closed reports whether the wizard has been closed or submitted.
func (w *Wizard) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *Wizard) guardLocked() error {
	if w.closed {
		return ErrClosed
	}
	if w.submitting {
		return ErrSubmitInProgress
	}
	return nil
}

func (w *Wizard) transitioningLocked() bool {
	return w.now().Before(w.transitionUntil)
}

func (w *Wizard) startTransitionLocked() {
	w.transitionUntil = w.now().Add(w.cfg.TransitionWindow)
}

// Advance moves to the next step once the current step's rules pass. On the last step it
// submits instead.
func (w *Wizard) Advance(ctx context.Context) error {
	w.mu.Lock()
	if err := w.guardLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.transitioningLocked() {
		w.mu.Unlock()
		return ErrTransitioning
	}
	if w.step >= w.cfg.Mode.TotalSteps() {
		w.mu.Unlock()
		_, err := w.Submit(ctx)
		return err
	}
	if errs := ValidateStep(w.draft, w.step); len(errs) > 0 {
		w.mu.Unlock()
		return errs
	}
	w.step++
	w.startTransitionLocked()
	w.mu.Unlock()
	return nil
}

// Retreat moves back one step. On step 1 it closes a create wizard and is refused in edit mode.
func (w *Wizard) Retreat() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guardLocked(); err != nil {
		return err
	}
	if w.transitioningLocked() {
		return ErrTransitioning
	}
	if w.step > StepBasics {
		w.step--
		w.startTransitionLocked()
		return nil
	}
	if w.cfg.Mode == ModeEdit {
		return ErrRetreatDisabled
	}
	w.closeLocked()
	return nil
}

// Jump moves directly to step n, which must not be ahead of the current step.
func (w *Wizard) Jump(n int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guardLocked(); err != nil {
		return err
	}
	if n < StepBasics || n > w.cfg.Mode.TotalSteps() {
		return ErrStepRange
	}
	if n > w.step {
		return ErrForwardJump
	}
	if n != w.step {
		w.step = n
		w.startTransitionLocked()
	}
	return nil
}

// Step returns the current step.
func (w *Wizard) Step() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Draft returns a copy of the draft.
func (w *Wizard) Draft() Draft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft.Clone()
}

// Update applies fn to the draft. Capability selection is owned by ToggleCapability and is
// restored if fn changes it.
func (w *Wizard) Update(fn func(d *Draft)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guardLocked(); err != nil {
		return err
	}
	caps := w.draft.Capabilities.clone()
	fn(&w.draft)
	w.draft.Capabilities = caps
	w.refreshChoicesLocked()
	return nil
}

// SetAgentType sets the agent type, marking it custom when absent from the vocabulary.
func (w *Wizard) SetAgentType(v string) error {
	return w.Update(func(d *Draft) { d.AgentType = Choice{Value: strings.TrimSpace(v)} })
}

// SetValueProposition sets the value proposition, marking it custom when absent from the vocabulary.
func (w *Wizard) SetValueProposition(v string) error {
	return w.Update(func(d *Draft) { d.ValueProposition = Choice{Value: strings.TrimSpace(v)} })
}

func (w *Wizard) refreshChoicesLocked() {
	d := &w.draft
	d.AgentType.Custom = d.AgentType.Value != "" && !containsFold(w.vocab.AgentTypes, d.AgentType.Value)
	d.ValueProposition.Custom = d.ValueProposition.Value != "" && !containsFold(w.vocab.ValuePropositions, d.ValueProposition.Value)
}

// Vocabulary returns the loaded vocabulary, or the fallback when the service failed.
func (w *Wizard) Vocabulary() Vocabulary {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.vocab
}

// LastError returns the classified error of the most recent failed submit.
func (w *Wizard) LastError() *SubmitError {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastError
}

func (w *Wizard) observe(outcome string) {
	if w.cfg.OnSubmit != nil {
		w.cfg.OnSubmit(w.cfg.Mode, outcome)
	}
}

// Submit validates the whole draft and persists it. On success the wizard closes; on
// failure the draft is kept and the classified error returned.
func (w *Wizard) Submit(ctx context.Context) (string, error) {
	w.mu.Lock()
	if err := w.guardLocked(); err != nil {
		w.mu.Unlock()
		return "", err
	}
	userID := strings.TrimSpace(w.cfg.UserID)
	if userID == "" {
		w.mu.Unlock()
		return "", ErrNoIdentity
	}
	if errs := Validate(w.draft); len(errs) > 0 {
		w.mu.Unlock()
		w.observe(OutcomeInvalid)
		return "", errs
	}
	w.submitting = true
	draft := w.draft.Clone()
	vocab := w.vocab
	w.mu.Unlock()

	id, err := w.persist(ctx, draft, vocab, userID)

	w.mu.Lock()
	w.submitting = false
	if err != nil {
		se := ClassifySubmitError(err)
		w.lastError = se
		w.mu.Unlock()
		w.log.Error().Err(err).Str("category", string(se.Category)).Int("status", se.Status).Msg("submit agent")
		w.observe(string(se.Category))
		return "", se
	}
	w.lastError = nil
	w.submittedID = id
	w.closeLocked()
	w.mu.Unlock()

	w.log.Info().Str("agent_id", id).Msg("agent submitted")
	w.observe(OutcomeSuccess)
	w.afterSubmit(ctx, id, draft.Name, userID)
	return id, nil
}

func (w *Wizard) persist(ctx context.Context, d Draft, vocab Vocabulary, userID string) (string, error) {
	payload, err := BuildPayload(d, userID, w.resolver.Selected())
	if err != nil {
		return "", err
	}

	if add := vocab.additions(d); !add.Empty() {
		if err := w.svc.Vocabulary.AddVocabulary(ctx, add); err != nil {
			w.log.Warn().Err(err).Msg("append custom vocabulary values")
		}
	}

	if w.cfg.Mode == ModeEdit {
		return w.cfg.AgentID, w.svc.Agents.Update(ctx, w.cfg.AgentID, payload)
	}
	return w.svc.Agents.Create(ctx, payload)
}

func (w *Wizard) afterSubmit(ctx context.Context, id, name, userID string) {
	if w.cfg.Mode == ModeEdit {
		if w.cfg.OnRefresh != nil {
			w.cfg.OnRefresh(id)
		}
		return
	}
	if w.svc.Notifier == nil {
		return
	}
	n := Notice{
		AgentID:   id,
		AgentName: strings.TrimSpace(name),
		UserID:    userID,
		Message:   "Agent \"" + strings.TrimSpace(name) + "\" was submitted for review.",
	}
	if err := w.svc.Notifier.Success(ctx, n); err != nil {
		w.log.Warn().Err(err).Msg("show success notice")
	}
}
