// Package console hosts server-side wizard sessions over HTTP and a stateless asset
// classification endpoint.
package console

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"agentdock/pkg/render"
	"agentdock/services/assets"
	"agentdock/services/deployments"
	"agentdock/services/wizard"
)

const (
	defaultSessionTTL     = 2 * time.Hour
	defaultMaxUploadBytes = 64 << 20
	defaultRequestLimit   = 300
)

// ServicesFunc returns the wizard collaborators acting on behalf of userID.
type ServicesFunc func(userID string) wizard.Services

// Config controls runtime behaviour for the console.
type Config struct {
	TransitionWindow time.Duration
	FetchTimeout     time.Duration
	// SessionTTL evicts sessions idle for longer. Zero uses the default.
	SessionTTL        time.Duration
	MaxUploadBytes    int64
	Assets            assets.Config
	Fallbacks         *wizard.Fallbacks
	AllowedOrigins    []string
	RequestsPerMinute int
	// Registry receives the console metrics. Nil registers with the default registry.
	Registry *prometheus.Registry
	Now      func() time.Time
}

type session struct {
	id      string
	owner   string
	wizard  *wizard.Wizard
	opened  string
	touched time.Time
}

func (s *session) localURL(i int, _ wizard.File) string {
	return fmt.Sprintf("/v1/wizards/%s/files/%d", s.id, i)
}

// Console owns the live wizard sessions.
type Console struct {
	services   ServicesFunc
	renderer   *render.Engine
	classifier *assets.Classifier
	config     Config
	metrics    *metrics
	log        zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// New validates dependencies and returns a Console.
func New(services ServicesFunc, renderer *render.Engine, cfg Config, logger zerolog.Logger) (*Console, error) {
	if services == nil {
		return nil, errors.New("services factory is required")
	}
	if renderer == nil {
		return nil, errors.New("renderer is required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = defaultRequestLimit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	if cfg.Registry != nil {
		reg = cfg.Registry
	}

	return &Console{
		services:   services,
		renderer:   renderer,
		classifier: assets.New(cfg.Assets),
		config:     cfg,
		metrics:    newMetrics(reg),
		log:        logger.With().Str("component", "console").Logger(),
		sessions:   make(map[string]*session),
	}, nil
}

// openSession starts a wizard session for userID and loads its reference data. A failed agent
// fetch is reported on the session but does not discard it.
func (c *Console) openSession(ctx context.Context, userID string, mode wizard.Mode, agentID string) (*session, error) {
	id := uuid.NewString()
	w, err := wizard.New(c.services(userID), wizard.Config{
		Mode:             mode,
		AgentID:          agentID,
		UserID:           userID,
		TransitionWindow: c.config.TransitionWindow,
		FetchTimeout:     c.config.FetchTimeout,
		Fallbacks:        c.config.Fallbacks,
		Logger:           c.log.With().Str("wizard_id", id).Logger(),
		OnRefresh: func(agentID string) {
			c.log.Info().Str("wizard_id", id).Str("agent_id", agentID).Msg("agent refreshed after edit")
		},
		OnSubmit: func(m wizard.Mode, outcome string) {
			c.metrics.submissions.WithLabelValues(string(m), outcome).Inc()
		},
		ResolverOptions: []deployments.ResolverOption{
			deployments.WithObserver(func(outcome string) {
				c.metrics.fetches.WithLabelValues(outcome).Inc()
			}),
		},
	})
	if err != nil {
		return nil, err
	}

	s := &session{id: id, owner: userID, wizard: w, touched: c.config.Now()}
	if err := w.Open(ctx); err != nil {
		s.opened = err.Error()
	}

	c.mu.Lock()
	c.evictIdleLocked()
	c.sessions[id] = s
	c.metrics.sessions.Set(float64(len(c.sessions)))
	c.mu.Unlock()
	return s, nil
}

func (c *Console) lookup(id, userID string) (*session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok || s.owner != userID {
		return nil, false
	}
	s.touched = c.config.Now()
	return s, true
}

// Discard closes and forgets a session.
func (c *Console) Discard(id, userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok || s.owner != userID {
		return false
	}
	s.wizard.Close()
	delete(c.sessions, id)
	c.metrics.sessions.Set(float64(len(c.sessions)))
	return true
}

func (c *Console) evictIdleLocked() {
	cutoff := c.config.Now().Add(-c.config.SessionTTL)
	for id, s := range c.sessions {
		if s.touched.Before(cutoff) {
			s.wizard.Close()
			delete(c.sessions, id)
			c.log.Debug().Str("wizard_id", id).Msg("idle session evicted")
		}
	}
}
