// Package notifier consumes agent lifecycle events from the bus: success notices are stored
// for the submitting user and every create or update leaves an audit row with a field-level
// diff of the agent record.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"agentdock/pkg/bus"
)

const (
	systemActor         = "catalog"
	actionAgentCreated  = "agent_created"
	actionAgentUpdated  = "agent_updated"
	resultStored        = "stored"
	resultDropped       = "dropped"
	resultStorageFailed = "storage_failed"
)

// Subscriber is the subset of the bus the notifier consumes.
type Subscriber interface {
	Subscribe(ctx context.Context, subj, durable string, fn func(ctx context.Context, data []byte) error) (io.Closer, error)
}

// errMalformed marks events that can never be processed. They are acknowledged and dropped.
var errMalformed = errors.New("malformed event")

// Notifier coordinates the event subscriptions.
type Notifier struct {
	store  Store
	bus    Subscriber
	log    zerolog.Logger
	now    func() time.Time
	events *prometheus.CounterVec

	subsMu sync.Mutex
	subs   []io.Closer
}

// New creates a notifier bound to the provided dependencies. A nil registerer uses the
// default registry.
func New(store Store, sub Subscriber, reg prometheus.Registerer, logger zerolog.Logger) (*Notifier, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if sub == nil {
		return nil, errors.New("bus is required")
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &Notifier{
		store: store,
		bus:   sub,
		log:   logger.With().Str("component", "notifier").Logger(),
		now:   func() time.Time { return time.Now().UTC() },
		events: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "agentdock_notifier_events_total",
			Help: "Bus events handled by the notifier, by subject and result.",
		}, []string{"subject", "result"}),
	}, nil
}

// Start registers the subscriptions and begins processing events.
func (n *Notifier) Start(ctx context.Context) error {
	if n == nil {
		return errors.New("nil notifier")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	specs := []struct {
		subject string
		durable string
		handler func(context.Context, []byte) error
	}{
		{bus.SubjectSuccessNotices, "notifier-success", n.handleSuccess},
		{bus.SubjectAgentCreated, "notifier-agents-created", n.handleAgentCreated},
		{bus.SubjectAgentUpdated, "notifier-agents-updated", n.handleAgentUpdated},
	}

	for _, spec := range specs {
		closer, err := n.bus.Subscribe(ctx, spec.subject, spec.durable, n.observe(spec.subject, spec.handler))
		if err != nil {
			_ = n.Close()
			return err
		}
		n.subsMu.Lock()
		n.subs = append(n.subs, closer)
		n.subsMu.Unlock()
	}

	n.log.Info().Int("subscriptions", len(specs)).Msg("notifier started")
	return nil
}

// Close tears down active subscriptions.
func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}

	n.subsMu.Lock()
	defer n.subsMu.Unlock()

	var firstErr error
	for _, sub := range n.subs {
		if sub == nil {
			continue
		}
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	n.subs = nil
	return firstErr
}

// observe counts outcomes and acknowledges malformed events instead of redelivering them.
func (n *Notifier) observe(subject string, fn func(context.Context, []byte) error) func(context.Context, []byte) error {
	return func(ctx context.Context, data []byte) error {
		err := fn(ctx, data)
		switch {
		case err == nil:
			n.events.WithLabelValues(subject, resultStored).Inc()
			return nil
		case errors.Is(err, errMalformed):
			n.events.WithLabelValues(subject, resultDropped).Inc()
			n.log.Warn().Err(err).Str("subject", subject).Msg("dropping event")
			return nil
		default:
			n.events.WithLabelValues(subject, resultStorageFailed).Inc()
			n.log.Error().Err(err).Str("subject", subject).Msg("handle event")
			return err
		}
	}
}

func malformed(reason string) error {
	return errors.Join(errMalformed, errors.New(reason))
}

// noticeID is stable per agent and kind so a redelivered notice is stored once.
func noticeID(agentID uuid.UUID, kind string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("agentdock:notice:"+kind+":"+agentID.String()))
}

func (n *Notifier) handleSuccess(ctx context.Context, data []byte) error {
	var evt bus.SuccessNotice
	if err := json.Unmarshal(data, &evt); err != nil {
		return errors.Join(errMalformed, err)
	}
	agentID, err := uuid.Parse(evt.AgentID)
	if err != nil {
		return malformed("agent_id missing from notice")
	}
	if strings.TrimSpace(evt.Message) == "" {
		return malformed("message missing from notice")
	}
	if evt.At.IsZero() {
		evt.At = n.now()
	}

	notice := Notice{
		ID:        noticeID(agentID, KindSuccess),
		AgentID:   agentID,
		UserID:    evt.UserID,
		Kind:      KindSuccess,
		Message:   evt.Message,
		CreatedAt: evt.At,
	}
	if err := n.store.SaveNotice(ctx, notice); err != nil {
		return err
	}
	n.log.Info().Str("agent_id", evt.AgentID).Str("user_id", evt.UserID).Msg("success notice stored")
	return nil
}

func (n *Notifier) handleAgentCreated(ctx context.Context, data []byte) error {
	evt, err := decodeAgentEvent(data)
	if err != nil {
		return err
	}
	return n.store.InsertAudit(ctx, auditFor(evt, actionAgentCreated, computeDiff(nil, evt.Record)))
}

func (n *Notifier) handleAgentUpdated(ctx context.Context, data []byte) error {
	evt, err := decodeAgentEvent(data)
	if err != nil {
		return err
	}
	diff := computeDiff(evt.Previous, evt.Record)
	if len(diff) == 0 {
		n.log.Debug().Str("agent_id", evt.AgentID).Msg("update changed no fields")
	}
	return n.store.InsertAudit(ctx, auditFor(evt, actionAgentUpdated, diff))
}

func decodeAgentEvent(data []byte) (bus.AgentEvent, error) {
	var evt bus.AgentEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return bus.AgentEvent{}, errors.Join(errMalformed, err)
	}
	if strings.TrimSpace(evt.AgentID) == "" {
		return bus.AgentEvent{}, malformed("agent_id missing from event")
	}
	if evt.Record == nil {
		evt.Record = map[string]any{}
	}
	return evt, nil
}

func auditFor(evt bus.AgentEvent, action string, diff map[string]map[string]any) AuditEntry {
	actor := strings.TrimSpace(evt.UserID)
	if actor == "" {
		actor = systemActor
	}
	return AuditEntry{
		Actor:  actor,
		Action: action,
		Obj:    evt.AgentID,
		Details: map[string]any{
			"agent_id":   evt.AgentID,
			"agent_name": evt.AgentName,
			"changes":    diff,
		},
	}
}

func computeDiff(previous, current map[string]any) map[string]map[string]any {
	if previous == nil {
		previous = map[string]any{}
	}
	if current == nil {
		current = map[string]any{}
	}

	diff := make(map[string]map[string]any)

	for key, prevVal := range previous {
		curVal, ok := current[key]
		if !ok {
			diff[key] = map[string]any{"old": prevVal, "new": nil}
			continue
		}
		if !reflect.DeepEqual(prevVal, curVal) {
			diff[key] = map[string]any{"old": prevVal, "new": curVal}
		}
	}

	for key, curVal := range current {
		if _, seen := previous[key]; seen {
			continue
		}
		diff[key] = map[string]any{"old": nil, "new": curVal}
	}

	return diff
}
