package console

import (
	"context"
	"errors"
	"time"

	"agentdock/pkg/bus"
	"agentdock/services/wizard"
)

// BusNotifier shows success notices by publishing them for the notifier service.
type BusNotifier struct {
	bus bus.Publisher
	now func() time.Time
}

// NewBusNotifier returns a wizard.Notifier publishing on bus.SubjectSuccessNotices.
func NewBusNotifier(p bus.Publisher) (*BusNotifier, error) {
	if p == nil {
		return nil, errors.New("publisher is required")
	}
	return &BusNotifier{bus: p, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Success publishes n.
func (b *BusNotifier) Success(ctx context.Context, n wizard.Notice) error {
	return b.bus.Publish(ctx, bus.SubjectSuccessNotices, bus.SuccessNotice{
		AgentID:   n.AgentID,
		AgentName: n.AgentName,
		UserID:    n.UserID,
		Message:   n.Message,
		At:        b.now(),
	})
}
