package catalog

import "context"

func (a *API) publish(ctx context.Context, subject string, payload any) {
	if a.bus == nil || subject == "" {
		return
	}
	if err := a.bus.Publish(ctx, subject, payload); err != nil {
		a.log.Warn().Err(err).Str("subject", subject).Msg("publish event")
	}
}
