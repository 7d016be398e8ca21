package console

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	submissions *prometheus.CounterVec
	fetches     *prometheus.CounterVec
	sessions    prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentdock_wizard_submissions_total",
			Help: "Wizard submission attempts by mode and outcome.",
		}, []string{"mode", "outcome"}),
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentdock_deployment_fetches_total",
			Help: "Deployment directory fetches by outcome.",
		}, []string{"outcome"}),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "agentdock_wizard_sessions",
			Help: "Live wizard sessions.",
		}),
	}
}
