package catalog

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes constructs the chi router containing all catalog endpoints.
func (a *API) Routes() (http.Handler, error) {
	if a == nil {
		return nil, errors.New("nil api")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(compress)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/capabilities", a.handleListCapabilities)
		r.Get("/capabilities/{capabilityID}/deployments", a.handleListDeployments)
		r.Get("/onboarding/filters", a.handleGetVocabulary)
		r.Put("/onboarding/filters", a.handleAddVocabulary)
		r.Post("/agents", a.handleCreateAgent)
		r.Get("/agents/{agentID}", a.handleGetAgent)
		r.Put("/agents/{agentID}", a.handleUpdateAgent)
	})

	return r, nil
}

func compress(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}
