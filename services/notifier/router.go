package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultNoticeLimit = 20
	maxNoticeLimit     = 100
)

// Routes exposes the stored notices, health and metrics. A nil gatherer serves the default
// registry.
func (n *Notifier) Routes(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if gatherer == nil {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	} else {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/v1/users/{userID}/notices", n.handleListNotices)
	return r
}

func (n *Notifier) handleListNotices(w http.ResponseWriter, r *http.Request) {
	limit := defaultNoticeLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			respondJSON(w, http.StatusBadRequest, map[string]any{"error": "limit must be a positive integer"})
			return
		}
		limit = min(v, maxNoticeLimit)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, err := n.store.Notices(ctx, chi.URLParam(r, "userID"), limit)
	if err != nil {
		n.log.Error().Err(err).Msg("list notices")
		respondJSON(w, http.StatusInternalServerError, map[string]any{"error": "list notices"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"notices": items})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
