package console

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes builds the console router.
func (c *Console) Routes() http.Handler {
	r := chi.NewRouter()

	allowed := c.config.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Range", UserHeader},
		ExposedHeaders:   []string{"Content-Range"},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))
	r.Use(compress)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if c.config.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(c.config.Registry, promhttp.HandlerOpts{}))
	} else {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(c.config.RequestsPerMinute, time.Minute))

		r.Post("/assets/classify", c.handleClassify)

		r.Post("/wizards", c.handleOpen)
		r.Route("/wizards/{wizardID}", func(r chi.Router) {
			r.Get("/", c.handleState)
			r.Delete("/", c.handleDiscard)

			r.Post("/advance", c.mutate(c.handleAdvance))
			r.Post("/retreat", c.mutate(c.handleRetreat))
			r.Post("/jump", c.mutate(c.handleJump))
			r.Patch("/draft", c.handlePatchDraft)

			r.Post("/capabilities/{capabilityID}/toggle", c.mutate(c.handleToggleCapability))

			r.Post("/deployments", c.handleAddDeployment)
			r.Post("/deployments/select-all", c.handleSelectAllDeployments)
			r.Put("/deployments/{index}", c.handleUpdateDeployment)
			r.Delete("/deployments/{index}", c.mutate(c.handleRemoveDeployment))
			r.Post("/deployments/{index}/toggle", c.mutate(c.handleToggleDeployment))

			r.Post("/files", c.handleUploadFiles)
			r.Get("/files/{index}", c.handleServeFile)
			r.Delete("/files/{index}", c.handleRemoveFile)

			r.Get("/assets", c.handleAssets)
			r.Get("/preview", c.handlePreview)
			r.Post("/submit", c.handleSubmit)
		})
	})

	return r
}

func compress(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}
