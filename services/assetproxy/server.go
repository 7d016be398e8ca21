// Package assetproxy streams stored agent assets through a same-origin endpoint so the
// console never hands browsers raw bucket URLs, and keeps a presigned-GET helper.
package assetproxy

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	gos3 "agentdock/pkg/s3"
	"agentdock/services/assets"
)

const (
	defaultTTLSeconds   = 300
	maxTTLSeconds       = 3600
	defaultRequestLimit = 600
)

// Objects is the storage surface the proxy needs.
type Objects interface {
	GetObject(ctx context.Context, bucket, key, byteRange string) (*gos3.Object, error)
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// Config controls which storage URLs the proxy will serve.
type Config struct {
	// Bucket is the only bucket served, and the one presigned keys refer to.
	Bucket string
	// AllowedHosts extends the AWS S3 endpoints with self-hosted storage hosts.
	AllowedHosts []string
	// RequestsPerMinute limits each client IP. Zero uses the default.
	RequestsPerMinute int
}

// Server exposes the proxy and presign endpoints.
type Server struct {
	objects Objects
	config  Config
	log     zerolog.Logger
}

// NewServer configures a Server using the provided storage client.
func NewServer(objects Objects, cfg Config, logger zerolog.Logger) (*Server, error) {
	if objects == nil {
		return nil, errors.New("storage client is required")
	}
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = defaultRequestLimit
	}
	return &Server{objects: objects, config: cfg, log: logger}, nil
}

// Routes builds the router with health, metrics, proxy and presign endpoints.
func (s *Server) Routes() (http.Handler, error) {
	if s == nil {
		return nil, errors.New("nil server")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(s.config.RequestsPerMinute, time.Minute))
		r.Get(assets.DefaultProxyPath, s.handleProxy)
		r.Get("/v1/assets/presign", s.handleGetPresign)
	})
	return r, nil
}
