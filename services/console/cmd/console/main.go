package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sethvargo/go-envconfig"

	"agentdock/pkg/bus"
	"agentdock/pkg/render"
	"agentdock/pkg/telemetry"
	"agentdock/services/assets"
	"agentdock/services/console"
	"agentdock/services/directory"
	"agentdock/services/wizard"
)

type config struct {
	Addr              string        `env:"CONSOLE_ADDR,default=:8082"`
	CatalogBaseURL    string        `env:"CATALOG_BASE_URL,required"`
	ProxyPath         string        `env:"ASSET_PROXY_PATH,default=/v1/assets/proxy"`
	StorageBaseURL    string        `env:"ASSET_STORAGE_BASE_URL"`
	StorageHosts      []string      `env:"ASSET_STORAGE_HOSTS"`
	DedupKey          string        `env:"ASSET_DEDUP_KEY,default=canonical"`
	TransitionWindow  time.Duration `env:"WIZARD_TRANSITION_WINDOW,default=300ms"`
	FetchTimeout      time.Duration `env:"WIZARD_FETCH_TIMEOUT,default=15s"`
	SessionTTL        time.Duration `env:"WIZARD_SESSION_TTL,default=2h"`
	MaxUploadBytes    int64         `env:"CONSOLE_MAX_UPLOAD_BYTES,default=67108864"`
	RequestsPerMinute int           `env:"CONSOLE_RATE_LIMIT,default=300"`
	NATSURL           string        `env:"NATS_URL"`
	AllowedOrigins    []string      `env:"CORS_ALLOWED_ORIGINS,default=http://localhost:5173"`
	OTLPEndpoint      string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogFormat         string        `env:"LOG_FORMAT"`
}

func main() {
	if err := run("console"); err != nil {
		log.New(os.Stderr, "", log.LstdFlags).Fatal(err)
	}
}

func run(serviceName string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	keyMode, err := assets.ParseKeyMode(cfg.DedupKey)
	if err != nil {
		return err
	}

	shutdownTelemetry, middleware, logger, err := telemetry.Init(ctx, serviceName, telemetry.Options{
		Endpoint: cfg.OTLPEndpoint,
		Format:   cfg.LogFormat,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("telemetry shutdown")
		}
	}()

	catalogClient, err := directory.New(cfg.CatalogBaseURL, directory.WithLogger(logger))
	if err != nil {
		return err
	}

	var notifier wizard.Notifier
	if cfg.NATSURL != "" {
		b, err := bus.New(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer b.Close()
		if notifier, err = console.NewBusNotifier(b); err != nil {
			return err
		}
	} else {
		logger.Warn().Msg("NATS_URL not set; success notices are not published")
	}

	services := func(userID string) wizard.Services {
		c := catalogClient.ForUser(userID)
		return wizard.Services{
			Capabilities: c,
			Deployments:  c,
			Vocabulary:   c,
			Agents:       c,
			Notifier:     notifier,
		}
	}

	renderer, err := render.New()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c, err := console.New(services, renderer, console.Config{
		TransitionWindow: cfg.TransitionWindow,
		FetchTimeout:     cfg.FetchTimeout,
		SessionTTL:       cfg.SessionTTL,
		MaxUploadBytes:   cfg.MaxUploadBytes,
		Assets: assets.Config{
			ProxyPath:      cfg.ProxyPath,
			StorageBaseURL: cfg.StorageBaseURL,
			StorageHosts:   cfg.StorageHosts,
			KeyMode:        keyMode,
		},
		AllowedOrigins:    cfg.AllowedOrigins,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Registry:          reg,
	}, logger)
	if err != nil {
		return fmt.Errorf("init console: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           middleware(c.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	logger.Info().Str("addr", server.Addr).Str("catalog", cfg.CatalogBaseURL).Msg("listening")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
