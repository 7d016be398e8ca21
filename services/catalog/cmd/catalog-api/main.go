package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"agentdock/pkg/bus"
	"agentdock/pkg/db"
	gos3 "agentdock/pkg/s3"
	"agentdock/pkg/telemetry"
	"agentdock/services/catalog"
)

type config struct {
	Addr           string `env:"CATALOG_ADDR,default=:8080"`
	DBDSN          string `env:"DB_DSN,required"`
	NATSURL        string `env:"NATS_URL"`
	StorageBaseURL string `env:"ASSET_STORAGE_BASE_URL"`
	MaxUploadBytes int64  `env:"CATALOG_MAX_UPLOAD_BYTES,default=67108864"`
	OTLPEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogFormat      string `env:"LOG_FORMAT"`
	S3             gos3.Config
}

func main() {
	if err := run("catalog-api"); err != nil {
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

	pool, err := db.Open(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	orm, err := db.OpenORM(pool)
	if err != nil {
		return fmt.Errorf("open orm: %w", err)
	}

	repo, err := catalog.NewRepository(&catalog.Store{DB: pool, ORM: orm})
	if err != nil {
		return err
	}

	s3Client, err := gos3.New(ctx, cfg.S3)
	if err != nil {
		return fmt.Errorf("init s3 client: %w", err)
	}

	var publisher bus.Publisher
	if cfg.NATSURL != "" {
		b, err := bus.New(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer b.Close()
		publisher = b
	} else {
		logger.Warn().Msg("NATS_URL not set; agent events are not published")
	}

	api, err := catalog.New(repo, s3Client, publisher, catalog.Config{
		Bucket:         cfg.S3.Bucket,
		StorageBaseURL: storageBaseURL(cfg),
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, logger)
	if err != nil {
		return fmt.Errorf("init catalog: %w", err)
	}

	routes, err := api.Routes()
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           middleware(routes),
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

	logger.Info().Str("addr", server.Addr).Msg("listening")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// storageBaseURL falls back to the path-style endpoint/bucket form when no public base is
// configured.
func storageBaseURL(cfg config) string {
	if cfg.StorageBaseURL != "" {
		return cfg.StorageBaseURL
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.S3.Endpoint), "/")
	if endpoint == "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.S3.Bucket, cfg.S3.Region)
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		scheme := "https"
		if cfg.S3.DisableTLS {
			scheme = "http"
		}
		endpoint = scheme + "://" + endpoint
	}
	return endpoint + "/" + cfg.S3.Bucket
}
