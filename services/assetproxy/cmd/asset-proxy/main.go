package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	gos3 "agentdock/pkg/s3"
	"agentdock/pkg/telemetry"
	"agentdock/services/assetproxy"
)

type config struct {
	Addr              string   `env:"ASSET_PROXY_ADDR,default=:8080"`
	AllowedHosts      []string `env:"ASSET_PROXY_ALLOWED_HOSTS"`
	RequestsPerMinute int      `env:"ASSET_PROXY_RATE_LIMIT,default=600"`
	OTLPEndpoint      string   `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogFormat         string   `env:"LOG_FORMAT"`
	S3                gos3.Config
}

func main() {
	if err := run("asset-proxy"); err != nil {
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

	s3Client, err := gos3.New(ctx, cfg.S3)
	if err != nil {
		return fmt.Errorf("init s3 client: %w", err)
	}

	allowed := cfg.AllowedHosts
	if host := endpointHost(cfg.S3.Endpoint); host != "" {
		allowed = append(allowed, host)
	}

	server, err := assetproxy.NewServer(s3Client, assetproxy.Config{
		Bucket:            cfg.S3.Bucket,
		AllowedHosts:      allowed,
		RequestsPerMinute: cfg.RequestsPerMinute,
	}, logger)
	if err != nil {
		return fmt.Errorf("init asset proxy: %w", err)
	}

	routes, err := server.Routes()
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           middleware(routes),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	logger.Info().Str("addr", httpServer.Addr).Msg("listening")

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// endpointHost returns the host of a self-hosted S3 endpoint, with or without a scheme.
func endpointHost(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ""
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	return u.Host
}
