package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CareerReport/internal/audit"
	"CareerReport/internal/backend"
	"CareerReport/internal/config"
	"CareerReport/internal/report"
	"CareerReport/internal/server"
	"CareerReport/internal/telemetry"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	flag.StringVar(&cfg.Backend, "backend", cfg.Backend, "Completion backend (openai|gemini)")
	flag.StringVar(&cfg.AuditDBPath, "audit-db", cfg.AuditDBPath, "SQLite audit log path (empty disables)")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	level := telemetry.ParseLevel(cfg.LogLevel)
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger, closeLog, err := telemetry.InitLogger(cfg.LogFile, level)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, meter, shutdownTelemetry, err := telemetry.InitTelemetry(ctx, cfg.TelemetryDir)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer shutdownTelemetry()

	opts := server.Options{
		Secret:       cfg.WebhookSecret,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Logger:       logger,
		Meter:        meter,
	}

	if cfg.AuditDBPath != "" {
		store, err := audit.Open(cfg.AuditDBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize audit log: %w", err)
		}
		defer store.Close()
		opts.Recorder = store

		recent, err := store.Recent(ctx, 100)
		if err != nil {
			logger.Warn("failed to read audit log", "error", err)
		} else {
			logger.Info("audit log opened", "path", cfg.AuditDBPath, "recent_outcomes", audit.Summarize(recent))
		}
	}

	if cfg.WebhookSecret == "" {
		logger.Warn("WEBHOOK_SECRET not set, report endpoint is open")
	}

	generator := report.NewGenerator(newCompleter(cfg, tracer, meter, logger), tracer)
	handler := server.NewReportHandler(generator, opts)
	router := server.NewRouter(handler)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           otelhttp.NewHandler(router, "careerreport"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Addr, "backend", cfg.Backend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

func newCompleter(cfg config.Config, tracer trace.Tracer, meter metric.Meter, logger *slog.Logger) backend.Completer {
	httpClient := &http.Client{
		Timeout:   cfg.CompletionTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	switch cfg.Backend {
	case config.BackendGemini:
		return backend.NewGeminiClient(backend.GeminiConfig{
			APIKey:     cfg.GeminiAPIKey,
			Model:      cfg.GeminiModel,
			BaseURL:    cfg.GeminiBaseURL,
			HTTPClient: httpClient,
		}, tracer, meter, logger)
	default:
		return backend.NewOpenAIClient(backend.OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      backend.OpenAIModel,
			HTTPClient: httpClient,
		}, tracer, meter, logger)
	}
}
