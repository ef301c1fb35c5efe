package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/steadyops/ingestd/internal/admission"
	admissionmem "github.com/steadyops/ingestd/internal/admission/memory"
	admissionpg "github.com/steadyops/ingestd/internal/admission/postgres"
	"github.com/steadyops/ingestd/internal/config"
	"github.com/steadyops/ingestd/internal/database"
	"github.com/steadyops/ingestd/internal/idempotency"
	idemmem "github.com/steadyops/ingestd/internal/idempotency/memory"
	idempg "github.com/steadyops/ingestd/internal/idempotency/postgres"
	"github.com/steadyops/ingestd/internal/ingest/adapters"
	ingesthttp "github.com/steadyops/ingestd/internal/ingest/adapters/http"
	ingestpg "github.com/steadyops/ingestd/internal/ingest/adapters/postgres"
	"github.com/steadyops/ingestd/internal/ingest/app"
	"github.com/steadyops/ingestd/internal/ingest/app/commands"
	ingestmetrics "github.com/steadyops/ingestd/internal/ingest/metrics"
	"github.com/steadyops/ingestd/internal/ingest/ports"
	"github.com/steadyops/ingestd/internal/kafka"
	"github.com/steadyops/ingestd/internal/refcache"
	"github.com/steadyops/ingestd/internal/resilience"
	"github.com/steadyops/ingestd/internal/telemetry"
	"go.opentelemetry.io/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(parseLogLevel(cfg.Telemetry.LogLevel))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.OTelEndpoint != "" {
		tel, err := telemetry.Initialize(ctx, telemetry.Config{
			ServiceName:    cfg.Service.Name,
			ServiceVersion: cfg.Service.Version,
			Environment:    cfg.Service.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTelEndpoint,
			EnableTracing:  cfg.Telemetry.EnableTracing,
			EnableMetrics:  cfg.Telemetry.EnableMetrics,
			SampleRate:     cfg.Telemetry.SampleRate,
		})
		if err != nil {
			logger.Error("failed to initialize telemetry", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tel.Shutdown(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown failed", "error", err)
			}
		}()
	}

	pool, err := database.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		logger.Info("running database migrations", "path", cfg.Database.MigrationsPath)
		if err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations completed successfully")
	}

	meter := otel.Meter(cfg.Service.Name)

	httpMetrics, err := ingesthttp.NewMetrics(meter)
	if err != nil {
		logger.Error("failed to create http metrics", "error", err)
		os.Exit(1)
	}
	dbMetrics, err := database.NewMetrics(meter)
	if err != nil {
		logger.Error("failed to create database metrics", "error", err)
		os.Exit(1)
	}
	kafkaMetrics, err := kafka.NewMetrics(meter)
	if err != nil {
		logger.Error("failed to create kafka metrics", "error", err)
		os.Exit(1)
	}
	batchMetrics, err := ingestmetrics.NewMetrics(meter)
	if err != nil {
		logger.Error("failed to create ingest metrics", "error", err)
		os.Exit(1)
	}

	repo := ingestpg.NewRepository(pool)
	obsRepo := adapters.NewObservableRepository(repo, repo, dbMetrics)

	eventBus := adapters.NewObservableEventBus(kafka.NewNoopEventBus(), kafkaMetrics)

	var idemStore ports.IdempotencyStore
	switch cfg.Idempotency.Backend {
	case "memory":
		idemStore = idemmem.NewStore()
	default:
		idemStore = idempg.NewStore(pool)
	}

	var window admission.Window
	switch cfg.RateLimit.Backend {
	case "memory":
		window = admissionmem.NewStore()
	default:
		window = admissionpg.NewStore(pool)
	}

	refs := refcache.New(obsRepo, cfg.ReferenceCache.TTL, logger)
	breaker := resilience.NewBreaker("record-store", resilience.BreakerConfig{
		FailureThreshold: cfg.Breaker.Threshold,
		Cooldown:         cfg.Breaker.Cooldown,
		OnTransition: func(name string, from, to resilience.State) {
			batchMetrics.RecordBreakerTransition(context.Background(), name, from.String(), to.String())
		},
	}, logger)
	retryer := resilience.NewRetryer(resilience.RetryConfig{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		Multiplier:  cfg.Retry.Multiplier,
		Jitter:      cfg.Retry.Jitter,
		Retryable: func(err error) bool {
			return errors.Is(err, ports.ErrStoreUnavailable)
		},
	}, logger)
	coordinator := commands.NewCoordinator(cfg.Batch.ChunkSize, logger)

	service := app.NewService(obsRepo, refs, eventBus, idemStore, coordinator, breaker, retryer, cfg.Batch.StoreTimeout, logger, batchMetrics)

	guard := idempotency.NewGuard(idemStore, resilience.FailOpen, cfg.Idempotency.TTL, logger)
	guard.OnReplay(func(ctx context.Context) {
		batchMetrics.RecordIdempotencyReplay(ctx)
	})
	controller := admission.NewController(window, resilience.FailOpen, cfg.RateLimit.Enabled, logger)

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := database.CheckHealth(r.Context(), pool); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	router.Get(cfg.HTTP.MetricsPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("# metrics are exported via OTLP\n"))
	})

	router.Group(func(r chi.Router) {
		r.Use(ingesthttp.RateLimit(controller, cfg.RateLimit.DefaultProfile, batchMetrics))
		r.Use(guard.Wrap)
		ingesthttp.NewHandler(service).Register(r)
	})

	handler := withRecovery(withLogging(ingesthttp.WithMetrics(router, httpMetrics)))

	go runIdempotencyJanitor(ctx, idemStore, cfg.Idempotency.CleanupInterval, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownGrace)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	} else {
		logger.Info("http server stopped")
	}
}

// runIdempotencyJanitor periodically purges expired idempotency keys so the
// store does not grow without bound.
func runIdempotencyJanitor(ctx context.Context, store ports.IdempotencyStore, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := store.DeleteExpired(ctx, time.Now().UTC())
			if err != nil {
				logger.Error("idempotency cleanup failed", "error", err)
				continue
			}
			if deleted > 0 {
				logger.Info("idempotency keys purged", "deleted", deleted)
			}
		}
	}
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		slog.Info("http request", "method", r.Method, "path", r.URL.Path, "status", rw.status, "duration", time.Since(start))
	})
}

func withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic recovered", "error", rec)
				respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
