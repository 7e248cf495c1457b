package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/caption-gateway/internal/config"
	"github.com/lexiqai/caption-gateway/internal/observability"
	"github.com/lexiqai/caption-gateway/internal/relay"
	"github.com/lexiqai/caption-gateway/internal/stt"
	"github.com/lexiqai/caption-gateway/internal/suggest"
	"github.com/lexiqai/caption-gateway/internal/translate"
)

const shutdownTimeout = 30 * time.Second

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("stt_provider", cfg.STTProvider).
		Str("translate_provider", cfg.TranslateProvider).
		Str("target_language", cfg.TargetLanguage).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Caption Gateway starting")

	recognizer, err := stt.NewRecognizer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create recognizer: %w", err)
	}
	defer recognizer.Close()

	translator, err := translate.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create translator: %w", err)
	}

	handler := relay.NewHandler(recognizer, translator, cfg)

	var suggestions http.Handler
	if cfg.OpenAIAPIKey != "" {
		suggester, err := suggest.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.SuggestModel)
		if err != nil {
			return fmt.Errorf("failed to create suggester: %w", err)
		}
		suggestions = suggest.NewHandler(suggester, cfg.SuggestCallTimeout())
	} else {
		logger.Info().Msg("OPENAI_API_KEY not set, question suggestions disabled")
	}

	// Create HTTP server with timeouts. Websocket connections are hijacked,
	// so the write timeout only bounds plain requests such as suggestions.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      newRouter(cfg, handler, suggestions, readinessChecks(recognizer, translator)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/streams/transcribe", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().
			Int("active_connections", handler.ActiveConnections()).
			Msg("Shutting down server...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		if err := handler.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("connections did not drain: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info().Msg("Server exited gracefully")
	return nil
}

// newRouter mounts the routes. A nil suggestions handler leaves
// /suggest-questions unrouted.
func newRouter(cfg *config.Config, ws, suggestions http.Handler, checks map[string]observability.HealthCheckFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Websocket endpoints
	r.Handle("/", ws)
	r.Handle("/streams/transcribe", ws)

	if suggestions != nil {
		r.With(middleware.SetHeader("Access-Control-Allow-Origin", "*")).
			Handle("/suggest-questions", suggestions)
	}

	r.Get("/health", observability.HealthCheckHandler())
	r.Get("/ready", observability.ReadinessHandler(checks))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// readinessChecks reports whether the engines were configured. They make no
// calls to the providers to avoid API costs.
func readinessChecks(recognizer stt.Recognizer, translator translate.Translator) map[string]observability.HealthCheckFunc {
	return map[string]observability.HealthCheckFunc{
		"recognizer": func(ctx context.Context) (bool, error) {
			if recognizer == nil {
				return false, errors.New("recognizer not configured")
			}
			return true, nil
		},
		"translator": func(ctx context.Context) (bool, error) {
			if translator == nil {
				return false, errors.New("translator not configured")
			}
			if r, ok := translator.(*translate.Resilient); ok && r.CircuitOpen() {
				requests, failures, _ := r.CircuitStats()
				return false, fmt.Errorf("translation circuit breaker is open (%d of %d calls failed)", failures, requests)
			}
			return true, nil
		},
	}
}
