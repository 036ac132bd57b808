// Command server starts the match-explanation HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vettly/match-explainer/internal/adapter/ai/openai"
	httpserver "github.com/vettly/match-explainer/internal/adapter/httpserver"
	"github.com/vettly/match-explainer/internal/adapter/monitor"
	"github.com/vettly/match-explainer/internal/adapter/monitor/redisstream"
	"github.com/vettly/match-explainer/internal/adapter/observability"
	"github.com/vettly/match-explainer/internal/adapter/queue/redpanda"
	"github.com/vettly/match-explainer/internal/adapter/repo/postgres"
	"github.com/vettly/match-explainer/internal/app"
	"github.com/vettly/match-explainer/internal/config"
	"github.com/vettly/match-explainer/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()
	pool, err := postgres.Shared(ctx, cfg)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		slog.Error("schema bootstrap failed", slog.Any("error", err))
		os.Exit(1)
	}

	users := postgres.NewUserRepo(pool)
	matches := postgres.NewMatchRepo(pool)

	if !cfg.OpenAIConfigured() {
		slog.Warn("OPENAI_API_KEY not set; explanation requests will be rejected")
	}
	chat := openai.New(cfg)
	slog.Info("chat client initialized", slog.String("model", chat.Model()))

	// Monitoring sinks. Both are optional; a sink that cannot start is logged
	// and skipped.
	var (
		publishers []monitor.Publisher
		redisPing  app.Pinger
	)
	if cfg.RedisEnabled() {
		p, err := redisstream.Connect(ctx, cfg.RedisURL, cfg.RedisStreamKey, cfg.RedisStreamMax)
		if err != nil {
			slog.Warn("redis monitoring sink disabled", slog.Any("error", err))
		} else {
			publishers = append(publishers, p)
			redisPing = p
		}
	}
	if cfg.KafkaEnabled() {
		p, err := redpanda.NewProducer(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			slog.Warn("kafka monitoring sink disabled", slog.Any("error", err))
		} else {
			publishers = append(publishers, p)
		}
	}
	mon := monitor.New(monitor.DefaultPublishTimeout, publishers...)

	explainSvc := usecase.NewExplainService(users, matches, chat, mon, cfg.OpenAIConfigured())

	dbCheck, redisCheck := app.BuildReadinessChecks(pool, redisPing)
	srv := httpserver.NewServer(cfg, explainSvc, mon, dbCheck, redisCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", slog.Any("error", err))
	}
	// Drain in-flight monitoring events after the last request finished.
	if err := mon.Close(shutdownCtx); err != nil {
		slog.Error("monitor shutdown failed", slog.Any("error", err))
	}
}
