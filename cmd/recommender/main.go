// Command recommender serves movie recommendations over HTTP and accepts
// user feedback. With Kafka enabled it also listens for index.rebuilt
// events so every replica swaps in a new index as soon as a reindex run
// publishes one.
//
// Usage:
//
//	go run ./cmd/recommender [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/app"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/recommend/handler"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/middleware"
	"github.com/google/uuid"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting recommender", "port", cfg.Server.Port, "index", cfg.Index.Path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	a, err := app.Open(ctx, cfg, m)
	if err != nil {
		slog.Error("failed to initialise", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	serving, err := a.Serve(ctx)
	if err != nil {
		slog.Error("failed to load catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("catalog loaded", "movies", serving.Catalog.Len())

	checker := health.NewChecker(2 * time.Second)
	a.RegisterHealth(checker, serving)

	if cfg.Kafka.Enabled {
		// Every replica must see every rebuild, so each process gets its own group.
		group := fmt.Sprintf("%s-reload-%s", cfg.Kafka.ConsumerGroup, uuid.NewString()[:8])
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexRebuilt,
			kafka.ConsumerOptions{GroupID: group},
			serving.Reloader.HandleRebuilt(),
		)
		go func() {
			if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("index.rebuilt consumer stopped", "error", err)
			}
		}()
		slog.Info("listening for index rebuilds", "topic", cfg.Kafka.Topics.IndexRebuilt, "group", group)
	}

	h := handler.New(handler.Deps{
		Service:     serving.Service,
		Cache:       a.Cache,
		Feedback:    a.Feedback,
		Job:         a.Job,
		Reloader:    serving.Reloader,
		Holder:      serving.Holder,
		Metrics:     m,
		DefaultTopN: cfg.Recommend.DefaultTopN,
		MaxTopN:     cfg.Recommend.MaxTopN,
	})

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	if cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout, "/api/v1/reindex", "/api/v1/feedback")(chain)
	if cfg.Server.WriteRatePerMinute > 0 {
		limiter := middleware.NewRateLimiter(cfg.Server.WriteRatePerMinute, cfg.Server.WriteBurst)
		chain = middleware.RateLimit(limiter, "/api/v1/feedback", "/api/v1/reindex")(chain)
	}
	chain = middleware.Metrics(m, handler.Routes...)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     chain,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("recommender listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("recommender stopped")
}
