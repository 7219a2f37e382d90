// Command feedback-ingest consumes judgments from the feedback topic and
// appends them to the configured feedback store. Running one ingester lets
// any number of API processes publish feedback without sharing the log file.
//
// Usage:
//
//	go run ./cmd/feedback-ingest [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/postgres"
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
	slog.Info("starting feedback ingester",
		"topic", cfg.Kafka.Topics.FeedbackEvents,
		"backend", cfg.Feedback.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store feedback.Store
	switch cfg.Feedback.Backend {
	case config.FeedbackBackendPostgres:
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pg, err := feedback.NewPostgresStore(ctx, db)
		if err != nil {
			slog.Error("failed to prepare feedback table", "error", err)
			os.Exit(1)
		}
		store = pg
	default:
		store = feedback.NewCSVLog(cfg.Feedback.Path)
	}
	defer store.Close()

	m := metrics.NewNop()
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdown := metrics.StartServer(cfg.Metrics.Port, "feedback-ingest")
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(sctx)
		}()
	}

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.FeedbackEvents,
		kafka.ConsumerOptions{FromBeginning: true},
		feedback.HandleMessage(store, m),
	)

	if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
		slog.Error("consumer stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("feedback ingester stopped")
}
