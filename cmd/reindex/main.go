// Command reindex folds the accumulated user feedback into the movie
// embeddings and atomically replaces the published vector index.
//
// It takes no arguments besides an optional config file. A missing or empty
// feedback log is not an error: the index is left as is and the command
// exits zero.
//
// Usage:
//
//	go run ./cmd/reindex [-config configs/development.yaml]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/app"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/metrics"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", config.DefaultPath, "path to config file")
	flag.Parse()
	if flag.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "reindex takes no arguments, got %q\n", flag.Args())
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, metrics.NewNop())
	if err != nil {
		slog.Error("failed to initialise", "error", err)
		return 1
	}
	defer a.Close()

	result, err := a.Job.Run(ctx)
	if result.ID != "" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(result)
	}
	if err != nil && !apperrors.Is(err, apperrors.ErrMissingFeedback) {
		fmt.Fprintf(os.Stderr, "reindex failed: %v\n", err)
	}
	return apperrors.ExitCode(err)
}
