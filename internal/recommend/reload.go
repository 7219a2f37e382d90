package recommend

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/adjust"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/vectorindex"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/metrics"
)

// Reloader swaps the served index for the file on disk and drops cached
// answers computed from the old one.
type Reloader struct {
	holder  *vectorindex.Holder
	cache   adjust.Invalidator
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewReloader(holder *vectorindex.Holder, cache adjust.Invalidator, m *metrics.Metrics) *Reloader {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Reloader{
		holder:  holder,
		cache:   cache,
		metrics: m,
		logger:  slog.Default().With("component", "index-reloader"),
	}
}

func (r *Reloader) Reload(ctx context.Context) error {
	snap, err := r.holder.Reload()
	if err != nil {
		r.metrics.IndexReloadsTotal.WithLabelValues("failed").Inc()
		return err
	}
	r.metrics.IndexReloadsTotal.WithLabelValues("success").Inc()
	r.metrics.IndexVectors.Set(float64(snap.Index.Len()))
	if r.cache != nil {
		if err := r.cache.Invalidate(ctx); err != nil {
			r.logger.Warn("cache invalidation after reload failed", "error", err)
		}
	}
	return nil
}

// HandleRebuilt returns a Kafka handler for index.rebuilt events. Events for
// a different index path are ignored. A failed reload is logged and
// committed; the next rebuild event retries.
func (r *Reloader) HandleRebuilt() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		ev, err := kafka.DecodeJSON[adjust.RebuiltEvent](value)
		if err != nil {
			r.logger.Error("failed to decode rebuilt event", "key", string(key), "error", err)
			return nil
		}
		if ev.IndexPath != "" && ev.IndexPath != r.holder.Path() {
			r.logger.Debug("ignoring rebuild of another index", "path", ev.IndexPath)
			return nil
		}
		if err := r.Reload(ctx); err != nil {
			r.logger.Error("reload after rebuild failed", "run_id", ev.RunID, "error", err)
			return nil
		}
		r.logger.Info("index reloaded after rebuild", "run_id", ev.RunID, "vectors", ev.Vectors)
		return nil
	}
}
