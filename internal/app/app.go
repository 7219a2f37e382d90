// Package app assembles the recommender's components from configuration.
// The reindex command only needs the batch side (Open); the HTTP service
// additionally calls Serve to load the catalog, the index and the encoder.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/adjust"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/keyword"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/recommend"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/recommend/cache"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/vectorindex"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/redis"
)

type App struct {
	Config  *config.Config
	Metrics *metrics.Metrics

	Feedback feedback.Store
	Job      *adjust.Job
	// Cache is nil when Redis is disabled or unreachable.
	Cache *cache.ResultCache

	postgres *postgres.Client
	redis    *pkgredis.Client
	events   *kafka.Producer
	closers  []func() error
	logger   *slog.Logger
}

// Serving holds the read side used by the HTTP service.
type Serving struct {
	Catalog  *catalog.Catalog
	Holder   *vectorindex.Holder
	Service  *recommend.Service
	Reloader *recommend.Reloader
}

// Open connects the configured backends and builds the reindex job. Redis is
// optional: a failed connection disables caching with a warning. PostgreSQL
// is required when it backs the feedback log or the run history.
func Open(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (_ *App, err error) {
	if m == nil {
		m = metrics.NewNop()
	}
	a := &App{Config: cfg, Metrics: m, logger: slog.Default().With("component", "app")}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if cfg.Feedback.Backend == config.FeedbackBackendPostgres || cfg.Adjust.RecordRuns {
		a.postgres, err = postgres.New(cfg.Postgres)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.postgres.Close)
	}

	if err := a.openFeedback(ctx); err != nil {
		return nil, err
	}

	if cfg.Redis.Enabled {
		rc, rerr := pkgredis.NewClient(cfg.Redis)
		if rerr != nil {
			a.logger.Warn("redis unavailable, caching disabled", "addr", cfg.Redis.Addr, "error", rerr)
		} else {
			a.redis = rc
			a.closers = append(a.closers, rc.Close)
			a.Cache = cache.New(rc, cfg.Redis.CacheTTL, m)
			a.logger.Info("recommendation cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	opts := []adjust.Option{}
	if a.Cache != nil {
		opts = append(opts, adjust.WithInvalidator(a.Cache))
	}
	if cfg.Kafka.Enabled {
		a.events = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexRebuilt)
		a.closers = append(a.closers, a.events.Close)
		opts = append(opts, adjust.WithEvents(a.events))
	}
	if cfg.Adjust.RecordRuns {
		runs, rerr := adjust.NewPostgresRunStore(ctx, a.postgres)
		if rerr != nil {
			return nil, rerr
		}
		opts = append(opts, adjust.WithRunStore(runs))
	} else {
		opts = append(opts, adjust.WithRunStore(adjust.NewMemoryRunStore(50)))
	}

	agg := adjust.NewAggregator(adjust.Config{
		PenaltyRate: cfg.Adjust.PenaltyRate,
		BoostRate:   cfg.Adjust.BoostRate,
		KeywordTopN: cfg.Adjust.KeywordTopN,
		Workers:     cfg.Adjust.ExtractWorkers,
	}, a.extractor(), m)

	a.Job = adjust.NewJob(adjust.JobConfig{
		CatalogPath: cfg.Catalog.Path,
		IndexPath:   cfg.Index.Path,
		Matcher:     cfg.Adjust.Matcher,
	}, a.Feedback, agg, m, opts...)
	return a, nil
}

func (a *App) openFeedback(ctx context.Context) error {
	switch a.Config.Feedback.Backend {
	case config.FeedbackBackendPostgres:
		store, err := feedback.NewPostgresStore(ctx, a.postgres)
		if err != nil {
			return err
		}
		a.Feedback = store
	default:
		a.Feedback = feedback.NewCSVLog(a.Config.Feedback.Path)
	}
	a.closers = append(a.closers, a.Feedback.Close)
	return nil
}

func (a *App) extractor() keyword.Extractor {
	var ex keyword.Extractor = keyword.NewStatistical()
	if a.Config.Keywords.Provider == config.KeywordsHTTP {
		ex = keyword.NewHTTPExtractor(a.Config.Keywords.URL, a.Config.Keywords.Timeout)
	}
	if a.redis != nil && a.Config.Keywords.CacheTTL > 0 {
		ex = keyword.NewCached(ex, a.redis, a.Config.Keywords.CacheTTL)
	}
	return ex
}

// Serve loads the catalog and the current index and builds the query path.
// A missing or corrupt index is logged and left unloaded so the process can
// start and pick up the next rebuild; readiness reports it as down.
func (a *App) Serve(ctx context.Context) (*Serving, error) {
	cat, err := catalog.Load(a.Config.Catalog.Path)
	if err != nil {
		return nil, err
	}
	holder := vectorindex.NewHolder(a.Config.Index.Path)
	var inv adjust.Invalidator
	if a.Cache != nil {
		inv = a.Cache
	}
	s := &Serving{
		Catalog:  cat,
		Holder:   holder,
		Reloader: recommend.NewReloader(holder, inv, a.Metrics),
	}
	if err := s.Reloader.Reload(ctx); err != nil {
		a.logger.Warn("index not loaded at startup", "path", a.Config.Index.Path, "error", err)
	} else if snap, _ := holder.Current(); snap.Index.Len() != cat.Len() {
		a.logger.Warn("catalog and index sizes differ",
			"catalog_rows", cat.Len(),
			"index_vectors", snap.Index.Len(),
		)
	}
	enc := recommend.NewHTTPEncoder(a.Config.Encoder.URL, a.Config.Encoder.Timeout)
	s.Service = recommend.NewService(enc, holder, cat, a.Config.Catalog.TopRatedN, a.Metrics)
	return s, nil
}

// RegisterHealth adds probes for every backend this App opened.
func (a *App) RegisterHealth(c *health.Checker, s *Serving) {
	if s != nil {
		c.Require("index", func(context.Context) error {
			_, err := s.Holder.Current()
			return err
		})
	}
	if a.postgres != nil {
		c.Require("postgres", a.postgres.Ping)
	}
	if a.redis != nil {
		c.Optional("redis", a.redis.Ping)
	}
	if csv, ok := a.Feedback.(*feedback.CSVLog); ok {
		c.Optional("feedback_log", func(context.Context) error {
			return checkWritableDir(csv.Path())
		})
	}
}

// Close releases backends in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("closing app: %w", errors.Join(errs...))
	}
	return nil
}
