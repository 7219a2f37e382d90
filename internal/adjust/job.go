package adjust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/vectorindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/tracing"
)

// RebuiltEvent is published after a new index file is installed.
type RebuiltEvent struct {
	RunID     string    `json:"run_id"`
	IndexPath string    `json:"index_path"`
	Vectors   int       `json:"vectors"`
	BuiltAt   time.Time `json:"built_at"`
}

// Invalidator drops state derived from the previous index.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// JobConfig locates the inputs and output of a run.
type JobConfig struct {
	CatalogPath string
	IndexPath   string
	Matcher     string
}

// Job runs feedback aggregation and index rebuild end to end. At most one
// run is in flight per Job.
type Job struct {
	cfg        JobConfig
	store      feedback.Store
	aggregator *Aggregator
	metrics    *metrics.Metrics
	events     kafka.Publisher
	cache      Invalidator
	runs       RunStore

	mu sync.Mutex
}

// Option configures optional collaborators of a Job.
type Option func(*Job)

// WithEvents publishes a RebuiltEvent after each successful rebuild.
func WithEvents(p kafka.Publisher) Option {
	return func(j *Job) { j.events = p }
}

// WithInvalidator clears cached recommendations after each rebuild.
func WithInvalidator(inv Invalidator) Option {
	return func(j *Job) { j.cache = inv }
}

// WithRunStore records every run.
func WithRunStore(rs RunStore) Option {
	return func(j *Job) { j.runs = rs }
}

func NewJob(cfg JobConfig, store feedback.Store, agg *Aggregator, m *metrics.Metrics, opts ...Option) *Job {
	if m == nil {
		m = metrics.NewNop()
	}
	j := &Job{cfg: cfg, store: store, aggregator: agg, metrics: m}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Runs returns the run history, or nil when none is kept.
func (j *Job) Runs() RunStore {
	return j.runs
}

// Run reads the whole feedback log, computes multipliers against the
// catalog, and installs a rescaled index. An absent or empty log returns a
// noop run with an error wrapping ErrMissingFeedback; a concurrent call
// returns ErrRebuildInProgress. Failures before the rename leave the
// installed index untouched.
func (j *Job) Run(ctx context.Context) (Run, error) {
	if !j.mu.TryLock() {
		return Run{}, apperrors.ErrRebuildInProgress
	}
	defer j.mu.Unlock()

	run := Run{
		ID:        fmt.Sprintf("run_%d", time.Now().UnixNano()),
		StartedAt: time.Now(),
		IndexPath: j.cfg.IndexPath,
	}
	ctx = logger.WithRunID(ctx, run.ID)
	log := logger.FromContext(ctx).With("component", "reindex")
	ctx, root := tracing.StartSpan(ctx, "reindex", run.ID)
	log.Info("reindex started", "index", j.cfg.IndexPath, "catalog", j.cfg.CatalogPath)

	err := j.run(ctx, &run)

	root.End()
	run.FinishedAt = time.Now()
	run.Phases = root.Phases()
	root.Log(log)

	switch {
	case err == nil && run.Status == "":
		run.Status = StatusSuccess
	case errors.Is(err, apperrors.ErrMissingFeedback):
		run.Status = StatusNoop
		run.Reason = err.Error()
	case err != nil:
		run.Status = StatusFailed
		run.Reason = err.Error()
	}
	j.metrics.ReindexRunsTotal.WithLabelValues(run.Status).Inc()
	j.metrics.ReindexDuration.Observe(run.Duration().Seconds())
	j.record(ctx, log, run)

	attrs := []any{
		"status", run.Status,
		"negative", run.Summary.Negative,
		"positive", run.Summary.Positive,
		"vectors", run.Vectors,
		"duration", run.Duration(),
	}
	switch run.Status {
	case StatusFailed:
		log.Error("reindex failed", append(attrs, "error", err)...)
	case StatusNoop:
		log.Info("reindex skipped", append(attrs, "reason", run.Reason)...)
	default:
		log.Info("reindex complete", attrs...)
	}
	return run, err
}

func (j *Job) run(ctx context.Context, run *Run) error {
	records, stats, err := j.readFeedback(ctx)
	run.Feedback = stats
	if err != nil {
		return err
	}

	cat, idx, err := j.loadInputs(ctx)
	if err != nil {
		return err
	}

	matcher, err := NewMatcher(j.cfg.Matcher, cat.Texts())
	if err != nil {
		return err
	}
	actx, span := tracing.StartChildSpan(ctx, "aggregate")
	mult, summary, err := j.aggregator.Aggregate(actx, records, matcher)
	span.SetAttr("records", len(records))
	span.End()
	if err != nil {
		return fmt.Errorf("aggregating feedback: %w", err)
	}
	run.Summary = summary
	if summary.NoOp {
		run.Status = StatusNoop
		run.Reason = "no well-formed feedback records"
		return nil
	}

	_, span = tracing.StartChildSpan(ctx, "rebuild")
	n, err := Rebuild(idx.Vectors(), mult, j.cfg.IndexPath)
	span.SetAttr("vectors", n)
	span.End()
	if err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}
	run.Vectors = n

	j.announce(ctx, *run)
	return nil
}

func (j *Job) readFeedback(ctx context.Context) ([]feedback.Record, feedback.ReadStats, error) {
	ctx, span := tracing.StartChildSpan(ctx, "read_feedback")
	defer span.End()
	records, stats, err := j.store.ReadAll(ctx)
	span.SetAttr("rows", stats.Rows)
	span.SetAttr("malformed", stats.Malformed)
	if err != nil {
		return nil, stats, err
	}
	if stats.Malformed > 0 {
		j.metrics.FeedbackRecordsTotal.WithLabelValues("unknown", "malformed").Add(float64(stats.Malformed))
		logger.FromContext(ctx).Warn("skipped malformed feedback rows",
			"component", "reindex",
			"malformed", stats.Malformed,
			"rows", stats.Rows,
		)
	}
	return records, stats, nil
}

func (j *Job) loadInputs(ctx context.Context) (*catalog.Catalog, *vectorindex.Index, error) {
	_, span := tracing.StartChildSpan(ctx, "load_inputs")
	defer span.End()
	cat, err := catalog.Load(j.cfg.CatalogPath)
	if err != nil {
		return nil, nil, err
	}
	idx, _, err := vectorindex.ReadFile(j.cfg.IndexPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading index: %w", err)
	}
	if cat.Len() != idx.Len() {
		return nil, nil, apperrors.Shapef("catalog has %d items, index has %d vectors", cat.Len(), idx.Len())
	}
	span.SetAttr("items", cat.Len())
	span.SetAttr("dim", idx.Dim())
	return cat, idx, nil
}

// announce tells readers about the new file. The index is already installed,
// so failures here are logged and do not fail the run.
func (j *Job) announce(ctx context.Context, run Run) {
	log := logger.FromContext(ctx).With("component", "reindex")
	if j.cache != nil {
		if err := j.cache.Invalidate(ctx); err != nil {
			log.Warn("cache invalidation failed", "error", err)
		}
	}
	if j.events != nil {
		ev := RebuiltEvent{
			RunID:     run.ID,
			IndexPath: run.IndexPath,
			Vectors:   run.Vectors,
			BuiltAt:   time.Now().UTC(),
		}
		if err := j.events.Publish(ctx, kafka.Event{Key: run.ID, Value: ev}); err != nil {
			log.Warn("publishing index rebuilt event failed", "error", err)
		}
	}
}

func (j *Job) record(ctx context.Context, log *slog.Logger, run Run) {
	if j.runs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := j.runs.Save(ctx, run); err != nil {
		log.Warn("saving run history failed", "error", err)
	}
}
