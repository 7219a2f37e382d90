package adjust

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/keyword"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Multipliers holds one scale factor per item, in item order.
type Multipliers []float64

// Ones returns n multipliers set to 1.
func Ones(n int) Multipliers {
	m := make(Multipliers, n)
	for i := range m {
		m[i] = 1
	}
	return m
}

// Config holds the adjustment rates. A record whose keywords all occur in an
// item's text scales it by 1-PenaltyRate (dislike) or 1+BoostRate (like);
// partial matches scale proportionally.
type Config struct {
	PenaltyRate float64
	BoostRate   float64
	KeywordTopN int
	// Workers bounds concurrent keyword extraction calls.
	Workers int
}

// DefaultConfig returns the rates the recommender ships with.
func DefaultConfig() Config {
	return Config{
		PenaltyRate: 0.05,
		BoostRate:   0.05,
		KeywordTopN: 3,
		Workers:     runtime.GOMAXPROCS(0),
	}
}

// Summary describes one aggregation.
type Summary struct {
	Records            int     `json:"records"`
	Negative           int     `json:"negative"`
	Positive           int     `json:"positive"`
	Skipped            int     `json:"skipped"`
	TitleFallbacks     int     `json:"title_fallbacks"`
	ExtractionFailures int     `json:"extraction_failures"`
	ItemsAdjusted      int     `json:"items_adjusted"`
	MinMultiplier      float64 `json:"min_multiplier"`
	MaxMultiplier      float64 `json:"max_multiplier"`
	// NoOp is set when there were no records to apply.
	NoOp bool `json:"noop"`
}

// Aggregator computes multipliers from feedback records.
type Aggregator struct {
	cfg       Config
	extractor keyword.Extractor
	metrics   *metrics.Metrics
}

func NewAggregator(cfg Config, extractor keyword.Extractor, m *metrics.Metrics) *Aggregator {
	if cfg.KeywordTopN <= 0 {
		cfg.KeywordTopN = 3
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Aggregator{cfg: cfg, extractor: extractor, metrics: m}
}

type resolved struct {
	keywords []string
	fallback bool
	failed   bool
}

// Aggregate returns one multiplier per item of items. Every record is
// scanned against every item; factors compose by multiplication, so the
// result does not depend on record order. Extraction failures degrade the
// record to its title and never fail the call; only ctx cancellation does.
func (a *Aggregator) Aggregate(ctx context.Context, records []feedback.Record, items Matcher) (Multipliers, Summary, error) {
	log := logger.FromContext(ctx).With("component", "aggregator")
	n := items.Len()
	mult := Ones(n)
	summary := Summary{Records: len(records), MinMultiplier: 1, MaxMultiplier: 1}
	if len(records) == 0 {
		summary.NoOp = true
		return mult, summary, nil
	}

	keywords, err := a.resolveKeywords(ctx, records)
	if err != nil {
		return nil, Summary{}, err
	}

	for i, rec := range records {
		polarity := rec.Polarity()
		if rec.Liked {
			summary.Positive++
		} else {
			summary.Negative++
		}
		kw := keywords[i]
		if kw.failed {
			summary.ExtractionFailures++
		}
		if kw.fallback {
			summary.TitleFallbacks++
		}
		if len(kw.keywords) == 0 {
			summary.Skipped++
			a.metrics.FeedbackRecordsTotal.WithLabelValues(polarity, "skipped").Inc()
			log.Debug("record has no usable keywords", "position", i)
			continue
		}

		rate := -a.cfg.PenaltyRate
		if rec.Liked {
			rate = a.cfg.BoostRate
		}
		total := float64(len(kw.keywords))
		for _, m := range items.Matches(kw.keywords) {
			proportion := float64(m.Count) / total
			mult[m.Item] *= 1 + proportion*rate
		}
		a.metrics.FeedbackRecordsTotal.WithLabelValues(polarity, "applied").Inc()
	}

	for _, m := range mult {
		if m == 1 {
			continue
		}
		summary.ItemsAdjusted++
		summary.MinMultiplier = min(summary.MinMultiplier, m)
		summary.MaxMultiplier = max(summary.MaxMultiplier, m)
		a.metrics.ItemMultiplier.Observe(m)
	}
	a.metrics.ItemsAdjusted.Set(float64(summary.ItemsAdjusted))

	log.Info("feedback aggregated",
		"negative", summary.Negative,
		"positive", summary.Positive,
		"skipped", summary.Skipped,
		"items_adjusted", summary.ItemsAdjusted,
	)
	return mult, summary, nil
}

// resolveKeywords extracts keywords for every record concurrently, keeping
// results in record order.
func (a *Aggregator) resolveKeywords(ctx context.Context, records []feedback.Record) ([]resolved, error) {
	out := make([]resolved, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Workers)
	for i := range records {
		g.Go(func() error {
			out[i] = a.keywordsFor(gctx, records[i])
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// keywordsFor extracts from the comment, falling back to the whole title
// when the comment is blank or yields nothing.
func (a *Aggregator) keywordsFor(ctx context.Context, rec feedback.Record) resolved {
	var r resolved
	if strings.TrimSpace(rec.Comment) != "" {
		kws, err := a.extractor.Extract(ctx, rec.Comment, a.cfg.KeywordTopN)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				a.metrics.KeywordExtractFailures.Inc()
				slog.Default().Warn("keyword extraction failed, using title",
					"component", "aggregator",
					"title", rec.Title,
					"error", err,
				)
			}
			r.failed = true
		} else {
			r.keywords = keyword.Normalize(kws)
		}
	}
	if len(r.keywords) == 0 {
		r.keywords = keyword.Normalize([]string{rec.Title})
		r.fallback = len(r.keywords) > 0
	}
	return r
}
