// Package recommend answers free-text movie queries: the query is encoded,
// the installed vector index is searched, and hits are joined back to the
// catalog. Blank queries get a random pick of top-rated titles.
package recommend

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/vectorindex"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/metrics"
)

const (
	SourceIndex    = "index"
	SourceTopRated = "top_rated"
)

// Recommendation is one suggested movie.
type Recommendation struct {
	ID         int     `json:"id"`
	Title      string  `json:"title"`
	Overview   string  `json:"overview"`
	PosterPath *string `json:"poster_path"`
	Score      float32 `json:"score,omitempty"`
}

// Result is the answer to one query.
type Result struct {
	Query           string           `json:"query"`
	Source          string           `json:"source"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Service runs the query path against whatever index the holder currently
// publishes.
type Service struct {
	encoder  Encoder
	holder   *vectorindex.Holder
	catalog  *catalog.Catalog
	topRated []catalog.Item
	metrics  *metrics.Metrics
}

func NewService(enc Encoder, holder *vectorindex.Holder, cat *catalog.Catalog, topRatedN int, m *metrics.Metrics) *Service {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Service{
		encoder:  enc,
		holder:   holder,
		catalog:  cat,
		topRated: cat.TopRated(topRatedN),
		metrics:  m,
	}
}

// Recommend returns up to topN catalog items nearest to query. A blank query
// yields an empty result without touching the encoder.
func (s *Service) Recommend(ctx context.Context, query string, topN int) (*Result, error) {
	res := &Result{Query: query, Source: SourceIndex, Recommendations: []Recommendation{}}
	if strings.TrimSpace(query) == "" || topN <= 0 {
		return res, nil
	}
	start := time.Now()
	snap, err := s.holder.Current()
	if err != nil {
		s.metrics.RecommendationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	vec, err := s.encoder.Encode(ctx, query)
	if err != nil {
		s.metrics.RecommendationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	hits, err := snap.Index.Search(vec, topN)
	if err != nil {
		s.metrics.RecommendationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	for _, h := range hits {
		item, ok := s.catalog.Item(h.ID)
		if !ok {
			logger.FromContext(ctx).Warn("index hit outside catalog", "id", h.ID, "catalog_size", s.catalog.Len())
			continue
		}
		rec := toRecommendation(item)
		rec.Score = h.Score
		res.Recommendations = append(res.Recommendations, rec)
	}
	s.metrics.RecommendationsTotal.WithLabelValues(SourceIndex).Inc()
	s.metrics.RecommendationLatency.Observe(time.Since(start).Seconds())
	return res, nil
}

// TopRated returns a random sample of up to n of the best-rated items.
func (s *Service) TopRated(n int) *Result {
	res := &Result{Source: SourceTopRated, Recommendations: []Recommendation{}}
	n = min(n, len(s.topRated))
	for _, i := range rand.Perm(len(s.topRated))[:max(n, 0)] {
		res.Recommendations = append(res.Recommendations, toRecommendation(s.topRated[i]))
	}
	s.metrics.RecommendationsTotal.WithLabelValues(SourceTopRated).Inc()
	return res
}

func toRecommendation(item catalog.Item) Recommendation {
	rec := Recommendation{ID: item.ID, Title: item.Title, Overview: item.Overview}
	if item.Title == "" {
		rec.Title = "Untitled"
	}
	if item.PosterPath != "" {
		p := item.PosterPath
		rec.PosterPath = &p
	}
	return rec
}
