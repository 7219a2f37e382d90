// Package handler exposes the recommender over HTTP: recommendations,
// feedback submission, on-demand reindexing and index/cache inspection.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/adjust"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/recommend"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/recommend/cache"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/vectorindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/metrics"
)

type Recommender interface {
	Recommend(ctx context.Context, query string, topN int) (*recommend.Result, error)
	TopRated(n int) *recommend.Result
}

type Reindexer interface {
	Run(ctx context.Context) (adjust.Run, error)
	Runs() adjust.RunStore
}

type IndexReloader interface {
	Reload(ctx context.Context) error
}

// Deps groups the collaborators of Handler. Cache, Job and Reloader are
// optional.
type Deps struct {
	Service     Recommender
	Cache       *cache.ResultCache
	Feedback    feedback.Sink
	Job         Reindexer
	Reloader    IndexReloader
	Holder      *vectorindex.Holder
	Metrics     *metrics.Metrics
	DefaultTopN int
	MaxTopN     int
}

type Handler struct {
	Deps
	logger *slog.Logger
}

func New(d Deps) *Handler {
	if d.Metrics == nil {
		d.Metrics = metrics.NewNop()
	}
	if d.DefaultTopN <= 0 {
		d.DefaultTopN = 5
	}
	if d.MaxTopN < d.DefaultTopN {
		d.MaxTopN = max(d.DefaultTopN, 10)
	}
	return &Handler{
		Deps:   d,
		logger: slog.Default().With("component", "recommend-handler"),
	}
}

// Routes are the paths Register installs, for metric labelling.
var Routes = []string{
	"/api/v1/recommendations",
	"/api/v1/feedback",
	"/api/v1/reindex",
	"/api/v1/index/stats",
	"/api/v1/index/runs",
	"/api/v1/cache/stats",
	"/api/v1/cache/invalidate",
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/recommendations", h.Recommend)
	mux.HandleFunc("POST /api/v1/feedback", h.SubmitFeedback)
	mux.HandleFunc("POST /api/v1/reindex", h.Reindex)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/index/runs", h.Runs)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// Recommend serves GET /api/v1/recommendations?q=...&top_n=N. Without a
// query it returns a random pick of top-rated movies.
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	topN := h.DefaultTopN
	if s := r.URL.Query().Get("top_n"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "top_n must be a positive integer")
			return
		}
		topN = min(n, h.MaxTopN)
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		h.writeJSON(w, http.StatusOK, h.Service.TopRated(topN))
		return
	}

	var (
		result   *recommend.Result
		cacheHit bool
		err      error
	)
	if h.Cache != nil {
		result, cacheHit, err = h.Cache.GetOrCompute(ctx, query, topN, func() (*recommend.Result, error) {
			return h.Service.Recommend(ctx, query, topN)
		})
	} else {
		result, err = h.Service.Recommend(ctx, query, topN)
	}
	if err != nil {
		log.Error("recommendation failed", "query", query, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "recommendation failed")
		return
	}

	log.Info("recommendation served",
		"query", query,
		"top_n", topN,
		"returned", len(result.Recommendations),
		"cache_hit", cacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

// Judgment is one like or dislike on a recommended movie.
type Judgment struct {
	Title   string `json:"title"`
	Liked   *bool  `json:"liked"`
	Comment string `json:"comment"`
}

type feedbackRequest struct {
	Query     string     `json:"query"`
	Judgments []Judgment `json:"judgments"`
	Reindex   bool       `json:"reindex"`
}

type feedbackResponse struct {
	Appended int         `json:"appended"`
	Run      *adjust.Run `json:"run,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// SubmitFeedback stores one record per judgment and optionally reindexes.
// A like never carries a comment: only dislikes explain themselves.
func (h *Handler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req feedbackRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Judgments) == 0 {
		h.writeError(w, http.StatusBadRequest, "at least one judgment is required")
		return
	}

	now := time.Now()
	records := make([]feedback.Record, 0, len(req.Judgments))
	for i, j := range req.Judgments {
		if j.Liked == nil {
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("judgment %d: liked is required", i))
			return
		}
		rec := feedback.Record{
			Timestamp: now,
			Query:     req.Query,
			Title:     j.Title,
			Liked:     *j.Liked,
			Mode:      feedback.ModePerMovie,
		}
		if !rec.Liked {
			rec.Comment = j.Comment
		}
		if err := rec.Validate(); err != nil {
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("judgment %d: %v", i, err))
			return
		}
		records = append(records, rec)
	}

	var resp feedbackResponse
	for _, rec := range records {
		if err := h.Feedback.Append(ctx, rec); err != nil {
			h.Metrics.FeedbackAppendsTotal.WithLabelValues("error").Inc()
			logger.FromContext(ctx).Error("feedback append failed", "title", rec.Title, "error", err)
			resp.Error = "storing feedback failed"
			h.writeJSON(w, apperrors.HTTPStatusCode(err), resp)
			return
		}
		h.Metrics.FeedbackAppendsTotal.WithLabelValues("ok").Inc()
		resp.Appended++
	}

	if !req.Reindex {
		h.writeJSON(w, http.StatusCreated, resp)
		return
	}
	run, status, err := h.reindex(ctx)
	if run.ID != "" {
		resp.Run = &run
	}
	if err != nil {
		resp.Error = err.Error()
	}
	h.writeJSON(w, status, resp)
}

// Reindex serves POST /api/v1/reindex.
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	run, status, err := h.reindex(r.Context())
	if err != nil {
		h.writeError(w, status, err.Error())
		return
	}
	h.writeJSON(w, status, run)
}

func (h *Handler) reindex(ctx context.Context) (adjust.Run, int, error) {
	if h.Job == nil {
		return adjust.Run{}, http.StatusServiceUnavailable, errors.New("reindexing is not enabled")
	}
	run, err := h.Job.Run(ctx)
	switch {
	case errors.Is(err, apperrors.ErrMissingFeedback):
		return run, http.StatusOK, nil
	case err != nil:
		return run, apperrors.HTTPStatusCode(err), err
	}
	if run.Status == adjust.StatusSuccess && h.Reloader != nil {
		if err := h.Reloader.Reload(ctx); err != nil {
			logger.FromContext(ctx).Error("reload after reindex failed", "run_id", run.ID, "error", err)
			return run, http.StatusInternalServerError, fmt.Errorf("index rebuilt but reload failed: %w", err)
		}
	}
	return run, http.StatusOK, nil
}

type indexStats struct {
	Path      string    `json:"path"`
	Vectors   int       `json:"vectors"`
	Dim       int       `json:"dim"`
	Metric    string    `json:"metric"`
	CreatedAt time.Time `json:"created_at"`
	LoadedAt  time.Time `json:"loaded_at"`
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Holder.Current()
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, indexStats{
		Path:      snap.Path,
		Vectors:   snap.Index.Len(),
		Dim:       snap.Index.Dim(),
		Metric:    snap.Header.Metric.String(),
		CreatedAt: time.Unix(snap.Header.CreatedAt, 0).UTC(),
		LoadedAt:  snap.LoadedAt.UTC(),
	})
}

func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	if h.Job == nil || h.Job.Runs() == nil {
		h.writeJSON(w, http.StatusOK, []adjust.Run{})
		return
	}
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 200)
	}
	runs, err := h.Job.Runs().List(r.Context(), limit)
	if err != nil {
		h.logger.Error("listing runs failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "listing runs failed")
		return
	}
	if runs == nil {
		runs = []adjust.Run{}
	}
	h.writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.Cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.Cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.Cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.Cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
