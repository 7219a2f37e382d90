package adjust

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/postgres"
)

const (
	StatusSuccess = "success"
	StatusNoop    = "noop"
	StatusFailed  = "failed"
)

// Run is the record of one reindex attempt.
type Run struct {
	ID         string                   `json:"id"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	Status     string                   `json:"status"`
	Reason     string                   `json:"reason,omitempty"`
	Feedback   feedback.ReadStats       `json:"feedback"`
	Summary    Summary                  `json:"summary"`
	Vectors    int                      `json:"vectors"`
	IndexPath  string                   `json:"index_path"`
	Phases     map[string]time.Duration `json:"phases,omitempty"`
}

func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunStore keeps reindex history.
type RunStore interface {
	Save(ctx context.Context, run Run) error
	List(ctx context.Context, limit int) ([]Run, error)
}

// MemoryRunStore keeps the most recent runs in process memory.
type MemoryRunStore struct {
	mu   sync.Mutex
	runs []Run
	max  int
}

func NewMemoryRunStore(max int) *MemoryRunStore {
	if max <= 0 {
		max = 50
	}
	return &MemoryRunStore{max: max}
}

func (s *MemoryRunStore) Save(_ context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	if len(s.runs) > s.max {
		s.runs = s.runs[len(s.runs)-s.max:]
	}
	return nil
}

// List returns up to limit runs, newest first.
func (s *MemoryRunStore) List(_ context.Context, limit int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Run, 0, min(limit, len(s.runs)))
	for i := len(s.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.runs[i])
	}
	return out, nil
}

// PostgresRunStore persists runs as JSONB rows.
//
//	CREATE TABLE reindex_runs (
//	    id          TEXT PRIMARY KEY,
//	    status      TEXT NOT NULL,
//	    data        JSONB NOT NULL,
//	    started_at  TIMESTAMPTZ NOT NULL,
//	    finished_at TIMESTAMPTZ NOT NULL
//	);
type PostgresRunStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

const runsSchema = `CREATE TABLE IF NOT EXISTS reindex_runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	data        JSONB NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
)`

func NewPostgresRunStore(ctx context.Context, db *postgres.Client) (*PostgresRunStore, error) {
	if err := db.EnsureSchema(ctx, runsSchema); err != nil {
		return nil, fmt.Errorf("creating reindex_runs: %w", err)
	}
	return &PostgresRunStore{
		db:     db,
		logger: slog.Default().With("component", "run-store"),
	}, nil
}

func (s *PostgresRunStore) Save(ctx context.Context, run Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}
	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO reindex_runs (id, status, data, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, data = EXCLUDED.data, finished_at = EXCLUDED.finished_at`,
		run.ID, run.Status, data, run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", run.ID, err)
	}
	s.logger.Debug("run saved", "run_id", run.ID, "status", run.Status)
	return nil
}

func (s *PostgresRunStore) List(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT data FROM reindex_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		var run Run
		if err := json.Unmarshal(data, &run); err != nil {
			s.logger.Warn("skipping corrupt run row", "error", err)
			continue
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
