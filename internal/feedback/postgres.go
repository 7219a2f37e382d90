package feedback

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/postgres"
)

// PostgresStore keeps the feedback log in a table instead of a CSV file.
// Append order is the BIGSERIAL id.
//
//	CREATE TABLE feedback_records (
//	    id         BIGSERIAL PRIMARY KEY,
//	    created_at TIMESTAMPTZ NOT NULL,
//	    user_query TEXT NOT NULL DEFAULT '',
//	    title      TEXT NOT NULL DEFAULT '',
//	    liked      BOOLEAN NOT NULL,
//	    comment    TEXT NOT NULL DEFAULT '',
//	    mode       TEXT NOT NULL
//	);
type PostgresStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

const feedbackSchema = `CREATE TABLE IF NOT EXISTS feedback_records (
	id         BIGSERIAL PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	user_query TEXT NOT NULL DEFAULT '',
	title      TEXT NOT NULL DEFAULT '',
	liked      BOOLEAN NOT NULL,
	comment    TEXT NOT NULL DEFAULT '',
	mode       TEXT NOT NULL
)`

// NewPostgresStore creates the table if needed.
func NewPostgresStore(ctx context.Context, db *postgres.Client) (*PostgresStore, error) {
	if err := db.EnsureSchema(ctx, feedbackSchema); err != nil {
		return nil, fmt.Errorf("creating feedback_records: %w", err)
	}
	return &PostgresStore{
		db:     db,
		logger: slog.Default().With("component", "feedback-postgres"),
	}, nil
}

func (s *PostgresStore) Append(ctx context.Context, rec Record) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO feedback_records (created_at, user_query, title, liked, comment, mode)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.Timestamp, rec.Query, rec.Title, rec.Liked, rec.Comment, string(rec.Mode),
	)
	if err != nil {
		return apperrors.IOf(err, "inserting feedback record")
	}
	return nil
}

func (s *PostgresStore) ReadAll(ctx context.Context) ([]Record, ReadStats, error) {
	var stats ReadStats
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT created_at, user_query, title, liked, comment, mode
		 FROM feedback_records ORDER BY id`,
	)
	if err != nil {
		return nil, stats, apperrors.IOf(err, "querying feedback records")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		stats.Rows++
		var rec Record
		var mode string
		if err := rows.Scan(&rec.Timestamp, &rec.Query, &rec.Title, &rec.Liked, &rec.Comment, &mode); err != nil {
			stats.Malformed++
			s.logger.Warn("skipping unreadable feedback row", "error", err)
			continue
		}
		rec.Mode = Mode(mode)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, stats, apperrors.IOf(err, "iterating feedback records")
	}
	if stats.Rows == 0 {
		return nil, stats, fmt.Errorf("%w: feedback_records is empty", apperrors.ErrMissingFeedback)
	}
	return records, stats, nil
}

// Close leaves the shared client open; its owner closes it.
func (s *PostgresStore) Close() error {
	return nil
}
