// Package feedback holds the user-judgment log: the validated Record type,
// the append-only CSV and PostgreSQL stores, and the Kafka event plumbing
// that feeds them.
package feedback

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/errors"
)

// Mode records how the judgment was collected.
type Mode string

const (
	ModePerMovie Mode = "per_movie"
)

// TimeLayout is the timestamp format of the datetime column.
const TimeLayout = "2006-01-02 15:04:05.000000"

// Column names of the feedback log, in file order.
var Columns = []string{"datetime", "user_query", "title", "liked", "comment", "mode"}

// Record is one user judgment. Records are immutable once appended and
// identified only by their position in the log.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Query     string    `json:"user_query"`
	Title     string    `json:"title"`
	Liked     bool      `json:"liked"`
	Comment   string    `json:"comment"`
	Mode      Mode      `json:"mode"`
}

// Polarity returns "positive" or "negative".
func (r Record) Polarity() string {
	if r.Liked {
		return "positive"
	}
	return "negative"
}

// FormatLiked renders the liked flag as stored in the log.
func FormatLiked(liked bool) string {
	if liked {
		return "True"
	}
	return "False"
}

// ParseLiked accepts "true"/"false" in any case with surrounding whitespace.
// Anything else is reported as not ok.
func ParseLiked(s string) (liked bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}

// ParseTime reads the datetime column. Fractional seconds are optional and
// RFC 3339 is accepted as well.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.Local); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// FromRow builds a Record from a row keyed by column name. Missing text
// fields become empty strings and an unreadable timestamp becomes the zero
// time; only an unrecognised liked value rejects the row.
func FromRow(row map[string]string) (Record, error) {
	liked, ok := ParseLiked(row["liked"])
	if !ok {
		return Record{}, fmt.Errorf("%w: liked=%q", apperrors.ErrMalformedRecord, row["liked"])
	}
	ts, _ := ParseTime(row["datetime"])
	mode := Mode(strings.TrimSpace(row["mode"]))
	if mode == "" {
		mode = ModePerMovie
	}
	return Record{
		Timestamp: ts,
		Query:     row["user_query"],
		Title:     row["title"],
		Liked:     liked,
		Comment:   row["comment"],
		Mode:      mode,
	}, nil
}

// Row renders the record in column order.
func (r Record) Row() []string {
	return []string{
		r.Timestamp.Format(TimeLayout),
		r.Query,
		r.Title,
		FormatLiked(r.Liked),
		r.Comment,
		string(r.Mode),
	}
}

// Validate checks a record coming from an API or a message before it is
// appended. Stored rows are never re-validated.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: title is required", apperrors.ErrInvalidInput)
	}
	if r.Mode == "" {
		return fmt.Errorf("%w: mode is required", apperrors.ErrInvalidInput)
	}
	return nil
}
