package feedback

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/errors"
)

// CSVLog is the file-backed feedback log. The file comes into existence with
// its header already written: the header goes to a temporary file that is
// hard-linked into place, and only one linker can win. Each Append then
// encodes the whole row into one buffer and issues a single write on an
// O_APPEND descriptor, so appenders in any number of processes never
// interleave and a reader only ever sees complete rows, except possibly a torn
// final line after a crash, which ReadAll discards.
type CSVLog struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewCSVLog returns a log stored at path. The file is created on the first
// Append.
func NewCSVLog(path string) *CSVLog {
	return &CSVLog{
		path:   path,
		logger: slog.Default().With("component", "feedback-csv", "path", path),
	}
}

// Path returns the log file location.
func (l *CSVLog) Path() string {
	return l.path
}

func (l *CSVLog) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.create(); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return apperrors.IOf(err, "opening feedback log %s", l.path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return apperrors.IOf(err, "stat feedback log")
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	// Only a file emptied or pre-created by something else is headerless here.
	if info.Size() == 0 {
		if err := w.Write(Columns); err != nil {
			return fmt.Errorf("encoding header: %w", err)
		}
	}
	if err := w.Write(rec.Row()); err != nil {
		return fmt.Errorf("encoding feedback row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encoding feedback row: %w", err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return apperrors.IOf(err, "appending to feedback log")
	}
	l.logger.Debug("feedback appended",
		"title", rec.Title,
		"liked", rec.Liked,
		"has_comment", rec.Comment != "",
	)
	return nil
}

// create installs a header-only log at l.path unless a file is already there.
func (l *CSVLog) create() error {
	if _, err := os.Stat(l.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return apperrors.IOf(err, "stat feedback log")
	}
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.IOf(err, "creating feedback directory")
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Columns); err != nil {
		return fmt.Errorf("encoding header: %w", err)
	}
	w.Flush()

	tmp, err := os.CreateTemp(dir, filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return apperrors.IOf(err, "creating feedback header file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return apperrors.IOf(err, "writing feedback header")
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return apperrors.IOf(err, "setting feedback log mode")
	}
	if err := tmp.Close(); err != nil {
		return apperrors.IOf(err, "closing feedback header file")
	}
	if err := os.Link(tmp.Name(), l.path); err != nil && !os.IsExist(err) {
		return apperrors.IOf(err, "installing feedback log %s", l.path)
	}
	return nil
}

func (l *CSVLog) ReadAll(ctx context.Context) ([]Record, ReadStats, error) {
	var stats ReadStats
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, stats, fmt.Errorf("%w: %s does not exist", apperrors.ErrMissingFeedback, l.path)
		}
		return nil, stats, apperrors.IOf(err, "reading feedback log %s", l.path)
	}
	// A concurrent or interrupted append can leave an unterminated last line.
	if i := bytes.LastIndexByte(data, '\n'); i >= 0 {
		data = data[:i+1]
	} else {
		data = nil
	}
	records, stats, err := decodeRows(ctx, bytes.NewReader(data), l.logger)
	if err != nil {
		return nil, stats, err
	}
	if len(records) == 0 && stats.Rows == 0 {
		return nil, stats, fmt.Errorf("%w: %s has no rows", apperrors.ErrMissingFeedback, l.path)
	}
	return records, stats, nil
}

// Close is a no-op; CSVLog holds no open descriptors between calls.
func (l *CSVLog) Close() error {
	return nil
}

func decodeRows(ctx context.Context, r io.Reader, logger *slog.Logger) ([]Record, ReadStats, error) {
	var stats ReadStats
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, stats, nil
		}
		return nil, stats, fmt.Errorf("%w: reading header: %v", apperrors.ErrMalformedRecord, err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	if _, ok := index["liked"]; !ok {
		return nil, stats, fmt.Errorf("%w: header has no liked column", apperrors.ErrMalformedRecord)
	}

	var records []Record
	for {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		// A second header can appear when two writers both found the file empty.
		if err == nil && slices.Equal(fields, header) {
			continue
		}
		stats.Rows++
		if err != nil {
			stats.Malformed++
			logger.Warn("skipping unparsable feedback row", "error", err)
			continue
		}
		row := make(map[string]string, len(index))
		for name, i := range index {
			if i < len(fields) {
				row[name] = fields[i]
			}
		}
		rec, err := FromRow(row)
		if err != nil {
			stats.Malformed++
			logger.Warn("skipping malformed feedback row", "row", stats.Rows, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, stats, nil
}
