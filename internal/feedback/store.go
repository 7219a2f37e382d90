package feedback

import "context"

// Sink accepts new judgments. Stores implement it directly; the Kafka
// publisher implements it by forwarding to the ingester.
type Sink interface {
	Append(ctx context.Context, rec Record) error
}

// Store is the append-only feedback log.
type Store interface {
	Sink
	// ReadAll returns every well-formed record in append order. An absent or
	// empty log yields an error wrapping errors.ErrMissingFeedback.
	ReadAll(ctx context.Context) ([]Record, ReadStats, error)
	Close() error
}

// ReadStats describes what ReadAll saw besides the returned records.
type ReadStats struct {
	Rows      int
	Malformed int
}
