package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/resilience"
)

// appendRetry governs how the ingester retries a failing store. Attempts are
// unbounded; only cancellation of the consumer context gives up.
var appendRetry = resilience.RetryConfig{
	MaxAttempts:  math.MaxInt,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     30 * time.Second,
}

// Publisher is a Sink that forwards judgments to the feedback topic; the
// ingester consumes them and appends to the Store. It lets several API
// processes share one log without contending on the file.
type Publisher struct {
	producer kafka.Publisher
	logger   *slog.Logger
}

func NewPublisher(producer kafka.Publisher) *Publisher {
	return &Publisher{
		producer: producer,
		logger:   slog.Default().With("component", "feedback-publisher"),
	}
}

func (p *Publisher) Append(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if err := p.producer.Publish(ctx, kafka.Event{Key: rec.Title, Value: rec}); err != nil {
		return fmt.Errorf("publishing feedback for %q: %w", rec.Title, err)
	}
	return nil
}

// HandleMessage returns a Kafka MessageHandler that appends each feedback
// event to store. Undecodable or invalid events are logged and committed.
// Append failures are retried with backoff on the same event until the store
// accepts it or ctx ends; only then is an error returned, and the consumer
// leaves the offset uncommitted.
func HandleMessage(store Sink, m *metrics.Metrics) kafka.MessageHandler {
	if m == nil {
		m = metrics.NewNop()
	}
	logger := slog.Default().With("component", "feedback-ingest")
	return func(ctx context.Context, key []byte, value []byte) error {
		rec, err := kafka.DecodeJSON[Record](value)
		if err != nil {
			logger.Error("failed to decode feedback event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if err := rec.Validate(); err != nil {
			logger.Warn("dropping invalid feedback event", "key", string(key), "error", err)
			return nil
		}
		err = resilience.Retry(ctx, "feedback-append", appendRetry, func() error {
			if err := store.Append(ctx, rec); err != nil {
				m.FeedbackAppendsTotal.WithLabelValues("error").Inc()
				return err
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("appending feedback for %q: %w", rec.Title, err)
		}
		m.FeedbackAppendsTotal.WithLabelValues("ok").Inc()
		logger.Info("feedback ingested",
			"title", rec.Title,
			"liked", rec.Liked,
		)
		return nil
	}
}
