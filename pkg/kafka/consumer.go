// Package kafka provides Kafka producer and consumer clients backed by
// segmentio/kafka-go. Feedback judgments and index-rebuilt notifications
// travel as JSON events; consumers decode them via a MessageHandler callback.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/resilience"
	"github.com/segmentio/kafka-go"
)

// MessageHandler is a callback invoked for each Kafka message. Returning an
// error leaves the message uncommitted and the consumer redelivers it to the
// handler after a pause; later messages wait behind it.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer reads messages from a Kafka topic and dispatches them to a
// MessageHandler.
type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	handler MessageHandler
}

// ConsumerOptions selects the consumer group and where a new group starts.
type ConsumerOptions struct {
	// GroupID overrides cfg.ConsumerGroup when set. Broadcast-style topics
	// (index.rebuilt) use one group per process.
	GroupID string
	// FromBeginning starts a new group at the oldest retained offset instead
	// of the newest.
	FromBeginning bool
}

// NewConsumer creates a Consumer for the given topic and handler.
func NewConsumer(cfg config.KafkaConfig, topic string, opts ConsumerOptions, handler MessageHandler) *Consumer {
	group := cfg.ConsumerGroup
	if opts.GroupID != "" {
		group = opts.GroupID
	}
	start := kafka.LastOffset
	if opts.FromBeginning {
		start = kafka.FirstOffset
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     group,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: start,
	})

	return &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic, "group", group),
		handler: handler,
	}
}

// Start enters the consume loop, fetching and processing messages until ctx
// is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			return c.reader.Close()
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return c.reader.Close()
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"value_size", len(msg.Value),
		)
		if !c.process(ctx, msg) {
			return c.reader.Close()
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// redelivery paces repeated handler attempts on one message. Attempts are
// unbounded; only ctx ends them.
var redelivery = resilience.RetryConfig{
	MaxAttempts:  math.MaxInt,
	InitialDelay: time.Second,
	MaxDelay:     30 * time.Second,
}

// process runs the handler on msg until it succeeds. It reports false when ctx
// ends first, in which case msg must not be committed.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	return redeliver(ctx, c.logger, msg.Partition, msg.Offset, func() error {
		return c.handler(ctx, msg.Key, msg.Value)
	})
}

func redeliver(ctx context.Context, logger *slog.Logger, partition int, offset int64, handle func() error) bool {
	err := resilience.Retry(ctx, "kafka-handler", redelivery, func() error {
		err := handle()
		if err != nil {
			logger.Error("failed to process message",
				"partition", partition,
				"offset", offset,
				"error", err,
			)
		}
		return err
	})
	return err == nil
}

// DecodeJSON is a generic helper that unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
