package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/resilience"
)

// Encoder maps a free-text query into the embedding space of the index.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// HTTPEncoder calls the question-encoder service with {"text": ...} and
// expects {"embedding": [...]} back.
type HTTPEncoder struct {
	url     string
	client  *http.Client
	timeout time.Duration
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

type encodeRequest struct {
	Text string `json:"text"`
}

type encodeResponse struct {
	Embedding []float32 `json:"embedding"`
}

func NewHTTPEncoder(url string, timeout time.Duration) *HTTPEncoder {
	return &HTTPEncoder{
		url:     url,
		client:  &http.Client{},
		timeout: timeout,
		retry: resilience.RetryConfig{
			MaxAttempts:  2,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     time.Second,
		},
		breaker: resilience.NewCircuitBreaker("query-encoder", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     15 * time.Second,
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("encoder circuit state changed", "breaker", name, "from", from, "to", to)
			},
		}),
		logger: slog.Default().With("component", "query-encoder", "url", url),
	}
}

func (e *HTTPEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(encodeRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling encode request: %w", err)
	}
	var embedding []float32
	err = e.breaker.Execute(func() error {
		return resilience.Retry(ctx, "query-encode", e.retry, func() error {
			var out encodeResponse
			err := resilience.WithTimeout(ctx, e.timeout, "query-encode", func(ctx context.Context) error {
				return e.call(ctx, body, &out)
			})
			if err == nil {
				embedding = out.Embedding
			}
			return err
		})
	})
	if err != nil {
		e.logger.Warn("query encoding failed", "error", err)
		return nil, fmt.Errorf("%w: encoding query: %w", apperrors.ErrUnavailable, err)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: encoder returned an empty embedding", apperrors.ErrUnavailable)
	}
	return embedding, nil
}

func (e *HTTPEncoder) call(ctx context.Context, body []byte, out *encodeResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return resilience.Permanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling encoder: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("encoder returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return resilience.Permanent(err)
		}
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resilience.Permanent(fmt.Errorf("decoding encoder response: %w", err))
	}
	return nil
}
