package keyword

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

// HTTPExtractor calls an external keyphrase service (for example a KeyBERT
// sidecar) with {"text": ..., "top_n": ...} and expects
// {"keywords": ["...", ...]} back. Calls are retried with backoff and
// guarded by a circuit breaker so a dead service degrades every record to
// its title fallback quickly instead of stalling the batch.
type HTTPExtractor struct {
	url     string
	client  *http.Client
	timeout time.Duration
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

type extractRequest struct {
	Text string `json:"text"`
	TopN int    `json:"top_n"`
}

type extractResponse struct {
	Keywords []string `json:"keywords"`
}

func NewHTTPExtractor(url string, timeout time.Duration) *HTTPExtractor {
	return &HTTPExtractor{
		url:     url,
		client:  &http.Client{},
		timeout: timeout,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
		},
		breaker: resilience.NewCircuitBreaker("keyword-extractor", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		}),
		logger: slog.Default().With("component", "keyword-http", "url", url),
	}
}

func (e *HTTPExtractor) Extract(ctx context.Context, text string, topN int) ([]string, error) {
	if topN <= 0 || strings.TrimSpace(text) == "" {
		return nil, nil
	}
	body, err := json.Marshal(extractRequest{Text: text, TopN: topN})
	if err != nil {
		return nil, fmt.Errorf("marshaling extract request: %w", err)
	}

	var raw []string
	err = e.breaker.Execute(func() error {
		return resilience.Retry(ctx, "keyword-extract", e.retry, func() error {
			// Each attempt decodes into its own response; a timed-out attempt
			// may still be running when the next one starts.
			var out extractResponse
			err := resilience.WithTimeout(ctx, e.timeout, "keyword-extract", func(ctx context.Context) error {
				return e.call(ctx, body, &out)
			})
			if err == nil {
				raw = out.Keywords
			}
			return err
		})
	})
	if err != nil {
		e.logger.Debug("keyword extraction failed", "error", err)
		return nil, fmt.Errorf("%w: %w", apperrors.ErrExtraction, err)
	}

	keywords := Normalize(raw)
	if len(keywords) > topN {
		keywords = keywords[:topN]
	}
	return keywords, nil
}

func (e *HTTPExtractor) call(ctx context.Context, body []byte, out *extractResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return resilience.Permanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling keyword service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("keyword service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return resilience.Permanent(err)
		}
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resilience.Permanent(fmt.Errorf("decoding keyword response: %w", err))
	}
	return nil
}
