// Command loadtest drives a running recommender. In query mode it hammers
// GET /api/v1/recommendations and reports latency percentiles; in feedback
// mode it publishes synthetic judgments to the feedback topic for the
// ingester, which is handy for exercising a reindex against a large log.
//
// Usage:
//
//	go run ./cmd/loadtest -mode query -url http://localhost:8080 -duration 30s
//	go run ./cmd/loadtest -mode feedback -config configs/development.yaml -n 1000
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/logger"
)

var queries = []string{
	"funny superhero movie",
	"sad romantic drama",
	"space opera with aliens",
	"heist thriller",
	"animated family adventure",
	"courtroom drama",
	"zombie apocalypse",
	"coming of age story",
	"time travel",
	"war epic",
	"",
}

var comments = []string{
	"too much slapstick",
	"boring courtroom scenes",
	"not scary at all",
	"too long",
	"predictable twist",
	"",
}

type stats struct {
	total     atomic.Int64
	failed    atomic.Int64
	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int
}

func (s *stats) record(d time.Duration, code int, err error) {
	s.total.Add(1)
	if err != nil || code >= 300 {
		s.failed.Add(1)
	}
	if err != nil {
		return
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[code]++
	s.mu.Unlock()
}

func main() {
	mode := flag.String("mode", "query", "query or feedback")
	baseURL := flag.String("url", "http://localhost:8080", "recommender base URL (query mode)")
	concurrency := flag.Int("concurrency", 10, "concurrent workers (query mode)")
	duration := flag.Duration("duration", 30*time.Second, "test duration (query mode)")
	topN := flag.Int("top-n", 5, "top_n per request (query mode)")
	configPath := flag.String("config", config.DefaultPath, "config file (feedback mode)")
	n := flag.Int("n", 100, "judgments to publish (feedback mode)")
	flag.Parse()

	switch *mode {
	case "query":
		s := runQueries(*baseURL, *concurrency, *duration, *topN)
		if !report(s, *duration) {
			os.Exit(1)
		}
	case "feedback":
		if err := publishFeedback(*configPath, *n); err != nil {
			fmt.Fprintf(os.Stderr, "publishing feedback: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(2)
	}
}

func runQueries(base string, workers int, d time.Duration, topN int) *stats {
	fmt.Printf("Target: %s  workers: %d  duration: %s\n", base, workers, d)
	s := &stats{codes: make(map[int]int)}
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: workers * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := w; ctx.Err() == nil; i++ {
				q := queries[i%len(queries)]
				target := fmt.Sprintf("%s/api/v1/recommendations?q=%s&top_n=%d", base, url.QueryEscape(q), topN)
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
				if err != nil {
					s.record(0, 0, err)
					return
				}
				start := time.Now()
				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() == nil {
						s.record(time.Since(start), 0, err)
					}
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				s.record(time.Since(start), resp.StatusCode, nil)
			}
		}()
	}
	wg.Wait()
	return s
}

func report(s *stats, d time.Duration) bool {
	total, failed := s.total.Load(), s.failed.Load()
	fmt.Printf("\nRequests: %d  failed: %d  rps: %.1f\n", total, failed, float64(total)/d.Seconds())
	if total == 0 {
		fmt.Println("No requests completed. Is the recommender running?")
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	slices.Sort(s.latencies)
	if len(s.latencies) > 0 {
		fmt.Printf("p50: %s  p90: %s  p99: %s  max: %s\n",
			percentile(s.latencies, 50),
			percentile(s.latencies, 90),
			percentile(s.latencies, 99),
			s.latencies[len(s.latencies)-1],
		)
	}
	codes := make([]int, 0, len(s.codes))
	for c := range s.codes {
		codes = append(codes, c)
	}
	slices.Sort(codes)
	for _, c := range codes {
		fmt.Printf("  %d: %d\n", c, s.codes[c])
	}
	return true
}

// percentile uses the nearest-rank method on sorted input.
func percentile(sorted []time.Duration, p int) time.Duration {
	idx := (p*len(sorted)+99)/100 - 1
	return sorted[min(max(idx, 0), len(sorted)-1)]
}

func publishFeedback(configPath string, n int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.FeedbackEvents)
	defer producer.Close()
	sink := feedback.NewPublisher(producer)

	titles := []string{"Toy Story", "Jumanji", "Heat", "Sabrina", "GoldenEye", "Casino", "Babe"}
	ctx := context.Background()
	for i := range n {
		rec := feedback.Record{
			Timestamp: time.Now(),
			Query:     queries[rand.IntN(len(queries)-1)],
			Title:     titles[rand.IntN(len(titles))],
			Liked:     rand.IntN(2) == 0,
			Mode:      feedback.ModePerMovie,
		}
		if !rec.Liked {
			rec.Comment = comments[rand.IntN(len(comments))]
		}
		if err := sink.Append(ctx, rec); err != nil {
			return fmt.Errorf("judgment %d: %w", i, err)
		}
	}
	fmt.Printf("published %d judgments to %s\n", n, cfg.Kafka.Topics.FeedbackEvents)
	return nil
}
