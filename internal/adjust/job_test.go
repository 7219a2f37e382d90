package adjust

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/keyword"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/vectorindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/metrics"
)

const testCatalog = `title,overview,poster_path,vote_average
Hero Laughs,a superhero comedy,/a.jpg,7.0
Rainy Days,a sad drama,/b.jpg,8.0
`

type fixture struct {
	dir       string
	catalog   string
	index     string
	feedback  *feedback.CSVLog
	events    *recordingPublisher
	cache     *countingInvalidator
	runs      *MemoryRunStore
	vectors   [][]float32
	indexHash []byte
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		dir:     t.TempDir(),
		events:  &recordingPublisher{},
		cache:   &countingInvalidator{},
		runs:    NewMemoryRunStore(10),
		vectors: [][]float32{{1, 0}, {0, 1}},
	}
	f.catalog = filepath.Join(f.dir, "movies.csv")
	f.index = filepath.Join(f.dir, "embeddings.vidx")
	f.feedback = feedback.NewCSVLog(filepath.Join(f.dir, "feedback.csv"))
	if err := os.WriteFile(f.catalog, []byte(testCatalog), 0644); err != nil {
		t.Fatal(err)
	}
	idx, _ := vectorindex.FromVectors(f.vectors)
	if err := vectorindex.WriteFile(f.index, idx); err != nil {
		t.Fatal(err)
	}
	f.indexHash, _ = os.ReadFile(f.index)
	return f
}

func (f *fixture) job(store feedback.Store) *Job {
	cfg := DefaultConfig()
	agg := NewAggregator(cfg, keyword.NewStatistical(), metrics.NewNop())
	return NewJob(JobConfig{CatalogPath: f.catalog, IndexPath: f.index, Matcher: MatcherTrigram},
		store, agg, metrics.NewNop(),
		WithEvents(f.events), WithInvalidator(f.cache), WithRunStore(f.runs))
}

func (f *fixture) indexUnchanged(t *testing.T) {
	t.Helper()
	now, _ := os.ReadFile(f.index)
	if !bytes.Equal(now, f.indexHash) {
		t.Error("index file was modified")
	}
}

func TestJobRunAppliesFeedback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.feedback.Append(ctx, feedback.Record{Timestamp: time.Now(), Query: "funny", Title: "Hero Laughs", Liked: false, Comment: "superhero comedy", Mode: feedback.ModePerMovie})

	run, err := f.job(f.feedback).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != StatusSuccess || run.Vectors != 2 || run.Summary.Negative != 1 {
		t.Errorf("run = %+v", run)
	}
	idx, _, err := vectorindex.ReadFile(f.index)
	if err != nil {
		t.Fatal(err)
	}
	if got := idx.Vector(0)[0]; math.Abs(float64(got)-0.95) > 1e-6 {
		t.Errorf("item 0 = %v, want 0.95", got)
	}
	if got := idx.Vector(1)[1]; got != 1 {
		t.Errorf("item 1 = %v, want 1", got)
	}

	if len(f.events.events) != 1 {
		t.Fatalf("events = %d, want 1", len(f.events.events))
	}
	if ev := f.events.events[0].Value.(RebuiltEvent); ev.RunID != run.ID || ev.Vectors != 2 {
		t.Errorf("event = %+v", ev)
	}
	if f.cache.calls != 1 {
		t.Errorf("invalidations = %d, want 1", f.cache.calls)
	}
	runs, _ := f.runs.List(ctx, 10)
	if len(runs) != 1 || runs[0].ID != run.ID {
		t.Fatalf("runs = %+v", runs)
	}
	for _, phase := range []string{"read_feedback", "load_inputs", "aggregate", "rebuild"} {
		if _, ok := runs[0].Phases[phase]; !ok {
			t.Errorf("phase %q missing from %v", phase, runs[0].Phases)
		}
	}
}

func TestJobRunWithoutFeedbackIsNoop(t *testing.T) {
	f := newFixture(t)
	run, err := f.job(f.feedback).Run(context.Background())
	if !errors.Is(err, apperrors.ErrMissingFeedback) {
		t.Fatalf("err = %v, want ErrMissingFeedback", err)
	}
	if apperrors.ExitCode(err) != 0 {
		t.Error("missing feedback should exit 0")
	}
	if run.Status != StatusNoop {
		t.Errorf("status = %q", run.Status)
	}
	f.indexUnchanged(t)
	if len(f.events.events) != 0 || f.cache.calls != 0 {
		t.Error("noop run announced a rebuild")
	}
}

func TestJobRunOnlyMalformedRowsIsNoop(t *testing.T) {
	f := newFixture(t)
	os.WriteFile(f.feedback.Path(), []byte("datetime,user_query,title,liked,comment,mode\n2024-01-01 00:00:00,q,Hero Laughs,maybe,,per_movie\n"), 0644)
	run, err := f.job(f.feedback).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != StatusNoop || run.Feedback.Malformed != 1 {
		t.Errorf("run = %+v", run)
	}
	f.indexUnchanged(t)
}

func TestJobRunCatalogIndexMismatch(t *testing.T) {
	f := newFixture(t)
	f.feedback.Append(context.Background(), feedback.Record{Title: "Hero Laughs", Mode: feedback.ModePerMovie})
	idx, _ := vectorindex.FromVectors([][]float32{{1, 0}})
	vectorindex.WriteFile(f.index, idx)
	f.indexHash, _ = os.ReadFile(f.index)

	run, err := f.job(f.feedback).Run(context.Background())
	if !errors.Is(err, apperrors.ErrIndexShape) {
		t.Fatalf("err = %v, want ErrIndexShape", err)
	}
	if run.Status != StatusFailed || apperrors.ExitCode(err) != 1 {
		t.Errorf("status = %q", run.Status)
	}
	f.indexUnchanged(t)
}

// blockingStore parks ReadAll until released.
type blockingStore struct {
	feedback.Store
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) ReadAll(ctx context.Context) ([]feedback.Record, feedback.ReadStats, error) {
	close(b.entered)
	<-b.release
	return nil, feedback.ReadStats{}, apperrors.ErrMissingFeedback
}

func TestJobRejectsConcurrentRun(t *testing.T) {
	f := newFixture(t)
	store := &blockingStore{Store: f.feedback, entered: make(chan struct{}), release: make(chan struct{})}
	job := f.job(store)

	done := make(chan error, 1)
	go func() {
		_, err := job.Run(context.Background())
		done <- err
	}()
	<-store.entered
	if _, err := job.Run(context.Background()); !errors.Is(err, apperrors.ErrRebuildInProgress) {
		t.Errorf("second Run err = %v, want ErrRebuildInProgress", err)
	}
	close(store.release)
	if err := <-done; !errors.Is(err, apperrors.ErrMissingFeedback) {
		t.Errorf("first Run err = %v", err)
	}
}
