package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/adjust"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/vectorindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/metrics"
)

const testCatalog = `title,overview,poster_path,vote_average
Hero Laughs,A superhero comedy.,/a.jpg,7.0
Rainy Days,A sad drama.,/b.jpg,8.0
Space Opera,War among the stars.,,9.0
`

type stubEncoder struct {
	vec   []float32
	err   error
	calls atomic.Int32
}

func (s *stubEncoder) Encode(context.Context, string) ([]float32, error) {
	s.calls.Add(1)
	return s.vec, s.err
}

func newService(t *testing.T, enc Encoder) (*Service, *vectorindex.Holder) {
	t.Helper()
	cat, err := catalog.Read(strings.NewReader(testCatalog))
	if err != nil {
		t.Fatal(err)
	}
	idx, _ := vectorindex.FromVectors([][]float32{{1, 0}, {0, 1}, {0.7, 0.7}})
	holder := vectorindex.NewHolder(filepath.Join(t.TempDir(), "embeddings.vidx"))
	holder.Install(idx)
	return NewService(enc, holder, cat, 50, metrics.NewNop()), holder
}

func TestRecommend(t *testing.T) {
	enc := &stubEncoder{vec: []float32{1, 0.1}}
	svc, _ := newService(t, enc)
	res, err := svc.Recommend(context.Background(), "funny heroes", 2)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if res.Source != SourceIndex || len(res.Recommendations) != 2 {
		t.Fatalf("result = %+v", res)
	}
	first := res.Recommendations[0]
	if first.Title != "Hero Laughs" || first.PosterPath == nil || *first.PosterPath != "/a.jpg" {
		t.Errorf("first = %+v", first)
	}
	if res.Recommendations[1].Title != "Space Opera" || res.Recommendations[1].PosterPath != nil {
		t.Errorf("second = %+v", res.Recommendations[1])
	}
}

func TestRecommendBlankQuery(t *testing.T) {
	enc := &stubEncoder{vec: []float32{1, 0}}
	svc, _ := newService(t, enc)
	res, err := svc.Recommend(context.Background(), "   ", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Recommendations) != 0 || enc.calls.Load() != 0 {
		t.Errorf("blank query should return nothing without encoding; got %+v", res)
	}
}

func TestRecommendErrors(t *testing.T) {
	svc, _ := newService(t, &stubEncoder{err: apperrors.ErrUnavailable})
	if _, err := svc.Recommend(context.Background(), "x", 3); !errors.Is(err, apperrors.ErrUnavailable) {
		t.Errorf("encoder failure err = %v", err)
	}

	svc, _ = newService(t, &stubEncoder{vec: []float32{1, 0, 0}})
	if _, err := svc.Recommend(context.Background(), "x", 3); !errors.Is(err, apperrors.ErrIndexShape) {
		t.Errorf("dimension mismatch err = %v", err)
	}

	cat, _ := catalog.Read(strings.NewReader(testCatalog))
	empty := NewService(&stubEncoder{vec: []float32{1, 0}}, vectorindex.NewHolder("none.vidx"), cat, 50, nil)
	if _, err := empty.Recommend(context.Background(), "x", 3); !errors.Is(err, apperrors.ErrIndexNotLoaded) {
		t.Errorf("unloaded index err = %v", err)
	}
}

func TestTopRated(t *testing.T) {
	svc, _ := newService(t, &stubEncoder{})
	res := svc.TopRated(5)
	if res.Source != SourceTopRated {
		t.Errorf("source = %q", res.Source)
	}
	// Space Opera has no poster and is excluded.
	if len(res.Recommendations) != 2 {
		t.Fatalf("got %d recommendations, want 2", len(res.Recommendations))
	}
	for _, r := range res.Recommendations {
		if r.Title == "Space Opera" {
			t.Error("movie without poster in top rated")
		}
	}
	if got := svc.TopRated(1); len(got.Recommendations) != 1 {
		t.Errorf("TopRated(1) returned %d", len(got.Recommendations))
	}
}

func TestHTTPEncoder(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "loading model", http.StatusServiceUnavailable)
			return
		}
		var req encodeRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Text != "space war" {
			t.Errorf("text = %q", req.Text)
		}
		json.NewEncoder(w).Encode(encodeResponse{Embedding: []float32{0.5, 0.25}})
	}))
	defer srv.Close()

	vec, err := NewHTTPEncoder(srv.URL, time.Second).Encode(context.Background(), "space war")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.5 {
		t.Errorf("vec = %v", vec)
	}
}

func TestHTTPEncoderEmptyEmbedding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embedding":[]}`))
	}))
	defer srv.Close()
	_, err := NewHTTPEncoder(srv.URL, time.Second).Encode(context.Background(), "x")
	if !errors.Is(err, apperrors.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

func TestReloaderHandleRebuilt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "embeddings.vidx")
	idx, _ := vectorindex.FromVectors([][]float32{{2, 0}, {0, 2}})
	if err := vectorindex.WriteFile(path, idx); err != nil {
		t.Fatal(err)
	}
	holder := vectorindex.NewHolder(path)
	inv := &countingInvalidator{}
	r := NewReloader(holder, inv, metrics.NewNop())
	handle := r.HandleRebuilt()

	other, _ := json.Marshal(adjust.RebuiltEvent{RunID: "run_1", IndexPath: filepath.Join(dir, "other.vidx")})
	if err := handle(context.Background(), nil, other); err != nil {
		t.Fatal(err)
	}
	if _, err := holder.Current(); err == nil {
		t.Fatal("event for another index should be ignored")
	}

	ev, _ := json.Marshal(adjust.RebuiltEvent{RunID: "run_2", IndexPath: path, Vectors: 2})
	if err := handle(context.Background(), []byte("run_2"), ev); err != nil {
		t.Fatal(err)
	}
	snap, err := holder.Current()
	if err != nil || snap.Index.Len() != 2 {
		t.Fatalf("snapshot = %+v, err = %v", snap, err)
	}
	if inv.calls != 1 {
		t.Errorf("invalidations = %d, want 1", inv.calls)
	}
	if err := handle(context.Background(), nil, []byte("not json")); err != nil {
		t.Errorf("garbage should be dropped, got %v", err)
	}
}
