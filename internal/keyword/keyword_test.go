package keyword

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/errors"
)

func TestTokenize(t *testing.T) {
	tokens := Tokenize("I liked the Superhero comedy, a lot!")
	want := []Token{
		{Term: "superhero", Position: 3},
		{Term: "comedy", Position: 4},
		{Term: "lot", Position: 6},
	}
	if !reflect.DeepEqual(tokens, want) {
		t.Errorf("Tokenize = %+v, want %+v", tokens, want)
	}
}

func TestStatisticalExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		topN int
		want []string
	}{
		{"bigram outranks unigrams", "superhero comedy", 3, []string{"superhero comedy", "superhero", "comedy"}},
		{"truncated to topN", "superhero comedy", 1, []string{"superhero comedy"}},
		{"stop word breaks bigram", "slow and boring", 3, []string{"slow", "boring"}},
		{"repetition counts", "boring plot, boring acting, boring", 1, []string{"boring"}},
		{"blank text", "   ", 3, nil},
		{"only stop words", "it was the", 3, nil},
		{"non-positive topN", "superhero comedy", 0, nil},
	}
	s := NewStatistical()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Extract(context.Background(), tt.text, tt.topN)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Extract(%q, %d) = %q, want %q", tt.text, tt.topN, got, tt.want)
			}
		})
	}
}

func TestStatisticalDeterministic(t *testing.T) {
	s := NewStatistical()
	text := "dark gritty thriller with a dark twist and gritty score"
	first, _ := s.Extract(context.Background(), text, 3)
	for i := 0; i < 20; i++ {
		got, _ := s.Extract(context.Background(), text, 3)
		if !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d = %q, want %q", i, got, first)
		}
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize([]string{" Comedy ", "", "comedy", "DRAMA", "  ", "drama", "noir"})
	want := []string{"Comedy", "DRAMA", "noir"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize = %q, want %q", got, want)
	}
	if Normalize(nil) != nil {
		t.Error("Normalize(nil) should be nil")
	}
}

func TestHTTPExtractorSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req extractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.Text != "too slow" || req.TopN != 2 {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(extractResponse{Keywords: []string{"slow", " Slow ", "pacing", "extra"}})
	}))
	defer srv.Close()

	e := NewHTTPExtractor(srv.URL, time.Second)
	got, err := e.Extract(context.Background(), "too slow", 2)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := []string{"slow", "pacing"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract = %q, want %q", got, want)
	}
}

func TestHTTPExtractorClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad input", http.StatusBadRequest)
	}))
	defer srv.Close()

	e := NewHTTPExtractor(srv.URL, time.Second)
	_, err := e.Extract(context.Background(), "anything", 3)
	if !errors.Is(err, apperrors.ErrExtraction) {
		t.Fatalf("err = %v, want ErrExtraction", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestHTTPExtractorRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(extractResponse{Keywords: []string{"noir"}})
	}))
	defer srv.Close()

	e := NewHTTPExtractor(srv.URL, time.Second)
	got, err := e.Extract(context.Background(), "moody noir", 3)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"noir"}) {
		t.Errorf("Extract = %q", got)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

type memoryCache struct {
	data map[string]string
	gets int
	sets int
	fail error
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	m.gets++
	if m.fail != nil {
		return "", m.fail
	}
	v, ok := m.data[key]
	if !ok {
		return "", errors.New("miss")
	}
	return v, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.sets++
	if m.fail != nil {
		return m.fail
	}
	m.data[key] = string(value.([]byte))
	return nil
}

func TestCachedExtractor(t *testing.T) {
	calls := 0
	next := Func(func(_ context.Context, text string, topN int) ([]string, error) {
		calls++
		return []string{"plot"}, nil
	})
	cache := &memoryCache{data: map[string]string{}}
	c := NewCached(next, cache, time.Minute)

	for i := 0; i < 3; i++ {
		got, err := c.Extract(context.Background(), "weak plot", 3)
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		if !reflect.DeepEqual(got, []string{"plot"}) {
			t.Fatalf("Extract = %q", got)
		}
	}
	if calls != 1 {
		t.Errorf("underlying calls = %d, want 1", calls)
	}
	if _, err := c.Extract(context.Background(), "weak plot", 2); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("different topN should miss; calls = %d", calls)
	}
}

func TestCachedExtractorBypassesBrokenCache(t *testing.T) {
	calls := 0
	next := Func(func(context.Context, string, int) ([]string, error) {
		calls++
		return []string{"score"}, nil
	})
	c := NewCached(next, &memoryCache{data: map[string]string{}, fail: errors.New("connection refused")}, time.Minute)
	got, err := c.Extract(context.Background(), "great score", 3)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"score"}) || calls != 1 {
		t.Errorf("got %q after %d calls", got, calls)
	}
}

func TestCachedExtractorDoesNotStoreFailures(t *testing.T) {
	next := Func(func(context.Context, string, int) ([]string, error) {
		return nil, apperrors.ErrExtraction
	})
	cache := &memoryCache{data: map[string]string{}}
	c := NewCached(next, cache, time.Minute)
	if _, err := c.Extract(context.Background(), "x y z", 3); !errors.Is(err, apperrors.ErrExtraction) {
		t.Fatalf("err = %v", err)
	}
	if cache.sets != 0 {
		t.Errorf("sets = %d, want 0", cache.sets)
	}
}
