package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/kafka"
)

type memorySink struct {
	records []Record
	err     error
}

func (m *memorySink) Append(_ context.Context, rec Record) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

// flakySink fails its first failures appends before delegating.
type flakySink struct {
	memorySink
	failures int
	calls    int
}

func (f *flakySink) Append(ctx context.Context, rec Record) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("disk full")
	}
	return f.memorySink.Append(ctx, rec)
}

func fastAppendRetry(t *testing.T) {
	t.Helper()
	saved := appendRetry
	appendRetry.InitialDelay = time.Millisecond
	appendRetry.MaxDelay = 5 * time.Millisecond
	t.Cleanup(func() { appendRetry = saved })
}

type capturePublisher struct {
	events []kafka.Event
}

func (c *capturePublisher) Publish(_ context.Context, e kafka.Event) error {
	c.events = append(c.events, e)
	return nil
}

func TestPublisherThenHandleMessage(t *testing.T) {
	pub := &capturePublisher{}
	rec := testRecord("Inception", false, "dream heist")
	if err := NewPublisher(pub).Append(context.Background(), rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(pub.events) != 1 || pub.events[0].Key != "Inception" {
		t.Fatalf("events = %+v", pub.events)
	}

	value, err := json.Marshal(pub.events[0].Value)
	if err != nil {
		t.Fatal(err)
	}
	sink := &memorySink{}
	if err := HandleMessage(sink, nil)(context.Background(), []byte("Inception"), value); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(sink.records) != 1 || sink.records[0].Comment != "dream heist" || sink.records[0].Liked {
		t.Fatalf("ingested = %+v", sink.records)
	}
}

func TestHandleMessageDropsGarbageButRetriesAppendFailures(t *testing.T) {
	fastAppendRetry(t)
	sink := &memorySink{}
	h := HandleMessage(sink, nil)
	if err := h(context.Background(), nil, []byte("{not json")); err != nil {
		t.Errorf("undecodable event should be committed, got %v", err)
	}
	if err := h(context.Background(), nil, []byte(`{"title":"","mode":"per_movie"}`)); err != nil {
		t.Errorf("invalid event should be committed, got %v", err)
	}
	if len(sink.records) != 0 {
		t.Errorf("nothing should be appended, got %+v", sink.records)
	}

	sink.err = errors.New("disk full")
	value, _ := json.Marshal(testRecord("Up", true, ""))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := h(ctx, nil, value); err == nil {
		t.Error("append failure should be returned once the context ends")
	}
}

func TestHandleMessageRetriesAppendUntilStored(t *testing.T) {
	fastAppendRetry(t)
	sink := &flakySink{failures: 2}
	value, err := json.Marshal(testRecord("Up", true, "balloons"))
	if err != nil {
		t.Fatal(err)
	}
	if err := HandleMessage(sink, nil)(context.Background(), []byte("Up"), value); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if sink.calls != 3 {
		t.Errorf("Append called %d times, want 3", sink.calls)
	}
	if len(sink.records) != 1 || sink.records[0].Title != "Up" {
		t.Fatalf("stored = %+v, want exactly one Up record", sink.records)
	}
}

func TestParseLiked(t *testing.T) {
	tests := []struct {
		in        string
		liked, ok bool
	}{
		{"True", true, true},
		{"False", false, true},
		{" true ", true, true},
		{"FALSE", false, true},
		{"1", false, false},
		{"", false, false},
		{"nan", false, false},
	}
	for _, tt := range tests {
		liked, ok := ParseLiked(tt.in)
		if liked != tt.liked || ok != tt.ok {
			t.Errorf("ParseLiked(%q) = %v,%v want %v,%v", tt.in, liked, ok, tt.liked, tt.ok)
		}
	}
}
