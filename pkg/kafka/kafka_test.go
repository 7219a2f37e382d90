package kafka

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestDecodeJSON(t *testing.T) {
	type rebuilt struct {
		RunID   string `json:"run_id"`
		Vectors int    `json:"vectors"`
	}
	got, err := DecodeJSON[rebuilt]([]byte(`{"run_id":"run_1","vectors":3}`))
	if err != nil {
		t.Fatal(err)
	}
	if got.RunID != "run_1" || got.Vectors != 3 {
		t.Errorf("got %+v", got)
	}
	if _, err := DecodeJSON[rebuilt]([]byte("{")); err == nil {
		t.Error("expected an error for truncated JSON")
	}
}

func TestRedeliverRetriesSameMessageUntilHandled(t *testing.T) {
	saved := redelivery
	redelivery.InitialDelay = time.Millisecond
	redelivery.MaxDelay = 5 * time.Millisecond
	t.Cleanup(func() { redelivery = saved })

	calls := 0
	ok := redeliver(context.Background(), slog.Default(), 0, 42, func() error {
		calls++
		if calls < 3 {
			return errors.New("store unavailable")
		}
		return nil
	})
	if !ok {
		t.Fatal("redeliver gave up on a message that eventually succeeded")
	}
	if calls != 3 {
		t.Errorf("handler ran %d times, want 3", calls)
	}
}

func TestRedeliverStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	ok := redeliver(ctx, slog.Default(), 0, 7, func() error {
		calls++
		return errors.New("store unavailable")
	})
	if ok {
		t.Fatal("redeliver reported success for a message that was never handled")
	}
	if calls != 1 {
		t.Errorf("handler ran %d times, want 1", calls)
	}
}
