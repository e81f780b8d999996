package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestBreaker(threshold int) (*Breaker, *clock) {
	c := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	b := NewBreaker("zenput", threshold, time.Minute)
	b.now = c.now
	return b, c
}

func fail(_ context.Context) (int, error) {
	return 0, NewTransientError(errors.New("down"), 503)
}

func ok(_ context.Context) (int, error) { return 1, nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3)
	ctx := context.Background()

	for range 3 {
		_, _ = Call(ctx, b, fail)
	}
	if b.State() != Open {
		t.Fatalf("expected open, got %s", b.State())
	}

	called := false
	_, err := Call(ctx, b, func(_ context.Context) (int, error) {
		called = true
		return 0, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("fn must not run while open")
	}
}

func TestBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	b, _ := newTestBreaker(2)
	for range 5 {
		_, _ = Call(context.Background(), b, func(_ context.Context) (int, error) {
			return 0, errors.New("404 form not found")
		})
	}
	if b.State() != Closed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(3)
	ctx := context.Background()
	_, _ = Call(ctx, b, fail)
	_, _ = Call(ctx, b, fail)
	_, _ = Call(ctx, b, ok)
	_, _ = Call(ctx, b, fail)
	if b.State() != Closed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b, c := newTestBreaker(1)
	ctx := context.Background()

	_, _ = Call(ctx, b, fail)
	if b.State() != Open {
		t.Fatalf("expected open, got %s", b.State())
	}

	c.t = c.t.Add(time.Minute)
	if b.State() != HalfOpen {
		t.Fatalf("expected half-open after cooldown, got %s", b.State())
	}

	got, err := Call(ctx, b, ok)
	if err != nil || got != 1 {
		t.Fatalf("probe failed: %v", err)
	}
	if b.State() != Closed {
		t.Errorf("expected closed after successful probe, got %s", b.State())
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b, c := newTestBreaker(1)
	ctx := context.Background()

	_, _ = Call(ctx, b, fail)
	c.t = c.t.Add(time.Minute)
	_, _ = Call(ctx, b, fail)
	if b.State() != Open {
		t.Errorf("expected open after failed probe, got %s", b.State())
	}

	c.t = c.t.Add(30 * time.Second)
	if _, err := Call(ctx, b, ok); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen during new cooldown, got %v", err)
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{Closed: "closed", Open: "open", HalfOpen: "half-open", State(9): "unknown"} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}
