package resilience

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

func newTestBreaker(t *testing.T, clock *time.Time) *Breaker {
	t.Helper()
	b := New(Config{Name: "test", MaxFailures: 3, Cooldown: 10 * time.Second,
		Logger: slog.New(slog.DiscardHandler)})
	b.now = func() time.Time { return *clock }
	return b
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	clock := time.Now()
	b := newTestBreaker(t, &clock)

	for i := 0; i < 2; i++ {
		b.Failure()
		if b.State() != Closed {
			t.Fatalf("opened after %d failures", i+1)
		}
	}
	b.Failure()
	if b.State() != Open {
		t.Fatal("did not open at the failure budget")
	}
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Errorf("Allow = %v, want ErrOpen", err)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	clock := time.Now()
	b := newTestBreaker(t, &clock)

	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()
	if b.State() != Closed {
		t.Error("non-consecutive failures should not open the breaker")
	}
}

func TestHalfOpenAdmitsOneProbe(t *testing.T) {
	clock := time.Now()
	b := newTestBreaker(t, &clock)
	for i := 0; i < 3; i++ {
		b.Failure()
	}

	clock = clock.Add(11 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("probe rejected: %v", err)
	}
	if b.State() != HalfOpen {
		t.Fatalf("state = %v, want HalfOpen", b.State())
	}
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Error("second concurrent probe should be rejected")
	}
}

func TestProbeOutcomeDecides(t *testing.T) {
	clock := time.Now()

	t.Run("probe success closes", func(t *testing.T) {
		b := newTestBreaker(t, &clock)
		for i := 0; i < 3; i++ {
			b.Failure()
		}
		clock = clock.Add(11 * time.Second)
		if err := b.Allow(); err != nil {
			t.Fatal(err)
		}
		b.Success()
		if b.State() != Closed {
			t.Errorf("state = %v, want Closed", b.State())
		}
		if err := b.Allow(); err != nil {
			t.Errorf("closed breaker rejected a call: %v", err)
		}
	})

	t.Run("probe failure reopens", func(t *testing.T) {
		b := newTestBreaker(t, &clock)
		for i := 0; i < 3; i++ {
			b.Failure()
		}
		clock = clock.Add(11 * time.Second)
		if err := b.Allow(); err != nil {
			t.Fatal(err)
		}
		b.Failure()
		if b.State() != Open {
			t.Errorf("state = %v, want Open", b.State())
		}
		if err := b.Allow(); !errors.Is(err, ErrOpen) {
			t.Error("reopened breaker admitted a call before cooldown")
		}
	})
}
