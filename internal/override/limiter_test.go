package override

import (
	"context"
	"testing"
	"time"

	"github.com/louisbranch/focusgate/internal/platform/errors"
	"github.com/louisbranch/focusgate/internal/storage/memory"
)

var limT0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newLimiter(t *testing.T, now *time.Time) *Limiter {
	t.Helper()
	l, err := NewLimiter(memory.NewStore())
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	l.clock = func() time.Time { return *now }
	return l
}

func TestRemaining_InitializesBudget(t *testing.T) {
	now := limT0
	l := newLimiter(t, &now)
	remaining, err := l.Remaining(context.Background())
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != DefaultBudget {
		t.Fatalf("remaining = %d, want %d", remaining, DefaultBudget)
	}
}

func TestConsume_DecrementsByExactlyOne(t *testing.T) {
	now := limT0
	l := newLimiter(t, &now)
	for want := DefaultBudget - 1; want >= 0; want-- {
		remaining, err := l.Consume(context.Background())
		if err != nil {
			t.Fatalf("consume: %v", err)
		}
		if remaining != want {
			t.Fatalf("remaining = %d, want %d", remaining, want)
		}
	}
}

func TestConsume_RefusedAtZeroNeverNegative(t *testing.T) {
	now := limT0
	l := newLimiter(t, &now)
	for i := 0; i < DefaultBudget; i++ {
		if _, err := l.Consume(context.Background()); err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
	}
	_, err := l.Consume(context.Background())
	if errors.CodeOf(err) != errors.CodeOverrideExhausted {
		t.Fatalf("error code = %s, want %s", errors.CodeOf(err), errors.CodeOverrideExhausted)
	}
	remaining, err := l.Remaining(context.Background())
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("remaining = %d, want 0", remaining)
	}
}

func TestConsume_ResetsOncePerElapsedPeriod(t *testing.T) {
	now := limT0
	l := newLimiter(t, &now)
	for i := 0; i < DefaultBudget; i++ {
		if _, err := l.Consume(context.Background()); err != nil {
			t.Fatalf("consume: %v", err)
		}
	}

	// Just short of the period: still exhausted.
	now = limT0.Add(DefaultResetPeriodWeeks*7*24*time.Hour - time.Minute)
	if _, err := l.Consume(context.Background()); errors.CodeOf(err) != errors.CodeOverrideExhausted {
		t.Fatalf("expected exhausted before period, got %v", err)
	}

	// Past the period: budget restored exactly once.
	now = limT0.Add(DefaultResetPeriodWeeks * 7 * 24 * time.Hour)
	remaining, err := l.Remaining(context.Background())
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != DefaultBudget {
		t.Fatalf("remaining = %d, want %d after reset", remaining, DefaultBudget)
	}

	// A later check inside the new period must not reset again.
	if _, err := l.Consume(context.Background()); err != nil {
		t.Fatalf("consume: %v", err)
	}
	now = now.Add(time.Hour)
	remaining, err = l.Remaining(context.Background())
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != DefaultBudget-1 {
		t.Fatalf("remaining = %d, want %d (no double reset)", remaining, DefaultBudget-1)
	}
}

func TestConsume_ExhaustedErrorCarriesResetTime(t *testing.T) {
	now := limT0
	l := newLimiter(t, &now)
	for i := 0; i < DefaultBudget; i++ {
		if _, err := l.Consume(context.Background()); err != nil {
			t.Fatalf("consume: %v", err)
		}
	}
	_, err := l.Consume(context.Background())
	domainErr, ok := err.(*errors.Error)
	if !ok {
		t.Fatalf("expected domain error, got %T", err)
	}
	if domainErr.Metadata["ResetsAt"] == "" {
		t.Fatal("expected ResetsAt metadata for user-facing message")
	}
}
