// Package override bounds how often the gated stop guards can be bypassed.
//
// The counter is deliberately per-device and never synchronized: it
// throttles local convenience and abuse, it is not a security boundary.
package override

import (
	"context"
	"fmt"
	"time"

	"github.com/louisbranch/focusgate/internal/platform/errors"
	"github.com/louisbranch/focusgate/internal/storage"
)

// DefaultBudget is the number of overrides granted per reset period.
const DefaultBudget = 3

// DefaultResetPeriodWeeks is the rolling reset period.
const DefaultResetPeriodWeeks = 4

// Limiter is a rolling-window override counter backed by a store.
type Limiter struct {
	store storage.OverrideStore
	clock func() time.Time
}

// NewLimiter creates a limiter over the given store.
func NewLimiter(store storage.OverrideStore) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("override store is required")
	}
	return &Limiter{store: store, clock: time.Now}, nil
}

// Remaining returns the current budget, applying the reset check first.
// Called on every app foreground and before every override attempt.
func (l *Limiter) Remaining(ctx context.Context) (int, error) {
	counter, err := l.current(ctx)
	if err != nil {
		return 0, err
	}
	return counter.Remaining, nil
}

// Consume spends one override. Calls at zero are refused before any other
// guard is evaluated; the counter never goes negative.
func (l *Limiter) Consume(ctx context.Context) (int, error) {
	counter, err := l.current(ctx)
	if err != nil {
		return 0, err
	}
	if counter.Remaining <= 0 {
		resetsAt := counter.LastReset.Add(resetPeriod(counter))
		return 0, errors.WithMetadata(errors.CodeOverrideExhausted,
			"no emergency overrides remaining",
			map[string]string{"ResetsAt": resetsAt.UTC().Format(time.RFC3339)})
	}
	counter.Remaining--
	if err := l.store.SaveOverrideCounter(ctx, counter); err != nil {
		return 0, fmt.Errorf("save override counter: %w", err)
	}
	return counter.Remaining, nil
}

// current loads the counter, initializing it on first use and resetting it
// when the period has elapsed.
func (l *Limiter) current(ctx context.Context) (storage.OverrideCounter, error) {
	now := l.now()
	counter, ok, err := l.store.LoadOverrideCounter(ctx)
	if err != nil {
		return storage.OverrideCounter{}, fmt.Errorf("load override counter: %w", err)
	}
	if !ok {
		counter = storage.OverrideCounter{
			Remaining:        DefaultBudget,
			ResetPeriodWeeks: DefaultResetPeriodWeeks,
			LastReset:        now,
		}
		if err := l.store.SaveOverrideCounter(ctx, counter); err != nil {
			return storage.OverrideCounter{}, fmt.Errorf("save override counter: %w", err)
		}
		return counter, nil
	}
	if counter.ResetPeriodWeeks <= 0 {
		counter.ResetPeriodWeeks = DefaultResetPeriodWeeks
	}
	if now.Sub(counter.LastReset) >= resetPeriod(counter) {
		counter.Remaining = DefaultBudget
		counter.LastReset = now
		if err := l.store.SaveOverrideCounter(ctx, counter); err != nil {
			return storage.OverrideCounter{}, fmt.Errorf("save override counter: %w", err)
		}
	}
	return counter, nil
}

func (l *Limiter) now() time.Time {
	if l.clock == nil {
		return time.Now().UTC()
	}
	return l.clock().UTC()
}

func resetPeriod(counter storage.OverrideCounter) time.Duration {
	weeks := counter.ResetPeriodWeeks
	if weeks <= 0 {
		weeks = DefaultResetPeriodWeeks
	}
	return time.Duration(weeks) * 7 * 24 * time.Hour
}
