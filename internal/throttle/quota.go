package throttle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/polzovatel/paced-actions/internal/clock"
	"github.com/polzovatel/paced-actions/internal/event"
)

// WindowMode selects how the quota window is measured.
type WindowMode int

const (
	// Fixed counts successes from a window start and resets once the window
	// has elapsed. It bounds successes per window, not per rolling interval:
	// a burst at the end of one window followed by a burst at the start of
	// the next can put up to twice the limit inside any span of one window.
	// Use Sliding when that matters.
	Fixed WindowMode = iota
	// Sliding keeps success timestamps and bounds every rolling window.
	Sliding
)

func (m WindowMode) String() string {
	if m == Sliding {
		return "sliding"
	}
	return "fixed"
}

func ParseWindowMode(s string) (WindowMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fixed":
		return Fixed, nil
	case "sliding", "rolling":
		return Sliding, nil
	default:
		return Fixed, fmt.Errorf("unknown quota mode %q (use fixed or sliding)", s)
	}
}

// Quota bounds confirmed successes per window. Only RecordSuccess consumes
// quota, so it limits the effective action rate rather than attempts.
type Quota struct {
	clock  clock.Clock
	sink   event.Sink
	mode   WindowMode
	window time.Duration
	limit  int

	start  time.Time
	count  int
	stamps []time.Time
}

func NewQuota(c clock.Clock, mode WindowMode, limit int, window time.Duration, sink event.Sink) *Quota {
	if sink == nil {
		sink = event.Discard
	}
	return &Quota{clock: c, sink: sink, mode: mode, window: window, limit: limit, start: c.Now()}
}

// CheckAndMaybeWait blocks until another success fits in the window.
func (q *Quota) CheckAndMaybeWait(ctx context.Context) error {
	if q.mode == Sliding {
		return q.checkSliding(ctx)
	}
	now := q.clock.Now()
	elapsed := now.Sub(q.start)
	if elapsed >= q.window {
		q.start = now
		q.count = 0
		return nil
	}
	if q.count < q.limit {
		return nil
	}
	if err := q.cooldown(ctx, q.window-elapsed); err != nil {
		return err
	}
	q.Reset()
	return nil
}

func (q *Quota) checkSliding(ctx context.Context) error {
	q.prune(q.clock.Now())
	if len(q.stamps) < q.limit {
		return nil
	}
	wait := q.stamps[0].Add(q.window).Sub(q.clock.Now())
	if err := q.cooldown(ctx, wait); err != nil {
		return err
	}
	q.prune(q.clock.Now())
	return nil
}

func (q *Quota) prune(now time.Time) {
	cut := 0
	for cut < len(q.stamps) && now.Sub(q.stamps[cut]) >= q.window {
		cut++
	}
	q.stamps = q.stamps[cut:]
}

func (q *Quota) cooldown(ctx context.Context, wait time.Duration) error {
	q.sink(event.Event{Kind: event.QuotaCooldownStarted, At: q.clock.Now(), Duration: wait})
	if err := q.clock.Sleep(ctx, wait); err != nil {
		return err
	}
	q.sink(event.Event{Kind: event.QuotaCooldownEnded, At: q.clock.Now()})
	return nil
}

func (q *Quota) RecordSuccess() {
	q.count++
	if q.mode == Sliding {
		q.stamps = append(q.stamps, q.clock.Now())
	}
}

// Reset starts a fresh fixed window at the current time. A sliding quota
// only drops the timestamps that have aged out, so a reset never lets more
// than the limit land in one rolling window.
func (q *Quota) Reset() {
	now := q.clock.Now()
	q.start = now
	q.count = 0
	if q.mode == Sliding {
		q.prune(now)
	}
}

// Used reports successes counted in the current window.
func (q *Quota) Used() int {
	if q.mode == Sliding {
		q.prune(q.clock.Now())
		return len(q.stamps)
	}
	return q.count
}
