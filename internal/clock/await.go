package clock

import (
	"context"
	"time"
)

// Condition reports whether the awaited state has been reached. An error
// counts as "not yet" and is handed to the optional error hook.
type Condition func(ctx context.Context) (bool, error)

// AwaitResult is the outcome of Await.
type AwaitResult int

const (
	TimedOut AwaitResult = iota
	Found
)

func (r AwaitResult) String() string {
	if r == Found {
		return "found"
	}
	return "timed-out"
}

// Await polls cond every interval until it holds or timeout elapses on c.
// The condition is always evaluated at least once, and once more at the
// deadline, so a zero timeout degenerates to a single check.
func Await(ctx context.Context, c Clock, timeout, interval time.Duration, cond Condition, onErr func(error)) (AwaitResult, error) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	deadline := c.Now().Add(timeout)
	for {
		ok, err := cond(ctx)
		if err != nil && onErr != nil {
			onErr(err)
		}
		if err == nil && ok {
			return Found, nil
		}
		remaining := deadline.Sub(c.Now())
		if remaining <= 0 {
			return TimedOut, nil
		}
		if remaining < interval {
			interval = remaining
		}
		if err := c.Sleep(ctx, interval); err != nil {
			return TimedOut, err
		}
	}
}
