package action

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/polzovatel/paced-actions/internal/clock"
	"github.com/polzovatel/paced-actions/internal/target"
)

// Outcome is the binary result that crosses into the run loop.
type Outcome int

const (
	Unverified Outcome = iota
	Success
)

func (o Outcome) String() string {
	if o == Success {
		return "success"
	}
	return "unverified"
}

// Reason explains an outcome for logs.
type Reason string

const (
	ReasonVerified       Reason = "verified"
	ReasonConfirmed      Reason = "confirmed"
	ReasonNoConfirmation Reason = "no-confirmation"
	ReasonStateTimeout   Reason = "state-timeout"
	ReasonInvokeFailed   Reason = "invoke-failed"
	ReasonPanic          Reason = "panic"
)

// Result is the attempt record of one Execute call.
type Result struct {
	Ref       target.Ref
	Target    string
	Outcome   Outcome
	Reason    Reason
	Confirmed bool
	Started   time.Time
	Duration  time.Duration
}

// Config holds the per-step time boxes.
type Config struct {
	ConfirmWait     time.Duration
	ConfirmPoll     time.Duration
	StateChangeWait time.Duration
	StatePoll       time.Duration
	// StepTimeout bounds scope resolution, scrolling, each click and each
	// poll check. A step that overruns is abandoned even if the target
	// ignores its context.
	StepTimeout time.Duration
	// SettleMin and SettleMax bound the pause between scroll and click.
	SettleMin time.Duration
	SettleMax time.Duration
	// RequireConfirmation turns a missing confirmation control into an
	// unverified outcome instead of continuing to verification.
	RequireConfirmation bool
}

// DefaultConfig returns timings that suit a typical confirmation sheet.
func DefaultConfig() Config {
	return Config{
		ConfirmWait:     4 * time.Second,
		ConfirmPoll:     100 * time.Millisecond,
		StateChangeWait: 5 * time.Second,
		StatePoll:       120 * time.Millisecond,
		StepTimeout:     5 * time.Second,
		SettleMin:       150 * time.Millisecond,
		SettleMax:       400 * time.Millisecond,
	}
}

// Executor drives one target through invoke, confirm and verify. It never
// returns an error: every step failure folds into an Unverified result.
type Executor struct {
	cfg        Config
	clock      clock.Clock
	recognizer target.Recognizer
	logger     zerolog.Logger
	rng        *rand.Rand
	pollLog    *rate.Sometimes
}

func NewExecutor(cfg Config, c clock.Clock, recognizer target.Recognizer, logger zerolog.Logger) *Executor {
	return &Executor{
		cfg:        cfg,
		clock:      c,
		recognizer: recognizer,
		logger:     logger,
		rng:        rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 7)),
		pollLog:    &rate.Sometimes{First: 3, Interval: 2 * time.Second},
	}
}

// Execute performs the action on t.
func (e *Executor) Execute(ctx context.Context, t target.Target) (res Result) {
	res = Result{Ref: t.Ref(), Target: t.Fingerprint(), Outcome: Unverified, Started: e.clock.Now()}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Str("target", res.Target).Msg("action panicked")
			res.Outcome = Unverified
			res.Reason = ReasonPanic
		}
		res.Duration = e.clock.Now().Sub(res.Started)
	}()

	scope := e.resolveScope(ctx, t)
	e.reveal(ctx, t)

	if err := e.step(ctx, t.Click); err != nil {
		e.logger.Debug().Err(err).Str("target", res.Target).Msg("primary click failed")
		res.Reason = ReasonInvokeFailed
		return res
	}

	confirmed, err := e.confirm(ctx, scope)
	if err != nil {
		res.Reason = ReasonInvokeFailed
		return res
	}
	res.Confirmed = confirmed
	if !confirmed && e.cfg.RequireConfirmation {
		res.Reason = ReasonNoConfirmation
		return res
	}

	found, err := clock.Await(ctx, e.clock, e.cfg.StateChangeWait, e.cfg.StatePoll, func(ctx context.Context) (bool, error) {
		return bounded(ctx, e.cfg.StepTimeout, func(ctx context.Context) (bool, error) {
			return e.settled(ctx, scope)
		})
	}, e.logPollError)
	if err != nil || found != clock.Found {
		res.Reason = ReasonStateTimeout
		return res
	}
	res.Outcome = Success
	res.Reason = ReasonVerified
	if confirmed {
		res.Reason = ReasonConfirmed
	}
	return res
}

func (e *Executor) resolveScope(ctx context.Context, t target.Target) target.Scope {
	scope, err := bounded(ctx, e.cfg.StepTimeout, t.Scope)
	if err == nil && scope == nil {
		err = errors.New("no containing scope")
	}
	if err != nil {
		e.logger.Debug().Err(err).Msg("scope unresolved, using target itself")
		return target.SelfScope(t)
	}
	return scope
}

// reveal scrolls t into view and pauses briefly. Failures are swallowed.
func (e *Executor) reveal(ctx context.Context, t target.Target) {
	if err := e.step(ctx, t.ScrollIntoView); err != nil {
		e.logger.Debug().Err(err).Msg("scroll into view failed")
	}
	_ = e.clock.Sleep(ctx, e.settle())
}

func (e *Executor) settle() time.Duration {
	span := int64(e.cfg.SettleMax - e.cfg.SettleMin)
	if span <= 0 {
		return e.cfg.SettleMin
	}
	return e.cfg.SettleMin + time.Duration(e.rng.Int64N(span+1))
}

// confirm waits for a confirmation control and clicks it. A missing control
// is reported as false, not as an error.
func (e *Executor) confirm(ctx context.Context, scope target.Scope) (bool, error) {
	var control target.Element
	found, err := clock.Await(ctx, e.clock, e.cfg.ConfirmWait, e.cfg.ConfirmPoll, func(ctx context.Context) (bool, error) {
		el, err := bounded(ctx, e.cfg.StepTimeout, func(ctx context.Context) (target.Element, error) {
			return e.recognizer.FindConfirmation(ctx, scope)
		})
		if err != nil || el == nil {
			return false, err
		}
		control = el
		return true, nil
	}, e.logPollError)
	if err != nil {
		return false, err
	}
	if found != clock.Found {
		return false, nil
	}
	if err := e.step(ctx, control.Click); err != nil {
		e.logger.Debug().Err(err).Msg("confirmation click failed")
		return false, nil
	}
	return true, nil
}

// settled reports whether the target reached its terminal state: the scope
// left the view, or nothing actionable remains inside it.
func (e *Executor) settled(ctx context.Context, scope target.Scope) (bool, error) {
	attached, err := scope.Attached(ctx)
	if err != nil {
		return false, err
	}
	if !attached {
		return true, nil
	}
	els, err := scope.Elements(ctx)
	if err != nil {
		return false, err
	}
	for _, el := range els {
		ok, err := e.recognizer.IsActionable(ctx, el)
		if err != nil {
			return false, err
		}
		if ok {
			return false, nil
		}
	}
	return true, nil
}

func (e *Executor) step(ctx context.Context, fn func(context.Context) error) error {
	_, err := bounded(ctx, e.cfg.StepTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// ErrStepTimeout is reported when a step outlives its time box.
var ErrStepTimeout = errors.New("step timed out")

// bounded runs fn with a deadline and returns when either fn or the deadline
// finishes. fn keeps running in the background after a timeout and its late
// result is dropped. A panic in fn is re-raised on the caller's goroutine.
func bounded[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val      T
		err      error
		panicked any
	}
	done := make(chan result, 1)
	go func() {
		var r result
		defer func() {
			if p := recover(); p != nil {
				r.panicked = p
			}
			done <- r
		}()
		r.val, r.err = fn(sctx)
	}()

	select {
	case r := <-done:
		if r.panicked != nil {
			panic(r.panicked)
		}
		return r.val, r.err
	case <-sctx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, fmt.Errorf("%w after %s", ErrStepTimeout, timeout)
	}
}

func (e *Executor) logPollError(err error) {
	e.pollLog.Do(func() {
		e.logger.Debug().Err(err).Msg("poll check failed")
	})
}
