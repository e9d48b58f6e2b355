package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/polzovatel/paced-actions/internal/action"
	"github.com/polzovatel/paced-actions/internal/clock"
	"github.com/polzovatel/paced-actions/internal/event"
	"github.com/polzovatel/paced-actions/internal/target"
	"github.com/polzovatel/paced-actions/internal/throttle"
)

var (
	ErrAlreadyRan          = errors.New("orchestrator already ran")
	ErrProviderUnavailable = errors.New("target provider unavailable")
)

// State of the run loop. Stopped is terminal.
type State int32

const (
	Running State = iota
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Draining:
		return "draining"
	default:
		return "stopped"
	}
}

// StopReason tells why a run ended.
type StopReason string

const (
	ReasonExhausted           StopReason = "exhausted"
	ReasonStopRequested       StopReason = "stop-requested"
	ReasonSessionCap          StopReason = "session-cap"
	ReasonCancelled           StopReason = "cancelled"
	ReasonProviderUnavailable StopReason = "provider-unavailable"
)

// Summary is returned when a run ends.
type Summary struct {
	RunID      string
	Successes  int
	Attempts   int
	Unverified int
	Throttled  int
	Reason     StopReason
	Elapsed    time.Duration
}

// Orchestrator is the control loop. All external interaction is serialized
// on the goroutine that calls Run; Stop and State are the only methods safe
// to call from elsewhere.
type Orchestrator struct {
	cfg        Config
	provider   target.Provider
	recognizer target.Recognizer
	planner    Planner
	clock      clock.Clock
	logger     zerolog.Logger
	sink       event.Sink
	rng        *rand.Rand

	quota    *throttle.Quota
	pacer    *throttle.Pacer
	backoff  *throttle.Backoff
	executor *action.Executor
	dedup    *target.Dedup

	state   atomic.Int32
	stop    atomic.Bool
	started atomic.Bool

	runID      string
	successes  int
	attempts   int
	unverified int
	throttled  int
}

type Option func(*Orchestrator)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) Option { return func(o *Orchestrator) { o.clock = c } }

// WithEvents adds a sink that receives every progress event.
func WithEvents(s event.Sink) Option { return func(o *Orchestrator) { o.sink = s } }

func WithPlanner(p Planner) Option { return func(o *Orchestrator) { o.planner = p } }

// WithRand fixes the pacing randomness.
func WithRand(r *rand.Rand) Option { return func(o *Orchestrator) { o.rng = r } }

func NewOrchestrator(cfg Config, provider target.Provider, recognizer target.Recognizer, logger zerolog.Logger, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if provider == nil || recognizer == nil {
		return nil, errors.New("provider and recognizer are required")
	}
	o := &Orchestrator{
		cfg:        cfg,
		provider:   provider,
		recognizer: recognizer,
		planner:    Topmost,
		clock:      clock.Real(),
		runID:      uuid.NewString(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logger.With().Str("run", o.runID).Logger()
	o.sink = event.Tee(event.Log(o.logger), o.sink)

	if cfg.Cooldown < cfg.Window {
		o.logger.Warn().Dur("cooldown", cfg.Cooldown).Dur("window", cfg.Window).Msg("cooldown shorter than quota window")
	}

	o.quota = throttle.NewQuota(o.clock, cfg.WindowMode, cfg.MaxPerWindow, cfg.Window, o.emit)
	o.pacer = throttle.NewPacer(o.clock, cfg.MinDelay, cfg.MaxDelay, o.rng, o.emit)
	o.backoff = throttle.NewBackoff(o.clock, recognizer, o.quota, cfg.Cooldown, cfg.EffectivePenalty(), o.emit, o.logger)
	o.executor = action.NewExecutor(cfg.Action, o.clock, recognizer, o.logger.With().Str("comp", "exec").Logger())
	o.dedup = target.NewDedup(cfg.Identity)
	return o, nil
}

// Stop asks the loop to end at the next iteration boundary. An attempt in
// flight always completes first. Safe to call repeatedly and concurrently.
func (o *Orchestrator) Stop() {
	if o.stop.CompareAndSwap(false, true) {
		o.logger.Info().Msg("stop requested")
	}
}

func (o *Orchestrator) State() State { return State(o.state.Load()) }

func (o *Orchestrator) RunID() string { return o.runID }

// Run drives the loop until targets are exhausted, the session cap is hit,
// Stop is called or ctx is cancelled. Cancelling ctx interrupts waits but
// never an attempt in flight.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	if !o.started.CompareAndSwap(false, true) {
		return Summary{}, ErrAlreadyRan
	}
	begin := o.clock.Now()
	o.logger.Info().
		Int("max_per_window", o.cfg.MaxPerWindow).
		Dur("window", o.cfg.Window).
		Str("window_mode", o.cfg.WindowMode.String()).
		Dur("min_delay", o.cfg.MinDelay).
		Dur("max_delay", o.cfg.MaxDelay).
		Int("session_cap", o.cfg.SessionCap).
		Msg("run started")

	reason, err := o.loop(ctx)

	o.state.Store(int32(Stopped))
	sum := Summary{
		RunID:      o.runID,
		Successes:  o.successes,
		Attempts:   o.attempts,
		Unverified: o.unverified,
		Throttled:  o.throttled,
		Reason:     reason,
		Elapsed:    o.clock.Now().Sub(begin),
	}
	o.emit(event.Event{Kind: event.Stopped, Reason: string(reason)})
	return sum, err
}

func (o *Orchestrator) loop(ctx context.Context) (StopReason, error) {
	for {
		if err := ctx.Err(); err != nil {
			return ReasonCancelled, err
		}
		if o.stop.Load() {
			o.emit(event.Event{Kind: event.StopRequested})
			return ReasonStopRequested, nil
		}
		if o.cfg.SessionCap > 0 && o.successes >= o.cfg.SessionCap {
			o.emit(event.Event{Kind: event.SessionCapReached})
			return ReasonSessionCap, nil
		}

		if err := o.quota.CheckAndMaybeWait(ctx); err != nil {
			return ReasonCancelled, err
		}

		candidates, listErr := o.candidates(ctx)
		if len(candidates) == 0 {
			if err := ctx.Err(); err != nil {
				return ReasonCancelled, err
			}
			o.state.Store(int32(Draining))
			o.emit(event.Event{Kind: event.Draining})
			if err := o.provider.RevealMore(ctx); err != nil {
				o.logger.Debug().Err(err).Msg("reveal more failed")
			}
			var err error
			candidates, err = o.candidates(ctx)
			if len(candidates) == 0 {
				if cerr := ctx.Err(); cerr != nil {
					return ReasonCancelled, cerr
				}
				if listErr != nil && err != nil {
					return ReasonProviderUnavailable, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
				}
				o.emit(event.Event{Kind: event.Exhausted})
				return ReasonExhausted, nil
			}
			o.state.Store(int32(Running))
		}

		next, ok := o.planner.Next(candidates)
		if !ok || !o.dedup.Admit(next) {
			// a planner must pick from the unseen candidates it was given
			return ReasonExhausted, errors.New("planner returned no admissible target")
		}
		o.attempts++

		if _, err := o.pacer.Delay(ctx); err != nil {
			return ReasonCancelled, err
		}

		res := o.executor.Execute(context.WithoutCancel(ctx), next)
		if res.Outcome == action.Success {
			o.successes++
			o.quota.RecordSuccess()
			o.emit(event.Event{Kind: event.AttemptSucceeded, Target: res.Target, Reason: string(res.Reason)})
			continue
		}

		o.unverified++
		o.emit(event.Event{Kind: event.AttemptUnverified, Target: res.Target, Reason: string(res.Reason)})
		throttled, err := o.backoff.OnFailure(ctx)
		if throttled {
			o.throttled++
		}
		if err != nil {
			return ReasonCancelled, err
		}
	}
}

// candidates lists unprocessed targets. A provider error is logged and
// reads as an empty view.
func (o *Orchestrator) candidates(ctx context.Context) ([]target.Target, error) {
	listed, err := o.provider.ListActionable(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("list targets failed")
		return nil, err
	}
	return o.dedup.Unseen(listed), nil
}

func (o *Orchestrator) emit(ev event.Event) {
	if ev.At.IsZero() {
		ev.At = o.clock.Now()
	}
	ev.Total = o.successes
	o.sink(ev)
}
