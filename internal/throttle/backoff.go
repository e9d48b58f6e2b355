package throttle

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/paced-actions/internal/clock"
	"github.com/polzovatel/paced-actions/internal/event"
)

// ThrottleDetector reports whether the host is signalling a rate limit.
// target.Recognizer satisfies it.
type ThrottleDetector interface {
	HasThrottleSignal(ctx context.Context) (bool, error)
}

// Backoff decides how long to back off after an unverified attempt. A
// detected throttle signal outranks the local quota model: it triggers the
// long cooldown and restarts the quota window.
type Backoff struct {
	clock    clock.Clock
	detector ThrottleDetector
	quota    *Quota
	cooldown time.Duration
	penalty  time.Duration
	sink     event.Sink
	logger   zerolog.Logger
}

func NewBackoff(c clock.Clock, detector ThrottleDetector, quota *Quota, cooldown, penalty time.Duration, sink event.Sink, logger zerolog.Logger) *Backoff {
	if sink == nil {
		sink = event.Discard
	}
	return &Backoff{
		clock:    c,
		detector: detector,
		quota:    quota,
		cooldown: cooldown,
		penalty:  penalty,
		sink:     sink,
		logger:   logger,
	}
}

// OnFailure applies the backoff policy and reports whether a throttle signal
// was present.
func (b *Backoff) OnFailure(ctx context.Context) (bool, error) {
	throttled, err := b.detector.HasThrottleSignal(ctx)
	if err != nil {
		b.logger.Debug().Err(err).Msg("throttle detection failed, assuming none")
		throttled = false
	}
	if !throttled {
		b.sink(event.Event{Kind: event.PenaltyDelay, At: b.clock.Now(), Duration: b.penalty})
		return false, b.clock.Sleep(ctx, b.penalty)
	}

	b.sink(event.Event{Kind: event.ThrottleCooldownStarted, At: b.clock.Now(), Duration: b.cooldown})
	if err := b.clock.Sleep(ctx, b.cooldown); err != nil {
		return true, err
	}
	if b.quota != nil {
		b.quota.Reset()
	}
	b.sink(event.Event{Kind: event.ThrottleCooldownEnded, At: b.clock.Now()})
	return true, nil
}
