package throttle

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/polzovatel/paced-actions/internal/clock"
	"github.com/polzovatel/paced-actions/internal/event"
)

// Pacer sleeps a uniformly random interval before every attempt.
type Pacer struct {
	clock clock.Clock
	sink  event.Sink
	min   time.Duration
	max   time.Duration
	rng   *rand.Rand
}

// NewPacer draws delays from [min, max]. A nil rng uses a time seeded one.
func NewPacer(c clock.Clock, min, max time.Duration, rng *rand.Rand, sink event.Sink) *Pacer {
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))
	}
	if sink == nil {
		sink = event.Discard
	}
	if max < min {
		min, max = max, min
	}
	return &Pacer{clock: c, sink: sink, min: min, max: max, rng: rng}
}

// Next draws the next delay without sleeping.
func (p *Pacer) Next() time.Duration {
	span := int64(p.max - p.min)
	if span <= 0 {
		return p.min
	}
	return p.min + time.Duration(p.rng.Int64N(span+1))
}

// Delay sleeps for Next and returns the duration slept.
func (p *Pacer) Delay(ctx context.Context) (time.Duration, error) {
	d := p.Next()
	p.sink(event.Event{Kind: event.Paced, At: p.clock.Now(), Duration: d})
	if err := p.clock.Sleep(ctx, d); err != nil {
		return 0, err
	}
	return d, nil
}

func (p *Pacer) Min() time.Duration { return p.min }
