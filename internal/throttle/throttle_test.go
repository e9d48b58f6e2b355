package throttle

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/paced-actions/internal/clock"
	"github.com/polzovatel/paced-actions/internal/event"
)

var epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

type recorder struct{ events []event.Event }

func (r *recorder) sink(ev event.Event) { r.events = append(r.events, ev) }

func (r *recorder) kinds() []event.Kind {
	out := make([]event.Kind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestQuotaFixedWaitsForRemainingWindow(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(epoch)
	rec := &recorder{}
	q := NewQuota(fake, Fixed, 2, 10*time.Minute, rec.sink)

	require.NoError(t, q.CheckAndMaybeWait(ctx))
	q.RecordSuccess()
	fake.Advance(time.Minute)
	require.NoError(t, q.CheckAndMaybeWait(ctx))
	q.RecordSuccess()
	fake.Advance(time.Minute)

	require.NoError(t, q.CheckAndMaybeWait(ctx))
	assert.Equal(t, []time.Duration{8 * time.Minute}, fake.Sleeps())
	assert.Equal(t, 0, q.Used())
	assert.Equal(t, []event.Kind{event.QuotaCooldownStarted, event.QuotaCooldownEnded}, rec.kinds())
	assert.Equal(t, 8*time.Minute, rec.events[0].Duration)
}

func TestQuotaFixedResetsAfterWindowWithoutWaiting(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(epoch)
	q := NewQuota(fake, Fixed, 1, time.Minute, nil)

	q.RecordSuccess()
	fake.Advance(time.Minute)
	require.NoError(t, q.CheckAndMaybeWait(ctx))
	assert.Empty(t, fake.Sleeps())
	assert.Equal(t, 0, q.Used())
}

func TestQuotaFailuresDoNotConsume(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(epoch)
	q := NewQuota(fake, Fixed, 1, time.Hour, nil)
	for range 5 {
		require.NoError(t, q.CheckAndMaybeWait(ctx))
	}
	assert.Empty(t, fake.Sleeps())
}

func TestQuotaSlidingBoundsRollingWindow(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(epoch)
	q := NewQuota(fake, Sliding, 2, 10*time.Minute, nil)

	require.NoError(t, q.CheckAndMaybeWait(ctx))
	q.RecordSuccess() // t=0
	fake.Advance(9 * time.Minute)
	require.NoError(t, q.CheckAndMaybeWait(ctx))
	q.RecordSuccess() // t=9m

	require.NoError(t, q.CheckAndMaybeWait(ctx))
	assert.Equal(t, []time.Duration{time.Minute}, fake.Sleeps())
	assert.Equal(t, 1, q.Used())
}

func TestQuotaSlidingResetKeepsRecentSuccesses(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(epoch)
	q := NewQuota(fake, Sliding, 2, 10*time.Minute, nil)

	q.RecordSuccess() // t=0
	fake.Advance(2 * time.Minute)
	q.RecordSuccess() // t=2m
	fake.Advance(time.Minute)
	q.Reset()
	assert.Equal(t, 2, q.Used())

	require.NoError(t, q.CheckAndMaybeWait(ctx))
	assert.Equal(t, []time.Duration{7 * time.Minute}, fake.Sleeps())
	assert.Equal(t, 1, q.Used())
}

func TestBackoffThrottleCooldownKeepsSlidingBound(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(epoch)
	q := NewQuota(fake, Sliding, 2, 30*time.Minute, nil)
	q.RecordSuccess()
	q.RecordSuccess()

	b := NewBackoff(fake, detector{throttled: true}, q, 15*time.Minute, time.Second, nil, zerolog.Nop())
	_, err := b.OnFailure(ctx)
	require.NoError(t, err)
	// both successes are still inside the rolling window
	assert.Equal(t, 2, q.Used())

	require.NoError(t, q.CheckAndMaybeWait(ctx))
	assert.Equal(t, []time.Duration{15 * time.Minute, 15 * time.Minute}, fake.Sleeps())
}

func TestQuotaWaitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q := NewQuota(clock.NewFake(epoch), Fixed, 1, time.Hour, nil)
	q.RecordSuccess()
	assert.ErrorIs(t, q.CheckAndMaybeWait(ctx), context.Canceled)
}

func TestParseWindowMode(t *testing.T) {
	m, err := ParseWindowMode("Sliding")
	require.NoError(t, err)
	assert.Equal(t, Sliding, m)
	m, err = ParseWindowMode("")
	require.NoError(t, err)
	assert.Equal(t, Fixed, m)
	_, err = ParseWindowMode("leaky")
	assert.Error(t, err)
}

func TestPacerStaysWithinBounds(t *testing.T) {
	fake := clock.NewFake(epoch)
	min, max := 8*time.Second, 14*time.Second
	p := NewPacer(fake, min, max, rand.New(rand.NewPCG(1, 2)), nil)

	ctx := context.Background()
	seen := map[bool]int{}
	for range 500 {
		d, err := p.Delay(ctx)
		require.NoError(t, err)
		require.GreaterOrEqual(t, d, min)
		require.LessOrEqual(t, d, max)
		seen[d < 11*time.Second]++
	}
	// both halves of the range get drawn
	assert.NotZero(t, seen[true])
	assert.NotZero(t, seen[false])
	assert.Len(t, fake.Sleeps(), 500)
}

func TestPacerDegenerateRange(t *testing.T) {
	p := NewPacer(clock.NewFake(epoch), time.Second, time.Second, nil, nil)
	assert.Equal(t, time.Second, p.Next())

	swapped := NewPacer(clock.NewFake(epoch), 3*time.Second, time.Second, nil, nil)
	assert.Equal(t, time.Second, swapped.Min())
}

type detector struct {
	throttled bool
	err       error
}

func (d detector) HasThrottleSignal(context.Context) (bool, error) { return d.throttled, d.err }

func TestBackoffThrottleCooldownResetsQuota(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(epoch)
	rec := &recorder{}
	q := NewQuota(fake, Fixed, 5, 10*time.Minute, nil)
	q.RecordSuccess()
	q.RecordSuccess()

	b := NewBackoff(fake, detector{throttled: true}, q, 15*time.Minute, 16*time.Second, rec.sink, zerolog.Nop())
	throttled, err := b.OnFailure(ctx)
	require.NoError(t, err)
	assert.True(t, throttled)
	assert.Equal(t, []time.Duration{15 * time.Minute}, fake.Sleeps())
	assert.Equal(t, 0, q.Used())
	assert.Equal(t, []event.Kind{event.ThrottleCooldownStarted, event.ThrottleCooldownEnded}, rec.kinds())

	// the fresh window starts after the cooldown
	q.RecordSuccess()
	fake.Advance(9 * time.Minute)
	require.NoError(t, q.CheckAndMaybeWait(ctx))
	assert.Equal(t, 1, q.Used())
}

func TestBackoffPenaltyKeepsQuota(t *testing.T) {
	fake := clock.NewFake(epoch)
	rec := &recorder{}
	q := NewQuota(fake, Fixed, 5, 10*time.Minute, nil)
	q.RecordSuccess()

	b := NewBackoff(fake, detector{}, q, 15*time.Minute, 16*time.Second, rec.sink, zerolog.Nop())
	throttled, err := b.OnFailure(context.Background())
	require.NoError(t, err)
	assert.False(t, throttled)
	assert.Equal(t, []time.Duration{16 * time.Second}, fake.Sleeps())
	assert.Equal(t, 1, q.Used())
	assert.Equal(t, []event.Kind{event.PenaltyDelay}, rec.kinds())
}

func TestBackoffDetectorErrorMeansPenalty(t *testing.T) {
	fake := clock.NewFake(epoch)
	b := NewBackoff(fake, detector{throttled: true, err: errors.New("page closed")}, nil, time.Hour, time.Second, nil, zerolog.Nop())
	throttled, err := b.OnFailure(context.Background())
	require.NoError(t, err)
	assert.False(t, throttled)
	assert.Equal(t, []time.Duration{time.Second}, fake.Sleeps())
}
