package event

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLogWritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	sink := Log(zerolog.New(&buf))
	sink(Event{Kind: ThrottleCooldownStarted, Duration: 15 * time.Minute, Total: 3})

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"event":"throttle_cooldown_started"`)
	assert.Contains(t, out, `"total":3`)
	assert.Contains(t, out, "possible rate limit")
}

func TestTeeSkipsNilSinks(t *testing.T) {
	var got []Kind
	sink := Tee(nil, func(ev Event) { got = append(got, ev.Kind) }, Discard)
	sink(Event{Kind: Exhausted})
	sink(Event{Kind: Stopped})
	assert.Equal(t, []Kind{Exhausted, Stopped}, got)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "session_cap_reached", SessionCapReached.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
