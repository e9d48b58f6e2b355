// Package event defines the progress events emitted by the run loop.
package event

import (
	"time"

	"github.com/rs/zerolog"
)

type Kind int

const (
	AttemptSucceeded Kind = iota + 1
	AttemptUnverified
	QuotaCooldownStarted
	QuotaCooldownEnded
	ThrottleCooldownStarted
	ThrottleCooldownEnded
	PenaltyDelay
	Paced
	Draining
	Exhausted
	StopRequested
	SessionCapReached
	Stopped
)

var kindNames = map[Kind]string{
	AttemptSucceeded:        "attempt_succeeded",
	AttemptUnverified:       "attempt_unverified",
	QuotaCooldownStarted:    "quota_cooldown_started",
	QuotaCooldownEnded:      "quota_cooldown_ended",
	ThrottleCooldownStarted: "throttle_cooldown_started",
	ThrottleCooldownEnded:   "throttle_cooldown_ended",
	PenaltyDelay:            "penalty_delay",
	Paced:                   "paced",
	Draining:                "draining",
	Exhausted:               "exhausted",
	StopRequested:           "stop_requested",
	SessionCapReached:       "session_cap_reached",
	Stopped:                 "stopped",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Event is one observable transition of a run. Fields that do not apply to
// a kind are left zero.
type Event struct {
	Kind     Kind
	At       time.Time
	Total    int           // running success count
	Duration time.Duration // wait length for cooldown, penalty and pacing events
	Target   string        // fingerprint of the target involved
	Reason   string
}

// Sink receives events synchronously on the run loop goroutine.
type Sink func(Event)

// Discard drops every event.
func Discard(Event) {}

// Tee fans an event out to every non-nil sink.
func Tee(sinks ...Sink) Sink {
	return func(ev Event) {
		for _, s := range sinks {
			if s != nil {
				s(ev)
			}
		}
	}
}

// Log returns a sink that writes each event as a human readable line.
func Log(logger zerolog.Logger) Sink {
	return func(ev Event) {
		var e *zerolog.Event
		switch ev.Kind {
		case AttemptUnverified, ThrottleCooldownStarted:
			e = logger.Warn()
		case Paced:
			e = logger.Debug()
		default:
			e = logger.Info()
		}
		e = e.Str("event", ev.Kind.String())
		if ev.Target != "" {
			e = e.Str("target", ev.Target)
		}
		if ev.Duration > 0 {
			e = e.Dur("wait", ev.Duration)
		}
		if ev.Reason != "" {
			e = e.Str("reason", ev.Reason)
		}
		e.Int("total", ev.Total).Msg(message(ev))
	}
}

func message(ev Event) string {
	switch ev.Kind {
	case AttemptSucceeded:
		return "action verified"
	case AttemptUnverified:
		return "could not verify action, slowing down"
	case QuotaCooldownStarted:
		return "window quota reached, cooling down"
	case QuotaCooldownEnded:
		return "quota window reset"
	case ThrottleCooldownStarted:
		return "possible rate limit, long cooldown"
	case ThrottleCooldownEnded:
		return "throttle cooldown finished"
	case PenaltyDelay:
		return "penalty delay"
	case Paced:
		return "paced"
	case Draining:
		return "no candidates visible, revealing more"
	case Exhausted:
		return "no more targets found"
	case StopRequested:
		return "stop requested"
	case SessionCapReached:
		return "session cap reached"
	case Stopped:
		return "run stopped"
	}
	return ev.Kind.String()
}
