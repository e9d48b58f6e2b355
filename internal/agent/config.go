package agent

import (
	"errors"
	"fmt"
	"time"

	"github.com/polzovatel/paced-actions/internal/action"
	"github.com/polzovatel/paced-actions/internal/target"
	"github.com/polzovatel/paced-actions/internal/throttle"
)

// Config is immutable for the duration of a run.
type Config struct {
	MaxPerWindow int
	Window       time.Duration
	WindowMode   throttle.WindowMode

	MinDelay time.Duration
	MaxDelay time.Duration

	// Cooldown is the long sleep after a detected throttle signal.
	Cooldown time.Duration
	// Penalty is the short sleep after an unverified attempt without a
	// throttle signal. Zero means twice MinDelay.
	Penalty time.Duration

	// SessionCap stops the run after this many successes. Zero means no cap.
	SessionCap int
	Identity   target.IdentityMode

	Action action.Config
}

// DefaultConfig returns conservative defaults:
// 20 actions per 10 minutes, 8-14s between attempts, 15 minute cooldown.
// The quota window is fixed, which bounds successes per window start only.
// Across a window boundary up to twice MaxPerWindow can land within one
// rolling Window. Set WindowMode to throttle.Sliding to bound every rolling
// window.
func DefaultConfig() Config {
	return Config{
		MaxPerWindow: 20,
		Window:       10 * time.Minute,
		MinDelay:     8 * time.Second,
		MaxDelay:     14 * time.Second,
		Cooldown:     15 * time.Minute,
		Action:       action.DefaultConfig(),
	}
}

// EffectivePenalty resolves the zero-value default of Penalty.
func (c Config) EffectivePenalty() time.Duration {
	if c.Penalty > 0 {
		return c.Penalty
	}
	return 2 * c.MinDelay
}

func (c Config) Validate() error {
	var errs []error
	if c.MaxPerWindow < 1 {
		errs = append(errs, fmt.Errorf("max per window must be >= 1, got %d", c.MaxPerWindow))
	}
	if c.Window <= 0 {
		errs = append(errs, fmt.Errorf("window must be > 0, got %s", c.Window))
	}
	if c.MinDelay < 0 || c.MaxDelay < 0 {
		errs = append(errs, errors.New("pacing delays must be >= 0"))
	}
	if c.MinDelay > c.MaxDelay {
		errs = append(errs, fmt.Errorf("min delay %s exceeds max delay %s", c.MinDelay, c.MaxDelay))
	}
	if c.Cooldown < 0 || c.Penalty < 0 {
		errs = append(errs, errors.New("cooldown and penalty must be >= 0"))
	}
	if c.SessionCap < 0 {
		errs = append(errs, fmt.Errorf("session cap must be >= 0, got %d", c.SessionCap))
	}
	a := c.Action
	if a.ConfirmWait < 0 || a.StateChangeWait < 0 || a.ConfirmPoll < 0 || a.StatePoll < 0 || a.StepTimeout < 0 {
		errs = append(errs, errors.New("action timeouts must be >= 0"))
	}
	if a.SettleMin > a.SettleMax {
		errs = append(errs, fmt.Errorf("settle min %s exceeds settle max %s", a.SettleMin, a.SettleMax))
	}
	return errors.Join(errs...)
}
