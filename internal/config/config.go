// Package config loads the runner configuration from a YAML or JSON file and
// resolves it into the typed settings each component takes.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/paced-actions/internal/agent"
	"github.com/polzovatel/paced-actions/internal/browser"
	"github.com/polzovatel/paced-actions/internal/recognize"
	"github.com/polzovatel/paced-actions/internal/target"
	"github.com/polzovatel/paced-actions/internal/throttle"
)

// LogLevelEnv overrides log.level when set.
const LogLevelEnv = "UNBLOCK_LOG_LEVEL"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is a resolved File.
type Config struct {
	Agent    agent.Config
	Browser  Browser
	Patterns *recognize.Patterns
	LogLevel zerolog.Level
}

// Browser groups what the binary needs to open the page.
type Browser struct {
	URL          string
	Headless     bool
	StorageState string
	SaveState    string
	Surface      browser.SurfaceOptions
}

// Load reads path. An empty path yields an empty File, which resolves to
// the defaults. Unknown keys are rejected.
func Load(path string) (*File, error) {
	f := &File{}
	if strings.TrimSpace(path) == "" {
		return f, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	jb, err := coerceToJSONBytes(path, b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// ApplyEnv lets the environment override file values.
func (f *File) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(LogLevelEnv)); v != "" {
		f.Log.Level = v
	}
}

// Resolve fills defaults, parses durations and patterns, and validates the
// result. All problems are reported together.
func (f *File) Resolve() (*Config, error) {
	var errs []error
	dur := func(path, raw string, def time.Duration) time.Duration {
		d, err := ParseDurationOrDefault(path, raw, def)
		if err != nil {
			errs = append(errs, err)
			return def
		}
		return d
	}

	cfg := agent.DefaultConfig()
	if f.Quota.MaxPerWindow != 0 {
		cfg.MaxPerWindow = f.Quota.MaxPerWindow
	}
	cfg.Window = dur("quota.window", f.Quota.Window, cfg.Window)
	mode, err := throttle.ParseWindowMode(f.Quota.Mode)
	if err != nil {
		errs = append(errs, fmt.Errorf("quota.mode: %w", err))
	}
	cfg.WindowMode = mode

	cfg.MinDelay = dur("pacing.min_delay", f.Pacing.MinDelay, cfg.MinDelay)
	cfg.MaxDelay = dur("pacing.max_delay", f.Pacing.MaxDelay, cfg.MaxDelay)

	cfg.Cooldown = dur("backoff.cooldown", f.Backoff.Cooldown, cfg.Cooldown)
	cfg.Penalty = dur("backoff.penalty", f.Backoff.Penalty, 0)

	a := &cfg.Action
	a.ConfirmWait = dur("timeouts.confirm_wait", f.Timeouts.ConfirmWait, a.ConfirmWait)
	a.ConfirmPoll = dur("timeouts.confirm_poll", f.Timeouts.ConfirmPoll, a.ConfirmPoll)
	a.StateChangeWait = dur("timeouts.state_change_wait", f.Timeouts.StateChangeWait, a.StateChangeWait)
	a.StatePoll = dur("timeouts.state_poll", f.Timeouts.StatePoll, a.StatePoll)
	a.StepTimeout = dur("timeouts.step", f.Timeouts.Step, a.StepTimeout)
	a.SettleMin = dur("timeouts.settle_min", f.Timeouts.SettleMin, a.SettleMin)
	a.SettleMax = dur("timeouts.settle_max", f.Timeouts.SettleMax, a.SettleMax)
	a.RequireConfirmation = f.Session.RequireConfirmation
	click := dur("timeouts.click", f.Timeouts.Click, 0)

	cfg.SessionCap = f.Session.Cap
	identity, err := target.ParseIdentityMode(f.Session.Dedup)
	if err != nil {
		errs = append(errs, fmt.Errorf("session.dedup: %w", err))
	}
	cfg.Identity = identity

	if f.Browser.ScrollStep < 0 {
		errs = append(errs, fmt.Errorf("browser.scroll_step must be >= 0, got %d", f.Browser.ScrollStep))
	}
	if f.Browser.ListLimit < 0 {
		errs = append(errs, fmt.Errorf("browser.list_limit must be >= 0, got %d", f.Browser.ListLimit))
	}

	patterns, err := recognize.Compile(f.Recognizer.Patterns)
	if err != nil {
		errs = append(errs, err)
	}

	level := zerolog.InfoLevel
	if raw := strings.TrimSpace(f.Log.Level); raw != "" {
		lvl, err := zerolog.ParseLevel(strings.ToLower(raw))
		if err != nil {
			errs = append(errs, fmt.Errorf("log.level: %w", err))
		} else {
			level = lvl
		}
	}

	if len(errs) == 0 {
		if err := cfg.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}

	return &Config{
		Agent: cfg,
		Browser: Browser{
			URL:          strings.TrimSpace(f.Browser.URL),
			Headless:     f.Browser.Headless,
			StorageState: strings.TrimSpace(f.Browser.StorageState),
			SaveState:    strings.TrimSpace(f.Browser.SaveState),
			Surface: browser.SurfaceOptions{
				Selectors:    f.Recognizer.Selectors.WithDefaults(),
				ScrollStep:   f.Browser.ScrollStep,
				ListLimit:    f.Browser.ListLimit,
				ClickTimeout: click,
			},
		},
		Patterns: patterns,
		LogLevel: level,
	}, nil
}
