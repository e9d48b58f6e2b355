package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/paced-actions/internal/agent"
	"github.com/polzovatel/paced-actions/internal/snapshot"
	"github.com/polzovatel/paced-actions/internal/target"
	"github.com/polzovatel/paced-actions/internal/throttle"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestEmptyPathResolvesToDefaults(t *testing.T) {
	f, err := Load("")
	require.NoError(t, err)
	cfg, err := f.Resolve()
	require.NoError(t, err)

	assert.Equal(t, agent.DefaultConfig(), cfg.Agent)
	assert.Equal(t, 16*time.Second, cfg.Agent.EffectivePenalty())
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
	assert.Equal(t, snapshot.DefaultSelectors(), cfg.Browser.Surface.Selectors)
	require.NotNil(t, cfg.Patterns)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "unblock.yaml", `
quota:
  max_per_window: 5
  window: 2m
  mode: sliding
pacing:
  min_delay: 3s
  max_delay: 4s
backoff:
  cooldown: 30m
  penalty: 10s
timeouts:
  confirm_wait: 2s
  click: 3s
session:
  cap: 40
  require_confirmation: true
  dedup: value
browser:
  url: https://example.com/settings/blocked
  headless: true
  storage_state: state.json
  scroll_step: 500
recognizer:
  selectors:
    rows: ["tr.row"]
  patterns:
    throttle_text: "(?i)slow down"
log:
  level: debug
`)
	f, err := Load(path)
	require.NoError(t, err)
	cfg, err := f.Resolve()
	require.NoError(t, err)

	a := cfg.Agent
	assert.Equal(t, 5, a.MaxPerWindow)
	assert.Equal(t, 2*time.Minute, a.Window)
	assert.Equal(t, throttle.Sliding, a.WindowMode)
	assert.Equal(t, 3*time.Second, a.MinDelay)
	assert.Equal(t, 4*time.Second, a.MaxDelay)
	assert.Equal(t, 30*time.Minute, a.Cooldown)
	assert.Equal(t, 10*time.Second, a.EffectivePenalty())
	assert.Equal(t, 2*time.Second, a.Action.ConfirmWait)
	assert.Equal(t, 5*time.Second, a.Action.StateChangeWait)
	assert.True(t, a.Action.RequireConfirmation)
	assert.Equal(t, 40, a.SessionCap)
	assert.Equal(t, target.ByValue, a.Identity)

	b := cfg.Browser
	assert.Equal(t, "https://example.com/settings/blocked", b.URL)
	assert.True(t, b.Headless)
	assert.Equal(t, "state.json", b.StorageState)
	assert.Equal(t, 500, b.Surface.ScrollStep)
	assert.Equal(t, 3*time.Second, b.Surface.ClickTimeout)
	assert.Equal(t, []string{"tr.row"}, b.Surface.Selectors.Rows)
	assert.Equal(t, snapshot.DefaultSelectors().Dialogs, b.Surface.Selectors.Dialogs)

	assert.True(t, cfg.Patterns.Throttle("Please slow down"))
	assert.False(t, cfg.Patterns.Throttle("Rate limit exceeded"))
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "unblock.json", `{"quota":{"max_per_window":3},"session":{"cap":2}}`)
	f, err := Load(path)
	require.NoError(t, err)
	cfg, err := f.Resolve()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Agent.MaxPerWindow)
	assert.Equal(t, 2, cfg.Agent.SessionCap)
	assert.Equal(t, 10*time.Minute, cfg.Agent.Window)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "unblock.yaml", "quota:\n  max_per_hour: 5\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_per_hour")
}

func TestLoadEmptyYAML(t *testing.T) {
	path := writeFile(t, "unblock.yml", "# nothing here\n")
	f, err := Load(path)
	require.NoError(t, err)
	_, err = f.Resolve()
	require.NoError(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestResolveReportsEveryProblem(t *testing.T) {
	f := &File{
		Quota:      QuotaConfig{Window: "ten minutes", Mode: "hourly"},
		Pacing:     PacingConfig{MinDelay: "-3s"},
		Session:    SessionConfig{Dedup: "maybe"},
		Recognizer: RecognizerConfig{},
		Log:        LogConfig{Level: "loud"},
	}
	f.Recognizer.Patterns.Throttle = "(unclosed"

	_, err := f.Resolve()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
	msg := err.Error()
	for _, want := range []string{"quota.window", "quota.mode", "pacing.min_delay", "session.dedup", "throttle_text", "log.level"} {
		assert.Contains(t, msg, want)
	}
}

func TestResolveValidatesAgentConfig(t *testing.T) {
	f := &File{Pacing: PacingConfig{MinDelay: "20s", MaxDelay: "10s"}}
	_, err := f.Resolve()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "min delay 20s exceeds max delay 10s")
}

func TestResolveKeepsExplicitZeroDurations(t *testing.T) {
	path := writeFile(t, "unblock.yaml", `
pacing:
  min_delay: 0s
timeouts:
  confirm_wait: 0s
  step: 0s
`)
	f, err := Load(path)
	require.NoError(t, err)
	cfg, err := f.Resolve()
	require.NoError(t, err)

	assert.Zero(t, cfg.Agent.MinDelay)
	assert.Equal(t, agent.DefaultConfig().MaxDelay, cfg.Agent.MaxDelay)
	assert.Zero(t, cfg.Agent.Action.ConfirmWait)
	assert.Zero(t, cfg.Agent.Action.StepTimeout)
	// unset keys still take defaults
	assert.Equal(t, agent.DefaultConfig().Action.StateChangeWait, cfg.Agent.Action.StateChangeWait)
}

func TestResolveRejectsZeroWindow(t *testing.T) {
	path := writeFile(t, "unblock.yaml", "quota:\n  window: 0s\n")
	f, err := Load(path)
	require.NoError(t, err)
	_, err = f.Resolve()
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "window must be > 0")
}

func TestApplyEnv(t *testing.T) {
	f := &File{Log: LogConfig{Level: "info"}}
	env := map[string]string{LogLevelEnv: "warn"}
	f.ApplyEnv(func(k string) string { return env[k] })
	cfg, err := f.Resolve()
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, cfg.LogLevel)

	f.ApplyEnv(func(string) string { return "" })
	assert.Equal(t, "warn", f.Log.Level)
}

func TestParseDurationOrDefault(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	d, err = ParseDurationOrDefault("x", "0s", time.Second)
	require.NoError(t, err)
	assert.Zero(t, d)

	d, err = ParseDurationOrDefault("x", " 1m30s ", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = ParseDurationOrDefault("pacing.min_delay", "-1s", time.Second)
	assert.EqualError(t, err, "pacing.min_delay: duration must be >= 0")
}
