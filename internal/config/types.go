package config

import (
	"github.com/polzovatel/paced-actions/internal/recognize"
	"github.com/polzovatel/paced-actions/internal/snapshot"
)

// File is the on-disk configuration. Durations are Go duration strings
// ("90s", "10m"); empty or zero fields take the built-in defaults.
type File struct {
	Quota      QuotaConfig      `json:"quota"`
	Pacing     PacingConfig     `json:"pacing"`
	Timeouts   TimeoutsConfig   `json:"timeouts"`
	Backoff    BackoffConfig    `json:"backoff"`
	Session    SessionConfig    `json:"session"`
	Browser    BrowserConfig    `json:"browser"`
	Recognizer RecognizerConfig `json:"recognizer"`
	Log        LogConfig        `json:"log"`
}

type QuotaConfig struct {
	MaxPerWindow int    `json:"max_per_window"`
	Window       string `json:"window"`
	// Mode is "fixed" (default) or "sliding".
	Mode string `json:"mode"`
}

type PacingConfig struct {
	MinDelay string `json:"min_delay"`
	MaxDelay string `json:"max_delay"`
}

type TimeoutsConfig struct {
	ConfirmWait     string `json:"confirm_wait"`
	ConfirmPoll     string `json:"confirm_poll"`
	StateChangeWait string `json:"state_change_wait"`
	StatePoll       string `json:"state_poll"`
	Step            string `json:"step"`
	SettleMin       string `json:"settle_min"`
	SettleMax       string `json:"settle_max"`
	Click           string `json:"click"`
}

type BackoffConfig struct {
	Cooldown string `json:"cooldown"`
	Penalty  string `json:"penalty"`
}

type SessionConfig struct {
	Cap                 int  `json:"cap"`
	RequireConfirmation bool `json:"require_confirmation"`
	// Dedup is "reference" (default) or "value".
	Dedup string `json:"dedup"`
}

type BrowserConfig struct {
	URL          string `json:"url"`
	Headless     bool   `json:"headless"`
	StorageState string `json:"storage_state"`
	SaveState    string `json:"save_state"`
	ScrollStep   int    `json:"scroll_step"`
	ListLimit    int    `json:"list_limit"`
}

type RecognizerConfig struct {
	Selectors snapshot.Selectors `json:"selectors"`
	Patterns  recognize.Spec     `json:"patterns"`
}

type LogConfig struct {
	Level string `json:"level"`
}
