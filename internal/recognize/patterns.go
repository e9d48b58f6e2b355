// Package recognize classifies element descriptions and notice text with
// configurable patterns. It knows nothing about how elements are found.
package recognize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/polzovatel/paced-actions/internal/target"
)

// Defaults match the "Blocked" toggle on a blocked-accounts list, its
// "Unblock" confirmation sheet and the usual rate-limit toasts.
const (
	DefaultActionable      = `(?i)^blocked$`
	DefaultActionableLabel = `(?i)blocked`
	DefaultConfirm         = `(?i)unblock|confirm`
	DefaultConfirmTestID   = `(?i)confirmationSheetConfirm`
	DefaultConfirmFallback = `(?i)unblock`
	DefaultThrottle        = `(?i)rate|too many|try again later|slow down|temporarily limited|limit exceeded`
)

// Spec is the textual form of Patterns, as it appears in configuration.
type Spec struct {
	Actionable      string `json:"actionable_text"`
	ActionableLabel string `json:"actionable_label"`
	Confirm         string `json:"confirm_text"`
	ConfirmTestID   string `json:"confirm_testid"`
	ConfirmFallback string `json:"confirm_fallback_text"`
	Throttle        string `json:"throttle_text"`
}

// DefaultSpec returns the built-in pattern set.
func DefaultSpec() Spec {
	return Spec{
		Actionable:      DefaultActionable,
		ActionableLabel: DefaultActionableLabel,
		Confirm:         DefaultConfirm,
		ConfirmTestID:   DefaultConfirmTestID,
		ConfirmFallback: DefaultConfirmFallback,
		Throttle:        DefaultThrottle,
	}
}

// Patterns is a compiled Spec.
type Patterns struct {
	actionable      *regexp.Regexp
	actionableLabel *regexp.Regexp
	confirm         *regexp.Regexp
	confirmTestID   *regexp.Regexp
	confirmFallback *regexp.Regexp
	throttle        *regexp.Regexp
}

// Compile compiles s, substituting defaults for empty fields.
func Compile(s Spec) (*Patterns, error) {
	def := DefaultSpec()
	var p Patterns
	fields := []struct {
		name string
		raw  string
		def  string
		dst  **regexp.Regexp
	}{
		{"actionable_text", s.Actionable, def.Actionable, &p.actionable},
		{"actionable_label", s.ActionableLabel, def.ActionableLabel, &p.actionableLabel},
		{"confirm_text", s.Confirm, def.Confirm, &p.confirm},
		{"confirm_testid", s.ConfirmTestID, def.ConfirmTestID, &p.confirmTestID},
		{"confirm_fallback_text", s.ConfirmFallback, def.ConfirmFallback, &p.confirmFallback},
		{"throttle_text", s.Throttle, def.Throttle, &p.throttle},
	}
	for _, f := range fields {
		raw := strings.TrimSpace(f.raw)
		if raw == "" {
			raw = f.def
		}
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("recognize: %s: %w", f.name, err)
		}
		*f.dst = re
	}
	return &p, nil
}

// MustDefault compiles the built-in patterns.
func MustDefault() *Patterns {
	p, err := Compile(DefaultSpec())
	if err != nil {
		panic(err)
	}
	return p
}

// Actionable matches the label loosely and the visible text exactly.
func (p *Patterns) Actionable(d target.Description) bool {
	if d.Label != "" && p.actionableLabel.MatchString(d.Label) {
		return true
	}
	return p.actionable.MatchString(strings.TrimSpace(d.Text))
}

// Confirm reports whether d is a confirmation control inside a dialog.
func (p *Patterns) Confirm(d target.Description) bool {
	if d.TestID != "" && p.confirmTestID.MatchString(d.TestID) {
		return true
	}
	return d.Text != "" && p.confirm.MatchString(d.Text)
}

// ConfirmFallback is the looser match used when no dialog holds a control.
func (p *Patterns) ConfirmFallback(d target.Description) bool {
	return d.Text != "" && p.confirmFallback.MatchString(d.Text)
}

// Throttle reports whether a notice text reads like a rate-limit message.
func (p *Patterns) Throttle(notice string) bool {
	return notice != "" && p.throttle.MatchString(notice)
}

// JSPattern is a regular expression in the form a browser RegExp takes.
type JSPattern struct {
	Source string
	Flags  string
}

// jsUnsafe lists Go syntax a browser RegExp rejects or reads differently.
var jsUnsafe = []string{`\A`, `\z`, `\Q`, `\C`, `\p`, `\P`, `\x{`, `[[:`}

// ToJS converts re for use in the page. Leading flag groups such as (?i)
// become RegExp flags. ok is false when re uses syntax the two engines do
// not share, in which case the page must not filter with it.
func ToJS(re *regexp.Regexp) (JSPattern, bool) {
	src := re.String()
	var flags strings.Builder
	for strings.HasPrefix(src, "(?") {
		end := strings.IndexByte(src, ')')
		if end < 0 {
			return JSPattern{}, false
		}
		group := src[2:end]
		if group == "" || strings.Trim(group, "ims") != "" {
			break
		}
		for _, f := range group {
			if !strings.ContainsRune(flags.String(), f) {
				flags.WriteRune(f)
			}
		}
		src = src[end+1:]
	}
	for rest := src; ; {
		i := strings.Index(rest, "(?")
		if i < 0 {
			break
		}
		if !strings.HasPrefix(rest[i:], "(?:") {
			return JSPattern{}, false
		}
		rest = rest[i+3:]
	}
	for _, bad := range jsUnsafe {
		if strings.Contains(src, bad) {
			return JSPattern{}, false
		}
	}
	return JSPattern{Source: src, Flags: flags.String()}, true
}

// ActionableJS returns the actionable patterns for matching in the page.
// ok is false when either one cannot be expressed there.
func (p *Patterns) ActionableJS() (text, label JSPattern, ok bool) {
	text, ok = ToJS(p.actionable)
	if !ok {
		return JSPattern{}, JSPattern{}, false
	}
	label, ok = ToJS(p.actionableLabel)
	if !ok {
		return JSPattern{}, JSPattern{}, false
	}
	return text, label, true
}
