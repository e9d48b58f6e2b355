package recognize

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/paced-actions/internal/target"
)

func TestDefaultActionable(t *testing.T) {
	p := MustDefault()
	tests := []struct {
		name string
		desc target.Description
		want bool
	}{
		{"aria label", target.Description{Label: "Blocked"}, true},
		{"label with handle", target.Description{Label: "Blocked @someone"}, true},
		{"exact text", target.Description{Text: "  blocked "}, true},
		{"text in sentence", target.Description{Text: "You blocked them"}, false},
		{"follow button", target.Description{Label: "Follow", Text: "Follow"}, false},
		{"empty", target.Description{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Actionable(tt.desc))
		})
	}
}

func TestDefaultConfirm(t *testing.T) {
	p := MustDefault()
	assert.True(t, p.Confirm(target.Description{Text: "Unblock"}))
	assert.True(t, p.Confirm(target.Description{TestID: "confirmationSheetConfirm"}))
	assert.True(t, p.Confirm(target.Description{Text: "Confirm"}))
	assert.False(t, p.Confirm(target.Description{Text: "Cancel"}))

	assert.True(t, p.ConfirmFallback(target.Description{Text: "Unblock @x"}))
	assert.False(t, p.ConfirmFallback(target.Description{Text: "Confirm"}))
}

func TestDefaultThrottle(t *testing.T) {
	p := MustDefault()
	for _, msg := range []string{
		"Rate limit exceeded",
		"You are doing that too many times",
		"Something went wrong. Try again later.",
		"Slow down!",
		"Your account is temporarily limited",
	} {
		assert.True(t, p.Throttle(msg), msg)
	}
	assert.False(t, p.Throttle("Unblocked @x"))
	assert.False(t, p.Throttle(""))
}

func TestCompileOverridesAndErrors(t *testing.T) {
	p, err := Compile(Spec{Actionable: `(?i)^muted$`, ActionableLabel: `(?i)^muted`})
	require.NoError(t, err)
	assert.True(t, p.Actionable(target.Description{Text: "Muted"}))
	assert.False(t, p.Actionable(target.Description{Text: "Blocked"}))
	// untouched fields keep defaults
	assert.True(t, p.Throttle("too many requests"))

	_, err = Compile(Spec{Throttle: "("})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttle_text")
}

func TestToJS(t *testing.T) {
	cases := []struct {
		re     string
		source string
		flags  string
		ok     bool
	}{
		{`(?i)^blocked$`, `^blocked$`, "i", true},
		{`(?is)(?m)a.b`, `a.b`, "ism", true},
		{`^(?:un)?block(ed)?$`, `^(?:un)?block(ed)?$`, "", true},
		{`(?P<word>blocked)`, "", "", false},
		{`blocked(?i)x`, "", "", false},
		{`(?U)a+`, "", "", false},
		{`\Ablocked\z`, "", "", false},
		{`\pL+`, "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.re, func(t *testing.T) {
			got, ok := ToJS(regexp.MustCompile(tc.re))
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, JSPattern{Source: tc.source, Flags: tc.flags}, got)
			}
		})
	}
}

func TestActionableJS(t *testing.T) {
	text, label, ok := MustDefault().ActionableJS()
	require.True(t, ok)
	assert.Equal(t, JSPattern{Source: "^blocked$", Flags: "i"}, text)
	assert.Equal(t, JSPattern{Source: "blocked", Flags: "i"}, label)

	p, err := Compile(Spec{ActionableLabel: `(?P<name>blocked)`})
	require.NoError(t, err)
	_, _, ok = p.ActionableJS()
	assert.False(t, ok)
}
