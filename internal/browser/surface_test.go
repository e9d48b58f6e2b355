package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/paced-actions/internal/recognize"
	"github.com/polzovatel/paced-actions/internal/snapshot"
)

func TestFilterActionable(t *testing.T) {
	elems := []snapshot.Element{
		{Ref: 1, Label: "Blocked"},
		{Ref: 2, Text: "Follow"},
		{Ref: 3, Text: " Blocked "},
		{Ref: 4, Text: "Blocked accounts"},
		{Ref: 5, Label: "Unblock @someone", Text: "Blocked"},
	}
	got := FilterActionable(elems, recognize.MustDefault())

	var refs []uint64
	for _, e := range got {
		refs = append(refs, uint64(e.Ref))
	}
	assert.Equal(t, []uint64{1, 3, 5}, refs)
	// the input slice is left untouched
	assert.Equal(t, "Follow", elems[1].Text)
}

func TestTargetFingerprintFallsBackToRef(t *testing.T) {
	keyed := &Target{ref: 7, key: "/alice"}
	bare := &Target{ref: 8}
	assert.Equal(t, "/alice", keyed.Fingerprint())
	assert.Equal(t, "ref:8", bare.Fingerprint())
	assert.NotEqual(t, bare.Fingerprint(), (&Target{ref: 9}).Fingerprint())
}

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		val  string
		def  bool
		want bool
	}{
		{"", true, true},
		{"", false, false},
		{"1", false, true},
		{"YES", false, true},
		{" on ", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
	}
	for _, tc := range cases {
		t.Setenv(headlessEnv, tc.val)
		assert.Equal(t, tc.want, parseBoolEnv(headlessEnv, tc.def), "value %q default %v", tc.val, tc.def)
	}
}

func TestTimeoutMillis(t *testing.T) {
	assert.Equal(t, float64(10000), timeoutMillis(context.Background(), 10*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	got := timeoutMillis(ctx, 10*time.Second)
	assert.LessOrEqual(t, got, float64(200))
	assert.Greater(t, got, float64(0))

	// an expired deadline still yields a positive timeout
	expired, cancel2 := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel2()
	assert.Equal(t, float64(1), timeoutMillis(expired, 10*time.Second))
}

func TestPrefilterFor(t *testing.T) {
	pf := prefilterFor(recognize.MustDefault())
	require.NotNil(t, pf)
	assert.Equal(t, snapshot.Pattern{Source: "^blocked$", Flags: "i"}, pf.Text)
	assert.Equal(t, snapshot.Pattern{Source: "blocked", Flags: "i"}, pf.Label)

	p, err := recognize.Compile(recognize.Spec{Actionable: `\Ablocked\z`})
	require.NoError(t, err)
	assert.Nil(t, prefilterFor(p))
}
