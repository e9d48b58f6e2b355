package target_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/paced-actions/internal/target"
	"github.com/polzovatel/paced-actions/internal/target/targettest"
)

func TestDedupAdmitsOnce(t *testing.T) {
	w := targettest.NewWorld()
	a := w.Add("alice", 10, targettest.Resolves)
	d := target.NewDedup(target.ByReference)

	assert.False(t, d.Seen(a))
	assert.True(t, d.Admit(a))
	assert.True(t, d.Seen(a))
	assert.False(t, d.Admit(a))
	assert.Equal(t, 1, d.Len())
}

func TestDedupReferenceTreatsRerenderAsNew(t *testing.T) {
	w := targettest.NewWorld()
	a := w.Add("alice", 10, targettest.Resolves)
	d := target.NewDedup(target.ByReference)
	require.True(t, d.Admit(a))

	again := w.Rerender(a)
	assert.True(t, d.Admit(again))
}

func TestDedupValueMatchesRerender(t *testing.T) {
	w := targettest.NewWorld()
	a := w.Add("alice", 10, targettest.Resolves)
	d := target.NewDedup(target.ByValue)
	require.True(t, d.Admit(a))

	again := w.Rerender(a)
	assert.False(t, d.Admit(again))
}

func TestDedupUnseenKeepsOrder(t *testing.T) {
	w := targettest.NewWorld()
	a := w.Add("a", 30, targettest.Resolves)
	b := w.Add("b", 20, targettest.Resolves)
	c := w.Add("c", 10, targettest.Resolves)
	d := target.NewDedup(target.ByReference)
	d.Admit(b)

	got := d.Unseen([]target.Target{a, b, c})
	require.Len(t, got, 2)
	assert.Same(t, a, got[0])
	assert.Same(t, c, got[1])
}

func TestParseIdentityMode(t *testing.T) {
	for raw, want := range map[string]target.IdentityMode{
		"":          target.ByReference,
		"reference": target.ByReference,
		"VALUE":     target.ByValue,
	} {
		got, err := target.ParseIdentityMode(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := target.ParseIdentityMode("fuzzy")
	assert.Error(t, err)
}

func TestSelfScopeFollowsTarget(t *testing.T) {
	w := targettest.NewWorld()
	a := w.Add("a", 0, targettest.Vanishes)
	scope := target.SelfScope(a)
	ctx := context.Background()

	els, err := scope.Elements(ctx)
	require.NoError(t, err)
	assert.Len(t, els, 1)

	require.NoError(t, a.Click(ctx))
	ok, err := scope.Attached(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	els, err = scope.Elements(ctx)
	require.NoError(t, err)
	assert.Empty(t, els)
}
