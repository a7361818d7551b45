package lifecycle_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Calibrant-Labs/theatre/core/pkg/lifecycle"
)

func TestForwardChain(t *testing.T) {
	chain := []lifecycle.State{
		lifecycle.StateDraft,
		lifecycle.StateCommitted,
		lifecycle.StateActive,
		lifecycle.StateSettling,
		lifecycle.StateResolved,
		lifecycle.StateArchived,
	}

	for i := 0; i < len(chain)-1; i++ {
		got, err := lifecycle.Transition("t1", chain[i], chain[i+1])
		require.NoError(t, err, "transition %s -> %s", chain[i], chain[i+1])
		assert.Equal(t, chain[i+1], got)
	}
}

func TestReversalsRejected(t *testing.T) {
	reversals := [][2]lifecycle.State{
		{lifecycle.StateCommitted, lifecycle.StateDraft},
		{lifecycle.StateActive, lifecycle.StateCommitted},
		{lifecycle.StateSettling, lifecycle.StateActive},
		{lifecycle.StateResolved, lifecycle.StateSettling},
		{lifecycle.StateArchived, lifecycle.StateResolved},
	}

	for _, pair := range reversals {
		got, err := lifecycle.Transition("t1", pair[0], pair[1])
		require.Error(t, err, "reversal %s -> %s must fail", pair[0], pair[1])
		assert.Equal(t, pair[0], got, "state must not change on rejection")

		var ite *lifecycle.InvalidTransitionError
		require.True(t, errors.As(err, &ite))
		assert.Equal(t, "t1", ite.TheatreID)
		assert.Equal(t, pair[0], ite.From)
		assert.Equal(t, pair[1], ite.To)
	}
}

func TestSkipsRejected(t *testing.T) {
	skips := [][2]lifecycle.State{
		{lifecycle.StateDraft, lifecycle.StateActive},
		{lifecycle.StateDraft, lifecycle.StateResolved},
		{lifecycle.StateCommitted, lifecycle.StateSettling},
		{lifecycle.StateActive, lifecycle.StateResolved},
		{lifecycle.StateActive, lifecycle.StateArchived},
	}

	for _, pair := range skips {
		assert.False(t, lifecycle.CanTransition(pair[0], pair[1]),
			"skip %s -> %s must be illegal", pair[0], pair[1])
	}
}

func TestSelfTransitionRejected(t *testing.T) {
	for _, s := range []lifecycle.State{
		lifecycle.StateDraft, lifecycle.StateCommitted, lifecycle.StateActive,
		lifecycle.StateSettling, lifecycle.StateResolved, lifecycle.StateArchived,
	} {
		assert.False(t, lifecycle.CanTransition(s, s))
	}
}

func TestArchivedIsAbsorbing(t *testing.T) {
	for _, target := range []lifecycle.State{
		lifecycle.StateDraft, lifecycle.StateCommitted, lifecycle.StateActive,
		lifecycle.StateSettling, lifecycle.StateResolved, lifecycle.StateArchived,
	} {
		assert.False(t, lifecycle.CanTransition(lifecycle.StateArchived, target))
	}

	_, ok := lifecycle.Next(lifecycle.StateArchived)
	assert.False(t, ok)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, lifecycle.IsTerminal(lifecycle.StateResolved))
	assert.True(t, lifecycle.IsTerminal(lifecycle.StateArchived))
	assert.False(t, lifecycle.IsTerminal(lifecycle.StateDraft))
	assert.False(t, lifecycle.IsTerminal(lifecycle.StateActive))
}

func TestIsKnown(t *testing.T) {
	assert.True(t, lifecycle.IsKnown(lifecycle.StateSettling))
	assert.False(t, lifecycle.IsKnown(lifecycle.State("PAUSED")))
	assert.False(t, lifecycle.IsKnown(lifecycle.State("")))
}

func TestUnknownStateCannotTransition(t *testing.T) {
	_, err := lifecycle.Transition("t1", lifecycle.State("PAUSED"), lifecycle.StateActive)
	assert.Error(t, err)
}
