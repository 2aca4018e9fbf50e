package corert

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunStateTransitions(t *testing.T) {
	s := newRunState()
	require.Equal(t, StateAwake, s.Load())
	require.True(t, s.CanAcceptWork())
	require.False(t, s.IsTerminal())

	require.True(t, s.TryTransition(StateAwake, StateRunning))
	require.False(t, s.TryTransition(StateAwake, StateRunning)) // no longer Awake
	require.Equal(t, StateRunning, s.Load())

	require.True(t, s.TryTransition(StateRunning, StateSleeping))
	require.True(t, s.CanAcceptWork())

	require.True(t, s.TryTransition(StateSleeping, StateRunning))
	require.True(t, s.TryTransition(StateRunning, StateTerminated))
	require.True(t, s.IsTerminal())
	require.False(t, s.CanAcceptWork())
}

func TestLoopStateString(t *testing.T) {
	cases := map[LoopState]string{
		StateAwake:      "awake",
		StateRunning:    "running",
		StateSleeping:   "sleeping",
		StateTerminating: "terminating",
		StateTerminated: "terminated",
	}
	for state, want := range cases {
		require.Equal(t, want, state.String())
	}
}
