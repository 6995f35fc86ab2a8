package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRunIsSingleFlight(t *testing.T) {
	ts := NewTurnState()
	require.NoError(t, ts.StartRun("a"))
	assert.True(t, ts.IsRunning())
	assert.Equal(t, "a", ts.CurrentExchangeID())

	assert.ErrorIs(t, ts.StartRun("b"), ErrTurnInFlight)
	assert.Equal(t, "a", ts.CurrentExchangeID())

	ts.FinishRun()
	assert.False(t, ts.IsRunning())
	assert.Equal(t, "", ts.CurrentExchangeID())
	require.NoError(t, ts.StartRun("b"))
}

func TestCancelRun(t *testing.T) {
	ts := NewTurnState()
	assert.ErrorIs(t, ts.CancelRun(), ErrTurnNotRunning)

	require.NoError(t, ts.StartRun("a"))
	ctx, cancel := context.WithCancel(context.Background())
	ts.SetCancel(cancel)
	require.NoError(t, ts.CancelRun())
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestNilState(t *testing.T) {
	var ts *TurnState
	assert.ErrorIs(t, ts.StartRun("a"), ErrTurnStateNil)
	assert.False(t, ts.IsRunning())
	ts.FinishRun()
}
