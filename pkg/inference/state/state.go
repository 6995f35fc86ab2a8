package state

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrTurnInFlight indicates a turn is already being sent.
	ErrTurnInFlight = errors.New("a turn is already in flight")
	// ErrTurnNotRunning indicates no turn is currently being sent.
	ErrTurnNotRunning = errors.New("no turn in flight")
	// ErrTurnStateNil indicates the state struct hasn't been initialized.
	ErrTurnStateNil = errors.New("turn state is nil")
)

// TurnState guards the Idle -> Sending -> Idle cycle of a chat session.
//
// It is UI-agnostic and shared by the REPL, the one-shot ask command and tests.
type TurnState struct {
	mu         sync.Mutex
	running    bool
	exchangeID string
	cancel     context.CancelFunc
}

func NewTurnState() *TurnState {
	return &TurnState{}
}

// StartRun marks a turn as being sent. Returns ErrTurnInFlight if one is already active.
func (ts *TurnState) StartRun(exchangeID string) error {
	if ts == nil {
		return ErrTurnStateNil
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.running {
		return ErrTurnInFlight
	}
	ts.running = true
	ts.exchangeID = exchangeID
	return nil
}

// FinishRun returns the state to idle.
func (ts *TurnState) FinishRun() {
	if ts == nil {
		return
	}
	ts.mu.Lock()
	ts.running = false
	ts.exchangeID = ""
	ts.cancel = nil
	ts.mu.Unlock()
}

func (ts *TurnState) IsRunning() bool {
	if ts == nil {
		return false
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.running
}

// CurrentExchangeID returns the id of the turn in flight, or "" when idle.
func (ts *TurnState) CurrentExchangeID() string {
	if ts == nil {
		return ""
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.exchangeID
}

// SetCancel stores the cancel function of the turn in flight.
func (ts *TurnState) SetCancel(cancel context.CancelFunc) {
	if ts == nil {
		return
	}
	ts.mu.Lock()
	ts.cancel = cancel
	ts.mu.Unlock()
}

// CancelRun aborts the turn in flight, for instance when the user interrupts the REPL.
func (ts *TurnState) CancelRun() error {
	if ts == nil {
		return ErrTurnStateNil
	}
	ts.mu.Lock()
	cancel := ts.cancel
	running := ts.running
	ts.mu.Unlock()
	if !running || cancel == nil {
		return ErrTurnNotRunning
	}
	cancel()
	return nil
}
