package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransactionDefaults(t *testing.T) {
	tx := NewTransaction(76561197960287930)

	assert.Equal(t, StateBeingPrepared, tx.State)
	assert.Equal(t, uint64(76561197960287930), tx.PayerExternalID)
	assert.Equal(t, "en", tx.Language)
	assert.Equal(t, "USD", tx.Currency)
	assert.Zero(t, tx.ID)
	assert.NotZero(t, tx.OrderID)
	assert.Empty(t, tx.Items)
}

func TestNewTransactionOrderIDsDiffer(t *testing.T) {
	seen := make(map[uint64]bool)
	for i := 0; i < 100; i++ {
		tx := NewTransaction(1)
		assert.False(t, seen[tx.OrderID], "order id collision")
		seen[tx.OrderID] = true
	}
}

func TestTransitionHappyPath(t *testing.T) {
	tx := NewTransaction(1)

	require.NoError(t, tx.Transition(StateInitiated))
	require.NoError(t, tx.Transition(StateAuthorized))
	require.NoError(t, tx.Transition(StateCompleted))
	assert.Equal(t, StateCompleted, tx.State)
}

func TestTransitionRejectsSkippedStates(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
	}{
		{"prepared to authorized", StateBeingPrepared, StateAuthorized},
		{"prepared to completed", StateBeingPrepared, StateCompleted},
		{"prepared to aborted", StateBeingPrepared, StateAborted},
		{"initiated to completed", StateInitiated, StateCompleted},
		{"initiated back to prepared", StateInitiated, StateBeingPrepared},
		{"authorized back to initiated", StateAuthorized, StateInitiated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := NewTransaction(1)
			tx.State = tt.from

			err := tx.Transition(tt.to)

			require.Error(t, err)
			var transitionErr *InvalidTransitionError
			require.ErrorAs(t, err, &transitionErr)
			assert.Equal(t, tt.from, transitionErr.From)
			assert.Equal(t, tt.to, transitionErr.To)
			assert.Equal(t, tt.from, tx.State, "failed transition must not mutate state")
		})
	}
}

func TestTerminalStatesPermitNothing(t *testing.T) {
	terminals := []State{
		StateCompleted, StateAborted, StateInitiationError, StateFinalizationError,
	}
	all := []State{
		StateBeingPrepared, StateInitiated, StateAuthorized,
		StateCompleted, StateAborted, StateInitiationError, StateFinalizationError,
	}

	for _, terminal := range terminals {
		assert.True(t, terminal.Terminal())
		for _, to := range all {
			tx := &Transaction{State: terminal}
			assert.Error(t, tx.Transition(to),
				"terminal state %s must not transition to %s", terminal, to)
		}
	}
}

func TestTotalAmountInCents(t *testing.T) {
	tx := NewTransaction(1)
	tx.Items = []Item{
		{ProductID: 1, Quantity: 3, AmountInCents: 1500},
		{ProductID: 2, Quantity: 1, AmountInCents: 425},
	}

	assert.Equal(t, int64(1925), tx.TotalAmountInCents())
}
