package lifecycle

import (
	"time"

	"github.com/etherlinkx/bridge-engine/pkg/model"
)

// transitions is the forward-only state machine. FAILED -> CREATED is the
// explicit retry path, taken only for retryable failures.
var transitions = map[model.TxStatus][]model.TxStatus{
	model.StatusCreated: {
		model.StatusApproving,
		model.StatusSubmitting,
		model.StatusFailed,
	},
	model.StatusApproving: {
		model.StatusAwaitingApprovalConfirmation,
		model.StatusFailed,
	},
	model.StatusAwaitingApprovalConfirmation: {
		model.StatusSubmitting,
		model.StatusFailed,
	},
	model.StatusSubmitting: {
		model.StatusAwaitingConfirmation,
		model.StatusFailed,
	},
	model.StatusAwaitingConfirmation: {
		model.StatusExecuting,
		model.StatusFailed,
		model.StatusRefunded,
	},
	model.StatusExecuting: {
		model.StatusCompleted,
		model.StatusFailed,
		model.StatusRefunded,
	},
	model.StatusFailed:    {model.StatusCreated},
	model.StatusCompleted: {},
	model.StatusRefunded:  {},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to model.TxStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionEvent is emitted on every state change, carrying the full
// transaction snapshot at that point. Distributed in-process via the
// eventbus and to subscribers' snapshot channels.
type TransitionEvent struct {
	Transaction model.Transaction
	From        model.TxStatus
	To          model.TxStatus
	At          time.Time
}
