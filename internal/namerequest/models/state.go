package models

import (
	"fmt"

	dErrors "namereg/pkg/domain-errors"
)

// State is the lifecycle state of a name request.
type State string

const (
	StateDraft           State = "DRAFT"
	StateInProgress      State = "INPROGRESS"
	StateHold            State = "HOLD"
	StateApproved        State = "APPROVED"
	StateConditional     State = "CONDITIONAL"
	StateRejected        State = "REJECTED"
	StateCancelled       State = "CANCELLED"
	StateExpired         State = "EXPIRED"
	StateConsumed        State = "CONSUMED"
	StateCompleted       State = "COMPLETED"
	StatePendingPayment  State = "PENDING_PAYMENT"
	StateRefundRequested State = "REFUND_REQUESTED"
)

// Role is the caller role checked by state-transition rules.
type Role string

const (
	RoleApprover Role = "approver"
	RoleEditor   Role = "editor"
	RoleViewOnly Role = "viewonly"
	RoleSystem   Role = "system"
)

// allStates indexes every recognized state.
var allStates = map[State]struct{}{
	StateDraft: {}, StateInProgress: {}, StateHold: {},
	StateApproved: {}, StateConditional: {}, StateRejected: {},
	StateCancelled: {}, StateExpired: {}, StateConsumed: {},
	StateCompleted: {}, StatePendingPayment: {}, StateRefundRequested: {},
}

// Valid reports whether s is a recognized state.
func (s State) Valid() bool {
	_, ok := allStates[s]
	return ok
}

// IsDecision reports whether s is an examination outcome.
func (s State) IsDecision() bool {
	return s == StateApproved || s == StateConditional || s == StateRejected
}

// IsTerminal reports whether no further examiner action applies.
func (s State) IsTerminal() bool {
	switch s {
	case StateCancelled, StateExpired, StateConsumed, StateRefundRequested:
		return true
	}
	return false
}

// transitions is the allowed state graph for non-system callers.
// Decisions additionally require the approver role.
var transitions = map[State][]State{
	StateDraft:          {StateInProgress, StateHold, StateCancelled, StateRefundRequested},
	StateInProgress:     {StateDraft, StateHold, StateApproved, StateConditional, StateRejected, StateCancelled},
	StateHold:           {StateDraft, StateInProgress, StateCancelled},
	StateApproved:       {StateInProgress, StateExpired, StateConsumed, StateCancelled},
	StateConditional:    {StateInProgress, StateExpired, StateConsumed, StateCancelled},
	StateRejected:       {StateInProgress},
	StatePendingPayment: {StateDraft, StateCancelled, StateRefundRequested},
}

// CanTransition reports whether from -> to is allowed for the given role.
// System callers may take any edge between recognized states; this is how
// resets and payment promotions move requests outside the examiner graph.
func CanTransition(from, to State, role Role) error {
	if !to.Valid() {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown state %q", to))
	}
	if from == to {
		return nil
	}
	if role == RoleSystem {
		return nil
	}
	if to.IsDecision() && role != RoleApprover {
		return dErrors.New(dErrors.CodeForbidden, "only approvers may decide a name request")
	}
	if role == RoleViewOnly {
		return dErrors.New(dErrors.CodeForbidden, "view-only callers may not change state")
	}
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeInvariantViolation,
		fmt.Sprintf("cannot move a name request from %s to %s", from, to))
}

// RoleFromClaims maps a caller's role set onto the strongest domain role.
func RoleFromClaims(roles []string) Role {
	strongest := RoleViewOnly
	for _, r := range roles {
		switch Role(r) {
		case RoleSystem:
			return RoleSystem
		case RoleApprover:
			strongest = RoleApprover
		case RoleEditor:
			if strongest != RoleApprover {
				strongest = RoleEditor
			}
		}
	}
	return strongest
}
