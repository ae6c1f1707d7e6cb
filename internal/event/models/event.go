package models

import (
	"encoding/json"
	"time"

	nrmodels "namereg/internal/namerequest/models"
)

// Actions recorded on the audit trail. Handlers record the HTTP verb style
// actions; workers and system jobs record the named ones.
const (
	ActionGet          = "get"
	ActionPatch        = "patch"
	ActionPut          = "put"
	ActionPost         = "post"
	ActionCheckout     = "checkout"
	ActionCheckin      = "checkin"
	ActionComment      = "comment"
	ActionCancel       = "cancel"
	ActionReset        = "reset"
	ActionNotification = "notification"
	ActionResend       = "resend"
	ActionExpiry       = "expiry_job"
	ActionPaymentDone  = "payment_completed"
	ActionRefund       = "refund_requested"
)

// Event is one entry in an NR's audit trail. JSONData snapshots the request
// at the time of the action.
type Event struct {
	ID         int64           `json:"id"`
	NRNum      string          `json:"nrNum"`
	Action     string          `json:"action"`
	State      nrmodels.State  `json:"stateCd"`
	Examiner   string          `json:"examiner"`
	JSONData   json.RawMessage `json:"jsonData,omitempty"`
	CreatedAt  time.Time       `json:"eventDate"`
	ResendDate *time.Time      `json:"resendDate,omitempty"`
}

// User-action labels shown on the transaction history screen.
const (
	UserActionGetNext       = "Get Next NR"
	UserActionDecision      = "Decision"
	UserActionUndoDecision  = "Undo Decision"
	UserActionReOpen        = "Re-Open"
	UserActionHold          = "Hold Request"
	UserActionEdit          = "Edit NR Details"
	UserActionReset         = "Reset"
	UserActionStaffComment  = "Staff Comment"
	UserActionCancelled     = "Cancelled in Namex"
	UserActionNotified      = "Notification Sent"
	UserActionResent        = "Notification Resent"
	UserActionExpired       = "Expired by System"
	UserActionPaymentDone   = "Payment Completed"
	UserActionRefund        = "Refund Requested"
	UserActionCreated       = "Created NR"
)

// HiddenFromHistory reports whether the event is workflow noise the
// transaction history omits.
func (e Event) HiddenFromHistory() bool {
	return e.Action == ActionCheckout || e.Action == ActionCheckin
}

// DeriveUserAction maps an event, given its predecessor, onto the label the
// history screen shows.
func DeriveUserAction(prev *Event, e Event) string {
	switch e.Action {
	case ActionGet:
		return UserActionGetNext
	case ActionComment:
		return UserActionStaffComment
	case ActionCancel:
		return UserActionCancelled
	case ActionReset:
		return UserActionReset
	case ActionNotification:
		return UserActionNotified
	case ActionResend:
		return UserActionResent
	case ActionExpiry:
		return UserActionExpired
	case ActionPaymentDone:
		return UserActionPaymentDone
	case ActionRefund:
		return UserActionRefund
	case ActionPost:
		return UserActionCreated
	case ActionPatch, ActionPut:
		if e.State.IsDecision() {
			return UserActionDecision
		}
		if e.State == nrmodels.StateCancelled {
			return UserActionCancelled
		}
		if e.State == nrmodels.StateHold {
			return UserActionHold
		}
		if e.State == nrmodels.StateInProgress && prev != nil && prev.State.IsDecision() {
			if prev.Examiner == e.Examiner {
				return UserActionUndoDecision
			}
			return UserActionReOpen
		}
		return UserActionEdit
	}
	return e.Action
}
