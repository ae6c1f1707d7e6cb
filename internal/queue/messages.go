// Package queue carries the Kafka plumbing between the registry, the
// emailer, and the search feeder.
package queue

// Notification options the emailer understands.
const (
	OptionApproved        = "APPROVED"
	OptionConditional     = "CONDITIONAL"
	OptionRejected        = "REJECTED"
	OptionConsentReceived = "CONSENT_RECEIVED"
	OptionBeforeExpiry    = "BEFORE_EXPIRY"
	OptionExpired         = "EXPIRED"
	OptionRenewal         = "RENEWAL"
	OptionUpgrade         = "UPGRADE"
	OptionRefund          = "REFUND"
	OptionReset           = "RESET"
)

// EmailNotification asks the emailer to send one notification for an NR.
type EmailNotification struct {
	NRNum  string `json:"nrNum"`
	Option string `json:"option"`
}

// SearchFeedEvent tells the feeder an NR's names changed. Deleted means the
// NR left the index (cancelled, reset, expired).
type SearchFeedEvent struct {
	NRNum   string `json:"nrNum"`
	Deleted bool   `json:"deleted"`
}
