// Package store persists name-request aggregates. The Postgres store is the
// production implementation; the memory store backs unit tests and local
// development. Stores are pure I/O and wrap infrastructure sentinels; domain
// rules live in the service.
package store

import (
	"context"
	"time"

	"namereg/internal/namerequest/models"
)

// Order columns accepted by Search.
const (
	OrderBySubmitted  = "submittedDate"
	OrderByLastUpdate = "lastUpdate"
	OrderByNRNum      = "nrNum"
	OrderByExpiration = "expirationDate"
)

// ConsentOption filters on the tri-state consent flag.
type ConsentOption string

const (
	ConsentAny      ConsentOption = ""
	ConsentYes      ConsentOption = "Yes"      // consent required, outstanding
	ConsentNo       ConsentOption = "No"       // consent not required
	ConsentRcvd     ConsentOption = "Received" // consent letter received
	ConsentWaivedOp ConsentOption = "Waived"   // explicitly waived
)

// SearchFilter selects and pages name requests.
type SearchFilter struct {
	States       []models.State
	NRNum        string // substring match
	CompanyName  string // token match against the name-search blob
	FirstName    string
	LastName     string
	Consent      ConsentOption
	Priority     *bool
	Furnished    *bool
	ActiveUser   string
	SubmittedAfter   *time.Time
	SubmittedBefore  *time.Time
	LastUpdateAfter  *time.Time
	LastUpdateBefore *time.Time
	ExpiresBefore    *time.Time

	OrderBy    string // one of the OrderBy constants; empty means submittedDate
	Descending bool
	Offset     int
	Limit      int // 0 means default page size
}

// DecisionReason is a canned rejection/condition rationale examiners attach
// to name decisions.
type DecisionReason struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// RequestStore is the persistence port for name requests.
type RequestStore interface {
	// Create inserts a new aggregate. Wraps sentinel.ErrConflict when the
	// request number already exists.
	Create(ctx context.Context, r *models.Request) (*models.Request, error)

	// GetByNRNum loads one aggregate with names, applicant and comments.
	// Wraps sentinel.ErrNotFound when absent.
	GetByNRNum(ctx context.Context, nrNum string) (*models.Request, error)

	// Update persists the whole aggregate and bumps last_update.
	Update(ctx context.Context, r *models.Request) (*models.Request, error)

	// Execute atomically loads, mutates via fn, and persists an aggregate.
	// fn returning an error aborts without persisting.
	Execute(ctx context.Context, nrNum string, now time.Time, fn func(*models.Request) error) (*models.Request, error)

	// AssignOldestDraft atomically claims the oldest DRAFT request for the
	// examiner, moving it to INPROGRESS. Priority restricts the queue to
	// priority requests. Wraps sentinel.ErrNotFound when the queue is empty.
	AssignOldestDraft(ctx context.Context, examiner string, priority bool, now time.Time) (*models.Request, error)

	// InProgressBy lists the requests currently held by an examiner.
	InProgressBy(ctx context.Context, examiner string) ([]*models.Request, error)

	// Search returns a page of matches plus the total match count.
	Search(ctx context.Context, f SearchFilter) ([]*models.Request, int, error)

	// CompletedSince pages requests decided after cutoff, optionally by one
	// examiner, newest first.
	CompletedSince(ctx context.Context, cutoff time.Time, examiner string, offset, limit int) ([]*models.Request, int, error)

	// DecisionReasons lists the canned decision rationales.
	DecisionReasons(ctx context.Context) ([]DecisionReason, error)
}
