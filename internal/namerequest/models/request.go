package models

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/names"
)

// nrNumPattern is the canonical request-number format.
var nrNumPattern = regexp.MustCompile(`^NR \d{7}$`)

// Consent flag values. Empty means consent is not applicable.
const (
	ConsentRequired = "Y"
	ConsentWaived   = "N"
	ConsentReceived = "R"
)

// Request is the name-request aggregate.
type Request struct {
	ID             int64      `json:"id"`
	NRNum          string     `json:"nrNum"`
	State          State      `json:"state"`
	PreviousState  *State     `json:"previousStateCd,omitempty"`
	SubmittedDate  time.Time  `json:"submittedDate"`
	ExpirationDate *time.Time `json:"expirationDate,omitempty"`
	Priority       bool       `json:"priority"`
	ConsentFlag    string     `json:"consentFlag,omitempty"`
	Furnished      bool       `json:"furnished"`
	RequestType    string     `json:"requestTypeCd"`
	NatureBusiness string     `json:"natureBusinessInfo,omitempty"`
	AdditionalInfo string     `json:"additionalInfo,omitempty"`
	XproJuris      string     `json:"xproJurisdiction,omitempty"`
	HomeJurisNum   string     `json:"homeJurisNum,omitempty"`
	CorpNum        string     `json:"corpNum,omitempty"`
	ActiveUser     string     `json:"activeUser,omitempty"`
	CheckoutToken  string     `json:"-"`
	HasBeenReset   bool       `json:"hasBeenReset"`
	NotifiedBefore bool       `json:"notifiedBeforeExpiry"`
	NotifiedExpiry bool       `json:"notifiedExpiry"`
	SubmitCount    int        `json:"submitCount"`
	LastUpdate     time.Time  `json:"lastUpdate"`

	Applicant *Applicant `json:"applicant,omitempty"`
	Names     []Name     `json:"names"`
	Comments  []Comment  `json:"comments,omitempty"`
}

// NormalizeNRNum canonicalizes user-supplied request numbers such as
// "nr1234567" or "NR  1234567" into "NR 1234567".
func NormalizeNRNum(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "NR")
	s = strings.TrimSpace(s)
	if len(s) == 7 && isDigits(s) {
		return "NR " + s, nil
	}
	return "", dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("invalid name request number %q", raw))
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Validate checks the aggregate invariants before persisting.
func (r *Request) Validate() error {
	if !nrNumPattern.MatchString(r.NRNum) {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("request number %q does not match NR 9999999", r.NRNum))
	}
	if !r.State.Valid() {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown state %q", r.State))
	}
	switch r.ConsentFlag {
	case "", ConsentRequired, ConsentWaived, ConsentReceived:
	default:
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown consent flag %q", r.ConsentFlag))
	}
	if err := r.validateNames(); err != nil {
		return err
	}
	if r.Applicant != nil {
		if err := r.Applicant.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Request) validateNames() error {
	if len(r.Names) > 3 {
		return dErrors.New(dErrors.CodeValidation, "a name request carries at most three name choices")
	}
	seen := map[int]bool{}
	for _, n := range r.Names {
		if err := n.Validate(); err != nil {
			return err
		}
		if seen[n.Choice] {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("duplicate name choice %d", n.Choice))
		}
		seen[n.Choice] = true
	}
	if len(r.Names) > 0 && !seen[1] {
		return dErrors.New(dErrors.CodeValidation, "name choice 1 is required")
	}
	if seen[3] && !seen[2] {
		return dErrors.New(dErrors.CodeValidation, "name choice 3 requires a choice 2")
	}
	return nil
}

// NameByChoice returns the name at the given choice, or nil.
func (r *Request) NameByChoice(choice int) *Name {
	for i := range r.Names {
		if r.Names[i].Choice == choice {
			return &r.Names[i]
		}
	}
	return nil
}

// AcceptedName returns the approved or conditionally approved name, if any.
func (r *Request) AcceptedName() *Name {
	for i := range r.Names {
		if r.Names[i].Accepted() {
			return &r.Names[i]
		}
	}
	return nil
}

// AllNamesExamined reports whether every choice has a decision. A request
// cannot leave INPROGRESS on a decision until this holds.
func (r *Request) AllNamesExamined() bool {
	for _, n := range r.Names {
		if !n.Examined() {
			return false
		}
	}
	return len(r.Names) > 0
}

// SortNames orders the choices in place by choice number.
func (r *Request) SortNames() {
	sort.Slice(r.Names, func(i, j int) bool { return r.Names[i].Choice < r.Names[j].Choice })
}

// SearchBlob renders the pipe-delimited name column used for substring search.
func (r *Request) SearchBlob() string {
	byChoice := make(map[int]string, len(r.Names))
	for _, n := range r.Names {
		byChoice[n.Choice] = n.Name
	}
	return names.SearchBlob(byChoice)
}

// Assign moves the request into examination by the given examiner.
func (r *Request) Assign(examiner string) error {
	if err := CanTransition(r.State, StateInProgress, RoleEditor); err != nil {
		return err
	}
	prev := r.State
	r.PreviousState = &prev
	r.State = StateInProgress
	r.ActiveUser = examiner
	r.Furnished = false
	return nil
}

// Release returns an INPROGRESS request to its previous state, defaulting
// to HOLD when no previous state was recorded.
func (r *Request) Release() {
	if r.State != StateInProgress {
		return
	}
	target := StateHold
	if r.PreviousState != nil && (*r.PreviousState == StateDraft || *r.PreviousState == StateHold) {
		target = *r.PreviousState
	}
	r.State = target
	r.PreviousState = nil
	r.ActiveUser = ""
}

// Checkout locks an editable request for an external editor and returns the
// lock token callers must present on subsequent writes.
func (r *Request) Checkout(token string) error {
	if r.State != StateDraft && r.State != StateInProgress {
		return dErrors.New(dErrors.CodeConflict, "only draft requests can be checked out")
	}
	if r.AllNamesExamined() {
		return dErrors.New(dErrors.CodeConflict, "request has already been examined")
	}
	if r.CheckoutToken != "" && r.CheckoutToken != token {
		return dErrors.New(dErrors.CodeLocked, "request is checked out by another editor")
	}
	r.CheckoutToken = token
	return nil
}

// Checkin releases a checkout lock. The presented token must match.
func (r *Request) Checkin(token string) error {
	if r.CheckoutToken == "" {
		return nil
	}
	if r.CheckoutToken != token {
		return dErrors.New(dErrors.CodeLocked, "request is checked out by another editor")
	}
	r.CheckoutToken = ""
	return nil
}
