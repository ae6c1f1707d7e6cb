package models

import (
	"fmt"
	"time"

	dErrors "namereg/pkg/domain-errors"
)

// NameState is the examination state of a single name choice.
type NameState string

const (
	NameStateNotExamined NameState = "NE"
	NameStateApproved    NameState = "APPROVED"
	NameStateRejected    NameState = "REJECTED"
	NameStateCondition   NameState = "CONDITION"
)

// Name is one of up to three name choices on a request. The name text is
// stored uppercase ASCII; folding happens at the service boundary.
type Name struct {
	ID              int64      `json:"id"`
	Choice          int        `json:"choice"`
	Name            string     `json:"name"`
	State           NameState  `json:"state"`
	Designation     string     `json:"designation,omitempty"`
	ConsumptionDate *time.Time `json:"consumptionDate,omitempty"`
	CorpNum         string     `json:"corpNum,omitempty"`
	Conflict1       string     `json:"conflict1,omitempty"`
	Conflict1Num    string     `json:"conflict1_num,omitempty"`
	Conflict2       string     `json:"conflict2,omitempty"`
	Conflict2Num    string     `json:"conflict2_num,omitempty"`
	Conflict3       string     `json:"conflict3,omitempty"`
	Conflict3Num    string     `json:"conflict3_num,omitempty"`
	DecisionText    string     `json:"decision_text,omitempty"`
	Comment         string     `json:"comment,omitempty"`
}

// Examined reports whether this choice has received a decision.
func (n Name) Examined() bool {
	return n.State != NameStateNotExamined && n.State != ""
}

// Accepted reports whether the choice was approved outright or with
// conditions.
func (n Name) Accepted() bool {
	return n.State == NameStateApproved || n.State == NameStateCondition
}

// Validate checks the per-choice invariants.
func (n Name) Validate() error {
	if n.Choice < 1 || n.Choice > 3 {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("name choice must be 1..3, got %d", n.Choice))
	}
	if n.Name == "" {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("name choice %d has no name text", n.Choice))
	}
	switch n.State {
	case NameStateNotExamined, NameStateApproved, NameStateRejected, NameStateCondition, "":
	default:
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown name state %q", n.State))
	}
	return nil
}

// Consume stamps an accepted name with the corporation that used it.
func (n *Name) Consume(corpNum string, at time.Time) error {
	if !n.Accepted() {
		return dErrors.New(dErrors.CodeInvariantViolation,
			fmt.Sprintf("name choice %d was not accepted and cannot be consumed", n.Choice))
	}
	n.CorpNum = corpNum
	t := at
	n.ConsumptionDate = &t
	return nil
}
