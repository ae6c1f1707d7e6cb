package models

import dErrors "namereg/pkg/domain-errors"

// Applicant is the contact party on a name request.
type Applicant struct {
	ID             int64  `json:"partyId,omitempty"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	MiddleName     string `json:"middleName,omitempty"`
	ContactName    string `json:"contact,omitempty"`
	ClientFirst    string `json:"clientFirstName,omitempty"`
	ClientLast     string `json:"clientLastName,omitempty"`
	AddrLine1      string `json:"addrLine1"`
	AddrLine2      string `json:"addrLine2,omitempty"`
	AddrLine3      string `json:"addrLine3,omitempty"`
	City           string `json:"city"`
	StateProvince  string `json:"stateProvinceCd"`
	PostalCode     string `json:"postalCd"`
	Country        string `json:"countryTypeCd"`
	PhoneNumber    string `json:"phoneNumber,omitempty"`
	FaxNumber      string `json:"faxNumber,omitempty"`
	EmailAddress   string `json:"emailAddress"`
	DeclineNotify  bool   `json:"declineNotificationInd,omitempty"`
}

// Validate checks the fields the registry requires to reach an applicant.
func (a Applicant) Validate() error {
	if a.LastName == "" {
		return dErrors.New(dErrors.CodeValidation, "applicant last name is required")
	}
	if a.EmailAddress == "" {
		return dErrors.New(dErrors.CodeValidation, "applicant email address is required")
	}
	return nil
}
