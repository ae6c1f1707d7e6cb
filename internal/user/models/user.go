package models

import (
	"strings"
	"time"
)

// User is a staff account mirrored from the identity provider on first use.
type User struct {
	ID         int64     `json:"id"`
	Sub        string    `json:"-"`
	Username   string    `json:"username"`
	IDP        string    `json:"idp,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`

	// SearchColumns is the comma-separated column list the user keeps on
	// the search screen.
	SearchColumns string `json:"searchColumns"`
}

// DefaultSearchColumns is the column set new users start with.
const DefaultSearchColumns = "Status,LastModifiedBy,NameRequestNumber,Names,ApplicantFirstName,ApplicantLastName,NatureOfBusiness,ConsentRequired,Priority,ClientNotification,Submitted,LastUpdate,LastComment"

// Columns splits the saved column list.
func (u *User) Columns() []string {
	if u.SearchColumns == "" {
		return nil
	}
	return strings.Split(u.SearchColumns, ",")
}
