package models

import "time"

// legislationTZ is the timezone legislation counts expiry days in. Expiry
// always lands at the end of the local day.
const legislationTZ = "America/Vancouver"

// DefaultExpiryDays applies to new-name request types.
const DefaultExpiryDays = 56

// restorationExpiryDays applies to restoration and reinstatement types,
// which get a much longer consumption window.
var restorationExpiryDays = map[string]int{
	"REH":  421,
	"REST": 421,
	"RCC":  421,
	"RCR":  421,
	"RCP":  421,
	"RFI":  421,
	"RLC":  421,
	"RSO":  421,
	"RUL":  421,
	"XRCP": 421,
	"XRCR": 421,
	"XRSO": 421,
	"XRUL": 421,
}

// ExpiryDays returns the consumption window for a request type.
func ExpiryDays(requestType string) int {
	if d, ok := restorationExpiryDays[requestType]; ok {
		return d
	}
	return DefaultExpiryDays
}

// ExpirationDate computes the expiry instant: the given number of days after
// the decision, at 23:59:59 in the legislation timezone.
func ExpirationDate(decidedAt time.Time, days int) time.Time {
	loc, err := time.LoadLocation(legislationTZ)
	if err != nil {
		loc = time.UTC
	}
	local := decidedAt.In(loc).AddDate(0, 0, days)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 0, loc)
}
