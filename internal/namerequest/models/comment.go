package models

import "time"

// Comment is a staff note on a name request. Comments are append-only.
type Comment struct {
	ID        int64     `json:"id"`
	Examiner  string    `json:"examiner"`
	Timestamp time.Time `json:"timestamp"`
	Comment   string    `json:"comment"`
}
