package models

import "time"

// AttendanceRecord is the presence state of one member for one session of a class.
type AttendanceRecord struct {
	ID            string     `db:"id" json:"id"`
	ClassID       string     `db:"class_id" json:"class_id"`
	MemberID      string     `db:"member_id" json:"member_id"`
	SessionNumber int        `db:"session_number" json:"session_number"`
	SessionDate   time.Time  `db:"session_date" json:"session_date"`
	Present       bool       `db:"present" json:"present"`
	CheckedInAt   *time.Time `db:"checked_in_at" json:"checked_in_at,omitempty"`
	Note          *string    `db:"note" json:"note,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Marked reports whether presence was ever recorded.
func (r AttendanceRecord) Marked() bool {
	return r.Present || r.CheckedInAt != nil
}

// AttendanceFilter scopes listing queries.
type AttendanceFilter struct {
	ClassID       string
	MemberID      string
	SessionNumber int
}

// OpenSessionRequest opens session N of a class.
type OpenSessionRequest struct {
	SessionNumber int `json:"session_number" validate:"required,min=1"`
}

// OpenSessionResult summarises the records created for a session.
type OpenSessionResult struct {
	ClassID         string             `json:"class_id"`
	SessionNumber   int                `json:"session_number"`
	SessionDate     time.Time          `json:"session_date"`
	Created         int                `json:"created"`
	Records         []AttendanceRecord `json:"records"`
	ClassCompleted  bool               `json:"class_completed"`
	CurrentSessions int                `json:"current_sessions"`
}

// MarkPresenceRequest records presence for a member in a session.
type MarkPresenceRequest struct {
	MemberID string  `json:"member_id" validate:"required"`
	Present  *bool   `json:"present" validate:"required"`
	Note     *string `json:"note" validate:"omitempty,max=500"`
}

// ReconcileSummary counts the changes applied by an attendance recalculation.
type ReconcileSummary struct {
	Updated      int `json:"updated"`
	Materialized int `json:"materialized"`
	Deleted      int `json:"deleted"`
	Preserved    int `json:"preserved"`
}
