package models

import (
	"time"

	"github.com/noah-isme/fitclass-api/internal/scheduling"
)

// Warning is a non-fatal condition surfaced next to a successful result.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Warning codes.
const (
	WarningReconciliation     = "RECONCILIATION_WARNING"
	WarningUnresolvedLocation = "UNRESOLVED_LOCATION"
	WarningRoomUnavailable    = "ROOM_UNAVAILABLE"
	WarningConflictAccepted   = "CONFLICT_ACCEPTED"
)

// Availability is the answer of a room availability check.
type Availability struct {
	RoomID    string                `json:"room_id,omitempty"`
	Start     time.Time             `json:"start"`
	End       time.Time             `json:"end"`
	Available bool                  `json:"available"`
	Conflicts []scheduling.Occupant `json:"conflicts"`
	Warnings  []Warning             `json:"warnings,omitempty"`
}

// ScheduleConflictError is returned when a booking collides with existing occupants.
type ScheduleConflictError struct {
	Message   string                `json:"message"`
	Conflicts []scheduling.Occupant `json:"conflicts"`
}

// Error implements the error interface for conflict errors.
func (e *ScheduleConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// SessionKind distinguishes regular occurrences from makeups in a derived schedule.
type SessionKind string

const (
	SessionRegular SessionKind = "regular"
	SessionMakeup  SessionKind = "makeup"
)

// ScheduledSession is one entry of a class's effective schedule.
type ScheduledSession struct {
	ClassID       string               `json:"class_id"`
	SessionNumber int                  `json:"session_number,omitempty"`
	Kind          SessionKind          `json:"kind"`
	Date          time.Time            `json:"date"`
	Start         scheduling.TimeOfDay `json:"start_time"`
	End           scheduling.TimeOfDay `json:"end_time"`
	RoomID        *string              `json:"room_id,omitempty"`
	Location      *string              `json:"location,omitempty"`
	Cancelled     bool                 `json:"cancelled"`
	RequestID     string               `json:"request_id,omitempty"`
}

// ClassSchedule is the expanded and override-applied schedule of a class.
type ClassSchedule struct {
	ClassID  string                 `json:"class_id"`
	Status   scheduling.ClassStatus `json:"status"`
	Sessions []ScheduledSession     `json:"sessions"`
}
