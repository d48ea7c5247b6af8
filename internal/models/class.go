package models

import (
	"time"

	"github.com/noah-isme/fitclass-api/internal/scheduling"
)

// ClassDefinition is a recurring course held by a trainer, optionally in a room.
type ClassDefinition struct {
	ID              string                 `db:"id" json:"id"`
	Name            string                 `db:"name" json:"name"`
	Description     *string                `db:"description" json:"description,omitempty"`
	TrainerID       string                 `db:"trainer_id" json:"trainer_id"`
	RoomID          *string                `db:"room_id" json:"room_id,omitempty"`
	Location        *string                `db:"location" json:"location,omitempty"`
	Capacity        int                    `db:"capacity" json:"capacity"`
	Recurrence      scheduling.Pattern     `db:"recurrence" json:"recurrence"`
	StartDate       time.Time              `db:"start_date" json:"start_date"`
	EndDate         time.Time              `db:"end_date" json:"end_date"`
	TotalSessions   int                    `db:"total_sessions" json:"total_sessions"`
	CurrentSessions int                    `db:"current_sessions" json:"current_sessions"`
	CancelledAt     *time.Time             `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelReason    *string                `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt       time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time              `db:"updated_at" json:"updated_at"`
	Status          scheduling.ClassStatus `db:"-" json:"status"`
}

// Cancelled reports whether the class was explicitly cancelled.
func (c ClassDefinition) Cancelled() bool {
	return c.CancelledAt != nil
}

// Progress projects the fields status derivation needs.
func (c ClassDefinition) Progress() scheduling.Progress {
	return scheduling.Progress{
		StartDate:       c.StartDate,
		EndDate:         c.EndDate,
		CurrentSessions: c.CurrentSessions,
		TotalSessions:   c.TotalSessions,
		Cancelled:       c.Cancelled(),
	}
}

// Occurrences expands the class recurrence over its course range.
func (c ClassDefinition) Occurrences() []scheduling.Occurrence {
	return scheduling.Expand(c.StartDate, c.EndDate, c.Recurrence, c.TotalSessions)
}

// ScheduleChanged reports whether the fields driving expansion differ.
func (c ClassDefinition) ScheduleChanged(other ClassDefinition) bool {
	return !c.Recurrence.Equal(other.Recurrence) ||
		!scheduling.DateOf(c.StartDate).Equal(scheduling.DateOf(other.StartDate)) ||
		!scheduling.DateOf(c.EndDate).Equal(scheduling.DateOf(other.EndDate)) ||
		c.TotalSessions != other.TotalSessions
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	TrainerID string
	RoomID    string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// CreateClassRequest is the payload for defining a class.
type CreateClassRequest struct {
	Name          string             `json:"name" validate:"required,max=120"`
	Description   *string            `json:"description" validate:"omitempty,max=1000"`
	TrainerID     string             `json:"trainer_id" validate:"required"`
	RoomID        *string            `json:"room_id" validate:"omitempty"`
	Location      *string            `json:"location" validate:"omitempty,max=200"`
	Capacity      int                `json:"capacity" validate:"required,min=1"`
	Recurrence    scheduling.Pattern `json:"recurrence" validate:"required,min=1"`
	StartDate     string             `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate       string             `json:"end_date" validate:"required,datetime=2006-01-02"`
	TotalSessions int                `json:"total_sessions" validate:"required,min=1,max=1000"`
}

// UpdateClassScheduleRequest replaces the fields that drive expansion. Omitted fields keep their value.
type UpdateClassScheduleRequest struct {
	Recurrence    scheduling.Pattern `json:"recurrence" validate:"omitempty,min=1"`
	StartDate     *string            `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate       *string            `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	TotalSessions *int               `json:"total_sessions" validate:"omitempty,min=1,max=1000"`
	RoomID        *string            `json:"room_id"`
	Location      *string            `json:"location" validate:"omitempty,max=200"`
}

// CancelClassRequest records why a class stops.
type CancelClassRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// ClassScheduleResult is returned by schedule edits together with any reconciliation warnings.
type ClassScheduleResult struct {
	Class    *ClassDefinition `json:"class"`
	Warnings []Warning        `json:"-"`
}
