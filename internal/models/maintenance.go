package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// MaintenanceStatus enumerates the window lifecycle.
type MaintenanceStatus string

const (
	MaintenanceScheduled  MaintenanceStatus = "scheduled"
	MaintenanceInProgress MaintenanceStatus = "in_progress"
	MaintenanceCompleted  MaintenanceStatus = "completed"
	MaintenanceCancelled  MaintenanceStatus = "cancelled"
	MaintenancePostponed  MaintenanceStatus = "postponed"
)

// Occupying reports whether a window in this status blocks its room.
func (s MaintenanceStatus) Occupying() bool {
	return s == MaintenanceScheduled || s == MaintenanceInProgress
}

// MaintenanceTarget names what is being serviced.
type MaintenanceTarget string

const (
	MaintenanceTargetRoom      MaintenanceTarget = "room"
	MaintenanceTargetEquipment MaintenanceTarget = "equipment"
)

// MaintenancePriority ranks windows for operators.
type MaintenancePriority string

const (
	PriorityLow      MaintenancePriority = "low"
	PriorityMedium   MaintenancePriority = "medium"
	PriorityHigh     MaintenancePriority = "high"
	PriorityCritical MaintenancePriority = "critical"
)

// MaintenanceWindow reserves a room (directly or through its equipment) for servicing.
type MaintenanceWindow struct {
	ID               string              `db:"id" json:"id"`
	TargetType       MaintenanceTarget   `db:"target_type" json:"target_type"`
	RoomID           string              `db:"room_id" json:"room_id"`
	EquipmentID      *string             `db:"equipment_id" json:"equipment_id,omitempty"`
	Title            string              `db:"title" json:"title"`
	ScheduledStart   time.Time           `db:"scheduled_start" json:"scheduled_start"`
	DurationMinutes  int                 `db:"duration_minutes" json:"duration_minutes"`
	Status           MaintenanceStatus   `db:"status" json:"status"`
	Priority         MaintenancePriority `db:"priority" json:"priority"`
	ActualCost       *float64            `db:"actual_cost" json:"actual_cost,omitempty"`
	WorkPerformed    *string             `db:"work_performed" json:"work_performed,omitempty"`
	StatusNote       *string             `db:"status_note" json:"status_note,omitempty"`
	ConflictSnapshot types.JSONText      `db:"conflict_snapshot" json:"conflict_snapshot,omitempty"`
	CreatedBy        string              `db:"created_by" json:"created_by"`
	StartedAt        *time.Time          `db:"started_at" json:"started_at,omitempty"`
	CompletedAt      *time.Time          `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt        time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time           `db:"updated_at" json:"updated_at"`
}

// End is the exclusive end of the occupied range.
func (w MaintenanceWindow) End() time.Time {
	return w.ScheduledStart.Add(time.Duration(w.DurationMinutes) * time.Minute)
}

// MaintenanceFilter scopes listing queries.
type MaintenanceFilter struct {
	RoomID   string
	Status   MaintenanceStatus
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// CreateMaintenanceRequest proposes a window.
type CreateMaintenanceRequest struct {
	TargetType      string    `json:"target_type" validate:"required,oneof=room equipment"`
	RoomID          string    `json:"room_id" validate:"required_if=TargetType room"`
	EquipmentID     *string   `json:"equipment_id" validate:"required_if=TargetType equipment"`
	Title           string    `json:"title" validate:"required,max=200"`
	ScheduledStart  time.Time `json:"scheduled_start" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,min=1,max=10080"`
	Priority        string    `json:"priority" validate:"omitempty,oneof=low medium high critical"`
}

// CompleteMaintenanceRequest closes an in-progress window.
type CompleteMaintenanceRequest struct {
	ActualCost    *float64 `json:"actual_cost" validate:"omitempty,min=0"`
	WorkPerformed string   `json:"work_performed" validate:"required,max=2000"`
}

// MaintenanceNoteRequest carries a reason for cancel/postpone.
type MaintenanceNoteRequest struct {
	Note string `json:"note" validate:"omitempty,max=500"`
}

// MaintenanceResult carries the window and any warnings accepted under the warn policy.
type MaintenanceResult struct {
	Window   *MaintenanceWindow `json:"window"`
	Warnings []Warning          `json:"-"`
}
