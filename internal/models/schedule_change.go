package models

import (
	"time"

	"github.com/noah-isme/fitclass-api/internal/scheduling"
)

// ScheduleChangeStatus enumerates the request lifecycle.
type ScheduleChangeStatus string

const (
	ScheduleChangePending  ScheduleChangeStatus = "pending"
	ScheduleChangeApproved ScheduleChangeStatus = "approved"
	ScheduleChangeRejected ScheduleChangeStatus = "rejected"
)

// Urgency levels accepted on a change request.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
	UrgencyUrgent Urgency = "urgent"
)

// Valid reports whether u is a supported urgency.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyNormal, UrgencyHigh, UrgencyUrgent:
		return true
	default:
		return false
	}
}

// ScheduleChangeRequest is a trainer's proposal to retire one occurrence of a class.
type ScheduleChangeRequest struct {
	ID             string               `db:"id" json:"id"`
	TrainerID      string               `db:"trainer_id" json:"trainer_id"`
	ClassID        string               `db:"class_id" json:"class_id"`
	OriginalDate   time.Time            `db:"original_date" json:"original_date"`
	RequestedDate  time.Time            `db:"requested_date" json:"requested_date"`
	Reason         string               `db:"reason" json:"reason"`
	Urgency        Urgency              `db:"urgency" json:"urgency"`
	Status         ScheduleChangeStatus `db:"status" json:"status"`
	AdminResponse  *string              `db:"admin_response" json:"admin_response,omitempty"`
	ReviewedBy     *string              `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time           `db:"reviewed_at" json:"reviewed_at,omitempty"`
	MakeupDate     *time.Time           `db:"makeup_date" json:"makeup_date,omitempty"`
	MakeupStart    *string              `db:"makeup_start" json:"makeup_start,omitempty"`
	MakeupEnd      *string              `db:"makeup_end" json:"makeup_end,omitempty"`
	MakeupRoomID   *string              `db:"makeup_room_id" json:"makeup_room_id,omitempty"`
	MakeupLocation *string              `db:"makeup_location" json:"makeup_location,omitempty"`
	CreatedAt      time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time            `db:"updated_at" json:"updated_at"`
}

// HasMakeup reports whether a makeup occurrence is attached.
func (r ScheduleChangeRequest) HasMakeup() bool {
	return r.MakeupDate != nil
}

// Makeup decodes the attached makeup occurrence.
func (r ScheduleChangeRequest) Makeup() (*MakeupOccurrence, bool) {
	if r.MakeupDate == nil || r.MakeupStart == nil || r.MakeupEnd == nil {
		return nil, false
	}
	start, err := scheduling.ParseTimeOfDay(*r.MakeupStart)
	if err != nil {
		return nil, false
	}
	end, err := scheduling.ParseTimeOfDay(*r.MakeupEnd)
	if err != nil {
		return nil, false
	}
	return &MakeupOccurrence{
		Date:     *r.MakeupDate,
		Start:    start,
		End:      end,
		RoomID:   r.MakeupRoomID,
		Location: r.MakeupLocation,
	}, true
}

// MakeupOccurrence is the replacement slot attached to an approved request.
type MakeupOccurrence struct {
	Date     time.Time            `json:"date"`
	Start    scheduling.TimeOfDay `json:"start_time"`
	End      scheduling.TimeOfDay `json:"end_time"`
	RoomID   *string              `json:"room_id,omitempty"`
	Location *string              `json:"location,omitempty"`
}

// ScheduleChangeFilter defines listing filters.
type ScheduleChangeFilter struct {
	Status    ScheduleChangeStatus
	ClassID   string
	TrainerID string
	Page      int
	PageSize  int
}

// EffectiveChangeFilter selects approved changes with makeups for calendar rendering.
type EffectiveChangeFilter struct {
	ClassID  string
	MemberID string
	From     *time.Time
	To       *time.Time
}

// CreateScheduleChangeRequest is submitted by a trainer.
type CreateScheduleChangeRequest struct {
	ClassID       string `json:"class_id" validate:"required"`
	OriginalDate  string `json:"original_date" validate:"required,datetime=2006-01-02"`
	RequestedDate string `json:"requested_date" validate:"required,datetime=2006-01-02"`
	Reason        string `json:"reason" validate:"required,min=10,max=500"`
	Urgency       string `json:"urgency" validate:"required,urgency"`
}

// MakeupPayload describes a makeup slot in API requests.
type MakeupPayload struct {
	Date      string  `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string  `json:"start_time" validate:"required,clock"`
	EndTime   string  `json:"end_time" validate:"required,clock"`
	RoomID    *string `json:"room_id"`
	Location  *string `json:"location" validate:"omitempty,max=200"`
}

// ApproveScheduleChangeRequest approves a pending request and optionally attaches a makeup.
type ApproveScheduleChangeRequest struct {
	AdminResponse *string        `json:"admin_response" validate:"omitempty,max=1000"`
	Makeup        *MakeupPayload `json:"makeup" validate:"omitempty"`
}

// RejectScheduleChangeRequest rejects a pending request.
type RejectScheduleChangeRequest struct {
	AdminResponse *string `json:"admin_response" validate:"omitempty,max=1000"`
}

// ApprovalOutcome reports the approval and, when requested, whether the makeup attached.
// A failed makeup leaves the approval in place.
type ApprovalOutcome struct {
	Request        *ScheduleChangeRequest `json:"request"`
	MakeupAttached bool                   `json:"makeup_attached"`
	MakeupError    error                  `json:"-"`
}
