package models

import "time"

// NotificationCategory tags a message for the delivery service.
type NotificationCategory string

const (
	NotifyScheduleChangeCreated  NotificationCategory = "schedule_change.created"
	NotifyScheduleChangeApproved NotificationCategory = "schedule_change.approved"
	NotifyScheduleChangeRejected NotificationCategory = "schedule_change.rejected"
	NotifyMakeupScheduled        NotificationCategory = "schedule_change.makeup"
	NotifyMaintenanceScheduled   NotificationCategory = "maintenance.scheduled"
	NotifyClassCancelled         NotificationCategory = "class.cancelled"
)

// Notification is handed to the external delivery service.
type Notification struct {
	ID         string               `json:"id"`
	Recipients []string             `json:"recipients,omitempty"`
	Audience   string               `json:"audience,omitempty"`
	Category   NotificationCategory `json:"category"`
	Title      string               `json:"title"`
	Message    string               `json:"message"`
	Data       map[string]string    `json:"data,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}
