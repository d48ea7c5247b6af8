package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusCancelled EnrollmentStatus = "cancelled"
)

// Enrollment captures a member's registration to a class.
type Enrollment struct {
	ID               string           `db:"id" json:"id"`
	MemberID         string           `db:"member_id" json:"member_id"`
	ClassID          string           `db:"class_id" json:"class_id"`
	PaymentConfirmed bool             `db:"payment_confirmed" json:"payment_confirmed"`
	Status           EnrollmentStatus `db:"status" json:"status"`
	JoinedAt         time.Time        `db:"joined_at" json:"joined_at"`
	LeftAt           *time.Time       `db:"left_at" json:"left_at,omitempty"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// Counted reports whether the enrollment occupies a seat and takes part in attendance.
func (e Enrollment) Counted() bool {
	return e.Status == EnrollmentStatusActive && e.PaymentConfirmed
}

// RosterMember is an active, paid enrollee as returned by the roster contract.
type RosterMember struct {
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	MemberID     string    `db:"member_id" json:"member_id"`
	JoinedAt     time.Time `db:"joined_at" json:"joined_at"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	MemberID string
	ClassID  string
	Status   EnrollmentStatus
	Page     int
	PageSize int
}

// JoinClassRequest enrolls a member; admins may enroll on behalf of a member.
type JoinClassRequest struct {
	MemberID string `json:"member_id"`
}
