package scheduling

import "time"

// ClassStatus is derived from dates and progress, never stored.
type ClassStatus string

const (
	StatusUpcoming  ClassStatus = "upcoming"
	StatusOngoing   ClassStatus = "ongoing"
	StatusCompleted ClassStatus = "completed"
	StatusCancelled ClassStatus = "cancelled"
)

// Progress carries the inputs needed to derive a class status.
type Progress struct {
	StartDate       time.Time
	EndDate         time.Time
	CurrentSessions int
	TotalSessions   int
	Cancelled       bool
}

// DeriveStatus evaluates, in order: cancellation, all sessions held, before
// the start date, after the end date, otherwise ongoing. Dates compare as
// calendar days observed in loc.
func DeriveStatus(now time.Time, loc *time.Location, p Progress) ClassStatus {
	if p.Cancelled {
		return StatusCancelled
	}
	if p.TotalSessions > 0 && p.CurrentSessions >= p.TotalSessions {
		return StatusCompleted
	}
	today := Today(now, loc)
	if today.Before(DateOf(p.StartDate)) {
		return StatusUpcoming
	}
	if today.After(DateOf(p.EndDate)) {
		return StatusCompleted
	}
	return StatusOngoing
}
