package scheduling

import (
	"sort"
	"time"
)

// Interval is a half-open [Start, End) range within a day.
type Interval struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Overlaps reports whether the two half-open ranges intersect. Touching bounds do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start < other.End && i.End > other.Start
}

// Overlaps is the absolute-time counterpart of Interval.Overlaps.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// ConflictKind names what occupies a room.
type ConflictKind string

const (
	KindClass       ConflictKind = "class"
	KindMakeup      ConflictKind = "makeup"
	KindMaintenance ConflictKind = "maintenance"
)

// Occupant is something holding a room for an absolute time range.
type Occupant struct {
	Kind          ConflictKind `json:"kind"`
	SourceID      string       `json:"source_id"`
	ClassID       string       `json:"class_id,omitempty"`
	RoomID        string       `json:"room_id"`
	Label         string       `json:"label,omitempty"`
	SessionNumber int          `json:"session_number,omitempty"`
	Start         time.Time    `json:"start"`
	End           time.Time    `json:"end"`
}

// Candidate is a proposed room booking.
type Candidate struct {
	RoomID string
	Start  time.Time
	End    time.Time
}

// DetectConflicts returns the occupants of the candidate's room whose range
// intersects the candidate, ordered by start time.
func DetectConflicts(candidate Candidate, occupants []Occupant) []Occupant {
	var conflicts []Occupant
	for _, occ := range occupants {
		if occ.RoomID != candidate.RoomID {
			continue
		}
		if Overlaps(candidate.Start, candidate.End, occ.Start, occ.End) {
			conflicts = append(conflicts, occ)
		}
	}
	sort.SliceStable(conflicts, func(i, j int) bool {
		return conflicts[i].Start.Before(conflicts[j].Start)
	})
	return conflicts
}
