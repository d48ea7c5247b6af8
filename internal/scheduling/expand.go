package scheduling

import "time"

// Bounds on a single course. Callers validate against them before expanding.
const (
	MaxSessions = 1000
	MaxSpanDays = 5 * 366
)

// Occurrence is one concrete dated session produced from a recurrence.
type Occurrence struct {
	SessionNumber int       `json:"session_number"`
	Date          time.Time `json:"date"`
	Start         TimeOfDay `json:"start_time"`
	End           TimeOfDay `json:"end_time"`
}

// Window anchors the occurrence to absolute instants in loc.
func (o Occurrence) Window(loc *time.Location) (time.Time, time.Time) {
	return o.Start.On(o.Date, loc), o.End.On(o.Date, loc)
}

// Expand walks every calendar day from start to end inclusive and emits one
// occurrence per slot on a matching weekday, numbered from 1 in chronological
// order. Expansion stops once limit occurrences have been produced. An empty
// pattern, a reversed range or a non-positive limit yields an empty slice.
func Expand(start, end time.Time, pattern Pattern, limit int) []Occurrence {
	first, last := DateOf(start), DateOf(end)
	if len(pattern) == 0 || limit <= 0 || first.After(last) {
		return []Occurrence{}
	}

	index := pattern.byWeekday()
	capacity := limit
	if capacity > 256 {
		capacity = 256
	}
	out := make([]Occurrence, 0, capacity)
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		for _, slot := range index[Day(day.Weekday())] {
			out = append(out, Occurrence{
				SessionNumber: len(out) + 1,
				Date:          day,
				Start:         slot.Start,
				End:           slot.End,
			})
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}

// OccurrenceOn returns the occurrence falling on date, if the expansion has one.
// When several slots share the date the earliest is returned.
func OccurrenceOn(occurrences []Occurrence, date time.Time) (Occurrence, bool) {
	target := DateOf(date)
	for _, occ := range occurrences {
		if occ.Date.Equal(target) {
			return occ, true
		}
	}
	return Occurrence{}, false
}

// Session returns the occurrence numbered n.
func Session(occurrences []Occurrence, n int) (Occurrence, bool) {
	if n < 1 || n > len(occurrences) {
		return Occurrence{}, false
	}
	occ := occurrences[n-1]
	return occ, occ.SessionNumber == n
}
