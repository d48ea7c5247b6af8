package scheduling

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Slot is one weekly recurring block.
type Slot struct {
	Day   Day       `json:"day"`
	Start TimeOfDay `json:"start_time"`
	End   TimeOfDay `json:"end_time"`
}

// Validate checks the slot bounds.
func (s Slot) Validate() error {
	if !s.Day.Valid() {
		return fmt.Errorf("invalid day %d", int(s.Day))
	}
	if !s.Start.Valid() || !s.End.Valid() {
		return fmt.Errorf("%s: time out of range", s.Day)
	}
	if s.Start >= s.End {
		return fmt.Errorf("%s: start %s must be before end %s", s.Day, s.Start, s.End)
	}
	return nil
}

// Interval returns the slot's time range within its day.
func (s Slot) Interval() Interval {
	return Interval{Start: s.Start, End: s.End}
}

// Pattern is a weekly recurrence made of slots.
type Pattern []Slot

// ErrEmptyPattern is returned when a recurrence has no slots.
var ErrEmptyPattern = errors.New("recurrence pattern must contain at least one slot")

// Validate requires at least one valid slot and no overlapping slots on the same day.
func (p Pattern) Validate() error {
	if len(p) == 0 {
		return ErrEmptyPattern
	}
	for _, slot := range p {
		if err := slot.Validate(); err != nil {
			return err
		}
	}
	sorted := p.Normalize()
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev.Day == cur.Day && prev.Interval().Overlaps(cur.Interval()) {
			return fmt.Errorf("%s: slots %s-%s and %s-%s overlap", cur.Day, prev.Start, prev.End, cur.Start, cur.End)
		}
	}
	return nil
}

// Normalize returns a copy ordered Monday first, then by start time.
func (p Pattern) Normalize() Pattern {
	out := make(Pattern, len(p))
	copy(out, p)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day.ISO() < out[j].Day.ISO()
		}
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].End < out[j].End
	})
	return out
}

// Equal compares two patterns ignoring slot order.
func (p Pattern) Equal(other Pattern) bool {
	if len(p) != len(other) {
		return false
	}
	a, b := p.Normalize(), other.Normalize()
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (p Pattern) byWeekday() map[Day][]Slot {
	index := make(map[Day][]Slot, 7)
	for _, slot := range p.Normalize() {
		index[slot.Day] = append(index[slot.Day], slot)
	}
	return index
}

// Value stores the pattern as JSON text.
func (p Pattern) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan reads a JSON pattern column.
func (p *Pattern) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*p = Pattern{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported recurrence column type %T", src)
	}
	var out Pattern
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("decode recurrence: %w", err)
	}
	*p = out
	return nil
}
