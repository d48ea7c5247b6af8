package scheduling

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar date format used on the wire and in lock keys.
const DateLayout = "2006-01-02"

// Day is a day of week serialised as its upper-case English name.
type Day time.Weekday

var dayNames = [...]string{"SUNDAY", "MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY", "SATURDAY"}

// ParseDay accepts full names, three-letter abbreviations and ISO numbers (1=Monday … 7=Sunday).
func ParseDay(raw string) (Day, error) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	if value == "" {
		return 0, fmt.Errorf("day is required")
	}
	if n, err := strconv.Atoi(value); err == nil {
		if n < 1 || n > 7 {
			return 0, fmt.Errorf("invalid ISO day %d", n)
		}
		return Day(n % 7), nil
	}
	for i, name := range dayNames {
		if value == name || value == name[:3] {
			return Day(i), nil
		}
	}
	return 0, fmt.Errorf("invalid day %q", raw)
}

// Weekday converts to time.Weekday.
func (d Day) Weekday() time.Weekday {
	return time.Weekday(d)
}

// Valid reports whether d is within Sunday..Saturday.
func (d Day) Valid() bool {
	return d >= 0 && int(d) < len(dayNames)
}

// ISO returns the ISO-8601 day number, Monday=1.
func (d Day) ISO() int {
	if d == 0 {
		return 7
	}
	return int(d)
}

func (d Day) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Day(%d)", int(d))
	}
	return dayNames[d]
}

// MarshalJSON renders the day name.
func (d Day) MarshalJSON() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid day %d", int(d))
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts either a name or an ISO number.
func (d *Day) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var parsed Day
	var err error
	switch v := raw.(type) {
	case string:
		parsed, err = ParseDay(v)
	case float64:
		parsed, err = ParseDay(strconv.Itoa(int(v)))
	default:
		err = fmt.Errorf("invalid day %s", string(data))
	}
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TimeOfDay counts minutes since midnight. 24:00 is allowed as an end bound.
type TimeOfDay int

// MinutesPerDay bounds TimeOfDay values.
const MinutesPerDay = 24 * 60

// ParseTimeOfDay parses "HH:MM" (seconds suffix tolerated, as returned by Postgres TIME columns).
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	value := strings.TrimSpace(raw)
	parts := strings.Split(value, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q", raw)
	}
	if hour < 0 || hour > 24 || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("time %q out of range", raw)
	}
	return TimeOfDay(hour*60 + minute), nil
}

// MustTime is ParseTimeOfDay for literals known to be valid.
func MustTime(raw string) TimeOfDay {
	t, err := ParseTimeOfDay(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// Valid reports whether t lies within a day.
func (t TimeOfDay) Valid() bool {
	return t >= 0 && t <= MinutesPerDay
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// On anchors t to a calendar date in loc.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).Add(time.Duration(t) * time.Minute)
}

// MarshalJSON renders "HH:MM".
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON parses "HH:MM".
func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// DateOf truncates t to its calendar date (midnight UTC), ignoring t's location offset.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(raw string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
	}
	return t, nil
}

// Today returns the calendar date of now as observed in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(now.In(loc))
}

// DateSet is a set of calendar dates.
type DateSet map[string]struct{}

// NewDateSet builds a set from dates.
func NewDateSet(dates ...time.Time) DateSet {
	set := make(DateSet, len(dates))
	for _, d := range dates {
		set.Add(d)
	}
	return set
}

// Add inserts d.
func (s DateSet) Add(d time.Time) {
	s[d.Format(DateLayout)] = struct{}{}
}

// Has reports whether d is present.
func (s DateSet) Has(d time.Time) bool {
	_, ok := s[d.Format(DateLayout)]
	return ok
}
