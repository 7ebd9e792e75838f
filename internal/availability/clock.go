package availability

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a wall-clock time of day in minutes after midnight. EndOfDay (24:00)
// is valid as the end of a window.
type Clock int

const (
	Midnight Clock = 0
	EndOfDay Clock = 24 * 60
)

var errBadClock = errors.New("clock must be HH:MM between 00:00 and 24:00")

func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock parses "HH:MM" (also "H:MM" and "24:00").
func ParseClock(s string) (Clock, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("%q: %w", s, errBadClock)
	}
	hour, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, errBadClock)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || len(m) != 2 {
		return 0, fmt.Errorf("%q: %w", s, errBadClock)
	}
	c := NewClock(hour, minute)
	if hour < 0 || minute < 0 || minute > 59 || !c.Valid() {
		return 0, fmt.Errorf("%q: %w", s, errBadClock)
	}
	return c, nil
}

func (c Clock) Valid() bool {
	return c >= Midnight && c <= EndOfDay
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// On returns the instant of c on the calendar date of day, in loc.
func (c Clock) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, loc)
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(text []byte) error {
	parsed, err := ParseClock(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday, "dimanche": time.Sunday,
	"monday": time.Monday, "mon": time.Monday, "lundi": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "mardi": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday, "mercredi": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "jeudi": time.Thursday,
	"friday": time.Friday, "fri": time.Friday, "vendredi": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday, "samedi": time.Saturday,
}

// ParseWeekday accepts English day names and abbreviations, French day names
// (as stored in existing doctor profiles) and the digits 0 (Sunday) to 6.
func ParseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if d, ok := weekdayNames[key]; ok {
		return d, nil
	}
	if n, err := strconv.Atoi(key); err == nil && n >= 0 && n <= 6 {
		return time.Weekday(n), nil
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// wallSeconds is the local wall-clock offset of t from its midnight.
func wallSeconds(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}
