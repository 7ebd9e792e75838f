package availability

import "time"

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps uses half-open semantics: back-to-back intervals do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// FreeSlots returns start times on the local date of day, inside windows, where
// a booking of length duration fits without overlapping busy and does not start
// before now. Candidates are aligned to step from each window start.
func FreeSlots(windows []Window, day time.Time, loc *time.Location, duration, step time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}

	var slots []time.Time
	for _, w := range windows {
		windowStart := w.Start.On(day, loc)
		windowEnd := w.End.On(day, loc)
		if w.End == EndOfDay {
			windowEnd = Midnight.On(day, loc).AddDate(0, 0, 1)
		}

		for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
			if t.Before(now) {
				continue
			}
			if !overlapsAny(Interval{Start: t, End: t.Add(duration)}, busy) {
				slots = append(slots, t)
			}
		}
	}
	return slots
}

func overlapsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}
