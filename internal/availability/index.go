package availability

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnknownDoctor      = errors.New("unknown doctor")
	ErrCrossesDayBoundary = errors.New("interval crosses the day boundary")
	ErrInvalidDuration    = errors.New("duration must be positive")
	ErrInvalidWindow      = errors.New("invalid availability window")
	ErrOverlappingWindows = errors.New("availability windows overlap")
)

// Window is a recurring time range on one weekday, in clinic-local wall clock.
// It covers [Start, End).
type Window struct {
	Day   time.Weekday `json:"day_of_week"`
	Start Clock        `json:"start"`
	End   Clock        `json:"end"`
}

func (w Window) String() string {
	return fmt.Sprintf("%s %s-%s", w.Day, w.Start, w.End)
}

func (w Window) validate() error {
	if w.Day < time.Sunday || w.Day > time.Saturday {
		return fmt.Errorf("%w: weekday %d", ErrInvalidWindow, w.Day)
	}
	if !w.Start.Valid() || !w.End.Valid() || w.Start >= w.End {
		return fmt.Errorf("%w: %s", ErrInvalidWindow, w)
	}
	return nil
}

type schedule struct {
	weekly    [7][]Window
	overrides map[civilDate][]Window
}

type civilDate struct {
	year  int
	month time.Month
	day   int
}

func dateOf(t time.Time) civilDate {
	y, m, d := t.Date()
	return civilDate{y, m, d}
}

// Index answers availability questions for registered doctors. Doctors are
// registered by SetWeekly (possibly with no windows at all).
type Index struct {
	loc *time.Location

	mu      sync.RWMutex
	doctors map[uuid.UUID]*schedule
}

func NewIndex(loc *time.Location) *Index {
	if loc == nil {
		loc = time.UTC
	}
	return &Index{
		loc:     loc,
		doctors: make(map[uuid.UUID]*schedule),
	}
}

// Location is the clinic-local zone windows are interpreted in.
func (ix *Index) Location() *time.Location {
	return ix.loc
}

// SetWeekly replaces the weekly windows of a doctor, registering it if needed.
func (ix *Index) SetWeekly(doctorID uuid.UUID, windows []Window) error {
	weekly, err := buildWeekly(windows)
	if err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	s, ok := ix.doctors[doctorID]
	if !ok {
		s = &schedule{overrides: make(map[civilDate][]Window)}
		ix.doctors[doctorID] = s
	}
	s.weekly = weekly
	return nil
}

// SetDateOverride replaces the windows of one calendar date. An empty list
// closes the day. Window.Day is ignored and set to the date's weekday.
func (ix *Index) SetDateOverride(doctorID uuid.UUID, date time.Time, windows []Window) error {
	local := date.In(ix.loc)
	day := make([]Window, len(windows))
	for i, w := range windows {
		w.Day = local.Weekday()
		day[i] = w
	}
	sorted, err := sortAndCheck(day)
	if err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	s, ok := ix.doctors[doctorID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDoctor, doctorID)
	}
	s.overrides[dateOf(local)] = sorted
	return nil
}

func (ix *Index) ClearDateOverride(doctorID uuid.UUID, date time.Time) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if s, ok := ix.doctors[doctorID]; ok {
		delete(s.overrides, dateOf(date.In(ix.loc)))
	}
}

func (ix *Index) RemoveDoctor(doctorID uuid.UUID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.doctors, doctorID)
}

func (ix *Index) Has(doctorID uuid.UUID) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.doctors[doctorID]
	return ok
}

// Doctors returns the registered doctor ids in no particular order.
func (ix *Index) Doctors() []uuid.UUID {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(ix.doctors))
	for id := range ix.doctors {
		ids = append(ids, id)
	}
	return ids
}

// IsWithinAvailability reports whether [start, start+duration) lies inside a
// single window of the doctor's effective windows for the local date of start.
// An end at exactly the next midnight counts as 24:00 of the same day.
func (ix *Index) IsWithinAvailability(doctorID uuid.UUID, start time.Time, durationMinutes int) (bool, error) {
	if durationMinutes <= 0 {
		return false, ErrInvalidDuration
	}
	if durationMinutes > int(EndOfDay) {
		return false, fmt.Errorf("%w: %d minutes is longer than a day", ErrCrossesDayBoundary, durationMinutes)
	}

	startLocal := start.In(ix.loc)
	endLocal := startLocal.Add(time.Duration(durationMinutes) * time.Minute)

	ix.mu.RLock()
	s, ok := ix.doctors[doctorID]
	var windows []Window
	if ok {
		windows = s.effective(startLocal)
	}
	ix.mu.RUnlock()

	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownDoctor, doctorID)
	}

	startSec := wallSeconds(startLocal)
	endSec, err := endOfInterval(startLocal, endLocal)
	if err != nil {
		return false, err
	}

	for _, w := range windows {
		if int(w.Start)*60 <= startSec && endSec <= int(w.End)*60 {
			return true, nil
		}
	}
	return false, nil
}

func endOfInterval(startLocal, endLocal time.Time) (int, error) {
	endSec := wallSeconds(endLocal)
	if endLocal.Nanosecond() > 0 {
		endSec++
	}
	if dateOf(endLocal) == dateOf(startLocal) {
		return endSec, nil
	}
	next := startLocal.AddDate(0, 0, 1)
	if dateOf(endLocal) == dateOf(next) && endSec == 0 {
		return int(EndOfDay) * 60, nil
	}
	return 0, fmt.Errorf("%w: %s to %s", ErrCrossesDayBoundary,
		startLocal.Format(time.RFC3339), endLocal.Format(time.RFC3339))
}

// GetWindows returns the weekly windows of a doctor for one weekday, ordered by start.
func (ix *Index) GetWindows(doctorID uuid.UUID, day time.Weekday) ([]Window, error) {
	if day < time.Sunday || day > time.Saturday {
		return nil, fmt.Errorf("%w: weekday %d", ErrInvalidWindow, day)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	s, ok := ix.doctors[doctorID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDoctor, doctorID)
	}
	return slices.Clone(s.weekly[day]), nil
}

// WindowsOn returns the windows in effect on the local date of date: the date
// override when one is set, the weekly windows otherwise.
func (ix *Index) WindowsOn(doctorID uuid.UUID, date time.Time) ([]Window, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	s, ok := ix.doctors[doctorID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDoctor, doctorID)
	}
	return slices.Clone(s.effective(date.In(ix.loc))), nil
}

func (s *schedule) effective(local time.Time) []Window {
	if ov, ok := s.overrides[dateOf(local)]; ok {
		return ov
	}
	return s.weekly[local.Weekday()]
}

// Source provides availability data owned by doctor management.
type Source interface {
	LoadWeekly(ctx context.Context) (map[uuid.UUID][]Window, error)
	LoadOverrides(ctx context.Context) ([]DateOverride, error)
}

// DateOverride replaces the windows of a doctor on one date. Only the calendar
// fields of Date are used. No windows closes the day.
type DateOverride struct {
	DoctorID uuid.UUID
	Date     time.Time
	Windows  []Window
}

// Reload rebuilds the index from src and swaps it in atomically. On error the
// current contents are kept.
func (ix *Index) Reload(ctx context.Context, src Source) error {
	weekly, err := src.LoadWeekly(ctx)
	if err != nil {
		return fmt.Errorf("load weekly availability: %w", err)
	}
	overrides, err := src.LoadOverrides(ctx)
	if err != nil {
		return fmt.Errorf("load availability overrides: %w", err)
	}

	next := NewIndex(ix.loc)
	for doctorID, windows := range weekly {
		if err := next.SetWeekly(doctorID, windows); err != nil {
			return fmt.Errorf("doctor %s: %w", doctorID, err)
		}
	}
	for _, ov := range overrides {
		if !next.Has(ov.DoctorID) {
			// a date override alone registers the doctor with an empty week
			if err := next.SetWeekly(ov.DoctorID, nil); err != nil {
				return err
			}
		}
		date := time.Date(ov.Date.Year(), ov.Date.Month(), ov.Date.Day(), 12, 0, 0, 0, ix.loc)
		if err := next.SetDateOverride(ov.DoctorID, date, ov.Windows); err != nil {
			return fmt.Errorf("doctor %s override %s: %w", ov.DoctorID, ov.Date.Format(time.DateOnly), err)
		}
	}

	ix.mu.Lock()
	ix.doctors = next.doctors
	ix.mu.Unlock()
	return nil
}

func buildWeekly(windows []Window) ([7][]Window, error) {
	var weekly [7][]Window
	for _, w := range windows {
		if err := w.validate(); err != nil {
			return weekly, err
		}
		weekly[w.Day] = append(weekly[w.Day], w)
	}
	for day := range weekly {
		sorted, err := sortAndCheck(weekly[day])
		if err != nil {
			return weekly, err
		}
		weekly[day] = sorted
	}
	return weekly, nil
}

// sortAndCheck orders windows of a single day and rejects overlaps. Touching
// windows (09:00-12:00, 12:00-17:00) are fine.
func sortAndCheck(windows []Window) ([]Window, error) {
	out := slices.Clone(windows)
	for _, w := range out {
		if err := w.validate(); err != nil {
			return nil, err
		}
	}
	slices.SortFunc(out, func(a, b Window) int {
		return int(a.Start) - int(b.Start)
	})
	for i := 1; i < len(out); i++ {
		if out[i].Start < out[i-1].End {
			return nil, fmt.Errorf("%w: %s and %s", ErrOverlappingWindows, out[i-1], out[i])
		}
	}
	return out, nil
}
