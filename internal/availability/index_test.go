package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2026-10-19 is a Monday.
func monday(hour, minute int) time.Time {
	return time.Date(2026, 10, 19, hour, minute, 0, 0, time.UTC)
}

func newMondayIndex(t *testing.T) (*Index, uuid.UUID) {
	t.Helper()
	ix := NewIndex(time.UTC)
	doctor := uuid.New()
	require.NoError(t, ix.SetWeekly(doctor, []Window{
		{Day: time.Monday, Start: NewClock(14, 0), End: NewClock(17, 0)},
		{Day: time.Monday, Start: NewClock(9, 0), End: NewClock(12, 0)},
	}))
	return ix, doctor
}

func TestIsWithinAvailability(t *testing.T) {
	ix, doctor := newMondayIndex(t)

	tests := []struct {
		name     string
		start    time.Time
		duration int
		want     bool
	}{
		{"inside morning window", monday(10, 0), 30, true},
		{"starts at window start", monday(9, 0), 60, true},
		{"ends at window end", monday(16, 30), 30, true},
		{"spills past window end", monday(16, 45), 30, false},
		{"spans the lunch gap", monday(11, 30), 180, false},
		{"before opening", monday(8, 30), 30, false},
		{"after closing", monday(17, 30), 15, false},
		{"day without windows", monday(10, 0).AddDate(0, 0, 1), 30, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ix.IsWithinAvailability(doctor, tt.start, tt.duration)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsWithinAvailability_LongerThanADay(t *testing.T) {
	ix, doctor := newMondayIndex(t)

	for _, minutes := range []int{int(EndOfDay) + 1, 1<<53 - 30, 1<<53 + 30} {
		ok, err := ix.IsWithinAvailability(doctor, monday(12, 0), minutes)
		assert.ErrorIs(t, err, ErrCrossesDayBoundary, "duration %d", minutes)
		assert.False(t, ok)
	}
}

func TestIsWithinAvailability_UnknownDoctor(t *testing.T) {
	ix, _ := newMondayIndex(t)

	_, err := ix.IsWithinAvailability(uuid.New(), monday(10, 0), 30)
	assert.ErrorIs(t, err, ErrUnknownDoctor)
}

func TestIsWithinAvailability_CrossesMidnight(t *testing.T) {
	ix := NewIndex(time.UTC)
	doctor := uuid.New()
	require.NoError(t, ix.SetWeekly(doctor, []Window{
		{Day: time.Monday, Start: NewClock(18, 0), End: EndOfDay},
		{Day: time.Tuesday, Start: Midnight, End: NewClock(6, 0)},
	}))

	_, err := ix.IsWithinAvailability(doctor, monday(23, 30), 90)
	assert.ErrorIs(t, err, ErrCrossesDayBoundary)

	// ending exactly at midnight stays on the same day
	ok, err := ix.IsWithinAvailability(doctor, monday(23, 30), 30)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsWithinAvailability_ClinicTimezone(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	ix := NewIndex(paris)
	doctor := uuid.New()
	require.NoError(t, ix.SetWeekly(doctor, []Window{
		{Day: time.Monday, Start: NewClock(9, 0), End: NewClock(17, 0)},
	}))

	// 08:00 UTC is 10:00 in Paris on 2026-10-19 (CEST)
	ok, err := ix.IsWithinAvailability(doctor, monday(8, 0), 30)
	require.NoError(t, err)
	assert.True(t, ok)

	// 16:00 UTC is 18:00 local
	ok, err = ix.IsWithinAvailability(doctor, monday(16, 0), 30)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsWithinAvailability_InvalidDuration(t *testing.T) {
	ix, doctor := newMondayIndex(t)
	_, err := ix.IsWithinAvailability(doctor, monday(10, 0), 0)
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestSetWeekly_RejectsOverlapsAndBadWindows(t *testing.T) {
	ix := NewIndex(time.UTC)
	doctor := uuid.New()

	err := ix.SetWeekly(doctor, []Window{
		{Day: time.Monday, Start: NewClock(9, 0), End: NewClock(12, 0)},
		{Day: time.Monday, Start: NewClock(11, 0), End: NewClock(13, 0)},
	})
	assert.ErrorIs(t, err, ErrOverlappingWindows)

	err = ix.SetWeekly(doctor, []Window{{Day: time.Monday, Start: NewClock(12, 0), End: NewClock(9, 0)}})
	assert.ErrorIs(t, err, ErrInvalidWindow)

	// touching windows and the same hours on different days are fine
	err = ix.SetWeekly(doctor, []Window{
		{Day: time.Monday, Start: NewClock(9, 0), End: NewClock(12, 0)},
		{Day: time.Monday, Start: NewClock(12, 0), End: NewClock(13, 0)},
		{Day: time.Tuesday, Start: NewClock(9, 0), End: NewClock(12, 0)},
	})
	assert.NoError(t, err)
}

func TestGetWindows_OrderedCopy(t *testing.T) {
	ix, doctor := newMondayIndex(t)

	windows, err := ix.GetWindows(doctor, time.Monday)
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.Equal(t, NewClock(9, 0), windows[0].Start)
	assert.Equal(t, NewClock(14, 0), windows[1].Start)

	windows[0].Start = Midnight
	again, err := ix.GetWindows(doctor, time.Monday)
	require.NoError(t, err)
	assert.Equal(t, NewClock(9, 0), again[0].Start)

	empty, err := ix.GetWindows(doctor, time.Sunday)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ix.GetWindows(uuid.New(), time.Monday)
	assert.ErrorIs(t, err, ErrUnknownDoctor)
}

func TestDateOverride(t *testing.T) {
	ix, doctor := newMondayIndex(t)
	holiday := monday(0, 0)

	require.NoError(t, ix.SetDateOverride(doctor, holiday, nil))
	ok, err := ix.IsWithinAvailability(doctor, monday(10, 0), 30)
	require.NoError(t, err)
	assert.False(t, ok, "closed date")

	// the following Monday keeps its weekly windows
	ok, err = ix.IsWithinAvailability(doctor, monday(10, 0).AddDate(0, 0, 7), 30)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, ix.SetDateOverride(doctor, holiday, []Window{{Start: NewClock(18, 0), End: NewClock(20, 0)}}))
	ok, err = ix.IsWithinAvailability(doctor, monday(18, 30), 30)
	require.NoError(t, err)
	assert.True(t, ok, "evening session replaces the weekly hours")

	windows, err := ix.WindowsOn(doctor, holiday)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, time.Monday, windows[0].Day)

	ix.ClearDateOverride(doctor, holiday)
	ok, err = ix.IsWithinAvailability(doctor, monday(10, 0), 30)
	require.NoError(t, err)
	assert.True(t, ok)

	err = ix.SetDateOverride(uuid.New(), holiday, nil)
	assert.ErrorIs(t, err, ErrUnknownDoctor)
}

type fakeSource struct {
	weekly    map[uuid.UUID][]Window
	overrides []DateOverride
	err       error
}

func (f fakeSource) LoadWeekly(context.Context) (map[uuid.UUID][]Window, error) {
	return f.weekly, f.err
}

func (f fakeSource) LoadOverrides(context.Context) ([]DateOverride, error) {
	return f.overrides, nil
}

func TestReload(t *testing.T) {
	ix, oldDoctor := newMondayIndex(t)
	doctor := uuid.New()
	closedOnly := uuid.New()

	src := fakeSource{
		weekly: map[uuid.UUID][]Window{
			doctor: {{Day: time.Monday, Start: NewClock(8, 0), End: NewClock(10, 0)}},
		},
		overrides: []DateOverride{
			{DoctorID: closedOnly, Date: time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)},
		},
	}
	require.NoError(t, ix.Reload(context.Background(), src))

	assert.False(t, ix.Has(oldDoctor))
	assert.True(t, ix.Has(doctor))
	assert.True(t, ix.Has(closedOnly))

	ok, err := ix.IsWithinAvailability(doctor, monday(8, 30), 30)
	require.NoError(t, err)
	assert.True(t, ok)

	failing := fakeSource{err: errors.New("db down")}
	require.Error(t, ix.Reload(context.Background(), failing))
	assert.True(t, ix.Has(doctor), "failed reload keeps the old contents")
}

func TestParseClockAndWeekday(t *testing.T) {
	c, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, NewClock(9, 30), c)
	assert.Equal(t, "09:30", c.String())

	c, err = ParseClock("24:00")
	require.NoError(t, err)
	assert.Equal(t, EndOfDay, c)

	for _, bad := range []string{"", "9", "24:30", "10:60", "ab:cd", "10:5"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}

	for in, want := range map[string]time.Weekday{
		"Lundi": time.Monday, "mercredi": time.Wednesday, "Sat": time.Saturday, "0": time.Sunday, " friday ": time.Friday,
	} {
		got, err := ParseWeekday(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err = ParseWeekday("someday")
	assert.Error(t, err)
}
