package availability

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "availability.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"doctors": [{"id": "6f1c2d7e-0b3a-4c55-9d7e-2a1b3c4d5e6f", "windows": [
			{"day": "Lundi", "start": "09:00", "end": "12:00"},
			{"day": "tuesday", "start": "14:00", "end": "24:00"}
		]}],
		"overrides": [{"doctor_id": "6f1c2d7e-0b3a-4c55-9d7e-2a1b3c4d5e6f", "date": "2026-10-19", "windows": []}]
	}`), 0o600))

	ix := NewIndex(time.UTC)
	require.NoError(t, ix.Reload(context.Background(), NewFileSource(path)))

	doctors := ix.Doctors()
	require.Len(t, doctors, 1)

	tuesday, err := ix.GetWindows(doctors[0], time.Tuesday)
	require.NoError(t, err)
	require.Len(t, tuesday, 1)
	assert.Equal(t, EndOfDay, tuesday[0].End)

	// the 19th is closed by the override
	ok, err := ix.IsWithinAvailability(doctors[0], monday(10, 0), 30)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ix.IsWithinAvailability(doctors[0], monday(10, 0).AddDate(0, 0, 7), 30)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileSource_Missing(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "nope.json")).LoadWeekly(context.Background())
	assert.Error(t, err)
}
