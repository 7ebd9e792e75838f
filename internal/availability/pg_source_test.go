package availability

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/db"
)

func TestPgSource_ReloadIntoIndex(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{MaxConns: 2})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.Migrate(ctx, pool))

	busy, idle := uuid.New(), uuid.New()
	for _, id := range []uuid.UUID{busy, idle} {
		_, err := pool.Exec(ctx, `INSERT INTO doctors (id, name) VALUES ($1, 'Dr Source')`, id)
		require.NoError(t, err)
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO doctor_availability (doctor_id, day_of_week, start_minute, end_minute)
		VALUES ($1, 1, 840, 1020), ($1, 1, 540, 720)
	`, busy)
	require.NoError(t, err)

	closed := time.Now().UTC().AddDate(0, 0, 7)
	short := closed.AddDate(0, 0, 1)
	_, err = pool.Exec(ctx, `
		INSERT INTO doctor_availability_overrides (doctor_id, override_date, start_minute, end_minute)
		VALUES ($1, $2, NULL, NULL), ($1, $3, 600, 660)
	`, busy, closed.Format(time.DateOnly), short.Format(time.DateOnly))
	require.NoError(t, err)

	ix := NewIndex(time.UTC)
	require.NoError(t, ix.Reload(ctx, NewPgSource(pool)))

	assert.True(t, ix.Has(idle), "doctor without windows is still known")
	windows, err := ix.GetWindows(idle, time.Monday)
	require.NoError(t, err)
	assert.Empty(t, windows)

	monday, err := ix.GetWindows(busy, time.Monday)
	require.NoError(t, err)
	require.Len(t, monday, 2)
	assert.Equal(t, NewClock(9, 0), monday[0].Start)
	assert.Equal(t, NewClock(14, 0), monday[1].Start)

	onClosed, err := ix.WindowsOn(busy, closed)
	require.NoError(t, err)
	assert.Empty(t, onClosed)

	onShort, err := ix.WindowsOn(busy, short)
	require.NoError(t, err)
	require.Len(t, onShort, 1)
	assert.Equal(t, NewClock(10, 0), onShort[0].Start)
	assert.Equal(t, NewClock(11, 0), onShort[0].End)
}
