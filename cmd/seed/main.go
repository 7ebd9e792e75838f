package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logger"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

// weekly templates a doctor's hours are drawn from
var templates = [][]availability.Window{
	{
		{Start: availability.NewClock(9, 0), End: availability.NewClock(12, 0)},
		{Start: availability.NewClock(14, 0), End: availability.NewClock(17, 0)},
	},
	{
		{Start: availability.NewClock(8, 0), End: availability.NewClock(13, 0)},
	},
	{
		{Start: availability.NewClock(13, 0), End: availability.NewClock(19, 30)},
	},
	{
		{Start: availability.NewClock(7, 30), End: availability.NewClock(11, 30)},
		{Start: availability.NewClock(12, 30), End: availability.NewClock(16, 0)},
	},
}

func main() {
	zlog, err := logger.New(config.GetEnv("LOG_LEVEL", "info"), config.GetEnv("LOG_FORMAT", "console"), "seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zlog.Sync() }()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		zlog.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{})
	if err != nil {
		zlog.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		zlog.Fatal("migrate", zap.Error(err))
	}

	if err := gofakeit.Seed(time.Now().UnixNano()); err != nil {
		zlog.Fatal("seed faker", zap.Error(err))
	}

	doctors := config.GetInt("SEED_DOCTORS", 100)
	patients := config.GetInt("SEED_PATIENTS", 9000)

	if err := seedDoctors(context.Background(), pool, doctors, zlog); err != nil {
		zlog.Fatal("seed doctors", zap.Error(err))
	}
	if err := seedPatients(context.Background(), pool, patients, zlog); err != nil {
		zlog.Fatal("seed patients", zap.Error(err))
	}

	zlog.Info("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int, zlog *zap.Logger) error {
	zlog.Info("seeding doctors", zap.Int("count", count))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	windows := 0
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return err
		}

		n, err := seedWeek(ctx, tx, id)
		if err != nil {
			return err
		}
		windows += n

		// roughly one doctor in ten takes a day off next week
		if gofakeit.Number(1, 10) == 1 {
			day := time.Now().AddDate(0, 0, gofakeit.Number(1, 7))
			if _, err := tx.Exec(ctx, `
				INSERT INTO doctor_availability_overrides (doctor_id, override_date)
				VALUES ($1, $2)
			`, id, day.Format(time.DateOnly)); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	zlog.Info("doctors seeded", zap.Int("windows", windows))
	return nil
}

// seedWeek gives a doctor one template on each working day, Monday to
// Friday, with Saturday mornings for some.
func seedWeek(ctx context.Context, tx pgx.Tx, doctorID uuid.UUID) (int, error) {
	template := templates[gofakeit.Number(0, len(templates)-1)]
	days := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	if gofakeit.Bool() {
		days = append(days, time.Saturday)
	}

	n := 0
	for _, day := range days {
		for _, w := range template {
			if day == time.Saturday && w.Start >= availability.NewClock(12, 0) {
				continue
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO doctor_availability (doctor_id, day_of_week, start_minute, end_minute)
				VALUES ($1, $2, $3, $4)
			`, doctorID, int16(day), int16(w.Start), int16(w.End))
			if err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int, zlog *zap.Logger) error {
	zlog.Info("seeding patients", zap.Int("count", count))

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		rows := make([][]any, 0, end-offset)
		for i := offset; i < end; i++ {
			rows = append(rows, []any{uuid.New(), gofakeit.Name(), gofakeit.Email()})
		}

		_, err := pool.CopyFrom(ctx,
			pgx.Identifier{"patients"},
			[]string{"id", "name", "email"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return err
		}

		zlog.Info("patients seeded", zap.Int("done", end), zap.Int("total", count))
	}

	return nil
}
