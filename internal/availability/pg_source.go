package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgSource reads availability maintained by doctor-profile management.
type PgSource struct {
	pool *pgxpool.Pool
}

func NewPgSource(pool *pgxpool.Pool) *PgSource {
	return &PgSource{pool: pool}
}

func (s *PgSource) LoadWeekly(ctx context.Context) (map[uuid.UUID][]Window, error) {
	// doctors without windows are still registered, so they do not read as unknown
	rows, err := s.pool.Query(ctx, `
		SELECT d.id, a.day_of_week, a.start_minute, a.end_minute
		FROM doctors d
		LEFT JOIN doctor_availability a ON a.doctor_id = d.id
		ORDER BY d.id, a.day_of_week, a.start_minute
	`)
	if err != nil {
		return nil, fmt.Errorf("query availability: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]Window)
	for rows.Next() {
		var (
			doctorID   uuid.UUID
			day        *int16
			start, end *int16
		)
		if err := rows.Scan(&doctorID, &day, &start, &end); err != nil {
			return nil, err
		}
		if _, ok := out[doctorID]; !ok {
			out[doctorID] = nil
		}
		if day == nil || start == nil || end == nil {
			continue
		}
		out[doctorID] = append(out[doctorID], Window{
			Day:   time.Weekday(*day),
			Start: Clock(*start),
			End:   Clock(*end),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadOverrides returns today's and future overrides. A row with NULL bounds
// marks the date as closed.
func (s *PgSource) LoadOverrides(ctx context.Context) ([]DateOverride, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doctor_id, override_date, start_minute, end_minute
		FROM doctor_availability_overrides
		WHERE override_date >= CURRENT_DATE - 1
		ORDER BY doctor_id, override_date, start_minute NULLS FIRST
	`)
	if err != nil {
		return nil, fmt.Errorf("query availability overrides: %w", err)
	}
	defer rows.Close()

	type key struct {
		doctor uuid.UUID
		date   string
	}
	byKey := make(map[key]int)
	var out []DateOverride

	for rows.Next() {
		var (
			doctorID   uuid.UUID
			date       time.Time
			start, end *int16
		)
		if err := rows.Scan(&doctorID, &date, &start, &end); err != nil {
			return nil, err
		}

		k := key{doctorID, date.Format(time.DateOnly)}
		idx, ok := byKey[k]
		if !ok {
			out = append(out, DateOverride{DoctorID: doctorID, Date: date})
			idx = len(out) - 1
			byKey[k] = idx
		}
		if start != nil && end != nil {
			out[idx].Windows = append(out[idx].Windows, Window{Start: Clock(*start), End: Clock(*end)})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
