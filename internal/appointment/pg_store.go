package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
)

const appointmentColumns = `id, doctor_id, patient_id, start_time, duration_minutes, status, reason,
	override_used, request_id, expires_at, cancelled_at, cancel_reason, created_at, updated_at`

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var requestID *string

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.Start,
		&a.DurationMinutes,
		&a.Status,
		&a.Reason,
		&a.OverrideUsed,
		&requestID,
		&a.ExpiresAt,
		&a.CancelledAt,
		&a.CancelReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if requestID != nil {
		a.RequestID = *requestID
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgStore) Insert(ctx context.Context, a *Appointment) (*Appointment, error) {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, start_time, end_time, duration_minutes, status,
			reason, override_used, request_id, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING `+appointmentColumns,
		id, a.DoctorID, a.PatientID, a.Start, a.End(), a.DurationMinutes, a.Status,
		a.Reason, a.OverrideUsed, nullableString(a.RequestID), a.ExpiresAt)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, translatePgError(err)
	}
	return created, nil
}

func (r *PgStore) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgStore) FindOverlapping(ctx context.Context, doctorID uuid.UUID, start, end time.Time, statuses []Status) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND start_time < $3
		  AND end_time > $2
		  AND status = ANY($4)
		ORDER BY start_time, id
	`, doctorID, start, end, statusStrings(statuses))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgStore) Update(ctx context.Context, id uuid.UUID, p Patch) (*Appointment, error) {
	var expect *string
	if p.ExpectStatus != nil {
		s := string(*p.ExpectStatus)
		expect = &s
	}
	var status *string
	if p.Status != nil {
		s := string(*p.Status)
		status = &s
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status           = COALESCE($2, status),
		    start_time       = COALESCE($3, start_time),
		    duration_minutes = COALESCE($4, duration_minutes),
		    end_time         = COALESCE($3, start_time) + make_interval(mins => COALESCE($4, duration_minutes)),
		    override_used    = COALESCE($5, override_used),
		    cancelled_at     = COALESCE($6, cancelled_at),
		    cancel_reason    = COALESCE($7, cancel_reason),
		    expires_at       = CASE WHEN $8 THEN NULL ELSE expires_at END,
		    updated_at       = now()
		WHERE id = $1
		  AND ($9::text IS NULL OR status = $9)
		RETURNING `+appointmentColumns,
		id, status, p.Start, p.DurationMinutes, p.OverrideUsed, p.CancelledAt, p.CancelReason, p.ClearExpiry, expect)

	updated, err := scanAppointment(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, translatePgError(err)
	}
	if expect == nil {
		return nil, ErrAppointmentNotFound
	}

	// zero rows: either the id is unknown or the status guard failed
	if _, getErr := r.Get(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrPreconditionFailed
}

func (r *PgStore) List(ctx context.Context, q ListQuery) ([]Appointment, error) {
	var statuses []string
	if len(q.Statuses) > 0 {
		statuses = statusStrings(q.Statuses)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1::uuid IS NULL OR doctor_id = $1)
		  AND ($2::uuid IS NULL OR patient_id = $2)
		  AND start_time >= $3
		  AND start_time < $4
		  AND ($5::text[] IS NULL OR status = ANY($5))
		ORDER BY start_time, id
	`, q.DoctorID, q.PatientID, q.From, q.To, statuses)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgStore) FindByRequestID(ctx context.Context, requestID string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE request_id = $1`, requestID)
	return scanAppointment(row)
}

func (r *PgStore) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'pending'
		  AND expires_at IS NOT NULL
		  AND expires_at < $1
		ORDER BY start_time, id
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgStore) RecordEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, doctor_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, ev.DoctorID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			if pgErr.ConstraintName == "appointments_request_id_key" {
				return ErrDuplicateRequest
			}
		case pgExclusionViolation:
			return ErrOverlapRejected
		}
	}
	return err
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
