package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/availability"
)

// Store persists appointments. Each call is atomic for a single record; the
// engine is responsible for cross-record consistency.
type Store interface {
	// Insert stores a new appointment. It returns ErrDuplicateRequest when the
	// request id is already taken, and may return ErrOverlapRejected if the
	// backend enforces non-overlap itself.
	Insert(ctx context.Context, a *Appointment) (*Appointment, error)

	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// FindOverlapping returns the doctor's appointments in one of statuses whose
	// interval intersects [start, end), ordered by start.
	FindOverlapping(ctx context.Context, doctorID uuid.UUID, start, end time.Time, statuses []Status) ([]Appointment, error)

	// Update applies p and returns the stored result. ErrPreconditionFailed is
	// returned when p.ExpectStatus does not match.
	Update(ctx context.Context, id uuid.UUID, p Patch) (*Appointment, error)

	List(ctx context.Context, q ListQuery) ([]Appointment, error)

	// FindByRequestID returns ErrAppointmentNotFound when no appointment carries requestID.
	FindByRequestID(ctx context.Context, requestID string) (*Appointment, error)

	// FindExpiredPending returns pending appointments whose hold ended before now.
	FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]Appointment, error)
}

// EventSink receives lifecycle events after they are committed.
type EventSink interface {
	RecordEvent(ctx context.Context, ev EventLog) error
}

// Locker serializes the check-then-insert section of bookings per doctor.
type Locker interface {
	WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error
}

// Availability is the read side of the availability index used by the engine.
type Availability interface {
	IsWithinAvailability(doctorID uuid.UUID, start time.Time, durationMinutes int) (bool, error)
	WindowsOn(doctorID uuid.UUID, date time.Time) ([]availability.Window, error)
	Location() *time.Location
}
