package appointment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/availability"
)

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrUnknownDoctor       = availability.ErrUnknownDoctor
	ErrOutsideAvailability = errors.New("outside doctor availability")
	ErrCrossesDayBoundary  = availability.ErrCrossesDayBoundary
	ErrSlotConflict        = errors.New("slot conflicts with existing appointments")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrStoreUnavailable    = errors.New("appointment store unavailable")
	ErrAborted             = errors.New("request aborted")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Store-level errors. The engine translates them before they leave the package
// boundary, except ErrAppointmentNotFound.
var (
	ErrPreconditionFailed = errors.New("stored status does not match expected status")
	ErrDuplicateRequest   = errors.New("request id already used")
	ErrOverlapRejected    = errors.New("store rejected overlapping appointment")
)

// ConflictError lists the appointments a requested interval collides with,
// ordered by start time then id.
type ConflictError struct {
	ConflictingIDs []uuid.UUID
}

func (e *ConflictError) Error() string {
	ids := make([]string, len(e.ConflictingIDs))
	for i, id := range e.ConflictingIDs {
		ids[i] = id.String()
	}
	return fmt.Sprintf("%s: %s", ErrSlotConflict, strings.Join(ids, ", "))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrSlotConflict
}

// Kind codes are stable identifiers for logs, metrics and API responses.
const (
	KindOK                  = "ok"
	KindInvalidRequest      = "invalid_request"
	KindUnknownDoctor       = "unknown_doctor"
	KindOutsideAvailability = "outside_availability"
	KindCrossesDayBoundary  = "crosses_day_boundary"
	KindSlotConflict        = "slot_conflict"
	KindInvalidTransition   = "invalid_transition"
	KindStoreUnavailable    = "store_unavailable"
	KindAborted             = "aborted"
	KindNotFound            = "appointment_not_found"
	KindInternal            = "internal"
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidRequest, KindInvalidRequest},
	{ErrUnknownDoctor, KindUnknownDoctor},
	{ErrOutsideAvailability, KindOutsideAvailability},
	{ErrCrossesDayBoundary, KindCrossesDayBoundary},
	{ErrSlotConflict, KindSlotConflict},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrStoreUnavailable, KindStoreUnavailable},
	{ErrAborted, KindAborted},
	{ErrAppointmentNotFound, KindNotFound},
}

// KindOf classifies err. nil is KindOK; unrecognised errors are KindInternal.
func KindOf(err error) string {
	if err == nil {
		return KindOK
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// UserFacing reports whether err is a rejection to show to the person booking
// rather than a caller bug or an infrastructure failure.
func UserFacing(err error) bool {
	return errors.Is(err, ErrSlotConflict) || errors.Is(err, ErrOutsideAvailability)
}

func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
