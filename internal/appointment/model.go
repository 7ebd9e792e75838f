package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// ActiveStatuses are the statuses that occupy a doctor's time.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// State transitions:
//
//	pending → confirmed → cancelled
//	pending → cancelled
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled},
	StatusCancelled: {},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Appointment struct {
	ID              uuid.UUID
	DoctorID        uuid.UUID
	PatientID       uuid.UUID
	Start           time.Time
	DurationMinutes int
	Status          Status
	Reason          string
	OverrideUsed    bool
	RequestID       string
	ExpiresAt       *time.Time
	CancelledAt     *time.Time
	CancelReason    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a *Appointment) End() time.Time {
	return a.Start.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Overlaps reports whether a occupies any instant of [start, end).
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return a.Start.Before(end) && start.Before(a.End())
}

// BookingRequest is the input of BookAppointment. RequestID is an optional
// client-generated key that makes retries safe.
type BookingRequest struct {
	RequestID       string
	DoctorID        uuid.UUID
	PatientID       uuid.UUID
	Start           time.Time
	DurationMinutes int
	Reason          string
	Override        bool
}

func (r BookingRequest) End() time.Time {
	return r.Start.Add(time.Duration(r.DurationMinutes) * time.Minute)
}

// sameBooking reports whether a stored appointment was created from an
// equivalent request.
func (r BookingRequest) sameBooking(a *Appointment) bool {
	return a.DoctorID == r.DoctorID &&
		a.PatientID == r.PatientID &&
		a.Start.Equal(r.Start) &&
		a.DurationMinutes == r.DurationMinutes
}

type RescheduleRequest struct {
	ID              uuid.UUID
	Start           time.Time
	DurationMinutes int
	Override        bool
}

// Patch is a partial update. ExpectStatus, when set, makes the update
// conditional on the stored status.
type Patch struct {
	ExpectStatus    *Status
	Status          *Status
	Start           *time.Time
	DurationMinutes *int
	OverrideUsed    *bool
	CancelledAt     *time.Time
	CancelReason    *string
	ClearExpiry     bool
}

func (p Patch) apply(a *Appointment) {
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.Start != nil {
		a.Start = *p.Start
	}
	if p.DurationMinutes != nil {
		a.DurationMinutes = *p.DurationMinutes
	}
	if p.OverrideUsed != nil {
		a.OverrideUsed = *p.OverrideUsed
	}
	if p.CancelledAt != nil {
		t := *p.CancelledAt
		a.CancelledAt = &t
	}
	if p.CancelReason != nil {
		a.CancelReason = *p.CancelReason
	}
	if p.ClearExpiry {
		a.ExpiresAt = nil
	}
}

// ListQuery selects appointments of a doctor and/or a patient starting within [From, To).
type ListQuery struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	From      time.Time
	To        time.Time
	Statuses  []Status
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	DoctorID      *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
