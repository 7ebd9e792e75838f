package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
)

type BookAppointmentRequest struct {
	RequestID       string `json:"request_id,omitempty"`
	DoctorID        string `json:"doctor_id"`
	PatientID       string `json:"patient_id"`
	Start           string `json:"start"`
	DurationMinutes int    `json:"duration_minutes"`
	Reason          string `json:"reason,omitempty"`
	Override        bool   `json:"override,omitempty"`
}

type RescheduleAppointmentRequest struct {
	Start           string `json:"start"`
	DurationMinutes int    `json:"duration_minutes"`
	Override        bool   `json:"override,omitempty"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason,omitempty"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	DoctorID        uuid.UUID  `json:"doctor_id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	Start           time.Time  `json:"start"`
	End             time.Time  `json:"end"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          string     `json:"status"`
	Reason          string     `json:"reason,omitempty"`
	OverrideUsed    bool       `json:"override_used"`
	RequestID       string     `json:"request_id,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CancelReason    string     `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		DoctorID:        a.DoctorID,
		PatientID:       a.PatientID,
		Start:           a.Start,
		End:             a.End(),
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		Reason:          a.Reason,
		OverrideUsed:    a.OverrideUsed,
		RequestID:       a.RequestID,
		ExpiresAt:       a.ExpiresAt,
		CancelledAt:     a.CancelledAt,
		CancelReason:    a.CancelReason,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

type ListAppointmentsResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
}

type AvailabilityResponse struct {
	DoctorID uuid.UUID             `json:"doctor_id"`
	Day      string                `json:"day"`
	Date     string                `json:"date,omitempty"`
	Windows  []availability.Window `json:"windows"`
}

type SuggestionsResponse struct {
	DoctorID        uuid.UUID   `json:"doctor_id"`
	Date            string      `json:"date"`
	DurationMinutes int         `json:"duration_minutes"`
	Slots           []time.Time `json:"slots"`
}

type ErrorResponse struct {
	Error          string      `json:"error"`
	Details        string      `json:"details,omitempty"`
	ConflictingIDs []uuid.UUID `json:"conflicting_ids,omitempty"`
	Suggestions    []time.Time `json:"suggestions,omitempty"`
}
