package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
)

const (
	statusClientClosedRequest = 499
	suggestionLimit           = 5
	maxSuggestionLimit        = 50
)

type handlers struct {
	scheduler Scheduler
	windows   Windows
	log       *zap.Logger
}

func (h *handlers) bookAppointment(w http.ResponseWriter, r *http.Request) {
	var req BookAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
		return
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
		return
	}
	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start", "start must be an RFC 3339 timestamp")
		return
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = r.Header.Get("Idempotency-Key")
	}

	appt, err := h.scheduler.BookAppointment(r.Context(), appointment.BookingRequest{
		RequestID:       requestID,
		DoctorID:        doctorID,
		PatientID:       patientID,
		Start:           start,
		DurationMinutes: req.DurationMinutes,
		Reason:          req.Reason,
		Override:        req.Override,
	})
	if err != nil {
		h.writeSchedulingError(w, r, err, doctorID, start, req.DurationMinutes)
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(appt))
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var query appointment.ListQuery

	if v := q.Get("doctor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		query.DoctorID = &id
	}
	if v := q.Get("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		query.PatientID = &id
	}

	var err error
	if query.From, err = time.Parse(time.RFC3339, q.Get("from")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_from", "from must be an RFC 3339 timestamp")
		return
	}
	if query.To, err = time.Parse(time.RFC3339, q.Get("to")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_to", "to must be an RFC 3339 timestamp")
		return
	}
	if v := q.Get("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			query.Statuses = append(query.Statuses, appointment.Status(strings.TrimSpace(s)))
		}
	}

	appts, err := h.scheduler.ListAppointments(r.Context(), query)
	if err != nil {
		h.writeSchedulingError(w, r, err, uuid.Nil, time.Time{}, 0)
		return
	}

	resp := ListAppointmentsResponse{Appointments: make([]AppointmentResponse, 0, len(appts))}
	for i := range appts {
		resp.Appointments = append(resp.Appointments, toResponse(&appts[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}

	appt, err := h.scheduler.GetAppointment(r.Context(), id)
	if err != nil {
		h.writeSchedulingError(w, r, err, uuid.Nil, time.Time{}, 0)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

func (h *handlers) confirmAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}

	appt, err := h.scheduler.ConfirmAppointment(r.Context(), id)
	if err != nil {
		h.writeSchedulingError(w, r, err, uuid.Nil, time.Time{}, 0)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

func (h *handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}

	// the body is optional
	var req CancelAppointmentRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
	}

	appt, err := h.scheduler.CancelAppointmentWithReason(r.Context(), id, req.Reason)
	if err != nil {
		h.writeSchedulingError(w, r, err, uuid.Nil, time.Time{}, 0)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

func (h *handlers) rescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}

	var req RescheduleAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start", "start must be an RFC 3339 timestamp")
		return
	}

	appt, err := h.scheduler.RescheduleAppointment(r.Context(), appointment.RescheduleRequest{
		ID:              id,
		Start:           start,
		DurationMinutes: req.DurationMinutes,
		Override:        req.Override,
	})
	if err != nil {
		doctorID := uuid.Nil
		if current, getErr := h.scheduler.GetAppointment(r.Context(), id); getErr == nil {
			doctorID = current.DoctorID
		}
		h.writeSchedulingError(w, r, err, doctorID, start, req.DurationMinutes)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

func (h *handlers) doctorAvailability(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
		return
	}

	q := r.URL.Query()
	resp := AvailabilityResponse{DoctorID: doctorID}

	if v := q.Get("date"); v != "" {
		date, err := time.ParseInLocation(time.DateOnly, v, h.windows.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		resp.Date = v
		resp.Day = date.Weekday().String()
		resp.Windows, err = h.windows.WindowsOn(doctorID, date)
		if err != nil {
			h.writeSchedulingError(w, r, err, uuid.Nil, time.Time{}, 0)
			return
		}
	} else {
		day, err := availability.ParseWeekday(q.Get("day"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_day", err.Error())
			return
		}
		resp.Day = day.String()
		resp.Windows, err = h.windows.GetWindows(doctorID, day)
		if err != nil {
			h.writeSchedulingError(w, r, err, uuid.Nil, time.Time{}, 0)
			return
		}
	}

	if resp.Windows == nil {
		resp.Windows = []availability.Window{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) doctorSuggestions(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
		return
	}

	q := r.URL.Query()
	date, err := time.ParseInLocation(time.DateOnly, q.Get("date"), h.windows.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}
	duration, err := strconv.Atoi(q.Get("duration"))
	if err != nil || duration <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_duration", "duration must be a positive number of minutes")
		return
	}
	limit := suggestionLimit
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(limit, maxSuggestionLimit)
	}

	slots, err := h.scheduler.SuggestSlots(r.Context(), doctorID, date, duration, limit)
	if err != nil {
		h.writeSchedulingError(w, r, err, uuid.Nil, time.Time{}, 0)
		return
	}
	if slots == nil {
		slots = []time.Time{}
	}

	writeJSON(w, http.StatusOK, SuggestionsResponse{
		DoctorID:        doctorID,
		Date:            q.Get("date"),
		DurationMinutes: duration,
		Slots:           slots,
	})
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// writeSchedulingError maps engine errors to HTTP responses. For rejections of
// a requested interval it attaches free slots on the same day when doctorID is set.
func (h *handlers) writeSchedulingError(w http.ResponseWriter, r *http.Request, err error, doctorID uuid.UUID, start time.Time, durationMinutes int) {
	kind := appointment.KindOf(err)
	resp := ErrorResponse{Error: kind, Details: err.Error()}

	var status int
	switch {
	case errors.Is(err, appointment.ErrInvalidRequest),
		errors.Is(err, availability.ErrInvalidDuration),
		errors.Is(err, availability.ErrInvalidWindow):
		status = http.StatusBadRequest
	case errors.Is(err, appointment.ErrUnknownDoctor),
		errors.Is(err, appointment.ErrAppointmentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, appointment.ErrSlotConflict),
		errors.Is(err, appointment.ErrOutsideAvailability):
		status = http.StatusConflict
		var conflict *appointment.ConflictError
		if errors.As(err, &conflict) {
			resp.ConflictingIDs = conflict.ConflictingIDs
		}
		if doctorID != uuid.Nil && durationMinutes > 0 {
			slots, sErr := h.scheduler.SuggestSlots(r.Context(), doctorID, start, durationMinutes, suggestionLimit)
			if sErr != nil {
				h.log.Debug("suggestions unavailable", zap.Error(sErr))
			}
			resp.Suggestions = slots
		}
	case errors.Is(err, appointment.ErrCrossesDayBoundary):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, appointment.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, appointment.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	case errors.Is(err, appointment.ErrAborted):
		status = statusClientClosedRequest
	default:
		status = http.StatusInternalServerError
		resp.Details = "internal error"
		h.log.Error("unhandled scheduling error", zap.Error(err), zap.String("request_id", GetRequestID(r.Context())))
	}

	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
