package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/lock"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

type testServer struct {
	handler http.Handler
	doctor  uuid.UUID
	metrics *metrics.Collector
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	index := availability.NewIndex(time.UTC)
	doctor := uuid.New()
	require.NoError(t, index.SetWeekly(doctor, []availability.Window{
		{Day: time.Monday, Start: availability.NewClock(9, 0), End: availability.NewClock(12, 0)},
		{Day: time.Monday, Start: availability.NewClock(23, 0), End: availability.EndOfDay},
	}))

	now := func() time.Time { return time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC) }
	engine := appointment.NewEngine(appointment.NewMemoryStore(), index, lock.NewLocal(), appointment.WithClock(now))

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("test", reg)

	return &testServer{
		handler: NewRouter(RouterConfig{
			Scheduler: engine,
			Windows:   index,
			Metrics:   collector,
			Gatherer:  reg,
		}),
		doctor:  doctor,
		metrics: collector,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) book(t *testing.T, start string, minutes int) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		DoctorID:        s.doctor.String(),
		PatientID:       uuid.NewString(),
		Start:           start,
		DurationMinutes: minutes,
	})
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestBookAndConflict(t *testing.T) {
	s := newTestServer(t)

	rec := s.book(t, "2026-10-19T10:00:00Z", 30)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "pending", created.Status)
	assert.True(t, created.End.Equal(time.Date(2026, 10, 19, 10, 30, 0, 0, time.UTC)))

	rec = s.book(t, "2026-10-19T10:15:00Z", 30)
	require.Equal(t, http.StatusConflict, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	assert.Equal(t, appointment.KindSlotConflict, errResp.Error)
	assert.Equal(t, []uuid.UUID{created.ID}, errResp.ConflictingIDs)
	require.NotEmpty(t, errResp.Suggestions)
	assert.True(t, errResp.Suggestions[0].Equal(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)))

	rec = s.book(t, "2026-10-19T10:30:00Z", 30)
	assert.Equal(t, http.StatusCreated, rec.Code, "back-to-back")
}

func TestBookErrorMapping(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		body   any
		status int
		kind   string
	}{
		{
			name:   "outside availability",
			body:   BookAppointmentRequest{DoctorID: s.doctor.String(), PatientID: uuid.NewString(), Start: "2026-10-19T13:00:00Z", DurationMinutes: 30},
			status: http.StatusConflict,
			kind:   appointment.KindOutsideAvailability,
		},
		{
			name:   "crosses midnight",
			body:   BookAppointmentRequest{DoctorID: s.doctor.String(), PatientID: uuid.NewString(), Start: "2026-10-19T23:30:00Z", DurationMinutes: 90},
			status: http.StatusUnprocessableEntity,
			kind:   appointment.KindCrossesDayBoundary,
		},
		{
			name:   "unknown doctor",
			body:   BookAppointmentRequest{DoctorID: uuid.NewString(), PatientID: uuid.NewString(), Start: "2026-10-19T10:00:00Z", DurationMinutes: 30},
			status: http.StatusNotFound,
			kind:   appointment.KindUnknownDoctor,
		},
		{
			name:   "zero duration",
			body:   BookAppointmentRequest{DoctorID: s.doctor.String(), PatientID: uuid.NewString(), Start: "2026-10-19T10:00:00Z"},
			status: http.StatusBadRequest,
			kind:   appointment.KindInvalidRequest,
		},
		{
			name:   "duration overflows",
			body:   BookAppointmentRequest{DoctorID: s.doctor.String(), PatientID: uuid.NewString(), Start: "2026-10-19T12:00:00Z", DurationMinutes: 1<<53 - 30, Override: true},
			status: http.StatusBadRequest,
			kind:   appointment.KindInvalidRequest,
		},
		{
			name:   "bad doctor id",
			body:   BookAppointmentRequest{DoctorID: "nope", PatientID: uuid.NewString(), Start: "2026-10-19T10:00:00Z", DurationMinutes: 30},
			status: http.StatusBadRequest,
			kind:   "invalid_doctor_id",
		},
		{
			name:   "bad start",
			body:   BookAppointmentRequest{DoctorID: s.doctor.String(), PatientID: uuid.NewString(), Start: "tomorrow", DurationMinutes: 30},
			status: http.StatusBadRequest,
			kind:   "invalid_start",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/appointments", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.kind, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.book(t, "2026-10-19T10:00:00Z", 30)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[AppointmentResponse](t, rec).ID

	rec = s.do(t, http.MethodPost, "/appointments/"+id.String()+"/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "confirmed", decode[AppointmentResponse](t, rec).Status)

	rec = s.do(t, http.MethodPost, "/appointments/"+id.String()+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, appointment.KindInvalidTransition, decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPost, "/appointments/"+id.String()+"/reschedule", RescheduleAppointmentRequest{
		Start: "2026-10-19T11:00:00Z", DurationMinutes: 45,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	moved := decode[AppointmentResponse](t, rec)
	assert.Equal(t, id, moved.ID)
	assert.Equal(t, 45, moved.DurationMinutes)

	rec = s.do(t, http.MethodPost, "/appointments/"+id.String()+"/cancel", CancelAppointmentRequest{Reason: "sick"})
	require.Equal(t, http.StatusOK, rec.Code)
	cancelled := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Equal(t, "sick", cancelled.CancelReason)

	rec = s.do(t, http.MethodGet, "/appointments/"+id.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/appointments/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListEndpoint(t *testing.T) {
	s := newTestServer(t)

	require.Equal(t, http.StatusCreated, s.book(t, "2026-10-19T11:00:00Z", 30).Code)
	require.Equal(t, http.StatusCreated, s.book(t, "2026-10-19T09:00:00Z", 30).Code)

	path := fmt.Sprintf("/appointments?doctor_id=%s&from=2026-10-19T00:00:00Z&to=2026-10-20T00:00:00Z", s.doctor)
	rec := s.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ListAppointmentsResponse](t, rec)
	require.Len(t, list.Appointments, 2)
	assert.True(t, list.Appointments[0].Start.Before(list.Appointments[1].Start))

	rec = s.do(t, http.MethodGet, "/appointments?from=2026-10-19T00:00:00Z&to=2026-10-20T00:00:00Z", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDoctorEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/doctors/"+s.doctor.String()+"/availability?day=lundi", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	avail := decode[AvailabilityResponse](t, rec)
	assert.Equal(t, "Monday", avail.Day)
	require.Len(t, avail.Windows, 2)
	assert.Equal(t, availability.NewClock(9, 0), avail.Windows[0].Start)

	rec = s.do(t, http.MethodGet, "/doctors/"+s.doctor.String()+"/availability?date=2026-10-20", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[AvailabilityResponse](t, rec).Windows)

	rec = s.do(t, http.MethodGet, "/doctors/"+uuid.NewString()+"/availability?day=monday", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, http.StatusCreated, s.book(t, "2026-10-19T09:00:00Z", 60).Code)
	rec = s.do(t, http.MethodGet, "/doctors/"+s.doctor.String()+"/suggestions?date=2026-10-19&duration=60&limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sugg := decode[SuggestionsResponse](t, rec)
	require.Len(t, sugg.Slots, 2)
	assert.True(t, sugg.Slots[0].Equal(time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)))

	rec = s.do(t, http.MethodGet, "/doctors/"+s.doctor.String()+"/suggestions?date=2026-10-19&duration=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubScheduler struct {
	Scheduler
	err error
}

func (s stubScheduler) GetAppointment(context.Context, uuid.UUID) (*appointment.Appointment, error) {
	return nil, s.err
}

func TestInfrastructureErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: get: dial tcp: timeout", appointment.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: context canceled", appointment.ErrAborted), statusClientClosedRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		h := NewRouter(RouterConfig{Scheduler: stubScheduler{err: tt.err}})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/appointments/"+uuid.NewString(), nil))

		assert.Equal(t, tt.status, rec.Code, tt.err.Error())
		if tt.status == http.StatusServiceUnavailable {
			assert.Equal(t, "1", rec.Header().Get("Retry-After"))
		}
		if tt.status == http.StatusInternalServerError {
			assert.NotContains(t, rec.Body.String(), "boom")
		}
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, http.StatusCreated, s.book(t, "2026-10-19T10:00:00Z", 30).Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.RequestsTotal.WithLabelValues("POST", "/appointments", "201")))

	rec = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "test_http_requests_total"))
}

func TestReadiness(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("down") }

	tests := []struct {
		name   string
		checks []Check
		status int
		want   string
	}{
		{"all up", []Check{{Name: "postgres", Critical: true, Probe: ok}}, http.StatusOK, "ok"},
		{"optional down", []Check{{Name: "postgres", Critical: true, Probe: ok}, {Name: "redis", Probe: down}}, http.StatusOK, "degraded"},
		{"critical down", []Check{{Name: "postgres", Critical: true, Probe: down}}, http.StatusServiceUnavailable, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.checks, "test", "v0")
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.want, decode[ReadinessResponse](t, rec).Status)
		})
	}
}
