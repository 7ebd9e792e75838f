package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

// Scheduler is the engine surface the HTTP layer drives.
type Scheduler interface {
	BookAppointment(ctx context.Context, req appointment.BookingRequest) (*appointment.Appointment, error)
	ConfirmAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	CancelAppointmentWithReason(ctx context.Context, id uuid.UUID, reason string) (*appointment.Appointment, error)
	RescheduleAppointment(ctx context.Context, req appointment.RescheduleRequest) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ListAppointments(ctx context.Context, q appointment.ListQuery) ([]appointment.Appointment, error)
	SuggestSlots(ctx context.Context, doctorID uuid.UUID, date time.Time, durationMinutes, limit int) ([]time.Time, error)
}

// Windows reads doctor availability for the availability endpoint.
type Windows interface {
	GetWindows(doctorID uuid.UUID, day time.Weekday) ([]availability.Window, error)
	WindowsOn(doctorID uuid.UUID, date time.Time) ([]availability.Window, error)
	Location() *time.Location
}

type RouterConfig struct {
	Scheduler Scheduler
	Windows   Windows
	Logger    *zap.Logger
	Metrics   *metrics.Collector
	Gatherer  prometheus.Gatherer
	Checks    []Check
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(cfg.Logger, cfg.Metrics))

	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(cfg.Gatherer))
	}

	h := &handlers{
		scheduler: cfg.Scheduler,
		windows:   cfg.Windows,
		log:       cfg.Logger,
	}

	r.Post("/appointments", h.bookAppointment)
	r.Get("/appointments", h.listAppointments)
	r.Get("/appointments/{id}", h.getAppointment)
	r.Post("/appointments/{id}/confirm", h.confirmAppointment)
	r.Post("/appointments/{id}/cancel", h.cancelAppointment)
	r.Post("/appointments/{id}/reschedule", h.rescheduleAppointment)

	r.Get("/doctors/{id}/availability", h.doctorAvailability)
	r.Get("/doctors/{id}/suggestions", h.doctorSuggestions)

	return otelhttp.NewHandler(r, "http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "HTTP " + r.Method
		}),
	)
}
