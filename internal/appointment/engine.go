package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentExpired     = "APPOINTMENT_EXPIRED"
)

// CancelReasonExpired is recorded on pending holds cancelled by the expiry sweep.
const CancelReasonExpired = "expired"

const (
	defaultStoreTimeout = 2 * time.Second
	defaultSlotStep     = 15 * time.Minute
	expiryBatchSize     = 500
	cancelAttempts      = 3

	// no appointment can be longer than the day it must fit in
	maxDurationMinutes = 24 * 60
)

// Engine is the only writer of appointments. It enforces availability,
// non-overlap per doctor and the status lifecycle.
type Engine struct {
	store        Store
	avail        Availability
	locker       Locker
	events       EventSink
	now          func() time.Time
	log          *zap.Logger
	metrics      *metrics.Collector
	tracer       trace.Tracer
	storeTimeout time.Duration
	pendingTTL   time.Duration
	slotStep     time.Duration
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithEventSink sets where lifecycle events go once an operation has committed.
func WithEventSink(s EventSink) Option {
	return func(e *Engine) { e.events = s }
}

func WithStoreTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.storeTimeout = d
		}
	}
}

// WithPendingTTL makes new bookings hold their slot for d while pending. Zero
// keeps pending appointments until they are confirmed or cancelled.
func WithPendingTTL(d time.Duration) Option {
	return func(e *Engine) { e.pendingTTL = d }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithSlotStep sets the spacing of the start times SuggestSlots proposes.
func WithSlotStep(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.slotStep = d
		}
	}
}

func NewEngine(store Store, avail Availability, locker Locker, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		avail:        avail,
		locker:       locker,
		now:          time.Now,
		log:          zap.NewNop(),
		tracer:       otel.Tracer("github.com/hackgods/clinic-scheduling/internal/appointment"),
		storeTimeout: defaultStoreTimeout,
		slotStep:     defaultSlotStep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BookAppointment creates a pending appointment if the interval is inside the
// doctor's availability (or req.Override is set) and no active appointment of
// the doctor overlaps it.
func (e *Engine) BookAppointment(ctx context.Context, req BookingRequest) (appt *Appointment, err error) {
	ctx, span := e.tracer.Start(ctx, "appointment.Book", trace.WithAttributes(
		attribute.String("doctor_id", req.DoctorID.String()),
		attribute.Int("duration_minutes", req.DurationMinutes),
	))
	defer func() { e.finish(span, "book", err, zap.Stringer("doctor_id", req.DoctorID), zap.String("request_id", req.RequestID)) }()

	now := e.now()
	if err := validateInterval(req.DoctorID, req.Start, req.DurationMinutes, now); err != nil {
		return nil, err
	}
	if req.PatientID == uuid.Nil {
		return nil, invalidRequest("patient_id is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, abortedErr(err)
	}

	overrideUsed, err := e.checkAvailability(req.DoctorID, req.Start, req.DurationMinutes, req.Override)
	if err != nil {
		return nil, err
	}

	var replayed bool
	err = e.withDoctorLock(ctx, req.DoctorID, func(lockCtx context.Context) error {
		if req.RequestID != "" {
			existing, err := e.findByRequestID(lockCtx, req.RequestID)
			if err != nil {
				return err
			}
			if existing != nil {
				if !req.sameBooking(existing) {
					return invalidRequest("request id %q was used for a different booking", req.RequestID)
				}
				appt, replayed = existing, true
				return nil
			}
		}

		if err := e.checkConflicts(lockCtx, req.DoctorID, req.Start, req.End(), uuid.Nil); err != nil {
			return err
		}
		if err := beforeWrite(ctx, lockCtx); err != nil {
			return err
		}

		candidate := &Appointment{
			ID:              uuid.New(),
			DoctorID:        req.DoctorID,
			PatientID:       req.PatientID,
			Start:           req.Start,
			DurationMinutes: req.DurationMinutes,
			Status:          StatusPending,
			Reason:          req.Reason,
			OverrideUsed:    overrideUsed,
			RequestID:       req.RequestID,
		}
		if e.pendingTTL > 0 {
			expiresAt := now.Add(e.pendingTTL)
			candidate.ExpiresAt = &expiresAt
		}

		created, err := e.insert(lockCtx, candidate)
		if errors.Is(err, ErrDuplicateRequest) {
			// same key raced in through another doctor's lock
			existing, findErr := e.findByRequestID(lockCtx, req.RequestID)
			if findErr != nil {
				return findErr
			}
			if existing == nil || !req.sameBooking(existing) {
				return invalidRequest("request id %q was used for a different booking", req.RequestID)
			}
			appt, replayed = existing, true
			return nil
		}
		if err != nil {
			return err
		}
		appt = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	if replayed {
		e.log.Debug("booking replayed", zap.Stringer("appointment_id", appt.ID), zap.String("request_id", req.RequestID))
		return appt, nil
	}

	e.emit(ctx, EventAppointmentCreated, appt, map[string]any{
		"patient_id":       appt.PatientID.String(),
		"start":            appt.Start,
		"duration_minutes": appt.DurationMinutes,
		"override_used":    appt.OverrideUsed,
		"expires_at":       appt.ExpiresAt,
	})
	e.metrics.ObserveTransition(string(StatusPending))
	return appt, nil
}

// ConfirmAppointment moves a pending appointment to confirmed. A pending hold
// that has already expired is cancelled instead.
func (e *Engine) ConfirmAppointment(ctx context.Context, id uuid.UUID) (appt *Appointment, err error) {
	ctx, span := e.tracer.Start(ctx, "appointment.Confirm", trace.WithAttributes(attribute.String("appointment_id", id.String())))
	defer func() { e.finish(span, "confirm", err, zap.Stringer("appointment_id", id)) }()

	current, err := e.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(StatusConfirmed) {
		return nil, fmt.Errorf("%w: cannot confirm a %s appointment", ErrInvalidTransition, current.Status)
	}

	now := e.now()
	if current.ExpiresAt != nil && current.ExpiresAt.Before(now) {
		if _, expErr := e.expire(ctx, current, now); expErr != nil && !errors.Is(expErr, ErrInvalidTransition) {
			e.log.Warn("failed to expire appointment during confirm", zap.Stringer("appointment_id", id), zap.Error(expErr))
		}
		return nil, fmt.Errorf("%w: pending hold expired at %s", ErrInvalidTransition, current.ExpiresAt.Format(time.RFC3339))
	}

	pending, confirmed := StatusPending, StatusConfirmed
	updated, err := e.update(ctx, "confirm", id, Patch{
		ExpectStatus: &pending,
		Status:       &confirmed,
		ClearExpiry:  true,
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, EventAppointmentConfirmed, updated, map[string]any{})
	e.metrics.ObserveTransition(string(StatusConfirmed))
	return updated, nil
}

func (e *Engine) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return e.CancelAppointmentWithReason(ctx, id, "")
}

// CancelAppointmentWithReason cancels a pending or confirmed appointment and
// frees its interval.
func (e *Engine) CancelAppointmentWithReason(ctx context.Context, id uuid.UUID, reason string) (appt *Appointment, err error) {
	ctx, span := e.tracer.Start(ctx, "appointment.Cancel", trace.WithAttributes(attribute.String("appointment_id", id.String())))
	defer func() { e.finish(span, "cancel", err, zap.Stringer("appointment_id", id)) }()

	for attempt := 0; ; attempt++ {
		current, err := e.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !current.Status.CanTransitionTo(StatusCancelled) {
			return nil, fmt.Errorf("%w: cannot cancel a %s appointment", ErrInvalidTransition, current.Status)
		}

		updated, err := e.cancel(ctx, current, reason, e.now())
		// a concurrent confirm changed the status under us; cancelling is still valid
		if errors.Is(err, ErrInvalidTransition) && attempt+1 < cancelAttempts {
			continue
		}
		if err != nil {
			return nil, err
		}

		e.emit(ctx, EventAppointmentCancelled, updated, map[string]any{
			"from":   string(current.Status),
			"reason": reason,
		})
		e.metrics.ObserveTransition(string(StatusCancelled))
		return updated, nil
	}
}

// RescheduleAppointment moves an active appointment to a new interval in place,
// keeping its id and status. On any error the stored record is unchanged.
func (e *Engine) RescheduleAppointment(ctx context.Context, req RescheduleRequest) (appt *Appointment, err error) {
	ctx, span := e.tracer.Start(ctx, "appointment.Reschedule", trace.WithAttributes(
		attribute.String("appointment_id", req.ID.String()),
		attribute.Int("duration_minutes", req.DurationMinutes),
	))
	defer func() { e.finish(span, "reschedule", err, zap.Stringer("appointment_id", req.ID)) }()

	current, err := e.get(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if !current.Status.Active() {
		return nil, fmt.Errorf("%w: cannot reschedule a %s appointment", ErrInvalidTransition, current.Status)
	}

	if err := validateInterval(current.DoctorID, req.Start, req.DurationMinutes, e.now()); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, abortedErr(err)
	}

	overrideUsed, err := e.checkAvailability(current.DoctorID, req.Start, req.DurationMinutes, req.Override)
	if err != nil {
		return nil, err
	}

	end := req.Start.Add(time.Duration(req.DurationMinutes) * time.Minute)
	err = e.withDoctorLock(ctx, current.DoctorID, func(lockCtx context.Context) error {
		fresh, err := e.get(lockCtx, req.ID)
		if err != nil {
			return err
		}
		if !fresh.Status.Active() {
			return fmt.Errorf("%w: cannot reschedule a %s appointment", ErrInvalidTransition, fresh.Status)
		}

		if err := e.checkConflicts(lockCtx, current.DoctorID, req.Start, end, req.ID); err != nil {
			return err
		}
		if err := beforeWrite(ctx, lockCtx); err != nil {
			return err
		}

		start, duration := req.Start, req.DurationMinutes
		status := fresh.Status
		updated, err := e.update(context.WithoutCancel(lockCtx), "reschedule", req.ID, Patch{
			ExpectStatus:    &status,
			Start:           &start,
			DurationMinutes: &duration,
			OverrideUsed:    &overrideUsed,
		})
		if errors.Is(err, ErrOverlapRejected) {
			return e.conflictFromStore(lockCtx, current.DoctorID, req.Start, end, req.ID)
		}
		if err != nil {
			return err
		}
		appt = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, EventAppointmentRescheduled, appt, map[string]any{
		"previous_start":            current.Start,
		"previous_duration_minutes": current.DurationMinutes,
		"start":                     appt.Start,
		"duration_minutes":          appt.DurationMinutes,
		"override_used":             appt.OverrideUsed,
	})
	return appt, nil
}

func (e *Engine) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return e.get(ctx, id)
}

// ListAppointments returns appointments of a doctor and/or a patient starting
// in [q.From, q.To), ordered by start.
func (e *Engine) ListAppointments(ctx context.Context, q ListQuery) ([]Appointment, error) {
	if q.DoctorID == nil && q.PatientID == nil {
		return nil, invalidRequest("doctor_id or patient_id is required")
	}
	if !q.From.Before(q.To) {
		return nil, invalidRequest("from must be before to")
	}
	for _, s := range q.Statuses {
		if !s.Valid() {
			return nil, invalidRequest("unknown status %q", s)
		}
	}

	var out []Appointment
	err := e.storeCall(ctx, "list", func(ctx context.Context) error {
		var err error
		out, err = e.store.List(ctx, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SuggestSlots proposes up to limit free start times for the doctor on the
// clinic-local date of date. No lock is taken; the result is advisory.
func (e *Engine) SuggestSlots(ctx context.Context, doctorID uuid.UUID, date time.Time, durationMinutes, limit int) ([]time.Time, error) {
	if durationMinutes <= 0 || durationMinutes > maxDurationMinutes {
		return nil, invalidRequest("duration must be between 1 and %d minutes, got %d", maxDurationMinutes, durationMinutes)
	}

	windows, err := e.avail.WindowsOn(doctorID, date)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return nil, nil
	}

	loc := e.avail.Location()
	dayStart := availability.Midnight.On(date, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	var booked []Appointment
	err = e.storeCall(ctx, "find_overlapping", func(ctx context.Context) error {
		var err error
		booked, err = e.store.FindOverlapping(ctx, doctorID, dayStart, dayEnd, ActiveStatuses)
		return err
	})
	if err != nil {
		return nil, err
	}

	busy := make([]availability.Interval, 0, len(booked))
	for _, a := range booked {
		busy = append(busy, availability.Interval{Start: a.Start, End: a.End()})
	}

	slots := availability.FreeSlots(windows, date, loc, time.Duration(durationMinutes)*time.Minute, e.slotStep, busy, e.now())
	if limit > 0 && len(slots) > limit {
		slots = slots[:limit]
	}
	return slots, nil
}

// ExpireStalePending cancels pending appointments whose hold has run out and
// returns how many were cancelled.
func (e *Engine) ExpireStalePending(ctx context.Context) (int, error) {
	ctx, span := e.tracer.Start(ctx, "appointment.ExpireStalePending")
	defer span.End()

	now := e.now()
	var stale []Appointment
	err := e.storeCall(ctx, "find_expired", func(ctx context.Context) error {
		var err error
		stale, err = e.store.FindExpiredPending(ctx, now, expiryBatchSize)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, KindOf(err))
		return 0, err
	}

	expired := 0
	for i := range stale {
		if ctx.Err() != nil {
			return expired, abortedErr(ctx.Err())
		}
		if _, err := e.expire(ctx, &stale[i], now); err != nil {
			if !errors.Is(err, ErrInvalidTransition) {
				e.log.Warn("failed to expire appointment", zap.Stringer("appointment_id", stale[i].ID), zap.Error(err))
			}
			continue
		}
		expired++
	}

	span.SetAttributes(attribute.Int("expired", expired))
	return expired, nil
}

func (e *Engine) expire(ctx context.Context, a *Appointment, now time.Time) (*Appointment, error) {
	updated, err := e.cancel(ctx, a, CancelReasonExpired, now)
	if err != nil {
		return nil, err
	}
	e.emit(ctx, EventAppointmentExpired, updated, map[string]any{"expires_at": a.ExpiresAt})
	e.metrics.ObserveTransition(string(StatusCancelled))
	return updated, nil
}

func (e *Engine) cancel(ctx context.Context, a *Appointment, reason string, now time.Time) (*Appointment, error) {
	from, cancelled := a.Status, StatusCancelled
	return e.update(ctx, "cancel", a.ID, Patch{
		ExpectStatus: &from,
		Status:       &cancelled,
		CancelledAt:  &now,
		CancelReason: &reason,
		ClearExpiry:  true,
	})
}

// checkAvailability returns whether the booking relies on the override flag.
func (e *Engine) checkAvailability(doctorID uuid.UUID, start time.Time, durationMinutes int, override bool) (bool, error) {
	ok, err := e.avail.IsWithinAvailability(doctorID, start, durationMinutes)
	if err != nil {
		if errors.Is(err, availability.ErrInvalidDuration) {
			return false, invalidRequest("%v", err)
		}
		return false, err
	}
	if ok {
		return false, nil
	}
	if !override {
		return false, fmt.Errorf("%w: %s for %d minutes", ErrOutsideAvailability,
			start.In(e.avail.Location()).Format(time.RFC3339), durationMinutes)
	}
	return true, nil
}

// checkConflicts returns a *ConflictError when active appointments of the
// doctor other than exclude overlap [start, end).
func (e *Engine) checkConflicts(ctx context.Context, doctorID uuid.UUID, start, end time.Time, exclude uuid.UUID) error {
	var candidates []Appointment
	err := e.storeCall(ctx, "find_overlapping", func(ctx context.Context) error {
		var err error
		candidates, err = e.store.FindOverlapping(ctx, doctorID, start, end, ActiveStatuses)
		return err
	})
	if err != nil {
		return err
	}

	conflicts := conflicting(candidates, start, end, exclude)
	if len(conflicts) == 0 {
		return nil
	}
	return &ConflictError{ConflictingIDs: conflicts}
}

// conflictFromStore builds the conflict list after the store itself refused an
// overlapping write.
func (e *Engine) conflictFromStore(ctx context.Context, doctorID uuid.UUID, start, end time.Time, exclude uuid.UUID) error {
	if err := e.checkConflicts(context.WithoutCancel(ctx), doctorID, start, end, exclude); err != nil {
		return err
	}
	return &ConflictError{}
}

// conflicting re-filters store candidates and orders them by start then id.
func conflicting(candidates []Appointment, start, end time.Time, exclude uuid.UUID) []uuid.UUID {
	hits := make([]Appointment, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		if c.ID == exclude || !c.Status.Active() || !c.Overlaps(start, end) {
			continue
		}
		hits = append(hits, *c)
	}
	if len(hits) == 0 {
		return nil
	}

	sortByStart(hits)
	ids := make([]uuid.UUID, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return slices.Compact(ids)
}

func (e *Engine) insert(ctx context.Context, a *Appointment) (*Appointment, error) {
	var created *Appointment
	// once started the insert runs to completion regardless of the caller
	err := e.storeCall(context.WithoutCancel(ctx), "insert", func(ctx context.Context) error {
		var err error
		created, err = e.store.Insert(ctx, a)
		return err
	})
	if errors.Is(err, ErrOverlapRejected) {
		return nil, e.conflictFromStore(ctx, a.DoctorID, a.Start, a.End(), uuid.Nil)
	}
	return created, err
}

func (e *Engine) get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var a *Appointment
	err := e.storeCall(ctx, "get", func(ctx context.Context) error {
		var err error
		a, err = e.store.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (e *Engine) findByRequestID(ctx context.Context, requestID string) (*Appointment, error) {
	var a *Appointment
	err := e.storeCall(ctx, "find_by_request_id", func(ctx context.Context) error {
		var err error
		a, err = e.store.FindByRequestID(ctx, requestID)
		return err
	})
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, nil
	}
	return a, err
}

func (e *Engine) update(ctx context.Context, op string, id uuid.UUID, p Patch) (*Appointment, error) {
	var a *Appointment
	err := e.storeCall(ctx, "update", func(ctx context.Context) error {
		var err error
		a, err = e.store.Update(ctx, id, p)
		return err
	})
	if errors.Is(err, ErrPreconditionFailed) {
		return nil, fmt.Errorf("%w: appointment changed concurrently during %s", ErrInvalidTransition, op)
	}
	return a, err
}

// storeCall runs fn with the store timeout and maps infrastructure failures
// to ErrStoreUnavailable, or to ErrAborted when ctx itself was cancelled.
func (e *Engine) storeCall(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	started := time.Now()
	err := fn(callCtx)
	e.metrics.ObserveStoreOp(op, time.Since(started))

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAppointmentNotFound),
		errors.Is(err, ErrPreconditionFailed),
		errors.Is(err, ErrDuplicateRequest),
		errors.Is(err, ErrOverlapRejected):
		return err
	case callerGone(ctx):
		return abortedErr(ctx.Err())
	default:
		return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
	}
}

// callerGone reports whether ctx ended because the caller cancelled or timed
// out, as opposed to a lock lease running out underneath it.
func callerGone(ctx context.Context) bool {
	if ctx.Err() == nil {
		return false
	}
	cause := context.Cause(ctx)
	return errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded)
}

// withDoctorLock runs fn under the doctor lock. Errors from fn pass through;
// failures to obtain the lock become ErrAborted or ErrStoreUnavailable.
func (e *Engine) withDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	requested := time.Now()
	entered := false

	err := e.locker.WithDoctorLock(ctx, doctorID, func(lockCtx context.Context) error {
		entered = true
		e.metrics.ObserveLockWait(time.Since(requested))
		return fn(lockCtx)
	})
	if err == nil || entered {
		return err
	}
	if callerGone(ctx) {
		return abortedErr(ctx.Err())
	}
	return fmt.Errorf("%w: doctor lock: %v", ErrStoreUnavailable, err)
}

func (e *Engine) emit(ctx context.Context, eventType string, a *Appointment, payload map[string]any) {
	if e.events == nil {
		return
	}

	payload["status"] = string(a.Status)
	data, err := json.Marshal(payload)
	if err != nil {
		e.log.Error("failed to marshal event payload", zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	apptID, doctorID := a.ID, a.DoctorID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		DoctorID:      &doctorID,
		Payload:       data,
		CreatedAt:     e.now(),
	}

	// the operation has committed; the event must not depend on the caller staying
	evCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.storeTimeout)
	defer cancel()

	if err := e.events.RecordEvent(evCtx, ev); err != nil {
		e.metrics.EventDropped()
		e.log.Error("failed to record event",
			zap.String("event_type", eventType),
			zap.Stringer("appointment_id", a.ID),
			zap.Error(err))
	}
}

// finish records the outcome of an operation on its span, metrics and log.
func (e *Engine) finish(span trace.Span, op string, err error, fields ...zap.Field) {
	defer span.End()

	kind := KindOf(err)
	e.metrics.ObserveBooking(op, kind)
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, kind)

	fields = append(fields, zap.String("kind", kind), zap.Error(err))
	e.log.Log(levelFor(err), op+" rejected", fields...)
}

func levelFor(err error) zapcore.Level {
	switch {
	case errors.Is(err, ErrStoreUnavailable):
		return zapcore.ErrorLevel
	case UserFacing(err), errors.Is(err, ErrAborted):
		return zapcore.InfoLevel
	case KindOf(err) == KindInternal:
		return zapcore.ErrorLevel
	default:
		return zapcore.WarnLevel
	}
}

func validateInterval(doctorID uuid.UUID, start time.Time, durationMinutes int, now time.Time) error {
	if doctorID == uuid.Nil {
		return invalidRequest("doctor_id is required")
	}
	if durationMinutes <= 0 || durationMinutes > maxDurationMinutes {
		return invalidRequest("duration must be between 1 and %d minutes, got %d", maxDurationMinutes, durationMinutes)
	}
	if start.IsZero() {
		return invalidRequest("start is required")
	}
	if start.Before(now) {
		return invalidRequest("start %s is in the past", start.Format(time.RFC3339))
	}
	return nil
}

// beforeWrite is the last check inside the doctor lock. No write starts once the
// caller has gone or the lock lease has run out.
func beforeWrite(ctx, lockCtx context.Context) error {
	if err := ctx.Err(); err != nil {
		return abortedErr(err)
	}
	if lockCtx.Err() != nil {
		return fmt.Errorf("%w: doctor lock lost before write: %v", ErrStoreUnavailable, context.Cause(lockCtx))
	}
	return nil
}

func abortedErr(cause error) error {
	return fmt.Errorf("%w: %v", ErrAborted, cause)
}
