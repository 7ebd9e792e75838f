package appointment

import (
	"bytes"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store, used by tests and by the memory backend.
// It returns copies so callers never alias stored records.
type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[uuid.UUID]*Appointment
	byDoctor  map[uuid.UUID][]uuid.UUID
	byRequest map[string]uuid.UUID
	events    []EventLog
	nextEvent int64
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[uuid.UUID]*Appointment),
		byDoctor:  make(map[uuid.UUID][]uuid.UUID),
		byRequest: make(map[string]uuid.UUID),
		now:       time.Now,
	}
}

func (s *MemoryStore) Insert(ctx context.Context, a *Appointment) (*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if a.RequestID != "" {
		if _, ok := s.byRequest[a.RequestID]; ok {
			return nil, ErrDuplicateRequest
		}
	}

	stored := clone(a)
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	now := s.now()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.byID[stored.ID] = stored
	s.byDoctor[stored.DoctorID] = append(s.byDoctor[stored.DoctorID], stored.ID)
	if stored.RequestID != "" {
		s.byRequest[stored.RequestID] = stored.ID
	}
	return clone(stored), nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return clone(a), nil
}

func (s *MemoryStore) FindOverlapping(ctx context.Context, doctorID uuid.UUID, start, end time.Time, statuses []Status) ([]Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Appointment
	for _, id := range s.byDoctor[doctorID] {
		a := s.byID[id]
		if slices.Contains(statuses, a.Status) && a.Overlaps(start, end) {
			out = append(out, *clone(a))
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, id uuid.UUID, p Patch) (*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if p.ExpectStatus != nil && a.Status != *p.ExpectStatus {
		return nil, ErrPreconditionFailed
	}

	p.apply(a)
	a.UpdatedAt = s.now()
	return clone(a), nil
}

func (s *MemoryStore) List(ctx context.Context, q ListQuery) ([]Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Appointment
	for _, a := range s.byID {
		if q.DoctorID != nil && a.DoctorID != *q.DoctorID {
			continue
		}
		if q.PatientID != nil && a.PatientID != *q.PatientID {
			continue
		}
		if a.Start.Before(q.From) || !a.Start.Before(q.To) {
			continue
		}
		if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, a.Status) {
			continue
		}
		out = append(out, *clone(a))
	}
	sortByStart(out)
	return out, nil
}

func (s *MemoryStore) FindByRequestID(ctx context.Context, requestID string) (*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byRequest[requestID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *MemoryStore) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Appointment
	for _, a := range s.byID {
		if a.Status == StatusPending && a.ExpiresAt != nil && a.ExpiresAt.Before(now) {
			out = append(out, *clone(a))
		}
	}
	sortByStart(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) RecordEvent(_ context.Context, ev EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextEvent++
	ev.ID = s.nextEvent
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now()
	}
	s.events = append(s.events, ev)
	return nil
}

// Events returns the recorded events in order.
func (s *MemoryStore) Events() []EventLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}

func clone(a *Appointment) *Appointment {
	c := *a
	if a.ExpiresAt != nil {
		t := *a.ExpiresAt
		c.ExpiresAt = &t
	}
	if a.CancelledAt != nil {
		t := *a.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}

func sortByStart(appts []Appointment) {
	slices.SortFunc(appts, func(a, b Appointment) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	})
}

func compareIDs(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}
