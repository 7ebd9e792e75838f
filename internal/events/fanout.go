package events

import (
	"context"
	"errors"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

// Fanout records every event in each sink in order. All sinks are tried; the
// returned error joins the failures.
type Fanout []appointment.EventSink

func (f Fanout) RecordEvent(ctx context.Context, ev appointment.EventLog) error {
	var errs []error
	for _, sink := range f {
		if err := sink.RecordEvent(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
