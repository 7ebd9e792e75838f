package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("clinic", reg)

	c.ObserveBooking("book", "ok")
	c.ObserveBooking("book", "ok")
	c.ObserveBooking("book", "slot_conflict")
	c.ObserveTransition("confirmed")
	c.EventDropped()
	c.ObserveRequest(http.MethodPost, "/appointments", http.StatusCreated, 3*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.BookingsTotal.WithLabelValues("book", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.BookingsTotal.WithLabelValues("book", "slot_conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.TransitionsTotal.WithLabelValues("confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.EventsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RequestsTotal.WithLabelValues("POST", "/appointments", "201")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveBooking("book", "ok")
		c.ObserveLockWait(time.Second)
		c.ObserveStoreOp("insert", time.Millisecond)
		c.EventDropped()
	})
}
