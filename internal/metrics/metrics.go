// Package metrics holds the prometheus collectors for a client session.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "parley"

// Metrics groups the client's collectors.
type Metrics struct {
	eventsReceived *prometheus.CounterVec
	eventsSent     *prometheus.CounterVec
	eventsDropped  *prometheus.CounterVec
	sendFailures   prometheus.Counter
	persistWrites  *prometheus.CounterVec
	hydrations     *prometheus.CounterVec
	reconnects     *prometheus.CounterVec
	connected      prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Events received from the event channel by name.",
		}, []string{"event"}),
		eventsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_sent_total",
			Help:      "Events written to the event channel by name.",
		}, []string{"event"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped because no connection was available.",
		}, []string{"event"}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Optimistic sends that were never confirmed.",
		}),
		persistWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_writes_total",
			Help:      "Persist attempts by target and result.",
		}, []string{"target", "result"}),
		hydrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hydrations_total",
			Help:      "Startup hydrations by the source that was used.",
		}, []string{"source"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Reconnect attempts by result.",
		}, []string{"result"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while the event channel is connected.",
		}),
		gatherer: reg,
	}
	reg.MustRegister(
		m.eventsReceived,
		m.eventsSent,
		m.eventsDropped,
		m.sendFailures,
		m.persistWrites,
		m.hydrations,
		m.reconnects,
		m.connected,
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) EventReceived(event string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(event).Inc()
}

func (m *Metrics) EventSent(event string) {
	if m == nil {
		return
	}
	m.eventsSent.WithLabelValues(event).Inc()
}

func (m *Metrics) EventDropped(event string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(event).Inc()
}

func (m *Metrics) SendFailed() {
	if m == nil {
		return
	}
	m.sendFailures.Inc()
}

// PersistWrite records one persist attempt against "mirror" or "remote".
func (m *Metrics) PersistWrite(target string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.persistWrites.WithLabelValues(target, result).Inc()
}

func (m *Metrics) Hydrated(source string) {
	if m == nil {
		return
	}
	m.hydrations.WithLabelValues(source).Inc()
}

func (m *Metrics) Reconnect(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.reconnects.WithLabelValues(result).Inc()
}

func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}
