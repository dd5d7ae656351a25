// Package metrics exposes Prometheus counters for a client session.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons for FramesDropped.
const (
	ReasonMalformed    = "malformed"
	ReasonUnknownTag   = "unknown_tag"
	ReasonPayload      = "payload_mismatch"
	ReasonUnroutable   = "unroutable"
	ReasonTruncatedEOF = "truncated_eof"
)

// Session holds the counters of one client session.
type Session struct {
	FramesReceived   prometheus.Counter
	FramesDropped    *prometheus.CounterVec
	Dispatched       *prometheus.CounterVec
	HandlerPanics    prometheus.Counter
	EnvelopesSent    *prometheus.CounterVec
	SendsDropped     *prometheus.CounterVec
	StateTransitions *prometheus.CounterVec
}

// New registers session counters on reg. A nil reg gets a private registry,
// which keeps tests and multiple sessions from colliding.
func New(reg prometheus.Registerer) *Session {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Session{
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "arena",
			Subsystem: "client",
			Name:      "frames_received_total",
			Help:      "Complete frames assembled from the stream",
		}),
		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Subsystem: "client",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped before reaching a handler",
		}, []string{"reason"}),
		Dispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Subsystem: "client",
			Name:      "envelopes_dispatched_total",
			Help:      "Envelopes routed to their sink",
		}, []string{"type"}),
		HandlerPanics: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "arena",
			Subsystem: "client",
			Name:      "handler_panics_total",
			Help:      "Handlers that panicked during dispatch",
		}),
		EnvelopesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Subsystem: "client",
			Name:      "envelopes_sent_total",
			Help:      "Envelopes written to the transport",
		}, []string{"type"}),
		SendsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Subsystem: "client",
			Name:      "sends_dropped_total",
			Help:      "Outbound envelopes dropped because the writer queue was full or closed",
		}, []string{"type"}),
		StateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena",
			Subsystem: "client",
			Name:      "state_transitions_total",
			Help:      "Session state machine transitions",
		}, []string{"state"}),
	}
}
