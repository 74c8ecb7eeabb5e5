package screening

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screening_status_transitions_total",
		Help: "Number of session status transitions",
	}, []string{"from", "to"})

	residentSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "screening_resident_sessions",
		Help: "Sessions currently held in the in-memory registry",
	})

	projectionistsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "screening_projectionists_running",
		Help: "Projectionist loops currently running",
	})

	syncPulsesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "screening_sync_pulses_total",
		Help: "Sync pulses broadcast to viewing rooms",
	})

	storeWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screening_store_write_failures_total",
		Help: "Failed durable status writes by operation",
	}, []string{"op"})

	chatMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screening_chat_messages_total",
		Help: "Chat messages by outcome",
	}, []string{"outcome"}) // accepted, dropped
)

func recordTransition(from, to string) {
	transitionsTotal.WithLabelValues(from, to).Inc()
}
