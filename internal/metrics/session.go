package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audiostream_session_runs_total",
		Help: "Daemon sessions by direction and result",
	}, []string{"direction", "result"})

	sessionReopens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audiostream_session_reopens_total",
		Help: "Streams reopened after entering ERROR",
	}, []string{"direction"})

	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "audiostream_circuit_breaker_state",
		Help: "Circuit breaker state by component (1 for the active state, 0 otherwise)",
	}, []string{"component", "state"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audiostream_circuit_breaker_trips_total",
		Help: "Total number of circuit breaker trips (transitions to open state)",
	}, []string{"component", "reason"})

	eventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audiostream_event_subscribers",
		Help: "Connected websocket event subscribers",
	})
)

// RecordSessionRun counts a finished session.
func RecordSessionRun(direction string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	sessionRuns.WithLabelValues(direction, result).Inc()
}

// RecordSessionReopen counts a stream reopen after a fatal error.
func RecordSessionReopen(direction string) {
	sessionReopens.WithLabelValues(direction).Inc()
}

var circuitStates = []string{"closed", "half-open", "open"}

// SetCircuitBreakerState records the active circuit breaker state for a component.
func SetCircuitBreakerState(component, state string) {
	for _, s := range circuitStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		circuitBreakerState.WithLabelValues(component, s).Set(value)
	}
}

// RecordCircuitBreakerTrip increments the trip counter when a breaker opens.
func RecordCircuitBreakerTrip(component, reason string) {
	circuitBreakerTrips.WithLabelValues(component, reason).Inc()
}

// SetEventSubscribers records the number of live event feed clients.
func SetEventSubscribers(n int) {
	eventSubscribers.Set(float64(n))
}
