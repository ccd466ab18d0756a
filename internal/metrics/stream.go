// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// streamCommands counts commands handled by stream workers by reply status.
	streamCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audiostream_commands_total",
		Help: "Commands processed by stream workers by direction, command and reply status",
	}, []string{"direction", "command", "status"})

	streamTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audiostream_state_transitions_total",
		Help: "Stream lifecycle transitions by direction and state pair",
	}, []string{"direction", "from", "to"})

	// streamFrames counts frames moved through the data path. Frames moved
	// while no device is attached are synthesized and labelled connected=false.
	streamFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audiostream_frames_total",
		Help: "Frames transferred by stream workers",
	}, []string{"direction", "connected"})

	streamWorkerExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audiostream_worker_exits_total",
		Help: "Stream worker loop exits by reason",
	}, []string{"direction", "reason"})

	streamTransferDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "audiostream_transfer_duration_seconds",
		Help:    "Time spent in a single burst transfer",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.05, 0.1, 0.25},
	}, []string{"direction"})

	streamsOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "audiostream_streams_open",
		Help: "Streams with a running worker",
	}, []string{"direction"})

	queueErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audiostream_queue_errors_total",
		Help: "Transport errors reported by stream queues",
	}, []string{"queue", "kind"})
)

// RecordCommand counts a processed command.
func RecordCommand(direction, command, status string) {
	streamCommands.WithLabelValues(direction, command, status).Inc()
}

// RecordTransition counts a state change.
func RecordTransition(direction, from, to string) {
	streamTransitions.WithLabelValues(direction, from, to).Inc()
}

// AddFrames accounts transferred frames.
func AddFrames(direction string, connected bool, frames int) {
	if frames <= 0 {
		return
	}
	label := "false"
	if connected {
		label = "true"
	}
	streamFrames.WithLabelValues(direction, label).Add(float64(frames))
}

// RecordWorkerExit counts a worker loop exit.
func RecordWorkerExit(direction, reason string) {
	streamWorkerExits.WithLabelValues(direction, reason).Inc()
}

// ObserveTransfer records the time a burst transfer took.
func ObserveTransfer(direction string, d time.Duration) {
	streamTransferDuration.WithLabelValues(direction).Observe(d.Seconds())
}

// StreamOpened increments the open stream gauge.
func StreamOpened(direction string) {
	streamsOpen.WithLabelValues(direction).Inc()
}

// StreamClosed decrements the open stream gauge.
func StreamClosed(direction string) {
	streamsOpen.WithLabelValues(direction).Dec()
}

// RecordQueueError counts a queue transport error.
func RecordQueueError(queue, kind string) {
	queueErrors.WithLabelValues(queue, kind).Inc()
}
