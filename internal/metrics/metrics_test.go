package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCommand(t *testing.T) {
	before := testutil.ToFloat64(streamCommands.WithLabelValues("output", "burst", "OK"))
	RecordCommand("output", "burst", "OK")
	RecordCommand("output", "burst", "OK")
	after := testutil.ToFloat64(streamCommands.WithLabelValues("output", "burst", "OK"))
	assert.Equal(t, before+2, after)
}

func TestAddFramesIgnoresNonPositive(t *testing.T) {
	c := streamFrames.WithLabelValues("input", "false")
	before := testutil.ToFloat64(c)
	AddFrames("input", false, 0)
	AddFrames("input", false, -3)
	AddFrames("input", false, 480)
	assert.Equal(t, before+480, testutil.ToFloat64(c))
}

func TestOpenStreamsGauge(t *testing.T) {
	g := streamsOpen.WithLabelValues("output")
	before := testutil.ToFloat64(g)
	StreamOpened("output")
	StreamOpened("output")
	StreamClosed("output")
	assert.Equal(t, before+1, testutil.ToFloat64(g))
}

func TestObserveTransfer(t *testing.T) {
	ObserveTransfer("input", 3*time.Millisecond)

	m := &dto.Metric{}
	obs, err := streamTransferDuration.GetMetricWithLabelValues("input")
	require.NoError(t, err)
	require.NoError(t, obs.(prometheus.Histogram).Write(m))
	assert.GreaterOrEqual(t, m.GetHistogram().GetSampleCount(), uint64(1))
}

func TestSetCircuitBreakerState(t *testing.T) {
	SetCircuitBreakerState("session", "open")
	assert.Equal(t, 1.0, testutil.ToFloat64(circuitBreakerState.WithLabelValues("session", "open")))
	assert.Equal(t, 0.0, testutil.ToFloat64(circuitBreakerState.WithLabelValues("session", "closed")))
	SetCircuitBreakerState("session", "closed")
	assert.Equal(t, 0.0, testutil.ToFloat64(circuitBreakerState.WithLabelValues("session", "open")))
}
