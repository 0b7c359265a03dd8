package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firefly-protocol/firefly-go/pkg/eventqueue"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	require.NotNil(t, m.Counter, "expected counter metric")
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	require.NotNil(t, m.Gauge, "expected gauge metric")
	return m.GetGauge().GetValue()
}

func histogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := o.(prometheus.Metric)
	require.True(t, ok, "observer %T is not a metric", o)
	var m dto.Metric
	require.NoError(t, metric.Write(&m))
	require.NotNil(t, m.Histogram, "expected histogram metric")
	return m.GetHistogram().GetSampleCount()
}

func TestQueueObserver(t *testing.T) {
	c := New(WithRegistry(prometheus.NewRegistry()))

	c.EventQueued(eventqueue.PriorityHigh, 1)
	c.EventQueued(eventqueue.PriorityLow, 2)
	c.EventExecuted(eventqueue.PriorityHigh, time.Millisecond, nil)
	c.EventExecuted(eventqueue.PriorityLow, time.Millisecond, errors.New("boom"))

	assert.Equal(t, 2.0, gaugeValue(t, c.queueDepth))
	assert.Equal(t, 1.0, counterValue(t, c.eventsQueued.WithLabelValues("HIGH")))
	assert.Equal(t, 1.0, counterValue(t, c.eventsExecuted.WithLabelValues("HIGH", "success")))
	assert.Equal(t, 1.0, counterValue(t, c.eventsExecuted.WithLabelValues("LOW", "error")))
	assert.Equal(t, uint64(1), histogramCount(t, c.eventDuration.WithLabelValues("LOW")))
}

func TestProtocolCounters(t *testing.T) {
	c := New(WithRegistry(prometheus.NewRegistry()))

	c.ChannelOpened()
	c.ChannelOpened()
	c.ChannelClosed()
	c.ImportantSent()
	c.ImportantDeferred()
	c.ImportantAcked()
	c.DuplicateSample()
	c.ProtocolError("ack")
	c.ProtocolError("ack")

	assert.Equal(t, 2.0, counterValue(t, c.channelsOpened))
	assert.Equal(t, 1.0, counterValue(t, c.channelsClosed))
	assert.Equal(t, 1.0, gaugeValue(t, c.openChannels))
	assert.Equal(t, 1.0, counterValue(t, c.importantSent))
	assert.Equal(t, 1.0, counterValue(t, c.importantDeferred))
	assert.Equal(t, 1.0, counterValue(t, c.importantAcked))
	assert.Equal(t, 1.0, counterValue(t, c.duplicateSamples))
	assert.Equal(t, 2.0, counterValue(t, c.protocolErrors.WithLabelValues("ack")))
}

func TestTransportCounters(t *testing.T) {
	c := New(WithRegistry(prometheus.NewRegistry()))

	c.DatagramSent(10)
	c.DatagramSent(5)
	c.DatagramReceived(7)
	c.Resent()
	c.ResendExhausted()

	assert.Equal(t, 2.0, counterValue(t, c.datagramsSent))
	assert.Equal(t, 15.0, counterValue(t, c.bytesSent))
	assert.Equal(t, 1.0, counterValue(t, c.datagramsReceived))
	assert.Equal(t, 7.0, counterValue(t, c.bytesReceived))
	assert.Equal(t, 1.0, counterValue(t, c.resends))
	assert.Equal(t, 1.0, counterValue(t, c.resendsExhausted))
}

func TestOptionsShapeNames(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(
		WithRegistry(reg),
		WithNamespace("ff"),
		WithSubsystem("node"),
		WithConstLabels(prometheus.Labels{"node": "a"}),
		WithBuckets([]float64{1}),
	)
	c.Resent()

	families, err := reg.Gather()
	require.NoError(t, err)

	var found *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "ff_node_resends_total" {
			found = f
		}
	}
	require.NotNil(t, found, "ff_node_resends_total not registered")
	require.Len(t, found.GetMetric(), 1)
	labels := found.GetMetric()[0].GetLabel()
	require.Len(t, labels, 1)
	assert.Equal(t, "node", labels[0].GetName())
	assert.Equal(t, "a", labels[0].GetValue())
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(WithRegistry(reg))
	assert.Panics(t, func() { New(WithRegistry(reg)) })
}
