package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/firefly-protocol/firefly-go/pkg/eventqueue"
	"github.com/firefly-protocol/firefly-go/pkg/protocol"
	"github.com/firefly-protocol/firefly-go/pkg/transport"
)

// Config configures a Collector.
type Config struct {
	// Namespace is the metrics namespace (default: "firefly").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for event execution time.
	// Default: exponential from 10µs to ~160ms.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures a Collector.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "firefly",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Collector holds the firefly Prometheus metrics.
type Collector struct {
	queueDepth     prometheus.Gauge
	eventsQueued   *prometheus.CounterVec
	eventsExecuted *prometheus.CounterVec
	eventDuration  *prometheus.HistogramVec

	channelsOpened    prometheus.Counter
	channelsClosed    prometheus.Counter
	openChannels      prometheus.Gauge
	importantSent     prometheus.Counter
	importantDeferred prometheus.Counter
	importantAcked    prometheus.Counter
	duplicateSamples  prometheus.Counter
	protocolErrors    *prometheus.CounterVec

	datagramsSent     prometheus.Counter
	datagramsReceived prometheus.Counter
	bytesSent         prometheus.Counter
	bytesReceived     prometheus.Counter
	resends           prometheus.Counter
	resendsExhausted  prometheus.Counter
}

// New registers the firefly metrics and returns their Collector.
// Registering twice on the same registry panics, as with promauto.
func New(opts ...Option) *Collector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}

	return &Collector{
		queueDepth: gauge("queue_depth", "Number of events waiting in the event queue"),

		eventsQueued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "events_queued_total",
			Help:        "Total number of events added to the queue",
			ConstLabels: config.ConstLabels,
		}, []string{"priority"}),

		eventsExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "events_executed_total",
			Help:        "Total number of events executed",
			ConstLabels: config.ConstLabels,
		}, []string{"priority", "status"}),

		eventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "event_duration_seconds",
			Help:        "Event execution time in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"priority"}),

		channelsOpened:    counter("channels_opened_total", "Total number of channels that completed the handshake"),
		channelsClosed:    counter("channels_closed_total", "Total number of channels closed"),
		openChannels:      gauge("open_channels", "Number of open channels"),
		importantSent:     counter("important_sent_total", "Total number of important samples sent"),
		importantDeferred: counter("important_deferred_total", "Total number of important sends queued behind an outstanding one"),
		importantAcked:    counter("important_acked_total", "Total number of important samples acknowledged"),
		duplicateSamples:  counter("duplicate_samples_total", "Total number of duplicate important samples received"),

		protocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "protocol_errors_total",
			Help:        "Total protocol errors by kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		datagramsSent:     counter("datagrams_sent_total", "Total number of datagrams written"),
		datagramsReceived: counter("datagrams_received_total", "Total number of datagrams read"),
		bytesSent:         counter("sent_bytes_total", "Total datagram bytes written"),
		bytesReceived:     counter("received_bytes_total", "Total datagram bytes read"),
		resends:           counter("resends_total", "Total number of important datagram retransmissions"),
		resendsExhausted:  counter("resends_exhausted_total", "Total number of connections closed after exhausting retries"),
	}
}

// EventQueued implements eventqueue.Observer.
func (c *Collector) EventQueued(prio eventqueue.Priority, depth int) {
	c.eventsQueued.WithLabelValues(prio.String()).Inc()
	c.queueDepth.Set(float64(depth))
}

// EventExecuted implements eventqueue.Observer.
func (c *Collector) EventExecuted(prio eventqueue.Priority, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.eventsExecuted.WithLabelValues(prio.String(), status).Inc()
	c.eventDuration.WithLabelValues(prio.String()).Observe(elapsed.Seconds())
}

func (c *Collector) ChannelOpened() {
	c.channelsOpened.Inc()
	c.openChannels.Inc()
}

func (c *Collector) ChannelClosed() {
	c.channelsClosed.Inc()
	c.openChannels.Dec()
}

func (c *Collector) ImportantSent()     { c.importantSent.Inc() }
func (c *Collector) ImportantDeferred() { c.importantDeferred.Inc() }
func (c *Collector) ImportantAcked()    { c.importantAcked.Inc() }
func (c *Collector) DuplicateSample()   { c.duplicateSamples.Inc() }

func (c *Collector) ProtocolError(kind string) {
	c.protocolErrors.WithLabelValues(kind).Inc()
}

func (c *Collector) DatagramSent(size int) {
	c.datagramsSent.Inc()
	c.bytesSent.Add(float64(size))
}

func (c *Collector) DatagramReceived(size int) {
	c.datagramsReceived.Inc()
	c.bytesReceived.Add(float64(size))
}

func (c *Collector) Resent()          { c.resends.Inc() }
func (c *Collector) ResendExhausted() { c.resendsExhausted.Inc() }

var (
	_ eventqueue.Observer = (*Collector)(nil)
	_ protocol.Metrics    = (*Collector)(nil)
	_ transport.Metrics   = (*Collector)(nil)
)
