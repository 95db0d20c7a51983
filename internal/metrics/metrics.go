// Package metrics exposes the relay's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the metrics set.
type Config struct {
	// Namespace is the metrics namespace (default: "midirelay").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the metrics set.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
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
		Namespace: "midirelay",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Skip and drop reasons used as label values.
const (
	ReasonNotOpen   = "not_open"
	ReasonQueueFull = "queue_full"
	ReasonHubBusy   = "hub_busy"
	ReasonBadLength = "bad_length"
	ReasonNotANote  = "not_a_note"
	UploadOK        = "ok"
	UploadRejected  = "rejected"
	UploadFailed    = "failed"
)

// Metrics holds the relay instruments. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	connectionsActive prometheus.Gauge
	helloSent         prometheus.Counter
	noteEvents        *prometheus.CounterVec
	framesSent        prometheus.Counter
	framesSkipped     *prometheus.CounterVec
	rawDropped        *prometheus.CounterVec
	uploads           *prometheus.CounterVec
	clientReconnects  prometheus.Counter
}

// New registers the relay metrics with the configured registry.
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)

	return &Metrics{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "connections_active",
			Help:        "Number of open relay WebSocket connections",
			ConstLabels: config.ConstLabels,
		}),

		helloSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "hello_sent_total",
			Help:        "Total number of hello handshakes queued",
			ConstLabels: config.ConstLabels,
		}),

		noteEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "note_events_total",
			Help:        "Total number of normalized note events broadcast, by kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		framesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "frames_sent_total",
			Help:        "Total number of note frames queued to connections",
			ConstLabels: config.ConstLabels,
		}),

		framesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "frames_skipped_total",
			Help:        "Total number of note frames not delivered to a connection, by reason",
			ConstLabels: config.ConstLabels,
		}, []string{"reason"}),

		rawDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "raw_dropped_total",
			Help:        "Total number of raw hardware messages dropped before normalization, by reason",
			ConstLabels: config.ConstLabels,
		}, []string{"reason"}),

		uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "uploads_total",
			Help:        "Total number of song uploads, by status",
			ConstLabels: config.ConstLabels,
		}, []string{"status"}),

		clientReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "client_reconnects_total",
			Help:        "Total number of scheduled client reconnection attempts",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// ConnectionOpened records a connection entering the open set.
func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connectionsActive.Inc()
	}
}

// ConnectionClosed records a connection leaving the open set.
func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connectionsActive.Dec()
	}
}

// HelloSent records a queued hello message.
func (m *Metrics) HelloSent() {
	if m != nil {
		m.helloSent.Inc()
	}
}

// NoteEvent records a broadcast note event of the given kind ("on"/"off").
func (m *Metrics) NoteEvent(kind string) {
	if m != nil {
		m.noteEvents.WithLabelValues(kind).Inc()
	}
}

// FrameSent records one frame queued to one connection.
func (m *Metrics) FrameSent() {
	if m != nil {
		m.framesSent.Inc()
	}
}

// FrameSkipped records one frame not delivered to one connection.
func (m *Metrics) FrameSkipped(reason string) {
	if m != nil {
		m.framesSkipped.WithLabelValues(reason).Inc()
	}
}

// RawDropped records a raw hardware message that produced no event.
func (m *Metrics) RawDropped(reason string) {
	if m != nil {
		m.rawDropped.WithLabelValues(reason).Inc()
	}
}

// Upload records the outcome of a song upload.
func (m *Metrics) Upload(status string) {
	if m != nil {
		m.uploads.WithLabelValues(status).Inc()
	}
}

// ClientReconnect records a scheduled client reconnection attempt.
func (m *Metrics) ClientReconnect() {
	if m != nil {
		m.clientReconnects.Inc()
	}
}
