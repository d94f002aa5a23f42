package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rrconverter"

// Source label values.
const (
	SourceDecoder = "decoder"
	SourceJSON    = "json"
)

// Metrics holds every collector rrconverter records into.
type Metrics struct {
	registry *prometheus.Registry

	passings        *prometheus.CounterVec
	parseErrors     *prometheus.CounterVec
	connects        prometheus.Counter
	connectFailures prometheus.Counter
	sourceConnected prometheus.Gauge

	hubPublished   *prometheus.CounterVec
	hubDropped     prometheus.Counter
	hubSubscribers prometheus.Gauge

	wsClients      prometheus.Gauge
	relayPublished prometheus.Counter
}

// New creates a Metrics instance on a fresh registry.
//
// Parameters:
//   - withRuntime: also register the Go runtime and process collectors
//
// Returns:
//   - *Metrics: ready for use; never nil
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		passings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passings_total",
			Help:      "Passings normalised and handed to the hub.",
		}, []string{"source"}),
		parseErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Input lines dropped because they could not be normalised.",
		}, []string{"source"}),
		connects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decoder_connects_total",
			Help:      "Successful decoder sessions (reached streaming).",
		}),
		connectFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decoder_connect_failures_total",
			Help:      "Failed decoder address resolutions or dials.",
		}),
		sourceConnected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_connected",
			Help:      "1 while the timing source is connected.",
		}),
		hubPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_published_total",
			Help:      "Messages published to the hub.",
		}, []string{"kind"}),
		hubDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_dropped_total",
			Help:      "Messages discarded from full subscriber buffers.",
		}),
		hubSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hub_subscribers",
			Help:      "Current hub subscriptions.",
		}),
		wsClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected WebSocket feed clients.",
		}),
		relayPublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_published_total",
			Help:      "Messages mirrored to MQTT.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// PassingReceived counts a normalised passing from source.
func (m *Metrics) PassingReceived(source string) {
	if m == nil {
		return
	}
	m.passings.WithLabelValues(source).Inc()
}

// ParseError counts a dropped input line from source.
func (m *Metrics) ParseError(source string) {
	if m == nil {
		return
	}
	m.parseErrors.WithLabelValues(source).Inc()
}

// DecoderConnected counts a decoder session reaching streaming.
func (m *Metrics) DecoderConnected() {
	if m == nil {
		return
	}
	m.connects.Inc()
}

// DecoderConnectFailed counts a failed resolve or dial.
func (m *Metrics) DecoderConnectFailed() {
	if m == nil {
		return
	}
	m.connectFailures.Inc()
}

// SetSourceConnected records the connectivity flag.
func (m *Metrics) SetSourceConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.sourceConnected.Set(1)
		return
	}
	m.sourceConnected.Set(0)
}

// HubPublished counts one publish of the given message kind.
func (m *Metrics) HubPublished(kind string) {
	if m == nil {
		return
	}
	m.hubPublished.WithLabelValues(kind).Inc()
}

// HubDropped counts a message evicted by the drop-oldest policy.
func (m *Metrics) HubDropped() {
	if m == nil {
		return
	}
	m.hubDropped.Inc()
}

// SetHubSubscribers records the current subscription count.
func (m *Metrics) SetHubSubscribers(n int) {
	if m == nil {
		return
	}
	m.hubSubscribers.Set(float64(n))
}

// WebSocketClientAdded increments the feed client gauge.
func (m *Metrics) WebSocketClientAdded() {
	if m == nil {
		return
	}
	m.wsClients.Inc()
}

// WebSocketClientRemoved decrements the feed client gauge.
func (m *Metrics) WebSocketClientRemoved() {
	if m == nil {
		return
	}
	m.wsClients.Dec()
}

// RelayPublished counts a message mirrored to MQTT.
func (m *Metrics) RelayPublished() {
	if m == nil {
		return
	}
	m.relayPublished.Inc()
}
