package hub

import "github.com/nerrad567/rrconverter/internal/infrastructure/metrics"

// DefaultBufferSize is the per-subscriber ring capacity.
const DefaultBufferSize = 100

// Logger is the logging interface used by the hub.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures a Hub.
type Option func(*Hub)

// WithBufferSize sets the per-subscriber ring capacity. Values below 1 are ignored.
func WithBufferSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

// WithMetrics records publish, drop and subscriber counts into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) {
		h.metrics = m
	}
}

// WithLogger sets the logger for subscription lifecycle events.
func WithLogger(l Logger) Option {
	return func(h *Hub) {
		h.logger = l
	}
}
