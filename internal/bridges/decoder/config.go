package decoder

import (
	"context"
	"time"

	"github.com/nerrad567/rrconverter/internal/connectivity"
	"github.com/nerrad567/rrconverter/internal/infrastructure/metrics"
	"github.com/nerrad567/rrconverter/internal/passing"
)

// Default timings for the decoder session.
const (
	// DefaultPort is the decoder's TCP port.
	DefaultPort = 3601

	defaultConnectTimeout = 5 * time.Second
	defaultReconnectDelay = 5 * time.Second
	defaultPingInterval   = 30 * time.Second
	defaultWriteTimeout   = 5 * time.Second
)

// AddressResolver supplies the host:port of the decoder.
type AddressResolver interface {
	Resolve(ctx context.Context) (string, error)
}

// invalidator is implemented by resolvers that cache a discovered address.
type invalidator interface {
	Invalidate()
}

// Publisher receives normalised messages. *hub.Hub satisfies it.
type Publisher interface {
	Publish(msg passing.Message) (int, error)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Config holds the session's dependencies and timings.
//
// Resolver, Publisher and State are required. Zero timings take defaults.
type Config struct {
	Resolver  AddressResolver
	Publisher Publisher
	State     connectivity.State
	Logger    Logger
	Metrics   *metrics.Metrics

	ConnectTimeout time.Duration
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	WriteTimeout   time.Duration
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = defaultReconnectDelay
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
}
