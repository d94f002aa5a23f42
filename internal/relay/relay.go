// Package relay mirrors the passing feed to an MQTT broker.
//
// The relay is an ordinary hub subscriber: it has its own ring buffer, so
// a slow or unreachable broker costs the relay dropped messages and never
// delays WebSocket clients. Passings go to {prefix}/passing/{transponder}
// without the retain flag; connectivity events go to {prefix}/status and
// are retained so a new MQTT consumer learns the current decoder state.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/nerrad567/rrconverter/internal/hub"
	"github.com/nerrad567/rrconverter/internal/infrastructure/metrics"
	"github.com/nerrad567/rrconverter/internal/infrastructure/mqtt"
	"github.com/nerrad567/rrconverter/internal/passing"
)

// Publisher is the MQTT publishing surface. *mqtt.Client satisfies it.
// PublishRetained uses the client's configured QoS.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
}

// Source hands out hub subscriptions. *hub.Hub satisfies it.
type Source interface {
	Subscribe() *hub.Subscription
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options configures a Relay.
type Options struct {
	Source    Source    // required
	Publisher Publisher // required
	Topics    mqtt.Topics
	QoS       byte
	Logger    Logger
	Metrics   *metrics.Metrics
}

// Stats counts relay activity.
type Stats struct {
	Published uint64
	Failed    uint64
	Dropped   uint64 // lost to the relay's own full buffer
}

// ErrInvalidOptions is returned by New when a required dependency is missing.
var ErrInvalidOptions = errors.New("relay: invalid options")

// Relay forwards hub messages to MQTT.
type Relay struct {
	opts Options
	sub  *hub.Subscription

	published atomic.Uint64
	failed    atomic.Uint64
}

// New subscribes to the source immediately so no message published after
// New returns is missed.
func New(opts Options) (*Relay, error) {
	if opts.Source == nil || opts.Publisher == nil {
		return nil, fmt.Errorf("%w: source and publisher are required", ErrInvalidOptions)
	}
	if opts.Topics == (mqtt.Topics{}) {
		opts.Topics = mqtt.NewTopics("")
	}
	return &Relay{opts: opts, sub: opts.Source.Subscribe()}, nil
}

// Run forwards messages until ctx is cancelled or the hub closes, then
// releases the subscription.
func (r *Relay) Run(ctx context.Context) error {
	defer r.sub.Close()

	for {
		msg, err := r.sub.Recv(ctx)
		if err != nil {
			if errors.Is(err, hub.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		r.forward(msg)
	}
}

func (r *Relay) forward(msg passing.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		r.failed.Add(1)
		r.logWarn("relay encode failed", "error", err)
		return
	}

	var topic string
	if msg.Kind == passing.KindPassing {
		topic = r.opts.Topics.Passing(msg.Passing.Transponder)
		err = r.opts.Publisher.Publish(topic, payload, r.opts.QoS, false)
	} else {
		topic = r.opts.Topics.Status()
		err = r.opts.Publisher.PublishRetained(topic, payload)
	}
	if err != nil {
		r.failed.Add(1)
		r.logWarn("relay publish failed", "topic", topic, "error", err)
		return
	}
	r.published.Add(1)
	r.opts.Metrics.RelayPublished()
}

// Stats returns relay counters.
func (r *Relay) Stats() Stats {
	return Stats{
		Published: r.published.Load(),
		Failed:    r.failed.Load(),
		Dropped:   r.sub.Dropped(),
	}
}

func (r *Relay) logWarn(msg string, keysAndValues ...any) {
	if r.opts.Logger != nil {
		r.opts.Logger.Warn(msg, keysAndValues...)
	}
}
