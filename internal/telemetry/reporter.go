package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nerrad567/rrconverter/internal/connectivity"
	"github.com/nerrad567/rrconverter/internal/hub"
	"github.com/nerrad567/rrconverter/internal/passing"
)

// Measurement names.
const (
	MeasurementPipeline     = "pipeline"
	MeasurementConnectivity = "connectivity"
)

// DefaultInterval is used when Options.Interval is zero.
const DefaultInterval = 10 * time.Second

// ErrInvalidOptions is returned by New when a required dependency is missing.
var ErrInvalidOptions = errors.New("telemetry: invalid options")

// Writer accepts points. *influxdb.Client satisfies it.
type Writer interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any)
}

// Hub is the part of *hub.Hub the reporter needs.
type Hub interface {
	Subscribe() *hub.Subscription
	Stats() hub.Stats
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options configures a Reporter.
type Options struct {
	Hub      Hub    // required
	Writer   Writer // required
	State    connectivity.State
	Mode     string // tag value, "decoder" or "json"
	Interval time.Duration
	Logger   Logger
}

// Reporter periodically writes pipeline health to a Writer.
type Reporter struct {
	opts Options
	sub  *hub.Subscription

	// passings seen since the last pipeline point
	passings atomic.Int64
}

// New creates a Reporter and subscribes it to the hub.
func New(opts Options) (*Reporter, error) {
	if opts.Hub == nil || opts.Writer == nil {
		return nil, fmt.Errorf("%w: hub and writer are required", ErrInvalidOptions)
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Reporter{opts: opts, sub: opts.Hub.Subscribe()}, nil
}

// Run consumes the subscription and writes points until ctx is cancelled
// or the hub closes. A final pipeline point is written on the way out.
//
// Run returns only after the consuming goroutine has stopped, so no point is
// written once it has returned.
func (r *Reporter) Run(ctx context.Context) error {
	consumed := make(chan struct{})
	defer func() {
		r.sub.Close()
		<-consumed
		r.report()
	}()

	go func() {
		defer close(consumed)
		r.consume(ctx)
	}()

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.sub.Done():
			return nil
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *Reporter) consume(ctx context.Context) {
	for {
		msg, err := r.sub.Recv(ctx)
		if err != nil {
			return
		}
		switch msg.Kind {
		case passing.KindPassing:
			r.passings.Add(1)
		case passing.KindStatus:
			r.opts.Writer.WritePoint(MeasurementConnectivity, r.tags(), map[string]any{
				"connected": msg.Event == passing.EventConnected,
			})
		}
	}
}

func (r *Reporter) report() {
	stats := r.opts.Hub.Stats()
	fields := map[string]any{
		"subscribers": int64(stats.Subscribers),
		"published":   int64(stats.Published),
		"dropped":     int64(stats.Dropped),
		"passings":    r.passings.Swap(0),
	}
	if r.opts.State != nil {
		fields["connected"] = r.opts.State.IsConnected()
	}
	r.opts.Writer.WritePoint(MeasurementPipeline, r.tags(), fields)

	if r.opts.Logger != nil {
		r.opts.Logger.Debug("telemetry reported", "subscribers", stats.Subscribers, "passings", fields["passings"])
	}
}

func (r *Reporter) tags() map[string]string {
	if r.opts.Mode == "" {
		return nil
	}
	return map[string]string{"mode": r.opts.Mode}
}
