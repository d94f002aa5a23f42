package jsonfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/rrconverter/internal/bridges/framing"
	"github.com/nerrad567/rrconverter/internal/connectivity"
	"github.com/nerrad567/rrconverter/internal/infrastructure/metrics"
	"github.com/nerrad567/rrconverter/internal/passing"
)

// DefaultPort is the default JSON ingestion port.
const DefaultPort = 3602

// maxLineSize bounds one JSON line.
const maxLineSize = 64 * 1024

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

// Options configures a Listener.
type Options struct {
	// Address is the host:port to bind, e.g. "0.0.0.0:3602".
	Address string

	Publisher Publisher          // required
	State     connectivity.State // required
	Logger    Logger
	Metrics   *metrics.Metrics

	// Debug logs every raw input line and normalised record at debug level.
	Debug bool

	// Now overrides the clock used for the today's-date substitution.
	Now func() time.Time
}

// Listener accepts JSON-line connections and publishes their passings.
type Listener struct {
	opts       Options
	normalizer passing.JSONNormalizer

	started atomic.Bool

	mu    sync.Mutex
	ln    net.Listener
	ready chan struct{}
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewListener validates opts and creates a Listener.
func NewListener(opts Options) (*Listener, error) {
	if opts.Publisher == nil {
		return nil, fmt.Errorf("%w: publisher is required", ErrInvalidOptions)
	}
	if opts.State == nil {
		return nil, fmt.Errorf("%w: connectivity state is required", ErrInvalidOptions)
	}
	if opts.Address == "" {
		opts.Address = fmt.Sprintf("0.0.0.0:%d", DefaultPort)
	}

	return &Listener{
		opts:       opts,
		normalizer: passing.JSONNormalizer{Now: opts.Now},
		ready:      make(chan struct{}),
		conns:      make(map[net.Conn]struct{}),
	}, nil
}

// Run binds the listen address and serves connections until ctx is
// cancelled. A Listener runs once.
//
// Returns:
//   - error: ErrBindFailed if the address cannot be bound; ErrAlreadyStarted
//     on a second call; nil after ctx is cancelled and every connection
//     handler has finished
func (l *Listener) Run(ctx context.Context) error {
	if l.started.Swap(true) {
		return ErrAlreadyStarted
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.opts.Address)
	if err != nil {
		l.logError("json listener bind failed", "address", l.opts.Address, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrBindFailed, l.opts.Address, err)
	}

	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()
	close(l.ready)
	l.logInfo("json listener started", "address", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() {
		ln.Close()
		l.closeConns()
	})
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			l.logWarn("json accept failed", "error", err)
			continue
		}

		if !l.track(conn) {
			conn.Close()
			break
		}
		l.wg.Add(1)
		go l.handle(conn)
	}

	l.closeConns()
	l.wg.Wait()
	l.logInfo("json listener stopped")
	return nil
}

// Addr returns the bound address, blocking until Run has bound it.
// It returns nil if ctx ends first.
func (l *Listener) Addr(ctx context.Context) net.Addr {
	select {
	case <-l.ready:
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.ln.Addr()
	case <-ctx.Done():
		return nil
	}
}

// handle reads lines from one connection until it closes.
func (l *Listener) handle(conn net.Conn) {
	defer l.wg.Done()
	defer l.untrack(conn)

	remote := conn.RemoteAddr().String()
	l.logInfo("json client connected", "remote", remote)

	l.opts.State.SetConnected(true)
	l.publish(passing.NewStatusMessage(passing.EventConnected))

	lr := framing.NewReader(conn, maxLineSize)
	for {
		line, err := lr.ReadLine()
		if errors.Is(err, framing.ErrLineTooLong) {
			l.opts.Metrics.ParseError(metrics.SourceJSON)
			l.logWarn("dropping oversized json line", "remote", remote, "limit", maxLineSize)
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				l.logWarn("json client read failed", "remote", remote, "error", err)
			}
			break
		}
		l.handleLine(line)
	}

	l.logInfo("json client disconnected", "remote", remote)
	l.opts.State.SetConnected(false)
	l.publish(passing.NewStatusMessage(passing.EventDisconnected))
}

func (l *Listener) handleLine(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	if l.opts.Debug {
		l.logDebug("json input", "line", line)
	}

	p, err := l.normalizer.Normalize(line)
	if err != nil {
		l.opts.Metrics.ParseError(metrics.SourceJSON)
		l.logWarn("dropping malformed json line", "line", line, "error", err)
		return
	}

	if l.opts.Debug {
		if out, err := json.Marshal(p); err == nil {
			l.logDebug("json output", "record", string(out))
		}
	} else {
		l.logInfo("passing", "transponder", p.Transponder, "time", p.Time)
	}

	l.opts.Metrics.PassingReceived(metrics.SourceJSON)
	l.publish(passing.NewPassingMessage(p))
}

func (l *Listener) publish(msg passing.Message) {
	n, err := l.opts.Publisher.Publish(msg)
	if err != nil || n == 0 {
		l.logDebug("message not delivered", "kind", msg.Kind.String(), "subscribers", n, "error", err)
	}
}

// track registers conn; it returns false once the listener is shutting down.
func (l *Listener) track(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conns == nil {
		return false
	}
	l.conns[conn] = struct{}{}
	return true
}

func (l *Listener) untrack(conn net.Conn) {
	conn.Close()
	l.mu.Lock()
	delete(l.conns, conn)
	l.mu.Unlock()
}

// closeConns closes every open connection and stops tracking new ones.
func (l *Listener) closeConns() {
	l.mu.Lock()
	conns := l.conns
	l.conns = nil
	l.mu.Unlock()

	for c := range conns {
		c.Close()
	}
}

func (l *Listener) logDebug(msg string, keysAndValues ...any) {
	if l.opts.Logger != nil {
		l.opts.Logger.Debug(msg, keysAndValues...)
	}
}

func (l *Listener) logInfo(msg string, keysAndValues ...any) {
	if l.opts.Logger != nil {
		l.opts.Logger.Info(msg, keysAndValues...)
	}
}

func (l *Listener) logWarn(msg string, keysAndValues ...any) {
	if l.opts.Logger != nil {
		l.opts.Logger.Warn(msg, keysAndValues...)
	}
}

func (l *Listener) logError(msg string, keysAndValues ...any) {
	if l.opts.Logger != nil {
		l.opts.Logger.Error(msg, keysAndValues...)
	}
}
