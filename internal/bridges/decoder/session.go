package decoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/rrconverter/internal/bridges/framing"
	"github.com/nerrad567/rrconverter/internal/infrastructure/metrics"
	"github.com/nerrad567/rrconverter/internal/passing"
)

// Protocol commands.
const (
	cmdSetProtocol     = "SETPROTOCOL;2.0"
	cmdSetPushPassings = "SETPUSHPASSINGS;1;1"
	cmdPing            = "PING"
)

// maxLineSize bounds one decoder frame.
const maxLineSize = framing.DefaultMaxLineSize

// Stats is a snapshot of session counters.
type Stats struct {
	PassingsRx      uint64
	ParseErrors     uint64
	LinesRx         uint64
	PingsTx         uint64
	ConnectsTotal   uint64 // sessions that reached streaming
	ConnectFailures uint64
	LastActivity    time.Time
	State           SessionState
}

// Session is a long-running client of one decoder.
//
// Thread Safety:
//   - Run must be called once. State and Stats are safe to call concurrently.
type Session struct {
	cfg        Config
	normalizer passing.Normalizer

	state atomic.Int32

	passingsRx      atomic.Uint64
	parseErrors     atomic.Uint64
	linesRx         atomic.Uint64
	pingsTx         atomic.Uint64
	connectsTotal   atomic.Uint64
	connectFailures atomic.Uint64
	lastActivity    atomic.Int64 // Unix nanoseconds
}

// NewSession validates cfg and creates a Session in StateDisconnected.
//
// Parameters:
//   - cfg: Dependencies and timings; zero timings take defaults
//
// Returns:
//   - *Session: Ready to Run
//   - error: ErrInvalidConfig if Resolver, Publisher or State is nil
func NewSession(cfg Config) (*Session, error) {
	switch {
	case cfg.Resolver == nil:
		return nil, fmt.Errorf("%w: resolver is required", ErrInvalidConfig)
	case cfg.Publisher == nil:
		return nil, fmt.Errorf("%w: publisher is required", ErrInvalidConfig)
	case cfg.State == nil:
		return nil, fmt.Errorf("%w: connectivity state is required", ErrInvalidConfig)
	}
	cfg.applyDefaults()

	return &Session{
		cfg:        cfg,
		normalizer: passing.LineNormalizer{},
	}, nil
}

// Run drives the session until ctx is cancelled, reconnecting after every
// failure. It returns nil once ctx is done.
func (s *Session) Run(ctx context.Context) error {
	defer s.setState(StateDisconnected)

	for {
		s.setState(StateConnecting)
		conn, addr, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.connectFailures.Add(1)
			s.cfg.Metrics.DecoderConnectFailed()
			s.logWarn("decoder connect failed", "error", err, "retry_in", s.cfg.ReconnectDelay.String())
			if inv, ok := s.cfg.Resolver.(invalidator); ok {
				inv.Invalidate()
			}
		} else {
			err = s.serve(ctx, conn)
			s.leaveStreaming()
			if ctx.Err() != nil {
				return nil
			}
			s.logWarn("decoder session ended", "address", addr, "error", err,
				"retry_in", s.cfg.ReconnectDelay.String())
		}

		s.setState(StateDisconnected)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.ReconnectDelay):
		}
	}
}

// connect resolves the device address and dials it.
func (s *Session) connect(ctx context.Context) (net.Conn, string, error) {
	addr, err := s.cfg.Resolver.Resolve(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("%w: resolve: %w", ErrConnectionFailed, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, addr, fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, addr, err)
	}

	s.logInfo("connected to decoder", "address", addr)
	return conn, addr, nil
}

// serve runs the handshake and the streaming loop on conn. It always
// closes conn before returning.
func (s *Session) serve(ctx context.Context, conn net.Conn) error {
	done := make(chan struct{})
	var wg sync.WaitGroup
	defer func() {
		close(done)
		conn.Close()
		wg.Wait()
	}()

	s.setState(StateHandshaking)
	for _, cmd := range []string{cmdSetProtocol, cmdSetPushPassings} {
		if err := s.writeLine(conn, cmd); err != nil {
			return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
		}
	}

	s.enterStreaming()

	lines := make(chan string)
	readErr := make(chan error, 1)
	wg.Add(1)
	go s.readLoop(conn, lines, readErr, done, &wg)

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line := <-lines:
			s.handleLine(line)
		case err := <-readErr:
			return fmt.Errorf("%w: %w", ErrConnectionLost, err)
		case <-ticker.C:
			if err := s.writeLine(conn, cmdPing); err != nil {
				return fmt.Errorf("%w: ping: %w", ErrConnectionLost, err)
			}
			s.pingsTx.Add(1)
		}
	}
}

// readLoop reads newline-delimited frames from conn until it fails.
// Every frame is handed over before the terminating error is reported.
// Oversized frames are dropped without ending the session.
func (s *Session) readLoop(conn net.Conn, lines chan<- string, readErr chan<- error, done <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	lr := framing.NewReader(conn, maxLineSize)
	for {
		line, err := lr.ReadLine()
		if errors.Is(err, framing.ErrLineTooLong) {
			s.parseErrors.Add(1)
			s.cfg.Metrics.ParseError(metrics.SourceDecoder)
			s.logWarn("dropping oversized decoder line", "limit", maxLineSize)
			continue
		}
		if err != nil {
			readErr <- err
			return
		}

		select {
		case lines <- line:
		case <-done:
			return
		}
	}
}

// handleLine normalises one frame and publishes it if it is a passing.
func (s *Session) handleLine(line string) {
	s.linesRx.Add(1)
	s.lastActivity.Store(time.Now().UnixNano())

	p, err := s.normalizer.Normalize(line)
	switch {
	case errors.Is(err, passing.ErrNotPassing):
		return
	case err != nil:
		s.parseErrors.Add(1)
		s.cfg.Metrics.ParseError(metrics.SourceDecoder)
		s.logWarn("dropping malformed decoder line", "line", line, "error", err)
		return
	}

	s.passingsRx.Add(1)
	s.cfg.Metrics.PassingReceived(metrics.SourceDecoder)
	s.logInfo("passing", "transponder", p.Transponder, "passing_number", p.PassingNumber, "time", p.Time)
	s.publish(passing.NewPassingMessage(p))
}

func (s *Session) enterStreaming() {
	s.setState(StateStreaming)
	s.connectsTotal.Add(1)
	s.cfg.Metrics.DecoderConnected()
	s.cfg.State.SetConnected(true)
	s.publish(passing.NewStatusMessage(passing.EventConnected))
}

// leaveStreaming publishes "disconnected" only if this call flipped the
// connectivity flag from true to false.
func (s *Session) leaveStreaming() {
	if s.cfg.State.SetConnected(false) {
		s.publish(passing.NewStatusMessage(passing.EventDisconnected))
	}
}

func (s *Session) publish(msg passing.Message) {
	n, err := s.cfg.Publisher.Publish(msg)
	if err != nil || n == 0 {
		s.logDebug("message not delivered", "kind", msg.Kind.String(), "subscribers", n, "error", err)
	}
}

func (s *Session) writeLine(conn net.Conn, line string) error {
	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := io.WriteString(conn, line+"\n"); err != nil {
		return fmt.Errorf("write %q: %w", line, err)
	}
	return nil
}

func (s *Session) setState(st SessionState) {
	s.state.Store(int32(st))
}

// State returns the current session state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Stats returns current operational statistics.
func (s *Session) Stats() Stats {
	var last time.Time
	if ns := s.lastActivity.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return Stats{
		PassingsRx:      s.passingsRx.Load(),
		ParseErrors:     s.parseErrors.Load(),
		LinesRx:         s.linesRx.Load(),
		PingsTx:         s.pingsTx.Load(),
		ConnectsTotal:   s.connectsTotal.Load(),
		ConnectFailures: s.connectFailures.Load(),
		LastActivity:    last,
		State:           s.State(),
	}
}

func (s *Session) logDebug(msg string, keysAndValues ...any) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Debug(msg, keysAndValues...)
	}
}

func (s *Session) logInfo(msg string, keysAndValues ...any) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Info(msg, keysAndValues...)
	}
}

func (s *Session) logWarn(msg string, keysAndValues ...any) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Warn(msg, keysAndValues...)
	}
}
