package decoder

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/rrconverter/internal/connectivity"
	"github.com/nerrad567/rrconverter/internal/hub"
	"github.com/nerrad567/rrconverter/internal/passing"
)

// staticResolver returns a fixed address and counts invalidations.
type staticResolver struct {
	addr        string
	err         error
	invalidated atomic.Int32
}

func (r *staticResolver) Resolve(_ context.Context) (string, error) {
	return r.addr, r.err
}

func (r *staticResolver) Invalidate() {
	r.invalidated.Add(1)
}

// fakeDecoder accepts connections on a loopback port.
type fakeDecoder struct {
	ln    net.Listener
	conns chan net.Conn
}

func newFakeDecoder(t *testing.T) *fakeDecoder {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeDecoder{ln: ln, conns: make(chan net.Conn, 4)}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			f.conns <- c
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return f
}

func (f *fakeDecoder) accept(t *testing.T) (net.Conn, *bufio.Reader) {
	t.Helper()

	select {
	case c := <-f.conns:
		t.Cleanup(func() { c.Close() })
		return c, bufio.NewReader(c)
	case <-time.After(2 * time.Second):
		t.Fatal("decoder session did not connect")
		return nil, nil
	}
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()

	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read from session: %v", err)
	}
	return strings.TrimRight(line, "\r\n")
}

func expectHandshake(t *testing.T, r *bufio.Reader) {
	t.Helper()

	for _, want := range []string{"SETPROTOCOL;2.0", "SETPUSHPASSINGS;1;1"} {
		if got := readLine(t, r); got != want {
			t.Fatalf("handshake line = %q, want %q", got, want)
		}
	}
}

func recvMsg(t *testing.T, sub *hub.Subscription) passing.Message {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msg, err := sub.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	return msg
}

func expectStatus(t *testing.T, sub *hub.Subscription, want passing.Event) {
	t.Helper()

	msg := recvMsg(t, sub)
	if !msg.IsStatus() || msg.Event != want {
		t.Fatalf("got %+v, want status %q", msg, want)
	}
}

type fixture struct {
	session *Session
	sub     *hub.Subscription
	flag    *connectivity.Flag
	fake    *fakeDecoder
	cancel  context.CancelFunc
	done    chan error
}

func startSession(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()

	fake := newFakeDecoder(t)
	h := hub.New()
	flag := &connectivity.Flag{}

	cfg := Config{
		Resolver:       &staticResolver{addr: fake.ln.Addr().String()},
		Publisher:      h,
		State:          flag,
		ReconnectDelay: 20 * time.Millisecond,
		PingInterval:   time.Hour,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	f := &fixture{
		session: s,
		sub:     h.Subscribe(),
		flag:    flag,
		fake:    fake,
		done:    make(chan error, 1),
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() { f.done <- s.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-f.done:
		case <-time.After(2 * time.Second):
			t.Error("Run() did not return after cancel")
		}
	})
	return f
}

func TestSession_HandshakeAndPassing(t *testing.T) {
	f := startSession(t, nil)

	conn, r := f.fake.accept(t)
	expectHandshake(t, r)
	expectStatus(t, f.sub, passing.EventConnected)

	if !f.flag.IsConnected() {
		t.Error("connectivity flag not set after handshake")
	}
	if f.session.State() != StateStreaming {
		t.Errorf("State() = %v, want streaming", f.session.State())
	}

	lines := strings.Join([]string{
		"#P;12;TAG1;2024-01-01;10:00:00",
		"PING",
		"#P;13;TAG2",
		"#P;14;TAG3;2024-01-01;10:00:05.500;;3;-55",
	}, "\r\n") + "\r\n"
	if _, err := conn.Write([]byte(lines)); err != nil {
		t.Fatalf("write: %v", err)
	}

	first := recvMsg(t, f.sub)
	want := passing.Passing{
		PassingNumber: "12",
		Transponder:   "TAG1",
		Date:          "2024-01-01T10:00:00",
		Time:          "10:00:00",
	}
	if first.Kind != passing.KindPassing || first.Passing != want {
		t.Errorf("first message = %+v, want passing %+v", first, want)
	}

	second := recvMsg(t, f.sub)
	if second.Passing.PassingNumber != "14" || second.Passing.Hits != "3" || second.Passing.MaxRSSI != "-55" {
		t.Errorf("second message = %+v, want passing #14", second)
	}

	stats := f.session.Stats()
	if stats.PassingsRx != 2 || stats.ParseErrors != 1 || stats.LinesRx != 4 {
		t.Errorf("Stats() = %+v, want 2 passings, 1 parse error, 4 lines", stats)
	}
	if stats.LastActivity.IsZero() {
		t.Error("LastActivity not recorded")
	}
}

func TestSession_DisconnectAndReconnect(t *testing.T) {
	f := startSession(t, nil)

	conn, r := f.fake.accept(t)
	expectHandshake(t, r)
	expectStatus(t, f.sub, passing.EventConnected)

	conn.Close()
	expectStatus(t, f.sub, passing.EventDisconnected)
	if f.flag.IsConnected() {
		t.Error("connectivity flag still set after disconnect")
	}

	_, r2 := f.fake.accept(t)
	expectHandshake(t, r2)
	expectStatus(t, f.sub, passing.EventConnected)

	if got := f.session.Stats().ConnectsTotal; got != 2 {
		t.Errorf("ConnectsTotal = %d, want 2", got)
	}
}

// A frame longer than the line limit is dropped without a reconnect.
func TestSession_OversizedLineKeepsSession(t *testing.T) {
	f := startSession(t, nil)

	conn, r := f.fake.accept(t)
	expectHandshake(t, r)
	expectStatus(t, f.sub, passing.EventConnected)

	junk := "#P;" + strings.Repeat("x", maxLineSize+10) + "\r\n"
	go conn.Write([]byte(junk + "#P;15;TAG5;2024-01-01;10:00:10\r\n"))

	msg := recvMsg(t, f.sub)
	if msg.IsStatus() || msg.Passing.Transponder != "TAG5" {
		t.Fatalf("got %+v, want passing TAG5 after oversized line", msg)
	}

	stats := f.session.Stats()
	if stats.ConnectsTotal != 1 || stats.ParseErrors != 1 {
		t.Errorf("Stats() = %+v, want 1 connect and 1 parse error", stats)
	}
	if !f.flag.IsConnected() {
		t.Error("connectivity flag cleared by oversized line")
	}
}

func TestSession_DisconnectPublishedOnlyWhenFlagWasSet(t *testing.T) {
	f := startSession(t, nil)

	conn, r := f.fake.accept(t)
	expectHandshake(t, r)
	expectStatus(t, f.sub, passing.EventConnected)

	// Someone else already reported the loss.
	f.flag.SetConnected(false)
	conn.Close()

	_, r2 := f.fake.accept(t)
	expectHandshake(t, r2)
	expectStatus(t, f.sub, passing.EventConnected)
}

func TestSession_Ping(t *testing.T) {
	f := startSession(t, func(c *Config) {
		c.PingInterval = 20 * time.Millisecond
	})

	_, r := f.fake.accept(t)
	expectHandshake(t, r)

	for range 2 {
		if got := readLine(t, r); got != "PING" {
			t.Fatalf("got %q, want PING", got)
		}
	}
	if f.session.Stats().PingsTx < 2 {
		t.Errorf("PingsTx = %d, want >= 2", f.session.Stats().PingsTx)
	}
}

func TestSession_ConnectFailureInvalidatesResolver(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	resolver := &staticResolver{addr: addr}
	f := startSession(t, func(c *Config) {
		c.Resolver = resolver
		c.ReconnectDelay = 10 * time.Millisecond
	})

	deadline := time.Now().Add(2 * time.Second)
	for resolver.invalidated.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("resolver was not invalidated after failed dials")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if f.session.Stats().ConnectFailures < 2 {
		t.Errorf("ConnectFailures = %d, want >= 2", f.session.Stats().ConnectFailures)
	}
	if f.flag.IsConnected() {
		t.Error("flag set without a connection")
	}
}

func TestSession_ResolveError(t *testing.T) {
	resolver := &staticResolver{err: errors.New("decoder not found")}
	f := startSession(t, func(c *Config) {
		c.Resolver = resolver
		c.ReconnectDelay = 10 * time.Millisecond
	})

	deadline := time.Now().Add(2 * time.Second)
	for f.session.Stats().ConnectFailures < 1 {
		if time.Now().After(deadline) {
			t.Fatal("resolve failure not counted")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSession_RunReturnsOnCancel(t *testing.T) {
	f := startSession(t, nil)

	_, r := f.fake.accept(t)
	expectHandshake(t, r)
	expectStatus(t, f.sub, passing.EventConnected)

	f.cancel()
	select {
	case err := <-f.done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	f.done <- nil // satisfy cleanup

	if f.session.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", f.session.State())
	}
	if f.flag.IsConnected() {
		t.Error("flag still set after shutdown")
	}
}

func TestNewSession_Validation(t *testing.T) {
	h := hub.New()
	flag := &connectivity.Flag{}
	resolver := &staticResolver{addr: "127.0.0.1:3601"}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing resolver", Config{Publisher: h, State: flag}},
		{"missing publisher", Config{Resolver: resolver, State: flag}},
		{"missing state", Config{Resolver: resolver, Publisher: h}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSession(tt.cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("NewSession() error = %v, want ErrInvalidConfig", err)
			}
		})
	}

	s, err := NewSession(Config{Resolver: resolver, Publisher: h, State: flag})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if s.cfg.ReconnectDelay != defaultReconnectDelay || s.cfg.PingInterval != defaultPingInterval {
		t.Errorf("defaults not applied: %+v", s.cfg)
	}
	if s.State() != StateDisconnected {
		t.Errorf("initial State() = %v, want disconnected", s.State())
	}
}

func TestSessionState_String(t *testing.T) {
	tests := map[SessionState]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateHandshaking:  "handshaking",
		StateStreaming:    "streaming",
		SessionState(42):  "unknown",
	}
	for st, want := range tests {
		if st.String() != want {
			t.Errorf("%d.String() = %q, want %q", st, st.String(), want)
		}
	}
}
