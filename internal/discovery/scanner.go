package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTimeout is the per-host connect timeout.
	DefaultTimeout = 200 * time.Millisecond

	// probeConcurrency bounds simultaneous connect attempts.
	probeConcurrency = 64

	firstHost = 1
	lastHost  = 254
)

// ProbeFunc reports whether addr accepts a connection within timeout.
type ProbeFunc func(ctx context.Context, addr string, timeout time.Duration) bool

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Scanner probes a /24 subnet for the decoder port.
type Scanner struct {
	// Port is the decoder TCP port.
	Port int

	// Subnet is a prefix such as "192.168.1.". Empty means the /24 of the
	// first non-loopback IPv4 interface address.
	Subnet string

	// Timeout is the per-host connect timeout. Zero means DefaultTimeout.
	Timeout time.Duration

	// Probe overrides the TCP connect probe. Nil means tcpProbe.
	Probe ProbeFunc

	Logger Logger
}

// Scan probes prefix.1 to prefix.254 concurrently.
//
// Returns:
//   - string: host:port of the responsive host with the lowest host number
//   - error: ErrNotFound if none answers, ErrNoIPv4 or ErrInvalidSubnet if
//     the subnet cannot be determined, or ctx.Err()
func (s *Scanner) Scan(ctx context.Context) (string, error) {
	prefix := s.Subnet
	if prefix == "" {
		var err error
		if prefix, err = LocalSubnet(); err != nil {
			return "", err
		}
	}
	if !validPrefix(prefix) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSubnet, prefix)
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	probe := s.Probe
	if probe == nil {
		probe = tcpProbe
	}
	port := strconv.Itoa(s.Port)

	if s.Logger != nil {
		s.Logger.Info("scanning for decoder", "subnet", prefix+"0/24", "port", s.Port)
	}

	var (
		mu    sync.Mutex
		found = lastHost + 1
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	for host := firstHost; host <= lastHost; host++ {
		g.Go(func() error {
			addr := net.JoinHostPort(prefix+strconv.Itoa(host), port)
			if probe(gctx, addr, timeout) {
				mu.Lock()
				found = min(found, host)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if found > lastHost {
		return "", ErrNotFound
	}

	addr := net.JoinHostPort(prefix+strconv.Itoa(found), port)
	if s.Logger != nil {
		s.Logger.Info("decoder found", "address", addr)
	}
	return addr, nil
}

// tcpProbe dials addr and closes the connection immediately.
func tcpProbe(ctx context.Context, addr string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// LocalSubnet returns the "a.b.c." prefix of the first non-loopback IPv4
// interface address.
func LocalSubnet() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoIPv4, err)
	}
	return subnetFromAddrs(addrs)
}

func subnetFromAddrs(addrs []net.Addr) (string, error) {
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLoopback() {
			continue
		}
		if v4 := ip.To4(); v4 != nil {
			return fmt.Sprintf("%d.%d.%d.", v4[0], v4[1], v4[2]), nil
		}
	}
	return "", ErrNoIPv4
}

// validPrefix checks for three dotted octets followed by a trailing dot.
func validPrefix(prefix string) bool {
	if !strings.HasSuffix(prefix, ".") {
		return false
	}
	parts := strings.Split(strings.TrimSuffix(prefix, "."), ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return true
}
