package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/rrconverter/internal/hub"
	"github.com/nerrad567/rrconverter/internal/infrastructure/config"
	"github.com/nerrad567/rrconverter/internal/infrastructure/logging"
	"github.com/nerrad567/rrconverter/internal/infrastructure/metrics"
)

// closeWriteWait bounds the final close frame write.
const closeWriteWait = time.Second

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// The feed is public and read-only.
		return true
	},
}

// wsClient is one connected feed subscriber.
type wsClient struct {
	conn    *websocket.Conn
	sub     *hub.Subscription
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	metrics *metrics.Metrics

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// handleWebSocket upgrades the HTTP connection and starts the client's
// read pump and delivery loop.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub := s.hub.Subscribe()
	ctx, cancel := context.WithCancel(s.baseCtx)
	client := &wsClient{
		conn:    conn,
		sub:     sub,
		cfg:     s.wsCfg,
		logger:  s.logger.With("subscriber", sub.ID(), "remote", r.RemoteAddr),
		metrics: s.metrics,
		cancel:  cancel,
	}

	s.metrics.WebSocketClientAdded()
	client.logger.Debug("websocket client connected")

	s.clients.Add(2)
	go func() {
		defer s.clients.Done()
		client.readPump(ctx)
	}()
	go func() {
		defer s.clients.Done()
		client.deliver(ctx)
	}()
}

// readPump reads and discards client frames. It keeps the read deadline
// fresh so a vanished peer is noticed, and ends the client when reading fails.
func (c *wsClient) readPump(ctx context.Context) {
	defer c.close()

	if c.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(c.cfg.MaxMessageSize))
	}
	idle := c.readWait()
	if idle > 0 {
		//nolint:errcheck // Best-effort deadline on connection setup
		c.conn.SetReadDeadline(time.Now().Add(idle))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(idle))
		})
	}

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			} else {
				c.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline.
		if idle > 0 {
			//nolint:errcheck // Best-effort deadline reset
			c.conn.SetReadDeadline(time.Now().Add(idle))
		}
	}
}

// deliver writes hub messages to the client in publish order and pings
// between messages. The first failed write ends the client.
func (c *wsClient) deliver(ctx context.Context) {
	defer c.close()

	pingInterval := time.Duration(c.cfg.PingInterval) * time.Second
	writeWait := time.Duration(c.cfg.PongTimeout) * time.Second
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}

	nextPing := time.Now().Add(pingInterval)
	for {
		recvCtx, cancel := ctx, context.CancelFunc(func() {})
		if pingInterval > 0 {
			recvCtx, cancel = context.WithDeadline(ctx, nextPing)
		}
		msg, err := c.sub.Recv(recvCtx)
		cancel()

		switch {
		case err == nil:
			data, err := json.Marshal(msg)
			if err != nil {
				c.logger.Error("failed to encode feed message", "error", err)
				continue
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("websocket write failed", "error", err)
				return
			}

		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("websocket ping failed", "error", err)
				return
			}
			nextPing = time.Now().Add(pingInterval)

		default:
			// Hub closed or server shutting down.
			//nolint:errcheck // Best-effort close frame
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(closeWriteWait))
			return
		}
	}
}

func (c *wsClient) readWait() time.Duration {
	if c.cfg.PingInterval <= 0 {
		return 0
	}
	return time.Duration(c.cfg.PingInterval+c.cfg.PongTimeout) * time.Second
}

// close releases the subscription and the connection. Either pump may
// call it; only the first call has effect.
func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.sub.Close()
		c.conn.Close()
		c.metrics.WebSocketClientRemoved()
		c.logger.Debug("websocket client disconnected")
	})
}
