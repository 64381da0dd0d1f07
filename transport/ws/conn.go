// Package ws adapts gorilla/websocket connections to the relay's channel
// contract.
//
// Each Conn runs one read pump and one write pump. Outbound frames go
// through a buffered queue drained by the write pump, so Send never blocks
// on the peer. Inbound frames are handed to Read in arrival order.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xraph/chatrelay/id"
)

var (
	// ErrClosed is returned when sending on or reading from a closed Conn.
	ErrClosed = errors.New("chatrelay: channel closed")

	// ErrSendBufferFull is returned when the outbound queue is full because
	// the peer is not draining it.
	ErrSendBufferFull = errors.New("chatrelay: channel send buffer full")
)

// Config holds per-connection settings.
type Config struct {
	// SendBuffer is the outbound queue length.
	SendBuffer int

	// ReadLimit caps the size of one inbound frame in bytes.
	ReadLimit int64

	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration

	// PongWait is how long the peer may stay silent before the connection
	// is considered dead.
	PongWait time.Duration

	// PingInterval must be shorter than PongWait.
	PingInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SendBuffer:   64,
		ReadLimit:    64 * 1024,
		WriteTimeout: 10 * time.Second,
		PongWait:     60 * time.Second,
		PingInterval: 54 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = d.ReadLimit
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	return c
}

// Conn is one live WebSocket channel.
type Conn struct {
	id     id.ID
	ws     *websocket.Conn
	config Config
	logger *slog.Logger

	send    chan []byte
	inbound chan []byte
	done    chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Upgrader performs the HTTP upgrade and wraps the result.
type Upgrader struct {
	upgrader websocket.Upgrader
	config   Config
	logger   *slog.Logger
}

// NewUpgrader creates an Upgrader. A nil checkOrigin keeps gorilla's
// same-origin default, which also admits clients that send no Origin.
func NewUpgrader(cfg Config, checkOrigin func(*http.Request) bool, logger *slog.Logger) *Upgrader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Upgrader{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		config: cfg.withDefaults(),
		logger: logger,
	}
}

// Upgrade upgrades the request and starts the pumps. On failure the
// upgrader has already written an HTTP error response.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	wsConn, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return New(wsConn, u.config, u.logger), nil
}

// New wraps an established websocket connection and starts its pumps.
func New(wsConn *websocket.Conn, cfg Config, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	connID := id.NewConnectionID()

	c := &Conn{
		id:      connID,
		ws:      wsConn,
		config:  cfg,
		logger:  logger.With("conn", connID.String()),
		send:    make(chan []byte, cfg.SendBuffer),
		inbound: make(chan []byte),
		done:    make(chan struct{}),
	}

	c.ws.SetReadLimit(cfg.ReadLimit)
	c.ws.SetReadDeadline(time.Now().Add(cfg.PongWait)) //nolint:errcheck // a failed deadline surfaces on the next read
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.config.PongWait))
	})

	c.wg.Add(2)
	go c.readPump()
	go c.writePump()

	return c
}

// ID returns the connection id.
func (c *Conn) ID() id.ID {
	return c.id
}

// Done is closed once the connection has been closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Send queues payload for the write pump without blocking.
func (c *Conn) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSendBufferFull
	}
}

// Read returns the next inbound frame. It returns ErrClosed once the peer
// is gone and every frame already read has been consumed.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	select {
	case msg, ok := <-c.inbound:
		if !ok {
			return nil, ErrClosed
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close sends a close frame carrying reason and tears the connection down.
// It is safe to call more than once and from any goroutine.
func (c *Conn) Close(reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		deadline := time.Now().Add(c.config.WriteTimeout)
		if writeErr := c.ws.WriteControl(websocket.CloseMessage, msg, deadline); writeErr != nil &&
			!errors.Is(writeErr, websocket.ErrCloseSent) {
			c.logger.Debug("close frame not sent", "error", writeErr)
		}
		err = c.ws.Close()
		c.logger.Debug("channel closed", "reason", reason)
	})
	return err
}

// Wait blocks until both pumps have exited.
func (c *Conn) Wait() {
	c.wg.Wait()
}

// readPump moves frames from the socket to the inbound queue. It closes the
// inbound queue on exit so Read observes the end of the stream.
func (c *Conn) readPump() {
	defer c.wg.Done()
	defer close(c.inbound)

	for {
		typ, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("read failed", "error", err)
			}
			c.Close("read closed") //nolint:errcheck // teardown
			return
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}

		select {
		case c.inbound <- msg:
		case <-c.done:
			return
		}
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *Conn) writePump() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)) //nolint:errcheck // surfaces on write
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("write failed", "error", err)
				c.Close("write failed") //nolint:errcheck // teardown
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)) //nolint:errcheck // surfaces on write
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close("ping failed") //nolint:errcheck // teardown
				return
			}
		}
	}
}
