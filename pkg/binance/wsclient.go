package binance

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrConnClosed = errors.New("websocket connection closed")

// WSOptions configures the stream dialer.
type WSOptions struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingTimeout      time.Duration // no ping, pong or data for this long marks the conn not open; 0 disables
}

// WSClient dials the Binance combined-stream endpoint.
type WSClient struct {
	opts   WSOptions
	dialer websocket.Dialer
	logger *zap.Logger
}

// NewWSClient creates a new WebSocket client with the given options and logger.
func NewWSClient(opts WSOptions, logger *zap.Logger) *WSClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &WSClient{
		opts: opts,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		logger: logger,
	}
}

// Dial opens one connection. It does not start reading; the caller owns the
// read loop through WSConn.ReadMessage.
func (c *WSClient) Dial(ctx context.Context) (*WSConn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		c.logger.Error("Failed to connect to WebSocket", zap.String("url", c.opts.URL), zap.Error(err))
		return nil, err
	}
	c.logger.Info("WebSocket connected", zap.String("url", c.opts.URL))

	wc := &WSConn{
		conn:         conn,
		writeTimeout: c.opts.WriteTimeout,
		pingTimeout:  c.opts.PingTimeout,
		lastSeen:     time.Now(),
	}

	// Binance pings every few minutes and drops clients that do not pong.
	conn.SetPingHandler(func(data string) error {
		wc.touch()
		wc.writeMu.Lock()
		defer wc.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(wc.writeTimeout))
	})
	conn.SetPongHandler(func(string) error {
		wc.touch()
		return nil
	})

	return wc, nil
}

// WSConn is one open stream connection. Writes are serialised; reads must
// come from a single goroutine.
type WSConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	pingTimeout  time.Duration

	writeMu sync.Mutex

	mu       sync.RWMutex
	closed   bool
	lastSeen time.Time
}

func (c *WSConn) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// ReadMessage blocks for the next data frame. Any error leaves the
// connection not open.
func (c *WSConn) ReadMessage() ([]byte, error) {
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		return nil, err
	}
	c.touch()
	return msg, nil
}

// WriteJSON sends v as a text frame.
func (c *WSConn) WriteJSON(v any) error {
	if !c.IsOpen() {
		return ErrConnClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteJSON(v)
}

// IsOpen reports whether the socket is still usable: not closed, no read
// error seen, and traffic observed within the ping timeout.
func (c *WSConn) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	return c.pingTimeout <= 0 || time.Since(c.lastSeen) < c.pingTimeout
}

// Close sends a close frame with the given code and closes the socket. It is
// safe to call more than once.
func (c *WSConn) Close(code int, reason string) error {
	c.mu.Lock()
	already := c.closed
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()

	err := c.conn.Close()
	if already {
		return nil
	}
	return err
}
