package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fmwatch/fmwatch/internal/events"
	"github.com/fmwatch/fmwatch/internal/models"
)

// WSClient consumes the server's push channel. One client serves one
// connection; reconnects create a fresh client.
type WSClient struct {
	url    string
	jar    *cookiejar.Jar
	logger *events.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	messages chan models.PushEnvelope
	done     chan struct{}

	pingInterval time.Duration
	pongTimeout  time.Duration
}

// NewWSClient creates a WebSocket client. The cookie jar carries the HTTP
// session so the server can route the stream to the right user.
func NewWSClient(baseURL string, jar *cookiejar.Jar, logger *events.Logger) *WSClient {
	wsURL := baseURL
	if strings.HasPrefix(wsURL, "http") {
		wsURL = "ws" + wsURL[len("http"):]
	}
	wsURL += "/api/ws"

	return &WSClient{
		url:          wsURL,
		jar:          jar,
		logger:       logger.WithField("component", "ws_client"),
		messages:     make(chan models.PushEnvelope, 100),
		done:         make(chan struct{}),
		pingInterval: 30 * time.Second,
		pongTimeout:  10 * time.Second,
	}
}

// Connect establishes the WebSocket connection and starts the read and ping
// loops.
func (c *WSClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return fmt.Errorf("already connected")
	}

	c.logger.WithField("url", c.url).Info("Connecting to push channel")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Jar:              c.jar,
	}

	conn, resp, err := dialer.DialContext(ctx, c.url, http.Header{})
	if err != nil {
		if resp != nil {
			if resp.StatusCode == http.StatusUnauthorized {
				return fmt.Errorf("%w: websocket handshake", models.ErrNotAuthenticated)
			}
			return fmt.Errorf("websocket connect failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket connect failed: %w", err)
	}

	c.conn = conn

	go c.readLoop()
	go c.pingLoop()

	c.logger.Info("Push channel connected")
	return nil
}

// Messages returns the envelope channel. It closes when the stream ends.
func (c *WSClient) Messages() <-chan models.PushEnvelope {
	return c.messages
}

// Close closes the connection.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *WSClient) readLoop() {
	defer func() {
		_ = c.Close()
		close(c.messages)
	}()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	resetDeadline := func() {
		_ = conn.SetReadDeadline(time.Now().Add(c.pingInterval + c.pongTimeout))
	}
	resetDeadline()

	for {
		var env models.PushEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure) {
				c.logger.WithError(err).Error("Push channel read error")
			}
			return
		}
		resetDeadline()

		// Keepalive replies carry no payload.
		if env.Type == models.PushPong {
			continue
		}

		select {
		case c.messages <- env:
		case <-c.done:
			return
		}
	}
}

// pingLoop sends JSON ping envelopes, which the hub answers with pong.
func (c *WSClient) pingLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.logger.Debug("Sending ping")

			// Hold the lock across the write: Close also writes to the
			// connection and gorilla allows a single writer at a time.
			c.mu.Lock()
			conn := c.conn
			if conn == nil {
				c.mu.Unlock()
				return
			}
			err := conn.WriteJSON(models.PushEnvelope{Type: models.PushPing})
			c.mu.Unlock()
			if err != nil {
				c.logger.WithError(err).Error("Ping failed")
				return
			}

		case <-c.done:
			return
		}
	}
}
