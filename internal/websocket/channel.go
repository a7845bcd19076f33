package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/segstream/domain/entities"
	"github.com/satriahrh/segstream/domain/repositories"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Replies carry full overlay images.
	maxMessageSize = 32 * 1024 * 1024

	// Outbound queue depth. Flow control keeps at most one frame queued.
	sendBufferSize = 4
)

// Channel is a client-side duplex connection to the inference service
type Channel struct {
	dialer *websocket.Dialer
	header http.Header
	logger *zap.Logger

	mu      sync.Mutex
	state   entities.ConnectionState
	current *connection
	handler repositories.ChannelHandler
}

// connection is one dialed socket; a Channel may go through several
type connection struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// Ensure Channel implements the Transport interface
var _ repositories.Transport = (*Channel)(nil)

// ChannelOption configures a Channel
type ChannelOption func(*Channel)

// WithBearerToken sends "Authorization: Bearer <token>" on the handshake
func WithBearerToken(token string) ChannelOption {
	return func(c *Channel) {
		if token != "" {
			c.header.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithDialTimeout bounds the websocket handshake
func WithDialTimeout(d time.Duration) ChannelOption {
	return func(c *Channel) {
		if d > 0 {
			c.dialer.HandshakeTimeout = d
		}
	}
}

// NewChannel creates a disconnected channel
func NewChannel(logger *zap.Logger, opts ...ChannelOption) *Channel {
	c := &Channel{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
			ReadBufferSize:   64 * 1024,
			WriteBufferSize:  64 * 1024,
		},
		header: http.Header{},
		logger: logger,
		state:  entities.ConnectionDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connection state
func (c *Channel) State() entities.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open dials the endpoint and starts the read and write pumps
func (c *Channel) Open(ctx context.Context, endpoint string, handler repositories.ChannelHandler) error {
	c.mu.Lock()
	if c.state == entities.ConnectionConnecting || c.state == entities.ConnectionOpen {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("channel is already %s", state)
	}
	c.handler = handler
	c.state = entities.ConnectionConnecting
	c.mu.Unlock()
	c.notifyState(handler, entities.ConnectionConnecting)

	c.logger.Info("Connecting to inference service", zap.String("endpoint", endpoint))

	ws, resp, err := c.dialer.DialContext(ctx, endpoint, c.header)
	if err != nil {
		c.mu.Lock()
		c.state = entities.ConnectionFailed
		c.mu.Unlock()
		c.notifyState(handler, entities.ConnectionFailed)

		if resp != nil {
			return fmt.Errorf("dial %s: status %d: %w", endpoint, resp.StatusCode, err)
		}
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	conn := &connection{
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}

	c.mu.Lock()
	c.current = conn
	c.state = entities.ConnectionOpen
	c.mu.Unlock()
	c.notifyState(handler, entities.ConnectionOpen)

	c.logger.Info("Connected to inference service", zap.String("endpoint", endpoint))

	go c.writePump(conn)
	go c.readPump(conn, handler)

	return nil
}

// Send enqueues one text message on the open connection
func (c *Channel) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != entities.ConnectionOpen || c.current == nil {
		return entities.ErrNotConnected
	}

	select {
	case <-c.current.done:
		return entities.ErrNotConnected
	case c.current.send <- payload:
		return nil
	default:
		return fmt.Errorf("%w: send buffer full", entities.ErrTransportFailure)
	}
}

// Close sends a close frame and releases the connection. Safe to call repeatedly.
func (c *Channel) Close() error {
	c.mu.Lock()
	conn := c.current
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	err := conn.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	if err != nil && err != websocket.ErrCloseSent {
		c.logger.Debug("Failed to write close frame", zap.Error(err))
	}

	c.teardown(conn, entities.ConnectionClosed, nil)
	return nil
}

// teardown ends conn exactly once and reports the final state
func (c *Channel) teardown(conn *connection, state entities.ConnectionState, cause error) {
	conn.once.Do(func() {
		close(conn.done)
		conn.ws.Close()

		c.mu.Lock()
		handler := c.handler
		owned := c.current == conn
		if owned {
			c.current = nil
			c.state = state
		}
		c.mu.Unlock()

		if !owned {
			return
		}

		if cause != nil {
			c.logger.Warn("Connection to inference service lost",
				zap.String("state", state.String()),
				zap.Error(cause))
		} else {
			c.logger.Info("Connection to inference service closed")
		}

		c.notifyState(handler, state)
		if handler.OnClosed != nil {
			handler.OnClosed(cause)
		}
	})
}

func (c *Channel) notifyState(handler repositories.ChannelHandler, state entities.ConnectionState) {
	if handler.OnStateChange != nil {
		handler.OnStateChange(state)
	}
}

// readPump delivers incoming messages until the connection ends
func (c *Channel) readPump(conn *connection, handler repositories.ChannelHandler) {
	for {
		messageType, message, err := conn.ws.ReadMessage()
		if err != nil {
			select {
			case <-conn.done:
				return
			default:
			}

			state := entities.ConnectionFailed
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				state = entities.ConnectionClosed
			}
			c.teardown(conn, state, fmt.Errorf("%w: %v", entities.ErrTransportFailure, err))
			return
		}

		switch messageType {
		case websocket.TextMessage, websocket.BinaryMessage:
			if handler.OnMessage != nil {
				handler.OnMessage(message)
			}
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump drains the send queue and keeps the connection alive with pings
func (c *Channel) writePump(conn *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-conn.done:
			return

		case payload := <-conn.send:
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.teardown(conn, entities.ConnectionFailed, fmt.Errorf("%w: write: %v", entities.ErrTransportFailure, err))
				return
			}

		case <-ticker.C:
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.teardown(conn, entities.ConnectionFailed, fmt.Errorf("%w: ping: %v", entities.ErrTransportFailure, err))
				return
			}
		}
	}
}
