package websocket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/segstream/domain/repositories"
)

// Default bound on a single frame's processing
const defaultProcessTimeout = 30 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Development service; any origin may connect.
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// Hub maintains the set of connected streaming clients of the inference service.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run returns.
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	processor      repositories.FrameProcessor
	processTimeout time.Duration
	processed      atomic.Int64

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub serving frames to processor
func NewHub(processor repositories.FrameProcessor, logger *zap.Logger) *Hub {
	return &Hub{
		clients:        make(map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		done:           make(chan struct{}),
		processor:      processor,
		processTimeout: defaultProcessTimeout,
		logger:         logger,
	}
}

// SetProcessTimeout bounds one frame's processing; zero keeps the default
func (h *Hub) SetProcessTimeout(d time.Duration) {
	if d > 0 {
		h.processTimeout = d
	}
}

// Run starts the hub's main loop. Connected clients are closed when ctx ends.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				client.conn.Close()
				delete(h.clients, id)
			}
			h.mu.Unlock()
			h.logger.Info("Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Client connected",
				zap.String("connID", client.id),
				zap.String("subject", client.subject),
				zap.Int("connections", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Client disconnected",
				zap.String("connID", client.id),
				zap.Int64("frames", client.frameCount),
				zap.Int("connections", total))
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// FramesProcessed returns the number of frames answered successfully
func (h *Hub) FramesProcessed() int64 {
	return h.processed.Load()
}

// ModelLoaded reports whether the processor can serve frames
func (h *Hub) ModelLoaded() bool {
	return h.processor != nil && h.processor.Ready()
}

// CloseIdle drops clients that sent nothing for longer than maxIdle
func (h *Hub) CloseIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle).UnixNano()

	h.mu.RLock()
	defer h.mu.RUnlock()

	closed := 0
	for _, client := range h.clients {
		if client.lastActive.Load() < cutoff {
			client.logger.Info("Closing idle client", zap.Duration("maxIdle", maxIdle))
			client.conn.Close()
			closed++
		}
	}
	return closed
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	// Connection ID, used only for logs
	id string

	// Authenticated token subject, empty when auth is off
	subject string

	logger *zap.Logger

	// Counts every text message received, valid or not. Owned by readPump.
	frameCount int64

	lastActive atomic.Int64
}

// HandleWebSocket upgrades the request and serves frames until the peer leaves.
func HandleWebSocket(hub *Hub, c echo.Context, subject string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	id := uuid.NewString()
	client := &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 16),
		id:      id,
		subject: subject,
		logger:  logger.With(zap.String("connID", id)),
	}
	client.lastActive.Store(time.Now().UnixNano())

	select {
	case hub.register <- client:
	case <-hub.done:
		logger.Warn("Rejecting client: hub is not running")
		conn.Close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump reads frames and answers them in arrival order.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}
		c.lastActive.Store(time.Now().UnixNano())
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch messageType {
		case websocket.TextMessage:
			c.reply(c.processFrame(message))
		default:
			c.logger.Warn("Received unsupported message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps replies to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.hub.done:
			return

		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processFrame answers one text message
func (c *Client) processFrame(message []byte) *FrameResponse {
	c.frameCount++
	frameNumber := c.frameCount

	c.logger.Debug("Received frame",
		zap.Int64("frameNumber", frameNumber),
		zap.Int("size", len(message)))

	image, err := DecodeFrameRequest(message)
	switch {
	case errors.Is(err, ErrInvalidJSON):
		c.logger.Warn("Failed to parse frame", zap.Error(err))
		return CreateErrorResponse(ErrTextInvalidJSON, 0)
	case errors.Is(err, ErrNoImageData):
		return CreateErrorResponse(ErrTextNoImage, 0)
	case err != nil:
		return c.processingFailed(frameNumber, err)
	}

	if !c.hub.ModelLoaded() {
		return c.processingFailed(frameNumber, errors.New("model not loaded"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.hub.processTimeout)
	defer cancel()

	seg, err := c.hub.processor.Process(ctx, image)
	if err != nil {
		return c.processingFailed(frameNumber, err)
	}
	c.hub.processed.Add(1)

	c.logger.Debug("Frame processed",
		zap.Int64("frameNumber", frameNumber),
		zap.Duration("processingTime", seg.ProcessingTime))

	return CreateSuccessResponse(frameNumber,
		base64.StdEncoding.EncodeToString(seg.Overlay),
		base64.StdEncoding.EncodeToString(seg.Mask),
		seg.ProcessingTime.Seconds())
}

func (c *Client) processingFailed(frameNumber int64, err error) *FrameResponse {
	c.logger.Error("Error processing frame",
		zap.Int64("frameNumber", frameNumber),
		zap.Error(err))
	return CreateErrorResponse(fmt.Sprintf("Processing failed: %v", err), frameNumber)
}

func (c *Client) reply(resp *FrameResponse) {
	payload, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("Failed to marshal response", zap.Error(err))
		return
	}

	select {
	case c.send <- payload:
	default:
		c.logger.Warn("Send buffer full, dropping client")
		c.conn.Close()
	}
}
