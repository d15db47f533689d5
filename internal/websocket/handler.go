package websocket

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// FrameHandler receives decoded-later frames and connection teardown from read pumps
type FrameHandler interface {
	HandleFrame(ctx context.Context, connID string, data []byte) error
	Disconnect(ctx context.Context, connID string) error
}

// HandlerConfig holds socket timings and limits
type HandlerConfig struct {
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	BufferSize     int
	MaxMessageSize int64
}

// DefaultHandlerConfig returns a 30s ping, 60s read deadline and 10MB frame limit
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		PingInterval:   30 * time.Second,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		BufferSize:     defaultSendBuffer,
		MaxMessageSize: 10 << 20,
	}
}

// Handler upgrades HTTP requests and runs one read pump per connection
type Handler struct {
	registry *Registry
	frames   FrameHandler
	config   HandlerConfig
}

// NewHandler creates a handler that registers connections in registry and feeds frames
func NewHandler(registry *Registry, frames FrameHandler, config HandlerConfig) *Handler {
	return &Handler{
		registry: registry,
		frames:   frames,
		config:   config,
	}
}

// HandleWebSocket upgrades the request; no query parameters are required
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := newConnection(conn, h.config.BufferSize, h.config.WriteTimeout)

	if err := h.registry.RegisterConnection(wsConn); err != nil {
		log.Printf("Failed to register connection: %v", err)
		_ = wsConn.Close()
		return
	}
	log.Printf("Connection registered: id=%s remote=%s", wsConn.ID(), r.RemoteAddr)

	go h.handleConnection(wsConn)
}

// handleConnection runs the read pump with ping/pong heartbeat until the socket fails
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.frames.Disconnect(ctx, conn.ID()); err != nil {
			log.Printf("Failed to submit disconnect for %s: %v", conn.ID(), err)
		}
		h.registry.UnregisterConnection(conn)
		_ = conn.Close()
		log.Printf("Connection closed: id=%s", conn.ID())
	}()

	if h.config.MaxMessageSize > 0 {
		conn.conn.SetReadLimit(h.config.MaxMessageSize)
	}
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	go h.pingLoop(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error on %s: %v", conn.ID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		// Sequential submission keeps this connection's events in order
		if err := h.frames.HandleFrame(conn.ctx, conn.ID(), data); err != nil {
			log.Printf("Frame from %s rejected: %v", conn.ID(), err)
		}
	}
}

func (h *Handler) pingLoop(conn *Connection) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.config.WriteTimeout)); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}
