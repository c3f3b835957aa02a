package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// ErrHubClosed is returned when broadcasting on a hub that has stopped.
var ErrHubClosed = errors.New("hub closed")

// HubConfig holds configuration for the broadcast hub.
type HubConfig struct {
	SendBufferSize      int // Per-client outgoing buffer (default: 256)
	BroadcastBufferSize int // Hub inbound buffer (default: 1024)
	Logger              *zap.Logger
}

// Hub fans out messages to every connected WebSocket client.
type Hub struct {
	logger     *zap.Logger
	sendBuffer int
	upgrader   websocket.Upgrader

	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	quit       chan struct{}
	stopped    chan struct{}
	closeOnce  sync.Once

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a new hub. Call Run to start delivering messages.
func NewHub(cfg *HubConfig) (*Hub, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	sendBuffer := cfg.SendBufferSize
	if sendBuffer <= 0 {
		sendBuffer = 256
	}

	broadcastBuffer := cfg.BroadcastBufferSize
	if broadcastBuffer <= 0 {
		broadcastBuffer = 1024
	}

	return &Hub{
		logger:     cfg.Logger,
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
		clients:    make(map[*client]struct{}),
	}, nil
}

// Run delivers broadcasts until ctx is cancelled or Close is called.
func (h *Hub) Run(ctx context.Context) error {
	h.logger.Info("event-hub-started")

	defer func() {
		h.mu.Lock()
		for c := range h.clients {
			close(c.send)
			delete(h.clients, c)
		}
		h.mu.Unlock()

		ActiveConnections.Set(0)
		close(h.stopped)
		h.logger.Info("event-hub-stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-h.quit:
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()

			ActiveConnections.Set(float64(count))
			h.logger.Debug("stream-client-connected", zap.Int("clients", count))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			count := len(h.clients)
			h.mu.Unlock()

			ActiveConnections.Set(float64(count))
			h.logger.Debug("stream-client-disconnected", zap.Int("clients", count))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
					MessagesSentTotal.Inc()
				default:
					MessagesDroppedTotal.WithLabelValues("slow_client").Inc()
					h.logger.Warn("stream-client-too-slow")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast queues msg for every connected client. It never blocks: when the
// hub buffer is full the message is dropped.
func (h *Hub) Broadcast(msg []byte) error {
	select {
	case <-h.stopped:
		return ErrHubClosed
	case <-h.quit:
		return ErrHubClosed
	default:
	}

	select {
	case h.broadcast <- msg:
		return nil
	default:
		MessagesDroppedTotal.WithLabelValues("hub_full").Inc()
		h.logger.Warn("event-hub-buffer-full")
		return nil
	}
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("stream-upgrade-failed", zap.Error(err))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
	}

	select {
	case h.register <- c:
	case <-h.stopped:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops the hub and disconnects every client.
func (h *Hub) Close() error {
	h.closeOnce.Do(func() {
		close(h.quit)
	})
	return nil
}

// readPump only services control frames; clients are not expected to send data.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopped:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("stream-client-read-error", zap.Error(err))
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			err := c.conn.WriteMessage(websocket.TextMessage, msg)
			if err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			if err != nil {
				return
			}
		}
	}
}
