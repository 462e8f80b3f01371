package hub

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	name   string
	logger *slog.Logger

	// Registered clients, owned by Run
	clients map[*Client]bool

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client

	// onJoin yields messages sent to each new client before broadcasts
	onJoin func() []Message

	// Mutex for client count and onJoin (read-only access from outside)
	mu sync.RWMutex

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a new Hub
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("component", "hub", "hub", name),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// OnJoin sets a function whose messages greet every new client.
func (h *Hub) OnJoin(fn func() []Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onJoin = fn
}

// Run starts the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			greet := h.onJoin
			h.mu.Unlock()
			if greet != nil {
				for _, msg := range greet() {
					h.deliver(client, msg)
				}
			}
			h.logger.Info("client connected", "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", "clients", count)

		case message := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()
			for _, client := range clients {
				h.deliver(client, message)
			}

		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("hub stopped")
			return
		}
	}
}

// deliver queues a message, dropping the client if it cannot keep up.
func (h *Hub) deliver(client *Client, msg Message) {
	select {
	case client.send <- msg:
	default:
		h.mu.Lock()
		if _, ok := h.clients[client]; ok {
			delete(h.clients, client)
			close(client.send)
		}
		h.mu.Unlock()
		h.logger.Warn("dropped slow client")
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Stop closes every client and ends Run.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastJSON encodes and broadcasts a JSON message
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// BroadcastEvent wraps data in an Event envelope and broadcasts it.
func (h *Hub) BroadcastEvent(eventType string, data any) error {
	msg, err := NewEvent(eventType, data)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Upgrade rejects non-websocket requests. Mount it ahead of Handler.
func Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handler returns the fiber handler that attaches websocket clients.
func (h *Hub) Handler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		if client := NewClient(h, conn); client != nil {
			client.Run()
		}
	})
}
