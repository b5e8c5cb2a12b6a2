package expose

import (
	"path/filepath"
	"slices"
	"sync"

	"github.com/kbukum/streamkit/logger"
)

// Client is one connected event subscriber.
type Client struct {
	id        string
	route     string
	transport string
	events    chan []byte

	mu     sync.Mutex
	closed bool
}

// NewClient creates a client holding up to buffer undelivered frames.
func NewClient(id, route, transport string, buffer int) *Client {
	return &Client{
		id:        id,
		route:     route,
		transport: transport,
		events:    make(chan []byte, buffer),
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() string { return c.id }

// Route returns the name of the route the client follows.
func (c *Client) Route() string { return c.route }

// Events returns the channel of frames to write to the client. It is closed
// when the client is unregistered or the hub stops.
func (c *Client) Events() <-chan []byte { return c.events }

// Send queues data for the client. Returns false if the client is closed or
// too slow to keep up, in which case data is dropped.
func (c *Client) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.events <- data:
		return true
	default:
		logger.Get("expose").Warn("client buffer full, dropping frame", logger.Fields(
			logger.FieldClientID, c.id,
			logger.FieldRoute, c.route,
		))
		return false
	}
}

// Close closes the client's event channel. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
}

// Message is a frame addressed to every client whose ID matches Pattern.
type Message struct {
	Pattern string
	Data    []byte
}

// Hub tracks connected clients and fans frames out to them from a single
// goroutine.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	log        *logger.Logger
}

// NewHub creates a hub. Run must be started before clients register.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		done:       make(chan struct{}),
		log:        logger.Get("expose"),
	}
}

// Run is the hub's event loop. It returns after Stop, having closed every
// client.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client registered", logger.Fields(
				logger.FieldClientID, client.id,
				"total_clients", n,
			))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				client.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client unregistered", logger.Fields(
				logger.FieldClientID, client.id,
				"total_clients", n,
			))

		case msg := <-h.broadcast:
			h.broadcastWithPattern(msg.Pattern, msg.Data)
		}
	}
}

// Stop makes Run close all clients and return. Safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		client.Close()
		delete(h.clients, id)
	}
	h.log.Debug("all clients closed")
}

// Register adds a client. Returns false if the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes and closes a client.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastToPattern sends data to every client whose ID matches the glob
// pattern, e.g. "orders:*".
func (h *Hub) BroadcastToPattern(pattern string, data []byte) {
	select {
	case h.broadcast <- &Message{Pattern: pattern, Data: data}:
	case <-h.done:
	}
}

func (h *Hub) broadcastWithPattern(pattern string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for clientID, client := range h.clients {
		matched, err := filepath.Match(pattern, clientID)
		if err != nil {
			h.log.Error("pattern match failed", logger.Fields(
				"pattern", pattern,
				logger.FieldError, err.Error(),
			))
			return
		}
		if matched {
			client.Send(data)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ClientIDs returns the sorted IDs of all connected clients.
func (h *Hub) ClientIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
