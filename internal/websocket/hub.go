package websocket

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/grassehh/pso-matchmaker-sub000/internal/notify"
)

// Hub tracks live WebSocket connections per user and pushes match lifecycle
// events to them. It also implements notify.Gateway so the services can push
// through it without knowing about connections.
type Hub struct {
	// One connection per user; a reconnect replaces the old one.
	clients map[string]*Client
	mu      sync.RWMutex

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client

	logger *zap.Logger
}

// Message is the wire envelope sent to clients.
type Message struct {
	UserID  string      `json:"-"` // recipient; empty means broadcast to all
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if oldClient, exists := h.clients[client.userID]; exists {
		close(oldClient.send)
		h.logger.Info("Replaced existing WebSocket connection",
			zap.String("userId", client.userID))
	}

	h.clients[client.userID] = client
	h.logger.Info("WebSocket client registered",
		zap.String("userId", client.userID),
		zap.Int("totalClients", len(h.clients)))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, exists := h.clients[client.userID]; exists && current == client {
		delete(h.clients, client.userID)
		close(client.send)
		h.logger.Info("WebSocket client unregistered",
			zap.String("userId", client.userID),
			zap.Int("totalClients", len(h.clients)))
	}
}

func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if message.UserID == "" {
		for _, client := range h.clients {
			select {
			case client.send <- message:
			default:
				// A full send channel means a dead or stuck peer.
				h.logger.Warn("Client send channel full, unregistering",
					zap.String("userId", client.userID))
				go func(c *Client) {
					h.unregister <- c
				}(client)
			}
		}
		return
	}

	if client, exists := h.clients[message.UserID]; exists {
		select {
		case client.send <- message:
		default:
			h.logger.Warn("Client send channel full",
				zap.String("userId", message.UserID))
		}
	}
}

// SendToUser queues a message for one user.
func (h *Hub) SendToUser(userID string, msgType string, payload interface{}) {
	h.broadcast <- &Message{
		UserID:  userID,
		Type:    msgType,
		Payload: payload,
	}
}

// Broadcast queues a message for every connected user.
func (h *Hub) Broadcast(msgType string, payload interface{}) {
	h.broadcast <- &Message{
		UserID:  "",
		Type:    msgType,
		Payload: payload,
	}
}

// Notify implements notify.Gateway. A recipient without an open connection
// simply misses the push; state is always readable over the REST surface.
func (h *Hub) Notify(_ context.Context, recipientID string, event notify.Event) {
	h.SendToUser(recipientID, event.Type, event)
}
