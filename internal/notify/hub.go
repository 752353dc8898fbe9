package notify

import (
	"sync"

	"github.com/shaamilshan/hamme/pkg/log"
)

// Hub tracks connected clients by user.
type Hub struct {
	users map[string]map[string]*Client // userID -> clientID -> client
	mu    sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{users: make(map[string]map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.users[client.UserID]
	if !ok {
		clients = make(map[string]*Client)
		h.users[client.UserID] = clients
	}
	clients[client.ID] = client

	l := log.L()
	l.Debug().Str("client_id", client.ID).Str(log.FieldUserID, client.UserID).Msg("client registered")
}

// Unregister removes client and closes its send queue. Calling it twice is safe.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.users[client.UserID]
	if !ok {
		return
	}
	if _, ok := clients[client.ID]; !ok {
		return
	}

	delete(clients, client.ID)
	if len(clients) == 0 {
		delete(h.users, client.UserID)
	}
	close(client.Send)

	l := log.L()
	l.Debug().Str("client_id", client.ID).Str(log.FieldUserID, client.UserID).Msg("client unregistered")
}

// deliver queues data for client unless it is unregistered or its queue is full.
func (h *Hub) deliver(client *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.users[client.UserID][client.ID]; !ok {
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}

// ClientCount returns the number of connections of userID.
func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// CloseAll unregisters every client, which ends their write pumps.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, clients := range h.users {
		for _, c := range clients {
			close(c.Send)
		}
		delete(h.users, userID)
	}
}
