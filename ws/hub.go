package ws

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"

	"github.com/akinalp/callrelay/pkg/metrics"
	"github.com/akinalp/callrelay/pkg/push"
)

// EventPublisher, service katmanının hub'a bağımlı olduğu yüz.
type EventPublisher interface {
	BroadcastToUser(userID string, event Event) bool
	IsOnline(userID string) bool
	GetOnlineUserIDs() []string
}

// InvitationHandler, client'tan gelen invite_* event'lerini işleyen callback.
type InvitationHandler func(userID string, data InvitationData)

// Hub, katılımcı başına açık bağlantıları tutar.
type Hub struct {
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	closeOnce  sync.Once

	seq     atomic.Int64
	metrics *metrics.Metrics

	onUserFullyDisconnected func(userID string)
	onInviteSend            InvitationHandler
	onInviteAccept          InvitationHandler
	onInviteRefuse          InvitationHandler
	onInviteCancel          InvitationHandler
}

// NewHub, hub oluşturur. m nil olabilir.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		metrics:    m,
	}
}

// Callback setter'ları Run'dan önce çağrılmalıdır.

func (h *Hub) OnUserFullyDisconnected(fn func(userID string)) { h.onUserFullyDisconnected = fn }
func (h *Hub) OnInviteSend(fn InvitationHandler)               { h.onInviteSend = fn }
func (h *Hub) OnInviteAccept(fn InvitationHandler)             { h.onInviteAccept = fn }
func (h *Hub) OnInviteRefuse(fn InvitationHandler)             { h.onInviteRefuse = fn }
func (h *Hub) OnInviteCancel(fn InvitationHandler)             { h.onInviteCancel = fn }

// Run, register/unregister döngüsü. Shutdown ile biter.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-h.done:
			return
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.userID]; !ok {
		h.clients[client.userID] = make(map[*Client]bool)
	}
	h.clients[client.userID][client] = true
	h.metrics.ClientConnected(1)

	log.Printf("[ws] client connected: participant=%s (connections: %d)",
		client.userID, len(h.clients[client.userID]))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}

	delete(clients, client)
	client.closed = true
	close(client.send)
	h.metrics.ClientConnected(-1)

	if len(clients) > 0 {
		log.Printf("[ws] client disconnected: participant=%s (remaining: %d)", client.userID, len(clients))
		return
	}

	delete(h.clients, client.userID)
	log.Printf("[ws] participant fully disconnected: %s", client.userID)
	// Hub lock'u tutulurken callback'in BroadcastToUser çağırması deadlock olur.
	if h.onUserFullyDisconnected != nil {
		go h.onUserFullyDisconnected(client.userID)
	}
}

// BroadcastToUser, katılımcının tüm bağlantılarına event yazar.
// En az bir bağlantının buffer'ına yazılabildiyse true döner.
func (h *Hub) BroadcastToUser(userID string, event Event) bool {
	event.Seq = h.seq.Add(1)

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[ws] failed to marshal %s event: %v", event.Op, err)
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := false
	for client := range h.clients[userID] {
		select {
		case client.send <- data:
			delivered = true
		default:
			// Buffer dolu, yavaş client düşürülür.
			go h.drop(client)
		}
	}
	return delivered
}

// SendSignal, Web endpoint'leri için push.SignalPublisher implementasyonu.
func (h *Hub) SendSignal(userID string, payload push.Payload) bool {
	return h.BroadcastToUser(userID, Event{Op: OpSignal, Data: payload})
}

func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

func (h *Hub) GetOnlineUserIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.clients))
	for userID := range h.clients {
		ids = append(ids, userID)
	}
	return ids
}

func (h *Hub) drop(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Shutdown, tüm bağlantıları kapatır ve Run döngüsünü bitirir.
func (h *Hub) Shutdown() {
	h.closeOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		defer h.mu.Unlock()
		for _, clients := range h.clients {
			for client := range clients {
				client.closed = true
				close(client.send)
				h.metrics.ClientConnected(-1)
			}
		}
		h.clients = make(map[string]map[*Client]bool)
		log.Println("[ws] hub shut down, all connections closed")
	})
}
