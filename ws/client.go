package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second

	// Client heartbeat'i 30 saniyede bir gönderir; üç kaçırma bağlantıyı düşürür.
	heartbeatInterval = 30 * time.Second
	pongWait          = 3 * heartbeatInterval

	maxMessageSize = 4096
	sendBufferSize = 64
)

// Client, tek bir websocket bağlantısı. ReadPump ve WritePump ayrı
// goroutine'lerde çalışır; gorilla conn'a eşzamanlı tek okuyucu ve tek yazar izin verir.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
	mu     sync.Mutex

	// closed, send kapatıldıktan sonra true olur. hub.mu ile korunur.
	closed bool
}

// ReadPump, bağlantı kapanana kadar gelen event'leri işler.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("[ws] failed to set read deadline for %s: %v", c.userID, err)
		return
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] unexpected close for %s: %v", c.userID, err)
			}
			return
		}

		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			log.Printf("[ws] invalid message from %s: %v", c.userID, err)
			continue
		}
		c.handleEvent(event)
	}
}

func (c *Client) handleEvent(event Event) {
	switch event.Op {
	case OpHeartbeat:
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return
		}
		c.sendEvent(Event{Op: OpHeartbeatAck})

	case OpPresenceQuery:
		var data PresenceQueryData
		if !decodeData(event, &data) || data.PeerID == "" {
			return
		}
		c.sendEvent(Event{Op: OpPresenceResult, Data: PresenceResultData{
			PeerID: data.PeerID,
			Online: c.hub.IsOnline(data.PeerID),
		}})

	case OpInviteSend:
		c.dispatchInvitation(event, c.hub.onInviteSend)
	case OpInviteAccept:
		c.dispatchInvitation(event, c.hub.onInviteAccept)
	case OpInviteRefuse:
		c.dispatchInvitation(event, c.hub.onInviteRefuse)
	case OpInviteCancel:
		c.dispatchInvitation(event, c.hub.onInviteCancel)

	default:
		log.Printf("[ws] unknown op from %s: %s", c.userID, event.Op)
	}
}

// dispatchInvitation, payload'ı parse edip callback'i ayrı goroutine'de çağırır.
func (c *Client) dispatchInvitation(event Event, fn InvitationHandler) {
	var data InvitationData
	if !decodeData(event, &data) || data.CallID == "" {
		log.Printf("[ws] %s without callId from %s", event.Op, c.userID)
		return
	}
	if fn != nil {
		go fn(c.userID, data)
	}
}

// decodeData, Event.Data'yı (any) hedef struct'a çevirir.
func decodeData(event Event, v any) bool {
	raw, err := json.Marshal(event.Data)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

func (c *Client) sendEvent(event Event) {
	event.Seq = c.hub.seq.Add(1)
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[ws] failed to marshal event for %s: %v", c.userID, err)
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		log.Printf("[ws] send buffer full for %s, dropping connection", c.userID)
		go c.hub.drop(c)
	}
}

// WritePump, send kanalındaki mesajları bağlantıya yazar.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.writeMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.writeMessage(websocket.CloseMessage, nil)
}

func (c *Client) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
