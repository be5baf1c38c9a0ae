// Package presence, cihaz tarafında relay'in websocket hub'ına bağlanan
// realtime kanal. callcenter.PresenceChannel arayüzünü karşılar: presence
// sorgusu ve push'a paralel davet el sıkışması. Web endpoint'leri için hub'ın
// "signal" mesajlarını da SignalingEvent olarak dışarı verir.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akinalp/callrelay/callcenter"
	"github.com/akinalp/callrelay/models"
	"github.com/akinalp/callrelay/pkg/push"
	"github.com/akinalp/callrelay/ws"
)

const (
	writeWait     = 10 * time.Second
	readyWait     = 10 * time.Second
	inboundBuffer = 32
)

// ErrClosed, bağlantı kapandıktan sonraki çağrılarda döner.
var ErrClosed = errors.New("presence connection closed")

type wireEvent struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
	Seq  int64           `json:"seq,omitempty"`
}

// Client, tek bir websocket bağlantısı.
type Client struct {
	conn          *websocket.Conn
	participantID string

	writeMu sync.Mutex

	mu        sync.Mutex
	presence  map[string][]chan bool
	invites   map[string]chan callcenter.InvitationOutcome
	closed    bool
	closeOnce sync.Once

	incoming chan callcenter.Invitation
	signals  chan models.SignalingEvent
	done     chan struct{}
}

// Dial, hub'a bağlanır ve ready event'ini bekler. url ws(s)://host/ws biçimindedir.
func Dial(ctx context.Context, url, accessToken string) (*Client, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+accessToken)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial presence hub: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial presence hub: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(readyWait))
	var first wireEvent
	if err := conn.ReadJSON(&first); err != nil || first.Op != ws.OpReady {
		conn.Close()
		return nil, fmt.Errorf("presence hub did not send ready: %v", err)
	}
	var ready ws.ReadyData
	if err := json.Unmarshal(first.Data, &ready); err != nil {
		conn.Close()
		return nil, fmt.Errorf("decode ready: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	c := &Client{
		conn:          conn,
		participantID: ready.ParticipantID,
		presence:      make(map[string][]chan bool),
		invites:       make(map[string]chan callcenter.InvitationOutcome),
		incoming:      make(chan callcenter.Invitation, inboundBuffer),
		signals:       make(chan models.SignalingEvent, inboundBuffer),
		done:          make(chan struct{}),
	}
	go c.readLoop()
	if ready.HeartbeatInterval > 0 {
		go c.heartbeat(time.Duration(ready.HeartbeatInterval) * time.Second)
	}

	log.Printf("[presence] connected as %s", ready.ParticipantID)
	return c, nil
}

// ParticipantID, hub'ın token'dan çözdüğü kimlik.
func (c *Client) ParticipantID() string { return c.participantID }

// Done, bağlantı kapandığında kapanır.
func (c *Client) Done() <-chan struct{} { return c.done }

// Incoming, bu katılımcıya gelen davetler ve iptalleri.
func (c *Client) Incoming() <-chan callcenter.Invitation { return c.incoming }

// Signals, hub üzerinden teslim edilen (Web endpoint) signaling event'leri.
func (c *Client) Signals() <-chan models.SignalingEvent { return c.signals }

// QueryOnline, peer'ın hub'da en az bir açık bağlantısı var mı.
func (c *Client) QueryOnline(ctx context.Context, peerID string) (callcenter.Presence, error) {
	ch := make(chan bool, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return callcenter.PresenceUnreachable, ErrClosed
	}
	c.presence[peerID] = append(c.presence[peerID], ch)
	c.mu.Unlock()

	if err := c.send(ws.OpPresenceQuery, ws.PresenceQueryData{PeerID: peerID}); err != nil {
		return callcenter.PresenceUnreachable, err
	}

	select {
	case online := <-ch:
		if online {
			return callcenter.PresenceOnline, nil
		}
		return callcenter.PresenceOffline, nil
	case <-c.done:
		return callcenter.PresenceUnreachable, ErrClosed
	case <-ctx.Done():
		return callcenter.PresenceUnreachable, ctx.Err()
	}
}

// SendInvitation, daveti gönderir ve cevap, red, bağlantı kaybı veya ctx
// bitişine kadar bekler. Hub'ın "refused" dışındaki red sebepleri
// (offline, timeout, disconnect) InvitationFailed olarak döner.
func (c *Client) SendInvitation(ctx context.Context, peerID string, inv callcenter.Invitation) (callcenter.InvitationOutcome, error) {
	ch := make(chan callcenter.InvitationOutcome, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return callcenter.InvitationFailed, ErrClosed
	}
	if _, exists := c.invites[inv.CallID]; exists {
		c.mu.Unlock()
		return callcenter.InvitationFailed, fmt.Errorf("invitation %s already in flight", inv.CallID)
	}
	c.invites[inv.CallID] = ch
	c.mu.Unlock()
	defer c.forgetInvite(inv.CallID, ch)

	data := ws.InvitationData{
		CallID:     inv.CallID,
		ToID:       peerID,
		CallerName: inv.CallerName,
		Channel:    inv.Channel,
		BundleID:   inv.BundleID,
	}
	if err := c.send(ws.OpInviteSend, data); err != nil {
		return callcenter.InvitationFailed, err
	}

	select {
	case outcome := <-ch:
		return outcome, nil
	case <-c.done:
		return callcenter.InvitationFailed, ErrClosed
	case <-ctx.Done():
		return callcenter.InvitationFailed, ctx.Err()
	}
}

func (c *Client) CancelInvitation(_ context.Context, callID string) error {
	return c.send(ws.OpInviteCancel, ws.InvitationData{CallID: callID})
}

func (c *Client) AcceptInvitation(_ context.Context, callID string) error {
	return c.send(ws.OpInviteAccept, ws.InvitationData{CallID: callID})
}

// RefuseInvitation, ring timeout'u "timeout" olarak bildirir; arayan taraf
// bunu ret saymaz ve push yolundan gelen NotAnswered ile biter.
func (c *Client) RefuseInvitation(_ context.Context, callID string, reason models.EndReason) error {
	inviteReason := ws.InviteReasonRefused
	if reason == models.ReasonNotAnswered {
		inviteReason = ws.InviteReasonTimeout
	}
	return c.send(ws.OpInviteRefuse, ws.InvitationData{CallID: callID, Reason: inviteReason})
}

// Close, bağlantıyı kapatır; bekleyen çağrılar ErrClosed ile döner.
func (c *Client) Close() error {
	c.shutdown()
	return nil
}

func (c *Client) send(op string, data any) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := c.conn.WriteJSON(ws.Event{Op: op, Data: data}); err != nil {
		return fmt.Errorf("write %s: %w", op, err)
	}
	return nil
}

func (c *Client) heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.send(ws.OpHeartbeat, nil); err != nil {
				log.Printf("[presence] heartbeat failed: %v", err)
				c.shutdown()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) readLoop() {
	defer c.shutdown()

	for {
		var ev wireEvent
		if err := c.conn.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !c.isClosed() {
				log.Printf("[presence] read failed: %v", err)
			}
			return
		}
		c.handle(ev)
	}
}

func (c *Client) handle(ev wireEvent) {
	switch ev.Op {
	case ws.OpPresenceResult:
		var data ws.PresenceResultData
		if json.Unmarshal(ev.Data, &data) != nil {
			return
		}
		c.mu.Lock()
		waiters := c.presence[data.PeerID]
		delete(c.presence, data.PeerID)
		c.mu.Unlock()
		for _, ch := range waiters {
			ch <- data.Online
		}

	case ws.OpInviteAccepted, ws.OpInviteRefused:
		var data ws.InvitationData
		if json.Unmarshal(ev.Data, &data) != nil {
			return
		}
		outcome := callcenter.InvitationAccepted
		if ev.Op == ws.OpInviteRefused {
			outcome = callcenter.InvitationFailed
			if data.Reason == ws.InviteReasonRefused {
				outcome = callcenter.InvitationRefused
			}
		}
		c.resolveInvite(data.CallID, outcome)

	case ws.OpInviteReceived, ws.OpInviteCanceled:
		var data ws.InvitationData
		if json.Unmarshal(ev.Data, &data) != nil || data.CallID == "" {
			return
		}
		// Kendi gönderdiğimiz davetin diğer cihazlarımıza yansıması değilse ilet.
		if data.ToID != "" && data.ToID != c.participantID {
			return
		}
		inv := callcenter.Invitation{
			CallID:     data.CallID,
			FromID:     data.FromID,
			ToID:       data.ToID,
			CallerName: data.CallerName,
			Channel:    data.Channel,
			BundleID:   data.BundleID,
			Canceled:   ev.Op == ws.OpInviteCanceled,
		}
		select {
		case c.incoming <- inv:
		case <-c.done:
		}

	case ws.OpSignal:
		var p push.Payload
		if json.Unmarshal(ev.Data, &p) != nil {
			return
		}
		select {
		case c.signals <- p.Event():
		case <-c.done:
		}

	case ws.OpHeartbeatAck:
	default:
		log.Printf("[presence] ignoring op %q", ev.Op)
	}
}

func (c *Client) resolveInvite(callID string, outcome callcenter.InvitationOutcome) {
	c.mu.Lock()
	ch, ok := c.invites[callID]
	delete(c.invites, callID)
	c.mu.Unlock()
	if ok {
		ch <- outcome
	}
}

func (c *Client) forgetInvite(callID string, ch chan callcenter.InvitationOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.invites[callID] == ch {
		delete(c.invites, callID)
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		c.conn.Close()
		close(c.done)
	})
}
