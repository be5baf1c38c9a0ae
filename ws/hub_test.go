package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akinalp/callrelay/models"
	"github.com/akinalp/callrelay/pkg/push"
)

// tokenIsID, token'ı doğrudan participant id olarak kabul eder.
type tokenIsID struct{}

func (tokenIsID) ValidateAccessToken(token string) (*models.TokenClaims, error) {
	if token == "bad" {
		return nil, errors.New("invalid")
	}
	return &models.TokenClaims{ParticipantID: token}, nil
}

type wireEvent struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"d"`
	Seq  int64           `json:"seq"`
}

func newTestServer(t *testing.T, configure func(h *Hub)) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(nil)
	if configure != nil {
		configure(hub)
	}
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(NewHandler(hub, tokenIsID{}).HandleConnection))
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial(%s) error = %v", token, err)
	}
	t.Cleanup(func() { conn.Close() })

	if ev := readEvent(t, conn); ev.Op != OpReady {
		t.Fatalf("first op = %q, want %q", ev.Op, OpReady)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev wireEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return ev
}

func waitOnline(t *testing.T, hub *Hub, userID string, want bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.IsOnline(userID) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("IsOnline(%s) never became %v", userID, want)
}

func TestHandshakeRequiresValidToken(t *testing.T) {
	_, srv := newTestServer(t, nil)

	for _, path := range []string{"/ws", "/ws?token=bad"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("GET %s status = %d, want 401", path, resp.StatusCode)
		}
	}
}

func TestReadyCarriesParticipantAndHeartbeat(t *testing.T) {
	_, srv := newTestServer(t, nil)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{"Authorization": []string{"Bearer alice"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	ev := readEvent(t, conn)
	var ready ReadyData
	if err := json.Unmarshal(ev.Data, &ready); err != nil {
		t.Fatalf("decode ready: %v", err)
	}
	if ev.Op != OpReady || ready.ParticipantID != "alice" || ready.HeartbeatInterval != 30 {
		t.Fatalf("ready = %s %+v", ev.Op, ready)
	}
}

func TestHeartbeatAndPresenceQuery(t *testing.T) {
	hub, srv := newTestServer(t, nil)
	alice := dial(t, srv, "alice")
	dial(t, srv, "bob")
	waitOnline(t, hub, "bob", true)

	if err := alice.WriteJSON(Event{Op: OpHeartbeat}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if ev := readEvent(t, alice); ev.Op != OpHeartbeatAck {
		t.Fatalf("op = %q, want heartbeat_ack", ev.Op)
	}

	for _, peer := range []struct {
		id   string
		want bool
	}{{"bob", true}, {"carol", false}} {
		alice.WriteJSON(Event{Op: OpPresenceQuery, Data: PresenceQueryData{PeerID: peer.id}})
		ev := readEvent(t, alice)
		var res PresenceResultData
		json.Unmarshal(ev.Data, &res)
		if ev.Op != OpPresenceResult || res.PeerID != peer.id || res.Online != peer.want {
			t.Fatalf("presence(%s) = %s %+v, want online=%v", peer.id, ev.Op, res, peer.want)
		}
	}
}

func TestSendSignalReachesEveryConnection(t *testing.T) {
	hub, srv := newTestServer(t, nil)
	phone := dial(t, srv, "alice")
	laptop := dial(t, srv, "alice")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.RLock()
		n := len(hub.clients["alice"])
		hub.mu.RUnlock()
		if n == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	payload := push.Payload{Kind: models.KindEnded, CallState: models.KindEnded, CallID: "c1", CallerID: "bob", CalleeID: "alice"}
	if !hub.SendSignal("alice", payload) {
		t.Fatal("SendSignal() = false, want delivered")
	}
	for _, conn := range []*websocket.Conn{phone, laptop} {
		ev := readEvent(t, conn)
		var got push.Payload
		json.Unmarshal(ev.Data, &got)
		if ev.Op != OpSignal || got.CallID != "c1" || got.Kind != models.KindEnded {
			t.Fatalf("signal = %s %+v", ev.Op, got)
		}
	}

	if hub.SendSignal("nobody", payload) {
		t.Fatal("SendSignal() to offline participant = true")
	}
}

func TestInvitationOpsReachCallbacks(t *testing.T) {
	got := make(chan InvitationData, 1)
	_, srv := newTestServer(t, func(h *Hub) {
		h.OnInviteSend(func(userID string, data InvitationData) {
			data.FromID = userID
			got <- data
		})
	})
	alice := dial(t, srv, "alice")

	// callId'siz davet yok sayılır.
	alice.WriteJSON(Event{Op: OpInviteSend, Data: InvitationData{ToID: "bob"}})
	alice.WriteJSON(Event{Op: OpInviteSend, Data: InvitationData{CallID: "c1", ToID: "bob"}})

	select {
	case inv := <-got:
		if inv.CallID != "c1" || inv.FromID != "alice" || inv.ToID != "bob" {
			t.Fatalf("invitation = %+v", inv)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("invite_send callback not invoked")
	}
}

func TestFullDisconnectCallback(t *testing.T) {
	gone := make(chan string, 1)
	hub, srv := newTestServer(t, func(h *Hub) {
		h.OnUserFullyDisconnected(func(userID string) { gone <- userID })
	})
	first := dial(t, srv, "alice")
	second := dial(t, srv, "alice")
	waitOnline(t, hub, "alice", true)

	first.Close()
	select {
	case id := <-gone:
		t.Fatalf("callback fired for %s while a connection remains", id)
	case <-time.After(100 * time.Millisecond):
	}

	second.Close()
	select {
	case id := <-gone:
		if id != "alice" {
			t.Fatalf("callback userID = %q, want alice", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("full disconnect callback not invoked")
	}
	waitOnline(t, hub, "alice", false)
}
