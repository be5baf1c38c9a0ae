package ws

import (
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/akinalp/callrelay/models"
)

// TokenValidator, ws handler'ın access token doğrulaması.
// services.AuthService bunu karşılar; ws → services import'u döngü yaratırdı.
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*models.TokenClaims, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cihaz istemcileri Origin göndermez; tarayıcı tarafı CORS ile sınırlanır.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Handler struct {
	hub            *Hub
	tokenValidator TokenValidator
}

func NewHandler(hub *Hub, tokenValidator TokenValidator) *Handler {
	return &Handler{hub: hub, tokenValidator: tokenValidator}
}

// HandleConnection, GET /ws. Token "token" query parametresinden ya da
// Authorization: Bearer header'ından okunur.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.tokenValidator.ValidateAccessToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed for %s: %v", claims.ParticipantID, err)
		return
	}

	client := &Client{
		hub:    h.hub,
		conn:   conn,
		userID: claims.ParticipantID,
		send:   make(chan []byte, sendBufferSize),
	}

	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	client.sendEvent(Event{Op: OpReady, Data: ReadyData{
		ParticipantID:     claims.ParticipantID,
		HeartbeatInterval: int(heartbeatInterval.Seconds()),
	}})

	go client.WritePump()
	client.ReadPump()
}
