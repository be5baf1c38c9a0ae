// WebSocket Hub callback wire-up.
//
// registerHubCallbacks, Hub'ın davet ve disconnect callback'lerini ayarlar.
// Hub ws paketinde yaşar, davet durumu ise services katmanındadır; hub'ın
// service'lere bağımlı olmaması için bağlantı main'de kurulur.
package main

import (
	"log"

	"github.com/akinalp/callrelay/services"
	"github.com/akinalp/callrelay/ws"
)

// registerHubCallbacks, tüm Hub callback'lerini register eder. hub.Run'dan önce çağrılmalıdır.
func registerHubCallbacks(hub *ws.Hub, invitations services.InvitationService) {
	// ─── Presence ───

	hub.OnUserFullyDisconnected(func(userID string) {
		log.Printf("[presence] participant %s went offline", userID)
		invitations.HandleDisconnect(userID)
	})

	// ─── Realtime Davetler ───

	hub.OnInviteSend(func(userID string, data ws.InvitationData) {
		if err := invitations.Send(userID, data); err != nil {
			log.Printf("[invite] send error from=%s call=%s: %v", userID, data.CallID, err)
		}
	})
	hub.OnInviteAccept(func(userID string, data ws.InvitationData) {
		if err := invitations.Accept(userID, data); err != nil {
			log.Printf("[invite] accept error user=%s call=%s: %v", userID, data.CallID, err)
		}
	})
	hub.OnInviteRefuse(func(userID string, data ws.InvitationData) {
		if err := invitations.Refuse(userID, data); err != nil {
			log.Printf("[invite] refuse error user=%s call=%s: %v", userID, data.CallID, err)
		}
	})
	hub.OnInviteCancel(func(userID string, data ws.InvitationData) {
		if err := invitations.Cancel(userID, data); err != nil {
			log.Printf("[invite] cancel error user=%s call=%s: %v", userID, data.CallID, err)
		}
	})
}
