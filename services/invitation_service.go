package services

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/akinalp/callrelay/pkg"
	"github.com/akinalp/callrelay/pkg/metrics"
	"github.com/akinalp/callrelay/ws"
)

// InvitationService, realtime kanal üzerindeki davet el sıkışmasını yürütür.
//
// Davet push ile giden callRequest'in paralel, fırsatçı yoludur: iki taraf da
// bağlıysa cevap push'tan önce ulaşır. State tamamen bellektedir; relay
// yeniden başlarsa bekleyen davetler düşer ve cihazlar push yoluna kalır.
//
// Akış:
//  1. Arayan invite_send → karşı taraf online ise invite_received, değilse arayana invite_refused(offline)
//  2. Aranan invite_accept / invite_refuse → arayana invite_accepted / invite_refused
//  3. Arayan invite_cancel → arananın invite_canceled alır
//  4. Cevapsız kalan davet TTL sonunda iki tarafa da timeout ile kapanır
type InvitationService interface {
	Send(fromID string, data ws.InvitationData) error
	Accept(userID string, data ws.InvitationData) error
	Refuse(userID string, data ws.InvitationData) error
	Cancel(userID string, data ws.InvitationData) error
	HandleDisconnect(userID string)
	Pending(callID string) (ws.InvitationData, bool)
	Close()
}

type pendingInvitation struct {
	data  ws.InvitationData
	timer *time.Timer
}

type invitationService struct {
	hub     ws.EventPublisher
	metrics *metrics.Metrics
	ttl     time.Duration

	mu      sync.Mutex
	pending map[string]*pendingInvitation // callID → davet
}

// NewInvitationService, constructor. ttl davetin cevapsız kalabileceği süredir
// (çalma süresiyle aynı tutulur).
func NewInvitationService(hub ws.EventPublisher, m *metrics.Metrics, ttl time.Duration) InvitationService {
	return &invitationService{
		hub:     hub,
		metrics: m,
		ttl:     ttl,
		pending: make(map[string]*pendingInvitation),
	}
}

func (s *invitationService) Send(fromID string, data ws.InvitationData) error {
	data.FromID = fromID
	if data.ToID == "" || data.ToID == fromID {
		return fmt.Errorf("%w: invalid invitation target", pkg.ErrBadRequest)
	}

	if !s.hub.IsOnline(data.ToID) {
		s.notify(fromID, ws.OpInviteRefused, data, ws.InviteReasonOffline)
		return fmt.Errorf("%w: participant is offline", pkg.ErrBadRequest)
	}

	s.mu.Lock()
	if _, exists := s.pending[data.CallID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: invitation %s already pending", pkg.ErrAlreadyExists, data.CallID)
	}
	callID := data.CallID
	s.pending[callID] = &pendingInvitation{
		data:  data,
		timer: time.AfterFunc(s.ttl, func() { s.expire(callID) }),
	}
	s.mu.Unlock()
	s.metrics.InvitationsChanged(1)

	log.Printf("[invite] %s -> %s call=%s", fromID, data.ToID, callID)
	s.notify(data.ToID, ws.OpInviteReceived, data, "")
	return nil
}

func (s *invitationService) Accept(userID string, data ws.InvitationData) error {
	inv, err := s.take(data.CallID, func(p ws.InvitationData) bool { return p.ToID == userID })
	if err != nil {
		return err
	}
	log.Printf("[invite] call=%s accepted by %s", inv.CallID, userID)
	s.notify(inv.FromID, ws.OpInviteAccepted, inv, "")
	return nil
}

func (s *invitationService) Refuse(userID string, data ws.InvitationData) error {
	inv, err := s.take(data.CallID, func(p ws.InvitationData) bool { return p.ToID == userID })
	if err != nil {
		return err
	}
	reason := data.Reason
	if reason == "" {
		reason = ws.InviteReasonRefused
	}
	log.Printf("[invite] call=%s refused by %s (%s)", inv.CallID, userID, reason)
	s.notify(inv.FromID, ws.OpInviteRefused, inv, reason)
	return nil
}

func (s *invitationService) Cancel(userID string, data ws.InvitationData) error {
	inv, err := s.take(data.CallID, func(p ws.InvitationData) bool { return p.FromID == userID })
	if err != nil {
		return err
	}
	log.Printf("[invite] call=%s canceled by %s", inv.CallID, userID)
	s.notify(inv.ToID, ws.OpInviteCanceled, inv, ws.InviteReasonCanceled)
	return nil
}

// HandleDisconnect, tüm bağlantıları kopan katılımcının davetlerini kapatır.
func (s *invitationService) HandleDisconnect(userID string) {
	s.mu.Lock()
	var affected []ws.InvitationData
	for callID, p := range s.pending {
		if p.data.FromID == userID || p.data.ToID == userID {
			p.timer.Stop()
			delete(s.pending, callID)
			affected = append(affected, p.data)
		}
	}
	s.mu.Unlock()

	for _, inv := range affected {
		s.metrics.InvitationsChanged(-1)
		if inv.FromID == userID {
			s.notify(inv.ToID, ws.OpInviteCanceled, inv, ws.InviteReasonDisconnect)
		} else {
			s.notify(inv.FromID, ws.OpInviteRefused, inv, ws.InviteReasonDisconnect)
		}
	}
	if len(affected) > 0 {
		log.Printf("[invite] closed %d invitation(s) after %s disconnected", len(affected), userID)
	}
}

func (s *invitationService) Pending(callID string) (ws.InvitationData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[callID]
	if !ok {
		return ws.InvitationData{}, false
	}
	return p.data, true
}

// Close, bekleyen tüm timer'ları durdurur.
func (s *invitationService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for callID, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, callID)
		s.metrics.InvitationsChanged(-1)
	}
}

func (s *invitationService) expire(callID string) {
	s.mu.Lock()
	p, ok := s.pending[callID]
	if ok {
		delete(s.pending, callID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	s.metrics.InvitationsChanged(-1)
	log.Printf("[invite] call=%s timed out", callID)
	s.notify(p.data.FromID, ws.OpInviteRefused, p.data, ws.InviteReasonTimeout)
	s.notify(p.data.ToID, ws.OpInviteCanceled, p.data, ws.InviteReasonTimeout)
}

// take, daveti yetki kontrolüyle birlikte bekleyenlerden çıkarır.
func (s *invitationService) take(callID string, allowed func(ws.InvitationData) bool) (ws.InvitationData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[callID]
	if !ok {
		return ws.InvitationData{}, fmt.Errorf("%w: invitation not found", pkg.ErrNotFound)
	}
	if !allowed(p.data) {
		return ws.InvitationData{}, fmt.Errorf("%w: not part of this invitation", pkg.ErrForbidden)
	}
	p.timer.Stop()
	delete(s.pending, callID)
	s.metrics.InvitationsChanged(-1)
	return p.data, nil
}

func (s *invitationService) notify(userID, op string, data ws.InvitationData, reason string) {
	data.Reason = reason
	s.hub.BroadcastToUser(userID, ws.Event{Op: op, Data: data})
}
