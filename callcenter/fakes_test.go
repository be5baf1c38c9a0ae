package callcenter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/akinalp/callrelay/models"
)

// loopbackRelay, relay'in fan-out kurallarını registry'ye geri besler:
// callRequest callee'ye, callAccepted iki tarafa, endCallRequest iki tarafa gider.
// reg nil ise sadece kayıt tutar.
type loopbackRelay struct {
	mu       sync.Mutex
	reg      *Registry
	hold     bool
	queued   []func()
	requests []models.CallRequest
	accepted []models.CallAcceptedRequest
	ends     []models.EndCallRequest
}

func (r *loopbackRelay) CallRequest(_ context.Context, req *models.CallRequest) (*models.DispatchSummary, error) {
	r.mu.Lock()
	r.requests = append(r.requests, *req)
	r.mu.Unlock()
	r.route(func(reg *Registry) { reg.Deliver(req.CalleeID, req.Event()) })
	return &models.DispatchSummary{CallID: req.CallID, Kind: models.KindIncoming}, nil
}

func (r *loopbackRelay) CallAccepted(_ context.Context, req *models.CallAcceptedRequest) (*models.DispatchSummary, error) {
	r.mu.Lock()
	r.accepted = append(r.accepted, *req)
	r.mu.Unlock()
	r.route(func(reg *Registry) {
		reg.Deliver(req.CallerID, req.Event())
		reg.Deliver(req.CalleeID, req.Event())
	})
	return &models.DispatchSummary{CallID: req.CallID, Kind: models.KindAccepted}, nil
}

func (r *loopbackRelay) EndCall(_ context.Context, req *models.EndCallRequest) (*models.DispatchSummary, error) {
	r.mu.Lock()
	r.ends = append(r.ends, *req)
	r.mu.Unlock()
	r.route(func(reg *Registry) {
		reg.Deliver(req.CallerID, req.Event())
		reg.Deliver(req.CalleeID, req.Event())
	})
	return &models.DispatchSummary{CallID: req.CallID, Kind: models.KindEnded}, nil
}

func (r *loopbackRelay) route(fn func(reg *Registry)) {
	r.mu.Lock()
	reg := r.reg
	if reg != nil && r.hold {
		r.queued = append(r.queued, func() { fn(reg) })
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	if reg != nil {
		fn(reg)
	}
}

// flush, hold modunda biriken teslimatları sırayla yapar ve hold'u kapatır.
func (r *loopbackRelay) flush() {
	r.mu.Lock()
	queued := r.queued
	r.queued = nil
	r.hold = false
	r.mu.Unlock()
	for _, fn := range queued {
		fn()
	}
}

func (r *loopbackRelay) counts() (requests, accepted, ends int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests), len(r.accepted), len(r.ends)
}

func (r *loopbackRelay) endRequests() []models.EndCallRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.EndCallRequest(nil), r.ends...)
}

type fakePresence struct {
	online   Presence
	outcome  chan InvitationOutcome
	incoming chan Invitation

	mu            sync.Mutex
	sent          []Invitation
	canceled      []string
	accepted      []string
	refused       []string
	refuseReasons []models.EndReason
}

func newFakePresence() *fakePresence {
	return &fakePresence{
		online:   PresenceOnline,
		outcome:  make(chan InvitationOutcome, 1),
		incoming: make(chan Invitation),
	}
}

func (p *fakePresence) QueryOnline(context.Context, string) (Presence, error) { return p.online, nil }

func (p *fakePresence) SendInvitation(ctx context.Context, _ string, inv Invitation) (InvitationOutcome, error) {
	p.mu.Lock()
	p.sent = append(p.sent, inv)
	p.mu.Unlock()
	select {
	case o := <-p.outcome:
		return o, nil
	case <-ctx.Done():
		return InvitationFailed, ctx.Err()
	}
}

func (p *fakePresence) CancelInvitation(_ context.Context, callID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.canceled = append(p.canceled, callID)
	return nil
}

func (p *fakePresence) AcceptInvitation(_ context.Context, callID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accepted = append(p.accepted, callID)
	return nil
}

func (p *fakePresence) RefuseInvitation(_ context.Context, callID string, reason models.EndReason) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refused = append(p.refused, callID)
	p.refuseReasons = append(p.refuseReasons, reason)
	return nil
}

func (p *fakePresence) Incoming() <-chan Invitation { return p.incoming }

func (p *fakePresence) refusals() []models.EndReason {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.EndReason(nil), p.refuseReasons...)
}

func (p *fakePresence) snapshot() (sent int, canceled, accepted []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent), append([]string(nil), p.canceled...), append([]string(nil), p.accepted...)
}

type fakeMedia struct {
	joinErr error

	mu     sync.Mutex
	joined []string
	left   []string
}

func (m *fakeMedia) Join(_ context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.joinErr != nil {
		return m.joinErr
	}
	m.joined = append(m.joined, channel)
	return nil
}

func (m *fakeMedia) Leave(_ context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.left = append(m.left, channel)
	return nil
}

func (m *fakeMedia) calls() (joined, left int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.joined), len(m.left)
}

var errDenied = errors.New("call request denied by system")

// countedPhone, HeadlessTelephony'nin kaç kez çaldırıldığını sayar.
type countedPhone struct {
	*HeadlessTelephony
	presents atomic.Int32
}

func newCountedPhone(opts HeadlessOptions) *countedPhone {
	return &countedPhone{HeadlessTelephony: NewHeadlessTelephony(opts)}
}

func (p *countedPhone) PresentIncomingCall(ctx context.Context, callID, fromHandle string) error {
	p.presents.Add(1)
	return p.HeadlessTelephony.PresentIncomingCall(ctx, callID, fromHandle)
}

// harness, bir registry ve katılımcı başına headless telephony.
// phones, presence ve media ilk spawn'dan önce değiştirilebilir.
type harness struct {
	t        *testing.T
	relay    *loopbackRelay
	reg      *Registry
	phones   map[string]*countedPhone
	presence PresenceChannel
	media    MediaEngine
	cfg      Config

	// anonymous true ise factory isim ve bundle id doldurmaz.
	anonymous bool
}

func newHarness(t *testing.T, cfg Config, locals ...string) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		relay:  &loopbackRelay{},
		phones: make(map[string]*countedPhone),
		cfg:    cfg,
	}
	for _, id := range locals {
		h.phones[id] = newCountedPhone(HeadlessOptions{})
	}
	h.reg = NewRegistry(func(localID string) (Config, Deps) {
		c := h.cfg
		if !h.anonymous {
			c.LocalName = "name-" + localID
			c.BundleID = "com.app"
		}
		return c, Deps{Relay: h.relay, Telephony: h.phones[localID], Presence: h.presence, Media: h.media}
	}, time.Minute)
	h.relay.reg = h.reg
	t.Cleanup(h.reg.Close)
	return h
}

// isolated, relay'i registry'den koparır; RPC'ler sadece kaydedilir.
func (h *harness) isolated() *harness {
	h.relay.mu.Lock()
	h.relay.reg = nil
	h.relay.mu.Unlock()
	return h
}

func (h *harness) state(localID string) State {
	s, ok := h.reg.Session(localID)
	if !ok {
		return StateIdle
	}
	return s.State
}

func (h *harness) waitState(localID string, want State) Session {
	h.t.Helper()
	var s Session
	waitFor(h.t, localID+" reaching "+string(want), func() bool {
		var ok bool
		s, ok = h.reg.Session(localID)
		if want == StateIdle {
			return !ok
		}
		return ok && s.State == want
	})
	return s
}

// coordinator, katılımcının o anki coordinator'ı.
func (h *harness) coordinator(localID string) *Coordinator {
	h.t.Helper()
	c, ok := h.reg.Lookup(localID)
	if !ok {
		h.t.Fatalf("Lookup(%s) found no coordinator", localID)
	}
	return c
}

// waitEnded, coordinator bitene kadar bekler ve son oturumu döner.
func (h *harness) waitEnded(c *Coordinator) Session {
	h.t.Helper()
	select {
	case <-c.Done():
	case <-time.After(3 * time.Second):
		h.t.Fatalf("coordinator for %s did not finish", c.cfg.LocalID)
	}
	return c.Snapshot()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func incoming(callID, from, to string) models.SignalingEvent {
	return models.SignalingEvent{
		Kind: models.KindIncoming, CallID: callID, CallerID: from, CalleeID: to,
		CallerName: "name-" + from, Channel: "room-7", BundleID: "com.app",
	}
}

func event(kind models.EventKind, callID, from, to string) models.SignalingEvent {
	ev := incoming(callID, from, to)
	ev.Kind = kind
	return ev
}

func endsWith(ends []models.EndCallRequest, reason models.EndReason) []models.EndCallRequest {
	var out []models.EndCallRequest
	for _, e := range ends {
		if e.Reason == reason {
			out = append(out, e)
		}
	}
	return out
}
