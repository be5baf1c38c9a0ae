package callcenter

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akinalp/callrelay/models"
	"github.com/akinalp/callrelay/pkg"
)

const inboxSize = 128

// Config, coordinator ayarları.
type Config struct {
	LocalID   string
	LocalName string
	BundleID  string

	RingTimeout   time.Duration // callee tarafı cevapsız kalma süresi
	AnswerTimeout time.Duration // caller tarafı cevap bekleme süresi
	RPCTimeout    time.Duration // relay ve davet çağrılarının tek tek süresi

	// NotifyBusy, meşgulken gelen yabancı Incoming'e endCallRequest(BUSY) ile cevap verir.
	NotifyBusy bool
}

func (c Config) withDefaults() Config {
	if c.RingTimeout <= 0 {
		c.RingTimeout = 60 * time.Second
	}
	if c.AnswerTimeout <= 0 {
		c.AnswerTimeout = 60 * time.Second
	}
	if c.RPCTimeout <= 0 {
		c.RPCTimeout = 10 * time.Second
	}
	return c
}

// Deps, coordinator'ın dış dünyası. Presence ve Media nil olabilir.
type Deps struct {
	Relay     Relay
	Telephony TelephonyAdapter
	Presence  PresenceChannel
	Media     MediaEngine
}

type timerKind int

const (
	answerTimer timerKind = iota
	ringTimer
)

type intentKind int

const (
	intentAnswer intentKind = iota
	intentDecline
	intentHangUp
)

// Inbox mesajları.
type (
	startMsg struct {
		calleeID string
		channel  string
		reply    chan startResult
	}
	startResult struct {
		callID string
		err    error
	}
	eventMsg struct {
		event    models.SignalingEvent
		realtime bool
	}
	intentMsg struct {
		kind  intentKind
		reply chan error
	}
	telephonyMsg struct {
		kind   intentKind
		callID string
	}
	timerMsg struct {
		kind   timerKind
		callID string
	}
	invitationMsg struct {
		callID  string
		outcome InvitationOutcome
	}
	mediaMsg struct {
		callID  string
		channel string
		err     error
	}
	snapshotMsg struct {
		reply chan Session
	}
)

// Coordinator, tek bir çağrı denemesinin state machine'i.
//
// Run çağrılana kadar mesajlar inbox'ta bekler. Oturum Ended olunca
// timer'lar durdurulur, Done kapanır ve Run döner.
type Coordinator struct {
	cfg  Config
	deps Deps

	inbox chan any
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	// Aşağıdakilere sadece Run goroutine'i dokunur.
	ctx          context.Context
	session      Session
	timer        *time.Timer
	abandon      bool
	inviting     bool
	inviteCancel context.CancelFunc
	mediaJoining bool
	busySent     map[string]bool
	handoff      []models.SignalingEvent

	final Session
	rpcs  sync.WaitGroup
	// onClosing, inbox kapanmadan hemen önce çağrılır. onEnded kapanıştan ve
	// inbox boşaltıldıktan sonra gelir.
	onClosing func(s Session)
	onEnded   func(s Session, handoff []models.SignalingEvent)
}

// NewCoordinator, Idle bir coordinator oluşturur.
func NewCoordinator(cfg Config, deps Deps) *Coordinator {
	return &Coordinator{
		cfg:      cfg.withDefaults(),
		deps:     deps,
		inbox:    make(chan any, inboxSize),
		done:     make(chan struct{}),
		ctx:      context.Background(),
		session:  Session{State: StateIdle},
		busySent: make(map[string]bool),
	}
}

// Run, actor döngüsü. ctx iptal edilirse canlı oturum yerel hang-up
// gibi kapatılır (karşı taraf endCallRequest alır).
func (c *Coordinator) Run(ctx context.Context) {
	c.ctx = context.WithoutCancel(ctx)
	defer c.rpcs.Wait()

	for {
		select {
		case <-ctx.Done():
			if c.session.State.Live() {
				log.Printf("[callcenter] shutting down live call %s (%s)", c.session.CallID, c.session.State)
				c.handleIntent(intentHangUp)
				c.session.EndReason = ReasonShutdown
			}
			c.finish()
			return

		case m := <-c.inbox:
			c.handle(m)
			if c.session.State == StateEnded || c.abandon {
				c.finish()
				return
			}
		}
	}
}

// Done, oturum bittiğinde kapanır.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Wait, oturumun bitmesini ve uçuştaki RPC'lerin dönmesini bekler.
func (c *Coordinator) Wait() {
	<-c.done
	c.rpcs.Wait()
}

// StartCall, Idle → Dialing. Üretilen callId döner.
func (c *Coordinator) StartCall(ctx context.Context, calleeID, channel string) (string, error) {
	reply, ok := c.beginStart(calleeID, channel)
	if !ok {
		return "", ErrNoSession
	}
	return awaitStart(ctx, reply)
}

func (c *Coordinator) beginStart(calleeID, channel string) (chan startResult, bool) {
	reply := make(chan startResult, 1)
	return reply, c.post(startMsg{calleeID: calleeID, channel: channel, reply: reply})
}

func awaitStart(ctx context.Context, reply <-chan startResult) (string, error) {
	select {
	case r := <-reply:
		return r.callID, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Deliver, push ile gelen signaling event'ini inbox'a koyar.
// Coordinator kapanmışsa false döner.
func (c *Coordinator) Deliver(event models.SignalingEvent) bool {
	return c.post(eventMsg{event: event})
}

// DeliverInvitation, realtime kanaldan gelen daveti inbox'a koyar.
func (c *Coordinator) DeliverInvitation(inv Invitation) bool {
	return c.post(eventMsg{event: inv.Event(), realtime: true})
}

func (c *Coordinator) Answer() error  { return c.request(intentAnswer) }
func (c *Coordinator) Decline() error { return c.request(intentDecline) }
func (c *Coordinator) HangUp() error  { return c.request(intentHangUp) }

// TelephonyListener implementasyonu. Yabancı callId'ler yok sayılır.

func (c *Coordinator) OnAnswer(callID string)  { c.post(telephonyMsg{kind: intentAnswer, callID: callID}) }
func (c *Coordinator) OnDecline(callID string) { c.post(telephonyMsg{kind: intentDecline, callID: callID}) }
func (c *Coordinator) OnEnd(callID string)     { c.post(telephonyMsg{kind: intentHangUp, callID: callID}) }

// Snapshot, oturumun o anki kopyası.
func (c *Coordinator) Snapshot() Session {
	reply := make(chan Session, 1)
	if !c.post(snapshotMsg{reply: reply}) {
		<-c.done
		return c.final
	}
	return <-reply
}

func (c *Coordinator) request(kind intentKind) error {
	reply := make(chan error, 1)
	if !c.post(intentMsg{kind: kind, reply: reply}) {
		return ErrNoSession
	}
	return <-reply
}

func (c *Coordinator) post(m any) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.inbox <- m:
		return true
	default:
		log.Printf("[callcenter] inbox full for %s, dropping %T", c.cfg.LocalID, m)
		return false
	}
}

func (c *Coordinator) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Coordinator) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Coordinator) handle(m any) {
	switch m := m.(type) {
	case startMsg:
		m.reply <- c.handleStart(m)
	case eventMsg:
		c.handleEvent(m.event, m.realtime)
	case intentMsg:
		m.reply <- c.handleIntent(m.kind)
	case telephonyMsg:
		c.handleTelephony(m)
	case timerMsg:
		c.handleTimer(m)
	case invitationMsg:
		c.handleInvitation(m)
	case mediaMsg:
		c.handleMedia(m)
	case snapshotMsg:
		m.reply <- c.session
	}
}

// ─── Caller ───

func (c *Coordinator) handleStart(m startMsg) startResult {
	if c.session.State != StateIdle {
		return startResult{err: ErrBusy}
	}
	var invalid string
	switch {
	case m.calleeID == "" || m.channel == "":
		invalid = "callee and channel are required"
	case m.calleeID == c.cfg.LocalID:
		invalid = "self calls are not allowed"
	case c.cfg.LocalName == "" || c.cfg.BundleID == "":
		// Relay callRequest'i bu alanlar olmadan reddeder.
		invalid = "caller name and bundle id must be configured"
	}
	if invalid != "" {
		// Cevap dönmeden kapatılır; registry bu coordinator'ı meşgul saymamalı.
		c.abandon = true
		c.markClosed()
		return startResult{err: fmt.Errorf("%w: %s", pkg.ErrBadRequest, invalid)}
	}

	now := time.Now()
	c.session = Session{
		CallID:         uuid.NewString(),
		CallerID:       c.cfg.LocalID,
		CalleeID:       m.calleeID,
		CallerName:     c.cfg.LocalName,
		Channel:        m.channel,
		BundleID:       c.cfg.BundleID,
		Role:           RoleCaller,
		State:          StateDialing,
		StartedAt:      now,
		AnswerDeadline: now.Add(c.cfg.AnswerTimeout),
	}
	s := c.session
	log.Printf("[callcenter] %s dialing %s call=%s", s.CallerID, s.CalleeID, s.CallID)

	if err := c.withOpCtx(func(ctx context.Context) error {
		return c.deps.Telephony.ReportOutgoingProgress(ctx, s.CallID, ProgressConnecting)
	}); err != nil {
		c.fail(err)
		return startResult{callID: s.CallID, err: fmt.Errorf("call could not be started: %w", err)}
	}

	req := &models.CallRequest{
		CallID:     s.CallID,
		CallerID:   s.CallerID,
		CalleeID:   s.CalleeID,
		CallerName: s.CallerName,
		Channel:    s.Channel,
		BundleID:   s.BundleID,
	}
	c.rpc("callRequest", func(ctx context.Context) error {
		_, err := c.deps.Relay.CallRequest(ctx, req)
		return err
	})
	c.arm(answerTimer, c.cfg.AnswerTimeout)
	c.invite()

	return startResult{callID: s.CallID}
}

// invite, push'a paralel realtime daveti başlatır. Sonuç inbox'a döner.
func (c *Coordinator) invite() {
	p := c.deps.Presence
	if p == nil {
		return
	}
	s := c.session
	inv := Invitation{
		CallID:     s.CallID,
		FromID:     s.CallerID,
		ToID:       s.CalleeID,
		CallerName: s.CallerName,
		Channel:    s.Channel,
		BundleID:   s.BundleID,
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.AnswerTimeout)
	c.inviting = true
	c.inviteCancel = cancel

	c.rpcs.Add(1)
	go func() {
		defer c.rpcs.Done()
		defer cancel()

		presence, err := p.QueryOnline(ctx, inv.ToID)
		if err != nil || presence != PresenceOnline {
			log.Printf("[callcenter] call=%s peer %s is %s on realtime channel, relying on push", inv.CallID, inv.ToID, presence)
			return
		}
		outcome, err := p.SendInvitation(ctx, inv.ToID, inv)
		if err != nil {
			log.Printf("[callcenter] call=%s invitation failed: %v", inv.CallID, err)
			outcome = InvitationFailed
		}
		c.post(invitationMsg{callID: inv.CallID, outcome: outcome})
	}()
}

func (c *Coordinator) handleInvitation(m invitationMsg) {
	if m.callID != c.session.CallID || c.session.State != StateDialing {
		return
	}
	c.inviting = false

	switch m.outcome {
	case InvitationAccepted:
		log.Printf("[callcenter] call=%s accepted over realtime channel", m.callID)
		c.connect()
	case InvitationRefused:
		c.teardown(models.ReasonDeclined)
	default:
		log.Printf("[callcenter] call=%s invitation %s, waiting for push path", m.callID, m.outcome)
	}
}

// connect, caller tarafında Accepted sonrası Dialing → Connecting.
func (c *Coordinator) connect() {
	c.stopTimer()
	c.session.State = StateConnecting
	callID := c.session.CallID

	if err := c.withOpCtx(func(ctx context.Context) error {
		return c.deps.Telephony.ReportOutgoingProgress(ctx, callID, ProgressConnected)
	}); err != nil {
		c.fail(err)
		return
	}
	c.joinMedia()
}

// cancel, caller Dialing'de vazgeçti. Callee'nin ring timer'ına kalmasın diye
// Ended açıkça yayınlanır.
func (c *Coordinator) cancel() {
	c.stopTimer()
	c.sendEnd(models.ReasonCancelled)
	c.cancelInvitation()
	c.teardown(models.ReasonCancelled)
}

// ─── Callee ───

func (c *Coordinator) ring(ev models.SignalingEvent, realtime bool) {
	now := time.Now()
	c.session = Session{
		CallID:         ev.CallID,
		CallerID:       ev.CallerID,
		CalleeID:       ev.CalleeID,
		CallerName:     ev.CallerName,
		Channel:        ev.Channel,
		BundleID:       ev.BundleID,
		Role:           RoleCallee,
		State:          StateRinging,
		StartedAt:      now,
		AnswerDeadline: now.Add(c.cfg.RingTimeout),
		Invited:        realtime,
	}
	log.Printf("[callcenter] %s ringing, call=%s from %s", ev.CalleeID, ev.CallID, ev.CallerID)

	handle := ev.CallerName
	if handle == "" {
		handle = ev.CallerID
	}
	if err := c.withOpCtx(func(ctx context.Context) error {
		return c.deps.Telephony.PresentIncomingCall(ctx, ev.CallID, handle)
	}); err != nil {
		c.fail(err)
		return
	}
	c.arm(ringTimer, c.cfg.RingTimeout)
}

func (c *Coordinator) answer() {
	c.stopTimer()
	c.session.State = StateConnecting
	s := c.session

	req := &models.CallAcceptedRequest{
		CallID:   s.CallID,
		CallerID: s.CallerID,
		CalleeID: s.CalleeID,
		Channel:  s.Channel,
		BundleID: s.BundleID,
	}
	c.rpc("callAccepted", func(ctx context.Context) error {
		_, err := c.deps.Relay.CallAccepted(ctx, req)
		return err
	})
	if s.Invited && c.deps.Presence != nil {
		c.rpc("acceptInvitation", func(ctx context.Context) error {
			return c.deps.Presence.AcceptInvitation(ctx, s.CallID)
		})
	}
	c.joinMedia()
}

func (c *Coordinator) decline(reason models.EndReason) {
	c.stopTimer()
	s := c.session
	c.sendEnd(reason)
	if s.Invited && c.deps.Presence != nil {
		c.rpc("refuseInvitation", func(ctx context.Context) error {
			return c.deps.Presence.RefuseInvitation(ctx, s.CallID, reason)
		})
	}
	c.teardown(reason)
}

// ─── Inbound event'ler ───

func (c *Coordinator) handleEvent(ev models.SignalingEvent, realtime bool) {
	local := c.cfg.LocalID
	if !ev.Valid() {
		log.Printf("[callcenter] dropping malformed %s event for %s", ev.Kind, local)
		if c.session.State == StateIdle {
			c.abandon = true
		}
		return
	}
	if ev.CallerID != local && ev.CalleeID != local {
		log.Printf("[callcenter] dropping call=%s not addressed to %s", ev.CallID, local)
		if c.session.State == StateIdle {
			c.abandon = true
		}
		return
	}

	if c.session.State == StateIdle {
		if ev.Kind != models.KindIncoming || ev.CalleeID != local {
			c.abandon = true
			return
		}
		c.ring(ev, realtime)
		return
	}

	if ev.CallID != c.session.CallID {
		c.handleForeign(ev)
		return
	}
	if realtime && ev.Kind == models.KindIncoming {
		c.session.Invited = true
	}

	switch c.session.State {
	case StateDialing:
		switch ev.Kind {
		case models.KindAccepted:
			c.connect()
		case models.KindDeclined:
			c.remoteEnd(models.ReasonDeclined)
		case models.KindNotAnswered:
			c.remoteEnd(models.ReasonNotAnswered)
		case models.KindEnded:
			c.remoteEnd(reasonOr(ev.Reason, ReasonRemoteEnded))
		}

	case StateRinging:
		switch ev.Kind {
		case models.KindAccepted:
			// Aynı katılımcının başka cihazı cevapladı.
			c.teardown(ReasonAnsweredElsewhere)
		case models.KindDeclined:
			c.teardown(models.ReasonDeclined)
		case models.KindNotAnswered:
			c.teardown(models.ReasonNotAnswered)
		case models.KindEnded:
			c.teardown(reasonOr(ev.Reason, ReasonRemoteEnded))
		}

	case StateConnecting, StateActive:
		if ev.Kind == models.KindEnded {
			c.teardown(reasonOr(ev.Reason, ReasonRemoteEnded))
		}
	}
}

// handleForeign, canlı oturum varken başka bir callId'ye ait event.
// State'e asla dokunmaz; glare dışında sadece meşgul bildirimi yapılabilir.
func (c *Coordinator) handleForeign(ev models.SignalingEvent) {
	s := c.session
	if ev.Kind != models.KindIncoming || ev.CalleeID != c.cfg.LocalID {
		return
	}

	// Glare: aradığımız kişi aynı anda bizi arıyor. İki taraf da aynı
	// karşılaştırmayı yapar; küçük callId kazanır, diğeri kendi çağrısını iptal
	// edip gelen çağrıya geçer.
	if s.State == StateDialing && ev.CallerID == s.CalleeID {
		if ev.CallID < s.CallID {
			log.Printf("[callcenter] glare with %s: yielding call=%s to call=%s", ev.CallerID, s.CallID, ev.CallID)
			c.cancel()
			c.handoff = append(c.handoff, ev)
		}
		return
	}

	if !c.cfg.NotifyBusy || c.busySent[ev.CallID] {
		return
	}
	c.busySent[ev.CallID] = true
	log.Printf("[callcenter] %s busy, rejecting call=%s from %s", c.cfg.LocalID, ev.CallID, ev.CallerID)

	req := &models.EndCallRequest{
		CallID:   ev.CallID,
		CallerID: ev.CallerID,
		CalleeID: c.cfg.LocalID,
		BundleID: ev.BundleID,
		Reason:   models.ReasonBusy,
	}
	c.rpc("endCallRequest", func(ctx context.Context) error {
		_, err := c.deps.Relay.EndCall(ctx, req)
		return err
	})
}

func (c *Coordinator) remoteEnd(reason models.EndReason) {
	c.stopTimer()
	c.cancelInvitation()
	c.teardown(reason)
}

// ─── Intent ve telephony ───

func (c *Coordinator) handleIntent(kind intentKind) error {
	state := c.session.State
	if !state.Live() {
		return ErrNoSession
	}

	switch kind {
	case intentAnswer:
		if state != StateRinging {
			return ErrInvalidState
		}
		c.answer()
	case intentDecline:
		if state != StateRinging {
			return ErrInvalidState
		}
		c.decline(models.ReasonDeclined)
	case intentHangUp:
		switch state {
		case StateDialing:
			c.cancel()
		case StateRinging:
			c.decline(models.ReasonDeclined)
		default:
			c.sendEnd(models.ReasonHangUp)
			c.teardown(models.ReasonHangUp)
		}
	}
	return nil
}

func (c *Coordinator) handleTelephony(m telephonyMsg) {
	if m.callID != c.session.CallID {
		log.Printf("[callcenter] ignoring telephony callback for foreign call=%s", m.callID)
		return
	}
	if m.kind == intentDecline && c.session.State == StateDialing {
		m.kind = intentHangUp
	}
	if err := c.handleIntent(m.kind); err != nil {
		log.Printf("[callcenter] telephony callback on call=%s: %v", m.callID, err)
	}
}

// ─── Timer ───

func (c *Coordinator) arm(kind timerKind, d time.Duration) {
	c.stopTimer()
	callID := c.session.CallID
	c.timer = time.AfterFunc(d, func() {
		c.post(timerMsg{kind: kind, callID: callID})
	})
}

func (c *Coordinator) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Coordinator) handleTimer(m timerMsg) {
	if m.callID != c.session.CallID {
		return
	}

	switch {
	case m.kind == answerTimer && c.session.State == StateDialing:
		log.Printf("[callcenter] call=%s not answered within %s", m.callID, c.cfg.AnswerTimeout)
		c.timer = nil
		c.sendEnd(models.ReasonNotAnswered)
		c.cancelInvitation()
		c.teardown(models.ReasonNotAnswered)

	case m.kind == ringTimer && c.session.State == StateRinging:
		log.Printf("[callcenter] call=%s rang for %s without answer", m.callID, c.cfg.RingTimeout)
		c.timer = nil
		c.decline(models.ReasonNotAnswered)
	}
}

// ─── Medya ───

func (c *Coordinator) joinMedia() {
	if c.deps.Media == nil {
		c.activate()
		return
	}

	callID, channel := c.session.CallID, c.session.Channel
	media := c.deps.Media
	c.mediaJoining = true

	c.rpcs.Add(1)
	go func() {
		defer c.rpcs.Done()
		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.RPCTimeout)
		defer cancel()

		err := media.Join(ctx, channel)
		if !c.post(mediaMsg{callID: callID, channel: channel, err: err}) && err == nil {
			c.leaveMedia(channel)
		}
	}()
}

func (c *Coordinator) handleMedia(m mediaMsg) {
	if m.callID != c.session.CallID || c.session.State != StateConnecting {
		return
	}
	if m.err != nil {
		c.fail(fmt.Errorf("join media: %w", m.err))
		return
	}
	c.activate()
}

func (c *Coordinator) activate() {
	c.session.State = StateActive
	log.Printf("[callcenter] call=%s active on channel %s", c.session.CallID, c.session.Channel)
}

func (c *Coordinator) leaveMedia(channel string) {
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.RPCTimeout)
	defer cancel()
	if err := c.deps.Media.Leave(ctx, channel); err != nil {
		log.Printf("[callcenter] leave media %s: %v", channel, err)
	}
}

// ─── Bitiş ───

// fail, yerel kaynak hatası: oturum Failed ile biter, karşı taraf bilgilendirilir.
func (c *Coordinator) fail(err error) {
	log.Printf("[callcenter] call=%s failed: %v", c.session.CallID, err)
	c.stopTimer()
	c.sendEnd(models.ReasonFailed)
	c.cancelInvitation()
	c.teardown(models.ReasonFailed)
}

// teardown, yerel kaynakları bırakır ve oturumu Ended yapar. RPC göndermez.
func (c *Coordinator) teardown(reason models.EndReason) {
	c.stopTimer()
	if c.inviteCancel != nil {
		c.inviteCancel()
	}
	if c.mediaJoining {
		c.mediaJoining = false
		c.leaveMedia(c.session.Channel)
	}

	callID := c.session.CallID
	if err := c.withOpCtx(func(ctx context.Context) error {
		return c.deps.Telephony.EndCall(ctx, callID)
	}); err != nil {
		log.Printf("[callcenter] telephony end call=%s: %v", callID, err)
	}

	c.session.State = StateEnded
	c.session.EndReason = reason
	c.session.EndedAt = time.Now()
	log.Printf("[callcenter] call=%s ended (%s)", callID, reason)
}

func (c *Coordinator) finish() {
	c.stopTimer()
	if c.onClosing != nil {
		c.onClosing(c.session)
	}
	c.markClosed()

	for drained := false; !drained; {
		select {
		case m := <-c.inbox:
			c.drain(m)
		default:
			drained = true
		}
	}

	c.final = c.session
	if c.onEnded != nil {
		c.onEnded(c.final, c.handoff)
	}
	close(c.done)
}

// drain, kapanıştan sonra inbox'ta kalan mesajları cevaplar. Yeni bir çağrıya
// ait Incoming'ler registry'ye geri verilir.
func (c *Coordinator) drain(m any) {
	switch m := m.(type) {
	case startMsg:
		m.reply <- startResult{err: ErrNoSession}
	case intentMsg:
		m.reply <- ErrNoSession
	case snapshotMsg:
		m.reply <- c.session
	case eventMsg:
		if m.event.Kind == models.KindIncoming && m.event.CallID != c.session.CallID {
			c.handoff = append(c.handoff, m.event)
		}
	case mediaMsg:
		if m.err == nil {
			c.leaveMedia(m.channel)
		}
	}
}

func (c *Coordinator) sendEnd(reason models.EndReason) {
	s := c.session
	req := &models.EndCallRequest{
		CallID:   s.CallID,
		CallerID: s.CallerID,
		CalleeID: s.CalleeID,
		BundleID: s.BundleID,
		Reason:   reason,
	}
	c.rpc("endCallRequest", func(ctx context.Context) error {
		_, err := c.deps.Relay.EndCall(ctx, req)
		return err
	})
}

func (c *Coordinator) cancelInvitation() {
	if !c.inviting || c.deps.Presence == nil {
		return
	}
	c.inviting = false
	callID := c.session.CallID
	c.rpc("cancelInvitation", func(ctx context.Context) error {
		return c.deps.Presence.CancelInvitation(ctx, callID)
	})
}

// rpc, fire-and-forget çağrı. Hata loglanır, state geçişini bekletmez.
func (c *Coordinator) rpc(name string, fn func(ctx context.Context) error) {
	callID := c.session.CallID
	c.rpcs.Add(1)
	go func() {
		defer c.rpcs.Done()
		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.RPCTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Printf("[callcenter] %s call=%s failed: %v", name, callID, err)
		}
	}()
}

func (c *Coordinator) withOpCtx(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.RPCTimeout)
	defer cancel()
	return fn(ctx)
}

func reasonOr(r, fallback models.EndReason) models.EndReason {
	if r == "" {
		return fallback
	}
	return r
}
