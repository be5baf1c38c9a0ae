package callcenter

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/akinalp/callrelay/models"
	"github.com/akinalp/callrelay/pkg/cache"
)

// Factory, yerel katılımcı için coordinator config'i ve bağımlılıklarını üretir.
// Config.LocalID registry tarafından doldurulur.
type Factory func(localID string) (Config, Deps)

var errRegistryClosed = errors.New("call registry closed")

// Registry, yerel katılımcı başına en fazla bir canlı Coordinator tutar.
//
// Biten çağrıların callId'leri bir süre tombstone olarak saklanır; geç gelen
// bir Incoming kopyası bitmiş çağrıyı yeniden çaldıramaz.
type Registry struct {
	factory Factory
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	live   map[string]*Coordinator
	closed bool

	running    sync.WaitGroup
	tombstones *cache.TTLCache[string, struct{}]
}

// NewRegistry, constructor. tombstoneTTL en az push teslim gecikmesi kadar
// uzun olmalıdır.
func NewRegistry(factory Factory, tombstoneTTL time.Duration) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		factory:    factory,
		ctx:        ctx,
		cancel:     cancel,
		live:       make(map[string]*Coordinator),
		tombstones: cache.New[string, struct{}](tombstoneTTL, time.Minute),
	}
}

// StartCall, localID için giden çağrı başlatır.
func (r *Registry) StartCall(ctx context.Context, localID, calleeID, channel string) (string, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", errRegistryClosed
	}
	if c, ok := r.live[localID]; ok && !c.isClosed() {
		r.mu.Unlock()
		return "", ErrBusy
	}
	// startMsg r.mu bırakılmadan inbox'a girer; deliver'dan gelen bir event
	// Idle coordinator'a ondan önce ulaşıp onu terk ettiremez.
	c := r.spawn(localID)
	reply, ok := c.beginStart(calleeID, channel)
	r.mu.Unlock()
	if !ok {
		return "", ErrNoSession
	}

	return awaitStart(ctx, reply)
}

// Deliver, push ile gelen event'i katılımcının coordinator'ına iletir.
// Canlı coordinator yoksa sadece Incoming yeni oturum açar.
func (r *Registry) Deliver(localID string, event models.SignalingEvent) {
	r.deliver(localID, event, false)
}

// DeliverInvitation, realtime kanaldan gelen daveti (veya iptalini) iletir.
func (r *Registry) DeliverInvitation(localID string, inv Invitation) {
	r.deliver(localID, inv.Event(), true)
}

func (r *Registry) deliver(localID string, event models.SignalingEvent, realtime bool) {
	if !event.Valid() {
		log.Printf("[callcenter] dropping malformed %q event for %s", event.Kind, localID)
		return
	}
	msg := eventMsg{event: event, realtime: realtime}
	// Coordinator tam o anda kapanıyor olabilir; bir kez daha denenir. Kapanan
	// coordinator tombstone'u inbox'ı kapatmadan önce yazar.
	for attempt := 0; attempt < 2; attempt++ {
		if _, ended := r.tombstones.Get(event.CallID); ended {
			return
		}
		r.mu.Lock()
		c := r.live[localID]
		if c == nil {
			if r.closed || event.Kind != models.KindIncoming || event.CalleeID != localID {
				r.mu.Unlock()
				return
			}
			c = r.spawn(localID)
		}
		r.mu.Unlock()

		if c.post(msg) || !c.isClosed() {
			return
		}
		r.remove(localID, c)
	}
}

func (r *Registry) Answer(localID string) error  { return r.intent(localID, (*Coordinator).Answer) }
func (r *Registry) Decline(localID string) error { return r.intent(localID, (*Coordinator).Decline) }
func (r *Registry) HangUp(localID string) error  { return r.intent(localID, (*Coordinator).HangUp) }

func (r *Registry) intent(localID string, fn func(*Coordinator) error) error {
	c := r.get(localID)
	if c == nil {
		return ErrNoSession
	}
	return fn(c)
}

// Session, katılımcının canlı oturumunun kopyası.
func (r *Registry) Session(localID string) (Session, bool) {
	c := r.get(localID)
	if c == nil {
		return Session{}, false
	}
	s := c.Snapshot()
	return s, s.State.Live()
}

// Lookup, katılımcının canlı coordinator'ı.
func (r *Registry) Lookup(localID string) (*Coordinator, bool) {
	c := r.get(localID)
	return c, c != nil
}

// Listener, localID'nin telephony callback'lerini o anki coordinator'a yönlendirir.
func (r *Registry) Listener(localID string) TelephonyListener {
	return localListener{r: r, localID: localID}
}

// Close, canlı oturumları kapatır (karşı taraflar endCallRequest alır) ve
// tüm coordinator'ların bitmesini bekler.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.running.Wait()
	r.tombstones.Close()
}

// spawn, r.mu tutulurken çağrılır.
func (r *Registry) spawn(localID string) *Coordinator {
	cfg, deps := r.factory(localID)
	cfg.LocalID = localID

	c := NewCoordinator(cfg, deps)
	c.onClosing = func(s Session) {
		if s.CallID != "" {
			r.tombstones.Set(s.CallID, struct{}{})
		}
	}
	c.onEnded = func(_ Session, handoff []models.SignalingEvent) {
		r.ended(localID, c, handoff)
	}
	deps.Telephony.SetListener(r.Listener(localID))
	r.live[localID] = c

	r.running.Add(1)
	go func() {
		defer r.running.Done()
		c.Run(r.ctx)
	}()
	return c
}

func (r *Registry) ended(localID string, c *Coordinator, handoff []models.SignalingEvent) {
	r.remove(localID, c)

	for _, ev := range handoff {
		r.Deliver(localID, ev)
	}
}

func (r *Registry) remove(localID string, c *Coordinator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live[localID] == c {
		delete(r.live, localID)
	}
}

func (r *Registry) get(localID string) *Coordinator {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live[localID]
}

type localListener struct {
	r       *Registry
	localID string
}

func (l localListener) OnAnswer(callID string) {
	if c := l.r.get(l.localID); c != nil {
		c.OnAnswer(callID)
	}
}

func (l localListener) OnDecline(callID string) {
	if c := l.r.get(l.localID); c != nil {
		c.OnDecline(callID)
	}
}

func (l localListener) OnEnd(callID string) {
	if c := l.r.get(l.localID); c != nil {
		c.OnEnd(callID)
	}
}
