package services

import (
	"context"
	"sync"
	"time"

	"github.com/akinalp/callrelay/models"
	"github.com/akinalp/callrelay/pkg"
	"github.com/akinalp/callrelay/pkg/push"
	"github.com/akinalp/callrelay/ws"
)

type memTokens struct {
	mu      sync.Mutex
	byToken map[string]models.PushEndpoint
	listErr error
}

func newMemTokens(eps ...models.PushEndpoint) *memTokens {
	m := &memTokens{byToken: make(map[string]models.PushEndpoint)}
	for _, ep := range eps {
		m.byToken[ep.Token] = ep
	}
	return m
}

func (m *memTokens) Upsert(_ context.Context, ep *models.PushEndpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ep.ID = ep.Token
	m.byToken[ep.Token] = *ep
	return nil
}

func (m *memTokens) Rotate(ctx context.Context, prev string, ep *models.PushEndpoint) error {
	m.mu.Lock()
	if old, ok := m.byToken[prev]; ok && old.OwnerID == ep.OwnerID {
		delete(m.byToken, prev)
	}
	m.mu.Unlock()
	return m.Upsert(ctx, ep)
}

func (m *memTokens) ListByOwner(_ context.Context, owner string) ([]models.PushEndpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]models.PushEndpoint, 0)
	for _, ep := range m.byToken {
		if ep.OwnerID == owner {
			out = append(out, ep)
		}
	}
	return out, nil
}

func (m *memTokens) DeleteByToken(_ context.Context, owner, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ep, ok := m.byToken[token]
	if !ok || ep.OwnerID != owner {
		return pkg.ErrNotFound
	}
	delete(m.byToken, token)
	return nil
}

type memPushLog struct {
	mu      sync.Mutex
	entries []models.PushLogEntry
	prunes  int
	lastAge time.Duration
}

func (m *memPushLog) Append(_ context.Context, e *models.PushLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memPushLog) ListByCall(_ context.Context, callID string, _ int) ([]models.PushLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PushLogEntry, 0)
	for _, e := range m.entries {
		if e.CallID == callID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memPushLog) DeleteOlderThan(_ context.Context, age time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prunes++
	m.lastAge = age
	return 0, nil
}

func (m *memPushLog) pruneCalls() (int, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prunes, m.lastAge
}

type sentPush struct {
	endpoint models.PushEndpoint
	event    models.SignalingEvent
}

// recordingSender, gönderilenleri kaydeder; reject setindeki token'ları reddeder.
type recordingSender struct {
	mu     sync.Mutex
	sent   []sentPush
	reject map[string]string
}

func (r *recordingSender) Send(_ context.Context, ep models.PushEndpoint, ev models.SignalingEvent) push.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentPush{endpoint: ep, event: ev})
	if reason, ok := r.reject[ep.Token]; ok {
		return push.Result{Reason: reason}
	}
	return push.Result{Accepted: true, ID: "id-" + ep.Token}
}

func (r *recordingSender) tokens() map[string]models.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]models.EventKind)
	for _, s := range r.sent {
		out[s.endpoint.Token] = s.event.Kind
	}
	return out
}

type publishedEvent struct {
	userID string
	event  ws.Event
}

type fakePublisher struct {
	mu     sync.Mutex
	online map[string]bool
	events []publishedEvent
}

func newFakePublisher(online ...string) *fakePublisher {
	p := &fakePublisher{online: make(map[string]bool)}
	for _, id := range online {
		p.online[id] = true
	}
	return p
}

func (p *fakePublisher) BroadcastToUser(userID string, event ws.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{userID: userID, event: event})
	return p.online[userID]
}

func (p *fakePublisher) IsOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID]
}

func (p *fakePublisher) GetOnlineUserIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.online))
	for id := range p.online {
		ids = append(ids, id)
	}
	return ids
}

func (p *fakePublisher) last() publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return publishedEvent{}
	}
	return p.events[len(p.events)-1]
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type memParticipants struct {
	mu   sync.Mutex
	byID map[string]models.Participant
}

func newMemParticipants() *memParticipants {
	return &memParticipants{byID: make(map[string]models.Participant)}
}

func (m *memParticipants) Create(_ context.Context, p *models.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[p.ID]; ok {
		return pkg.ErrAlreadyExists
	}
	m.byID[p.ID] = *p
	return nil
}

func (m *memParticipants) GetByID(_ context.Context, id string) (*models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, pkg.ErrNotFound
	}
	return &p, nil
}
