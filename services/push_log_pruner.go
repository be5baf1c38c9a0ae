package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/akinalp/callrelay/repository"
)

// PushLogPruner, push_log tablosunu periyodik olarak budar.
//
// push_log her dispatch denemesi için bir satır yazar; retention süresinden eski
// satırlar interval aralığıyla silinir. Deliveries sorgusu sadece yakın geçmiş
// aramalar için anlamlıdır.
type PushLogPruner interface {
	// Start, pruner goroutine'ini başlatır. İkinci çağrı etkisizdir.
	Start()

	// Stop, goroutine'i durdurur ve çıkmasını bekler.
	Stop()
}

type pushLogPruner struct {
	repo      repository.PushLogRepository
	interval  time.Duration
	retention time.Duration

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewPushLogPruner, constructor. retention <= 0 ise Start hiçbir şey yapmaz.
func NewPushLogPruner(repo repository.PushLogRepository, interval, retention time.Duration) PushLogPruner {
	if interval <= 0 {
		interval = time.Hour
	}
	return &pushLogPruner{
		repo:      repo,
		interval:  interval,
		retention: retention,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

func (p *pushLogPruner) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.retention <= 0 {
		return
	}
	p.started = true

	log.Printf("[push-log] pruner starting (interval=%s, retention=%s)", p.interval, p.retention)

	go func() {
		defer close(p.doneCh)

		p.prune()

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.prune()
			case <-p.stopCh:
				log.Println("[push-log] pruner stopped")
				return
			}
		}
	}()
}

func (p *pushLogPruner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}
	<-p.doneCh
}

func (p *pushLogPruner) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := p.repo.DeleteOlderThan(ctx, p.retention)
	if err != nil {
		log.Printf("[push-log] prune failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[push-log] pruned %d entr(ies) older than %s", n, p.retention)
	}
}
