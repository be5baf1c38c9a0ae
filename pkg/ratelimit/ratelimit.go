// Package ratelimit, key bazlı sabit pencere rate limiter.
//
// Key çağırana bağlıdır: anonim auth endpoint'lerinde IP, call RPC'lerinde
// participant id. Limit aşıldığında key, cooldown verilmişse cooldown süresince,
// verilmemişse pencere sonuna kadar reddedilir.
package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type bucket struct {
	count         int
	windowStart   time.Time
	cooldownUntil time.Time
}

// Limiter, thread-safe key bazlı limiter.
//
//	limiter := ratelimit.New(20, time.Minute, 0)
//	if !limiter.Allow(participantID) { return 429 }
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	max      int
	window   time.Duration
	cooldown time.Duration
	now      func() time.Time

	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// New, limiter'ı oluşturur ve bayat bucket'ları dakikada bir temizleyen
// goroutine'i başlatır.
func New(max int, window, cooldown time.Duration) *Limiter {
	rl := &Limiter{
		buckets:     make(map[string]*bucket),
		max:         max,
		window:      window,
		cooldown:    cooldown,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow, isteği sayar ve limit içindeyse true döner.
func (rl *Limiter) Allow(key string) bool {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		rl.buckets[key] = &bucket{count: 1, windowStart: now}
		return true
	}

	if !b.cooldownUntil.IsZero() {
		if now.Before(b.cooldownUntil) {
			return false
		}
		*b = bucket{count: 1, windowStart: now}
		return true
	}

	if now.Sub(b.windowStart) > rl.window {
		b.count = 1
		b.windowStart = now
		return true
	}

	b.count++
	if b.count <= rl.max {
		return true
	}
	if rl.cooldown > 0 {
		b.cooldownUntil = now.Add(rl.cooldown)
	}
	return false
}

// Reset, key'in sayacını siler (ör. başarılı token alımından sonra).
func (rl *Limiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, key)
}

// RetryAfterSeconds, Retry-After header'ı için kalan süre. Yukarı yuvarlanır.
func (rl *Limiter) RetryAfterSeconds(key string) int {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		return 0
	}

	var remaining time.Duration
	if !b.cooldownUntil.IsZero() {
		remaining = b.cooldownUntil.Sub(now)
	} else {
		remaining = rl.window - now.Sub(b.windowStart)
	}
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Seconds()) + 1
}

// Close, cleanup goroutine'ini durdurur.
func (rl *Limiter) Close() {
	rl.closeOnce.Do(func() { close(rl.stopCleanup) })
}

func (rl *Limiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *Limiter) cleanup() {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, b := range rl.buckets {
		if now.Sub(b.windowStart) > rl.window && now.After(b.cooldownUntil) {
			delete(rl.buckets, key)
		}
	}
}

// ExtractIP, proxy header'larını da dikkate alarak client IP'sini döner.
// Sıra: X-Forwarded-For (ilk değer), X-Real-IP, RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// FormatRetryMessage, bekleme süresini okunur hale getirir: "2 minute(s)", "45 second(s)".
func FormatRetryMessage(seconds int) string {
	if seconds >= 60 {
		return fmt.Sprintf("%d minute(s)", seconds/60)
	}
	return fmt.Sprintf("%d second(s)", seconds)
}
