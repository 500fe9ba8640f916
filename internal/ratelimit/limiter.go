// Package ratelimit provides per-client request rate limiting.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleTimeout is how long an unused client limiter is kept.
const idleTimeout = 10 * time.Minute

// Config holds rate limiter configuration.
type Config struct {
	// RequestsPerSecond is the sustained rate per key. Zero disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`

	// Burst is the maximum burst size. Defaults to one second worth of requests.
	Burst int `yaml:"burst" json:"burst"`
}

// Enabled reports whether the config limits anything.
func (c Config) Enabled() bool {
	return c.RequestsPerSecond > 0
}

type keyedEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// KeyedLimiter provides per-key rate limiting.
type KeyedLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu       sync.Mutex
	limiters map[string]*keyedEntry

	cleanup *time.Ticker
	done    chan struct{}
	once    sync.Once
}

// NewKeyedLimiter creates a new keyed rate limiter. Close stops its cleanup
// goroutine.
func NewKeyedLimiter(cfg Config) *KeyedLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = max(1, int(cfg.RequestsPerSecond))
	}
	kl := &KeyedLimiter{
		limit:    rate.Limit(cfg.RequestsPerSecond),
		burst:    burst,
		now:      time.Now,
		limiters: make(map[string]*keyedEntry),
		cleanup:  time.NewTicker(time.Minute),
		done:     make(chan struct{}),
	}

	go kl.cleanupLoop()

	return kl
}

// Allow reports whether a request for key may proceed now.
func (kl *KeyedLimiter) Allow(key string) bool {
	now := kl.now()

	kl.mu.Lock()
	entry, ok := kl.limiters[key]
	if !ok {
		entry = &keyedEntry{limiter: rate.NewLimiter(kl.limit, kl.burst)}
		kl.limiters[key] = entry
	}
	entry.lastAccess = now
	kl.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (kl *KeyedLimiter) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.limiters)
}

func (kl *KeyedLimiter) cleanupLoop() {
	for {
		select {
		case <-kl.cleanup.C:
			kl.prune()
		case <-kl.done:
			return
		}
	}
}

// prune drops limiters idle for longer than idleTimeout.
func (kl *KeyedLimiter) prune() {
	now := kl.now()

	kl.mu.Lock()
	defer kl.mu.Unlock()
	for key, entry := range kl.limiters {
		if now.Sub(entry.lastAccess) > idleTimeout {
			delete(kl.limiters, key)
		}
	}
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (kl *KeyedLimiter) Close() {
	kl.once.Do(func() {
		close(kl.done)
		kl.cleanup.Stop()
	})
}
