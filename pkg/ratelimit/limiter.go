package ratelimit

import (
	"math"
	"sync"
	"time"
)

// NowFunc reports the current time. Tests substitute a fake clock.
type NowFunc func() time.Time

// Bucket is a token bucket: it holds up to capacity tokens and gains
// refillRate tokens per second.
type Bucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64
	updated    time.Time
	now        NowFunc
}

// NewBucket returns a full bucket.
func NewBucket(capacity int, refillRate float64, now NowFunc) *Bucket {
	if now == nil {
		now = time.Now
	}
	return &Bucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: refillRate,
		updated:    now(),
		now:        now,
	}
}

func (b *Bucket) refill(now time.Time) {
	if elapsed := now.Sub(b.updated).Seconds(); elapsed > 0 {
		b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.refillRate)
	}
	b.updated = now
}

// Allow takes one token if available.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(b.now())
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Tokens returns the tokens currently available.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(b.now())
	return b.tokens
}

// RetryAfter is how long until the next token is available.
func (b *Bucket) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(b.now())
	if b.tokens >= 1 || b.refillRate <= 0 {
		return 0
	}
	return time.Duration((1 - b.tokens) / b.refillRate * float64(time.Second))
}

func (b *Bucket) idleSince() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.updated
}

// Limiter keeps one bucket per key. Buckets idle for longer than ttl are
// evicted by a background sweep until Close is called.
type Limiter struct {
	mu         sync.Mutex
	buckets    map[string]*Bucket
	capacity   int
	refillRate float64
	ttl        time.Duration
	now        NowFunc
	done       chan struct{}
	closeOnce  sync.Once
}

// NewLimiter starts a sweep goroutine when ttl > 0.
func NewLimiter(capacity int, refillRate float64, ttl time.Duration, now NowFunc) *Limiter {
	if now == nil {
		now = time.Now
	}
	l := &Limiter{
		buckets:    make(map[string]*Bucket),
		capacity:   capacity,
		refillRate: refillRate,
		ttl:        ttl,
		now:        now,
		done:       make(chan struct{}),
	}
	if ttl > 0 {
		go l.sweepLoop()
	}
	return l
}

func (l *Limiter) bucket(key string) *Bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = NewBucket(l.capacity, l.refillRate, l.now)
		l.buckets[key] = b
	}
	return b
}

// Allow takes one token from key's bucket.
func (l *Limiter) Allow(key string) bool {
	return l.bucket(key).Allow()
}

// RetryAfter reports the wait for key's next token.
func (l *Limiter) RetryAfter(key string) time.Duration {
	return l.bucket(key).RetryAfter()
}

// Reset forgets key, so its next request starts from a full bucket.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Sweep evicts buckets idle for longer than the ttl and returns how many
// were removed.
func (l *Limiter) Sweep() int {
	if l.ttl <= 0 {
		return 0
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.idleSince()) > l.ttl {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-l.done:
			return
		}
	}
}

// Close stops the sweep goroutine. It is safe to call more than once.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}
