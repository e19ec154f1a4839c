package ratelimit

import (
	"container/list"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Limiter is a per-IP token bucket guarding the inbound listener. It is
// independent of the provider bucket accounting above; it only protects the
// router process itself.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*list.Element
	lru      *list.List // front = most recently used
	rate     int        // tokens added per interval
	burst    int        // max tokens (bucket capacity)
	interval time.Duration
	maxKeys  int // max entries before evicting the LRU
	stop     chan struct{}
	counter  prometheus.Counter // optional: incremented on each 429
}

type ipBucket struct {
	key      string
	tokens   int
	lastFill time.Time
	lastSeen time.Time
}

// New creates a rate limiter. rate is requests per interval; burst is the
// maximum burst size.
func New(rate, burst int, interval time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		buckets:  make(map[string]*list.Element),
		lru:      list.New(),
		rate:     rate,
		burst:    burst,
		interval: interval,
		maxKeys:  100000, // default cap: 100k unique IPs
		stop:     make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	// Periodically clean up stale entries.
	go l.cleanup()
	return l
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithCounter sets a Prometheus counter that is incremented on each 429.
func WithCounter(c prometheus.Counter) Option {
	return func(l *Limiter) {
		l.counter = c
	}
}

// WithMaxKeys caps the number of tracked client IPs.
func WithMaxKeys(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.maxKeys = n
		}
	}
}

// Middleware returns an http.Handler middleware that enforces rate limits per
// client IP (using X-Real-IP or RemoteAddr).
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.Header.Get("X-Real-IP")
		if ip == "" {
			ip = r.RemoteAddr
		}
		if !l.allow(ip) {
			if l.counter != nil {
				l.counter.Inc()
			}
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *Limiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	el, ok := l.buckets[key]
	if !ok {
		// Evict the least recently used entry if at capacity.
		if len(l.buckets) >= l.maxKeys {
			l.evictLRU()
		}
		el = l.lru.PushFront(&ipBucket{key: key, tokens: l.burst, lastFill: now})
		l.buckets[key] = el
	} else {
		l.lru.MoveToFront(el)
	}
	b := el.Value.(*ipBucket)
	b.lastSeen = now

	// Refill tokens based on elapsed time.
	elapsed := now.Sub(b.lastFill)
	refill := int(elapsed/l.interval) * l.rate
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
		b.lastFill = now
	}

	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// evictLRU removes the least recently used bucket. Must be called with l.mu
// held.
func (l *Limiter) evictLRU() {
	back := l.lru.Back()
	if back == nil {
		return
	}
	b := l.lru.Remove(back).(*ipBucket)
	delete(l.buckets, b.key)
}

// Stop terminates the background cleanup goroutine.
func (l *Limiter) Stop() {
	close(l.stop)
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			cutoff := time.Now().Add(-10 * time.Minute)
			for el := l.lru.Back(); el != nil; {
				b := el.Value.(*ipBucket)
				if !b.lastSeen.Before(cutoff) {
					break
				}
				prev := el.Prev()
				l.lru.Remove(el)
				delete(l.buckets, b.key)
				el = prev
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}
