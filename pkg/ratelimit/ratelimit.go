package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter limits request rates toward an external endpoint.
type RateLimiter interface {
	Wait(ctx context.Context) error
	Allow() bool
	GetRemaining() int
	GetResetTime() time.Time
}

// TokenBucket refills refillRate tokens per second up to capacity.
type TokenBucket struct {
	capacity   int
	tokens     int
	refillRate int
	windowSize time.Duration
	lastRefill time.Time
	mu         sync.Mutex
}

func NewTokenBucket(capacity, refillRate int, windowSize time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		windowSize: windowSize,
		lastRefill: time.Now(),
	}
}

func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)

	tokensToAdd := int(elapsed.Seconds()) * tb.refillRate
	if tokensToAdd > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+tokensToAdd)
		tb.lastRefill = now
	}
}

// Allow consumes a token if one is available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		if tb.Allow() {
			return nil
		}

		tb.mu.Lock()
		tb.refill()
		waitTime := time.Duration(0)
		if tb.tokens == 0 && tb.refillRate > 0 {
			waitTime = time.Second / time.Duration(tb.refillRate)
		}
		tb.mu.Unlock()

		if waitTime > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitTime):
				continue
			}
		} else {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(tb.windowSize):
				continue
			}
		}
	}
}

func (tb *TokenBucket) GetRemaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return tb.tokens
}

func (tb *TokenBucket) GetResetTime() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	if tb.tokens < tb.capacity {
		needed := tb.capacity - tb.tokens
		if tb.refillRate > 0 {
			seconds := float64(needed) / float64(tb.refillRate)
			return time.Now().Add(time.Duration(seconds) * time.Second)
		}
	}
	return time.Now()
}

// SlidingWindow allows at most limit requests per windowSize.
type SlidingWindow struct {
	limit      int
	windowSize time.Duration
	requests   []time.Time
	mu         sync.Mutex
}

func NewSlidingWindow(limit int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:      limit,
		windowSize: windowSize,
		requests:   make([]time.Time, 0),
	}
}

func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-sw.windowSize)

	validRequests := make([]time.Time, 0)
	for _, req := range sw.requests {
		if req.After(cutoff) {
			validRequests = append(validRequests, req)
		}
	}
	sw.requests = validRequests

	if len(sw.requests) >= sw.limit {
		return false
	}

	sw.requests = append(sw.requests, now)
	return true
}

func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for {
		if sw.Allow() {
			return nil
		}

		sw.mu.Lock()
		oldest := time.Now()
		if len(sw.requests) > 0 {
			oldest = sw.requests[0]
		}
		waitTime := sw.windowSize - time.Since(oldest)
		sw.mu.Unlock()

		if waitTime > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitTime):
				continue
			}
		} else {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}
	}
}

func (sw *SlidingWindow) GetRemaining() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-sw.windowSize)

	validCount := 0
	for _, req := range sw.requests {
		if req.After(cutoff) {
			validCount++
		}
	}

	return max(0, sw.limit-validCount)
}

func (sw *SlidingWindow) GetResetTime() time.Time {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if len(sw.requests) == 0 {
		return time.Now()
	}

	oldest := sw.requests[0]
	return oldest.Add(sw.windowSize)
}

// Manager holds one limiter per external endpoint.
type Manager struct {
	limiters map[string]RateLimiter
	mu       sync.RWMutex
}

func NewManager() *Manager {
	manager := &Manager{
		limiters: make(map[string]RateLimiter),
	}

	manager.initDefaultLimiters()

	return manager
}

// initDefaultLimiters seeds limiters for the public geo APIs. The numbers
// follow each service's published usage policy, with headroom.
func (m *Manager) initDefaultLimiters() {
	// Nominatim usage policy caps anonymous clients at 1 req/s
	m.limiters["nominatim:reverse"] = NewTokenBucket(1, 1, time.Second)

	// Overpass public instances ask for a light query rate
	m.limiters["overpass:interpreter"] = NewSlidingWindow(6, time.Minute)

	// Open-Meteo allows far more; this keeps a stuck caller polite
	m.limiters["meteo:forecast"] = NewSlidingWindow(30, time.Minute)
}

// GetLimiter returns the limiter registered for endpoint, or a conservative
// fallback for unknown endpoints.
func (m *Manager) GetLimiter(endpoint string) RateLimiter {
	m.mu.RLock()
	if limiter, exists := m.limiters[endpoint]; exists {
		m.mu.RUnlock()
		return limiter
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if limiter, exists := m.limiters[endpoint]; exists {
		return limiter
	}
	limiter := NewSlidingWindow(10, 10*time.Second)
	m.limiters[endpoint] = limiter
	return limiter
}

// Wait blocks until endpoint may be called again.
func (m *Manager) Wait(ctx context.Context, endpoint string) error {
	return m.GetLimiter(endpoint).Wait(ctx)
}

// Allow reports whether endpoint may be called right now.
func (m *Manager) Allow(endpoint string) bool {
	return m.GetLimiter(endpoint).Allow()
}

func (m *Manager) GetRemaining(endpoint string) int {
	return m.GetLimiter(endpoint).GetRemaining()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
