package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter throttles inbound messages of one connection and counts how often
// it was exceeded.
type Limiter struct {
	limiter    *rate.Limiter
	mu         sync.Mutex
	violations int
	lastSeen   time.Time
}

func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{
		limiter:  rate.NewLimiter(rate.Limit(perSecond), burst),
		lastSeen: time.Now(),
	}
}

// Allow consumes one token. A refused message increments the violation count.
func (l *Limiter) Allow() bool {
	return l.AllowN(1)
}

func (l *Limiter) AllowN(n int) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastSeen = now
	if l.limiter.AllowN(now, n) {
		return true
	}
	l.violations++
	return false
}

// Violations returns the number of refused messages so far.
func (l *Limiter) Violations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.violations
}

func (l *Limiter) idleSince(cutoff time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeen.Before(cutoff)
}

// ClientLimiters hands out one Limiter per connection id.
type ClientLimiters struct {
	limiters        map[string]*Limiter
	rate            float64
	burst           int
	mu              sync.RWMutex
	cleanupInterval time.Duration
	stop            chan struct{}
	stopOnce        sync.Once
}

func NewClientLimiters(perSecond float64, burst int) *ClientLimiters {
	cl := &ClientLimiters{
		limiters:        make(map[string]*Limiter),
		rate:            perSecond,
		burst:           burst,
		cleanupInterval: 5 * time.Minute,
		stop:            make(chan struct{}),
	}
	go cl.cleanup()
	return cl
}

func (cl *ClientLimiters) Get(clientID string) *Limiter {
	cl.mu.RLock()
	limiter, ok := cl.limiters[clientID]
	cl.mu.RUnlock()

	if ok {
		return limiter
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if limiter, ok := cl.limiters[clientID]; ok {
		return limiter
	}

	limiter = NewLimiter(cl.rate, cl.burst)
	cl.limiters[clientID] = limiter
	return limiter
}

func (cl *ClientLimiters) Remove(clientID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	delete(cl.limiters, clientID)
}

func (cl *ClientLimiters) Len() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.limiters)
}

func (cl *ClientLimiters) Stop() {
	cl.stopOnce.Do(func() { close(cl.stop) })
}

// Limiters of connections that vanished without Remove are dropped once
// they have been idle for a full cleanup interval.
func (cl *ClientLimiters) cleanup() {
	ticker := time.NewTicker(cl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cl.stop:
			return
		case now := <-ticker.C:
			cl.evictIdle(now.Add(-cl.cleanupInterval))
		}
	}
}

func (cl *ClientLimiters) evictIdle(cutoff time.Time) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	for id, limiter := range cl.limiters {
		if limiter.idleSince(cutoff) {
			delete(cl.limiters, id)
		}
	}
}
