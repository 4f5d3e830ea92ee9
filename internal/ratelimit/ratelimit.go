package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a token bucket shared by every caller of one API endpoint
type Limiter struct {
	mu         sync.Mutex
	rate       float64 // tokens per second
	burst      float64
	tokens     float64
	lastUpdate time.Time
	now        func() time.Time
}

// New creates a limiter refilling at rps tokens per second and holding at most
// burst tokens. Non-positive values fall back to 1.
func New(rps float64, burst int) *Limiter {
	if rps <= 0 {
		rps = 1.0
	}
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		rate:  rps,
		burst: float64(burst),
		now:   time.Now,
	}
	l.tokens = l.burst
	l.lastUpdate = l.now()
	return l
}

// Wait blocks until a token is available or ctx is done
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		ok, wait := l.reserve()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve takes a token if possible, otherwise returns how long until one refills
func (l *Limiter) reserve() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.tokens += now.Sub(l.lastUpdate).Seconds() * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.lastUpdate = now

	if l.tokens >= 1.0 {
		l.tokens -= 1.0
		return true, 0
	}
	missing := 1.0 - l.tokens
	return false, time.Duration(missing / l.rate * float64(time.Second))
}
