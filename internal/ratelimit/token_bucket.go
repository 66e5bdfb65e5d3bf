package ratelimit

import (
	"sync"
	"time"
)

// One token is int64(time.Second) units, so refill math stays in integers: a
// rate of X tokens/sec accrues exactly X units per elapsed nanosecond.
const unitsPerToken = int64(time.Second)

const maxInt64 = int64(^uint64(0) >> 1)

// TokenBucket is a deterministic token bucket refilled at a whole-token rate
// per second. A zero rate never refills; a zero capacity never allows.
type TokenBucket struct {
	mu    sync.Mutex
	clock Clock

	capacity int64 // tokens
	rate     int64 // tokens/sec

	units int64 // available, in token units
	last  time.Time
}

// NewTokenBucket returns a bucket starting full. A nil clock uses RealClock.
func NewTokenBucket(clock Clock, capacity, rate int64) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	if capacity < 0 {
		capacity = 0
	}
	if rate < 0 {
		rate = 0
	}
	return &TokenBucket{
		clock:    clock,
		capacity: capacity,
		rate:     rate,
		units:    toUnits(capacity),
		last:     clock.Now(),
	}
}

// Allow consumes n tokens when available. n <= 0 always succeeds.
func (b *TokenBucket) Allow(n int64) bool {
	if n <= 0 {
		return true
	}
	cost := toUnits(n)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.units < cost {
		return false
	}
	b.units -= cost
	return true
}

func (b *TokenBucket) refillLocked() {
	now := b.clock.Now()
	elapsed := now.Sub(b.last)
	b.last = now
	// A clock that moved backwards only shifts the reference point.
	if elapsed <= 0 || b.rate <= 0 || b.capacity <= 0 {
		return
	}

	full := toUnits(b.capacity)
	if b.units >= full {
		b.units = full
		return
	}
	// rate tokens/sec equals rate units per nanosecond. Compare against the
	// time needed to fill before multiplying so long idle periods cannot
	// overflow.
	if ns := elapsed.Nanoseconds(); ns >= (full-b.units)/b.rate {
		b.units = full
	} else {
		b.units += ns * b.rate
	}
}

func toUnits(tokens int64) int64 {
	if tokens <= 0 {
		return 0
	}
	if tokens > maxInt64/unitsPerToken {
		return maxInt64
	}
	return tokens * unitsPerToken
}
