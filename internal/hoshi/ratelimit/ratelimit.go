// Package ratelimit enforces a minimum interval between accepted operations
// of the same kind by the same user.
package ratelimit

import (
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Op names a rate-limited operation.
type Op string

const (
	OpChat     Op = "chat"
	OpCommand  Op = "command"
	OpFeedback Op = "feedback"
	OpImagine  Op = "imagine"
)

// Key builds the ledger key for op performed by userID.
func Key(op Op, userID int64) string {
	return string(op) + ":" + strconv.FormatInt(userID, 10)
}

type entry struct {
	lim      *rate.Limiter
	interval time.Duration
	last     time.Time
}

// Limiter holds one token bucket (burst 1) per key. A rejected call does not
// count as an acceptance.
//
// Limiter is safe for concurrent use from multiple goroutines.
type Limiter struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]*entry
}

// New returns a Limiter driven by the wall clock.
func New() *Limiter {
	return NewWithClock(time.Now)
}

// NewWithClock returns a Limiter that reads time from now. Tests use it to
// step time deterministically.
func NewWithClock(now func() time.Time) *Limiter {
	return &Limiter{
		now:     now,
		entries: make(map[string]*entry),
	}
}

// Allow reports whether key may proceed given that at least minInterval must
// separate two accepted calls, and records the acceptance. A non-positive
// minInterval always allows.
func (l *Limiter) Allow(key string, minInterval time.Duration) bool {
	if minInterval <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{
			lim:      rate.NewLimiter(rate.Every(minInterval), 1),
			interval: minInterval,
		}
		l.entries[key] = e
	} else if e.interval != minInterval {
		e.lim.SetLimitAt(now, rate.Every(minInterval))
		e.interval = minInterval
	}

	if !e.lim.AllowN(now, 1) {
		return false
	}
	e.last = now
	return true
}

// Sweep drops keys whose last acceptance is older than idle (and older than
// their own interval, so eviction never lets a call through early). It
// returns the number of evicted keys.
func (l *Limiter) Sweep(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	evicted := 0
	for key, e := range l.entries {
		wait := idle
		if e.interval > wait {
			wait = e.interval
		}
		if now.Sub(e.last) >= wait {
			delete(l.entries, key)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
