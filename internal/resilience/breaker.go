// Package resilience protects the recorder from a persistently failing
// dependency. The slot store is the main customer: when the database file
// goes bad (full disk, locked volume, pulled drive) every write times out,
// and without a breaker each chunk rotation would stall the persistence
// queue for the full write timeout.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrSuspended is returned by [Breaker.Do] when the breaker has tripped and
// the cooldown has not yet elapsed. The wrapped call was not made.
var ErrSuspended = errors.New("resilience: calls suspended")

// Breaker suppresses calls to a dependency after repeated consecutive
// failures. While tripped, calls fail fast with [ErrSuspended]; once the
// cooldown elapses a single probe call is let through, and its outcome
// decides whether the breaker closes again or stays tripped for another
// cooldown. Safe for concurrent use.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu        sync.Mutex
	failures  int
	tripped   bool
	trippedAt time.Time
	probing   bool
}

// NewBreaker creates a Breaker that trips after threshold consecutive
// failures and probes again after cooldown. Non-positive arguments fall back
// to 3 failures and 30 seconds.
func NewBreaker(name string, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{name: name, threshold: threshold, cooldown: cooldown}
}

// Do runs fn unless the breaker is tripped. While tripped it returns
// [ErrSuspended] without calling fn, except for the one probe call allowed
// per elapsed cooldown.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	if b.tripped {
		if b.probing || time.Since(b.trippedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrSuspended
		}
		b.probing = true
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false

	if err != nil {
		b.failures++
		if b.tripped {
			// Probe failed: restart the cooldown.
			b.trippedAt = time.Now()
			slog.Warn("breaker: probe failed, staying suspended", "name", b.name)
		} else if b.failures >= b.threshold {
			b.tripped = true
			b.trippedAt = time.Now()
			slog.Warn("breaker: suspending calls",
				"name", b.name, "consecutive_failures", b.failures)
		}
		return err
	}

	if b.tripped {
		slog.Info("breaker: probe succeeded, resuming calls", "name", b.name)
	}
	b.tripped = false
	b.failures = 0
	return nil
}

// Suspended reports whether calls are currently being rejected.
func (b *Breaker) Suspended() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped && time.Since(b.trippedAt) < b.cooldown
}

// Reset forces the breaker closed and clears the failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tripped = false
	b.failures = 0
}
