package feed

import (
	"sync"
	"time"
)

// Breaker trips when more than threshold errors land inside a sliding window.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	window    time.Duration
	hits      []time.Time
}

func NewBreaker(threshold int, window time.Duration) *Breaker {
	return &Breaker{threshold: threshold, window: window}
}

// Record notes an error at now and reports whether the breaker tripped. A
// trip clears the window.
func (b *Breaker) Record(now time.Time) bool {
	if b.threshold <= 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := now.Add(-b.window)
	kept := b.hits[:0]
	for _, t := range b.hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.hits = append(kept, now)

	if len(b.hits) > b.threshold {
		b.hits = b.hits[:0]
		return true
	}
	return false
}

func (b *Breaker) Reset() {
	b.mu.Lock()
	b.hits = b.hits[:0]
	b.mu.Unlock()
}
