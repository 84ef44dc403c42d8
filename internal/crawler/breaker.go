package crawler

import "sync"

// Breaker tracks consecutive fetch failures per host within a run. Once a
// host crosses the threshold its remaining targets are skipped, so a dead
// site costs at most threshold requests instead of one per source page.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	failures  map[string]int
}

// NewBreaker builds a breaker; threshold is the consecutive-failure trip point.
func NewBreaker(threshold int) *Breaker {
	return &Breaker{threshold: threshold, failures: make(map[string]int)}
}

// Allow reports whether the host may still be fetched.
func (b *Breaker) Allow(host string) bool {
	if b == nil || b.threshold <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures[host] < b.threshold
}

// Success resets the host's failure streak.
func (b *Breaker) Success(host string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, host)
}

// Failure records one more failure and reports whether the host just tripped.
func (b *Breaker) Failure(host string) bool {
	if b == nil || b.threshold <= 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[host]++
	return b.failures[host] == b.threshold
}
