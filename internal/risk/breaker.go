package risk

import (
	"sync"
	"time"
)

// BreakerConfig tunes the per-venue circuit breaker.
type BreakerConfig struct {
	// Failures opens the breaker when reached within Window.
	Failures int
	Window   time.Duration
	// HalfOpenAfter is how long an open breaker refuses traffic before
	// letting a single probe through.
	HalfOpenAfter time.Duration
}

func (c *BreakerConfig) setDefaults() {
	if c.Failures <= 0 {
		c.Failures = 5
	}
	if c.Window <= 0 {
		c.Window = 5 * time.Minute
	}
	if c.HalfOpenAfter <= 0 {
		c.HalfOpenAfter = 10 * time.Minute
	}
}

type breakerState struct {
	failures []time.Time
	openedAt time.Time
	halfOpen bool
}

// Breaker is a per-venue failure circuit. Venue API failures within the
// window open it; while open every leg touching the venue is refused.
// After the half-open delay one probe is allowed: a success closes the
// circuit, a failure reopens it for a full period.
type Breaker struct {
	cfg BreakerConfig

	mu     sync.Mutex
	venues map[string]*breakerState
}

// NewBreaker builds a breaker with the given thresholds.
func NewBreaker(cfg BreakerConfig) *Breaker {
	cfg.setDefaults()
	return &Breaker{cfg: cfg, venues: make(map[string]*breakerState)}
}

func (b *Breaker) state(venue string) *breakerState {
	st, ok := b.venues[venue]
	if !ok {
		st = &breakerState{}
		b.venues[venue] = st
	}
	return st
}

// RecordFailure counts one venue API failure at the given time.
func (b *Breaker) RecordFailure(venue string, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.state(venue)

	if st.halfOpen {
		// The probe failed: a fresh full open period.
		st.halfOpen = false
		st.openedAt = at
		st.failures = nil
		return
	}
	if !st.openedAt.IsZero() {
		return
	}

	cutoff := at.Add(-b.cfg.Window)
	kept := st.failures[:0]
	for _, f := range st.failures {
		if f.After(cutoff) {
			kept = append(kept, f)
		}
	}
	st.failures = append(kept, at)
	if len(st.failures) >= b.cfg.Failures {
		st.openedAt = at
		st.failures = nil
	}
}

// RecordSuccess closes the circuit after a successful probe and clears the
// failure window otherwise.
func (b *Breaker) RecordSuccess(venue string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.state(venue)
	st.failures = nil
	st.openedAt = time.Time{}
	st.halfOpen = false
}

// Open reports whether the venue is refusing traffic at the given time.
// Once the half-open delay has passed it returns false exactly once to let
// a probe through, then refuses again until the probe resolves.
func (b *Breaker) Open(venue string, at time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.venues[venue]
	if !ok || st.openedAt.IsZero() {
		return false
	}
	if st.halfOpen {
		return true
	}
	if at.Sub(st.openedAt) >= b.cfg.HalfOpenAfter {
		st.halfOpen = true
		return false
	}
	return true
}
