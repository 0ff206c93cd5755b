package executor

import (
	"fmt"
	"sync"
	"time"
)

// clientOrderID derives the idempotent client order ID for a leg. The same
// (execution, step) pair always maps to the same ID, so a resubmitted order
// is deduplicated venue-side and cache-side alike.
func clientOrderID(executionID string, step int) string {
	return fmt.Sprintf("%s-%d", executionID, step)
}

// compensationOrderID derives the client order ID for the reversal of a leg.
func compensationOrderID(executionID string, step int) string {
	return fmt.Sprintf("%s-%d-r", executionID, step)
}

// placedOrders remembers which client order IDs have already been submitted
// and the external ID the venue assigned, so a retried leg polls the
// existing order instead of placing a second one. Entries age out after the
// TTL. Safe for concurrent use.
type placedOrders struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]placedEntry
}

type placedEntry struct {
	externalID string
	at         time.Time
}

func newPlacedOrders(ttl time.Duration) *placedOrders {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &placedOrders{ttl: ttl, seen: make(map[string]placedEntry)}
}

// remember records a successful submission.
func (p *placedOrders) remember(clientID, externalID string) {
	p.mu.Lock()
	p.seen[clientID] = placedEntry{externalID: externalID, at: time.Now()}
	p.mu.Unlock()
}

// lookup returns the external ID of a previously placed order, if any.
func (p *placedOrders) lookup(clientID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.seen[clientID]
	if !ok || time.Since(e.at) >= p.ttl {
		return "", false
	}
	return e.externalID, true
}

// sweep drops expired entries. Called periodically by the coordinator.
func (p *placedOrders) sweep() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	for id, e := range p.seen {
		if now.Sub(e.at) >= p.ttl {
			delete(p.seen, id)
		}
	}
}
