package venue

import (
	"sort"
	"sync"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// HealthListener is notified whenever a venue's health transitions.
type HealthListener func(venueID string, health domain.VenueHealth, cause error)

// Set holds the mounted venue adapters and their live health, keyed by
// venue ID. It is the single lookup point for everything that needs to
// reach a venue.
type Set struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	health   map[string]domain.VenueHealth
	listener HealthListener
}

// NewSet creates an empty Set. listener may be nil.
func NewSet(listener HealthListener) *Set {
	return &Set{
		adapters: make(map[string]Adapter),
		health:   make(map[string]domain.VenueHealth),
		listener: listener,
	}
}

// Add mounts an adapter. New venues start active.
func (s *Set) Add(a Adapter) {
	id := a.Venue().ID
	s.mu.Lock()
	s.adapters[id] = a
	s.health[id] = domain.VenueHealthActive
	s.mu.Unlock()
}

// Get returns the adapter for a venue ID.
func (s *Set) Get(id string) (Adapter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.adapters[id]
	return a, ok
}

// IDs returns the mounted venue IDs in sorted order.
func (s *Set) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.adapters))
	for id := range s.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Venue returns the descriptor for a venue ID.
func (s *Set) Venue(id string) (domain.Venue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.adapters[id]
	if !ok {
		return domain.Venue{}, false
	}
	return a.Venue(), true
}

// Venues returns all descriptors in ID order.
func (s *Set) Venues() []domain.Venue {
	ids := s.IDs()
	out := make([]domain.Venue, 0, len(ids))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range ids {
		out = append(out, s.adapters[id].Venue())
	}
	return out
}

// Health returns the current health of a venue; unknown venues are down.
func (s *Set) Health(id string) domain.VenueHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if h, ok := s.health[id]; ok {
		return h
	}
	return domain.VenueHealthDown
}

// HealthAll returns a copy of the health map.
func (s *Set) HealthAll() map[string]domain.VenueHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.VenueHealth, len(s.health))
	for id, h := range s.health {
		out[id] = h
	}
	return out
}

// SetHealth records a health transition and notifies the listener. Setting
// the same health twice is a no-op.
func (s *Set) SetHealth(id string, h domain.VenueHealth, cause error) {
	s.mu.Lock()
	prev, ok := s.health[id]
	if !ok || prev == h {
		s.mu.Unlock()
		return
	}
	s.health[id] = h
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		listener(id, h, cause)
	}
}
