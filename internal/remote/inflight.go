package remote

import (
	"fmt"
	"sync"

	"github.com/ashureev/pagedesk/internal/domain"
)

// Inflight allows at most one outstanding call per resource key.
type Inflight struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewInflight creates an empty guard.
func NewInflight() *Inflight {
	return &Inflight{active: make(map[string]struct{})}
}

func (g *Inflight) acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[key]; busy {
		return false
	}
	g.active[key] = struct{}{}
	return true
}

func (g *Inflight) release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, key)
}

// Busy reports whether key currently has a call outstanding.
func (g *Inflight) Busy(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.active[key]
	return busy
}

// Guard runs fn unless key already has a call outstanding, in which case it
// returns domain.ErrInFlight without calling fn.
func Guard[T any](g *Inflight, key string, fn func() (T, error)) (T, error) {
	if !g.acquire(key) {
		var zero T
		return zero, fmt.Errorf("%w: %s", domain.ErrInFlight, key)
	}
	defer g.release(key)
	return fn()
}
