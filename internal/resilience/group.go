package resilience

import (
	"sort"
	"sync"
)

// Group holds one circuit breaker per key, created on first use. Failures
// recorded under one key never open the breaker of another.
type Group struct {
	name   string
	config CircuitBreakerConfig

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewGroup creates an empty Group whose breakers share config.
func NewGroup(name string, config CircuitBreakerConfig) *Group {
	return &Group{
		name:     name,
		config:   config,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for key.
func (g *Group) Get(key string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	cb, ok := g.breakers[key]
	if !ok {
		cb = NewCircuitBreaker(g.name+"/"+key, g.config)
		g.breakers[key] = cb
	}
	return cb
}

// Stats returns the statistics of every breaker, ordered by name.
func (g *Group) Stats() []CircuitBreakerStats {
	g.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(g.breakers))
	for _, cb := range g.breakers {
		breakers = append(breakers, cb)
	}
	g.mu.Unlock()

	stats := make([]CircuitBreakerStats, 0, len(breakers))
	for _, cb := range breakers {
		stats = append(stats, cb.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}
