package resilience

import (
	"sort"
	"sync"
)

// Registry lazily creates and stores one CircuitBreaker per service name.
// The zero value is ready to use and builds breakers with default config.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Ownership: returned breakers are shared; every caller asking for the
//   same name gets the same instance until CreateWithConfig replaces it.
type Registry struct {
	defaults CircuitBreakerConfig

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates a registry that builds breakers from defaults.
func NewRegistry(defaults CircuitBreakerConfig) *Registry {
	return &Registry{
		defaults: defaults,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// GetOrCreate returns the breaker for name, creating it with the registry
// defaults on first use.
func (r *Registry) GetOrCreate(name string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cb = NewCircuitBreaker(name, r.defaults)
	r.putLocked(name, cb)
	return cb
}

// GetOrCreateWithConfig returns the breaker for name, creating it with config
// on first use. An existing breaker keeps its own config.
func (r *Registry) GetOrCreateWithConfig(name string, config CircuitBreakerConfig) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cb := NewCircuitBreaker(name, config)
	r.putLocked(name, cb)
	return cb
}

// CreateWithConfig creates a breaker for name with config, replacing any
// existing one.
func (r *Registry) CreateWithConfig(name string, config CircuitBreakerConfig) *CircuitBreaker {
	cb := NewCircuitBreaker(name, config)

	r.mu.Lock()
	r.putLocked(name, cb)
	r.mu.Unlock()

	return cb
}

func (r *Registry) putLocked(name string, cb *CircuitBreaker) {
	if r.breakers == nil {
		r.breakers = make(map[string]*CircuitBreaker)
	}
	r.breakers[name] = cb
}

// Get returns the breaker for name if one exists.
func (r *Registry) Get(name string) (*CircuitBreaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cb, ok := r.breakers[name]
	return cb, ok
}

// Names returns the tracked service names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// AllMetrics returns a metrics snapshot of every breaker, sorted by service name.
func (r *Registry) AllMetrics() []CircuitBreakerMetrics {
	breakers := r.snapshot()
	metrics := make([]CircuitBreakerMetrics, 0, len(breakers))
	for _, cb := range breakers {
		metrics = append(metrics, cb.Metrics())
	}
	return metrics
}

// ResetAll resets every tracked breaker.
func (r *Registry) ResetAll() {
	for _, cb := range r.snapshot() {
		cb.Reset()
	}
}

// snapshot copies the breakers out of the map, sorted by name, so breaker
// locks are never taken while the registry lock is held.
func (r *Registry) snapshot() []*CircuitBreaker {
	r.mu.RLock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mu.RUnlock()

	sort.Slice(breakers, func(i, j int) bool {
		return breakers[i].Name() < breakers[j].Name()
	})
	return breakers
}
