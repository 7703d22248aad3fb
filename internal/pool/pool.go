// Package pool provides named object pools for reusing short-lived per-frame records.
package pool

import (
	"errors"
	"sync"
)

// ErrPoolNotFound is returned when an object is requested from a pool that was never registered.
var ErrPoolNotFound = errors.New("pool not found")

// Stats describes the current state and lifetime counters of a single pool.
type Stats struct {
	Name      string `json:"name"`
	MaxSize   int    `json:"max_size"`
	Available int    `json:"available"`
	InUse     int    `json:"in_use"`
	Created   uint64 `json:"created"`
	Reused    uint64 `json:"reused"`
	Overflow  uint64 `json:"overflow"`
}

type pool struct {
	name      string
	maxSize   int
	factory   func() any
	reset     func(any)
	available []any
	inUse     int
	created   uint64
	reused    uint64
	overflow  uint64
}

// Manager tracks a set of named pools. One Manager is constructed per
// pipeline and passed explicitly to the components that draw from it.
type Manager struct {
	pools map[string]*pool
	owner map[any]*pool
	mu    sync.Mutex
}

// NewManager creates an empty pool Manager.
func NewManager() *Manager {
	return &Manager{
		pools: make(map[string]*pool),
		owner: make(map[any]*pool),
	}
}

// Register creates a named pool. factory constructs a new object; reset
// (optional) restores a recycled object to its default field values before
// it is handed out again. Registering an existing name replaces the pool.
func (m *Manager) Register(name string, maxSize int, factory func() any, reset func(any)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if maxSize < 1 {
		maxSize = 1
	}
	m.pools[name] = &pool{
		name:    name,
		maxSize: maxSize,
		factory: factory,
		reset:   reset,
	}
}

// Get returns an object from the named pool. Recycled objects are preferred;
// a new object is constructed while the pool has capacity; beyond capacity an
// un-pooled overflow object is returned so Get never blocks. Returns
// ErrPoolNotFound if the name was never registered.
func (m *Manager) Get(name string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pools[name]
	if !ok {
		return nil, ErrPoolNotFound
	}

	if n := len(p.available); n > 0 {
		obj := p.available[n-1]
		p.available[n-1] = nil
		p.available = p.available[:n-1]
		p.reused++
		p.inUse++
		m.owner[obj] = p
		if p.reset != nil {
			p.reset(obj)
		}
		return obj, nil
	}

	obj := p.factory()
	if p.inUse < p.maxSize {
		p.created++
		p.inUse++
		m.owner[obj] = p
		return obj, nil
	}

	// Pool exhausted: hand out an untracked object. Releasing it is a
	// no-op and it is collected normally.
	p.overflow++
	return obj, nil
}

// Release returns an object to the pool it was drawn from. Overflow objects
// and objects the manager does not know are dropped silently; releasing the
// same object twice is likewise a no-op.
func (m *Manager) Release(obj any) {
	if obj == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.owner[obj]
	if !ok {
		return
	}
	delete(m.owner, obj)
	p.inUse--

	if len(p.available) < p.maxSize {
		p.available = append(p.available, obj)
	}
}

// Stats returns the counters for the named pool.
// Returns ErrPoolNotFound if the name was never registered.
func (m *Manager) Stats(name string) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pools[name]
	if !ok {
		return Stats{}, ErrPoolNotFound
	}

	return Stats{
		Name:      p.name,
		MaxSize:   p.maxSize,
		Available: len(p.available),
		InUse:     p.inUse,
		Created:   p.created,
		Reused:    p.reused,
		Overflow:  p.overflow,
	}, nil
}
