package rds

import (
	"sync"

	"github.com/latticeproxy/rds-router/routing"
)

// ProviderManager keeps exactly one Provider per Key alive, reference
// counted since Go has no weak pointers to let a provider tear itself down
// once its last consumer forgets it.
type ProviderManager struct {
	mu        sync.Mutex
	providers map[Key]*Provider
	newFunc   func(Options) *Provider
}

func NewProviderManager() *ProviderManager {
	return &ProviderManager{
		providers: make(map[Key]*Provider),
		newFunc:   NewProvider,
	}
}

// Acquire returns the Provider for opts.Key, creating and starting it on
// first use and incrementing its reference count on every call. Callers
// must pair every Acquire with a Release.
func (m *ProviderManager) Acquire(opts Options) *Provider {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.providers[opts.Key]; ok {
		p.refs++
		return p
	}

	p := m.newFunc(opts)
	m.providers[opts.Key] = p
	p.Start()
	return p
}

// Release decrements key's reference count, stopping and forgetting the
// provider once it reaches zero. Calling Release on a key with no acquired
// provider is a no-op.
func (m *ProviderManager) Release(key Key) {
	m.mu.Lock()
	p, ok := m.providers[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	p.refs--
	if p.refs > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.providers, key)
	m.mu.Unlock()

	p.Stop()
}

// Snapshot returns the current snapshot for key, or nil if no provider is
// registered for it.
func (m *ProviderManager) Snapshot(key Key) *routing.ConfigSnapshot {
	m.mu.Lock()
	p, ok := m.providers[key]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return p.Snapshot()
}

// All returns a copy of every live (key, provider) pair, for the admin
// endpoint's dump-everything mode. The result is a map and carries no order;
// callers that need a stable order sort the keys themselves.
func (m *ProviderManager) All() map[Key]*Provider {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[Key]*Provider, len(m.providers))
	for k, p := range m.providers {
		out[k] = p
	}
	return out
}
