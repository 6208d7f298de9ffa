package collab

import "sync"

// Barrier is a reference InitManager: it gates a channel closed once every
// registered target has reported ready, so serving can be held off until
// every provider has completed its first fetch, generalized to an arbitrary
// number of named one-shot targets.
type Barrier struct {
	mu      sync.Mutex
	pending map[string]bool
	done    chan struct{}
	once    sync.Once
}

// NewBarrier creates a barrier with no registered targets; Ready() will not
// fire until at least one target is registered and every registered target
// has called SetReady.
func NewBarrier() *Barrier {
	return &Barrier{
		pending: make(map[string]bool),
		done:    make(chan struct{}),
	}
}

type barrierTarget struct {
	b    *Barrier
	name string
}

func (b *Barrier) RegisterTarget(name string) InitTarget {
	b.mu.Lock()
	b.pending[name] = true
	b.mu.Unlock()
	return &barrierTarget{b: b, name: name}
}

func (t *barrierTarget) SetReady() {
	b := t.b
	b.mu.Lock()
	delete(b.pending, t.name)
	remaining := len(b.pending)
	b.mu.Unlock()

	if remaining == 0 {
		b.once.Do(func() { close(b.done) })
	}
}

// Ready returns a channel that closes once every registered target has
// called SetReady at least once.
func (b *Barrier) Ready() <-chan struct{} {
	return b.done
}
