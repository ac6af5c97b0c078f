// Package channel hands out per-slot LPA channels and tracks when they stop
// being usable.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ruminaider/euiccctl/internal/lpa"
	"golang.org/x/sync/semaphore"
)

// ErrUnavailable means the slot's channel cannot be used: it was never
// acquired, the slot is not ready, or the handle was invalidated.
var ErrUnavailable = errors.New("channel unavailable")

// Handle is exclusive access to one slot's LPA session. Once invalidated it
// stays invalid; a new handle has to be acquired from the Manager.
type Handle struct {
	slot   int
	client lpa.Client
	valid  atomic.Bool
	done   chan struct{}
	once   sync.Once
	onDone func(*Handle)

	mu    sync.Mutex
	hooks []func()
}

// NewHandle returns a valid handle for slot backed by client.
func NewHandle(slot int, client lpa.Client) *Handle {
	h := &Handle{slot: slot, client: client, done: make(chan struct{})}
	h.valid.Store(true)
	return h
}

// Slot returns the slot the handle was acquired for.
func (h *Handle) Slot() int { return h.slot }

// Client returns the LPA client behind the handle.
func (h *Handle) Client() lpa.Client { return h.client }

// Valid reports whether the handle can still be used.
func (h *Handle) Valid() bool { return h.valid.Load() }

// Done is closed when the handle is invalidated.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Invalidate marks the handle unusable. It returns true for the call that
// actually flipped the flag.
func (h *Handle) Invalidate() bool {
	first := false
	h.once.Do(func() {
		first = true
		h.valid.Store(false)
		close(h.done)

		h.mu.Lock()
		hooks := h.hooks
		h.hooks = nil
		h.mu.Unlock()
		for _, fn := range hooks {
			fn()
		}
		if h.onDone != nil {
			h.onDone(h)
		}
	})
	return first
}

// OnInvalidate registers fn to run when the handle is invalidated, however
// that happens. fn runs right away if the handle is already invalid.
func (h *Handle) OnInvalidate(fn func()) {
	h.mu.Lock()
	if h.Valid() {
		h.hooks = append(h.hooks, fn)
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()
	fn()
}

// Opener creates the LPA client for a slot. It returns an error wrapping
// ErrUnavailable when the slot is not ready.
type Opener func(ctx context.Context, slot int) (lpa.Client, error)

// Invalidation is published when a slot's handle becomes unusable.
type Invalidation struct {
	Slot int
}

// Manager acquires handles lazily, one live handle per slot.
type Manager struct {
	mu      sync.Mutex
	open    Opener
	handles map[int]*Handle
	opening map[int]*semaphore.Weighted
	subs    []chan Invalidation
}

// NewManager returns a manager that uses open to create slot clients.
func NewManager(open Opener) *Manager {
	return &Manager{
		open:    open,
		handles: make(map[int]*Handle),
		opening: make(map[int]*semaphore.Weighted),
	}
}

// Acquire returns the live handle for slot, opening a new one when there is
// none or the previous one was invalidated. Opens are serialized per slot;
// a slow open on one slot does not hold up the others.
func (m *Manager) Acquire(ctx context.Context, slot int) (*Handle, error) {
	if h := m.live(slot); h != nil {
		return h, nil
	}

	sem := m.openLock(slot)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: slot %d: %v", ErrUnavailable, slot, err)
	}
	defer sem.Release(1)

	// Another caller may have opened the slot while we waited.
	if h := m.live(slot); h != nil {
		return h, nil
	}
	client, err := m.open(ctx, slot)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: slot %d: %v", ErrUnavailable, slot, err)
	}
	h := NewHandle(slot, client)
	h.onDone = m.published

	m.mu.Lock()
	m.handles[slot] = h
	m.mu.Unlock()
	return h, nil
}

func (m *Manager) live(slot int) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.handles[slot]; ok && h.Valid() {
		return h
	}
	return nil
}

func (m *Manager) openLock(slot int) *semaphore.Weighted {
	m.mu.Lock()
	defer m.mu.Unlock()
	sem, ok := m.opening[slot]
	if !ok {
		sem = semaphore.NewWeighted(1)
		m.opening[slot] = sem
	}
	return sem
}

// Invalidate discards the live handle for slot, if any. It is the entry
// point for out-of-band signals such as the modem disappearing.
func (m *Manager) Invalidate(slot int) bool {
	m.mu.Lock()
	h, ok := m.handles[slot]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return h.Invalidate()
}

// Slots returns the slots that currently have a valid handle.
func (m *Manager) Slots() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int
	for s, h := range m.handles {
		if h.Valid() {
			out = append(out, s)
		}
	}
	sort.Ints(out)
	return out
}

// Invalidations returns a channel that receives every invalidation. Slow
// subscribers miss events rather than block the invalidating caller.
func (m *Manager) Invalidations() <-chan Invalidation {
	ch := make(chan Invalidation, 8)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

func (m *Manager) published(h *Handle) {
	m.mu.Lock()
	if cur, ok := m.handles[h.slot]; ok && cur == h {
		delete(m.handles, h.slot)
	}
	subs := append([]chan Invalidation(nil), m.subs...)
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- Invalidation{Slot: h.slot}:
		default:
		}
	}
}
