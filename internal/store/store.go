// Package store holds the last fetched profile list for a slot.
package store

import (
	"sync"
	"time"

	"github.com/ruminaider/euiccctl/internal/profile"
)

// Snapshot is one complete profile list as fetched from the card.
type Snapshot struct {
	Profiles   []profile.Profile `json:"profiles"`
	Generation uint64            `json:"generation"`
	FetchedAt  time.Time         `json:"fetched_at"`
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Profiles = make([]profile.Profile, len(s.Profiles))
	copy(out.Profiles, s.Profiles)
	return out
}

// Store is an atomically replaced snapshot. It keeps every profile,
// including Testing-class ones; filtering is the reader's job.
type Store struct {
	mu   sync.RWMutex
	snap Snapshot
	subs map[int]chan Snapshot
	next int
	now  func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		subs: make(map[int]chan Snapshot),
		now:  time.Now,
	}
}

// Replace swaps in a new profile list and notifies subscribers.
func (s *Store) Replace(profiles []profile.Profile) Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Profiles:   make([]profile.Profile, len(profiles)),
		Generation: s.snap.Generation + 1,
		FetchedAt:  s.now(),
	}
	copy(snap.Profiles, profiles)
	s.snap = snap
	subs := make([]chan Snapshot, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		// Keep only the newest snapshot for slow readers.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap.clone():
		default:
		}
	}
	return snap.clone()
}

// Current returns a copy of the profile list in fetch order.
func (s *Store) Current() []profile.Profile {
	return s.Snapshot().Profiles
}

// Snapshot returns a copy of the current snapshot. Generation 0 means
// nothing has been fetched yet.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.clone()
}

// Subscribe returns a channel that receives each new snapshot, and a
// function that stops the subscription.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}
