package host

import (
	"sync"

	"github.com/icco/chordglide/internal/engine"
)

// Store holds the engine parameters shared between the block loop and the
// controls that edit them.
type Store struct {
	mu   sync.RWMutex
	p    engine.Params
	subs []func(engine.Params)
}

// NewStore returns a store holding p.
func NewStore(p engine.Params) *Store {
	return &Store{p: p}
}

// Get returns the current parameters.
func (s *Store) Get() engine.Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.p
}

// Set validates and stores p, then notifies subscribers.
func (s *Store) Set(p engine.Params) error {
	_, err := s.Update(func(q *engine.Params) { *q = p })
	return err
}

// Update applies fn to a copy of the parameters and stores the result if it
// is valid. The read, fn and the write happen under one lock, so concurrent
// updates are never lost. It returns the parameters in effect afterwards.
func (s *Store) Update(fn func(*engine.Params)) (engine.Params, error) {
	s.mu.Lock()
	p := s.p
	fn(&p)
	if err := p.Validate(); err != nil {
		cur := s.p
		s.mu.Unlock()
		return cur, err
	}
	changed := s.p != p
	s.p = p
	subs := s.subs
	s.mu.Unlock()

	if changed {
		for _, sub := range subs {
			sub(p)
		}
	}
	return p, nil
}

// Subscribe registers fn to be called after every change.
func (s *Store) Subscribe(fn func(engine.Params)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}
