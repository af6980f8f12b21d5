// Package host provides in-process implementations of the host application
// bindings: a state store with mutation subscriptions and a client-side router.
package host

import (
	"sync"
	"time"

	"github.com/V4T54L/rumtrack/internal/domain"
)

// StaticState is an immutable snapshot of host state, such as the one a
// beacon carries.
type StaticState struct {
	State   map[string]any
	Getters map[string]any
}

func (s StaticState) UserModule() map[string]any {
	user, _ := s.State["user"].(map[string]any)
	return user
}

func (s StaticState) Getter(name string) (any, bool) {
	v, ok := s.Getters[name]
	return v, ok
}

// GetterFunc computes a derived value from the state tree.
type GetterFunc func(state map[string]any) any

// Store is a mutable state tree. Changes are made through Commit and are
// reported to subscribers in commit order.
type Store struct {
	mu      sync.RWMutex
	state   map[string]any
	getters map[string]GetterFunc

	subMu  sync.Mutex
	subs   map[int]func(domain.Mutation)
	nextID int
	now    func() time.Time
}

// NewStore creates a Store over initial, which the store takes ownership of.
func NewStore(initial map[string]any) *Store {
	if initial == nil {
		initial = make(map[string]any)
	}
	return &Store{
		state:   initial,
		getters: make(map[string]GetterFunc),
		subs:    make(map[int]func(domain.Mutation)),
		now:     time.Now,
	}
}

// RegisterGetter adds a named getter such as "user/userId".
func (s *Store) RegisterGetter(name string, fn GetterFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getters[name] = fn
}

func (s *Store) UserModule() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, _ := s.state["user"].(map[string]any)
	return user
}

func (s *Store) Getter(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn, ok := s.getters[name]
	if !ok {
		return nil, false
	}
	return fn(s.state), true
}

// Commit applies mutate to the state tree and notifies subscribers.
func (s *Store) Commit(mutationType string, payload any, mutate func(state map[string]any)) {
	if mutate != nil {
		s.mu.Lock()
		mutate(s.state)
		s.mu.Unlock()
	}

	m := domain.Mutation{Type: mutationType, Payload: payload, At: s.now()}
	s.subMu.Lock()
	subs := make([]func(domain.Mutation), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(m)
	}
}

// Subscribe registers fn for every later commit.
func (s *Store) Subscribe(fn func(domain.Mutation)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}
