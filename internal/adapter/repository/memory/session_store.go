package memory

import (
	"context"
	"sync"

	"github.com/V4T54L/rumtrack/internal/domain"
)

// SessionStore is an in-process domain.SessionStore. Values live as long as
// the process.
type SessionStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{values: make(map[string]string)}
}

// ForClient returns a view whose keys are private to clientID.
func (s *SessionStore) ForClient(clientID string) domain.SessionStore {
	return clientView{store: s, prefix: clientID + ":"}
}

func (s *SessionStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *SessionStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

type clientView struct {
	store  *SessionStore
	prefix string
}

func (v clientView) Get(ctx context.Context, key string) (string, bool, error) {
	return v.store.Get(ctx, v.prefix+key)
}

func (v clientView) Set(ctx context.Context, key, value string) error {
	return v.store.Set(ctx, v.prefix+key, value)
}
