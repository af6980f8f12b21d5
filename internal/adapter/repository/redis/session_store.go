package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/rumtrack/internal/domain"
)

const sessionKeyPrefix = "rum:session"

// ErrSessionStoreUnavailable is returned when Redis cannot be reached.
var ErrSessionStoreUnavailable = errors.New("session store unavailable")

// SessionStore keeps session-scoped values in Redis. Entries expire after ttl
// of inactivity, which stands in for the lifetime of a browser tab session.
type SessionStore struct {
	client    *redis.Client
	ttl       time.Duration
	namespace string
	logger    *slog.Logger
}

// NewSessionStore creates a new Redis-backed SessionStore.
func NewSessionStore(client *redis.Client, ttl time.Duration, logger *slog.Logger) *SessionStore {
	return &SessionStore{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "redis_session_store"),
	}
}

// ForClient returns a view of the store whose keys are private to clientID.
func (s *SessionStore) ForClient(clientID string) domain.SessionStore {
	return &SessionStore{client: s.client, ttl: s.ttl, namespace: clientID, logger: s.logger}
}

func (s *SessionStore) key(k string) string {
	if s.namespace == "" {
		return sessionKeyPrefix + ":" + k
	}
	return sessionKeyPrefix + ":" + s.namespace + ":" + k
}

// Get returns the stored value and refreshes its expiry.
func (s *SessionStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.GetEx(ctx, s.key(key), s.ttl).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, s.wrap("get", err)
	}
	return val, true, nil
}

// Set stores value under key with the configured expiry.
func (s *SessionStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return s.wrap("set", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *SessionStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return s.wrap("ping", err)
	}
	return nil
}

func (s *SessionStore) wrap(op string, err error) error {
	if isNetworkError(err) {
		s.logger.Error("redis unavailable", "op", op, "error", err)
		return fmt.Errorf("%w: %s: %v", ErrSessionStoreUnavailable, op, err)
	}
	return fmt.Errorf("redis %s: %w", op, err)
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
