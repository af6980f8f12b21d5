package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/V4T54L/rumtrack/internal/domain"
)

// SessionKey is the storage key of the session identifier.
const SessionKey = "rum_session_id"

// Sessions hands out the session identifier, creating it once per session
// store. Without a store every call generates a fresh identifier.
type Sessions struct {
	store  domain.SessionStore
	now    func() time.Time
	logger *slog.Logger
}

// NewSessions creates a Sessions over store, which may be nil.
func NewSessions(store domain.SessionStore, now func() time.Time, logger *slog.Logger) *Sessions {
	if now == nil {
		now = time.Now
	}
	return &Sessions{store: store, now: now, logger: logger}
}

// ID returns the stored session identifier, generating and storing one when
// absent. Storage failures degrade to an unsaved identifier.
func (s *Sessions) ID(ctx context.Context) string {
	if s == nil {
		return domain.NewSessionID(time.Now())
	}
	if s.store == nil {
		return domain.NewSessionID(s.now())
	}

	id, ok, err := s.store.Get(ctx, SessionKey)
	if err != nil {
		s.logger.Warn("failed to read session id, generating a new one", "error", err)
	}
	if ok && id != "" {
		return id
	}

	id = domain.NewSessionID(s.now())
	if err := s.store.Set(ctx, SessionKey, id); err != nil {
		s.logger.Warn("failed to persist session id", "error", err)
	}
	return id
}
