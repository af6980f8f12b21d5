package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/V4T54L/rumtrack/internal/domain/mocks"
)

var sessionPattern = regexp.MustCompile(`^session_\d+_[0-9a-z]{7}$`)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSessions_ID(t *testing.T) {
	ctx := context.Background()
	now := func() time.Time { return time.UnixMilli(1714552200000) }

	t.Run("Generates and stores when absent", func(t *testing.T) {
		store := &mocks.MockSessionStore{}
		s := NewSessions(store, now, discardLogger())

		id := s.ID(ctx)
		if !sessionPattern.MatchString(id) {
			t.Fatalf("unexpected session id %q", id)
		}
		if store.Values[SessionKey] != id {
			t.Errorf("stored %q, want %q", store.Values[SessionKey], id)
		}
		if again := s.ID(ctx); again != id {
			t.Errorf("second call returned %q, want reuse of %q", again, id)
		}
	})

	t.Run("Reuses existing identifier", func(t *testing.T) {
		store := &mocks.MockSessionStore{Values: map[string]string{SessionKey: "session_1_abcdefg"}}
		s := NewSessions(store, now, discardLogger())
		if id := s.ID(ctx); id != "session_1_abcdefg" {
			t.Errorf("ID() = %q", id)
		}
	})

	t.Run("Store failures degrade to a fresh identifier", func(t *testing.T) {
		store := &mocks.MockSessionStore{GetErr: errors.New("down"), SetErr: errors.New("down")}
		s := NewSessions(store, now, discardLogger())
		if id := s.ID(ctx); !sessionPattern.MatchString(id) {
			t.Errorf("unexpected session id %q", id)
		}
	})

	t.Run("No store", func(t *testing.T) {
		s := NewSessions(nil, now, discardLogger())
		if id := s.ID(ctx); id[:22] != "session_1714552200000_" {
			t.Errorf("unexpected session id %q", id)
		}
	})
}
