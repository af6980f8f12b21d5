package postgres

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/V4T54L/rumtrack/internal/adapter/metrics"
)

// keyState is what the cache remembers about one key. Unknown and revoked
// keys are cached too.
type keyState struct {
	valid   bool
	expires time.Time
}

func (k keyState) fresh(now time.Time) bool { return now.Before(k.expires) }

// AppKeyRepository checks beacon keys against the rum_app_keys table and
// remembers each answer for cacheTTL.
type AppKeyRepository struct {
	db       *sql.DB
	logger   *slog.Logger
	cacheTTL time.Duration
	metrics  *metrics.RUMMetrics
	now      func() time.Time

	mu    sync.RWMutex
	cache map[string]keyState
}

// NewAppKeyRepository creates an AppKeyRepository. m may be nil.
func NewAppKeyRepository(db *sql.DB, logger *slog.Logger, cacheTTL time.Duration, m *metrics.RUMMetrics) *AppKeyRepository {
	return &AppKeyRepository{
		db:       db,
		logger:   logger.With("component", "app_key_repository"),
		cache:    make(map[string]keyState),
		cacheTTL: cacheTTL,
		metrics:  m,
		now:      time.Now,
	}
}

const validKeyQuery = `SELECT EXISTS(
	SELECT 1 FROM rum_app_keys
	WHERE key = $1 AND is_active AND (expires_at IS NULL OR expires_at > NOW())
)`

// IsValid implements domain.AppKeyRepository. Database errors are returned
// and never cached.
func (r *AppKeyRepository) IsValid(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	if st, ok := r.cached(key); ok {
		r.count(true)
		return st.valid, nil
	}
	r.count(false)

	r.mu.Lock()
	defer r.mu.Unlock()
	// Filled in while this caller waited for the write lock.
	if st, ok := r.cache[key]; ok && st.fresh(r.now()) {
		return st.valid, nil
	}

	var valid bool
	if err := r.db.QueryRowContext(ctx, validKeyQuery, key).Scan(&valid); err != nil {
		r.logger.Error("app key lookup failed", "error", err)
		return false, err
	}
	r.cache[key] = keyState{valid: valid, expires: r.now().Add(r.cacheTTL)}
	return valid, nil
}

func (r *AppKeyRepository) cached(key string) (keyState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.cache[key]
	return st, ok && st.fresh(r.now())
}

func (r *AppKeyRepository) count(hit bool) {
	switch {
	case r.metrics == nil:
	case hit:
		r.metrics.AppKeyCacheHits.Inc()
	default:
		r.metrics.AppKeyCacheMisses.Inc()
	}
}

// Schema creates the key table when it does not exist.
const Schema = `CREATE TABLE IF NOT EXISTS rum_app_keys (
	key        TEXT PRIMARY KEY,
	app_name   TEXT NOT NULL,
	is_active  BOOLEAN NOT NULL DEFAULT true,
	expires_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// EnsureSchema applies Schema.
func (r *AppKeyRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, Schema)
	return err
}

// CreateKey registers an active key for appName.
func (r *AppKeyRepository) CreateKey(ctx context.Context, key, appName string, expiresAt *time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rum_app_keys (key, app_name, expires_at) VALUES ($1, $2, $3)`,
		key, appName, expiresAt)
	return err
}

// RevokeKey deactivates key and evicts it from the cache.
func (r *AppKeyRepository) RevokeKey(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE rum_app_keys SET is_active = false WHERE key = $1`, key); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.cache, key)
	r.mu.Unlock()
	return nil
}
