package postgres

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/V4T54L/rumtrack/internal/adapter/metrics"
)

func TestAppKeyRepository_CacheHit(t *testing.T) {
	m := metrics.NewRUMMetrics(prometheus.NewRegistry())
	// A nil database proves cached lookups never reach it.
	repo := NewAppKeyRepository(nil, slog.New(slog.NewJSONHandler(io.Discard, nil)), time.Minute, m)
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	repo.cache["good"] = keyState{valid: true, expires: now.Add(time.Minute)}
	repo.cache["revoked"] = keyState{valid: false, expires: now.Add(time.Minute)}

	ctx := context.Background()
	if ok, err := repo.IsValid(ctx, "good"); err != nil || !ok {
		t.Errorf("IsValid(good) = %v, %v", ok, err)
	}
	if ok, err := repo.IsValid(ctx, "revoked"); err != nil || ok {
		t.Errorf("IsValid(revoked) = %v, %v", ok, err)
	}
	if ok, err := repo.IsValid(ctx, ""); err != nil || ok {
		t.Errorf("IsValid(\"\") = %v, %v", ok, err)
	}
}
