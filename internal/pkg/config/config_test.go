package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/rumtrack/internal/domain"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.CollectorAddr)
	assert.Equal(t, int64(1048576), cfg.MaxEventSize)
	assert.Equal(t, 10, cfg.SLS.Time)
	assert.Equal(t, 10, cfg.SLS.Count)
	assert.Equal(t, "rum-monitor", cfg.SLS.Topic)
	assert.Equal(t, "web", cfg.SLS.Source)
	assert.False(t, cfg.SLS.Enabled)
	assert.False(t, cfg.SLS.Configured())
	assert.Equal(t, 3, cfg.SLS.RetryCount)
	assert.Equal(t, 2*time.Second, cfg.SLS.RetryInterval)
	assert.Equal(t, "rum-app", cfg.RUM.AppName)
	assert.Equal(t, []string{"polyv.net", "polyv.com"}, cfg.RUM.InternalDomains)
	assert.Equal(t, 20, cfg.RUM.MaxBreadcrumbs)

	assert.Equal(t, 1.0, cfg.RUM.Sampling[domain.EventClick])
	assert.Equal(t, 1.0, cfg.RUM.Sampling[domain.EventXHR])
	_, ok := cfg.RUM.Sampling[domain.EventPerformance]
	assert.False(t, ok, "performance must not be sampled by default")
}

func TestLoadFromProductionSampling(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{"APP_ENV": "production"})
	require.NoError(t, err)

	assert.Equal(t, 0.1, cfg.RUM.Sampling[domain.EventClick])
	assert.Equal(t, 0.5, cfg.RUM.Sampling[domain.EventXHR])
	assert.Equal(t, 1.0, cfg.RUM.Sampling[domain.EventError])
}

func TestLoadFromSamplingOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sampling.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rates:\n  performance: 0.2\n  click: 0.3\n"), 0o600))

	cfg, err := LoadFrom(map[string]string{
		"RUM_SAMPLING_FILE": path,
		"RUM_SAMPLE_CLICK":  "0.7",
	})
	require.NoError(t, err)

	assert.Equal(t, 0.2, cfg.RUM.Sampling[domain.EventPerformance])
	assert.Equal(t, 0.7, cfg.RUM.Sampling[domain.EventClick], "env override wins over the file")
}

func TestLoadFromRejectsInvalidRate(t *testing.T) {
	_, err := LoadFrom(map[string]string{"RUM_SAMPLE_ERROR": "1.5"})
	assert.Error(t, err)
}

func TestLoadFromSLS(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"SLS_HOST":           "cn-hangzhou.log.aliyuncs.com",
		"SLS_PROJECT":        "proj",
		"SLS_LOGSTORE":       "store",
		"SLS_ENABLED":        "true",
		"SLS_RETRY_INTERVAL": "500ms",
	})
	require.NoError(t, err)

	assert.True(t, cfg.SLS.Configured())
	assert.True(t, cfg.SLS.Enabled)
	assert.Equal(t, 500*time.Millisecond, cfg.SLS.RetryInterval)
}
