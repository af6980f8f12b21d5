package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/V4T54L/rumtrack/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	MaxEventSize  int64  `env:"MAX_EVENT_SIZE_BYTES" envDefault:"1048576"` // 1MB
	CollectorAddr string `env:"COLLECTOR_ADDR" envDefault:":8080"`
	AdminAddr     string `env:"ADMIN_ADDR" envDefault:":9091"`

	SLS     SLSConfig
	RUM     RUMConfig
	Storage StorageConfig
}

// SLSConfig configures delivery to the log-ingestion backend.
type SLSConfig struct {
	Host          string        `env:"SLS_HOST"`
	Project       string        `env:"SLS_PROJECT"`
	Logstore      string        `env:"SLS_LOGSTORE"`
	Time          int           `env:"SLS_TIME" envDefault:"10"`
	Count         int           `env:"SLS_COUNT" envDefault:"10"`
	Topic         string        `env:"SLS_TOPIC" envDefault:"rum-monitor"`
	Source        string        `env:"SLS_SOURCE" envDefault:"web"`
	Enabled       bool          `env:"SLS_ENABLED" envDefault:"false"`
	RetryCount    int           `env:"SLS_RETRY_COUNT" envDefault:"3"`
	RetryInterval time.Duration `env:"SLS_RETRY_INTERVAL" envDefault:"2s"`
}

// Configured reports whether an ingestion endpoint is fully specified.
func (c SLSConfig) Configured() bool {
	return c.Host != "" && c.Project != "" && c.Logstore != ""
}

// RUMConfig configures capture, sampling and enrichment.
type RUMConfig struct {
	Environment     string   `env:"APP_ENV" envDefault:"development"`
	Debug           bool     `env:"RUM_DEBUG" envDefault:"false"`
	AppName         string   `env:"RUM_APP_NAME" envDefault:"rum-app"`
	AppVersion      string   `env:"APP_VERSION" envDefault:"1.0.0"`
	DSN             string   `env:"RUM_DSN"`
	InternalDomains []string `env:"RUM_INTERNAL_EMAIL_DOMAINS" envSeparator:"," envDefault:"polyv.net,polyv.com"`
	MaxBreadcrumbs  int      `env:"RUM_MAX_BREADCRUMBS" envDefault:"20"`
	// Enabled is kept as a string so that "unset" can be told apart from "false".
	Enabled      string `env:"RUM_ENABLED"`
	Mode         string `env:"MODE"`
	SamplingFile string `env:"RUM_SAMPLING_FILE"`

	SampleError       *float64 `env:"RUM_SAMPLE_ERROR"`
	SampleClick       *float64 `env:"RUM_SAMPLE_CLICK"`
	SampleRoute       *float64 `env:"RUM_SAMPLE_ROUTE"`
	SampleCustom      *float64 `env:"RUM_SAMPLE_CUSTOM"`
	SampleXHR         *float64 `env:"RUM_SAMPLE_XHR"`
	SampleFetch       *float64 `env:"RUM_SAMPLE_FETCH"`
	SamplePerformance *float64 `env:"RUM_SAMPLE_PERFORMANCE"`
	SampleSystem      *float64 `env:"RUM_SAMPLE_SYSTEM"`

	// Sampling is resolved by Load and is not read from the environment.
	Sampling domain.SamplingPolicy `env:"-"`
}

// IsProduction reports whether the deployment environment is production.
func (c RUMConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// StorageConfig configures the session store and app-key repository.
type StorageConfig struct {
	RedisURL       string        `env:"REDIS_URL"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"30m"`
	PostgresURL    string        `env:"POSTGRES_URL"`
	AppKeyCacheTTL time.Duration `env:"APP_KEY_CACHE_TTL" envDefault:"5m"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	return parse(env.Options{})
}

// LoadFrom reads configuration from the given variables only. It is used by
// tests and by hosts that keep configuration outside the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	if vars == nil {
		vars = map[string]string{}
	}
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, err
	}

	policy := DefaultSampling(cfg.RUM.IsProduction())
	if cfg.RUM.SamplingFile != "" {
		filePolicy, err := LoadSamplingFile(cfg.RUM.SamplingFile)
		if err != nil {
			return nil, err
		}
		for k, v := range filePolicy {
			policy[k] = v
		}
	}
	overrides := map[domain.EventType]*float64{
		domain.EventError:       cfg.RUM.SampleError,
		domain.EventClick:       cfg.RUM.SampleClick,
		domain.EventRoute:       cfg.RUM.SampleRoute,
		domain.EventCustom:      cfg.RUM.SampleCustom,
		domain.EventXHR:         cfg.RUM.SampleXHR,
		domain.EventFetch:       cfg.RUM.SampleFetch,
		domain.EventPerformance: cfg.RUM.SamplePerformance,
		domain.EventSystem:      cfg.RUM.SampleSystem,
	}
	for t, rate := range overrides {
		if rate != nil {
			policy[t] = *rate
		}
	}
	if err := validateSampling(policy); err != nil {
		return nil, err
	}
	cfg.RUM.Sampling = policy

	return cfg, nil
}

// DefaultSampling returns the built-in sampling policy. Types not listed are
// never reported.
func DefaultSampling(production bool) domain.SamplingPolicy {
	click, xhr := 1.0, 1.0
	if production {
		click, xhr = 0.1, 0.5
	}
	return domain.SamplingPolicy{
		domain.EventError:  1,
		domain.EventClick:  click,
		domain.EventRoute:  1,
		domain.EventCustom: 1,
		domain.EventXHR:    xhr,
	}
}

type samplingFile struct {
	Rates map[string]float64 `yaml:"rates"`
}

// LoadSamplingFile reads a YAML sampling policy of the form:
//
//	rates:
//	  error: 1
//	  click: 0.25
func LoadSamplingFile(path string) (domain.SamplingPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sampling file: %w", err)
	}
	var f samplingFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sampling file: %w", err)
	}
	policy := make(domain.SamplingPolicy, len(f.Rates))
	for k, v := range f.Rates {
		policy[domain.EventType(strings.ToLower(strings.TrimSpace(k)))] = v
	}
	if err := validateSampling(policy); err != nil {
		return nil, err
	}
	return policy, nil
}

func validateSampling(p domain.SamplingPolicy) error {
	for t, rate := range p {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("sampling rate for %q must be within [0,1], got %v", t, rate)
		}
	}
	return nil
}
