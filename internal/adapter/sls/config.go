package sls

import (
	"time"

	"github.com/V4T54L/rumtrack/internal/domain"
	"github.com/V4T54L/rumtrack/internal/pkg/config"
)

// Config is the adapter's per-instance configuration.
type Config struct {
	Host            string        `json:"host"`
	Project         string        `json:"project"`
	Logstore        string        `json:"logstore"`
	Time            int           `json:"time"`
	Count           int           `json:"count"`
	Topic           string        `json:"topic"`
	Source          string        `json:"source"`
	Environment     string        `json:"environment"`
	Debug           bool          `json:"debug"`
	Enabled         bool          `json:"enabled"`
	UserID          string        `json:"userId"`
	SessionID       string        `json:"sessionId"`
	AppName         string        `json:"appName"`
	AppVersion      string        `json:"appVersion"`
	RetryCount      int           `json:"retryCount"`
	RetryInterval   time.Duration `json:"retryInterval"`
	InternalDomains []string      `json:"internalDomains"`
}

// ConfigFromEnv builds the adapter configuration from the loaded application
// configuration. The adapter is enabled only when the backend endpoint is fully
// specified.
func ConfigFromEnv(cfg *config.Config) Config {
	return Config{
		Host:            cfg.SLS.Host,
		Project:         cfg.SLS.Project,
		Logstore:        cfg.SLS.Logstore,
		Time:            cfg.SLS.Time,
		Count:           cfg.SLS.Count,
		Topic:           cfg.SLS.Topic,
		Source:          cfg.SLS.Source,
		Environment:     cfg.RUM.Environment,
		Debug:           cfg.RUM.Debug,
		Enabled:         cfg.SLS.Enabled && cfg.SLS.Configured(),
		AppName:         cfg.RUM.AppName,
		AppVersion:      cfg.RUM.AppVersion,
		RetryCount:      cfg.SLS.RetryCount,
		RetryInterval:   cfg.SLS.RetryInterval,
		InternalDomains: cfg.RUM.InternalDomains,
	}
}

func (c Config) withDefaults(now time.Time) Config {
	if c.Time == 0 {
		c.Time = 10
	}
	if c.Count == 0 {
		c.Count = 10
	}
	if c.Topic == "" {
		c.Topic = "rum-monitor"
	}
	if c.Source == "" {
		c.Source = "web"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.SessionID == "" {
		c.SessionID = domain.NewSessionID(now)
	}
	if c.AppName == "" {
		c.AppName = "rum-app"
	}
	if c.AppVersion == "" {
		c.AppVersion = "1.0.0"
	}
	if c.RetryCount == 0 {
		c.RetryCount = 3
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = 2 * time.Second
	}
	if c.InternalDomains == nil {
		c.InternalDomains = []string{"polyv.net", "polyv.com"}
	}
	return c
}

// ConfigPatch is a partial Config update. Nil fields are left unchanged.
type ConfigPatch struct {
	Host          *string        `json:"host,omitempty"`
	Project       *string        `json:"project,omitempty"`
	Logstore      *string        `json:"logstore,omitempty"`
	Topic         *string        `json:"topic,omitempty"`
	Source        *string        `json:"source,omitempty"`
	Environment   *string        `json:"environment,omitempty"`
	Debug         *bool          `json:"debug,omitempty"`
	Enabled       *bool          `json:"enabled,omitempty"`
	UserID        *string        `json:"userId,omitempty"`
	AppName       *string        `json:"appName,omitempty"`
	AppVersion    *string        `json:"appVersion,omitempty"`
	RetryCount    *int           `json:"retryCount,omitempty"`
	RetryInterval *time.Duration `json:"retryInterval,omitempty"`
}

func (c Config) apply(p ConfigPatch) Config {
	setString(&c.Host, p.Host)
	setString(&c.Project, p.Project)
	setString(&c.Logstore, p.Logstore)
	setString(&c.Topic, p.Topic)
	setString(&c.Source, p.Source)
	setString(&c.Environment, p.Environment)
	setString(&c.UserID, p.UserID)
	setString(&c.AppName, p.AppName)
	setString(&c.AppVersion, p.AppVersion)
	if p.Debug != nil {
		c.Debug = *p.Debug
	}
	if p.Enabled != nil {
		c.Enabled = *p.Enabled
	}
	if p.RetryCount != nil {
		c.RetryCount = *p.RetryCount
	}
	if p.RetryInterval != nil {
		c.RetryInterval = *p.RetryInterval
	}
	return c
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// TransportOptions configures the tracking client built by Init.
type TransportOptions struct {
	Host       string
	Project    string
	Logstore   string
	Time       int
	Count      int
	Topic      string
	Source     string
	BeforeSend domain.BeforeSendFunc
}

// TransportFactory builds the tracking client for an adapter.
type TransportFactory func(opts TransportOptions) (domain.Transport, error)
