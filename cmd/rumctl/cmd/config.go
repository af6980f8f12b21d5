package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/V4T54L/rumtrack/internal/adapter/sls"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration",
	Long:  "Print the configuration rum-collector would start with, after defaults,\nthe sampling file and per-type overrides are applied. Connection URLs are\nnot printed.",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

type deliveryView struct {
	Host          string   `yaml:"host"`
	Project       string   `yaml:"project"`
	Logstore      string   `yaml:"logstore"`
	Topic         string   `yaml:"topic"`
	Source        string   `yaml:"source"`
	Enabled       bool     `yaml:"enabled"`
	Batch         string   `yaml:"batch"`
	RetryCount    int      `yaml:"retry_count"`
	RetryInterval string   `yaml:"retry_interval"`
	Internal      []string `yaml:"internal_email_domains"`
}

type rumView struct {
	Environment    string             `yaml:"environment"`
	Mode           string             `yaml:"mode,omitempty"`
	Enabled        string             `yaml:"enabled,omitempty"`
	Debug          bool               `yaml:"debug"`
	AppName        string             `yaml:"app_name"`
	AppVersion     string             `yaml:"app_version"`
	DSNSet         bool               `yaml:"dsn_set"`
	MaxBreadcrumbs int                `yaml:"max_breadcrumbs"`
	Sampling       map[string]float64 `yaml:"sampling"`
	Unsampled      []string           `yaml:"never_reported,omitempty"`
}

type storageView struct {
	Redis      bool   `yaml:"redis"`
	SessionTTL string `yaml:"session_ttl"`
	Postgres   bool   `yaml:"postgres"`
}

type configView struct {
	CollectorAddr string       `yaml:"collector_addr"`
	AdminAddr     string       `yaml:"admin_addr"`
	MaxEventSize  int64        `yaml:"max_event_size"`
	Delivery      deliveryView `yaml:"delivery"`
	RUM           rumView      `yaml:"rum"`
	Storage       storageView  `yaml:"storage"`
}

func runConfig(cmd *cobra.Command, args []string) error {
	d := sls.ConfigFromEnv(cfg)
	view := configView{
		CollectorAddr: cfg.CollectorAddr,
		AdminAddr:     cfg.AdminAddr,
		MaxEventSize:  cfg.MaxEventSize,
		Delivery: deliveryView{
			Host:          d.Host,
			Project:       d.Project,
			Logstore:      d.Logstore,
			Topic:         d.Topic,
			Source:        d.Source,
			Enabled:       d.Enabled,
			Batch:         batching(d.Count, d.Time),
			RetryCount:    d.RetryCount,
			RetryInterval: d.RetryInterval.String(),
			Internal:      d.InternalDomains,
		},
		RUM: rumView{
			Environment:    cfg.RUM.Environment,
			Mode:           cfg.RUM.Mode,
			Enabled:        cfg.RUM.Enabled,
			Debug:          cfg.RUM.Debug,
			AppName:        cfg.RUM.AppName,
			AppVersion:     cfg.RUM.AppVersion,
			DSNSet:         cfg.RUM.DSN != "",
			MaxBreadcrumbs: cfg.RUM.MaxBreadcrumbs,
			Sampling:       make(map[string]float64, len(cfg.RUM.Sampling)),
		},
		Storage: storageView{
			Redis:      cfg.Storage.RedisURL != "",
			SessionTTL: cfg.Storage.SessionTTL.String(),
			Postgres:   cfg.Storage.PostgresURL != "",
		},
	}
	for t, rate := range cfg.RUM.Sampling {
		view.RUM.Sampling[string(t)] = rate
		if rate == 0 {
			view.RUM.Unsampled = append(view.RUM.Unsampled, string(t))
		}
	}
	sort.Strings(view.RUM.Unsampled)

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(view)
}

func batching(count, seconds int) string {
	if count <= 1 || seconds <= 0 {
		return "off"
	}
	return fmt.Sprintf("up to %d records or %ds", count, seconds)
}
