package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/V4T54L/rumtrack/internal/adapter/sls"
	"github.com/V4T54L/rumtrack/internal/adapter/tracker"
	"github.com/V4T54L/rumtrack/internal/app"
	"github.com/V4T54L/rumtrack/internal/domain"
	"github.com/V4T54L/rumtrack/internal/pkg/config"
	"github.com/V4T54L/rumtrack/internal/pkg/logger"
)

var (
	cfg       *config.Config
	cliLogger *slog.Logger
	logLevel  string
	dryRun    bool
)

var rootCmd = &cobra.Command{
	Use:   "rumctl",
	Short: "RUM pipeline CLI",
	Long: `rumctl drives the RUM pipeline from the terminal.

Send and preview events against the configured log backend, replay captured
beacons, simulate a browsing session and manage collector app keys. Settings
are read from the same environment variables as rum-collector.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "write log records to stdout instead of the backend")
}

func initConfig() {
	cliLogger = logger.NewWithWriter(os.Stderr, logLevel)

	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg, _ = config.LoadFrom(nil)
	}
}

// newPipeline wires the pipeline. With --dry-run records go to out and
// delivery is forced on.
func newPipeline(out io.Writer) *app.Pipeline {
	opts := app.Options{}
	if dryRun {
		opts.Transport = writerFactory(out)
	}
	p := app.New(cfg, cliLogger, opts)
	if dryRun {
		enabled := true
		p.Delivery.UpdateConfig(sls.ConfigPatch{Enabled: &enabled})
	}
	return p
}

// writerTransport encodes each record as one JSON line, the way the tracking
// client would put it on the wire.
type writerTransport struct {
	mu         sync.Mutex
	enc        *json.Encoder
	beforeSend domain.BeforeSendFunc
}

func writerFactory(w io.Writer) sls.TransportFactory {
	return func(opts sls.TransportOptions) (domain.Transport, error) {
		return &writerTransport{enc: json.NewEncoder(w), beforeSend: opts.BeforeSend}, nil
	}
}

func (t *writerTransport) Send(_ context.Context, record domain.LogRecord) error {
	if t.beforeSend != nil {
		filtered, ok := t.beforeSend(record)
		if !ok {
			return nil
		}
		record = filtered
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enc.Encode(tracker.Stringify(record))
}

func (t *writerTransport) Close() error { return nil }

// pageEnv builds the page environment events are enriched with. It returns
// nil when no page URL is given.
func pageEnv(rawURL, title, referrer, userAgent string) (domain.Environment, error) {
	if rawURL == "" {
		return nil, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid --url %q: %w", rawURL, err)
	}
	env := domain.StaticEnvironment{
		Loc: &domain.Location{Href: u.String(), Pathname: u.Path},
		Doc: &domain.Document{Title: title, Referrer: referrer},
	}
	if u.RawQuery != "" {
		env.Loc.Search = "?" + u.RawQuery
	}
	if u.Fragment != "" {
		env.Loc.Hash = "#" + u.Fragment
	}
	if userAgent != "" {
		env.Nav = &domain.Navigator{UserAgent: userAgent}
	}
	return env, nil
}
