// Package app assembles the RUM pipeline from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/V4T54L/rumtrack/internal/adapter/metrics"
	"github.com/V4T54L/rumtrack/internal/adapter/sls"
	"github.com/V4T54L/rumtrack/internal/adapter/tracker"
	"github.com/V4T54L/rumtrack/internal/domain"
	"github.com/V4T54L/rumtrack/internal/pkg/config"
	"github.com/V4T54L/rumtrack/internal/usecase"
)

// Options tunes how a Pipeline is assembled. The zero value is usable.
type Options struct {
	// Sessions stores the process-wide session id. Nil generates one per call.
	Sessions domain.SessionStore
	Metrics  *metrics.RUMMetrics
	// HTTPClient and Endpoint are passed to the tracking client.
	HTTPClient *http.Client
	Endpoint   string
	// Transport replaces the tracking client entirely.
	Transport sls.TransportFactory
}

// ErrGatedOff is returned by Start when the enable gate keeps the pipeline
// off, e.g. MODE=production without RUM_ENABLED=true.
var ErrGatedOff = errors.New("RUM pipeline is disabled by configuration")

// Pipeline holds the wired components. Manager is the entry point; the rest
// are exposed for admin endpoints and tools.
type Pipeline struct {
	Delivery     *sls.Adapter
	Sampler      *usecase.Sampler
	Transformer  *usecase.Transformer
	Sessions     *usecase.Sessions
	Orchestrator *usecase.Orchestrator
	Manager      *usecase.Manager

	cfg    *config.Config
	logger *slog.Logger
}

// New wires a Pipeline. Nothing is started until Manager.Init.
func New(cfg *config.Config, logger *slog.Logger, opts Options) *Pipeline {
	factory := opts.Transport
	if factory == nil {
		factory = tracker.NewFactory(tracker.FactoryConfig{
			HTTPClient: opts.HTTPClient,
			Endpoint:   opts.Endpoint,
			Tags: map[string]string{
				"app_name":    cfg.RUM.AppName,
				"app_version": cfg.RUM.AppVersion,
			},
			Logger: logger,
		})
	}
	delivery := sls.New(sls.ConfigFromEnv(cfg), factory, logger, sls.WithMetrics(opts.Metrics))

	sampler := usecase.NewSampler(cfg.RUM.Sampling, nil)
	transformer := usecase.NewTransformer(usecase.TransformerConfig{
		Source:      cfg.SLS.Source,
		Environment: cfg.RUM.Environment,
		Debug:       cfg.RUM.Debug,
	}, nil)
	sessions := usecase.NewSessions(opts.Sessions, nil, logger)

	orchestrator := usecase.NewOrchestrator(usecase.OrchestratorConfig{
		DSN:            cfg.RUM.DSN,
		Debug:          cfg.RUM.Debug,
		MaxBreadcrumbs: cfg.RUM.MaxBreadcrumbs,
	}, sampler, transformer, sessions, delivery, nil, opts.Metrics, logger)

	manager := usecase.NewManager(usecase.ManagerConfig{
		RUMEnabled:  cfg.RUM.Enabled,
		Mode:        cfg.RUM.Mode,
		Environment: cfg.RUM.Environment,
		Debug:       cfg.RUM.Debug,
		Delivery: usecase.DeliveryStatus{
			Enabled:    cfg.SLS.Enabled,
			Configured: cfg.SLS.Configured(),
			Project:    cfg.SLS.Project,
			Logstore:   cfg.SLS.Logstore,
		},
	}, orchestrator, logger)

	return &Pipeline{
		cfg:          cfg,
		logger:       logger.With("component", "pipeline"),
		Delivery:     delivery,
		Sampler:      sampler,
		Transformer:  transformer,
		Sessions:     sessions,
		Orchestrator: orchestrator,
		Manager:      manager,
	}
}

// Snapshot reports the delivery counters streamed to dashboards.
func (p *Pipeline) Snapshot() (retryQueue int, sent, failed uint64) {
	s := p.Delivery.Stats()
	return s.RetryQueueCount, s.Sent, s.Failed
}

// Start initializes the pipeline for a service with no host bindings of its
// own. Unlike Manager.Init, a pipeline left off by the enable gate is an
// error.
func (p *Pipeline) Start(ctx context.Context) error {
	if err := p.Manager.Init(ctx, usecase.Bindings{}); err != nil {
		return err
	}
	if !p.Manager.Status().Initialized {
		return fmt.Errorf("%w (MODE=%q, RUM_ENABLED=%q): set RUM_ENABLED=true", ErrGatedOff, p.cfg.RUM.Mode, p.cfg.RUM.Enabled)
	}
	if st := p.Delivery.Stats(); !st.Initialized {
		p.logger.Warn("log delivery is off, events are processed but not sent",
			"sls_enabled", p.cfg.SLS.Enabled, "sls_configured", p.cfg.SLS.Configured())
	}
	return nil
}
