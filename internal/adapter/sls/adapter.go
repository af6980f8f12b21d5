package sls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/V4T54L/rumtrack/internal/adapter/metrics"
	"github.com/V4T54L/rumtrack/internal/adapter/pii"
	"github.com/V4T54L/rumtrack/internal/domain"
)

// MaxRecordSize is the largest serialized record handed to the transport.
const MaxRecordSize = 1024 * 1024

var (
	// ErrDestroyed is returned by Init once the adapter has been destroyed.
	ErrDestroyed = errors.New("sls adapter has been destroyed, cannot reinitialize")

	// ErrDisabled is returned by sends while the adapter's enabled flag is off.
	ErrDisabled = errors.New("sls adapter is disabled")
	// ErrNotInitialized is returned by sends before Init or after Destroy.
	ErrNotInitialized = errors.New("sls adapter not initialized")
	// ErrNoTransport is returned when no tracking client could be built.
	ErrNoTransport = errors.New("sls transport not available")
)

// Stats is a point-in-time view of the adapter.
type Stats struct {
	Initialized     bool   `json:"isInitialized"`
	Destroyed       bool   `json:"isDestroyed"`
	PendingLogs     int    `json:"pendingLogsCount"`
	RetryQueueCount int    `json:"retryQueueCount"`
	Sent            uint64 `json:"sent"`
	Failed          uint64 `json:"failed"`
	Dropped         uint64 `json:"dropped"`
	Project         string `json:"project"`
	Logstore        string `json:"logstore"`
	Enabled         bool   `json:"enabled"`
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithScheduler replaces the timer used for retry passes.
func WithScheduler(s Scheduler) Option {
	return func(a *Adapter) { a.scheduler = s }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// WithEnvironment sets the environment used when the context carries no scope.
func WithEnvironment(env domain.Environment) Option {
	return func(a *Adapter) { a.env = env }
}

// WithMetrics records delivery metrics.
func WithMetrics(m *metrics.RUMMetrics) Option {
	return func(a *Adapter) { a.metrics = m }
}

// Adapter owns the connection to the log-ingestion backend. It maps payloads
// into log records, filters them before they leave the process and retries
// transient failures.
type Adapter struct {
	mu           sync.Mutex
	cfg          Config
	newTransport TransportFactory
	transport    domain.Transport
	initialized  bool
	destroyed    bool
	retryQueue   []*RetryItem
	background   sync.WaitGroup

	debugOn  atomic.Bool
	inFlight atomic.Int64
	sent     atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64

	redactor  *pii.Redactor
	scheduler Scheduler
	env       domain.Environment
	now       func() time.Time
	metrics   *metrics.RUMMetrics
	logger    *slog.Logger
}

// New creates an uninitialized Adapter.
func New(cfg Config, factory TransportFactory, logger *slog.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		newTransport: factory,
		scheduler:    TimerScheduler{},
		env:          domain.NoopEnvironment{},
		now:          time.Now,
		logger:       logger.With("component", "sls_adapter"),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.cfg = cfg.withDefaults(a.now())
	a.debugOn.Store(a.cfg.Debug)
	a.redactor = pii.NewRedactor(pii.DefaultSensitivePatterns, a.logger)
	return a
}

// Init builds the transport and sends one system log through it. Calling Init
// twice is a no-op; calling it after Destroy returns ErrDestroyed.
func (a *Adapter) Init(ctx context.Context) error {
	a.mu.Lock()
	if a.initialized {
		a.mu.Unlock()
		a.logger.Warn("sls adapter already initialized")
		return nil
	}
	if a.destroyed {
		a.mu.Unlock()
		return ErrDestroyed
	}
	cfg := a.cfg
	if !cfg.Enabled {
		a.mu.Unlock()
		a.debug("sls adapter is disabled")
		return nil
	}
	if a.newTransport == nil {
		a.mu.Unlock()
		return fmt.Errorf("init sls adapter: %w", ErrNoTransport)
	}

	a.debug("initializing sls adapter", "project", cfg.Project, "logstore", cfg.Logstore, "host", cfg.Host)

	transport, err := a.newTransport(TransportOptions{
		Host:       cfg.Host,
		Project:    cfg.Project,
		Logstore:   cfg.Logstore,
		Time:       cfg.Time,
		Count:      cfg.Count,
		Topic:      cfg.Topic,
		Source:     cfg.Source,
		BeforeSend: a.HandleBeforeSend,
	})
	if err != nil {
		a.mu.Unlock()
		a.logger.Error("failed to initialize sls adapter", "error", err)
		return fmt.Errorf("init sls adapter: %w", err)
	}
	a.transport = transport
	a.initialized = true
	a.mu.Unlock()

	a.logger.Info("sls adapter initialized", "project", cfg.Project, "logstore", cfg.Logstore)

	initLog := domain.LogPayload{
		"type":      string(domain.EventSystem),
		"category":  "init",
		"level":     "info",
		"message":   "SLS WebTracking adapter initialized successfully",
		"timestamp": a.now().UnixMilli(),
	}
	// A batching client may hold the record for a full batch window, which
	// Init does not wait for.
	if bt, ok := transport.(domain.BatchTransport); ok {
		wait := a.queue(ctx, bt, initLog)
		fwdCtx := context.WithoutCancel(ctx)
		a.background.Add(1)
		go func() {
			defer a.background.Done()
			if err := wait(); err != nil {
				a.handleSendError(fwdCtx, initLog, err)
			}
		}()
		return nil
	}
	a.SendLog(ctx, initLog)
	return nil
}

// SendLog maps payload and hands it to the transport. Failures are logged and
// queued for retry; they are never returned.
func (a *Adapter) SendLog(ctx context.Context, payload domain.LogPayload) {
	_ = a.sendLog(ctx, payload)
}

// sendLog is SendLog returning the delivery result.
func (a *Adapter) sendLog(ctx context.Context, payload domain.LogPayload) error {
	transport, err := a.ready()
	if err != nil {
		return err
	}
	if err := a.send(ctx, transport, payload); err != nil {
		a.handleSendError(ctx, payload, err)
		return err
	}
	return nil
}

// SendBatchLogs sends each payload in order. With a batching transport every
// record is queued before any result is awaited, so one batch can carry them
// all. A failed record is queued for retry without aborting the rest.
func (a *Adapter) SendBatchLogs(ctx context.Context, payloads []domain.LogPayload) {
	_ = a.sendBatchLogs(ctx, payloads)
}

// SendBatch is SendBatchLogs reporting failures: the error joins one error per
// failed record.
func (a *Adapter) SendBatch(ctx context.Context, payloads []domain.LogPayload) error {
	return a.sendBatchLogs(ctx, payloads)
}

func (a *Adapter) sendBatchLogs(ctx context.Context, payloads []domain.LogPayload) error {
	transport, err := a.ready()
	if err != nil {
		return err
	}
	if len(payloads) == 0 {
		return nil
	}

	var errs []error
	if bt, ok := transport.(domain.BatchTransport); ok {
		// Queue everything in order first so the records can share batches.
		waits := make([]func() error, len(payloads))
		for i, payload := range payloads {
			waits[i] = a.queue(ctx, bt, payload)
		}
		for i, wait := range waits {
			if err := wait(); err != nil {
				a.handleSendError(ctx, payloads[i], err)
				errs = append(errs, err)
			}
		}
	} else {
		for _, payload := range payloads {
			if err := a.send(ctx, transport, payload); err != nil {
				a.handleSendError(ctx, payload, err)
				errs = append(errs, err)
			}
		}
	}
	if len(errs) == 0 {
		a.debug("batch sent", "count", len(payloads))
	}
	return errors.Join(errs...)
}

func (a *Adapter) send(ctx context.Context, transport domain.Transport, payload domain.LogPayload) error {
	a.inFlight.Add(1)
	defer a.inFlight.Add(-1)

	record := a.TransformLogData(ctx, payload)
	a.debug("sending log", "event_type", record[domain.FieldEventType])
	return a.settle(record, transport.Send(ctx, record))
}

// queue maps payload and adds it to the transport's open batch. The returned
// function blocks until the batch is posted and records the outcome.
func (a *Adapter) queue(ctx context.Context, bt domain.BatchTransport, payload domain.LogPayload) func() error {
	a.inFlight.Add(1)
	record := a.TransformLogData(ctx, payload)
	a.debug("queueing log", "event_type", record[domain.FieldEventType])
	done := bt.Queue(record)
	return func() error {
		defer a.inFlight.Add(-1)
		return a.settle(record, <-done)
	}
}

func (a *Adapter) settle(record domain.LogRecord, err error) error {
	if err != nil {
		a.failed.Add(1)
		if a.metrics != nil {
			a.metrics.LogsFailed.Inc()
		}
		a.logger.Error("failed to send log", "error", err, "event_type", record[domain.FieldEventType])
		return err
	}

	a.sent.Add(1)
	if a.metrics != nil {
		a.metrics.LogsSent.Inc()
	}
	return nil
}

// ready returns the transport when the adapter can send. Each unmet condition
// is reported separately.
func (a *Adapter) ready() (domain.Transport, error) {
	a.mu.Lock()
	enabled, initialized, transport := a.cfg.Enabled, a.initialized, a.transport
	a.mu.Unlock()

	switch {
	case !enabled:
		a.debug("sls adapter disabled, skipping log send")
		return nil, ErrDisabled
	case !initialized:
		a.logger.Warn("sls adapter not initialized")
		return nil, ErrNotInitialized
	case transport == nil:
		a.logger.Warn("sls transport not available")
		return nil, ErrNoTransport
	}
	return transport, nil
}

// HandleBeforeSend is installed on the transport. It rejects records larger
// than MaxRecordSize and filters sensitive values from the rest.
func (a *Adapter) HandleBeforeSend(record domain.LogRecord) (domain.LogRecord, bool) {
	size, err := record.Size()
	if err != nil {
		a.logger.Error("failed to measure log record, dropping", "error", err)
		a.drop("filter_error")
		return nil, false
	}
	if size > MaxRecordSize {
		a.logger.Warn("log record too large, dropping", "size", size, "max", MaxRecordSize)
		a.drop("oversize")
		return nil, false
	}

	filtered, _ := a.redactor.Redact(record)
	a.debug("log before send", "record", filtered)
	return filtered, true
}

func (a *Adapter) drop(reason string) {
	a.dropped.Add(1)
	if a.metrics != nil {
		a.metrics.LogsDropped.WithLabelValues(reason).Inc()
	}
}

// SetUserID sets the user id attached to records without one.
func (a *Adapter) SetUserID(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.UserID = id
}

// UpdateConfig applies a partial configuration update.
func (a *Adapter) UpdateConfig(p ConfigPatch) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg = a.cfg.apply(p)
	a.debugOn.Store(a.cfg.Debug)
}

// Config returns a copy of the current configuration.
func (a *Adapter) Config() Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	cfg := a.cfg
	cfg.InternalDomains = append([]string(nil), a.cfg.InternalDomains...)
	return cfg
}

// Stats returns the current lifecycle state and counters.
func (a *Adapter) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		Initialized:     a.initialized,
		Destroyed:       a.destroyed,
		PendingLogs:     int(a.inFlight.Load()),
		RetryQueueCount: len(a.retryQueue),
		Sent:            a.sent.Load(),
		Failed:          a.failed.Load(),
		Dropped:         a.dropped.Load(),
		Project:         a.cfg.Project,
		Logstore:        a.cfg.Logstore,
		Enabled:         a.cfg.Enabled,
	}
}

// Destroy closes the transport, which posts any open batch, and clears the
// retry queue. It is idempotent.
// Retry passes scheduled earlier find an empty queue.
func (a *Adapter) Destroy() {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return
	}
	if n := len(a.retryQueue); n > 0 {
		a.debug("destroying adapter with items in retry queue", "count", n)
	}
	transport := a.transport
	a.destroyed = true
	a.initialized = false
	a.transport = nil
	a.retryQueue = nil
	a.mu.Unlock()

	a.setQueueGauge(0)
	if transport != nil {
		if err := transport.Close(); err != nil {
			a.logger.Error("error closing sls transport", "error", err)
		}
	}
	a.background.Wait()
	a.debug("sls adapter destroyed")
}

func (a *Adapter) debug(msg string, args ...any) {
	if a.debugOn.Load() {
		a.logger.Debug(msg, args...)
	}
}
