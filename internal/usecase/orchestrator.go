package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/V4T54L/rumtrack/internal/adapter/metrics"
	"github.com/V4T54L/rumtrack/internal/domain"
)

// ignoredMutations are high-frequency mutations that would flood the trail.
var ignoredMutations = map[string]struct{}{
	"SET_LOADING":           {},
	"SET_CURRENT_PAGE":      {},
	"UPDATE_MOUSE_POSITION": {},
}

// Deliverer accepts log payloads for delivery. *sls.Adapter implements it.
type Deliverer interface {
	Init(ctx context.Context) error
	SendLog(ctx context.Context, payload domain.LogPayload)
	SetUserID(id string)
	Destroy()
}

// Bindings are the host accessors the orchestrator attaches to. Either may be
// nil.
type Bindings struct {
	Store            domain.HostStore
	Router           domain.Router
	FrameworkVersion string
}

// OrchestratorConfig holds the settings the orchestrator reads at Init.
type OrchestratorConfig struct {
	DSN            string
	Debug          bool
	MaxBreadcrumbs int
}

// Orchestrator ties capture to delivery: it samples events, transforms them
// into log payloads and forwards them without blocking the caller.
type Orchestrator struct {
	cfg         OrchestratorConfig
	sampler     *Sampler
	transformer *Transformer
	sessions    *Sessions
	deliverer   Deliverer
	env         domain.Environment
	metrics     *metrics.RUMMetrics
	logger      *slog.Logger
	now         func() time.Time

	mu          sync.Mutex
	initialized bool
	active      Deliverer
	bindings    Bindings
	detach      []func()

	crumbs *Breadcrumbs
	wg     sync.WaitGroup
}

// NewOrchestrator creates an Orchestrator. deliverer may be nil, in which case
// reports are only logged. env is used when a call carries no scope.
func NewOrchestrator(cfg OrchestratorConfig, sampler *Sampler, transformer *Transformer, sessions *Sessions,
	deliverer Deliverer, env domain.Environment, m *metrics.RUMMetrics, logger *slog.Logger) *Orchestrator {
	if env == nil {
		env = domain.NoopEnvironment{}
	}
	return &Orchestrator{
		cfg:         cfg,
		sampler:     sampler,
		transformer: transformer,
		sessions:    sessions,
		deliverer:   deliverer,
		env:         env,
		metrics:     m,
		logger:      logger.With("component", "orchestrator"),
		now:         time.Now,
		crumbs:      NewBreadcrumbs(cfg.MaxBreadcrumbs),
	}
}

// Init starts the deliverer and attaches to the host bindings. A deliverer
// that fails to start is logged and the orchestrator continues in simulation
// mode.
func (o *Orchestrator) Init(ctx context.Context, b Bindings) error {
	o.mu.Lock()
	if o.initialized {
		o.mu.Unlock()
		o.logger.Warn("orchestrator already initialized")
		return nil
	}
	o.mu.Unlock()

	if o.cfg.DSN == "" {
		o.logger.Warn("DSN not configured, RUM pipeline will run in simulation mode")
	}

	active := o.deliverer
	var initErr error
	if active != nil {
		if initErr = active.Init(ctx); initErr != nil {
			o.logger.Error("failed to initialize delivery adapter", "error", initErr)
			active = nil
		}
	}

	var detach []func()
	if b.Store != nil {
		detach = append(detach, b.Store.Subscribe(o.onMutation))
	} else {
		o.logger.Warn("host store not provided, some features may be limited")
	}
	if b.Router != nil {
		detach = append(detach, b.Router.AfterEach(func(to, from domain.RouteDescriptor) {
			o.HandleRouteChange(context.Background(), to, from)
		}))
	} else {
		o.logger.Warn("router not provided, route tracking disabled")
	}

	o.mu.Lock()
	o.bindings = b
	o.active = active
	o.detach = detach
	o.initialized = true
	o.mu.Unlock()

	if initErr != nil {
		o.HandleError(ctx, initErr)
	}
	o.debug("orchestrator initialized", "simulation", active == nil)
	return nil
}

func (o *Orchestrator) onMutation(m domain.Mutation) {
	if _, ignored := ignoredMutations[m.Type]; ignored {
		return
	}
	o.crumbs.Add(Breadcrumb{
		Type:     "state",
		Message:  "Mutation: " + m.Type,
		Category: "state",
		Data: map[string]any{
			"mutation": m.Type,
			"payload":  m.Payload,
		},
		Timestamp: m.At,
	})
}

// HandleDataReport is the capture hook. It forwards sampled events and always
// returns false so the capture source does not transmit them itself.
func (o *Orchestrator) HandleDataReport(ctx context.Context, ev domain.Event) bool {
	if ev == nil {
		return false
	}
	o.debug("data report", "type", ev.Type())
	o.report(ctx, ev)
	return false
}

// HandleRouteChange records a navigation from from to to.
func (o *Orchestrator) HandleRouteChange(ctx context.Context, to, from domain.RouteDescriptor) {
	ev := domain.RouteEvent{Base: domain.Base{Timestamp: o.now()}, From: from, To: to}
	o.crumbs.Add(Breadcrumb{
		Type:      "route",
		Message:   fmt.Sprintf("Route: %s -> %s", from.Path, to.Path),
		Category:  "navigation",
		Data:      ev.Fields(),
		Timestamp: ev.Timestamp,
	})
	o.report(ctx, ev)
}

// HandleError reports err as an error event.
func (o *Orchestrator) HandleError(ctx context.Context, err error) {
	ev := domain.ErrorEvent{
		Base:    domain.Base{Timestamp: o.now()},
		Message: "Unknown error",
	}
	if err != nil {
		ev.Message = err.Error()
		ev.Name = errorName(err)
	}
	o.crumbs.Add(Breadcrumb{
		Type:      "error",
		Message:   ev.Message,
		Category:  "error",
		Data:      ev.Fields(),
		Timestamp: ev.Timestamp,
	})
	o.report(ctx, ev)
}

// errorName names the innermost error type, without pointer decoration.
func errorName(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}

// TrackEvent reports a manually tracked event. data may set "type" to report
// as another event type; it defaults to custom.
func (o *Orchestrator) TrackEvent(ctx context.Context, data map[string]any) {
	raw := make(map[string]any, len(data)+2)
	raw["type"] = string(domain.EventCustom)
	raw["timestamp"] = o.now().UnixMilli()
	for k, v := range data {
		raw[k] = v
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		o.logger.Error("failed to encode tracked event", "error", err)
		return
	}
	ev, err := domain.DecodeEvent(encoded)
	if err != nil {
		o.logger.Error("failed to decode tracked event", "error", err)
		o.countEvent(domain.EventUnknown, "invalid")
		return
	}
	o.Track(ctx, ev)
}

// Track reports an already typed event as a manually tracked one.
func (o *Orchestrator) Track(ctx context.Context, ev domain.Event) {
	name, _ := ev.Fields()["name"].(string)
	if name == "" {
		name = "unknown"
	}
	o.crumbs.Add(Breadcrumb{
		Type:      "custom",
		Message:   "Custom Event: " + name,
		Category:  "custom",
		Data:      ev.Fields(),
		Timestamp: o.now(),
	})
	o.report(ctx, ev)
}

// SetUser pushes the user id to the deliverer for records that carry none.
func (o *Orchestrator) SetUser(user domain.UserIdentity) {
	active := o.activeDeliverer()
	if active != nil && user.UserID != "" {
		active.SetUserID(user.UserID)
	}
}

// Breadcrumbs returns the trail oldest first.
func (o *Orchestrator) Breadcrumbs() []Breadcrumb {
	return o.crumbs.All()
}

// Wait blocks until every forwarded payload has been handed to the deliverer.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Destroy detaches from the host, drains in-flight forwards and destroys the
// deliverer.
func (o *Orchestrator) Destroy() {
	o.mu.Lock()
	detach := o.detach
	active := o.active
	o.detach = nil
	o.active = nil
	o.bindings = Bindings{}
	o.initialized = false
	o.mu.Unlock()

	for _, fn := range detach {
		fn()
	}
	o.wg.Wait()
	if active != nil {
		active.Destroy()
	}
	o.crumbs.Clear()
	o.debug("orchestrator destroyed")
}

func (o *Orchestrator) report(ctx context.Context, ev domain.Event) {
	if !o.sampler.ShouldReport(ev) {
		o.countEvent(ev.Type(), "sampled_out")
		o.debug("event filtered by sampling rate", "type", ev.Type())
		return
	}
	o.countEvent(ev.Type(), "reported")

	envelope := o.transformer.Transform(ev, o.transformContext(ctx))
	payload := ToLogPayload(ev, envelope)

	active := o.activeDeliverer()
	if active == nil {
		o.debug("rum data (simulation mode)", "payload", payload)
		return
	}

	fwdCtx := context.WithoutCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		active.SendLog(fwdCtx, payload)
	}()
}

func (o *Orchestrator) transformContext(ctx context.Context) TransformContext {
	o.mu.Lock()
	b := o.bindings
	o.mu.Unlock()

	tc := TransformContext{
		Router:           b.Router,
		Env:              o.env,
		FrameworkVersion: b.FrameworkVersion,
	}
	if b.Store != nil {
		tc.State = b.Store
	}
	if scope, ok := domain.ScopeFrom(ctx); ok {
		if scope.Env != nil {
			tc.Env = scope.Env
		}
		if scope.State != nil {
			tc.State = scope.State
		}
		tc.SessionID = scope.Session
	}
	if tc.SessionID == "" {
		tc.SessionID = o.sessions.ID(ctx)
	}
	return tc
}

func (o *Orchestrator) activeDeliverer() Deliverer {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

func (o *Orchestrator) countEvent(t domain.EventType, decision string) {
	if o.metrics != nil {
		o.metrics.EventsTotal.WithLabelValues(string(t), decision).Inc()
	}
}

func (o *Orchestrator) debug(msg string, args ...any) {
	if o.cfg.Debug {
		o.logger.Debug(msg, args...)
	}
}
