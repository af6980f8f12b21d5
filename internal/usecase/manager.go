package usecase

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/V4T54L/rumtrack/internal/domain"
)

// Core is the orchestrator as seen by the Manager.
type Core interface {
	Init(ctx context.Context, b Bindings) error
	HandleRouteChange(ctx context.Context, to, from domain.RouteDescriptor)
	TrackEvent(ctx context.Context, data map[string]any)
	SetUser(user domain.UserIdentity)
	Breadcrumbs() []Breadcrumb
	Destroy()
}

// DeliveryStatus describes the delivery backend in Manager.Status.
type DeliveryStatus struct {
	Enabled    bool   `json:"enabled"`
	Configured bool   `json:"configured"`
	Project    string `json:"project"`
	Logstore   string `json:"logstore"`
}

// ManagerConfig holds the settings the enable gate and Status read.
type ManagerConfig struct {
	// RUMEnabled, when non-empty, decides the gate: only "true" enables.
	RUMEnabled  string
	Mode        string
	Environment string
	Debug       bool
	Delivery    DeliveryStatus
}

// ManagerStatus is the snapshot returned by Manager.Status.
type ManagerStatus struct {
	Initialized bool           `json:"isInitialized"`
	Enabled     bool           `json:"isEnabled"`
	Environment string         `json:"environment"`
	Debug       bool           `json:"debug"`
	Delivery    DeliveryStatus `json:"sls"`
}

// ClickCapture is a click resolved by a capture source.
type ClickCapture struct {
	Target ElementSnapshot `json:"target"`
	X      float64         `json:"x"`
	Y      float64         `json:"y"`
	Page   domain.PageInfo `json:"page"`
	At     time.Time       `json:"at"`
}

// Manager is the application-facing entry point. It gates the pipeline on the
// environment, keeps the user identity current and exposes tracking helpers
// that are no-ops while the pipeline is unavailable.
type Manager struct {
	cfg    ManagerConfig
	core   Core
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	enabled     bool
	initialized bool
	bindings    Bindings
	unsubscribe func()
}

// NewManager creates an enabled, uninitialized Manager.
func NewManager(cfg ManagerConfig, core Core, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		core:    core,
		logger:  logger.With("component", "rum_manager"),
		now:     time.Now,
		enabled: true,
	}
}

// Init attaches the pipeline to the host bindings when the gate allows it.
func (m *Manager) Init(ctx context.Context, b Bindings) error {
	if !m.shouldEnable() {
		m.logger.Info("RUM system is disabled", "mode", m.cfg.Mode, "rum_enabled", m.cfg.RUMEnabled)
		return nil
	}

	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		m.debug("RUM system already initialized")
		return nil
	}
	m.mu.Unlock()

	if err := m.core.Init(ctx, b); err != nil {
		m.logger.Error("failed to initialize RUM system", "error", err)
		return err
	}

	var unsubscribe func()
	if b.Store != nil {
		unsubscribe = b.Store.Subscribe(func(mut domain.Mutation) {
			if strings.Contains(mut.Type, "user") {
				m.setUserInfo(b.Store)
			}
		})
	}

	m.mu.Lock()
	m.bindings = b
	m.unsubscribe = unsubscribe
	m.initialized = true
	m.mu.Unlock()

	m.setUserInfo(b.Store)
	m.trackInitialRoute(ctx, b.Router)
	m.debug("RUM system initialized")
	return nil
}

func (m *Manager) shouldEnable() bool {
	m.mu.Lock()
	enabled := m.enabled
	m.mu.Unlock()
	if !enabled {
		return false
	}
	if m.cfg.RUMEnabled != "" {
		return m.cfg.RUMEnabled == "true"
	}
	return m.cfg.Mode != "prod" && m.cfg.Mode != "production"
}

func (m *Manager) setUserInfo(state domain.HostState) {
	if state == nil {
		return
	}
	info := userRecord(state.UserModule())
	id := stringify(info["userId"])
	if id == "" {
		return
	}
	m.core.SetUser(domain.UserIdentity{
		UserID:    id,
		UserName:  stringify(info["userName"]),
		AccountID: stringify(info["accountId"]),
		Email:     stringify(info["email"]),
		Roles:     stringSlice(info["roles"]),
	})
}

func (m *Manager) trackInitialRoute(ctx context.Context, router domain.Router) {
	if router == nil {
		return
	}
	current := router.CurrentRoute()
	m.core.HandleRouteChange(ctx, current, current)
}

func (m *Manager) available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled && m.initialized && m.core != nil
}

// TrackClick reports a click as a user action.
func (m *Manager) TrackClick(ctx context.Context, c ClickCapture) {
	if !m.available() {
		return
	}

	m.mu.Lock()
	router := m.bindings.Router
	m.mu.Unlock()
	var route domain.RouteDescriptor
	if router != nil {
		route = router.CurrentRoute()
	}

	at := c.At
	if at.IsZero() {
		at = m.now()
	}
	m.TrackAction(ctx, "click", map[string]any{
		"type":  string(domain.EventClick),
		"bizId": BizID(c.Target, route, c.Page.Path),
		"x":     c.X,
		"y":     c.Y,
		"target": map[string]any{
			"tagName":     c.Target.TagName,
			"className":   c.Target.ClassName,
			"id":          c.Target.ID,
			"textContent": truncateRunes(c.Target.TextContent, 50),
			"selector":    c.Target.Selector,
		},
		"page": map[string]any{
			"url":   c.Page.URL,
			"title": c.Page.Title,
			"path":  c.Page.Path,
		},
		"timestamp": at.UnixMilli(),
	})
}

// TrackEvent reports a named custom event.
func (m *Manager) TrackEvent(ctx context.Context, name string, data map[string]any) {
	if !m.available() {
		return
	}
	m.core.TrackEvent(ctx, merged(map[string]any{"name": name}, data))
}

// TrackPerformance reports a timing measurement.
func (m *Manager) TrackPerformance(ctx context.Context, data map[string]any) {
	if !m.available() {
		return
	}
	m.core.TrackEvent(ctx, merged(map[string]any{
		"name": "performance",
		"type": string(domain.EventPerformance),
	}, data))
}

// TrackAction reports a user action such as "click".
func (m *Manager) TrackAction(ctx context.Context, action string, data map[string]any) {
	if !m.available() {
		return
	}
	m.core.TrackEvent(ctx, merged(map[string]any{
		"name":   "user_action",
		"action": action,
	}, data))
}

// TrackMetric reports a named business metric.
func (m *Manager) TrackMetric(ctx context.Context, metricName string, value float64, dimensions map[string]any) {
	if !m.available() {
		return
	}
	if dimensions == nil {
		dimensions = map[string]any{}
	}
	m.core.TrackEvent(ctx, map[string]any{
		"name":       "metric",
		"metricName": metricName,
		"value":      value,
		"dimensions": dimensions,
	})
}

func merged(base, extra map[string]any) map[string]any {
	for k, v := range extra {
		base[k] = v
	}
	return base
}

// Breadcrumbs returns the trail, or nothing while unavailable.
func (m *Manager) Breadcrumbs() []Breadcrumb {
	if !m.available() {
		return []Breadcrumb{}
	}
	return m.core.Breadcrumbs()
}

func (m *Manager) Enable() {
	m.mu.Lock()
	m.enabled = true
	m.mu.Unlock()
	m.debug("RUM system enabled")
}

func (m *Manager) Disable() {
	m.mu.Lock()
	m.enabled = false
	m.mu.Unlock()
	m.debug("RUM system disabled")
}

func (m *Manager) Status() ManagerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ManagerStatus{
		Initialized: m.initialized,
		Enabled:     m.enabled,
		Environment: m.cfg.Environment,
		Debug:       m.cfg.Debug,
		Delivery:    m.cfg.Delivery,
	}
}

// Destroy detaches from the host and tears the pipeline down.
func (m *Manager) Destroy() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.bindings = Bindings{}
	m.initialized = false
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	m.core.Destroy()
	m.debug("RUM system destroyed")
}

func (m *Manager) debug(msg string, args ...any) {
	if m.cfg.Debug {
		m.logger.Debug(msg, args...)
	}
}
