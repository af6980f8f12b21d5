package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/V4T54L/rumtrack/internal/adapter/host"
	"github.com/V4T54L/rumtrack/internal/domain"
)

type routeChange struct{ to, from domain.RouteDescriptor }

// fakeCore records the calls a Manager makes.
type fakeCore struct {
	mu      sync.Mutex
	initErr error
	inits   int
	routes  []routeChange
	events  []map[string]any
	users   []domain.UserIdentity
	crumbs  []Breadcrumb
	destroy int
}

func (f *fakeCore) Init(ctx context.Context, b Bindings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	return f.initErr
}

func (f *fakeCore) HandleRouteChange(ctx context.Context, to, from domain.RouteDescriptor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = append(f.routes, routeChange{to, from})
}

func (f *fakeCore) TrackEvent(ctx context.Context, data map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, data)
}

func (f *fakeCore) SetUser(user domain.UserIdentity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, user)
}

func (f *fakeCore) Breadcrumbs() []Breadcrumb { return f.crumbs }

func (f *fakeCore) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroy++
}

func TestManager_EnableGate(t *testing.T) {
	testCases := []struct {
		name       string
		rumEnabled string
		mode       string
		want       bool
	}{
		{"explicit true", "true", "production", true},
		{"explicit false", "false", "development", false},
		{"explicit other value", "1", "development", false},
		{"production mode", "", "production", false},
		{"prod mode", "", "prod", false},
		{"development mode", "", "development", true},
		{"no settings", "", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			core := &fakeCore{}
			m := NewManager(ManagerConfig{RUMEnabled: tc.rumEnabled, Mode: tc.mode}, core, discardLogger())
			if err := m.Init(context.Background(), Bindings{}); err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			if got := core.inits == 1; got != tc.want {
				t.Errorf("initialized = %v, want %v", got, tc.want)
			}
			if m.Status().Initialized != tc.want {
				t.Errorf("Status().Initialized = %v", m.Status().Initialized)
			}
		})
	}
}

func TestManager_Init(t *testing.T) {
	ctx := context.Background()
	core := &fakeCore{}
	m := NewManager(ManagerConfig{}, core, discardLogger())

	store := host.NewStore(map[string]any{"user": map[string]any{
		"userInfo": map[string]any{"userId": "u1", "userName": "Ann", "roles": []any{"admin"}},
	}})
	router := host.NewRouter(domain.RouteDescriptor{Path: "/orders", Name: "orders"})

	if err := m.Init(ctx, Bindings{Store: store, Router: router}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	_ = m.Init(ctx, Bindings{Store: store, Router: router})
	if core.inits != 1 {
		t.Errorf("core initialized %d times", core.inits)
	}

	if len(core.users) != 1 || core.users[0].UserID != "u1" || core.users[0].Roles[0] != "admin" {
		t.Errorf("users = %+v", core.users)
	}
	if len(core.routes) != 1 || core.routes[0].to.Name != "orders" || core.routes[0].from.Path != "/orders" {
		t.Errorf("initial route = %+v", core.routes)
	}

	store.Commit("user/SET_USER", nil, func(state map[string]any) {
		state["user"] = map[string]any{"userId": "u2"}
	})
	store.Commit("orders/ADD", nil, nil)
	if len(core.users) != 2 || core.users[1].UserID != "u2" {
		t.Errorf("users after mutation = %+v", core.users)
	}

	store.Commit("user/LOGOUT", nil, func(state map[string]any) {
		state["user"] = map[string]any{}
	})
	if len(core.users) != 2 {
		t.Error("an identity without userId should not be pushed")
	}
}

func TestManager_InitFailure(t *testing.T) {
	core := &fakeCore{initErr: errors.New("boom")}
	m := NewManager(ManagerConfig{}, core, discardLogger())

	if err := m.Init(context.Background(), Bindings{}); err == nil {
		t.Fatal("expected error")
	}
	m.TrackEvent(context.Background(), "ignored", nil)
	if len(core.events) != 0 || m.Status().Initialized {
		t.Error("manager should stay unavailable after a failed init")
	}
}

func TestManager_Tracking(t *testing.T) {
	ctx := context.Background()
	core := &fakeCore{}
	m := NewManager(ManagerConfig{}, core, discardLogger())
	router := host.NewRouter(domain.RouteDescriptor{Name: "orders", Path: "/orders"})
	_ = m.Init(ctx, Bindings{Router: router})

	m.TrackEvent(ctx, "checkout", map[string]any{"amount": 3})
	m.TrackPerformance(ctx, map[string]any{"duration": 120.0})
	m.TrackAction(ctx, "export", map[string]any{"format": "csv"})
	m.TrackMetric(ctx, "cart_size", 4, nil)
	m.TrackClick(ctx, ClickCapture{
		Target: ElementSnapshot{TagName: "BUTTON", ClassName: "btn", TextContent: "Save"},
		X:      5, Y: 6,
		Page: domain.PageInfo{URL: "https://app.example.com/orders", Path: "/orders", Title: "Orders"},
	})

	if len(core.events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(core.events))
	}
	checks := []map[string]any{
		{"name": "checkout", "amount": 3},
		{"name": "performance", "type": "performance", "duration": 120.0},
		{"name": "user_action", "action": "export", "format": "csv"},
		{"name": "metric", "metricName": "cart_size", "value": 4.0},
		{"name": "user_action", "action": "click", "type": "click", "bizId": "orders|button.btn[0]|Save", "x": 5.0},
	}
	for i, want := range checks {
		for k, v := range want {
			if core.events[i][k] != v {
				t.Errorf("event %d field %s = %v, want %v", i, k, core.events[i][k], v)
			}
		}
	}
	if _, ok := core.events[3]["dimensions"].(map[string]any); !ok {
		t.Error("metric dimensions should default to an empty map")
	}
}

func TestManager_DisabledIgnoresTracking(t *testing.T) {
	ctx := context.Background()
	core := &fakeCore{crumbs: []Breadcrumb{{Message: "x"}}}
	m := NewManager(ManagerConfig{}, core, discardLogger())
	_ = m.Init(ctx, Bindings{})

	m.Disable()
	m.TrackEvent(ctx, "a", nil)
	m.TrackMetric(ctx, "b", 1, nil)
	if len(core.events) != 0 {
		t.Errorf("disabled manager tracked %v", core.events)
	}
	if got := m.Breadcrumbs(); len(got) != 0 {
		t.Errorf("Breadcrumbs() = %v", got)
	}
	if m.Status().Enabled {
		t.Error("Status().Enabled should be false")
	}

	m.Enable()
	m.TrackEvent(ctx, "a", nil)
	if len(core.events) != 1 || len(m.Breadcrumbs()) != 1 {
		t.Error("re-enabled manager should track again")
	}
}

func TestManager_Destroy(t *testing.T) {
	ctx := context.Background()
	core := &fakeCore{}
	m := NewManager(ManagerConfig{Environment: "staging", Delivery: DeliveryStatus{Project: "p"}}, core, discardLogger())
	store := host.NewStore(nil)
	_ = m.Init(ctx, Bindings{Store: store})

	status := m.Status()
	if status.Environment != "staging" || status.Delivery.Project != "p" {
		t.Errorf("Status() = %+v", status)
	}

	m.Destroy()
	if core.destroy != 1 || m.Status().Initialized {
		t.Errorf("destroy = %d, status = %+v", core.destroy, m.Status())
	}
	store.Commit("user/SET_USER", nil, func(state map[string]any) {
		state["user"] = map[string]any{"userId": "late"}
	})
	if len(core.users) != 0 {
		t.Error("destroyed manager should not listen to the store")
	}
	m.TrackEvent(ctx, "late", nil)
	if len(core.events) != 0 {
		t.Error("destroyed manager should not track")
	}
}
