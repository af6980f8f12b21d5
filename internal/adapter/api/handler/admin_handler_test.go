package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/V4T54L/rumtrack/internal/adapter/sls"
	"github.com/V4T54L/rumtrack/internal/domain"
	"github.com/V4T54L/rumtrack/internal/usecase"
)

// MockDeliveryAdmin is a mock implementation of DeliveryAdmin.
type MockDeliveryAdmin struct {
	stats   sls.Stats
	cfg     sls.Config
	queue   []sls.RetryItem
	patches []sls.ConfigPatch
}

func (m *MockDeliveryAdmin) Stats() sls.Stats            { return m.stats }
func (m *MockDeliveryAdmin) Config() sls.Config          { return m.cfg }
func (m *MockDeliveryAdmin) RetryQueue() []sls.RetryItem { return m.queue }
func (m *MockDeliveryAdmin) UpdateConfig(p sls.ConfigPatch) {
	m.patches = append(m.patches, p)
	if p.RetryCount != nil {
		m.cfg.RetryCount = *p.RetryCount
	}
	if p.RetryInterval != nil {
		m.cfg.RetryInterval = *p.RetryInterval
	}
}

// MockPipeline is a mock implementation of PipelineStatus.
type MockPipeline struct {
	status usecase.ManagerStatus
	crumbs []usecase.Breadcrumb
}

func (m *MockPipeline) Status() usecase.ManagerStatus     { return m.status }
func (m *MockPipeline) Breadcrumbs() []usecase.Breadcrumb { return m.crumbs }

func newTestAdmin() (*AdminHandler, *MockDeliveryAdmin) {
	delivery := &MockDeliveryAdmin{
		stats: sls.Stats{Initialized: true, RetryQueueCount: 1, Sent: 10, Project: "proj"},
		cfg:   sls.Config{Project: "proj", Logstore: "rum", RetryCount: 3, RetryInterval: 2 * time.Second},
		queue: []sls.RetryItem{{
			ID:         "item-1",
			Payload:    domain.LogPayload{"eventType": "click"},
			Err:        errors.New("Network timeout"),
			RetryCount: 1,
		}},
	}
	pipeline := &MockPipeline{
		status: usecase.ManagerStatus{Initialized: true, Enabled: true, Environment: "staging"},
		crumbs: []usecase.Breadcrumb{{Type: "route", Message: "Route: / -> /orders"}},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAdminHandler(delivery, pipeline, logger), delivery
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestAdminHandler_Read(t *testing.T) {
	h, _ := newTestAdmin()

	t.Run("Health", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.HealthCheck(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rr.Code != http.StatusOK || decodeBody(t, rr)["status"] != "ok" {
			t.Errorf("got %d %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("Stats", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.GetStats(rr, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
		body := decodeBody(t, rr)
		delivery, _ := body["delivery"].(map[string]any)
		pipeline, _ := body["pipeline"].(map[string]any)
		if delivery["retryQueueCount"] != 1.0 || delivery["sent"] != 10.0 {
			t.Errorf("delivery = %v", delivery)
		}
		if pipeline["environment"] != "staging" || pipeline["isInitialized"] != true {
			t.Errorf("pipeline = %v", pipeline)
		}
	})

	t.Run("Config reports milliseconds", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.GetConfig(rr, httptest.NewRequest(http.MethodGet, "/admin/config", nil))
		body := decodeBody(t, rr)
		if body["retryIntervalMs"] != 2000.0 || body["project"] != "proj" {
			t.Errorf("config = %v", body)
		}
		if _, ok := body["retryInterval"]; ok {
			t.Error("raw duration should not be exposed")
		}
	})

	t.Run("Breadcrumbs", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.GetBreadcrumbs(rr, httptest.NewRequest(http.MethodGet, "/admin/breadcrumbs", nil))
		if !strings.Contains(rr.Body.String(), "Route: / -\\u003e /orders") {
			t.Errorf("breadcrumbs = %s", rr.Body.String())
		}
	})

	t.Run("Retry queue", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.GetRetryQueue(rr, httptest.NewRequest(http.MethodGet, "/admin/retry-queue", nil))
		var items []map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &items); err != nil {
			t.Fatal(err)
		}
		if len(items) != 1 || items[0]["id"] != "item-1" || items[0]["error"] != "Network timeout" || items[0]["eventType"] != "click" {
			t.Errorf("items = %v", items)
		}
	})
}

func TestAdminHandler_PatchConfig(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectPatch    bool
	}{
		{"Valid patch", `{"retryCount": 5, "retryIntervalMs": 500, "debug": true}`, http.StatusOK, true},
		{"Unknown field", `{"retries": 5}`, http.StatusBadRequest, false},
		{"Negative retry count", `{"retryCount": -1}`, http.StatusBadRequest, false},
		{"Zero interval", `{"retryIntervalMs": 0}`, http.StatusBadRequest, false},
		{"Bad JSON", `{`, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, delivery := newTestAdmin()
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPatch, "/admin/config", bytes.NewBufferString(tt.body))
			h.PatchConfig(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.expectedStatus, rr.Body.String())
			}
			if got := len(delivery.patches) == 1; got != tt.expectPatch {
				t.Fatalf("patch applied = %v, want %v", got, tt.expectPatch)
			}
			if !tt.expectPatch {
				return
			}
			p := delivery.patches[0]
			if *p.RetryCount != 5 || *p.RetryInterval != 500*time.Millisecond || !*p.Debug || p.Host != nil {
				t.Errorf("patch = %+v", p)
			}
			if body := decodeBody(t, rr); body["retryIntervalMs"] != 500.0 {
				t.Errorf("response = %v", body)
			}
		})
	}
}

func TestSSEBroker_Broadcasts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	broker := newSSEBroker(ctx, logger, func() (int, uint64, uint64) { return 3, 7, 1 }, 10*time.Millisecond)

	server := httptest.NewServer(broker)
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	broker.ReportEvents(5)

	buf := make([]byte, 512)
	deadline := time.Now().Add(2 * time.Second)
	var got string
	for time.Now().Before(deadline) && !strings.Contains(got, "\n\n") {
		n, err := resp.Body.Read(buf)
		got += string(buf[:n])
		if err != nil {
			break
		}
	}
	if !strings.HasPrefix(got, "data: ") || !strings.Contains(got, `"retryQueue":3`) || !strings.Contains(got, `"sent":7`) {
		t.Errorf("unexpected stream data %q", got)
	}
}
