package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/V4T54L/rumtrack/internal/adapter/sls"
	"github.com/V4T54L/rumtrack/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type capture struct {
	mu       sync.Mutex
	requests []trackRequest
	headers  []http.Header
}

func newServer(t *testing.T, status int, c *capture) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c != nil {
			var req trackRequest
			body, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(body, &req); err != nil {
				t.Errorf("server got invalid JSON: %v", err)
			}
			c.mu.Lock()
			c.requests = append(c.requests, req)
			c.headers = append(c.headers, r.Header.Clone())
			c.mu.Unlock()
			if got := r.Header.Get("x-log-bodyrawsize"); got != strconv.Itoa(len(body)) {
				t.Errorf("x-log-bodyrawsize = %s, want %d", got, len(body))
			}
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, endpoint string, opts sls.TransportOptions) *Client {
	t.Helper()
	c, err := New(FactoryConfig{Endpoint: endpoint, Logger: testLogger(), Tags: map[string]string{"service": "rum"}}, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestSendEncodesRecord(t *testing.T) {
	c := &capture{}
	srv := newServer(t, http.StatusOK, c)
	client := newClient(t, srv.URL, sls.TransportOptions{Topic: "rum-monitor", Source: "web"})

	err := client.Send(context.Background(), domain.LogRecord{
		"__time__":         int64(1714552200),
		"event_type":       "click",
		"is_internal_user": true,
		"click_x":          12.5,
		"click_target":     map[string]any{"tagName": "BUTTON"},
		"page_title":       nil,
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if len(c.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(c.requests))
	}
	req := c.requests[0]
	if req.Topic != "rum-monitor" || req.Source != "web" {
		t.Errorf("topic/source = %q/%q", req.Topic, req.Source)
	}
	if req.Tags["service"] != "rum" {
		t.Errorf("tags = %v", req.Tags)
	}
	log := req.Logs[0]
	want := map[string]string{
		"__time__":         "1714552200",
		"event_type":       "click",
		"is_internal_user": "true",
		"click_x":          "12.5",
		"click_target":     `{"tagName":"BUTTON"}`,
	}
	for k, v := range want {
		if log[k] != v {
			t.Errorf("%s = %q, want %q", k, log[k], v)
		}
	}
	if _, ok := log["page_title"]; ok {
		t.Error("nil values should be omitted")
	}
	if got := c.headers[0].Get("x-log-apiversion"); got != APIVersion {
		t.Errorf("x-log-apiversion = %q", got)
	}
}

func TestSendErrorMapping(t *testing.T) {
	tests := []struct {
		status  int
		wantErr error
	}{
		{http.StatusServiceUnavailable, ErrUnavailable},
		{http.StatusBadGateway, ErrUnavailable},
		{http.StatusGatewayTimeout, ErrUnavailable},
		{http.StatusTooManyRequests, ErrRateLimited},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := newServer(t, tt.status, nil)
			client := newClient(t, srv.URL, sls.TransportOptions{})

			err := client.Send(context.Background(), domain.LogRecord{"event_type": "custom"})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Send() error = %v, want %v", err, tt.wantErr)
			}
			if !sls.ShouldRetry(err) {
				t.Errorf("error %q should be retryable", err)
			}
		})
	}

	t.Run("client error is not retryable", func(t *testing.T) {
		srv := newServer(t, http.StatusBadRequest, nil)
		client := newClient(t, srv.URL, sls.TransportOptions{})
		err := client.Send(context.Background(), domain.LogRecord{"event_type": "custom"})
		if err == nil || sls.ShouldRetry(err) {
			t.Errorf("Send() error = %v, want a non-retryable error", err)
		}
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := newServer(t, http.StatusOK, nil)
		url := srv.URL
		srv.Close()
		client := newClient(t, url, sls.TransportOptions{})
		err := client.Send(context.Background(), domain.LogRecord{"event_type": "custom"})
		if !errors.Is(err, ErrConnection) {
			t.Errorf("Send() error = %v, want ErrConnection", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		block := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-block
		}))
		defer srv.Close()
		defer close(block)

		c, err := New(FactoryConfig{
			Endpoint:   srv.URL,
			HTTPClient: &http.Client{Timeout: 20 * time.Millisecond},
			Logger:     testLogger(),
		}, sls.TransportOptions{})
		if err != nil {
			t.Fatal(err)
		}
		err = c.Send(context.Background(), domain.LogRecord{"event_type": "custom"})
		if !errors.Is(err, ErrTimeout) {
			t.Errorf("Send() error = %v, want ErrTimeout", err)
		}
	})
}

func TestBeforeSendCancelsWithoutIO(t *testing.T) {
	c := &capture{}
	srv := newServer(t, http.StatusOK, c)
	client := newClient(t, srv.URL, sls.TransportOptions{
		BeforeSend: func(domain.LogRecord) (domain.LogRecord, bool) { return nil, false },
	})

	if err := client.Send(context.Background(), domain.LogRecord{"event_type": "custom"}); err != nil {
		t.Fatalf("cancelled send should not fail: %v", err)
	}
	if len(c.requests) != 0 {
		t.Error("cancelled record reached the server")
	}
}

func TestBeforeSendFiltersRecord(t *testing.T) {
	c := &capture{}
	srv := newServer(t, http.StatusOK, c)
	client := newClient(t, srv.URL, sls.TransportOptions{
		BeforeSend: func(r domain.LogRecord) (domain.LogRecord, bool) {
			out := r.Clone()
			out["token"] = "[FILTERED]"
			return out, true
		},
	})

	if err := client.Send(context.Background(), domain.LogRecord{"token": "secret"}); err != nil {
		t.Fatal(err)
	}
	if got := c.requests[0].Logs[0]["token"]; got != "[FILTERED]" {
		t.Errorf("token = %q", got)
	}
}

func (c *capture) snapshot() []trackRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]trackRequest(nil), c.requests...)
}

func TestBatchFlushesOnCount(t *testing.T) {
	c := &capture{}
	srv := newServer(t, http.StatusOK, c)
	client := newClient(t, srv.URL, sls.TransportOptions{Time: 60, Count: 3})

	var results []<-chan error
	for i := 0; i < 3; i++ {
		results = append(results, client.Queue(domain.LogRecord{"n": i}))
	}
	for i, done := range results {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("record %d error = %v", i, err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("record %d was not posted when the batch filled", i)
		}
	}

	reqs := c.snapshot()
	if len(reqs) != 1 || len(reqs[0].Logs) != 3 {
		t.Fatalf("requests = %+v, want one batch of 3", reqs)
	}
	for i, log := range reqs[0].Logs {
		if log["n"] != strconv.Itoa(i) {
			t.Errorf("log %d = %v, want records in queue order", i, log)
		}
	}
}

func TestBatchFlushesOnTimer(t *testing.T) {
	c := &capture{}
	srv := newServer(t, http.StatusOK, c)
	client := newClient(t, srv.URL, sls.TransportOptions{Time: 1, Count: 10})

	start := time.Now()
	if err := client.Send(context.Background(), domain.LogRecord{"n": 1}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("partial batch posted after %s, want the 1s window", elapsed)
	}
	if reqs := c.snapshot(); len(reqs) != 1 || len(reqs[0].Logs) != 1 {
		t.Errorf("requests = %+v", reqs)
	}
}

func TestBurstIsBatchedNotRejected(t *testing.T) {
	c := &capture{}
	srv := newServer(t, http.StatusOK, c)
	client := newClient(t, srv.URL, sls.TransportOptions{Time: 10, Count: 10})

	var wg sync.WaitGroup
	errs := make(chan error, 30)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs <- client.Send(context.Background(), domain.LogRecord{"n": n})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("burst send error = %v", err)
		}
	}

	reqs := c.snapshot()
	total := 0
	for _, r := range reqs {
		total += len(r.Logs)
	}
	if total != 30 || len(reqs) != 3 {
		t.Errorf("got %d logs in %d requests, want 30 in 3", total, len(reqs))
	}
}

func TestBatchFailureReachesEveryRecord(t *testing.T) {
	srv := newServer(t, http.StatusServiceUnavailable, nil)
	client := newClient(t, srv.URL, sls.TransportOptions{Time: 60, Count: 2})

	first := client.Queue(domain.LogRecord{"n": 1})
	second := client.Queue(domain.LogRecord{"n": 2})
	for _, done := range []<-chan error{first, second} {
		if err := <-done; !errors.Is(err, ErrUnavailable) || !sls.ShouldRetry(err) {
			t.Errorf("error = %v, want retryable ErrUnavailable", err)
		}
	}
}

func TestAdapterBurstOverTracker(t *testing.T) {
	c := &capture{}
	srv := newServer(t, http.StatusOK, c)
	adapter := sls.New(sls.Config{
		Host:     "log.example.com",
		Project:  "p",
		Logstore: "l",
		Time:     1,
		Count:    10,
		Enabled:  true,
	}, NewFactory(FactoryConfig{Endpoint: srv.URL, Logger: testLogger()}), testLogger())

	if err := adapter.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			adapter.SendLog(context.Background(), domain.LogPayload{"type": "custom", "n": n})
		}(i)
	}
	wg.Wait()
	adapter.Destroy()

	st := adapter.Stats()
	if st.Sent != 31 || st.Failed != 0 || st.Dropped != 0 {
		t.Errorf("stats = %+v, want 31 sent and nothing failed", st)
	}
	total := 0
	for _, r := range c.snapshot() {
		total += len(r.Logs)
	}
	if total != 31 {
		t.Errorf("backend got %d logs, want 31", total)
	}
}

func TestCloseFlushesOpenBatch(t *testing.T) {
	c := &capture{}
	srv := newServer(t, http.StatusOK, c)
	client := newClient(t, srv.URL, sls.TransportOptions{Time: 60, Count: 10})

	done := client.Queue(domain.LogRecord{"n": 1})
	if err := client.Close(); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Errorf("queued record error = %v", err)
	}
	if reqs := c.snapshot(); len(reqs) != 1 {
		t.Errorf("requests = %d, want the open batch posted on Close", len(reqs))
	}
}

func TestCloseAndEndpoint(t *testing.T) {
	if _, err := New(FactoryConfig{}, sls.TransportOptions{Project: "p"}); err == nil {
		t.Error("expected error without host and logstore")
	}

	c, err := New(FactoryConfig{}, sls.TransportOptions{Host: "cn-hangzhou.log.aliyuncs.com", Project: "p", Logstore: "l"})
	if err != nil {
		t.Fatal(err)
	}
	if c.endpoint != "https://p.cn-hangzhou.log.aliyuncs.com/logstores/l/track" {
		t.Errorf("endpoint = %s", c.endpoint)
	}
	_ = c.Close()
	_ = c.Close()
	if err := c.Send(context.Background(), domain.LogRecord{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after Close error = %v, want ErrClosed", err)
	}
}
