package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/V4T54L/rumtrack/internal/adapter/sls"
	"github.com/V4T54L/rumtrack/internal/domain"
)

// APIVersion is the web-tracking protocol version sent with every request.
const APIVersion = "0.6.0"

// The messages of these errors are matched by the adapter's retry policy.
var (
	ErrTimeout     = errors.New("Network timeout")
	ErrConnection  = errors.New("Connection failed")
	ErrUnavailable = errors.New("Service unavailable")
	ErrRateLimited = errors.New("Rate limit exceeded")
	ErrClosed      = errors.New("tracker closed")
)

// FactoryConfig holds what every client built by a factory shares.
type FactoryConfig struct {
	HTTPClient *http.Client
	// Endpoint overrides the URL derived from host, project and logstore.
	Endpoint string
	Tags     map[string]string
	Logger   *slog.Logger
}

// NewFactory returns a sls.TransportFactory producing web-tracking clients.
func NewFactory(cfg FactoryConfig) sls.TransportFactory {
	return func(opts sls.TransportOptions) (domain.Transport, error) {
		return New(cfg, opts)
	}
}

// Client posts log records to the SLS web-tracking endpoint. Records are
// buffered into batches; a batch is posted once it holds opts.Count records
// or opts.Time seconds after its first record arrived, whichever comes first.
type Client struct {
	http       *http.Client
	endpoint   string
	topic      string
	source     string
	tags       map[string]string
	beforeSend domain.BeforeSendFunc
	maxCount   int
	maxWait    time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	batch   []pending
	gen     uint64
	timer   *time.Timer
	closed  bool
	flushes sync.WaitGroup
}

type pending struct {
	log  map[string]string
	done chan error
}

// New creates a Client. Without both thresholds every record is posted on
// its own.
func New(cfg FactoryConfig, opts sls.TransportOptions) (*Client, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		if opts.Host == "" || opts.Project == "" || opts.Logstore == "" {
			return nil, fmt.Errorf("tracker: host, project and logstore are required")
		}
		endpoint = fmt.Sprintf("https://%s.%s/logstores/%s/track", opts.Project, opts.Host, opts.Logstore)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxCount, maxWait := 1, time.Duration(0)
	if opts.Count > 1 && opts.Time > 0 {
		maxCount = opts.Count
		maxWait = time.Duration(opts.Time) * time.Second
	}

	return &Client{
		http:       httpClient,
		endpoint:   endpoint,
		topic:      opts.Topic,
		source:     opts.Source,
		tags:       cfg.Tags,
		beforeSend: opts.BeforeSend,
		maxCount:   maxCount,
		maxWait:    maxWait,
		logger:     logger.With("component", "sls_tracker"),
	}, nil
}

type trackRequest struct {
	Topic  string              `json:"__topic__"`
	Source string              `json:"__source__"`
	Logs   []map[string]string `json:"__logs__"`
	Tags   map[string]string   `json:"__tags__,omitempty"`
}

// Send implements domain.Transport. It waits until the batch holding record
// has been posted and returns that batch's result. A record rejected by the
// before-send hook is dropped without error.
func (c *Client) Send(ctx context.Context, record domain.LogRecord) error {
	done := c.Queue(record)
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Queue implements domain.BatchTransport. Records join the open batch in call
// order.
func (c *Client) Queue(record domain.LogRecord) <-chan error {
	done := make(chan error, 1)
	if c.beforeSend != nil {
		filtered, ok := c.beforeSend(record)
		if !ok {
			done <- nil
			return done
		}
		record = filtered
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		done <- ErrClosed
		return done
	}
	c.batch = append(c.batch, pending{log: Stringify(record), done: done})
	switch {
	case len(c.batch) >= c.maxCount:
		c.flushLocked()
	case len(c.batch) == 1:
		gen := c.gen
		c.timer = time.AfterFunc(c.maxWait, func() { c.flushTimed(gen) })
	}
	return done
}

// flushTimed posts the batch the timer was started for, unless it already
// went out on count.
func (c *Client) flushTimed(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.gen && len(c.batch) > 0 {
		c.flushLocked()
	}
}

func (c *Client) flushLocked() {
	batch := c.batch
	c.batch = nil
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	c.flushes.Add(1)
	go func() {
		defer c.flushes.Done()
		logs := make([]map[string]string, len(batch))
		for i, p := range batch {
			logs[i] = p.log
		}
		err := c.post(logs)
		if err != nil {
			c.logger.Warn("batch post failed", "records", len(logs), "error", err)
		}
		for _, p := range batch {
			p.done <- err
		}
	}()
}

func (c *Client) post(logs []map[string]string) error {
	body, err := json.Marshal(trackRequest{
		Topic:  c.topic,
		Source: c.source,
		Logs:   logs,
		Tags:   c.tags,
	})
	if err != nil {
		return fmt.Errorf("encode track request: %w", err)
	}

	// The batch outlives any one caller, so it is bounded by the HTTP client's
	// timeout only.
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build track request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-log-apiversion", APIVersion)
	req.Header.Set("x-log-bodyrawsize", strconv.Itoa(len(body)))

	resp, err := c.http.Do(req)
	if err != nil {
		return classify(err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w (HTTP %d)", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		return fmt.Errorf("%w (HTTP %d)", ErrUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("sls track rejected: HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
}

// Close posts the open batch, waits for every batch in flight and releases
// idle connections. Later sends fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if len(c.batch) > 0 {
		c.flushLocked()
	}
	c.mu.Unlock()

	c.flushes.Wait()
	c.http.CloseIdleConnections()
	return nil
}

func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}

// Stringify renders every record value as a string, as the web-tracking
// protocol requires. Nil values are omitted.
func Stringify(record domain.LogRecord) map[string]string {
	out := make(map[string]string, len(record))
	for k, v := range record {
		switch t := v.(type) {
		case nil:
			continue
		case string:
			out[k] = t
		case bool:
			out[k] = strconv.FormatBool(t)
		case int:
			out[k] = strconv.Itoa(t)
		case int64:
			out[k] = strconv.FormatInt(t, 10)
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			data, err := json.Marshal(t)
			if err != nil {
				out[k] = fmt.Sprint(t)
				continue
			}
			out[k] = string(data)
		}
	}
	return out
}
