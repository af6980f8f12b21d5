package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/V4T54L/rumtrack/internal/adapter/host"
	"github.com/V4T54L/rumtrack/internal/adapter/metrics"
	"github.com/V4T54L/rumtrack/internal/domain"
	"github.com/V4T54L/rumtrack/internal/usecase"
)

// ClientIDHeader identifies the browser tab or device a beacon comes from.
const ClientIDHeader = "X-RUM-Client-ID"

// ClientIDParam carries the client id for navigator.sendBeacon, which cannot
// set headers.
const ClientIDParam = "cid"

// DataReporter receives decoded events. *usecase.Orchestrator implements it.
type DataReporter interface {
	HandleDataReport(ctx context.Context, ev domain.Event) bool
}

// SessionSource hands out session storage private to one client.
type SessionSource interface {
	ForClient(clientID string) domain.SessionStore
}

// PageContext is the page a beacon was sent from.
type PageContext struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Referrer string `json:"referrer"`
}

// Beacon is one captured event together with the host context it was
// captured in.
type Beacon struct {
	Event     json.RawMessage `json:"event"`
	Page      *PageContext    `json:"page,omitempty"`
	State     map[string]any  `json:"state,omitempty"`
	Getters   map[string]any  `json:"getters,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	ClientID  string          `json:"clientId,omitempty"`
}

var errMissingEvent = errors.New("beacon has no event")

type decodedBeacon struct {
	beacon Beacon
	event  domain.Event
}

// CollectHandler accepts beacons from browsers and feeds them to the pipeline.
type CollectHandler struct {
	reporter     DataReporter
	sessions     SessionSource
	logger       *slog.Logger
	maxEventSize int64
	metrics      *metrics.RUMMetrics
	broker       *SSEBroker
}

// NewCollectHandler creates a new CollectHandler. sessions, m and broker may
// be nil.
func NewCollectHandler(reporter DataReporter, sessions SessionSource, logger *slog.Logger, maxEventSize int64, m *metrics.RUMMetrics, broker *SSEBroker) *CollectHandler {
	return &CollectHandler{
		reporter:     reporter,
		sessions:     sessions,
		logger:       logger,
		maxEventSize: maxEventSize,
		metrics:      m,
		broker:       broker,
	}
}

// ServeHTTP processes beacon requests. A request is accepted only when every
// beacon in it decodes.
func (h *CollectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxEventSize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var (
		beacons []decodedBeacon
		err     error
		msg     string
	)
	switch mediaType {
	case "application/json", "text/plain":
		// text/plain is what navigator.sendBeacon sends for string bodies.
		beacons, err = h.decodeSingle(r.Body)
		msg = "Bad Request: Failed to decode JSON"
	case "application/x-ndjson":
		beacons, err = h.decodeNDJSON(r.Body)
		msg = "Bad Request: Failed to decode NDJSON line"
	default:
		http.Error(w, "Unsupported Media Type: "+r.Header.Get("Content-Type"), http.StatusUnsupportedMediaType)
		return
	}

	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		h.logger.Warn("rejected beacon", "error", err)
		if h.metrics != nil {
			h.metrics.EventsTotal.WithLabelValues(string(domain.EventUnknown), "invalid").Inc()
		}
		if errors.Is(err, errMissingEvent) || errors.Is(err, domain.ErrMissingType) {
			msg = "Bad Request: " + err.Error()
		}
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	clientID := r.Header.Get(ClientIDHeader)
	if clientID == "" {
		clientID = r.URL.Query().Get(ClientIDParam)
	}
	// Beacons that identify neither a session nor a client share one fresh
	// session per request.
	var anonymous string
	for _, b := range beacons {
		s := h.scope(r, clientID, b.beacon)
		if s.Session == "" {
			if anonymous == "" {
				anonymous = domain.NewSessionID(time.Now())
			}
			s.Session = anonymous
		}
		h.reporter.HandleDataReport(domain.WithScope(r.Context(), s), b.event)
	}
	if h.broker != nil {
		h.broker.ReportEvents(len(beacons))
	}

	w.WriteHeader(http.StatusAccepted)
}

func (h *CollectHandler) decodeSingle(body io.Reader) ([]decodedBeacon, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	b, err := decodeBeacon(raw)
	if err != nil {
		return nil, err
	}
	return []decodedBeacon{b}, nil
}

func (h *CollectHandler) decodeNDJSON(body io.Reader) ([]decodedBeacon, error) {
	var beacons []decodedBeacon
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), int(h.maxEventSize))
	for line := 1; scanner.Scan(); line++ {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		b, err := decodeBeacon(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		beacons = append(beacons, b)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return beacons, nil
}

func decodeBeacon(raw []byte) (decodedBeacon, error) {
	var b Beacon
	if err := json.Unmarshal(raw, &b); err != nil {
		return decodedBeacon{}, err
	}
	if len(b.Event) == 0 || string(b.Event) == "null" {
		return decodedBeacon{}, errMissingEvent
	}
	ev, err := domain.DecodeEvent(b.Event)
	if err != nil {
		return decodedBeacon{}, err
	}
	return decodedBeacon{beacon: b, event: ev}, nil
}

// scope builds the per-beacon environment from the page context and request
// headers.
func (h *CollectHandler) scope(r *http.Request, clientID string, b Beacon) domain.Scope {
	nav := &domain.Navigator{
		UserAgent: r.UserAgent(),
		Language:  primaryLanguage(r.Header.Get("Accept-Language")),
		Platform:  strings.Trim(r.Header.Get("Sec-CH-UA-Platform"), `"`),
	}
	env := domain.StaticEnvironment{Nav: nav}
	if b.Page != nil {
		env.Loc = locationOf(b.Page.URL)
		env.Doc = &domain.Document{Title: b.Page.Title, Referrer: b.Page.Referrer}
	}

	s := domain.Scope{Env: env, Session: b.SessionID}
	if b.State != nil || b.Getters != nil {
		s.State = host.StaticState{State: b.State, Getters: b.Getters}
	}
	if clientID == "" {
		clientID = b.ClientID
	}
	if s.Session == "" && clientID != "" && h.sessions != nil {
		s.Session = usecase.NewSessions(h.sessions.ForClient(clientID), nil, h.logger).ID(r.Context())
	}
	return s
}

func locationOf(raw string) *domain.Location {
	loc := &domain.Location{Href: raw}
	u, err := url.Parse(raw)
	if err != nil {
		return loc
	}
	loc.Pathname = u.Path
	if u.RawQuery != "" {
		loc.Search = "?" + u.RawQuery
	}
	if u.Fragment != "" {
		loc.Hash = "#" + u.Fragment
	}
	return loc
}

// primaryLanguage returns the first tag of an Accept-Language header.
func primaryLanguage(header string) string {
	first, _, _ := strings.Cut(header, ",")
	tag, _, _ := strings.Cut(first, ";")
	return strings.TrimSpace(tag)
}
