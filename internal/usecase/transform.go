package usecase

import (
	"strings"
	"time"

	"github.com/V4T54L/rumtrack/internal/domain"
)

const isoMillis = "2006-01-02T15:04:05.000Z"

// TransformContext carries the host accessors an event is enriched from.
// Any field may be nil.
type TransformContext struct {
	State            domain.HostState
	Router           domain.Router
	Env              domain.Environment
	FrameworkVersion string
	SessionID        string
}

// TransformerConfig holds the static envelope attributes.
type TransformerConfig struct {
	Source      string
	Environment string
	Debug       bool
}

// Transformer converts events into enriched envelopes.
type Transformer struct {
	cfg TransformerConfig
	now func() time.Time
}

// NewTransformer creates a Transformer. now defaults to time.Now.
func NewTransformer(cfg TransformerConfig, now func() time.Time) *Transformer {
	if now == nil {
		now = time.Now
	}
	return &Transformer{cfg: cfg, now: now}
}

// Transform enriches ev with page, user and session context. Only the
// timestamps depend on anything but ev and tc.
func (t *Transformer) Transform(ev domain.Event, tc TransformContext) domain.Envelope {
	env := tc.Env
	if env == nil {
		env = domain.NoopEnvironment{}
	}
	loc, _ := env.Location()
	doc, _ := env.Document()
	nav, navOK := env.Navigator()
	if loc.Pathname == "" && tc.Router != nil {
		loc.Pathname = tc.Router.CurrentRoute().Path
	}

	user := ResolveUser(tc.State)
	now := t.now()

	dataType := domain.EventUnknown
	if ev.Type() != "" {
		dataType = ev.Type()
	}

	envelope := domain.Envelope{
		Time:        now.Unix(),
		Source:      t.cfg.Source,
		Timestamp:   now.UTC().Format(isoMillis),
		Environment: t.cfg.Environment,
		SessionID:   tc.SessionID,
		User:        user,
		DataType:    dataType,
		MetricType:  MetricType(ev),
		Value:       MetricValue(ev),
		Event: domain.EventInfo{
			Type:      ev.Type(),
			URL:       loc.Href,
			UserAgent: orUnknown(nav.UserAgent, navOK),
			Referrer:  doc.Referrer,
		},
		TechStack: domain.TechStack{
			Framework: orUnknown(tc.FrameworkVersion, tc.FrameworkVersion != ""),
			Platform:  orUnknown(nav.Platform, navOK),
			Language:  orUnknown(nav.Language, navOK),
		},
		Dimensions: dimensions(ev, user, loc, doc),
	}
	if t.cfg.Debug {
		envelope.RawData = ev.Fields()
	}
	return envelope
}

func dimensions(ev domain.Event, user domain.UserIdentity, loc domain.Location, doc domain.Document) map[string]any {
	dims := map[string]any{
		"pageTitle":       doc.Title,
		"path":            loc.Pathname,
		"search":          loc.Search,
		"hash":            loc.Hash,
		"userId":          user.UserID,
		"userName":        user.UserName,
		"accountId":       user.AccountID,
		"userEmail":       user.Email,
		"userRoles":       strings.Join(user.Roles, ","),
		"userPermissions": strings.Join(user.Permissions, ","),
	}
	for k, v := range ev.Meta().CustomData {
		dims[k] = v
	}
	if click, ok := ev.(domain.ClickEvent); ok {
		dims["clickBizId"] = click.BizID
		dims["clickTargetTag"] = click.Target.TagName
		dims["clickTargetId"] = click.Target.ID
		dims["clickTargetClass"] = click.Target.ClassName
		dims["clickTargetSelector"] = click.Target.Selector
		dims["clickTargetText"] = click.Target.TextContent
		dims["clickPageUrl"] = click.Page.URL
		dims["clickPagePath"] = click.Page.Path
		dims["clickPageTitle"] = click.Page.Title
		dims["clickX"] = click.X
		dims["clickY"] = click.Y
	}
	return dims
}

// MetricType names the measurement an event contributes.
func MetricType(ev domain.Event) string {
	switch ev.Type() {
	case domain.EventPerformance:
		return "duration"
	case domain.EventXHR, domain.EventFetch, domain.EventClick, domain.EventRoute, domain.EventError:
		return string(ev.Type())
	default:
		return "unknown"
	}
}

// MetricValue is the numeric value an event contributes. Counting events are
// worth 1.
func MetricValue(ev domain.Event) float64 {
	switch e := ev.(type) {
	case domain.PerformanceEvent:
		return e.Duration
	case domain.APIEvent:
		if e.Duration != 0 {
			return e.Duration
		}
		return float64(e.Status)
	default:
		return 1
	}
}

func orUnknown(s string, ok bool) string {
	if !ok || s == "" {
		return "unknown"
	}
	return s
}

// ToLogPayload flattens an envelope into the payload handed to the delivery
// adapter: the event's own fields, then the dimensions, with the type,
// category and level set explicitly.
func ToLogPayload(ev domain.Event, env domain.Envelope) domain.LogPayload {
	payload := domain.LogPayload{}
	for k, v := range ev.Fields() {
		payload[k] = v
	}
	for k, v := range env.Dimensions {
		payload[k] = v
	}
	payload["eventType"] = string(env.DataType)
	if _, ok := payload["category"]; !ok {
		payload["category"] = ev.Type().Category()
	}
	if _, ok := payload["level"]; !ok {
		payload["level"] = ev.Type().Level()
	}
	payload["sessionId"] = env.SessionID
	payload["event"] = map[string]any{
		"type":      string(env.Event.Type),
		"url":       env.Event.URL,
		"userAgent": env.Event.UserAgent,
		"referrer":  env.Event.Referrer,
	}
	if env.RawData != nil {
		payload["rawData"] = env.RawData
	}
	return payload
}
