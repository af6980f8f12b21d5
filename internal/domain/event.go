package domain

import "time"

// EventType is the discriminant carried by every captured event.
type EventType string

const (
	EventError       EventType = "error"
	EventClick       EventType = "click"
	EventRoute       EventType = "route"
	EventPerformance EventType = "performance"
	EventXHR         EventType = "xhr"
	EventFetch       EventType = "fetch"
	EventCustom      EventType = "custom"
	EventSystem      EventType = "system"
	EventUnknown     EventType = "unknown"
)

// Category derives the log category of an event type.
func (t EventType) Category() string {
	switch t {
	case EventError:
		return "error"
	case EventPerformance:
		return "performance"
	case EventClick, EventRoute:
		return "user"
	default:
		return "general"
	}
}

// Level derives the log level of an event type.
func (t EventType) Level() string {
	switch t {
	case EventError:
		return "error"
	case EventXHR:
		return "warn"
	default:
		return "info"
	}
}

// Event is implemented by every captured event variant.
type Event interface {
	// Type returns the event discriminant.
	Type() EventType
	// Fields renders the event as the flat record a capture source would emit.
	Fields() map[string]any
	// Meta returns the attributes shared by all variants.
	Meta() Base
}

// Base holds the attributes shared by all event variants.
type Base struct {
	Timestamp time.Time
	// CustomData is merged into the envelope dimensions.
	CustomData map[string]any
	// Extra carries additional top-level attributes, such as the name and action
	// added by manual tracking calls.
	Extra map[string]any
}

// Meta implements Event.
func (b Base) Meta() Base { return b }

func (b Base) fields(t EventType) map[string]any {
	out := make(map[string]any, len(b.Extra)+4)
	for k, v := range b.Extra {
		out[k] = v
	}
	out["type"] = string(t)
	if !b.Timestamp.IsZero() {
		out["timestamp"] = b.Timestamp.UnixMilli()
	}
	if len(b.CustomData) > 0 {
		out["customData"] = b.CustomData
	}
	return out
}

// ErrorEvent describes an uncaught error or a manually reported failure.
type ErrorEvent struct {
	Base
	Message  string
	Stack    string
	Name     string
	Filename string
	Lineno   int
	Colno    int
}

func (e ErrorEvent) Type() EventType { return EventError }

func (e ErrorEvent) Fields() map[string]any {
	out := e.fields(EventError)
	out["message"] = e.Message
	putString(out, "stack", e.Stack)
	putString(out, "name", e.Name)
	putString(out, "filename", e.Filename)
	if e.Lineno != 0 {
		out["lineno"] = e.Lineno
	}
	if e.Colno != 0 {
		out["colno"] = e.Colno
	}
	return out
}

// ClickTarget describes the element a click resolved to.
type ClickTarget struct {
	TagName     string `json:"tagName"`
	ID          string `json:"id"`
	ClassName   string `json:"className"`
	Selector    string `json:"selector"`
	TextContent string `json:"textContent"`
}

// PageInfo describes the page a click happened on.
type PageInfo struct {
	URL   string `json:"url"`
	Path  string `json:"path"`
	Title string `json:"title"`
}

// ClickEvent is a user click resolved to a business identifier.
type ClickEvent struct {
	Base
	BizID  string
	X      float64
	Y      float64
	Target ClickTarget
	Page   PageInfo
}

func (e ClickEvent) Type() EventType { return EventClick }

func (e ClickEvent) Fields() map[string]any {
	out := e.fields(EventClick)
	out["bizId"] = e.BizID
	out["x"] = e.X
	out["y"] = e.Y
	out["target"] = map[string]any{
		"tagName":     e.Target.TagName,
		"id":          e.Target.ID,
		"className":   e.Target.ClassName,
		"selector":    e.Target.Selector,
		"textContent": e.Target.TextContent,
	}
	out["page"] = map[string]any{
		"url":   e.Page.URL,
		"path":  e.Page.Path,
		"title": e.Page.Title,
	}
	return out
}

// RouteDescriptor is the router's view of one location.
type RouteDescriptor struct {
	Path    string            `json:"path"`
	Name    string            `json:"name,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
	Query   map[string]string `json:"query,omitempty"`
	Matched []string          `json:"matched,omitempty"`
}

func (r RouteDescriptor) fields() map[string]any {
	return map[string]any{
		"path":   r.Path,
		"name":   r.Name,
		"params": r.Params,
		"query":  r.Query,
	}
}

// RouteEvent records a client-side navigation.
type RouteEvent struct {
	Base
	From RouteDescriptor
	To   RouteDescriptor
}

func (e RouteEvent) Type() EventType { return EventRoute }

func (e RouteEvent) Fields() map[string]any {
	out := e.fields(EventRoute)
	out["from"] = e.From.fields()
	out["to"] = e.To.fields()
	return out
}

// PerformanceEvent carries a timing measurement in milliseconds.
type PerformanceEvent struct {
	Base
	Name     string
	Duration float64
}

func (e PerformanceEvent) Type() EventType { return EventPerformance }

func (e PerformanceEvent) Fields() map[string]any {
	out := e.fields(EventPerformance)
	putString(out, "name", e.Name)
	out["duration"] = e.Duration
	return out
}

// APIEvent records an XMLHttpRequest or fetch call.
type APIEvent struct {
	Base
	// Kind is EventXHR or EventFetch.
	Kind         EventType
	URL          string
	Method       string
	Status       int
	Duration     float64
	ResponseSize int64
}

func (e APIEvent) Type() EventType {
	if e.Kind == EventFetch {
		return EventFetch
	}
	return EventXHR
}

func (e APIEvent) Fields() map[string]any {
	out := e.fields(e.Type())
	putString(out, "url", e.URL)
	putString(out, "method", e.Method)
	out["status"] = e.Status
	out["duration"] = e.Duration
	if e.ResponseSize != 0 {
		out["responseSize"] = e.ResponseSize
	}
	return out
}

// CustomEvent is a manually tracked event. Kind defaults to EventCustom but may
// carry any discriminant, including ones no variant exists for.
type CustomEvent struct {
	Base
	Kind EventType
	Name string
}

func (e CustomEvent) Type() EventType {
	if e.Kind == "" {
		return EventCustom
	}
	return e.Kind
}

func (e CustomEvent) Fields() map[string]any {
	out := e.fields(e.Type())
	putString(out, "name", e.Name)
	return out
}

// SystemEvent is emitted by the pipeline about itself.
type SystemEvent struct {
	Base
	Category string
	Level    string
	Message  string
}

func (e SystemEvent) Type() EventType { return EventSystem }

func (e SystemEvent) Fields() map[string]any {
	out := e.fields(EventSystem)
	putString(out, "category", e.Category)
	putString(out, "level", e.Level)
	putString(out, "message", e.Message)
	return out
}

func putString(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}
