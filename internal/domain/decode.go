package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMissingType is returned when a raw event carries no type discriminant.
var ErrMissingType = errors.New("event: type is required")

type wireBase struct {
	Type       EventType      `json:"type"`
	Timestamp  *float64       `json:"timestamp,omitempty"`
	CustomData map[string]any `json:"customData,omitempty"`
}

func (w wireBase) base(raw map[string]any, known ...string) Base {
	b := Base{CustomData: w.CustomData}
	if w.Timestamp != nil {
		b.Timestamp = time.UnixMilli(int64(*w.Timestamp))
	}
	skip := map[string]struct{}{"type": {}, "timestamp": {}, "customData": {}}
	for _, k := range known {
		skip[k] = struct{}{}
	}
	for k, v := range raw {
		if _, ok := skip[k]; ok {
			continue
		}
		if b.Extra == nil {
			b.Extra = make(map[string]any)
		}
		b.Extra[k] = v
	}
	return b
}

type decodeFunc func(data []byte, w wireBase, raw map[string]any) (Event, error)

var decoders = map[EventType]decodeFunc{
	EventError:       decodeError,
	EventClick:       decodeClick,
	EventRoute:       decodeRoute,
	EventPerformance: decodePerformance,
	EventXHR:         decodeAPI,
	EventFetch:       decodeAPI,
	EventSystem:      decodeSystem,
}

// DecodeEvent decodes a raw JSON event, dispatching on its type discriminant.
// Types without a dedicated variant decode into a CustomEvent carrying the
// original discriminant.
func DecodeEvent(data []byte) (Event, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	var w wireBase
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if w.Type == "" {
		return nil, ErrMissingType
	}

	decode, ok := decoders[w.Type]
	if !ok {
		decode = decodeCustom
	}
	return decode(data, w, raw)
}

func decodeError(data []byte, w wireBase, raw map[string]any) (Event, error) {
	var v struct {
		Message  string `json:"message"`
		Stack    string `json:"stack"`
		Name     string `json:"name"`
		Filename string `json:"filename"`
		Lineno   int    `json:"lineno"`
		Colno    int    `json:"colno"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode error event: %w", err)
	}
	return ErrorEvent{
		Base:     w.base(raw, "message", "stack", "name", "filename", "lineno", "colno"),
		Message:  v.Message,
		Stack:    v.Stack,
		Name:     v.Name,
		Filename: v.Filename,
		Lineno:   v.Lineno,
		Colno:    v.Colno,
	}, nil
}

func decodeClick(data []byte, w wireBase, raw map[string]any) (Event, error) {
	var v struct {
		BizID  string      `json:"bizId"`
		X      float64     `json:"x"`
		Y      float64     `json:"y"`
		Target ClickTarget `json:"target"`
		Page   PageInfo    `json:"page"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode click event: %w", err)
	}
	return ClickEvent{
		Base:   w.base(raw, "bizId", "x", "y", "target", "page"),
		BizID:  v.BizID,
		X:      v.X,
		Y:      v.Y,
		Target: v.Target,
		Page:   v.Page,
	}, nil
}

func decodeRoute(data []byte, w wireBase, raw map[string]any) (Event, error) {
	var v struct {
		From RouteDescriptor `json:"from"`
		To   RouteDescriptor `json:"to"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode route event: %w", err)
	}
	return RouteEvent{Base: w.base(raw, "from", "to"), From: v.From, To: v.To}, nil
}

func decodePerformance(data []byte, w wireBase, raw map[string]any) (Event, error) {
	var v struct {
		Name     string  `json:"name"`
		Duration float64 `json:"duration"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode performance event: %w", err)
	}
	return PerformanceEvent{Base: w.base(raw, "name", "duration"), Name: v.Name, Duration: v.Duration}, nil
}

func decodeAPI(data []byte, w wireBase, raw map[string]any) (Event, error) {
	var v struct {
		URL          string  `json:"url"`
		Method       string  `json:"method"`
		Status       int     `json:"status"`
		Duration     float64 `json:"duration"`
		ResponseSize int64   `json:"responseSize"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", w.Type, err)
	}
	return APIEvent{
		Base:         w.base(raw, "url", "method", "status", "duration", "responseSize"),
		Kind:         w.Type,
		URL:          v.URL,
		Method:       v.Method,
		Status:       v.Status,
		Duration:     v.Duration,
		ResponseSize: v.ResponseSize,
	}, nil
}

func decodeSystem(data []byte, w wireBase, raw map[string]any) (Event, error) {
	var v struct {
		Category string `json:"category"`
		Level    string `json:"level"`
		Message  string `json:"message"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode system event: %w", err)
	}
	return SystemEvent{
		Base:     w.base(raw, "category", "level", "message"),
		Category: v.Category,
		Level:    v.Level,
		Message:  v.Message,
	}, nil
}

func decodeCustom(data []byte, w wireBase, raw map[string]any) (Event, error) {
	name, _ := raw["name"].(string)
	return CustomEvent{Base: w.base(raw, "name"), Kind: w.Type, Name: name}, nil
}
