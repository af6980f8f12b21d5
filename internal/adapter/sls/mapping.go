package sls

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/V4T54L/rumtrack/internal/domain"
)

const detailFallback = `{"error":"Failed to serialize data"}`

// TransformLogData maps a payload into the backend record shape. Page and
// navigator fields come from the scope attached to ctx, falling back to the
// adapter's environment.
func (a *Adapter) TransformLogData(ctx context.Context, payload domain.LogPayload) domain.LogRecord {
	a.mu.Lock()
	cfg := a.cfg
	a.mu.Unlock()

	env := a.env
	if scope, ok := domain.ScopeFrom(ctx); ok && scope.Env != nil {
		env = scope.Env
	}
	loc, locOK := env.Location()
	doc, docOK := env.Document()
	nav, navOK := env.Navigator()

	now := a.now()
	eventType := firstNonEmpty(stringField(payload, "eventType"), stringField(payload, "type"), string(domain.EventUnknown))

	record := domain.LogRecord{
		domain.FieldTime:            now.Unix(),
		domain.FieldSource:          cfg.Source,
		domain.FieldEventType:       eventType,
		domain.FieldCategory:        firstNonEmpty(stringField(payload, "category"), domain.EventType(eventType).Category()),
		domain.FieldLevel:           firstNonEmpty(stringField(payload, "level"), domain.EventType(eventType).Level()),
		domain.FieldClientTimestamp: now.UnixMilli(),
		domain.FieldAppName:         cfg.AppName,
		domain.FieldEnvironment:     cfg.Environment,
		domain.FieldSessionID:       firstNonEmpty(stringField(payload, "sessionId"), cfg.SessionID),
		domain.FieldPageURL:         loc.Href,
		domain.FieldPagePath:        loc.Pathname,
	}
	if docOK {
		record[domain.FieldPageTitle] = doc.Title
	}
	if ref, ok := eventReferrer(payload); ok {
		record[domain.FieldReferrer] = ref
	} else if docOK {
		record[domain.FieldReferrer] = doc.Referrer
	}
	if navOK {
		record[domain.FieldUserAgent] = nav.UserAgent
		record[domain.FieldLanguage] = nav.Language
	}

	if cfg.UserID != "" {
		record[domain.FieldUserID] = cfg.UserID
	}
	if payload.Truthy("userId") {
		record[domain.FieldUserID] = payload["userId"]
	}
	if payload.Truthy("userName") {
		record[domain.FieldUserName] = payload["userName"]
	}
	email, _ := payload.String("userEmail")
	record[domain.FieldIsInternalUser] = IsInternalEmail(email, cfg.InternalDomains)

	switch eventType {
	case string(domain.EventError):
		addErrorFields(record, payload)
	case string(domain.EventXHR), string(domain.EventFetch):
		addAPIFields(record, payload)
	case string(domain.EventClick):
		addClickFields(record, payload)
	}

	record[domain.FieldDetailJSON] = detailJSON(map[string]any{"hash": resolveHash(payload, loc, locOK)})

	return record
}

// resolveHash prefers the payload's hash, then its dimensions' hash, then the
// current location.
func resolveHash(p domain.LogPayload, loc domain.Location, locOK bool) string {
	if h, ok := p.String("hash"); ok {
		return h
	}
	if dims, ok := p["dimensions"].(map[string]any); ok {
		if h, ok := dims["hash"].(string); ok {
			return h
		}
	}
	if locOK {
		return loc.Hash
	}
	return ""
}

func detailJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return detailFallback
	}
	return string(data)
}

// IsInternalEmail reports whether the email's domain equals, or is a subdomain
// of, one of the internal domains. Matching is case-insensitive.
func IsInternalEmail(email string, internal []string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	host := strings.ToLower(parts[1])
	if host == "" {
		return false
	}
	for _, d := range internal {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func addErrorFields(record domain.LogRecord, p domain.LogPayload) {
	if p.Truthy("message") {
		record["error_message"] = fmt.Sprint(p["message"])
	}
	if p.Truthy("stack") {
		record["error_stack"] = fmt.Sprint(p["stack"])
	}
	if p.Truthy("filename") {
		record["error_filename"] = p["filename"]
	}
	if p.Truthy("lineno") {
		record["error_lineno"] = numberString(p["lineno"])
	}
	if p.Truthy("colno") {
		record["error_colno"] = numberString(p["colno"])
	}
	if p.Truthy("name") {
		record["error_name"] = p["name"]
	}
}

func addAPIFields(record domain.LogRecord, p domain.LogPayload) {
	if p.Truthy("url") {
		record["api_url"] = p["url"]
	}
	if p.Truthy("method") {
		record["api_method"] = p["method"]
	}
	if v, ok := p["status"]; ok && v != nil {
		record["api_status"] = toNumber(v)
	}
	if v, ok := p["duration"]; ok && v != nil {
		record["api_duration"] = toNumber(v)
	}
	if v, ok := p["responseSize"]; ok && v != nil {
		record["api_response_size"] = toNumber(v)
	}
}

func addClickFields(record domain.LogRecord, p domain.LogPayload) {
	if p.Truthy("clickBizId") {
		record["click_biz_id"] = p["clickBizId"]
	} else if p.Truthy("bizId") {
		record["click_biz_id"] = p["bizId"]
	}
	if p.Truthy("target") {
		record["click_target"] = p["target"]
	}
	if p.Truthy("selector") {
		record["click_selector"] = p["selector"]
	}
	if p.Truthy("text") {
		record["click_text"] = p["text"]
	}
	if v, ok := p["x"]; ok && v != nil {
		record["click_x"] = toNumber(v)
	}
	if v, ok := p["y"]; ok && v != nil {
		record["click_y"] = toNumber(v)
	}
}

func eventReferrer(p domain.LogPayload) (string, bool) {
	ev, ok := p["event"].(map[string]any)
	if !ok {
		return "", false
	}
	ref, ok := ev["referrer"].(string)
	return ref, ok
}

func stringField(p domain.LogPayload, key string) string {
	s, _ := p.String(key)
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func numberString(v any) string {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprint(v)
}

// toNumber coerces numeric-looking values to float64. Anything else yields 0.
func toNumber(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		var f float64
		if _, err := fmt.Sscan(t, &f); err == nil {
			return f
		}
	case bool:
		if t {
			return 1
		}
	}
	return 0
}
