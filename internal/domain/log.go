package domain

import "encoding/json"

// LogPayload is the flat key/value record handed to the delivery adapter. It is
// either produced by the orchestrator from an Envelope or supplied directly by a
// caller (for example the adapter's own init log).
type LogPayload map[string]any

// LogRecord is the wire shape accepted by the log-ingestion backend, one per
// write call.
type LogRecord map[string]any

// Well-known LogRecord keys.
const (
	FieldTime            = "__time__"
	FieldSource          = "__source__"
	FieldEventType       = "event_type"
	FieldCategory        = "category"
	FieldLevel           = "level"
	FieldClientTimestamp = "client_timestamp"
	FieldAppName         = "app_name"
	FieldEnvironment     = "environment"
	FieldSessionID       = "session_id"
	FieldPageURL         = "page_url"
	FieldPageTitle       = "page_title"
	FieldPagePath        = "page_path"
	FieldReferrer        = "referrer"
	FieldUserAgent       = "user_agent"
	FieldLanguage        = "language"
	FieldUserID          = "user_id"
	FieldUserName        = "user_name"
	FieldIsInternalUser  = "is_internal_user"
	FieldDetailJSON      = "detail_json"
)

// String returns the string value stored under key, if any.
func (p LogPayload) String(key string) (string, bool) {
	if p == nil {
		return "", false
	}
	s, ok := p[key].(string)
	return s, ok
}

// Truthy reports whether key holds a value that is present and not a zero value.
func (p LogPayload) Truthy(key string) bool {
	if p == nil {
		return false
	}
	return truthy(p[key])
}

// Clone returns a shallow copy of the payload.
func (p LogPayload) Clone() LogPayload {
	out := make(LogPayload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Clone returns a shallow copy of the record.
func (r LogRecord) Clone() LogRecord {
	out := make(LogRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Size returns the length of the JSON encoding of the record.
func (r LogRecord) Size() (int, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}
