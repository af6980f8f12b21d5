package domain

// UserIdentity is read from host application state and forwarded as-is.
type UserIdentity struct {
	UserID      string   `json:"userId"`
	UserName    string   `json:"userName"`
	AccountID   string   `json:"accountId"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// IsZero reports whether no identity is known.
func (u UserIdentity) IsZero() bool {
	return u.UserID == "" && u.UserName == "" && u.AccountID == "" && u.Email == ""
}

// EventInfo is the nested "event" sub-record of an Envelope.
type EventInfo struct {
	Type      EventType `json:"type"`
	URL       string    `json:"url"`
	UserAgent string    `json:"userAgent"`
	Referrer  string    `json:"referrer"`
}

// TechStack is the nested "techStack" sub-record of an Envelope.
type TechStack struct {
	Framework string `json:"framework"`
	Platform  string `json:"platform"`
	Language  string `json:"language"`
}

// Envelope is an event enriched with session, user and page context. It is
// backend agnostic; the delivery adapter maps it again into a LogRecord.
type Envelope struct {
	Time        int64          `json:"__time__"`
	Source      string         `json:"__source__"`
	Timestamp   string         `json:"timestamp"`
	Environment string         `json:"environment"`
	SessionID   string         `json:"sessionId"`
	User        UserIdentity   `json:"user"`
	DataType    EventType      `json:"dataType"`
	MetricType  string         `json:"metricType"`
	Value       float64        `json:"value"`
	Event       EventInfo      `json:"event"`
	TechStack   TechStack      `json:"techStack"`
	RawData     map[string]any `json:"rawData,omitempty"`
	Dimensions  map[string]any `json:"dimensions"`
}

// SamplingPolicy maps an event type to a report rate in [0,1].
type SamplingPolicy map[EventType]float64

// Clone returns a copy of the policy.
func (p SamplingPolicy) Clone() SamplingPolicy {
	out := make(SamplingPolicy, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
