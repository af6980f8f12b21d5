package pii

import (
	"log/slog"
	"regexp"
	"unicode/utf8"

	"github.com/V4T54L/rumtrack/internal/domain"
)

const FilteredPlaceholder = "[FILTERED]"

// MaxStringLength is the longest string value, in characters, left untouched.
const MaxStringLength = 500

const truncationMarker = "..."

// DefaultSensitivePatterns match keys whose values must never leave the process.
var DefaultSensitivePatterns = []string{"password", "token", "secret", "key", "auth", "credential"}

// Redactor masks sensitive values and truncates long strings in log records.
type Redactor struct {
	patterns []*regexp.Regexp
	logger   *slog.Logger
}

// NewRedactor creates a new Redactor. Patterns are matched case-insensitively
// against record keys.
func NewRedactor(patterns []string, logger *slog.Logger) *Redactor {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(p))
		if err != nil {
			logger.Warn("skipping invalid sensitive pattern", "pattern", p, "error", err)
			continue
		}
		compiled = append(compiled, re)
	}
	return &Redactor{patterns: compiled, logger: logger}
}

// Redact returns a filtered copy of record. Only string values are touched;
// the input is not modified.
func (r *Redactor) Redact(record domain.LogRecord) (domain.LogRecord, bool) {
	out := record.Clone()
	redacted := false
	for k, v := range out {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if r.sensitive(k) {
			s = FilteredPlaceholder
			redacted = true
		}
		out[k] = truncate(s)
	}
	return out, redacted
}

// truncate cuts s after MaxStringLength characters. The cut never splits a
// multi-byte character.
func truncate(s string) string {
	if len(s) <= MaxStringLength || utf8.RuneCountInString(s) <= MaxStringLength {
		return s
	}
	n := 0
	for i := range s {
		if n == MaxStringLength {
			return s[:i] + truncationMarker
		}
		n++
	}
	return s
}

func (r *Redactor) sensitive(key string) bool {
	for _, re := range r.patterns {
		if re.MatchString(key) {
			return true
		}
	}
	return false
}
