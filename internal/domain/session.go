package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const sessionAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewSessionID returns an identifier of the form session_<unix-ms>_<7 chars>.
func NewSessionID(now time.Time) string {
	id := uuid.New()
	var b strings.Builder
	for _, c := range id[:7] {
		b.WriteByte(sessionAlphabet[int(c)%len(sessionAlphabet)])
	}
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), b.String())
}
