package usecase

import (
	"sync"
	"time"
)

// DefaultMaxBreadcrumbs bounds the trail when no size is configured.
const DefaultMaxBreadcrumbs = 20

// Breadcrumb is one entry of the trail leading up to a report.
type Breadcrumb struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Category  string    `json:"category"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Breadcrumbs is a bounded trail. Once full, the oldest entry is evicted.
type Breadcrumbs struct {
	mu    sync.Mutex
	items []Breadcrumb
	start int
	max   int
}

// NewBreadcrumbs creates a trail holding at most max entries.
func NewBreadcrumbs(max int) *Breadcrumbs {
	if max <= 0 {
		max = DefaultMaxBreadcrumbs
	}
	return &Breadcrumbs{items: make([]Breadcrumb, 0, max), max: max}
}

func (b *Breadcrumbs) Add(c Breadcrumb) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) < b.max {
		b.items = append(b.items, c)
		return
	}
	b.items[b.start] = c
	b.start = (b.start + 1) % b.max
}

// All returns the trail oldest first.
func (b *Breadcrumbs) All() []Breadcrumb {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Breadcrumb, 0, len(b.items))
	out = append(out, b.items[b.start:]...)
	return append(out, b.items[:b.start]...)
}

func (b *Breadcrumbs) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

func (b *Breadcrumbs) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = b.items[:0]
	b.start = 0
}
