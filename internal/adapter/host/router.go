package host

import (
	"sync"

	"github.com/V4T54L/rumtrack/internal/domain"
)

// Router tracks the current route and runs after-navigation hooks.
type Router struct {
	mu      sync.Mutex
	current domain.RouteDescriptor
	hooks   map[int]func(to, from domain.RouteDescriptor)
	nextID  int
}

// NewRouter creates a Router positioned at initial.
func NewRouter(initial domain.RouteDescriptor) *Router {
	return &Router{current: initial, hooks: make(map[int]func(to, from domain.RouteDescriptor))}
}

func (r *Router) CurrentRoute() domain.RouteDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Push navigates to the given route and runs the hooks with the previous one.
func (r *Router) Push(to domain.RouteDescriptor) {
	r.mu.Lock()
	from := r.current
	r.current = to
	hooks := make([]func(to, from domain.RouteDescriptor), 0, len(r.hooks))
	for _, h := range r.hooks {
		hooks = append(hooks, h)
	}
	r.mu.Unlock()

	for _, h := range hooks {
		h(to, from)
	}
}

func (r *Router) AfterEach(fn func(to, from domain.RouteDescriptor)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.hooks[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.hooks, id)
	}
}
