package domain

import "context"

// Location mirrors the parts of a browser location the pipeline reads.
type Location struct {
	Href     string
	Pathname string
	Search   string
	Hash     string
}

// Document mirrors the parts of a browser document the pipeline reads.
type Document struct {
	Title    string
	Referrer string
}

// Navigator mirrors the parts of a browser navigator the pipeline reads.
type Navigator struct {
	UserAgent string
	Language  string
	Platform  string
}

// Environment gives access to ambient page state. Each accessor reports
// whether the value is available; callers must degrade to empty values when it
// is not.
type Environment interface {
	Location() (Location, bool)
	Document() (Document, bool)
	Navigator() (Navigator, bool)
}

// NoopEnvironment is used outside a page context. Nothing is available.
type NoopEnvironment struct{}

func (NoopEnvironment) Location() (Location, bool)   { return Location{}, false }
func (NoopEnvironment) Document() (Document, bool)   { return Document{}, false }
func (NoopEnvironment) Navigator() (Navigator, bool) { return Navigator{}, false }

// StaticEnvironment serves fixed values, for example those reported by a
// beacon. A nil pointer means the value is unavailable.
type StaticEnvironment struct {
	Loc *Location
	Doc *Document
	Nav *Navigator
}

func (e StaticEnvironment) Location() (Location, bool) {
	if e.Loc == nil {
		return Location{}, false
	}
	return *e.Loc, true
}

func (e StaticEnvironment) Document() (Document, bool) {
	if e.Doc == nil {
		return Document{}, false
	}
	return *e.Doc, true
}

func (e StaticEnvironment) Navigator() (Navigator, bool) {
	if e.Nav == nil {
		return Navigator{}, false
	}
	return *e.Nav, true
}

// Scope carries per-call overrides of the bound environment and host state.
// Zero fields fall back to whatever the receiver was initialized with.
type Scope struct {
	Env     Environment
	State   HostState
	Session string
}

type scopeKey struct{}

// WithScope returns a copy of ctx carrying s.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFrom returns the scope attached to ctx, if any.
func ScopeFrom(ctx context.Context) (Scope, bool) {
	if ctx == nil {
		return Scope{}, false
	}
	s, ok := ctx.Value(scopeKey{}).(Scope)
	return s, ok
}
