package domain

import (
	"context"
	"time"
)

// Transport writes one log record per call to the log-ingestion backend.
type Transport interface {
	// Send delivers a single record. A record cancelled by the before-send hook
	// is not an error.
	Send(ctx context.Context, record LogRecord) error

	// Close releases the underlying connection.
	Close() error
}

// BatchTransport is a Transport that buffers records and posts them in
// batches. Queue adds record to the open batch and returns at once; the
// channel yields the result of the batch it was posted in.
type BatchTransport interface {
	Transport
	Queue(record LogRecord) <-chan error
}

// BeforeSendFunc is invoked by a transport before network transmission. A false
// result cancels the send.
type BeforeSendFunc func(record LogRecord) (LogRecord, bool)

// SessionStore is session-scoped key/value storage.
type SessionStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// AppKeyRepository validates the keys collector clients send with beacons.
type AppKeyRepository interface {
	// IsValid checks if the provided key is valid and active.
	// Implementations should handle caching to reduce database load.
	IsValid(ctx context.Context, key string) (bool, error)
}

// HostState is read-only access to the host application's state tree.
type HostState interface {
	// UserModule returns the "user" branch of the state tree, or nil.
	UserModule() map[string]any
	// Getter evaluates a named getter such as "user/userId".
	Getter(name string) (any, bool)
}

// Mutation is a committed change to host state.
type Mutation struct {
	Type    string
	Payload any
	At      time.Time
}

// HostStore is HostState that also reports mutations. The returned function
// unsubscribes.
type HostStore interface {
	HostState
	Subscribe(fn func(Mutation)) func()
}

// Router exposes the current route and after-navigation hooks. The returned
// function removes the hook.
type Router interface {
	CurrentRoute() RouteDescriptor
	AfterEach(fn func(to, from RouteDescriptor)) func()
}
