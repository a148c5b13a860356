// Package transport implements the two wire-level carriers the client
// facade can run a session over: a subprocess connected by pipes, and
// Streamable HTTP (POST + SSE) against a single endpoint URL.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontext/runtime/internal/json"
)

// Error is the transport-layer failure type the client wraps as the Cause
// of a client.Error with CodeTransport. It preserves the underlying cause for
// errors.Is/As and, for HTTP failures, the status code.
type Error struct {
	Op         string
	StatusCode int // 0 when not an HTTP-status failure
	// RetryAfter is the raw Retry-After header value (seconds or HTTP-date)
	// when the failing response carried one, empty otherwise.
	RetryAfter string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport: %s: http status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrClosed is returned by Send/Receive once Stop has completed.
var ErrClosed = errors.New("transport: closed")

// Transport is the contract both the process and Streamable HTTP carriers
// implement. It moves already-encoded JSON-RPC values; it has no knowledge
// of request/response correlation, which lives in the client package.
// HTTPTransport does manage its own session (internal/session) and retries
// (internal/retry); ProcessTransport does neither.
type Transport interface {
	// Start opens the underlying channel and begins accepting Send/Receive
	// calls. Calling Start twice without an intervening Stop is an error.
	Start(ctx context.Context) error

	// Stop is idempotent: it releases resources and cancels in-flight I/O.
	// Calling Stop on a Transport that was never started, or twice, is a
	// no-op.
	Stop(ctx context.Context) error

	// Send writes exactly one complete message. A Transport implementation
	// must serialize concurrent Send calls itself: callers may call Send
	// from multiple goroutines.
	Send(ctx context.Context, msg json.RawMessage) error

	// Receive blocks until the next complete inbound message is available,
	// ctx is cancelled, or the transport stops. Safe to call from exactly
	// one goroutine at a time; a second concurrent Receive has undefined
	// delivery order.
	Receive(ctx context.Context) (json.RawMessage, error)

	// IsRunning reports whether Start has completed and Stop has not.
	IsRunning() bool
}

// StateObserver is implemented by callers that want session lifecycle
// notifications from a Transport. HTTPTransport wires its internal
// session.Manager to one through HTTPConfig.Observer; ProcessTransport has
// no session and takes no observer.
type StateObserver interface {
	OnSessionEstablished(sessionID string)
	OnSessionLost(reason string)
}
