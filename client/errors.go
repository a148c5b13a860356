// Package client implements the request multiplexer, inbound dispatcher,
// and public facade that turn a Transport into a session-aware MCP client.
package client

import (
	"fmt"

	"github.com/modelcontext/runtime/internal/jsonrpc2"
)

// Code is the closed set of error kinds a public Client operation can
// report. It never grows without a corresponding spec change: callers are
// expected to switch over it exhaustively.
type Code int

const (
	// CodeNotConnected means the operation requires a live transport and
	// none is connected.
	CodeNotConnected Code = iota
	// CodeNotInitialized means the operation requires a completed
	// initialize handshake.
	CodeNotInitialized
	// CodeTransport wraps an I/O, framing, or HTTP-status failure from the
	// transport layer.
	CodeTransport
	// CodeProtocol means the server sent a structurally invalid message.
	CodeProtocol
	// CodeRpc means the server replied with a well-formed JSON-RPC error.
	CodeRpc
	// CodeTimeout means a per-request or handler deadline elapsed.
	CodeTimeout
	// CodeCancelled means the caller cancelled the request locally.
	CodeCancelled
	// CodeCircuitOpen means the circuit breaker refused admission.
	CodeCircuitOpen
)

func (c Code) String() string {
	switch c {
	case CodeNotConnected:
		return "NotConnected"
	case CodeNotInitialized:
		return "NotInitialized"
	case CodeTransport:
		return "Transport"
	case CodeProtocol:
		return "Protocol"
	case CodeRpc:
		return "Rpc"
	case CodeTimeout:
		return "Timeout"
	case CodeCancelled:
		return "Cancelled"
	case CodeCircuitOpen:
		return "CircuitOpen"
	default:
		return "Unknown"
	}
}

// Error is the unified failure type every public Client operation returns
// instead of an ad hoc error value. RPC is set only for CodeRpc and Cause
// only for CodeTransport; for the other codes both are nil.
type Error struct {
	Code    Code
	Message string
	// RPC holds the server's original error when Code == CodeRpc.
	RPC *jsonrpc2.WireError
	// Cause holds the underlying error for CodeTransport/CodeProtocol, if
	// any.
	Cause error
}

func (e *Error) Error() string {
	if e.RPC != nil {
		return fmt.Sprintf("client: %s: %s (rpc code %d)", e.Code, e.Message, e.RPC.Code)
	}
	if e.Cause != nil {
		return fmt.Sprintf("client: %s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("client: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func errNotConnected() *Error {
	return &Error{Code: CodeNotConnected, Message: "client is not connected"}
}

func errNotInitialized() *Error {
	return &Error{Code: CodeNotInitialized, Message: "client has not completed initialization"}
}

func errTransport(err error) *Error {
	return &Error{Code: CodeTransport, Message: err.Error(), Cause: err}
}

func errProtocol(msg string) *Error {
	return &Error{Code: CodeProtocol, Message: msg}
}

func errTimeout() *Error {
	return &Error{Code: CodeTimeout, Message: "request timed out"}
}

func errCancelled() *Error {
	return &Error{Code: CodeCancelled, Message: "request was cancelled"}
}

func errCircuitOpen() *Error {
	return &Error{Code: CodeCircuitOpen, Message: "circuit breaker rejected the request"}
}

func errFromRPC(werr *jsonrpc2.WireError) *Error {
	return &Error{Code: CodeRpc, Message: werr.Message, RPC: werr}
}

// Sentinel values for errors.Is comparisons. Only Code participates in the
// comparison (see Error.Is); Message and Cause are irrelevant to identity.
var (
	ErrNotConnected  = &Error{Code: CodeNotConnected}
	ErrNotInitialized = &Error{Code: CodeNotInitialized}
	ErrTransport     = &Error{Code: CodeTransport}
	ErrProtocol      = &Error{Code: CodeProtocol}
	ErrRpc           = &Error{Code: CodeRpc}
	ErrTimeout       = &Error{Code: CodeTimeout}
	ErrCancelled     = &Error{Code: CodeCancelled}
	ErrCircuitOpen   = &Error{Code: CodeCircuitOpen}
)

// Is lets errors.Is(err, client.ErrTimeout) (and the other sentinels above)
// match any *Error carrying the same Code, regardless of Message or Cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}
