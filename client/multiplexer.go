package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/modelcontext/runtime/internal/breaker"
	"github.com/modelcontext/runtime/internal/json"
	"github.com/modelcontext/runtime/internal/jsonrpc2"
	"github.com/modelcontext/runtime/protocol"
	"github.com/modelcontext/runtime/transport"
)

// outcome is what a pendingRequest's channel eventually delivers: either a
// successful result payload or a client-level error (Rpc, Timeout,
// Cancelled, or Transport).
type outcome struct {
	result json.RawMessage
	err    *Error
}

// pendingRequest is the shared-ownership record spec.md §3/§9 describes:
// the timer callback and the awaiting goroutine both hold a reference (via
// the map, and via the closure each captures) and either may be the one to
// resolve it, but only one ever succeeds.
type pendingRequest struct {
	ch       chan outcome
	timer    *time.Timer
	resolved atomic.Bool
}

// Multiplexer allocates correlation ids, parks awaiters, matches inbound
// responses to them, and enforces per-request timeouts, circuit-breaker
// admission, and an optional rate limit. It has no notion of capability
// handlers or the initialize handshake — that is the Dispatcher/Client's
// job, layered on top.
type Multiplexer struct {
	transport      transport.Transport
	breaker        *breaker.Breaker
	limiter        *rate.Limiter
	requestTimeout time.Duration

	nextID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]*pendingRequest
	closed  bool
}

// NewMultiplexer constructs a Multiplexer over t. breaker and limiter may be
// nil, disabling admission control and rate limiting respectively.
func NewMultiplexer(t transport.Transport, b *breaker.Breaker, limiter *rate.Limiter, requestTimeout time.Duration) *Multiplexer {
	return &Multiplexer{
		transport:      t,
		breaker:        b,
		limiter:        limiter,
		requestTimeout: requestTimeout,
		pending:        make(map[uint64]*pendingRequest),
	}
}

// sendResult is what the breaker-wrapped attempt produces: either a raw
// result, or a well-formed RPC error — both of which count as a *successful*
// breaker outcome, since the server answered and the transport is healthy.
type sendResult struct {
	raw    json.RawMessage
	rpcErr *Error
}

// Call sends method/params as a request and blocks for the matching
// response, honoring ctx cancellation, the per-request timeout, the
// optional rate limiter, and the circuit breaker. Admission order is rate
// limiter, then breaker, then transport send, per the domain-stack wiring.
func (m *Multiplexer) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !m.transport.IsRunning() {
		return nil, errNotConnected()
	}

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, errCancelled()
		}
	}

	exec := func(ctx context.Context) (any, error) {
		raw, cerr := m.roundTrip(ctx, method, params)
		if cerr != nil {
			if cerr.Code == CodeRpc {
				return &sendResult{rpcErr: cerr}, nil
			}
			return nil, cerr
		}
		return &sendResult{raw: raw}, nil
	}

	var result any
	var err error
	if m.breaker != nil {
		result, err = m.breaker.Execute(ctx, exec)
	} else {
		result, err = exec(ctx)
	}
	if err != nil {
		if errors.Is(err, breaker.ErrOpen) {
			return nil, errCircuitOpen()
		}
		var ce *Error
		if errors.As(err, &ce) {
			return nil, ce
		}
		return nil, errTransport(err)
	}

	sr := result.(*sendResult)
	if sr.rpcErr != nil {
		return nil, sr.rpcErr
	}
	return sr.raw, nil
}

// roundTrip performs the allocate/send/await sequence of spec.md §4.6 steps
// 3-6 for a single attempt. It is the function the breaker (if any) wraps.
func (m *Multiplexer) roundTrip(ctx context.Context, method string, params any) (json.RawMessage, *Error) {
	id := m.nextID.Add(1)
	rpcID := jsonrpc2.NumberID(id)

	req, err := protocol.NewRequest(rpcID, method, params)
	if err != nil {
		return nil, errProtocol(fmt.Sprintf("encoding params for %s: %v", method, err))
	}
	encoded, err := jsonrpc2.EncodeMessage(&jsonrpc2.Message{Request: req})
	if err != nil {
		return nil, errProtocol(fmt.Sprintf("encoding request %s: %v", method, err))
	}

	pr := &pendingRequest{ch: make(chan outcome, 1)}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errNotConnected()
	}
	m.pending[id] = pr
	m.mu.Unlock()

	pr.timer = time.AfterFunc(m.requestTimeout, func() {
		m.resolve(id, outcome{err: errTimeout()})
	})

	if err := m.transport.Send(ctx, encoded); err != nil {
		m.removeAndStop(id, pr)
		return nil, errTransport(err)
	}

	select {
	case out := <-pr.ch:
		if out.err != nil {
			return nil, out.err
		}
		return out.result, nil
	case <-ctx.Done():
		m.cancelLocally(id, "context cancelled")
		return nil, errCancelled()
	}
}

// Notify sends a fire-and-forget notification: no id, no pending entry, no
// timeout, and no breaker accounting beyond the write itself.
func (m *Multiplexer) Notify(ctx context.Context, method string, params any) error {
	if !m.transport.IsRunning() {
		return errNotConnected()
	}
	n, err := protocol.NewNotification(method, params)
	if err != nil {
		return errProtocol(fmt.Sprintf("encoding params for %s: %v", method, err))
	}
	encoded, err := jsonrpc2.EncodeMessage(&jsonrpc2.Message{Notification: n})
	if err != nil {
		return errProtocol(fmt.Sprintf("encoding notification %s: %v", method, err))
	}
	if err := m.transport.Send(ctx, encoded); err != nil {
		return errTransport(err)
	}
	return nil
}

// CancelRequest sends a $/cancelRequest-style notification for id and
// resolves the local pending entry with Cancelled without waiting for the
// server's acknowledgment, per spec.md §4.6's cancellation contract.
func (m *Multiplexer) CancelRequest(ctx context.Context, id uint64, reason string) {
	m.cancelLocally(id, reason)
	params := protocol.CancelledParams{
		RequestID: json.RawMessage(fmt.Sprintf("%d", id)),
		Reason:    reason,
	}
	_ = m.Notify(ctx, protocol.NotificationCancelled, params)
}

func (m *Multiplexer) cancelLocally(id uint64, reason string) {
	m.resolve(id, outcome{err: errCancelled()})
}

// resolve removes id's pending entry (if still present) and delivers out to
// its awaiter. Map deletion happens under the same lock as the presence
// check, so a late timer firing after a response already resolved the entry
// — or vice versa — observes the entry gone and does nothing: exactly one
// resolution per PendingRequest.
func (m *Multiplexer) resolve(id uint64, out outcome) {
	m.mu.Lock()
	pr, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	if pr.resolved.CompareAndSwap(false, true) {
		if pr.timer != nil {
			pr.timer.Stop()
		}
		pr.ch <- out
	}
}

func (m *Multiplexer) removeAndStop(id uint64, pr *pendingRequest) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
	if pr.resolved.CompareAndSwap(false, true) && pr.timer != nil {
		pr.timer.Stop()
	}
}

// HandleResponse is called by the dispatcher's inbound loop for every
// decoded Response. It resolves the matching pending entry, or logs (via
// slog.Default at debug level) and drops the response if no such entry
// exists (already resolved, or never ours).
func (m *Multiplexer) HandleResponse(resp *jsonrpc2.Response) {
	if resp.ID.IsString() {
		slog.Debug("client: dropping response with a string id", "id", resp.ID.String())
		return // locally generated ids are always numeric; a string-id
		// response can't match anything we sent.
	}
	m.mu.Lock()
	_, ok := m.pending[resp.ID.Number()]
	m.mu.Unlock()
	if !ok {
		slog.Debug("client: dropping response with no pending request", "id", resp.ID.Number())
		return
	}
	if resp.Err != nil {
		m.resolve(resp.ID.Number(), outcome{err: errFromRPC(resp.Err)})
		return
	}
	m.resolve(resp.ID.Number(), outcome{result: resp.Result})
}

// FailAll resolves every outstanding pending request with a Transport error
// wrapping cause, and clears the map. Called by the dispatcher when the
// inbound loop observes a fatal transport failure (EOF, unrecoverable parse
// error, retry exhaustion).
func (m *Multiplexer) FailAll(cause error) {
	m.mu.Lock()
	pending := m.pending
	m.pending = make(map[uint64]*pendingRequest)
	m.mu.Unlock()

	for _, pr := range pending {
		if pr.timer != nil {
			pr.timer.Stop()
		}
		if pr.resolved.CompareAndSwap(false, true) {
			pr.ch <- outcome{err: errTransport(cause)}
		}
	}
}

// Shutdown marks the multiplexer closed (new calls fail fast with
// NotConnected) and resolves every outstanding entry with Cancelled. A
// timer that fires after Shutdown has already torn down the map is a
// silent no-op, by the same map-presence check resolve always uses.
func (m *Multiplexer) Shutdown() {
	m.mu.Lock()
	m.closed = true
	pending := m.pending
	m.pending = make(map[uint64]*pendingRequest)
	m.mu.Unlock()

	for _, pr := range pending {
		if pr.timer != nil {
			pr.timer.Stop()
		}
		if pr.resolved.CompareAndSwap(false, true) {
			pr.ch <- outcome{err: errCancelled()}
		}
	}
}
