package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/modelcontext/runtime/internal/json"
	"github.com/modelcontext/runtime/internal/jsonrpc2"
	"github.com/modelcontext/runtime/protocol"
	"github.com/modelcontext/runtime/transport"
)

// Observers holds the optional callbacks the dispatcher invokes for inbound
// notifications it doesn't need a reply to. Every field is optional; a nil
// observer means "nobody cares about this notification kind".
type Observers struct {
	ToolsListChanged     func()
	ResourcesListChanged func()
	PromptsListChanged   func()
	RootsListChanged     func()
	ResourceUpdated      func(uri string)
	LogMessage           func(protocol.LoggingMessageParams)
	Progress             func(protocol.ProgressParams)
	ElicitationComplete  func(elicitationID string)
	// Notification is the catch-all for any notification method this
	// dispatcher doesn't special-case.
	Notification func(method string, params json.RawMessage)
}

// dispatcher owns the single inbound task that repeatedly calls
// transport.Receive, classifies each message, and either resolves a pending
// request (component F), routes a notification to an observer, or dispatches
// a server-initiated request to a capability handler with a bounded timeout.
type dispatcher struct {
	t              transport.Transport
	mux            *Multiplexer
	handlers       Handlers
	observers      Observers
	handlerTimeout time.Duration
	logger         *slog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc

	onFatal func(error)
}

func newDispatcher(t transport.Transport, mux *Multiplexer, handlers Handlers, observers Observers, handlerTimeout time.Duration, logger *slog.Logger) *dispatcher {
	return &dispatcher{
		t:              t,
		mux:            mux,
		handlers:       handlers,
		observers:      observers,
		handlerTimeout: handlerTimeout,
		logger:         logger,
	}
}

// start launches the inbound loop as a background goroutine. onFatal is
// called (once) if the loop exits because transport.Receive returned a
// non-cancellation error; the caller (Client) uses it to drive session
// teardown.
func (d *dispatcher) start(ctx context.Context, onFatal func(error)) {
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.onFatal = onFatal
	d.wg.Add(1)
	go d.loop(runCtx)
}

func (d *dispatcher) stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

func (d *dispatcher) loop(ctx context.Context) {
	defer d.wg.Done()
	for {
		raw, err := d.t.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return // clean shutdown, not a fatal transport failure
			}
			d.mux.FailAll(err)
			if d.onFatal != nil {
				d.onFatal(err)
			}
			return
		}
		d.handleMessage(ctx, raw)
	}
}

// handleMessage classifies one decoded inbound value. A malformed message
// is logged and dropped, never treated as fatal: spec.md §7 requires the
// transport to stay open across a single bad frame.
func (d *dispatcher) handleMessage(ctx context.Context, raw json.RawMessage) {
	msg, err := jsonrpc2.DecodeMessage(raw)
	if err != nil {
		d.log("malformed inbound message", "error", err)
		return
	}
	switch {
	case msg.Response != nil:
		d.mux.HandleResponse(msg.Response)
	case msg.Notification != nil:
		d.handleNotification(msg.Notification)
	case msg.Request != nil:
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.handleRequest(ctx, msg.Request)
		}()
	}
}

func (d *dispatcher) handleNotification(n *jsonrpc2.Notification) {
	switch n.Method {
	case protocol.NotificationToolsListChanged:
		d.call(d.observers.ToolsListChanged)
	case protocol.NotificationResourcesListChanged:
		d.call(d.observers.ResourcesListChanged)
	case protocol.NotificationPromptsListChanged:
		d.call(d.observers.PromptsListChanged)
	case protocol.NotificationRootsListChanged:
		d.call(d.observers.RootsListChanged)
	case protocol.NotificationResourcesUpdated:
		if d.observers.ResourceUpdated == nil {
			return
		}
		var p protocol.ResourceUpdatedNotification
		if err := protocol.DecodeParams(n.Params, &p); err != nil {
			d.log("decoding resource updated notification", "error", err)
			return
		}
		d.observers.ResourceUpdated(p.URI)
	case protocol.NotificationLoggingMessage:
		if d.observers.LogMessage == nil {
			return
		}
		var p protocol.LoggingMessageParams
		if err := protocol.DecodeParams(n.Params, &p); err != nil {
			d.log("decoding log message notification", "error", err)
			return
		}
		d.observers.LogMessage(p)
	case protocol.NotificationProgress:
		if d.observers.Progress == nil {
			return
		}
		var p protocol.ProgressParams
		if err := protocol.DecodeParams(n.Params, &p); err != nil {
			d.log("decoding progress notification", "error", err)
			return
		}
		d.observers.Progress(p)
	case protocol.NotificationElicitationComplete:
		if d.observers.ElicitationComplete == nil {
			return
		}
		var p protocol.ElicitationCompleteParams
		if err := protocol.DecodeParams(n.Params, &p); err != nil {
			d.log("decoding elicitation complete notification", "error", err)
			return
		}
		d.observers.ElicitationComplete(p.ElicitationID)
	default:
		if d.observers.Notification != nil {
			d.observers.Notification(n.Method, n.Params)
		}
	}
}

func (d *dispatcher) call(f func()) {
	if f != nil {
		f()
	}
}

// handleRequest dispatches a server-initiated request to the matching
// capability handler, enforces the handler timeout, and sends exactly one
// response keyed by the same id — even on timeout, where a later handler
// completion is simply dropped.
func (d *dispatcher) handleRequest(ctx context.Context, req *jsonrpc2.Request) {
	hctx, cancel := context.WithTimeout(ctx, d.handlerTimeout)
	defer cancel()

	type result struct {
		resp *jsonrpc2.Response
	}
	done := make(chan result, 1)

	go func() {
		done <- result{resp: d.invokeHandler(hctx, req)}
	}()

	var resp *jsonrpc2.Response
	select {
	case r := <-done:
		resp = r.resp
	case <-hctx.Done():
		resp, _ = protocol.NewErrorResponse(req.ID, jsonrpc2.CodeInternalError, "handler timed out", nil)
		d.log("handler timed out", "method", req.Method)
	}

	encoded, err := jsonrpc2.EncodeMessage(&jsonrpc2.Message{Response: resp})
	if err != nil {
		d.log("encoding response", "method", req.Method, "error", err)
		return
	}
	if err := d.t.Send(ctx, encoded); err != nil {
		d.log("sending response", "method", req.Method, "error", err)
	}
}

// invokeHandler runs the registered handler for req.Method synchronously
// (from handleRequest's goroutine) and builds the wire response. A handler
// error becomes an RPC error response; "declines" (nil, nil with no result)
// become a protocol error response, per spec.md §4.7.
func (d *dispatcher) invokeHandler(ctx context.Context, req *jsonrpc2.Request) *jsonrpc2.Response {
	switch req.Method {
	case protocol.MethodElicitationCreate:
		return d.handleElicit(ctx, req)
	case protocol.MethodSamplingCreateMessage:
		return d.handleSampling(ctx, req)
	case protocol.MethodRootsList:
		return d.handleRootsList(ctx, req)
	default:
		resp, _ := protocol.NewErrorResponse(req.ID, jsonrpc2.CodeMethodNotFound, "method not found: "+req.Method, nil)
		return resp
	}
}

func (d *dispatcher) handleElicit(ctx context.Context, req *jsonrpc2.Request) *jsonrpc2.Response {
	h := d.handlers.elicitation()
	var params protocol.ElicitParams
	if err := protocol.DecodeParams(req.Params, &params); err != nil {
		resp, _ := protocol.NewErrorResponse(req.ID, jsonrpc2.CodeInvalidParams, err.Error(), nil)
		return resp
	}
	if declined, ok := secureElicitParams(&params, d.handlers.RequireHTTPSElicitationURLs); !ok {
		resp, _ := protocol.NewResultResponse(req.ID, declined)
		return resp
	}
	if h == nil {
		resp, _ := protocol.NewErrorResponse(req.ID, jsonrpc2.CodeMethodNotFound, "no elicitation handler registered", nil)
		return resp
	}
	result, err := h.HandleElicit(ctx, &params)
	if err != nil {
		resp, _ := protocol.NewErrorResponse(req.ID, jsonrpc2.CodeInternalError, err.Error(), nil)
		return resp
	}
	if result == nil {
		resp, _ := protocol.NewErrorResponse(req.ID, jsonrpc2.CodeInternalError, "elicitation handler declined without a result", nil)
		return resp
	}
	resp, _ := protocol.NewResultResponse(req.ID, result)
	return resp
}

func (d *dispatcher) handleSampling(ctx context.Context, req *jsonrpc2.Request) *jsonrpc2.Response {
	h := d.handlers.sampling()
	if h == nil {
		resp, _ := protocol.NewErrorResponse(req.ID, jsonrpc2.CodeMethodNotFound, "no sampling handler registered", nil)
		return resp
	}
	var params protocol.CreateMessageParams
	if err := protocol.DecodeParams(req.Params, &params); err != nil {
		resp, _ := protocol.NewErrorResponse(req.ID, jsonrpc2.CodeInvalidParams, err.Error(), nil)
		return resp
	}
	result, err := h.HandleCreateMessage(ctx, &params)
	if err != nil {
		resp, _ := protocol.NewErrorResponse(req.ID, jsonrpc2.CodeInternalError, err.Error(), nil)
		return resp
	}
	if result == nil {
		resp, _ := protocol.NewErrorResponse(req.ID, jsonrpc2.CodeInternalError, "sampling handler declined without a result", nil)
		return resp
	}
	resp, _ := protocol.NewResultResponse(req.ID, result)
	return resp
}

func (d *dispatcher) handleRootsList(ctx context.Context, req *jsonrpc2.Request) *jsonrpc2.Response {
	h := d.handlers.roots()
	if h == nil {
		resp, _ := protocol.NewErrorResponse(req.ID, jsonrpc2.CodeMethodNotFound, "no roots handler registered", nil)
		return resp
	}
	result, err := h.HandleRootsList(ctx)
	if err != nil {
		resp, _ := protocol.NewErrorResponse(req.ID, jsonrpc2.CodeInternalError, err.Error(), nil)
		return resp
	}
	if result == nil {
		resp, _ := protocol.NewErrorResponse(req.ID, jsonrpc2.CodeInternalError, "roots handler declined without a result", nil)
		return resp
	}
	resp, _ := protocol.NewResultResponse(req.ID, result)
	return resp
}

func (d *dispatcher) log(msg string, args ...any) {
	if d.logger == nil {
		return
	}
	d.logger.Warn(msg, args...)
}
