package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/modelcontext/runtime/internal/breaker"
	"github.com/modelcontext/runtime/internal/json"
	"github.com/modelcontext/runtime/internal/jsonrpc2"
	"github.com/modelcontext/runtime/protocol"
)

// decodeSentRequest waits for ft to have sent a message and decodes it as a
// request, failing the test if none arrives in time.
func decodeSentRequest(t *testing.T, ft *fakeTransport) *jsonrpc2.Request {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if raw := ft.lastSent(); raw != nil {
			msg, err := jsonrpc2.DecodeMessage(raw)
			if err != nil {
				t.Fatalf("decoding sent message: %v", err)
			}
			if msg.Request == nil {
				t.Fatalf("sent message is not a request: %s", raw)
			}
			return msg.Request
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no message was sent within the deadline")
	return nil
}

// decodeSentRequestAt waits for ft's from'th sent message to appear and
// decodes it as a request. Unlike decodeSentRequest, it is race-free when
// other messages (e.g. a notification) may have already been sent: it waits
// for a specific index rather than whatever happens to be last.
func decodeSentRequestAt(t *testing.T, ft *fakeTransport, from int) *jsonrpc2.Request {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if raw := ft.sentAt(from); raw != nil {
			msg, err := jsonrpc2.DecodeMessage(raw)
			if err != nil {
				t.Fatalf("decoding sent message: %v", err)
			}
			if msg.Request == nil {
				t.Fatalf("sent message at index %d is not a request: %s", from, raw)
			}
			return msg.Request
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no message was sent at index %d within the deadline", from)
	return nil
}

// waitForSentMessage waits for ft's idx'th sent message to appear and
// decodes it, regardless of which wire shape it takes.
func waitForSentMessage(t *testing.T, ft *fakeTransport, idx int) *jsonrpc2.Message {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if raw := ft.sentAt(idx); raw != nil {
			msg, err := jsonrpc2.DecodeMessage(raw)
			if err != nil {
				t.Fatalf("decoding sent message at index %d: %v", idx, err)
			}
			return msg
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no message was sent at index %d within the deadline", idx)
	return nil
}

func pushResult(t *testing.T, ft *fakeTransport, id jsonrpc2.ID, result any) {
	t.Helper()
	resp, err := protocol.NewResultResponse(id, result)
	if err != nil {
		t.Fatalf("building result response: %v", err)
	}
	encoded, err := jsonrpc2.EncodeMessage(&jsonrpc2.Message{Response: resp})
	if err != nil {
		t.Fatalf("encoding response: %v", err)
	}
	ft.push(encoded)
}

func pushRPCError(t *testing.T, ft *fakeTransport, id jsonrpc2.ID, code int, msg string) {
	t.Helper()
	resp := &jsonrpc2.Response{ID: id, Err: &jsonrpc2.WireError{Code: code, Message: msg}}
	encoded, err := jsonrpc2.EncodeMessage(&jsonrpc2.Message{Response: resp})
	if err != nil {
		t.Fatalf("encoding error response: %v", err)
	}
	ft.push(encoded)
}

func TestMultiplexer_CallSuccess(t *testing.T) {
	ft := newFakeTransport()
	ft.Start(context.Background())
	m := NewMultiplexer(ft, nil, nil, 5*time.Second)

	type reply struct {
		raw json.RawMessage
		err error
	}
	done := make(chan reply, 1)
	go func() {
		raw, err := m.Call(context.Background(), "tools/list", nil)
		done <- reply{raw, err}
	}()

	req := decodeSentRequest(t, ft)
	if req.Method != "tools/list" {
		t.Errorf("sent method = %q, want %q", req.Method, "tools/list")
	}
	pushResult(t, ft, req.ID, map[string]string{"ok": "yes"})

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Call() error = %v", r.err)
		}
		if string(r.raw) != `{"ok":"yes"}` {
			t.Errorf("Call() raw = %s", r.raw)
		}
	case <-time.After(time.Second):
		t.Fatal("Call() did not return in time")
	}
}

func TestMultiplexer_CallRPCError(t *testing.T) {
	ft := newFakeTransport()
	ft.Start(context.Background())
	m := NewMultiplexer(ft, nil, nil, 5*time.Second)

	done := make(chan error, 1)
	go func() {
		_, err := m.Call(context.Background(), "tools/call", nil)
		done <- err
	}()

	req := decodeSentRequest(t, ft)
	pushRPCError(t, ft, req.ID, jsonrpc2.CodeInvalidParams, "bad args")

	select {
	case err := <-done:
		var ce *Error
		if !errors.As(err, &ce) || ce.Code != CodeRpc {
			t.Fatalf("Call() error = %v, want *Error{Code: CodeRpc}", err)
		}
		if ce.RPC == nil || ce.RPC.Message != "bad args" {
			t.Errorf("Call() error RPC = %+v", ce.RPC)
		}
	case <-time.After(time.Second):
		t.Fatal("Call() did not return in time")
	}
}

func TestMultiplexer_CallTimeout(t *testing.T) {
	ft := newFakeTransport()
	ft.Start(context.Background())
	m := NewMultiplexer(ft, nil, nil, 20*time.Millisecond)

	_, err := m.Call(context.Background(), "ping", nil)
	var ce *Error
	if !errors.As(err, &ce) || ce.Code != CodeTimeout {
		t.Fatalf("Call() error = %v, want *Error{Code: CodeTimeout}", err)
	}
}

func TestMultiplexer_CallContextCancelled(t *testing.T) {
	ft := newFakeTransport()
	ft.Start(context.Background())
	m := NewMultiplexer(ft, nil, nil, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.Call(ctx, "ping", nil)
		done <- err
	}()

	decodeSentRequest(t, ft)
	cancel()

	select {
	case err := <-done:
		var ce *Error
		if !errors.As(err, &ce) || ce.Code != CodeCancelled {
			t.Fatalf("Call() error = %v, want *Error{Code: CodeCancelled}", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Call() did not return in time")
	}
}

func TestMultiplexer_NotConnected(t *testing.T) {
	ft := newFakeTransport() // never Start'd
	m := NewMultiplexer(ft, nil, nil, time.Second)

	_, err := m.Call(context.Background(), "ping", nil)
	var ce *Error
	if !errors.As(err, &ce) || ce.Code != CodeNotConnected {
		t.Fatalf("Call() error = %v, want *Error{Code: CodeNotConnected}", err)
	}
}

func TestMultiplexer_FailAll(t *testing.T) {
	ft := newFakeTransport()
	ft.Start(context.Background())
	m := NewMultiplexer(ft, nil, nil, 5*time.Second)

	done := make(chan error, 1)
	go func() {
		_, err := m.Call(context.Background(), "ping", nil)
		done <- err
	}()
	decodeSentRequest(t, ft)

	cause := errors.New("connection reset")
	m.FailAll(cause)

	select {
	case err := <-done:
		var ce *Error
		if !errors.As(err, &ce) || ce.Code != CodeTransport {
			t.Fatalf("Call() error = %v, want *Error{Code: CodeTransport}", err)
		}
		if !errors.Is(ce.Cause, cause) {
			t.Errorf("Call() error cause = %v, want %v", ce.Cause, cause)
		}
	case <-time.After(time.Second):
		t.Fatal("Call() did not return in time")
	}
}

func TestMultiplexer_Shutdown(t *testing.T) {
	ft := newFakeTransport()
	ft.Start(context.Background())
	m := NewMultiplexer(ft, nil, nil, 5*time.Second)

	done := make(chan error, 1)
	go func() {
		_, err := m.Call(context.Background(), "ping", nil)
		done <- err
	}()
	decodeSentRequest(t, ft)

	m.Shutdown()

	select {
	case err := <-done:
		var ce *Error
		if !errors.As(err, &ce) || ce.Code != CodeCancelled {
			t.Fatalf("Call() error = %v, want *Error{Code: CodeCancelled}", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Call() did not return in time")
	}

	if _, err := m.Call(context.Background(), "ping", nil); err == nil {
		t.Fatal("Call() after Shutdown: want error, got nil")
	}
}

func TestMultiplexer_RateLimiterRejectsOnCancel(t *testing.T) {
	ft := newFakeTransport()
	ft.Start(context.Background())
	limiter := rate.NewLimiter(0, 0) // never admits a request
	m := NewMultiplexer(ft, nil, limiter, 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.Call(ctx, "ping", nil)
	var ce *Error
	if !errors.As(err, &ce) || ce.Code != CodeCancelled {
		t.Fatalf("Call() error = %v, want *Error{Code: CodeCancelled}", err)
	}
	if ft.sentCount() != 0 {
		t.Errorf("sentCount = %d, want 0 (rate limiter should block before send)", ft.sentCount())
	}
}

func TestMultiplexer_CircuitBreakerOpen(t *testing.T) {
	ft := newFakeTransport()
	ft.Start(context.Background())
	br := breaker.New(breaker.DefaultConfig())
	br.ForceOpen()
	m := NewMultiplexer(ft, br, nil, 5*time.Second)

	_, err := m.Call(context.Background(), "ping", nil)
	var ce *Error
	if !errors.As(err, &ce) || ce.Code != CodeCircuitOpen {
		t.Fatalf("Call() error = %v, want *Error{Code: CodeCircuitOpen}", err)
	}
	if ft.sentCount() != 0 {
		t.Errorf("sentCount = %d, want 0 (breaker should reject before send)", ft.sentCount())
	}
}

func TestMultiplexer_Notify(t *testing.T) {
	ft := newFakeTransport()
	ft.Start(context.Background())
	m := NewMultiplexer(ft, nil, nil, time.Second)

	if err := m.Notify(context.Background(), "notifications/initialized", nil); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	raw := ft.lastSent()
	msg, err := jsonrpc2.DecodeMessage(raw)
	if err != nil {
		t.Fatalf("decoding sent notification: %v", err)
	}
	if msg.Notification == nil || msg.Notification.Method != "notifications/initialized" {
		t.Errorf("sent message = %+v, want a notifications/initialized notification", msg)
	}
}
