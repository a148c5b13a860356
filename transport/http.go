package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/modelcontext/runtime/internal/json"
	"github.com/modelcontext/runtime/internal/retry"
	"github.com/modelcontext/runtime/internal/session"
)

const (
	headerSessionID    = "Session-Id"
	headerLastEventID  = "Last-Event-Id"
	headerContentType  = "Content-Type"
	headerAccept       = "Accept"
	headerRetryAfter   = "Retry-After"
	mimeJSON           = "application/json"
	mimeEventStream    = "text/event-stream"
	acceptJSONAndEvent = "application/json, text/event-stream"
)

// HTTPConfig configures a Streamable HTTP Transport.
type HTTPConfig struct {
	// URL is the single endpoint every POST and GET targets.
	URL string

	// Client performs the requests. If nil, http.DefaultClient is used.
	Client *http.Client

	// Headers are sent with every outbound request, in addition to the
	// Session-Id and Last-Event-Id headers the transport manages itself.
	Headers map[string]string

	// EnableServerStream opens a long-lived GET for server-initiated
	// messages when Start is called, independent of POST responses.
	EnableServerStream bool

	// ReconnectDelay is not read by HTTPTransport: the delay before
	// re-opening the server stream comes from Backoff, as for POST retries.
	ReconnectDelay time.Duration

	// MaxMessageSize bounds a single SSE event's data or JSON response
	// body. 0 = DefaultMaxMessageBytes, <0 = unlimited.
	MaxMessageSize int64

	// Policy governs which failures are retried and how many times.
	Policy *retry.Policy

	// Backoff computes the delay between retries. Defaults to
	// retry.DefaultExponential().
	Backoff retry.Backoff

	// Session configures the underlying session.Manager. Defaults to
	// session.DefaultConfig().
	Session session.Config

	// Observer, if set, is notified of session establishment and loss.
	Observer StateObserver
}

// HTTPTransport carries the Protocol over a single Streamable HTTP
// endpoint: POST for outbound messages, with responses classified as a
// JSON body, an SSE stream, a 202 Accepted acknowledgment, or an error
// status; and an optional long-lived GET for server-initiated messages.
type HTTPTransport struct {
	cfg    HTTPConfig
	client *http.Client
	policy *retry.Policy
	boff   retry.Backoff

	session *session.Manager

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	reinitMu sync.RWMutex
	reinit   func(ctx context.Context) error

	incoming chan json.RawMessage
	fatal    chan error
}

// SetReinitializeHook registers the callback Send uses to recover from a
// 404-after-established-session: re-running the initialize handshake so the
// failed request can be retried against the new session. The client facade
// wires this to its own Initialize once both it and the transport exist,
// since only the facade knows how to shape an initialize call. Without a
// hook registered, a session-expired 404 surfaces directly as a Transport
// error (no automatic recovery), matching spec.md §9's note that this is
// the facade's responsibility, not the transport's alone.
func (t *HTTPTransport) SetReinitializeHook(f func(ctx context.Context) error) {
	t.reinitMu.Lock()
	defer t.reinitMu.Unlock()
	t.reinit = f
}

func (t *HTTPTransport) reinitializeHook() func(ctx context.Context) error {
	t.reinitMu.RLock()
	defer t.reinitMu.RUnlock()
	return t.reinit
}

// NewHTTPTransport constructs an HTTPTransport. Start must be called
// before Send/Receive.
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	policy := cfg.Policy
	if policy == nil {
		policy = retry.DefaultPolicy()
	}
	boff := cfg.Backoff
	if boff == nil {
		boff = retry.DefaultExponential()
	}
	sessCfg := cfg.Session
	if sessCfg == (session.Config{}) {
		sessCfg = session.DefaultConfig()
	}
	t := &HTTPTransport{
		cfg:      cfg,
		client:   client,
		policy:   policy,
		boff:     boff,
		session:  session.NewManager(sessCfg),
		incoming: make(chan json.RawMessage, 64),
		fatal:    make(chan error, 1),
	}
	t.session.OnSessionEstablished(func(id string) {
		if cfg.Observer != nil {
			cfg.Observer.OnSessionEstablished(id)
		}
	})
	t.session.OnSessionLost(func(reason string) {
		if cfg.Observer != nil {
			cfg.Observer.OnSessionLost(reason)
		}
	})
	return t
}

func (t *HTTPTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return &Error{Op: "start", Err: fmt.Errorf("already running")}
	}
	runCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.running = true
	t.session.BeginConnect()

	if t.cfg.EnableServerStream {
		t.wg.Add(1)
		go t.serverStreamLoop(runCtx)
	}
	return nil
}

func (t *HTTPTransport) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *HTTPTransport) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	cancel := t.cancel
	sessionID, haveSession := t.session.SessionID()
	t.mu.Unlock()

	t.session.BeginClose()
	if cancel != nil {
		cancel()
	}
	t.wg.Wait()

	if haveSession {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, t.cfg.URL, nil)
		if err == nil {
			t.applyDefaultHeaders(req)
			req.Header.Set(headerSessionID, sessionID)
			if resp, err := t.client.Do(req); err == nil {
				resp.Body.Close()
			}
		}
	}
	t.session.CloseComplete()
	return nil
}

func (t *HTTPTransport) applyDefaultHeaders(req *http.Request) {
	for k, v := range t.cfg.Headers {
		req.Header.Set(k, v)
	}
}

// Send POSTs msg to the configured endpoint and classifies the response per
// the Streamable HTTP contract: a JSON body or SSE stream is decoded into
// the incoming queue, a 202 is a bare acknowledgment, a 404 after a session
// was established means the session expired, and any other non-2xx status
// is surfaced as a Transport error with its code attached. Connection
// failures and retryable HTTP statuses (per cfg.Policy) are retried with
// cfg.Backoff, honoring a Retry-After response header in place of the
// computed delay for that attempt (spec.md §4.4/§7).
func (t *HTTPTransport) Send(ctx context.Context, msg json.RawMessage) error {
	return t.send(ctx, msg, true)
}

// send is Send's implementation. recoverSession is false on the one retry
// issued after a successful session re-establishment, so a 404 that recurs
// immediately after reinitializing surfaces as an error instead of looping.
func (t *HTTPTransport) send(ctx context.Context, msg json.RawMessage, recoverSession bool) error {
	if !t.IsRunning() {
		return ErrClosed
	}

	for attempt := 0; ; attempt++ {
		resp, haveSession, err := t.postOnce(ctx, msg)
		if err != nil {
			kind, _ := retry.ClassifyError(err)
			if !t.policy.ShouldRetry(kind, attempt) {
				return &Error{Op: "send", Err: err}
			}
			if !t.awaitRetryDelay(ctx, "", attempt) {
				return &Error{Op: "send", Err: ctx.Err()}
			}
			continue
		}

		if resp.StatusCode == http.StatusNotFound && haveSession {
			resp.Body.Close()
			t.session.SessionExpired()
			hook := t.reinitializeHook()
			if !recoverSession || hook == nil {
				return &Error{Op: "send", StatusCode: resp.StatusCode, Err: fmt.Errorf("session expired")}
			}
			if err := hook(ctx); err != nil {
				t.session.ConnectionFailed(err.Error())
				return &Error{Op: "send", StatusCode: resp.StatusCode, Err: fmt.Errorf("session expired, reinitialize failed: %w", err)}
			}
			return t.send(ctx, msg, false)
		}

		if resp.StatusCode == http.StatusAccepted {
			resp.Body.Close()
			return nil
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			retryAfter := resp.Header.Get(headerRetryAfter)
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			if t.policy.ShouldRetryHTTPStatus(resp.StatusCode) && t.policy.ShouldRetry(retry.KindHTTPStatus, attempt) {
				if !t.awaitRetryDelay(ctx, retryAfter, attempt) {
					return &Error{Op: "send", StatusCode: resp.StatusCode, Err: ctx.Err()}
				}
				continue
			}
			return &Error{Op: "send", StatusCode: resp.StatusCode, RetryAfter: retryAfter, Err: fmt.Errorf("%s", strings.TrimSpace(string(body)))}
		}

		if newID := resp.Header.Get(headerSessionID); newID != "" && !haveSession {
			t.session.ConnectionEstablished(newID)
		}

		ct := resp.Header.Get(headerContentType)
		switch {
		case strings.HasPrefix(ct, mimeEventStream):
			err := t.consumeSSE(resp.Body)
			resp.Body.Close()
			return err
		case strings.HasPrefix(ct, mimeJSON):
			limit := effectiveMaxMessageBytes(t.cfg.MaxMessageSize)
			var r io.Reader = resp.Body
			if limit > 0 {
				r = io.LimitReader(resp.Body, limit+1)
			}
			body, err := io.ReadAll(r)
			resp.Body.Close()
			if err != nil {
				return &Error{Op: "send", Err: err}
			}
			if limit > 0 && int64(len(body)) > limit {
				return &Error{Op: "send", Err: fmt.Errorf("transport: message exceeds max size %d bytes", limit)}
			}
			t.deliver(json.RawMessage(body))
			return nil
		default:
			// No body worth parsing (e.g. a bare 200 with Content-Length: 0).
			resp.Body.Close()
			return nil
		}
	}
}

// postOnce issues a single POST attempt for msg, reporting whether a
// session id was attached to the outbound request.
func (t *HTTPTransport) postOnce(ctx context.Context, msg json.RawMessage) (*http.Response, bool, error) {
	sessionID, haveSession := t.session.SessionID()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL, bytes.NewReader(msg))
	if err != nil {
		return nil, haveSession, err
	}
	t.applyDefaultHeaders(req)
	req.Header.Set(headerContentType, mimeJSON)
	req.Header.Set(headerAccept, acceptJSONAndEvent)
	if haveSession {
		req.Header.Set(headerSessionID, sessionID)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, haveSession, err
	}
	return resp, haveSession, nil
}

// awaitRetryDelay blocks for the next attempt's backoff delay, overridden by
// retryAfterHeader when it parses as a valid Retry-After value. Returns
// false if ctx is cancelled first.
func (t *HTTPTransport) awaitRetryDelay(ctx context.Context, retryAfterHeader string, attempt int) bool {
	delay := t.boff.Next(attempt)
	if retryAfterHeader != "" {
		if d, ok := retry.RetryAfter(retryAfterHeader, time.Now()); ok {
			delay = d
		}
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

func (t *HTTPTransport) consumeSSE(body io.Reader) error {
	limit := effectiveMaxMessageBytes(t.cfg.MaxMessageSize)
	return scanSSE(body, func(ev sseEvent) error {
		if ev.ID != "" {
			t.session.RecordEventID(ev.ID)
		}
		if ev.Data == "" {
			return nil
		}
		if limit > 0 && int64(len(ev.Data)) > limit {
			return fmt.Errorf("transport: message exceeds max size %d bytes", limit)
		}
		t.deliver(json.RawMessage(ev.Data))
		return nil
	})
}

func (t *HTTPTransport) deliver(msg json.RawMessage) {
	select {
	case t.incoming <- msg:
	default:
		// Queue is saturated; drop the oldest rather than block the
		// caller indefinitely, and make room for the newest message.
		select {
		case <-t.incoming:
		default:
		}
		t.incoming <- msg
	}
}

func (t *HTTPTransport) Receive(ctx context.Context) (json.RawMessage, error) {
	select {
	case msg := <-t.incoming:
		return msg, nil
	case err := <-t.fatal:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// serverStreamLoop maintains the optional long-lived GET carrying
// server-initiated messages, reconnecting with backoff and resuming from
// the last seen event id after the stream closes or errors.
func (t *HTTPTransport) serverStreamLoop(ctx context.Context) {
	defer t.wg.Done()

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sessionID, haveSession := t.session.SessionID()
		if !haveSession {
			select {
			case <-ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		err := t.performHangingGet(ctx, sessionID)
		if err == nil {
			attempt = 0
			continue
		}
		if ctx.Err() != nil {
			return
		}

		kind, retryable := retry.ClassifyError(err)
		var httpErr *Error
		if asError(err, &httpErr) && httpErr.StatusCode != 0 {
			retryable = t.policy.ShouldRetryHTTPStatus(httpErr.StatusCode)
		}
		if !t.policy.ShouldRetry(kind, attempt) && !retryable {
			select {
			case t.fatal <- &Error{Op: "receive", Err: err}:
			default:
			}
			return
		}

		retryAfter := ""
		if httpErr != nil {
			retryAfter = httpErr.RetryAfter
		}
		if !t.awaitRetryDelay(ctx, retryAfter, attempt) {
			return
		}
		attempt++
	}
}

func (t *HTTPTransport) performHangingGet(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cfg.URL, nil)
	if err != nil {
		return &Error{Op: "receive", Err: err}
	}
	t.applyDefaultHeaders(req)
	req.Header.Set(headerAccept, mimeEventStream)
	req.Header.Set(headerSessionID, sessionID)
	if lastID, ok := t.session.LastEventID(); ok {
		req.Header.Set(headerLastEventID, lastID)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return &Error{Op: "receive", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		t.session.SessionExpired()
		return &Error{Op: "receive", StatusCode: resp.StatusCode, Err: fmt.Errorf("session expired")}
	}
	if resp.StatusCode != http.StatusOK {
		retryAfter := resp.Header.Get(headerRetryAfter)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &Error{Op: "receive", StatusCode: resp.StatusCode, RetryAfter: retryAfter, Err: fmt.Errorf("%s", strings.TrimSpace(string(body)))}
	}
	return t.consumeSSE(resp.Body)
}

// asError is a small errors.As wrapper kept local so callers need not
// import errors just to narrow a *transport.Error out of a retry-classified
// failure.
func asError(err error, target **Error) bool {
	for err != nil {
		if te, ok := err.(*Error); ok {
			*target = te
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
