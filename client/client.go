package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/modelcontext/runtime/internal/breaker"
	"github.com/modelcontext/runtime/internal/json"
	"github.com/modelcontext/runtime/internal/mcpgodebug"
	"github.com/modelcontext/runtime/protocol"
	"github.com/modelcontext/runtime/transport"
)

// Config controls the behavior of a Client. It follows the teacher's
// *Options-struct convention (e.g. StreamableClientTransportOptions): a
// plain struct with documented zero-value defaults, filled in by normalize,
// rather than a builder or flag-driven system.
type Config struct {
	// ClientName and ClientVersion identify this client during initialize.
	ClientName    string
	ClientVersion string

	// RequestTimeout bounds every outbound request. Default 30s.
	RequestTimeout time.Duration
	// HandlerTimeout bounds every inbound server-initiated request's
	// handler invocation. Default 60s.
	HandlerTimeout time.Duration

	// DisableAutoInitialize suppresses the `initialize`/`initialized`
	// handshake Connect otherwise performs automatically. When set, Connect
	// only starts the transport and every operation that requires
	// initialization returns NotInitialized until the caller calls
	// Initialize explicitly. Default false: Connect auto-initializes.
	DisableAutoInitialize bool

	// DisableCircuitBreaker stops outbound requests from being wrapped in a
	// circuit breaker. Default false: the breaker is on.
	DisableCircuitBreaker bool
	Breaker               breaker.Config

	// RateLimiter, if set, gates outbound requests before the circuit
	// breaker is consulted (admission order: rate limiter, breaker,
	// transport send).
	RateLimiter *rate.Limiter

	// Capabilities overrides the capabilities advertised during
	// initialize. If nil, capabilities are derived from which handlers in
	// Handlers are set.
	Capabilities *protocol.ClientCapabilities

	Handlers  Handlers
	Observers Observers

	// Logger receives diagnostic output (malformed inbound messages,
	// handler timeouts, response send failures). Defaults to slog.Default().
	Logger *slog.Logger
}

func (c Config) normalize() Config {
	if c.ClientName == "" {
		c.ClientName = "mcp-client"
	}
	if c.ClientVersion == "" {
		c.ClientVersion = "0.0.0"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.HandlerTimeout == 0 {
		c.HandlerTimeout = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Client is the public facade: it owns the transport, session lifecycle,
// multiplexer, and handler registry (components B+C+E+F+G), and exposes the
// typed operations of spec.md §6's capability table plus the operations
// SPEC_FULL recovers from original_source's AsyncMcpClient.
type Client struct {
	cfg     Config
	t       transport.Transport
	mux     *Multiplexer
	disp    *dispatcher
	breaker *breaker.Breaker
	cache   *schemaCache

	mu          sync.Mutex
	running     bool
	initialized bool
	serverInfo  protocol.Implementation
	serverCaps  protocol.ServerCapabilities
}

// New constructs a Client over t. Connect must be called before any other
// operation.
func New(t transport.Transport, cfg Config) *Client {
	cfg = cfg.normalize()

	enableBreaker := !cfg.DisableCircuitBreaker
	if v, set := mcpgodebug.Bool("breaker"); set {
		enableBreaker = v
		cfg.Logger.Debug("client: circuit breaker overridden by MCPRUNTIMEDEBUG", "enabled", v)
	}

	var br *breaker.Breaker
	if enableBreaker {
		bc := cfg.Breaker
		if bc.MaxFailures == 0 {
			bc = breaker.DefaultConfig()
		}
		br = breaker.New(bc)
	}

	mux := NewMultiplexer(t, br, cfg.RateLimiter, cfg.RequestTimeout)
	disp := newDispatcher(t, mux, cfg.Handlers, cfg.Observers, cfg.HandlerTimeout, cfg.Logger)

	c := &Client{
		cfg:     cfg,
		t:       t,
		mux:     mux,
		disp:    disp,
		breaker: br,
		cache:   newSchemaCache(),
	}

	// Wire the HTTP transport's session-expiry recovery (spec.md §8
	// scenario 2: a 404 after an established session transitions to
	// Reconnecting, re-runs initialize, and retries the original request)
	// to this Client's own Initialize, since only the facade knows how to
	// shape that handshake. The process transport has no notion of
	// sessions and ignores this hook entirely.
	if ht, ok := t.(*transport.HTTPTransport); ok {
		ht.SetReinitializeHook(c.reinitializeSession)
	}

	return c
}

// reinitializeSession re-runs the initialize/initialized handshake after
// the transport observes the server-side session has expired. It is
// invoked from inside the transport's Send, underneath an in-flight
// request's own Call, so it must not assume c.mu is free of other
// concurrent callers — Initialize only touches c.mu for the brief
// result-recording critical section shared with every other operation.
func (c *Client) reinitializeSession(ctx context.Context) error {
	return c.Initialize(ctx)
}

// Breaker exposes the underlying circuit breaker for stats inspection and
// admin overrides (ForceOpen/ForceClosed/Reset), or nil if the breaker was
// disabled (Config.DisableCircuitBreaker, or MCPRUNTIMEDEBUG=breaker=0).
func (c *Client) Breaker() *breaker.Breaker { return c.breaker }

// ServerInfo and ServerCapabilities return what the peer advertised during
// initialize. Both are zero until initialization completes.
func (c *Client) ServerInfo() protocol.Implementation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

func (c *Client) ServerCapabilities() protocol.ServerCapabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverCaps
}

func (c *Client) IsInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// Connect starts the transport and, unless Config.DisableAutoInitialize is
// set, performs the initialize/initialized handshake. It corresponds to
// spec.md §4.7's connect/initialize sequence.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.t.Start(ctx); err != nil {
		return errTransport(err)
	}
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()

	c.disp.start(ctx, c.onFatalTransportError)

	if c.cfg.DisableAutoInitialize {
		return nil
	}
	return c.Initialize(ctx)
}

func (c *Client) onFatalTransportError(err error) {
	c.mu.Lock()
	c.running = false
	c.initialized = false
	c.mu.Unlock()
	c.cfg.Logger.Error("transport failed, client disconnected", "error", err)
}

// Initialize performs the initialize/initialized handshake explicitly. Call
// it after Connect when Config.DisableAutoInitialize is set. Calling it
// twice is harmless but re-sends the handshake.
func (c *Client) Initialize(ctx context.Context) error {
	caps := c.capabilities()
	params := protocol.InitializeParams{
		ProtocolVersion: protocol.Version,
		Capabilities:    caps,
		ClientInfo: protocol.Implementation{
			Name:    c.cfg.ClientName,
			Version: c.cfg.ClientVersion,
		},
	}
	raw, err := c.mux.Call(ctx, protocol.MethodInitialize, params)
	if err != nil {
		return err
	}
	var result protocol.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return errProtocol("decoding initialize result: " + err.Error())
	}

	c.mu.Lock()
	c.serverInfo = result.ServerInfo
	c.serverCaps = result.Capabilities
	c.initialized = true
	c.mu.Unlock()

	return c.mux.Notify(ctx, protocol.NotificationInitialized, nil)
}

func (c *Client) capabilities() protocol.ClientCapabilities {
	if c.cfg.Capabilities != nil {
		return *c.cfg.Capabilities
	}
	var caps protocol.ClientCapabilities
	h := c.cfg.Handlers
	if h.roots() != nil {
		caps.Roots = &protocol.RootsCapability{ListChanged: true}
	}
	if h.sampling() != nil {
		caps.Sampling = &protocol.SamplingCapability{}
	}
	if h.elicitation() != nil {
		caps.Elicitation = &protocol.ElicitationCapability{Form: true, URL: true}
	}
	return caps
}

// Disconnect transitions the session to Closing, stops the inbound
// dispatcher, releases the transport, and resolves any outstanding pending
// requests with Cancelled. Safe to call even with pending requests or timers
// in flight.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	c.running = false
	c.initialized = false
	c.mu.Unlock()

	c.disp.stop()
	c.mux.Shutdown()
	if err := c.t.Stop(ctx); err != nil {
		return errTransport(err)
	}
	return nil
}

func (c *Client) ready(requireInit bool) error {
	c.mu.Lock()
	running := c.running
	initialized := c.initialized
	c.mu.Unlock()
	if !running || !c.t.IsRunning() {
		return errNotConnected()
	}
	if requireInit && !initialized {
		return errNotInitialized()
	}
	return nil
}

// call is the shared helper behind every typed operation: precondition
// check, request, and decode into out (skipped if out is nil).
func (c *Client) call(ctx context.Context, method string, requireInit bool, params, out any) error {
	if err := c.ready(requireInit); err != nil {
		return err
	}
	raw, err := c.mux.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errProtocol("decoding " + method + " result: " + err.Error())
	}
	return nil
}

// Ping round-trips a ping request. The result is accepted and ignored even
// if a server returns an arbitrary payload rather than an empty object
// (spec.md §9's open question).
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, protocol.MethodPing, false, nil, &protocol.PingResult{})
}

func (c *Client) ListTools(ctx context.Context, cursor string) (*protocol.ListToolsResult, error) {
	var result protocol.ListToolsResult
	params := protocol.ListToolsParams{Cursor: cursor}
	if err := c.call(ctx, protocol.MethodToolsList, true, params, &result); err != nil {
		return nil, err
	}
	schemas := make([]toolSchema, len(result.Tools))
	for i, t := range result.Tools {
		schemas[i] = toolSchema{name: t.Name, inputSchema: t.InputSchema}
	}
	c.cache.populate(schemas)
	return &result, nil
}

// CallTool invokes a tool. If ListTools has previously cached the tool's
// input schema, arguments are validated against it before the request is
// sent; a mismatch is reported as a Protocol error without a round trip.
func (c *Client) CallTool(ctx context.Context, name string, arguments any) (*protocol.CallToolResult, error) {
	argsRaw, err := json.Marshal(arguments)
	if err != nil {
		return nil, errProtocol("encoding tool arguments: " + err.Error())
	}
	if arguments == nil {
		argsRaw = nil
	}
	if err := c.cache.validateArguments(name, argsRaw); err != nil {
		return nil, errProtocol(err.Error())
	}

	params := protocol.CallToolParams{Name: name, Arguments: argsRaw}
	var result protocol.CallToolResult
	if err := c.call(ctx, protocol.MethodToolsCall, true, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ListResources(ctx context.Context, cursor string) (*protocol.ListResourcesResult, error) {
	var result protocol.ListResourcesResult
	params := protocol.ListResourcesParams{Cursor: cursor}
	if err := c.call(ctx, protocol.MethodResourcesList, true, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ReadResource(ctx context.Context, uri string) (*protocol.ReadResourceResult, error) {
	var result protocol.ReadResourceResult
	params := protocol.ReadResourceParams{URI: uri}
	if err := c.call(ctx, protocol.MethodResourcesRead, true, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) SubscribeResource(ctx context.Context, uri string) error {
	params := protocol.SubscribeResourceParams{URI: uri}
	return c.call(ctx, protocol.MethodResourcesSubscribe, true, params, nil)
}

func (c *Client) UnsubscribeResource(ctx context.Context, uri string) error {
	params := protocol.UnsubscribeResourceParams{URI: uri}
	return c.call(ctx, protocol.MethodResourcesUnsubscribe, true, params, nil)
}

func (c *Client) ListResourceTemplates(ctx context.Context, cursor string) (*protocol.ListResourceTemplatesResult, error) {
	var result protocol.ListResourceTemplatesResult
	params := protocol.ListResourceTemplatesParams{Cursor: cursor}
	if err := c.call(ctx, protocol.MethodResourcesTemplatesList, true, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ListPrompts(ctx context.Context, cursor string) (*protocol.ListPromptsResult, error) {
	var result protocol.ListPromptsResult
	params := protocol.ListPromptsParams{Cursor: cursor}
	if err := c.call(ctx, protocol.MethodPromptsList, true, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetPrompt(ctx context.Context, name string, arguments map[string]string) (*protocol.GetPromptResult, error) {
	var result protocol.GetPromptResult
	params := protocol.GetPromptParams{Name: name, Arguments: arguments}
	if err := c.call(ctx, protocol.MethodPromptsGet, true, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Complete requests a completion against either a prompt argument or a
// resource template variable, selected by params.Ref.Type ("ref/prompt" or
// "ref/resource").
func (c *Client) Complete(ctx context.Context, params protocol.CompleteParams) (*protocol.CompleteResult, error) {
	var result protocol.CompleteResult
	if err := c.call(ctx, protocol.MethodComplete, true, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) SetLoggingLevel(ctx context.Context, level protocol.LoggingLevel) error {
	params := protocol.SetLoggingLevelParams{Level: level}
	return c.call(ctx, protocol.MethodLoggingSetLevel, true, params, nil)
}

// NotifyRootsChanged tells the server this client's exposed roots changed,
// prompting it to re-issue roots/list if it cares.
func (c *Client) NotifyRootsChanged(ctx context.Context) error {
	if err := c.ready(true); err != nil {
		return err
	}
	return c.mux.Notify(ctx, protocol.NotificationRootsListChanged, nil)
}

// CancelRequest cancels an in-flight request by its locally-generated
// correlation id — the id a caller obtained from a lower-level async entry
// point (see Multiplexer). Most callers should simply cancel the Context
// passed to the blocking typed operation instead; this exists for the rarer
// case of cancelling a request whose id was learned out of band, matching
// spec.md §4.6's cancel_request contract.
func (c *Client) CancelRequest(ctx context.Context, id uint64, reason string) {
	c.mux.CancelRequest(ctx, id, reason)
}
