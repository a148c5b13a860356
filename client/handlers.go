package client

import (
	"context"

	"github.com/modelcontext/runtime/protocol"
	"github.com/modelcontext/runtime/transport"
)

// ElicitationHandler answers a server's elicitation/create request: either
// a form (in-band schema) or a url (out-of-band browser flow) request for a
// user-supplied value.
type ElicitationHandler interface {
	HandleElicit(ctx context.Context, params *protocol.ElicitParams) (*protocol.ElicitResult, error)
}

// ElicitationHandlerFunc adapts a plain function to ElicitationHandler.
type ElicitationHandlerFunc func(ctx context.Context, params *protocol.ElicitParams) (*protocol.ElicitResult, error)

func (f ElicitationHandlerFunc) HandleElicit(ctx context.Context, params *protocol.ElicitParams) (*protocol.ElicitResult, error) {
	return f(ctx, params)
}

// SamplingHandler answers a server's sampling/createMessage request: run an
// LLM inference on the server's behalf, optionally with human review.
type SamplingHandler interface {
	HandleCreateMessage(ctx context.Context, params *protocol.CreateMessageParams) (*protocol.CreateMessageResult, error)
}

type SamplingHandlerFunc func(ctx context.Context, params *protocol.CreateMessageParams) (*protocol.CreateMessageResult, error)

func (f SamplingHandlerFunc) HandleCreateMessage(ctx context.Context, params *protocol.CreateMessageParams) (*protocol.CreateMessageResult, error) {
	return f(ctx, params)
}

// RootsHandler answers a server's roots/list request with the workspace
// boundaries this client exposes.
type RootsHandler interface {
	HandleRootsList(ctx context.Context) (*protocol.ListRootsResult, error)
}

type RootsHandlerFunc func(ctx context.Context) (*protocol.ListRootsResult, error)

func (f RootsHandlerFunc) HandleRootsList(ctx context.Context) (*protocol.ListRootsResult, error) {
	return f(ctx)
}

// Handlers is the capability handler registry a Client dispatches
// server-initiated requests to. Each capability has a synchronous slot and
// an asynchronous slot; per spec.md §4.7, when both are registered for the
// same capability the asynchronous one wins. Go's dispatcher already runs
// every inbound request on its own goroutine (see dispatcher.go), so the
// distinction here is a registration-priority rule inherited from the
// reference client rather than a different execution model — "async" means
// "prefer this implementation", not "runs differently".
type Handlers struct {
	Elicitation      ElicitationHandler
	AsyncElicitation ElicitationHandler

	Sampling      SamplingHandler
	AsyncSampling SamplingHandler

	Roots      RootsHandler
	AsyncRoots RootsHandler

	// RequireHTTPSElicitationURLs additionally rejects non-HTTPS elicitation
	// URLs; without it, http is tolerated alongside https (the loopback,
	// link-local, private-address, and embedded-credential checks always
	// apply regardless of this flag). spec.md §4.7 marks the HTTPS check
	// itself "(optional policy)" on top of those mandatory ones. Default
	// false, matching the reference client.
	RequireHTTPSElicitationURLs bool
}

func (h Handlers) elicitation() ElicitationHandler {
	if h.AsyncElicitation != nil {
		return h.AsyncElicitation
	}
	return h.Elicitation
}

func (h Handlers) sampling() SamplingHandler {
	if h.AsyncSampling != nil {
		return h.AsyncSampling
	}
	return h.Sampling
}

func (h Handlers) roots() RootsHandler {
	if h.AsyncRoots != nil {
		return h.AsyncRoots
	}
	return h.Roots
}

// secureElicitParams applies the URL-mode elicitation security contract of
// spec.md §4.7 before the request ever reaches a handler: a url-mode
// request whose URL host is localhost or a loopback/link-local/private IP
// literal (host names are not resolved; see ValidateElicitationURL), carries
// embedded credentials, or (when requireHTTPS is set) isn't https, is
// rejected with a decline, and the handler is never invoked.
func secureElicitParams(params *protocol.ElicitParams, requireHTTPS bool) (*protocol.ElicitResult, bool) {
	if params.Mode != protocol.ElicitationModeURL {
		return nil, true
	}
	if err := transport.ValidateElicitationURL(params.URL, requireHTTPS); err != nil {
		return &protocol.ElicitResult{Action: protocol.ElicitDecline}, false
	}
	return nil, true
}
