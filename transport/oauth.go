package transport

import (
	"bytes"
	"io"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

// OAuthRoundTripper is an http.RoundTripper that attaches a bearer token
// from an oauth2.TokenSource to every outbound request, and on a 401
// response invokes Authorize once to obtain a fresh token source for the
// remainder of the transport's lifetime.
//
// It wraps HTTPConfig.Client's transport so the HTTP carrier itself stays
// unaware of how (or whether) requests are authenticated.
type OAuthRoundTripper struct {
	// Source, if set, is used directly and Authorize is never called.
	Source oauth2.TokenSource

	// Authorize is called the first time a request comes back 401, with
	// the request and response that failed. It should run whatever OAuth
	// flow is appropriate and return a token source for subsequent
	// requests.
	Authorize func(*http.Request, *http.Response) (oauth2.TokenSource, error)

	// Base is the underlying RoundTripper. If nil, http.DefaultTransport
	// is used.
	Base http.RoundTripper

	mu     sync.Mutex
	source oauth2.TokenSource
}

func (t *OAuthRoundTripper) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *OAuthRoundTripper) currentSource() oauth2.TokenSource {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.source != nil {
		return t.source
	}
	return t.Source
}

func (t *OAuthRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var haveBody bool
	var bodyBytes []byte
	if req.Body != nil && req.Body != http.NoBody {
		req = req.Clone(req.Context())
		haveBody = true
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	base := t.base()
	if src := t.currentSource(); src != nil {
		base = &oauth2.Transport{Base: base, Source: src}
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || t.Authorize == nil {
		return resp, nil
	}
	if t.currentSource() != nil {
		// We already attached a token and still got a 401; don't loop.
		return resp, nil
	}

	resp.Body.Close()
	t.mu.Lock()
	if t.source == nil {
		src, authErr := t.Authorize(req, resp)
		if authErr != nil {
			t.mu.Unlock()
			return nil, authErr
		}
		t.source = src
	}
	src := t.source
	t.mu.Unlock()

	if haveBody {
		req = req.Clone(req.Context())
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}
	return (&oauth2.Transport{Base: t.base(), Source: src}).RoundTrip(req)
}
