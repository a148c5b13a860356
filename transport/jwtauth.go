package transport

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTAssertionRoundTripper attaches a freshly signed client-assertion JWT
// as a bearer token to every outbound request, for servers that
// authenticate the client itself (RFC 7523-style) rather than issuing an
// OAuth access token. The assertion is re-minted whenever it is within
// RefreshSkew of expiring.
type JWTAssertionRoundTripper struct {
	// Issuer and Subject identify the client; both are typically the
	// client_id assigned by the server.
	Issuer  string
	Subject string
	// Audience is the server's token endpoint or resource identifier.
	Audience string
	// TTL is how long each minted assertion is valid for. Defaults to one
	// minute, the conventional RFC 7523 lifetime.
	TTL time.Duration
	// RefreshSkew mints a new assertion this far before expiry rather than
	// waiting for a request to see an already-expired token.
	RefreshSkew time.Duration
	// SigningMethod and Key sign the assertion. SigningMethod defaults to
	// RS256; Key must match it (e.g. an *rsa.PrivateKey for RS256).
	SigningMethod jwt.SigningMethod
	Key           any

	// Base is the underlying RoundTripper. If nil, http.DefaultTransport
	// is used.
	Base http.RoundTripper

	mu      sync.Mutex
	token   string
	expires time.Time
}

func (t *JWTAssertionRoundTripper) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *JWTAssertionRoundTripper) ttl() time.Duration {
	if t.TTL > 0 {
		return t.TTL
	}
	return time.Minute
}

func (t *JWTAssertionRoundTripper) refreshSkew() time.Duration {
	if t.RefreshSkew > 0 {
		return t.RefreshSkew
	}
	return 5 * time.Second
}

func (t *JWTAssertionRoundTripper) signingMethod() jwt.SigningMethod {
	if t.SigningMethod != nil {
		return t.SigningMethod
	}
	return jwt.SigningMethodRS256
}

// assertion returns a valid signed JWT, minting a new one if the cached
// assertion has expired or is about to.
func (t *JWTAssertionRoundTripper) assertion() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && time.Until(t.expires) > t.refreshSkew() {
		return t.token, nil
	}

	now := time.Now()
	exp := now.Add(t.ttl())
	claims := jwt.RegisteredClaims{
		Issuer:    t.Issuer,
		Subject:   t.Subject,
		Audience:  jwt.ClaimStrings{t.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(t.signingMethod(), claims).SignedString(t.Key)
	if err != nil {
		return "", fmt.Errorf("transport: sign client assertion: %w", err)
	}
	t.token = signed
	t.expires = exp
	return signed, nil
}

func (t *JWTAssertionRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.assertion()
	if err != nil {
		return nil, err
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+token)
	return t.base().RoundTrip(req)
}
