package transport

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/modelcontext/runtime/internal/util"
)

// ValidateElicitationURL enforces the security rules a client must apply
// before ever displaying or opening a server-supplied URL in URL-mode
// elicitation: no embedded credentials, and the host must not be "localhost"
// or a loopback, link-local, or private IP literal that could be used to
// probe the user's local network or internal services. Host names are not
// resolved: a name whose DNS records point at such an address is accepted.
// requireHTTPS additionally
// rejects any non-https scheme; per spec.md §4.7 that check is "(optional
// policy)" layered on top of the always-mandatory checks below, so callers
// that tolerate plaintext transports pass false.
func ValidateElicitationURL(rawURL string, requireHTTPS bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("transport: elicitation url: %w", err)
	}
	if requireHTTPS {
		if u.Scheme != "https" {
			return fmt.Errorf("transport: elicitation url must use https, got %q", u.Scheme)
		}
	} else if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("transport: elicitation url must use http or https, got %q", u.Scheme)
	}
	if u.User != nil {
		return fmt.Errorf("transport: elicitation url must not carry embedded credentials")
	}
	host := u.Host
	if host == "" {
		return fmt.Errorf("transport: elicitation url has no host")
	}
	if util.IsLoopback(host) {
		return fmt.Errorf("transport: elicitation url resolves to a loopback address")
	}
	if util.IsPrivate(host) {
		return fmt.Errorf("transport: elicitation url resolves to a private or link-local address")
	}
	return nil
}

// suspiciousPathSubstrings are rejected outright rather than normalized,
// since their presence indicates an attempt at path traversal rather than
// an accidental "." in a legitimate relative path.
var suspiciousPathSubstrings = []string{
	"..", "%2e%2e", "%2E%2E", "%252e", "%252E", "..\\", "\\..",
}

// JoinRequestPath validates extra against traversal and control-character
// injection, then joins it onto base, verifying the cleaned result does not
// escape base. It is for building a path from a configured base plus a
// caller- or server-supplied suffix; HTTPTransport does not call it and
// sends every request to HTTPConfig.URL as given.
func JoinRequestPath(base, extra string) (string, error) {
	for _, r := range extra {
		if r == 0 || r < 0x20 {
			return "", fmt.Errorf("transport: path contains a null byte or control character")
		}
	}
	for _, bad := range suspiciousPathSubstrings {
		if strings.Contains(extra, bad) {
			return "", fmt.Errorf("transport: path contains a traversal sequence: %q", extra)
		}
	}
	base = path.Clean("/" + base)
	joined := path.Clean("/" + base + "/" + extra)
	if joined != base && !strings.HasPrefix(joined, base+"/") {
		return "", fmt.Errorf("transport: path %q escapes base %q", extra, base)
	}
	return joined, nil
}
