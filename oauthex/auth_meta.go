// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package oauthex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// challenge is one parsed WWW-Authenticate challenge: a scheme (e.g.
// "Bearer") and its comma-separated auth-param set.
type challenge struct {
	scheme string
	params map[string]string
}

// ParseWWWAuthenticate parses the (possibly multi-valued, per RFC 7235 §4.1)
// WWW-Authenticate response header into its component challenges. A 401
// response from an MCP server carries a resource_metadata auth-param
// pointing at its protected resource metadata document.
func ParseWWWAuthenticate(values []string) ([]challenge, error) {
	var out []challenge
	for _, v := range values {
		cs, err := parseChallengeLine(v)
		if err != nil {
			return nil, err
		}
		out = append(out, cs...)
	}
	return out, nil
}

// parseChallengeLine splits one header value into its challenges. It
// handles the common case (one scheme, comma-separated key=value params)
// rather than the full RFC 7235 grammar's ambiguity between multiple
// challenges and multiple params in a single header value.
func parseChallengeLine(line string) ([]challenge, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	scheme, rest, ok := strings.Cut(line, " ")
	if !ok {
		return []challenge{{scheme: line, params: map[string]string{}}}, nil
	}
	params := map[string]string{}
	for part := range strings.SplitSeq(rest, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		params[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"`)
	}
	return []challenge{{scheme: scheme, params: params}}, nil
}

// ResourceMetadataURL returns the resource_metadata auth-param from the
// first challenge that carries one, or "" if none do.
func ResourceMetadataURL(cs []challenge) string {
	for _, c := range cs {
		if v, ok := c.params["resource_metadata"]; ok {
			return v
		}
	}
	return ""
}

// Scopes returns the space-separated scope auth-param from the first
// challenge that carries one, split into individual scope strings.
func Scopes(cs []challenge) []string {
	for _, c := range cs {
		if v, ok := c.params["scope"]; ok && v != "" {
			return strings.Fields(v)
		}
	}
	return nil
}

// AuthServerMeta is an OAuth 2.0 Authorization Server Metadata document
// (RFC 8414), extended with the Client ID Metadata Document signal MCP
// authorization (SEP-991) adds on top.
type AuthServerMeta struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported,omitempty"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	ClientIDMetadataDocumentSupported bool     `json:"client_id_metadata_document_supported,omitempty"`
}

func (a *AuthServerMeta) supportsPKCES256() bool {
	for _, m := range a.CodeChallengeMethodsSupported {
		if m == "S256" {
			return true
		}
	}
	return false
}

// GetAuthServerMeta fetches and parses the authorization server metadata
// document at issuerURL's well-known location (RFC 8414 §3.1), trying the
// OAuth-specific path before falling back to the OpenID Connect discovery
// path many identity providers also serve it from. It returns (nil, nil)
// if the well-known document doesn't exist, leaving the caller to fall
// back to the pre-discovery default endpoints.
func GetAuthServerMeta(ctx context.Context, issuerURL string, c *http.Client) (*AuthServerMeta, error) {
	issuerURL = strings.TrimRight(issuerURL, "/")
	for _, suffix := range []string{"/.well-known/oauth-authorization-server", "/.well-known/openid-configuration"} {
		meta, err := fetchAuthServerMeta(ctx, issuerURL+suffix, c)
		if err != nil {
			return nil, err
		}
		if meta != nil {
			if len(meta.CodeChallengeMethodsSupported) > 0 && !meta.supportsPKCES256() {
				return nil, fmt.Errorf("oauthex: authorization server %q does not support PKCE with S256, which MCP authorization requires", issuerURL)
			}
			return meta, nil
		}
	}
	return nil, nil
}

func fetchAuthServerMeta(ctx context.Context, url string, c *http.Client) (*AuthServerMeta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oauthex: fetching %s: status %s", url, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var meta AuthServerMeta
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("oauthex: parsing %s: %w", url, err)
	}
	return &meta, nil
}

// ClientRegistrationMetadata is the client metadata submitted in a Dynamic
// Client Registration request (RFC 7591 §2).
type ClientRegistrationMetadata struct {
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	ClientName              string   `json:"client_name,omitempty"`
	ClientURI               string   `json:"client_uri,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
}

// ClientRegistrationResponse is the authorization server's reply to a
// Dynamic Client Registration request (RFC 7591 §3.2.1).
type ClientRegistrationResponse struct {
	ClientID                string `json:"client_id"`
	ClientSecret            string `json:"client_secret,omitempty"`
	ClientIDIssuedAt        int64  `json:"client_id_issued_at,omitempty"`
	ClientSecretExpiresAt   int64  `json:"client_secret_expires_at,omitempty"`
	TokenEndpointAuthMethod string `json:"token_endpoint_auth_method,omitempty"`
}

// RegisterClient performs Dynamic Client Registration (RFC 7591) against
// registrationEndpoint.
func RegisterClient(ctx context.Context, registrationEndpoint string, metadata *ClientRegistrationMetadata, c *http.Client) (*ClientRegistrationResponse, error) {
	body, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("oauthex: encoding registration metadata: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, registrationEndpoint, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("oauthex: registration failed: status %s: %s", resp.Status, strconv.Quote(string(respBody)))
	}
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var out ClientRegistrationResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("oauthex: parsing registration response: %w", err)
	}
	return &out, nil
}
