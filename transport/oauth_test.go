package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2"
)

func TestOAuthRoundTripper_AttachesExistingSource(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	rt := &OAuthRoundTripper{Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-1"})}
	client := &http.Client{Transport: rt}
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	if _, err := client.Do(req); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("Authorization header = %q, want %q", gotAuth, "Bearer tok-1")
	}
}

func TestOAuthRoundTripper_AuthorizeOn401(t *testing.T) {
	var authCount int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer tok-2" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	rt := &OAuthRoundTripper{
		Authorize: func(req *http.Request, resp *http.Response) (oauth2.TokenSource, error) {
			authCount++
			return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-2"}), nil
		},
	}
	client := &http.Client{Transport: rt}

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if authCount != 1 {
		t.Errorf("Authorize called %d times, want 1", authCount)
	}

	// A second request should reuse the token source without calling
	// Authorize again.
	req2, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp2, err := client.Do(req2)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp2.StatusCode)
	}
	if authCount != 1 {
		t.Errorf("Authorize called %d times on second request, want still 1", authCount)
	}
}
