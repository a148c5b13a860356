package retry

import (
	"math/rand"
	"net/http"
	"testing"
	"time"
)

func TestExponential_GrowsAndCaps(t *testing.T) {
	b := &Exponential{
		Base:         100 * time.Millisecond,
		Multiplier:   2.0,
		Max:          1 * time.Second,
		JitterFactor: 0, // isolate growth from jitter
	}
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1 * time.Second, // would be 1.6s uncapped
		1 * time.Second,
	}
	for attempt, w := range want {
		if got := b.Next(attempt); got != w {
			t.Errorf("Next(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestExponential_JitterStaysInBounds(t *testing.T) {
	b := &Exponential{
		Base:         1 * time.Second,
		Multiplier:   1.0,
		Max:          10 * time.Second,
		JitterFactor: 0.25,
		Rand:         rand.New(rand.NewSource(1)),
	}
	lo := 750 * time.Millisecond
	hi := 1250 * time.Millisecond
	for i := 0; i < 200; i++ {
		d := b.Next(0)
		if d < lo || d > hi {
			t.Fatalf("Next(0) = %v, want in [%v, %v]", d, lo, hi)
		}
	}
}

func TestConstantAndNone(t *testing.T) {
	c := Constant{Delay: 5 * time.Second}
	if got := c.Next(7); got != 5*time.Second {
		t.Errorf("Constant.Next = %v, want 5s", got)
	}
	var n None
	if got := n.Next(3); got != 0 {
		t.Errorf("None.Next = %v, want 0", got)
	}
}

func TestRetryAfter_Seconds(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d, ok := RetryAfter("120", now)
	if !ok || d != 120*time.Second {
		t.Fatalf("RetryAfter(120) = (%v, %v), want (120s, true)", d, ok)
	}
}

func TestRetryAfter_HTTPDate(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(30 * time.Second).UTC().Format(http.TimeFormat)
	d, ok := RetryAfter(future, now)
	if !ok {
		t.Fatal("RetryAfter did not parse HTTP-date form")
	}
	if d < 29*time.Second || d > 31*time.Second {
		t.Fatalf("RetryAfter = %v, want ~30s", d)
	}
}

func TestRetryAfter_Invalid(t *testing.T) {
	now := time.Now()
	if _, ok := RetryAfter("not-a-date", now); ok {
		t.Fatal("RetryAfter should reject garbage input")
	}
	if _, ok := RetryAfter("", now); ok {
		t.Fatal("RetryAfter should reject empty input")
	}
}

func TestPolicy_ShouldRetry(t *testing.T) {
	p := DefaultPolicy()

	if !p.ShouldRetry(KindConnection, 0) {
		t.Error("expected connection errors to be retryable on attempt 0")
	}
	if !p.ShouldRetry(KindTimeout, 1) {
		t.Error("expected timeouts to be retryable on attempt 1 (max attempts 3)")
	}
	if p.ShouldRetry(KindConnection, 2) {
		t.Error("attempt 2 is the 3rd attempt; should not retry further with MaxAttempts=3")
	}
	if p.ShouldRetry(KindTLS, 0) {
		t.Error("TLS errors should not be retryable by default")
	}
}

func TestPolicy_ShouldRetryHTTPStatus(t *testing.T) {
	p := DefaultPolicy()
	for _, code := range []int{429, 500, 502, 503, 504} {
		if !p.ShouldRetryHTTPStatus(code) {
			t.Errorf("status %d should be retryable", code)
		}
	}
	for _, code := range []int{200, 400, 401, 404, 418} {
		if p.ShouldRetryHTTPStatus(code) {
			t.Errorf("status %d should not be retryable", code)
		}
	}
}
