package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorKind classifies a transport failure for retry eligibility, separate
// from how long to wait before retrying.
type ErrorKind int

const (
	KindConnection ErrorKind = iota
	KindTimeout
	KindTLS
	KindHTTPStatus
	KindOther
)

// Policy decides whether a failed attempt should be retried. It is
// deliberately split from Backoff: "should I retry" and "how long to wait"
// are independent questions, and a Retry-After header can override the
// latter without touching the former.
type Policy struct {
	MaxAttempts           int
	RetryOnConnectionError bool
	RetryOnTimeout         bool
	RetryOnTLSError        bool
	RetryableHTTPStatuses  map[int]bool
}

// DefaultPolicy matches the reference client: 3 attempts, retry connection
// errors and timeouts but never TLS errors, and the standard set of
// transient HTTP statuses.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:            3,
		RetryOnConnectionError: true,
		RetryOnTimeout:         true,
		RetryOnTLSError:        false,
		RetryableHTTPStatuses: map[int]bool{
			429: true, 500: true, 502: true, 503: true, 504: true,
		},
	}
}

// ShouldRetry reports whether attempt (0-based, the attempt that just
// failed) should be followed by another, given kind.
func (p *Policy) ShouldRetry(kind ErrorKind, attempt int) bool {
	if attempt+1 >= p.MaxAttempts {
		return false
	}
	switch kind {
	case KindConnection:
		return p.RetryOnConnectionError
	case KindTimeout:
		return p.RetryOnTimeout
	case KindTLS:
		return p.RetryOnTLSError
	case KindHTTPStatus:
		return true // caller must also consult ShouldRetryHTTPStatus for the specific code
	default:
		return false
	}
}

// ShouldRetryHTTPStatus reports whether code is in the configured retryable
// set.
func (p *Policy) ShouldRetryHTTPStatus(code int) bool {
	return p.RetryableHTTPStatuses[code]
}

// ClassifyError maps a Go error from a network operation to an ErrorKind.
// context.Canceled and context.DeadlineExceeded are never retryable: they
// mean the caller gave up, not that the operation transiently failed.
func ClassifyError(err error) (kind ErrorKind, retryable bool) {
	if err == nil {
		return KindOther, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindOther, false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout, true
		}
		return KindConnection, true
	}
	if strings.Contains(err.Error(), "tls:") || strings.Contains(err.Error(), "certificate") {
		return KindTLS, true
	}
	return KindOther, false
}

// RetryAfter parses the value of a Retry-After header, which is either a
// number of seconds or an HTTP-date. It returns (0, false) if value doesn't
// parse as either.
func RetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		d := when.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
