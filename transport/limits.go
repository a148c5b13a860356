package transport

import (
	"errors"
	"net/http"
)

// DefaultMaxMessageBytes bounds a single inbound message (process transport
// frame, or HTTP response/SSE event body) absent explicit configuration.
const DefaultMaxMessageBytes int64 = 1_000_000

// effectiveMaxMessageBytes converts a user-configured limit to an effective
// one: 0 means "use the default", negative means "unlimited", positive is
// used as-is.
func effectiveMaxMessageBytes(configured int64) int64 {
	switch {
	case configured == 0:
		return DefaultMaxMessageBytes
	case configured < 0:
		return 0
	default:
		return configured
	}
}

func isMaxBytesError(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
