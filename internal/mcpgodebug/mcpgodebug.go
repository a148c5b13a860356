// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package mcpgodebug provides a mechanism to configure compatibility and
// debug parameters via the MCPRUNTIMEDEBUG environment variable, in the
// style of Go's own GODEBUG.
//
// The value of MCPRUNTIMEDEBUG is a comma-separated list of key=value pairs.
// For example:
//
//	MCPRUNTIMEDEBUG=breaker=0,logrequests=1
package mcpgodebug

import (
	"fmt"
	"os"
	"strings"
)

const compatibilityEnvKey = "MCPRUNTIMEDEBUG"

var compatibilityParams map[string]string

func init() {
	var err error
	compatibilityParams, err = parseCompatibility(os.Getenv(compatibilityEnvKey))
	if err != nil {
		panic(err)
	}
}

// Value returns the value of the compatibility parameter with the given key.
// It returns an empty string if the key is not set.
func Value(key string) string {
	return compatibilityParams[key]
}

// Bool reports whether the named parameter is set to "1", for boolean-style
// debug toggles (e.g. MCPRUNTIMEDEBUG=breaker=0 to force-disable the
// circuit breaker regardless of client configuration).
func Bool(key string) (value bool, set bool) {
	v, ok := compatibilityParams[key]
	if !ok {
		return false, false
	}
	return v == "1", true
}

func parseCompatibility(envValue string) (map[string]string, error) {
	if envValue == "" {
		return nil, nil
	}

	params := make(map[string]string)
	for part := range strings.SplitSeq(envValue, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("MCPRUNTIMEDEBUG: invalid format: %q", part)
		}
		params[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return params, nil
}
