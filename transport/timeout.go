package transport

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvTimeout overrides every per-call timeout when set, in seconds.
const EnvTimeout = "TRADER_CLIENT_TIMEOUT"

// MinTimeout is the floor applied to caller supplied timeouts.
const MinTimeout = 30 * time.Second

// ResolveTimeout returns the effective network timeout for a call that asked
// for requested.
func ResolveTimeout(requested time.Duration) time.Duration {
	return resolveTimeout(requested, os.LookupEnv)
}

func resolveTimeout(requested time.Duration, lookup func(string) (string, bool)) time.Duration {
	if d, ok := envTimeout(lookup); ok {
		return d
	}
	if requested > MinTimeout {
		return requested
	}
	return MinTimeout
}

// envTimeout parses the override. Unparseable or non-positive values are ignored.
func envTimeout(lookup func(string) (string, bool)) (time.Duration, bool) {
	if lookup == nil {
		return 0, false
	}
	raw, ok := lookup(EnvTimeout)
	if !ok {
		return 0, false
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || secs <= 0 {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}
