package ratelimit

import (
	"strconv"
	"time"
)

// HeaderNames configures the response header names the middleware emits.
type HeaderNames struct {
	Limit      string
	Remaining  string
	Reset      string
	RetryAfter string
}

// DefaultHeaderNames returns the conventional X-RateLimit-* names.
func DefaultHeaderNames() HeaderNames {
	return HeaderNames{
		Limit:      "X-RateLimit-Limit",
		Remaining:  "X-RateLimit-Remaining",
		Reset:      "X-RateLimit-Reset",
		RetryAfter: "Retry-After",
	}
}

// BuildHeaders renders rate-limit headers from the windows checked during a
// single admission pass. The window with the smallest remaining quota is the
// most restrictive and wins; ties keep the earliest checked window, which is
// the first in resolution order.
func BuildHeaders(checks []WindowCheckResult, names HeaderNames) map[string]string {
	most := mostRestrictive(checks)
	if most == nil {
		return nil
	}
	return map[string]string{
		names.Limit:     strconv.FormatInt(most.Limit, 10),
		names.Remaining: strconv.FormatInt(most.Remaining, 10),
		names.Reset:     strconv.FormatInt(most.ResetAt.Unix(), 10),
	}
}

func mostRestrictive(checks []WindowCheckResult) *WindowCheckResult {
	var most *WindowCheckResult
	for i := range checks {
		if most == nil || checks[i].Remaining < most.Remaining {
			most = &checks[i]
		}
	}
	return most
}

// RetryAfterSeconds renders a Retry-After value, never below one second.
func RetryAfterSeconds(d time.Duration) string {
	secs := int64(d.Seconds() + 0.5)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
