package ratelimit

import (
	"errors"
	"fmt"
)

// ErrNoLimits is returned at load time for a rule with no configured limits.
var ErrNoLimits = errors.New("rule has no limits configured")

// ErrStoreUnavailable indicates the counter store could not be reached.
// In strict mode it surfaces from Admit; in lenient mode the engine fails
// open instead.
var ErrStoreUnavailable = errors.New("counter store unavailable")

// ErrStoreTimeout indicates a counter store call exceeded its deadline. It
// is handled identically to ErrStoreUnavailable.
var ErrStoreTimeout = errors.New("counter store timeout")

// ConfigError wraps a rule configuration problem. It is fatal at startup and
// never recoverable at request time.
type ConfigError struct {
	Rule string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Rule == "" {
		return fmt.Sprintf("rate limit config: %v", e.Err)
	}
	return fmt.Sprintf("rate limit config: rule %q: %v", e.Rule, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
