package ratelimit

import (
	"encoding/json"
	"net/http"
)

// IdentityFunc extracts the authenticated caller from a request. The default
// reads the headers the upstream auth middleware sets; installations with a
// different auth scheme supply their own via WithIdentityFunc.
type IdentityFunc func(r *http.Request) Identity

// DefaultIdentityFunc reads X-User-ID, X-User-Role and X-Hotel-ID.
func DefaultIdentityFunc(r *http.Request) Identity {
	return Identity{
		UserID:  r.Header.Get("X-User-ID"),
		Role:    r.Header.Get("X-User-Role"),
		HotelID: r.Header.Get("X-Hotel-ID"),
	}
}

// ErrorHandler renders the response for a denied request. This gives the
// user full control over the status code, headers, and body.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, decision *Decision)

// Config holds all configurable parameters for the middleware.
// It is an internal struct that users interact with via functional options.
type Config struct {
	Identity          IdentityFunc
	ErrorHandler      ErrorHandler
	Logger            Logger
	Headers           HeaderNames
	TrustForwardedFor bool
}

// Option is a function type that applies a configuration setting to a
// Config struct.
type Option func(*Config)

// NewConfig creates a Config instance with default settings and then applies
// any provided functional options.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		Identity:     DefaultIdentityFunc,
		ErrorHandler: DefaultErrorHandler,
		Logger:       &noopLogger{},
		Headers:      DefaultHeaderNames(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// DefaultErrorHandler writes the structured 429 payload.
func DefaultErrorHandler(w http.ResponseWriter, r *http.Request, decision *Decision) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":       "Rate limit exceeded",
		"message":     decision.Message,
		"retry_after": int64(decision.RetryAfter.Seconds()),
	})
}

// WithIdentityFunc returns an Option that sets a custom caller extractor.
func WithIdentityFunc(f IdentityFunc) Option {
	return func(c *Config) {
		if f != nil {
			c.Identity = f
		}
	}
}

// WithErrorHandler returns an Option that sets a custom handler for denied
// requests. Useful for custom error bodies or localized messages.
func WithErrorHandler(f ErrorHandler) Option {
	return func(c *Config) {
		if f != nil {
			c.ErrorHandler = f
		}
	}
}

// WithLogger returns an Option that sets a custom logger.
func WithLogger(l Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithHeaderNames overrides the emitted rate-limit header names.
func WithHeaderNames(names HeaderNames) Option {
	return func(c *Config) { c.Headers = names }
}

// WithTrustForwardedFor honors the first X-Forwarded-For entry as the client
// address. Only enable behind a proxy that sets it.
func WithTrustForwardedFor(trust bool) Option {
	return func(c *Config) { c.TrustForwardedFor = trust }
}
