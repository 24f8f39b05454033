// Package nethttp integrates the admission engine with the standard
// net/http stack.
package nethttp

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hotelio/admission/ratelimit"
)

// Middleware creates an admission-control middleware for `net/http`.
//
// It wraps an existing http.Handler and runs every request through the
// engine before handler dispatch. Standard X-RateLimit-* headers, built from
// the most restrictive window checked, are added on every response. Denied
// requests receive a structured 429; a store outage in strict mode yields a
// generic 500, never internal detail.
//
// Example:
//
//	engine, _ := ratelimit.NewEngine(rules, store.NewMemory(ctx, time.Minute))
//	mux := http.NewServeMux()
//	mux.HandleFunc("/", myHandler)
//	http.ListenAndServe(":8080", nethttp.Middleware(engine)(mux))
func Middleware(engine *ratelimit.Engine, options ...ratelimit.Option) func(http.Handler) http.Handler {
	cfg := ratelimit.NewConfig(options...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rctx := ratelimit.FromRequest(r, cfg.Identity(r), time.Now(), cfg.TrustForwardedFor)

			decision, err := engine.Admit(r.Context(), rctx)
			if err != nil {
				cfg.Logger.Errorf("admission check failed for %s %s: %v", r.Method, r.URL.Path, err)
				writeUnavailable(w)
				return
			}

			for name, value := range ratelimit.BuildHeaders(decision.Checks, cfg.Headers) {
				w.Header().Set(name, value)
			}

			if !decision.Allowed {
				cfg.Logger.Debugf("request denied by rule %q for %s %s", decision.Rule, r.Method, r.URL.Path)
				w.Header().Set(cfg.Headers.RetryAfter, ratelimit.RetryAfterSeconds(decision.RetryAfter))
				cfg.ErrorHandler(w, r, decision)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeUnavailable is the strict-mode outage response. Deliberately generic:
// no store hostnames or error chains reach the caller.
func writeUnavailable(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": "Service temporarily unavailable",
	})
}
