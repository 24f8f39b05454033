// Package gin integrates the admission engine with the Gin framework.
package gin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hotelio/admission/ratelimit"
)

// Admission creates a Gin middleware handler around the engine.
//
// Behavior matches the net/http middleware: per-request admission before
// handler dispatch, X-RateLimit-* headers from the most restrictive checked
// window, structured 429 on denial, generic 500 on a strict-mode store
// outage. Customize via functional options such as WithIdentityFunc or
// WithErrorHandler.
//
// Example:
//
//	router := gin.Default()
//	router.Use(admissiongin.Admission(engine))
func Admission(engine *ratelimit.Engine, options ...ratelimit.Option) gin.HandlerFunc {
	cfg := ratelimit.NewConfig(options...)

	return func(c *gin.Context) {
		r := c.Request
		rctx := ratelimit.FromRequest(r, cfg.Identity(r), time.Now(), cfg.TrustForwardedFor)

		decision, err := engine.Admit(r.Context(), rctx)
		if err != nil {
			cfg.Logger.Errorf("admission check failed for %s %s: %v", r.Method, r.URL.Path, err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Service temporarily unavailable",
			})
			return
		}

		for name, value := range ratelimit.BuildHeaders(decision.Checks, cfg.Headers) {
			c.Header(name, value)
		}

		if !decision.Allowed {
			cfg.Logger.Debugf("request denied by rule %q for %s %s", decision.Rule, r.Method, r.URL.Path)
			c.Header(cfg.Headers.RetryAfter, ratelimit.RetryAfterSeconds(decision.RetryAfter))
			cfg.ErrorHandler(c.Writer, r, decision)
			c.Abort()
			return
		}

		c.Next()
	}
}
