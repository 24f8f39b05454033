// Package ratelimit implements a multi-tier, sliding-window admission
// control engine.
//
// An Engine evaluates every request against an immutable RuleSet: the global
// default rule, the caller's role rule, any matching endpoint rules and the
// hotel's subscription-tier rule. Each rule may limit several sliding
// windows at once (per second, minute, hour, day, plus a short burst
// window); a request is admitted only if every window of every applicable,
// non-exempt rule has headroom. Counters live in a pluggable CounterStore —
// in-memory for single-instance deployments, Redis for horizontally scaled
// ones.
//
// The package defines the core abstractions:
//   - Engine: orchestrates rule resolution, window checks and increments
//   - CounterStore: backend interface for sliding-window counters
//   - Decision: outcome of one admission check, with per-window metadata
//     for the standard X-RateLimit-* response headers
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Mode selects how the engine behaves when the counter store is down.
type Mode string

const (
	// ModeLenient fails open: on store errors the request is admitted and a
	// warning is logged. Default outside production.
	ModeLenient Mode = "lenient"
	// ModeStrict fails closed: on store errors Admit returns an error and
	// the caller should reject the request with a 5xx, not a 429.
	ModeStrict Mode = "strict"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool

	// Rule names the first violated rule in resolution order when the
	// request is denied.
	Rule string
	// Message is the rule's custom denial message, or a generic one.
	Message string
	// RetryAfter is the minimum wait until the violated rule's failing
	// windows free up. Never below one second on denial.
	RetryAfter time.Duration

	// Degraded is set when the store was unreachable and the engine failed
	// open in lenient mode.
	Degraded bool

	// Checks holds every window examined for this request, admitted or not.
	// Header synthesis works off this single pass; no windows are
	// re-checked after the decision.
	Checks []WindowCheckResult
}

// Engine evaluates admission for inbound requests. Construct it once at
// startup and share it; it is safe for concurrent use and holds no global
// state.
type Engine struct {
	rules    *RuleSet
	resolver *Resolver
	store    CounterStore

	mode         Mode
	storeTimeout time.Duration
	now          func() time.Time
	logger       Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMode sets the failure mode. The default is ModeLenient.
func WithMode(m Mode) EngineOption {
	return func(e *Engine) { e.mode = m }
}

// WithTierLookup installs the hotel tier lookup used to resolve tier rules.
func WithTierLookup(f TierFunc) EngineOption {
	return func(e *Engine) { e.resolver = NewResolver(e.rules, f) }
}

// WithStoreTimeout bounds every store round-trip. A timed-out call is
// treated exactly like a store failure. The default is 3 seconds.
func WithStoreTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.storeTimeout = d
		}
	}
}

// WithClock overrides the engine's time source. Intended for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithEngineLogger sets the logger used for degraded-mode warnings and
// decision traces.
func WithEngineLogger(l Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine validates the rule set and builds an engine over the given
// store. Configuration errors are returned here, before any traffic flows.
func NewEngine(rules *RuleSet, store CounterStore, opts ...EngineOption) (*Engine, error) {
	if rules == nil {
		return nil, &ConfigError{Err: fmt.Errorf("rule set is required")}
	}
	if store == nil {
		return nil, &ConfigError{Err: fmt.Errorf("counter store is required")}
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		rules:        rules,
		resolver:     NewResolver(rules, nil),
		store:        store,
		mode:         ModeLenient,
		storeTimeout: 3 * time.Second,
		now:          time.Now,
		logger:       &noopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// evaluated pairs a rule with the windows checked for it, so the increment
// pass can revisit exactly what the check pass saw.
type evaluated struct {
	rule    *Rule
	windows []Window
	keys    []string
	// offsets into Decision.Checks for this rule's windows
	checkIdx []int
}

// Admit decides whether the request may proceed.
//
// Admitted requests have every evaluated window incremented so they count
// against quota; denied requests increment nothing, since Check alone does
// not mutate counts. On denial the Decision names the first violated rule
// in resolution order — a deliberate, deterministic policy choice governing
// which message the caller sees.
//
// Store failures never propagate in lenient mode: the request is admitted
// with Decision.Degraded set. In strict mode Admit returns an error wrapping
// ErrStoreUnavailable or ErrStoreTimeout and no decision.
func (e *Engine) Admit(ctx context.Context, rctx *RequestContext) (*Decision, error) {
	now := rctx.Timestamp
	if now.IsZero() {
		now = e.now()
	}

	decision := &Decision{Allowed: true}
	var evals []evaluated
	var violatedRule *Rule
	var violatedRetry time.Duration

	for _, rule := range e.resolver.Resolve(rctx) {
		if rule.Exempts(rctx) {
			continue
		}

		ev := evaluated{rule: rule}
		ruleViolated := false
		var minReset time.Duration

		for _, w := range rule.Windows() {
			key := BuildKey(rule, rctx, w.Kind)
			res, err := e.check(ctx, key, w, now)
			if err != nil {
				return e.storeFailure(rctx, err, decision)
			}
			res.Key = key
			res.Rule = rule.Name
			res.Kind = w.Kind

			ev.windows = append(ev.windows, w)
			ev.keys = append(ev.keys, key)
			ev.checkIdx = append(ev.checkIdx, len(decision.Checks))
			decision.Checks = append(decision.Checks, res)

			if !res.Allowed {
				ruleViolated = true
				if wait := res.ResetAt.Sub(now); minReset == 0 || wait < minReset {
					minReset = wait
				}
			}
		}
		evals = append(evals, ev)

		if ruleViolated {
			e.logger.Debugf("rate limit rule %q violated for %s %s (ip=%s user=%s)",
				rule.Name, rctx.Method, rctx.Path, rctx.ClientIP, rctx.UserID)
			if rule.Block && violatedRule == nil {
				violatedRule = rule
				violatedRetry = minReset
			}
		}
	}

	if violatedRule != nil {
		decision.Allowed = false
		decision.Rule = violatedRule.Name
		decision.Message = violatedRule.Message
		if decision.Message == "" {
			decision.Message = "Too many requests"
		}
		if violatedRetry < time.Second {
			violatedRetry = time.Second
		}
		decision.RetryAfter = violatedRetry
		return decision, nil
	}

	// Admitted: count the request against every evaluated window and fold
	// the post-increment counts back into the captured check results, so
	// response headers reflect this request too.
	for _, ev := range evals {
		for i, w := range ev.windows {
			count, err := e.increment(ctx, ev.keys[i], w, now)
			if err != nil {
				return e.storeFailure(rctx, err, decision)
			}
			res := &decision.Checks[ev.checkIdx[i]]
			res.Current = count
			res.Remaining = w.Limit - count
			if res.Remaining < 0 {
				res.Remaining = 0
			}
		}
	}
	return decision, nil
}

// Reset clears every counter the caller currently maps to. Administrative
// operation; normal expiry is TTL-driven.
func (e *Engine) Reset(ctx context.Context, rctx *RequestContext) error {
	for _, rule := range e.resolver.Resolve(rctx) {
		for _, w := range rule.Windows() {
			callCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
			err := e.store.Reset(callCtx, BuildKey(rule, rctx, w.Kind))
			cancel()
			if err != nil {
				return fmt.Errorf("reset rule %q: %w", rule.Name, classify(err))
			}
		}
	}
	return nil
}

func (e *Engine) check(ctx context.Context, key string, w Window, now time.Time) (WindowCheckResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	return e.store.Check(callCtx, key, w.Limit, w.Duration, now)
}

func (e *Engine) increment(ctx context.Context, key string, w Window, now time.Time) (int64, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	return e.store.Increment(callCtx, key, w.Duration, now)
}

// storeFailure applies the fail-open/fail-closed policy. The partial
// decision accumulated so far is reused in lenient mode so headers can still
// be emitted for whatever was checked before the outage.
func (e *Engine) storeFailure(rctx *RequestContext, err error, partial *Decision) (*Decision, error) {
	kind := classify(err)
	if e.mode == ModeStrict {
		return nil, fmt.Errorf("admission check for %s %s: %w", rctx.Method, rctx.Path, kind)
	}
	e.logger.Warnf("counter store unavailable, failing open for %s %s: %v", rctx.Method, rctx.Path, err)
	partial.Allowed = true
	partial.Degraded = true
	return partial, nil
}

// classify maps raw store errors onto the closed error kinds callers are
// expected to branch on.
func classify(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrStoreTimeout, err)
	case errors.Is(err, ErrStoreTimeout), errors.Is(err, ErrStoreUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
