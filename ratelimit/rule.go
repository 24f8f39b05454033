package ratelimit

import (
	"fmt"
	"net"
	"sort"
	"strings"
	"time"
)

// Scope is the dimension along which a rule's counters are partitioned.
type Scope string

const (
	ScopeGlobal      Scope = "global"
	ScopePerIP       Scope = "per_ip"
	ScopePerUser     Scope = "per_user"
	ScopePerHotel    Scope = "per_hotel"
	ScopePerEndpoint Scope = "per_endpoint"
	ScopeCombined    Scope = "combined"
)

// Rule is a single named admission policy. Rules are loaded once at startup
// and are read-only afterwards; the engine never mutates them.
type Rule struct {
	// Name is unique across the rule set. It namespaces counter keys and
	// shows up in logs and denial responses.
	Name  string
	Scope Scope

	// Limits per sliding window. Zero means the window is not configured.
	// At least one limit (or a burst pair) must be set; Validate enforces
	// this at load time.
	RequestsPerSecond int64
	RequestsPerMinute int64
	RequestsPerHour   int64
	RequestsPerDay    int64

	// BurstLimit caps requests inside a short BurstWindow, independently of
	// the windows above. Both fields must be set together.
	BurstLimit  int64
	BurstWindow time.Duration

	// Paths narrows the rule to requests whose path has one of these
	// prefixes. Empty means the rule matches every path.
	Paths []string
	// Methods narrows the rule to these HTTP methods. Empty matches all.
	Methods []string

	// UserRoles, when non-empty, is an allow-list: callers whose role is
	// not listed are exempt from this rule.
	UserRoles []string

	// ExemptIPs and ExemptUsers bypass the rule entirely. Entries in
	// ExemptIPs that do not parse as IP addresses never match anything.
	ExemptIPs   []string
	ExemptUsers []string

	// Block controls whether a violation denies the request. A non-blocking
	// rule still has its counters maintained and its violations logged.
	Block bool

	// Message overrides the denial message sent to the caller.
	Message string
}

// Validate reports configuration errors. A rule with no configured limits is
// rejected here so that it can never reach request time.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return &ConfigError{Err: fmt.Errorf("rule name is required")}
	}
	if strings.Contains(r.Name, ":") {
		return &ConfigError{Rule: r.Name, Err: fmt.Errorf("rule name must not contain ':'")}
	}
	switch r.Scope {
	case ScopeGlobal, ScopePerIP, ScopePerUser, ScopePerHotel, ScopePerEndpoint, ScopeCombined:
	default:
		return &ConfigError{Rule: r.Name, Err: fmt.Errorf("unknown scope %q", r.Scope)}
	}
	if r.RequestsPerSecond < 0 || r.RequestsPerMinute < 0 || r.RequestsPerHour < 0 || r.RequestsPerDay < 0 {
		return &ConfigError{Rule: r.Name, Err: fmt.Errorf("limits must be positive")}
	}
	if (r.BurstLimit > 0) != (r.BurstWindow > 0) {
		return &ConfigError{Rule: r.Name, Err: fmt.Errorf("burst_limit and burst_window_seconds must be set together")}
	}
	if len(r.Windows()) == 0 {
		return &ConfigError{Rule: r.Name, Err: ErrNoLimits}
	}
	return nil
}

// Windows expands the rule's configured limits into concrete sliding
// windows, one per window kind.
func (r *Rule) Windows() []Window {
	var windows []Window
	if r.RequestsPerSecond > 0 {
		windows = append(windows, Window{Kind: WindowSecond, Limit: r.RequestsPerSecond, Duration: time.Second})
	}
	if r.RequestsPerMinute > 0 {
		windows = append(windows, Window{Kind: WindowMinute, Limit: r.RequestsPerMinute, Duration: time.Minute})
	}
	if r.RequestsPerHour > 0 {
		windows = append(windows, Window{Kind: WindowHour, Limit: r.RequestsPerHour, Duration: time.Hour})
	}
	if r.RequestsPerDay > 0 {
		windows = append(windows, Window{Kind: WindowDay, Limit: r.RequestsPerDay, Duration: 24 * time.Hour})
	}
	if r.BurstLimit > 0 && r.BurstWindow > 0 {
		windows = append(windows, Window{Kind: WindowBurst, Limit: r.BurstLimit, Duration: r.BurstWindow})
	}
	return windows
}

// Matches reports whether the rule applies to the given path and method.
func (r *Rule) Matches(path, method string) bool {
	if len(r.Paths) > 0 {
		matched := false
		for _, prefix := range r.Paths {
			if strings.HasPrefix(path, prefix) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(r.Methods) > 0 {
		matched := false
		for _, m := range r.Methods {
			if strings.EqualFold(m, method) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// Exempts reports whether the caller bypasses this rule entirely, either via
// the role allow-list or the explicit IP/user exemption sets.
func (r *Rule) Exempts(rctx *RequestContext) bool {
	if len(r.UserRoles) > 0 {
		listed := false
		for _, role := range r.UserRoles {
			if strings.EqualFold(role, rctx.UserRole) {
				listed = true
				break
			}
		}
		if !listed {
			return true
		}
	}
	if rctx.UserID != "" {
		for _, u := range r.ExemptUsers {
			if u == rctx.UserID {
				return true
			}
		}
	}
	if clientIP := net.ParseIP(rctx.ClientIP); clientIP != nil {
		for _, entry := range r.ExemptIPs {
			// Entries that are not valid addresses never match.
			if ip := net.ParseIP(strings.TrimSpace(entry)); ip != nil && ip.Equal(clientIP) {
				return true
			}
		}
	}
	return false
}

// matchedPrefix returns the first configured path prefix matching path, or
// path itself when the rule has no path list. Used by the key builder so
// that every request hitting the same endpoint rule shares one counter.
func (r *Rule) matchedPrefix(path string) string {
	for _, prefix := range r.Paths {
		if strings.HasPrefix(path, prefix) {
			return prefix
		}
	}
	return path
}

// RuleSet is the immutable, process-wide rule configuration.
type RuleSet struct {
	// Global is the default rule applied to every request. Required.
	Global *Rule
	// Roles maps a caller role to its role-based rule.
	Roles map[string]*Rule
	// Endpoints holds endpoint-scoped rules, evaluated in order.
	Endpoints []*Rule
	// Tiers maps a hotel subscription tier to its rule.
	Tiers map[string]*Rule
}

// Validate checks every rule in the set and that rule names are unique.
func (rs *RuleSet) Validate() error {
	if rs.Global == nil {
		return &ConfigError{Err: fmt.Errorf("global rule is required")}
	}
	seen := make(map[string]struct{})
	for _, rule := range rs.All() {
		if err := rule.Validate(); err != nil {
			return err
		}
		if _, dup := seen[rule.Name]; dup {
			return &ConfigError{Rule: rule.Name, Err: fmt.Errorf("duplicate rule name")}
		}
		seen[rule.Name] = struct{}{}
	}
	return nil
}

// All returns every rule in the set in a stable order.
func (rs *RuleSet) All() []*Rule {
	var rules []*Rule
	if rs.Global != nil {
		rules = append(rules, rs.Global)
	}
	for _, role := range sortedKeys(rs.Roles) {
		rules = append(rules, rs.Roles[role])
	}
	rules = append(rules, rs.Endpoints...)
	for _, tier := range sortedKeys(rs.Tiers) {
		rules = append(rules, rs.Tiers[tier])
	}
	return rules
}

func sortedKeys(m map[string]*Rule) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
