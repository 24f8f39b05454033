package ratelimit

import "strings"

// BuildKey derives the storage key for one (rule, caller, window) tuple.
//
// Keys are pure functions of the rule and request context: they embed no
// process-local state, so two instances sharing a store always derive the
// same key for the same logical caller. The layout is
// "<rule name>:<scope discriminator>:<window kind>".
func BuildKey(rule *Rule, rctx *RequestContext, kind WindowKind) string {
	return rule.Name + ":" + discriminator(rule, rctx) + ":" + string(kind)
}

func discriminator(rule *Rule, rctx *RequestContext) string {
	switch rule.Scope {
	case ScopeGlobal:
		return "global"
	case ScopePerIP:
		return "ip:" + sanitize(rctx.ClientIP)
	case ScopePerUser:
		return userDiscriminator(rctx)
	case ScopePerHotel:
		if rctx.HotelID != "" {
			return "hotel:" + sanitize(rctx.HotelID)
		}
		return "ip:" + sanitize(rctx.ClientIP)
	case ScopePerEndpoint:
		return "endpoint:" + sanitize(rctx.Method) + ":" + sanitize(rule.matchedPrefix(rctx.Path))
	case ScopeCombined:
		return userDiscriminator(rctx) +
			":hotel:" + sanitize(rctx.HotelID) +
			":endpoint:" + sanitize(rctx.Method) + ":" + sanitize(rule.matchedPrefix(rctx.Path))
	}
	return "global"
}

// userDiscriminator falls back to the client address for unauthenticated
// callers, so anonymous traffic under a per-user rule is still limited per
// source instead of sharing one counter.
func userDiscriminator(rctx *RequestContext) string {
	if rctx.UserID != "" {
		return "user:" + sanitize(rctx.UserID)
	}
	return "ip:" + sanitize(rctx.ClientIP)
}

// sanitize keeps raw identifiers from colliding with the key separator.
func sanitize(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}
