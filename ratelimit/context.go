package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"time"
)

// AnonymousRole is the role assigned to unauthenticated callers.
const AnonymousRole = "anonymous"

// Identity is what the upstream authentication middleware knows about the
// caller. Zero values mean unauthenticated.
type Identity struct {
	UserID  string
	Role    string
	HotelID string
}

// RequestContext carries everything the engine needs about one request. It
// is created once per request, is immutable afterwards and is never
// persisted.
type RequestContext struct {
	Path      string
	Method    string
	ClientIP  string
	UserID    string
	UserRole  string
	HotelID   string
	Timestamp time.Time
}

// FromRequest derives a RequestContext from the inbound request and the
// authenticated identity. trustForwardedFor controls whether the first
// X-Forwarded-For entry overrides the socket address.
func FromRequest(r *http.Request, id Identity, now time.Time, trustForwardedFor bool) *RequestContext {
	role := id.Role
	if role == "" {
		role = AnonymousRole
	}
	return &RequestContext{
		Path:      r.URL.Path,
		Method:    r.Method,
		ClientIP:  clientIP(r, trustForwardedFor),
		UserID:    id.UserID,
		UserRole:  role,
		HotelID:   id.HotelID,
		Timestamp: now,
	}
}

func clientIP(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// First entry is the original client.
			if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
