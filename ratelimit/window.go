package ratelimit

import "time"

// WindowKind identifies one of the sliding windows a rule may configure.
type WindowKind string

const (
	WindowSecond WindowKind = "second"
	WindowMinute WindowKind = "minute"
	WindowHour   WindowKind = "hour"
	WindowDay    WindowKind = "day"
	WindowBurst  WindowKind = "burst"
)

// Window is one concrete sliding window derived from a rule's limits.
type Window struct {
	Kind     WindowKind
	Limit    int64
	Duration time.Duration
}
