// Package buildinfo contains build-time metadata kept apart from user configuration.
package buildinfo

import "time"

// UnknownValue is reported for metadata that was not injected at build time.
const UnknownValue = "unknown"

// Context contains build-time metadata and the process start time.
type Context struct {
	version   string
	buildDate string
	startedAt time.Time
}

// NewContext records build metadata and marks the process start.
func NewContext(version, buildDate string) *Context {
	return &Context{
		version:   version,
		buildDate: buildDate,
		startedAt: time.Now(),
	}
}

// Version returns the Git version tag the binary was built from.
func (c *Context) Version() string {
	if c == nil || c.version == "" {
		return UnknownValue
	}
	return c.version
}

// BuildDate returns the time the binary was built.
func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}

// Uptime returns the time since NewContext was called.
func (c *Context) Uptime() time.Duration {
	if c == nil || c.startedAt.IsZero() {
		return 0
	}
	return time.Since(c.startedAt)
}
