// Package buildinfo holds build-time metadata kept apart from user configuration.
package buildinfo

import "fmt"

// UnknownValue is reported for metadata the build did not inject.
const UnknownValue = "unknown"

// Injected with -ldflags "-X github.com/naturethrive/birdmonitor/internal/buildinfo.version=v1.2.0".
var (
	version   string
	buildDate string
)

// Context contains build-time metadata.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string
}

// NewContext creates a Context from explicit values.
func NewContext(version, buildDate string) *Context {
	return &Context{Version: version, BuildDate: buildDate}
}

// Current returns the metadata injected into this binary.
func Current() *Context {
	return NewContext(version, buildDate)
}

// GetVersion returns the version, or UnknownValue.
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate returns the build date, or UnknownValue.
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// ReleaseVersion is the version reported to error telemetry; empty for
// development builds.
func (c *Context) ReleaseVersion() string {
	if c == nil {
		return ""
	}
	return c.Version
}

// String formats the metadata for --version output.
func (c *Context) String() string {
	return fmt.Sprintf("%s (built %s)", c.GetVersion(), c.GetBuildDate())
}
