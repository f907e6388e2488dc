// Package constant defines immutable application-level identifiers and configuration defaults.
package constant

const (
	// App is the canonical application identifier used for filesystem paths and CLI branding.
	App = "massd"

	// Version is the current application semantic version string.
	Version = "0.3.0"

	// ClientName is announced to the Music Assistant server during the stream transport handshake.
	ClientName = "massd"
)

// Build metadata, overridden at link time with -ldflags "-X".
var (
	BuiltAt  = ""
	BuiltBy  = ""
	Revision = ""
)
