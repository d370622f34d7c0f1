// Package version holds build-time version information for skybridge.
package version

// Version is the semantic version of the running binary. Overridden at
// build time via -ldflags "-X skybridge/internal/version.Version=...".
var Version = "v0.1.0-dev"
