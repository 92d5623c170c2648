// Package version holds the build version string.
package version

// Version is overridden at build time via
// -ldflags "-X roamradio/pkg/version.Version=...".
var Version = "0.3.0-dev"
