// Package version exposes build metadata injected at link time via
// -ldflags "-X github.com/fleetline/pelorus/common/version.Version=...".
package version

var (
	// Version is the semantic version or git describe output.
	Version = "dev"
	// GitCommit is the short commit hash of the build.
	GitCommit = "unknown"
	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)
