// Package version carries build identification, overridden via -ldflags.
package version

var (
	// Version is the release version of the build
	Version = "dev"
	// GitSHA is the git commit the build was produced from
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)
