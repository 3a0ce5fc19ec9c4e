// pkg/version/version.go

package version

import (
	"runtime/debug"
)

// Version is stamped at build time via -ldflags "-X .../pkg/version.Version=...".
var Version = ""

// Get returns the build version, falling back to module build info for
// plain `go install` binaries.
func Get() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "0.0.0-dev"
}
