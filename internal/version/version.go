package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the semantic version of the binary. Overridden at build time.
	Version = "dev"
	// Commit is the git commit hash. Overridden at build time.
	Commit = "unknown"
	// BuildDate is the build timestamp. Overridden at build time.
	BuildDate = "unknown"
)

// Info renders the build metadata for the version command.
func Info() string {
	return fmt.Sprintf("govsim %s\ncommit: %s\nbuilt: %s\ngo: %s", Version, Commit, BuildDate, runtime.Version())
}
