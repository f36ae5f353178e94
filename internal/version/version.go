// Package version exposes the build version string.
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	// Version can be overridden by ldflags at build time.
	Version = "dev"
	// CommitHash is the git commit hash, overridable by ldflags; when empty
	// it is read from the embedded build info.
	CommitHash = ""
)

// GetInfo returns the version string with the short commit hash appended.
func GetInfo() string {
	if CommitHash == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, setting := range info.Settings {
				if setting.Key == "vcs.revision" {
					CommitHash = setting.Value
				}
			}
		}
	}

	res := Version
	if CommitHash != "" {
		shortHash := CommitHash
		if len(shortHash) > 7 {
			shortHash = shortHash[:7]
		}
		res += fmt.Sprintf(" (%s)", shortHash)
	}
	return res
}
