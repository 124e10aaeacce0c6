// Package version provides build information for the waterfall tools
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Build-time variables that can be set via ldflags
var (
	// Version is the release number of the tools
	Version = "0.1.0"

	// GitCommit is the git sha1 that was compiled
	GitCommit = "unknown"

	// BuildDate is the date the binary was built
	BuildDate = "unknown"
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string
	GitCommit string
	Modified  bool // Working tree had local changes
	BuildDate string
	GoVersion string
	Platform  string
}

// GetBuildInfo returns build information. Values not set through ldflags
// are taken from the VCS stamp embedded by the go tool, when present.
func GetBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.GitCommit == "unknown" {
					info.GitCommit = s.Value
				}
			case "vcs.time":
				if info.BuildDate == "unknown" {
					info.BuildDate = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}
	return info
}

// GetFullVersion returns the version with a short commit suffix
func GetFullVersion() string {
	info := GetBuildInfo()
	if info.GitCommit == "unknown" {
		return info.Version
	}
	v := info.Version + "-" + shortCommit(info.GitCommit)
	if info.Modified {
		v += "-dirty"
	}
	return v
}

func shortCommit(c string) string {
	if len(c) > 7 {
		return c[:7]
	}
	return c
}

// GetVersionInfo returns formatted version information for appName
func GetVersionInfo(appName string) string {
	info := GetBuildInfo()

	var b strings.Builder
	fmt.Fprintf(&b, "%s version %s", appName, info.Version)
	if info.GitCommit != "unknown" {
		fmt.Fprintf(&b, " (commit %s)", shortCommit(info.GitCommit))
	}
	if info.BuildDate != "unknown" {
		fmt.Fprintf(&b, "\nBuilt: %s", info.BuildDate)
	}
	fmt.Fprintf(&b, "\nGo: %s", info.GoVersion)
	fmt.Fprintf(&b, "\nPlatform: %s", info.Platform)
	return b.String()
}
