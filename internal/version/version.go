// Package version reports the snapshot binary's version and build metadata.
package version

import (
	_ "embed"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

//go:embed VERSION
var versionFile string

// Set via:
//
//	go build -ldflags "-X github.com/leefowlercu/asset-snapshot/internal/version.gitCommit=VALUE"
var (
	gitCommit string
	buildDate string
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// String formats Info for human-readable display.
func (i Info) String() string {
	return fmt.Sprintf("Version:    %s\nGit Commit: %s\nBuild Date: %s\nGo:         %s\nPlatform:   %s",
		i.Version, i.GitCommit, i.BuildDate, i.GoVersion, i.Platform)
}

// UserAgent returns the value sent as User-Agent to the catalog server.
func (i Info) UserAgent() string {
	return "asset-snapshot/" + i.Version
}

// Get returns the populated Info.
func Get() Info {
	return Info{
		Version:   getVersion(),
		GitCommit: getGitCommit(),
		BuildDate: getBuildDate(),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func getVersion() string {
	return strings.TrimSpace(versionFile)
}

// getGitCommit prefers the linker flag, then VCS build info.
func getGitCommit() string {
	if gitCommit != "" {
		return gitCommit
	}

	revision, dirty := readBuildInfo()
	if revision == "" {
		return "unknown"
	}
	if dirty {
		return revision + "-dirty"
	}
	return revision
}

func getBuildDate() string {
	if buildDate != "" {
		return buildDate
	}
	return "unknown"
}

// readBuildInfo returns the short VCS revision and whether the tree was dirty.
func readBuildInfo() (revision string, dirty bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", false
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
			if len(revision) > 7 {
				revision = revision[:7]
			}
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}

	return revision, dirty
}
