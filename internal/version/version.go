package version

import (
	"runtime/debug"
)

// Set with -ldflags "-X github.com/fmueller/voxbatch/internal/version.Version=...".
var (
	Version = "0.1.0"
	Commit  = ""
)

type buildInfoFunc func() (*debug.BuildInfo, bool)

// Resolve returns the version string, with the VCS revision appended when
// the binary was not built from a release with an explicit commit.
func Resolve() string {
	return resolveVersion(Version, Commit, debug.ReadBuildInfo)
}

func resolveVersion(base, commit string, readInfo buildInfoFunc) string {
	if base == "" {
		base = "0.0.0"
	}

	suffix := commit
	if suffix == "" {
		suffix = revisionFromBuildInfo(readInfo)
	}
	if suffix == "" {
		return base
	}
	return base + "+" + suffix
}

func revisionFromBuildInfo(readInfo buildInfoFunc) string {
	info, ok := readInfo()
	if !ok || info == nil {
		return ""
	}

	var revision string
	var modified bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}
	if revision == "" {
		return ""
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}
	if modified {
		revision += "-dirty"
	}
	return revision
}
