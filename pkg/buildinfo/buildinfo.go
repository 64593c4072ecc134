// Package buildinfo reports the version of the dumpimport binary.
//
// Release builds inject the version, commit and date with -ldflags and
// pass them to Set from main. Builds from a git checkout fall back to the
// VCS settings embedded by the Go toolchain.
package buildinfo

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// Info holds the resolved build metadata.
type Info struct {
	Version  string // e.g. "v1.2.3", or "dev"
	Commit   string // full git commit hash, or "unknown"
	Date     string // RFC3339, or "unknown"
	Modified bool   // the working tree had uncommitted changes
	GoVer    string
}

// String is the text printed by --version.
func (i Info) String() string {
	commit := i.Commit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if i.Modified {
		commit += "-dirty"
	}
	s := fmt.Sprintf("dumpimport %s (commit %s, built %s", i.Version, commit, i.Date)
	if i.GoVer != "" {
		s += ", " + i.GoVer
	}
	return s + ")"
}

var (
	ldflagsVersion string
	ldflagsCommit  string
	ldflagsDate    string

	once   sync.Once
	cached Info
)

// Set stores the values injected with -ldflags. Call it from main before
// the first call to Get:
//
//	go build -ldflags "-X main.version=v1.2.3 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/dumpimport
func Set(version, commit, date string) {
	ldflagsVersion = version
	ldflagsCommit = commit
	ldflagsDate = date
}

// Get returns the build info, computed once.
func Get() Info {
	once.Do(func() {
		bi, _ := debug.ReadBuildInfo()
		cached = resolve(bi, ldflagsVersion, ldflagsCommit, ldflagsDate)
	})
	return cached
}

// resolve prefers the ldflags values over the VCS settings of bi, which
// may be nil.
func resolve(bi *debug.BuildInfo, version, commit, date string) Info {
	info := Info{Version: "dev", Commit: "unknown", Date: "unknown"}
	if bi != nil {
		info.GoVer = bi.GoVersion
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Commit = s.Value
			case "vcs.time":
				info.Date = s.Value
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
		if bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
	}
	if version != "" {
		info.Version = version
	}
	if commit != "" {
		info.Commit = commit
	}
	if date != "" {
		info.Date = date
	}
	return info
}
