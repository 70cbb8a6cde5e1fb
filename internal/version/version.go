package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Build information, set with -ldflags "-X .../internal/version.Version=1.2.3".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = runtime.Version()
)

type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// Get returns the build information. Development builds fall back to the VCS
// revision recorded by the toolchain.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: GoVersion,
	}
	if info.GitCommit == "unknown" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				switch s.Key {
				case "vcs.revision":
					info.GitCommit = s.Value
				case "vcs.time":
					if info.BuildDate == "unknown" {
						info.BuildDate = s.Value
					}
				}
			}
		}
	}
	return info
}

func (i Info) ShortCommit() string {
	return i.GitCommit[:min(7, len(i.GitCommit))]
}

func String() string {
	i := Get()
	v := i.Version
	if v != "dev" {
		v = "v" + v
	}
	return fmt.Sprintf("pdfmerger %s (commit %s, built %s with %s)", v, i.ShortCommit(), i.BuildDate, i.GoVersion)
}
