// Package version reports the pacparser build and the script engine it embeds.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/rennerdo30/pacparser/internal/version.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// engineModule is the JavaScript engine whose version is reported in Info.
const engineModule = "github.com/dop251/goja"

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Engine    string `json:"engine"`
}

// Get returns the build information of the running binary.
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Engine:    moduleVersion(engineModule),
	}
}

// String formats i on one line.
func (i Info) String() string {
	return fmt.Sprintf("pacparser %s (%s) built %s, goja %s, %s %s",
		i.Version, i.GitCommit, i.BuildTime, i.Engine, i.GoVersion, i.Platform)
}

// UserAgent is the User-Agent sent when fetching PAC files and URLs.
func UserAgent() string {
	return "pacparser/" + Version
}

func moduleVersion(path string) string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range bi.Deps {
		if dep.Path != path {
			continue
		}
		if dep.Replace != nil {
			return dep.Replace.Version
		}
		return dep.Version
	}
	return "unknown"
}
