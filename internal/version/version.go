// Package version provides build-time version information.
package version

import "fmt"

// Set via -ldflags at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info is the build information reported by the API and the CLI.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// Get returns the current build information.
func Get() Info {
	return Info{Version: Version, Commit: Commit, BuildDate: BuildDate}
}

func (i Info) String() string {
	return fmt.Sprintf("smarttodo %s (commit %s, built %s)", i.Version, i.Commit, i.BuildDate)
}
