package version

import "fmt"

// Set at build time with -ldflags "-X .../version.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func Full() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}

func Short() string {
	return Version
}
