// Package version carries the build identity. Commit and BuildDate are
// stamped in at link time with -ldflags -X; defaults cover local builds.
package version

import "fmt"

var (
	CLIName    = "mina"
	CLIVersion = "0.1.0"
	Commit     = "unknown"
	BuildDate  = "unknown"
)

// Long is the verbose form shown by `mina version --long`.
func Long() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", CLIVersion, Commit, BuildDate)
}

// UserAgent identifies this build to the bridge gateway.
func UserAgent() string {
	return fmt.Sprintf("%s-cli/%s", CLIName, CLIVersion)
}
