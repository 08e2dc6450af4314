// Package version holds build metadata stamped in at link time:
//
//	go build -ldflags "-X github.com/igorvasilek/hoshi/common/version.Version=v1.2.0"
package version

import "fmt"

var (
	Version   = "dev"
	GitCommit = "none"
	BuildTime = "unknown"
)

// Info returns "<version> (<commit>, built <time>)".
func Info() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, GitCommit, BuildTime)
}

// LogArgs returns the build metadata as slog key/value pairs.
func LogArgs() []any {
	return []any{"version", Version, "commit", GitCommit, "build_time", BuildTime}
}
