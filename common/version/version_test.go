package version_test

import (
	"testing"

	"github.com/igorvasilek/hoshi/common/version"
)

func TestInfo(t *testing.T) {
	old := [3]string{version.Version, version.GitCommit, version.BuildTime}
	t.Cleanup(func() { version.Version, version.GitCommit, version.BuildTime = old[0], old[1], old[2] })

	version.Version, version.GitCommit, version.BuildTime = "v1.0.0", "abc123", "2025-01-01"
	if got, want := version.Info(), "v1.0.0 (abc123, built 2025-01-01)"; got != want {
		t.Errorf("Info: got %q, want %q", got, want)
	}
	if args := version.LogArgs(); len(args) != 6 || args[1] != "v1.0.0" {
		t.Errorf("LogArgs: got %v", args)
	}
}
