// Package version holds build metadata injected via -ldflags, e.g.
//
//	go build -ldflags "-X zhenghe/internal/version.Version=v1.2.0"
package version

import (
	"fmt"
	"runtime"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns a one-line description of the build.
func Info() string {
	return fmt.Sprintf("zhenghe %s (commit %s, built %s, %s)", Version, Commit, Date, runtime.Version())
}
