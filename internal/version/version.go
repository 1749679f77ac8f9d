// Package version reports build information for the gateway binary. The
// values are overwritten at link time via -ldflags by the release process.
package version

import (
	"fmt"
	"time"
)

var (
	BuildTime = time.Time{}
	GitSHA    = ""
)

// String returns a newline-terminated description of the current build.
func String() string {
	if GitSHA == "" {
		return "devel\n"
	}
	return fmt.Sprintf("Build time: %s\nGit hash:   %s\n",
		BuildTime.In(time.UTC).Format(time.Stamp+" 2006 UTC"), GitSHA)
}
