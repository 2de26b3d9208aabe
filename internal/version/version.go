// Package version exposes the release version embedded at build time.
package version

import (
	_ "embed"
	"fmt"
	"runtime"
	"strings"
)

//go:embed VERSION
var versionContent string

// Get returns the current version with whitespace trimmed.
func Get() string {
	return strings.TrimSpace(versionContent)
}

// Banner returns the one-line version string printed by the CLI.
func Banner() string {
	return fmt.Sprintf("phasegate %s (%s %s/%s)", Get(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
