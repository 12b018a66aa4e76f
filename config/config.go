// Package config holds the build information reported by the winpe
// binary.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// name, buildTime and commit are filled in during build by the Makefile.
var (
	name      = "winpe"
	buildTime = "N/A"
	commit    = "N/A"
)

// Set updates the name, version and build time reported by Version and
// ReleaseDate.
func Set(n, v, t string) {
	name = n
	buildTime = t
	commit = v
}

// Version returns the current version of the binary.
func Version() string {
	out := commit
	if commit == "N/A" {
		out = "0000000-dev"
	}

	return fmt.Sprintf("%s/%s (%s/%s)",
		name, out, runtime.GOOS, runtime.GOARCH)
}

// ReleaseDate returns the time of when the binary was built.
func ReleaseDate() string {
	out := buildTime
	if buildTime == "N/A" {
		out = time.Now().UTC().Format("2006-01-02 15:04 MST")
	}

	return out
}
