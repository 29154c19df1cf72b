// Package version exposes the binary's version string.
package version

import (
	"runtime/debug"
	"strings"
)

// These variables are populated at build time via -ldflags, e.g.
//
//	-X github.com/tis24dev/blocksave/internal/version.Version=v0.3.0
//	-X github.com/tis24dev/blocksave/internal/version.Commit=abcdef123
var (
	Version = "0.0.0-dev"
	Commit  = ""
)

// String returns the effective version: the ldflags-injected value, falling
// back to the main module version from build info, normalized without the
// leading "v".
func String() string {
	v := strings.TrimSpace(Version)
	if v == "" || v == "0.0.0-dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if mv := strings.TrimSpace(info.Main.Version); mv != "" && mv != "(devel)" {
				v = mv
			}
		}
	}
	if v == "" {
		v = "0.0.0-dev"
	}
	v = strings.TrimPrefix(v, "v")
	if Commit != "" {
		v += "+" + shortCommit(Commit)
	}
	return v
}

func shortCommit(c string) string {
	if len(c) > 8 {
		return c[:8]
	}
	return c
}
