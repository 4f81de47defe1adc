// Package build carries version and naming constants set at link time.
package build

import "strings"

var (
	// Version is the daemon version string, overridden via -ldflags at build time.
	Version = "dev"
	// AppName is the human-readable application name.
	AppName = "lmapd"
	// Slug is the lowercase, filesystem-safe form of AppName. The default
	// directories and the meta CSV magic line do not read it.
	Slug = ""
)

func init() {
	if Slug == "" {
		Slug = strings.ToLower(AppName)
	}
}
