// Package buildinfo carries version identifiers injected at build time
// via -ldflags.
package buildinfo

var (
	Version   = "dev"
	Revision  = "unknown"
	BuildDate = "unknown"
)
