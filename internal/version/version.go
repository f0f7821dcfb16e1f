// Package version reports the wsterm release.
package version

// Version is overridden at build time with
// -ldflags "-X github.com/omochice/wsterm/internal/version.Version=v1.2.3".
var Version = "0.1.0-dev"

// String returns the line printed by --version.
func String() string {
	return "wsterm " + Version
}
