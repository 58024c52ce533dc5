// Package version exposes the build identity of the server.
package version

import "runtime"

// Version is overridden at build time via
// -ldflags "-X sitemedic/internal/version.Version=x.y.z".
var Version = "dev"

// Info is the payload returned by the version endpoint.
type Info struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
}

// Get returns the current build identity.
func Get() Info {
	return Info{
		Version:   Version,
		GoVersion: runtime.Version(),
	}
}
