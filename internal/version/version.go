package version

import (
	"crypto/sha256"
	"fmt"
	"runtime/debug"
	"sync"
)

// Version information for ccindex
const (
	Version = "0.3.0"

	// BuildDate is set during build time (use -ldflags)
	BuildDate = "development"

	// GitCommit is set during build time (use -ldflags)
	GitCommit = "unknown"
)

// Info returns version information as a string
func Info() string {
	return Version
}

// FullInfo returns detailed version information
func FullInfo() string {
	return "ccindex " + Version + " (commit: " + GitCommit + ", built: " + BuildDate + ")"
}

var (
	buildID     string
	buildIDOnce sync.Once
)

// BuildID fingerprints the running binary. The MCP server reports it so that
// clients can tell a rebuilt server from a stale one.
func BuildID() string {
	buildIDOnce.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			buildID = Version + "-" + GitCommit
			return
		}
		h := sha256.New()
		h.Write([]byte(info.GoVersion))
		h.Write([]byte(info.Main.Path))
		h.Write([]byte(info.Main.Version))
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" || s.Key == "vcs.modified" {
				h.Write([]byte(s.Key + s.Value))
			}
		}
		buildID = fmt.Sprintf("%x", h.Sum(nil))[:16]
	})
	return buildID
}
