// Package version holds build information stamped in at link time.
package version

// Version, GitCommit, and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/newtron-network/provtest/pkg/version.Version=v1.0.0 \
//	  -X github.com/newtron-network/provtest/pkg/version.GitCommit=abc1234 \
//	  -X github.com/newtron-network/provtest/pkg/version.BuildDate=2026-01-01T00:00:00Z"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// IsDev reports whether the binary was built without version ldflags.
func IsDev() bool { return Version == "dev" }

// Info returns a formatted version string for display.
func Info() string {
	return Version + " (" + GitCommit + ") built " + BuildDate
}

// UserAgent identifies provtest to HTTP device APIs.
func UserAgent() string {
	return "provtest/" + Version
}
