// Package version holds build metadata for the vibesrails binary.
package version

// Overridable at build time:
// go build -ldflags "-X vibesrails/internal/version.Version=1.0.0 -X vibesrails/internal/version.Commit=abc123"
var (
	// Version is the semantic version of vibesrails
	Version = "0.4.0"

	// Commit is the git commit hash (set at build time)
	Commit = "unknown"

	// BuildDate is the build timestamp (set at build time)
	BuildDate = "unknown"
)

// BuildInfo is the machine-readable form printed by `vibesrails version --format json`.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
}

// Get returns the current build metadata.
func Get() BuildInfo {
	return BuildInfo{Version: Version, Commit: Commit, BuildDate: BuildDate}
}

// Info returns the version with a short commit suffix when one is known.
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// Full returns the multi-line banner.
func Full() string {
	return "vibesrails " + Version + "\n" +
		"commit: " + Commit + "\n" +
		"built:  " + BuildDate
}
