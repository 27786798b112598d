package version

var (
	// Version is the current application version, set via ldflags at release time.
	Version = "v0.4.0"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)

// UserAgent is sent on every outbound request.
func UserAgent() string {
	return "streamview/" + Version
}
