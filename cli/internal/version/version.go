// Package version carries build metadata stamped via -ldflags.
package version

var (
	// Version is the semantic version of this build.
	Version = "0.1.0"
	// Commit is the git revision the binary was built from.
	Commit = "dev"
)

// String returns "version (commit)".
func String() string {
	return Version + " (" + Commit + ")"
}
