// SPDX-License-Identifier: MIT
//
// Package build carries metadata embedded into the binary at compile
// time via linker flags: application name, build timestamp, Git commit
// and semantic version. Development builds without ldflags fall back to
// sensible placeholders.
package build

type ldFlags struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

// Package-level variables populated by -ldflags during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
)

// Flags returns the build information, substituting placeholders for
// anything the linker did not set.
func Flags() *ldFlags {
	f := &ldFlags{
		Name:    buildName,
		Time:    buildTime,
		Commit:  buildCommit,
		Version: buildVersion,
	}
	if f.Name == "" {
		f.Name = "sndsync"
	}
	if f.Time == "" {
		f.Time = "unknown"
	}
	if f.Commit == "" {
		f.Commit = "unknown"
	}
	if f.Version == "" {
		f.Version = "dev"
	}
	return f
}
