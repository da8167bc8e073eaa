// SPDX-License-Identifier: MIT
//
// Package build exposes the name, version, commit and build time embedded
// into the binary at link time, for example:
//
//	go build -ldflags "-X soundmeter/pkg/build.buildName=soundmeter -X soundmeter/pkg/build.buildVersion=0.1.0 ..."
//
// Development builds run without them and report "unknown".
package build

import (
	"errors"
	"fmt"
)

// Description is the one-line summary shown in the command help.
const Description = "Real-time noise level and frequency spectrum meter"

// ErrMissingFlag is wrapped by Initialize when an ldflags value is absent.
var ErrMissingFlag = errors.New("build flag missing")

type ldFlags struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

// String formats the flags for --version output.
func (f *ldFlags) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", f.Version, f.Commit, f.Time)
}

// Package-level variables for build information. These are populated by -ldflags
// during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = defaultFlags()
)

func defaultFlags() *ldFlags {
	return &ldFlags{
		Name:    "soundmeter",
		Time:    "unknown",
		Commit:  "unknown",
		Version: "unknown",
	}
}

// Initialize validates and copies build information from ldflags variables
// into the buildFlags struct. On error the defaults stay in place, so the
// caller may log it and carry on.
func Initialize() error {
	required := []struct{ name, value string }{
		{"BuildName", buildName},
		{"BuildTime", buildTime},
		{"BuildCommit", buildCommit},
		{"BuildVersion", buildVersion},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: %s", ErrMissingFlag, r.name)
		}
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}
