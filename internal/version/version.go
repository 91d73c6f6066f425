// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package version provides the version information of scledgerd.
package version

import (
	"fmt"
	"regexp"
	"runtime/debug"
	"strconv"
	"strings"
)

// semanticAlphabet defines the allowed characters for the pre-release and
// build metadata portions of a semantic version string.
const semanticAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-."

// semverRE splits a semantic version string into its constituent parts.
var semverRE = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)` +
	`(?:-((?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*` +
	`[a-zA-Z-][0-9a-zA-Z-]*))*))?(?:\+([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?$`)

var (
	// Version is the semantic version of the application.  Release builds
	// override it with:
	// '-ldflags "-X github.com/decred/scledger/internal/version.Version=fullsemver"'
	//
	// It MUST be a full semantic version or the package panics at init.
	Version = "0.1.0-pre"

	// Components of Version, set during init.
	Major         uint
	Minor         uint
	Patch         uint
	PreRelease    string
	BuildMetadata string
)

// semVer holds the parsed components of a semantic version string.
type semVer struct {
	major, minor, patch uint
	preRelease, build   string
}

// parseSemVer parses the components of the provided version string.
func parseSemVer(s string) (*semVer, error) {
	m := semverRE.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("malformed version string %q: does not "+
			"conform to semver specification", s)
	}

	var v semVer
	fields := []struct {
		name string
		dst  *uint
	}{{"major", &v.major}, {"minor", &v.minor}, {"patch", &v.patch}}
	for i, f := range fields {
		val, err := strconv.ParseUint(m[i+1], 10, 0)
		if err != nil {
			return nil, fmt.Errorf("malformed semver %s: %w", f.name, err)
		}
		*f.dst = uint(val)
	}
	v.preRelease, v.build = m[4], m[5]
	return &v, nil
}

// vcsCommitID returns the abbreviated commit the binary was built from, if
// the toolchain recorded one.
func vcsCommitID() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var vcs, revision string
	for _, bs := range bi.Settings {
		switch bs.Key {
		case "vcs":
			vcs = bs.Value
		case "vcs.revision":
			revision = bs.Value
		}
	}
	if vcs == "git" && len(revision) > 9 {
		revision = revision[:9]
	}
	return revision
}

func init() {
	v, err := parseSemVer(Version)
	if err != nil {
		panic(err)
	}
	Major, Minor, Patch = v.major, v.minor, v.patch
	PreRelease, BuildMetadata = v.preRelease, v.build
	if BuildMetadata == "" {
		BuildMetadata = NormalizeString(vcsCommitID())
		if BuildMetadata != "" {
			Version = fmt.Sprintf("%s+%s", Version, BuildMetadata)
		}
	}
}

// String returns the application version.
func String() string {
	return Version
}

// NormalizeString returns the passed string stripped of all characters which
// are not valid in pre-release and build metadata strings.
func NormalizeString(str string) string {
	var b strings.Builder
	for _, r := range str {
		if strings.ContainsRune(semanticAlphabet, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
