// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package version

import "testing"

// TestSemVerParsing ensures parsing a semantic version string works as
// expected.
func TestSemVerParsing(t *testing.T) {
	tests := []struct {
		ver     string // semantic version string to parse
		want    semVer // expected components
		invalid bool   // expected error
	}{{
		ver:  "0.1.0-pre",
		want: semVer{0, 1, 0, "pre", ""},
	}, {
		ver:  "10.20.30",
		want: semVer{10, 20, 30, "", ""},
	}, {
		ver:  "1.1.2-prerelease+meta",
		want: semVer{1, 1, 2, "prerelease", "meta"},
	}, {
		ver:  "1.0.0-alpha.beta.1+release.local",
		want: semVer{1, 0, 0, "alpha.beta.1", "release.local"},
	}, {
		ver:     "1.2",
		invalid: true,
	}, {
		ver:     "01.1.1",
		invalid: true,
	}, {
		ver:     "1.2.3-0123",
		invalid: true,
	}, {
		ver:     "1.2.3+meta!",
		invalid: true,
	}, {
		ver:     "99999999999999999999999.1.1",
		invalid: true,
	}}

	for _, test := range tests {
		got, err := parseSemVer(test.ver)
		if test.invalid {
			if err == nil {
				t.Errorf("%q: did not receive expected error", test.ver)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error: %v", test.ver, err)
			continue
		}
		if *got != test.want {
			t.Errorf("%q: got %+v, want %+v", test.ver, *got, test.want)
		}
	}
}

// TestNormalizeString ensures characters outside of the semantic alphabet are
// removed.
func TestNormalizeString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abcdef0123", "abcdef0123"},
		{"go1.22.1 linux/amd64", "go1.22.1linuxamd64"},
		{"a_b+c~d", "abcd"},
		{"", ""},
	}
	for _, test := range tests {
		if got := NormalizeString(test.in); got != test.want {
			t.Errorf("%q: got %q, want %q", test.in, got, test.want)
		}
	}
}
