// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package sampleconfig provides the commented example config for scledgerd.
package sampleconfig

import (
	_ "embed"
)

// sampleScledgerdConf is a string containing the commented example config for
// scledgerd.
//
//go:embed sample-scledgerd.conf
var sampleScledgerdConf string

// Scledgerd returns a string containing the commented example config for
// scledgerd.
func Scledgerd() string {
	return sampleScledgerdConf
}
