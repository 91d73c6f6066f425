// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"github.com/decred/dcrd/chaincfg/v3"
)

// params is used to group parameters for various networks such as the main
// network and test networks.
type params struct {
	*chaincfg.Params

	// scCoinsMaturity is the default number of blocks value sent to a
	// sidechain remains immature.
	scCoinsMaturity int64
}

// mainNetParams contains parameters specific to the main network
// (wire.MainNet).
var mainNetParams = params{
	Params:          chaincfg.MainNetParams(),
	scCoinsMaturity: 10,
}

// testNet3Params contains parameters specific to the test network (version 3)
// (wire.TestNet3).
var testNet3Params = params{
	Params:          chaincfg.TestNet3Params(),
	scCoinsMaturity: 10,
}

// simNetParams contains parameters specific to the simulation test network
// (wire.SimNet).
var simNetParams = params{
	Params:          chaincfg.SimNetParams(),
	scCoinsMaturity: 2,
}

// regNetParams contains parameters specific to the regression test network
// (wire.RegNet).
var regNetParams = params{
	Params:          chaincfg.RegNetParams(),
	scCoinsMaturity: 2,
}
