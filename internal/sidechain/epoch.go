// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sidechain

import "fmt"

// EpochNumberAt returns the withdrawal epoch a sidechain created at
// creationHeight with the given epoch length is in at height.
//
// ErrOutOfRange is returned when height precedes the creation height or the
// epoch length is zero.
func EpochNumberAt(creationHeight int64, epochLength uint32, height int64) (int32, error) {
	if epochLength == 0 {
		return 0, ruleError(ErrOutOfRange, "epoch length must be positive")
	}
	if height < creationHeight {
		str := fmt.Sprintf("height %d precedes sidechain creation height %d",
			height, creationHeight)
		return 0, ruleError(ErrOutOfRange, str)
	}
	return int32((height - creationHeight) / int64(epochLength)), nil
}

// EpochStartHeight returns the first height of the provided epoch.
func EpochStartHeight(creationHeight int64, epochLength uint32, epoch int32) int64 {
	return creationHeight + int64(epoch)*int64(epochLength)
}

// EpochEndHeight returns the last height of the provided epoch.
func EpochEndHeight(creationHeight int64, epochLength uint32, epoch int32) int64 {
	return creationHeight + (int64(epoch)+1)*int64(epochLength) - 1
}
