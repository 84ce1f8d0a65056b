// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package miner implements the proof-of-work engine: a manager owning the
// queue of verified transactions and multi-threaded mining rounds with
// mid-round preemption when a competing block arrives.
package miner

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
)

// Target returns the proof-of-work target: the maximum 256-bit value with
// the top leadingZeroBits cleared. A block hash must not exceed it.
func Target(leadingZeroBits uint) *uint256.Int {
	target := new(uint256.Int).Not(uint256.NewInt(0))
	return target.Rsh(target, leadingZeroBits)
}

// MeetsTarget reports whether the hash, read as a big-endian 256-bit
// integer, is at most the target.
func MeetsTarget(hash ids.ID, target *uint256.Int) bool {
	value := new(uint256.Int).SetBytes(hash[:])
	return value.Cmp(target) <= 0
}
