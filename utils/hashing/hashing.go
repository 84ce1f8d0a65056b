// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hashing provides the digest primitives used across the chain:
// double SHA-256 for object identities and RIPEMD-160(SHA-256) for key ids.
package hashing

import (
	"crypto/sha256"

	"github.com/luxfi/ids"

	"golang.org/x/crypto/ripemd160"
)

const (
	// HashLen is the number of bytes in a double SHA-256 digest
	HashLen = sha256.Size
	// AddrLen is the number of bytes in a RIPEMD-160 digest
	AddrLen = ripemd160.Size
)

// ComputeHash256 returns SHA-256(SHA-256(buf)).
func ComputeHash256(buf []byte) []byte {
	arr := ComputeHash256Array(buf)
	return arr[:]
}

// ComputeHash256Array returns SHA-256(SHA-256(buf)) as an ID.
func ComputeHash256Array(buf []byte) ids.ID {
	first := sha256.Sum256(buf)
	return ids.ID(sha256.Sum256(first[:]))
}

// ComputeHash160 returns RIPEMD-160(SHA-256(buf)).
func ComputeHash160(buf []byte) []byte {
	arr := ComputeHash160Array(buf)
	return arr[:]
}

// ComputeHash160Array returns RIPEMD-160(SHA-256(buf)) as a ShortID.
func ComputeHash160Array(buf []byte) ids.ShortID {
	first := sha256.Sum256(buf)
	h := ripemd160.New()
	// ripemd160's Write never errors
	_, _ = h.Write(first[:])

	var out ids.ShortID
	copy(out[:], h.Sum(nil))
	return out
}
