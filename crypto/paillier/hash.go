// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package paillier

import (
	"math/big"
	"strings"

	"github.com/luxfi/bitvote/utils/hashing"
)

// challengeHash derives a Fiat-Shamir challenge from a proof transcript:
// the lowercase hex representations of the values are concatenated and
// double-SHA-256 hashed, and the 256-bit digest is read as a big-endian
// integer.
func challengeHash(values ...*big.Int) *big.Int {
	var sb strings.Builder
	for _, v := range values {
		sb.WriteString(v.Text(16))
	}
	digest := hashing.ComputeHash256([]byte(sb.String()))
	return new(big.Int).SetBytes(digest)
}
