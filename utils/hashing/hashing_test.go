// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hashing

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeHash256IsDoubleSHA(t *testing.T) {
	require := require.New(t)

	payload := []byte("double hash me")
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])

	require.Equal(second[:], ComputeHash256(payload))
	require.Equal(second, [32]byte(ComputeHash256Array(payload)))

	// stable across calls, sensitive to input
	require.Equal(ComputeHash256(payload), ComputeHash256(payload))
	require.NotEqual(ComputeHash256(payload), ComputeHash256([]byte("double hash mf")))
}

func TestComputeHash160(t *testing.T) {
	require := require.New(t)

	digest := ComputeHash160([]byte("key bytes"))
	require.Len(digest, AddrLen)

	arr := ComputeHash160Array([]byte("key bytes"))
	require.Equal(digest, arr[:])
	require.NotEqual(arr, ComputeHash160Array([]byte("other key bytes")))
}
