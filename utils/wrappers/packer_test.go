// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wrappers

import (
	"math/big"
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

func TestPackerRoundTrip(t *testing.T) {
	require := require.New(t)

	id := ids.ID{0x01, 0x02}
	short := ids.ShortID{0xaa, 0xbb}
	big1, ok := new(big.Int).SetString("deadbeef00112233445566778899", 16)
	require.True(ok)

	p := &Packer{MaxSize: 1 << 16}
	p.PackByte(0x42)
	p.PackShort(0x1234)
	p.PackInt(0xdeadbeef)
	p.PackLong(0x0123456789abcdef)
	p.PackBool(true)
	p.PackStr("hello")
	p.PackBytes([]byte{1, 2, 3})
	p.PackID(id)
	p.PackShortID(short)
	p.PackBigInt(big1)
	p.PackBigInt(new(big.Int))
	p.PackBigInt(nil)
	require.NoError(p.Err)

	u := &Packer{Bytes: p.Bytes}
	require.Equal(byte(0x42), u.UnpackByte())
	require.Equal(uint16(0x1234), u.UnpackShort())
	require.Equal(uint32(0xdeadbeef), u.UnpackInt())
	require.Equal(uint64(0x0123456789abcdef), u.UnpackLong())
	require.True(u.UnpackBool())
	require.Equal("hello", u.UnpackStr())
	require.Equal([]byte{1, 2, 3}, u.UnpackBytes())
	require.Equal(id, u.UnpackID())
	require.Equal(short, u.UnpackShortID())
	require.Equal(0, big1.Cmp(u.UnpackBigInt()))
	require.Equal(0, u.UnpackBigInt().Sign())
	require.Equal(0, u.UnpackBigInt().Sign())
	require.NoError(u.Err)
	require.Equal(len(p.Bytes), u.Offset)
}

func TestPackerDeterminism(t *testing.T) {
	require := require.New(t)

	encode := func() []byte {
		p := &Packer{MaxSize: 1024}
		p.PackStr("abc")
		p.PackBigInt(big.NewInt(1234567))
		return p.Bytes
	}
	require.Equal(encode(), encode())
}

func TestPackerErrors(t *testing.T) {
	require := require.New(t)

	p := &Packer{MaxSize: 2}
	p.PackInt(7)
	require.ErrorIs(p.Err, ErrInsufficientLength)

	u := &Packer{Bytes: []byte{0x01}}
	u.UnpackInt()
	require.ErrorIs(u.Err, ErrInsufficientLength)

	u = &Packer{Bytes: []byte{0x02}}
	u.UnpackBool()
	require.Error(u.Err)

	// a malformed hex big integer fails cleanly
	bad := &Packer{MaxSize: 64}
	bad.PackStr("not-hex")
	u = &Packer{Bytes: bad.Bytes}
	require.Nil(u.UnpackBigInt())
	require.Error(u.Err)

	u = &Packer{Bytes: []byte{0x00, 0x00, 0x00, 0xff}}
	require.Nil(u.UnpackLimitedBytes(16))
	require.Error(u.Err)
}
