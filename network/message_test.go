// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/bitvote/chain"
	"github.com/luxfi/bitvote/crypto/keys"
)

func TestFrameLayout(t *testing.T) {
	require := require.New(t)

	m := NewMessage(&Ping{Address: "10.0.0.1", Port: 8580})
	m.Header.TTL = 3
	m.Header.Hop = 1

	var buf bytes.Buffer
	require.NoError(WriteMessage(&buf, m))

	raw := buf.Bytes()
	require.GreaterOrEqual(len(raw), HeaderLen)
	require.Equal(int32(3), int32(binary.LittleEndian.Uint32(raw[0:])))
	require.Equal(int32(1), int32(binary.LittleEndian.Uint32(raw[4:])))
	require.Equal(m.Header.Size, int64(binary.LittleEndian.Uint64(raw[8:])))
	require.Equal(byte(TypePing), raw[16])
	require.Equal(int64(len(raw)-HeaderLen), m.Header.Size)

	parsed, err := ReadMessage(&buf)
	require.NoError(err)
	require.Equal(m.ID, parsed.ID)
	ping := parsed.Body.(*Ping)
	require.Equal("10.0.0.1", ping.Address)
	require.Equal(uint16(8580), ping.Port)
}

func TestMessageRoundTrips(t *testing.T) {
	require := require.New(t)

	key, err := keys.NewPrivateKey(keys.RoleElection)
	require.NoError(err)
	tx := &chain.TxTally{Election: ids.GenerateTestID(), LastBlock: ids.GenerateTestID()}
	require.NoError(chain.SignTx(tx, key))

	miningKey, err := keys.NewPrivateKey(keys.RoleMining)
	require.NoError(err)
	block := &chain.Block{
		Header: chain.BlockHeader{
			Version:   chain.Version,
			PrevBlock: chain.GenesisBlockHash,
			Time:      1000,
		},
		Txs: []chain.Tx{tx},
	}
	require.NoError(block.Sign(miningKey))

	payloads := []Payload{
		&Text{Text: "hello mesh"},
		&Ping{Address: "", Port: 9000},
		&Pong{},
		&PeerInfo{GUID: "8e74b8e2-5b24-4a56-ae88-3f2e17f2a7a1", Version: 100},
		&Heartbeat{},
		&Transaction{Tx: tx},
		&Block{Block: block},
		&BlockRequest{Block: chain.GenesisBlockHash, Following: true},
	}

	for _, payload := range payloads {
		m := NewMessage(payload)
		var buf bytes.Buffer
		require.NoError(WriteMessage(&buf, m))

		parsed, err := ReadMessage(&buf)
		require.NoError(err)
		require.Equal(payload.Type(), parsed.Header.Type)
		require.Equal(m.ID, parsed.ID)
	}

	// the transaction survives framing hash-intact
	var buf bytes.Buffer
	require.NoError(WriteMessage(&buf, NewMessage(&Transaction{Tx: tx})))
	parsed, err := ReadMessage(&buf)
	require.NoError(err)
	require.Equal(chain.TxHash(tx), chain.TxHash(parsed.Body.(*Transaction).Tx))

	// and so does the block
	buf.Reset()
	require.NoError(WriteMessage(&buf, NewMessage(&Block{Block: block})))
	parsed, err = ReadMessage(&buf)
	require.NoError(err)
	require.Equal(block.Hash(), parsed.Body.(*Block).Block.Hash())
}

func TestReadMessageRejectsGarbage(t *testing.T) {
	require := require.New(t)

	// unknown type tag
	var head [HeaderLen]byte
	binary.LittleEndian.PutUint64(head[8:], uuidLen)
	head[16] = 0x7f
	_, err := ReadMessage(bytes.NewReader(append(head[:], make([]byte, uuidLen)...)))
	require.ErrorIs(err, errUnknownType)

	// oversized body
	binary.LittleEndian.PutUint64(head[8:], maxBodyLen+1)
	head[16] = byte(TypePing)
	_, err = ReadMessage(bytes.NewReader(head[:]))
	require.ErrorIs(err, errOversizedBody)

	// truncated frame
	_, err = ReadMessage(bytes.NewReader(head[:HeaderLen-3]))
	require.Error(err)
}
