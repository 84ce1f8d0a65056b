// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/luxfi/ids"

	"github.com/luxfi/bitvote/crypto/keys"
	"github.com/luxfi/bitvote/utils/hashing"
	"github.com/luxfi/bitvote/utils/wrappers"
)

// Version is the protocol version stamped into block headers,
// 1000000*major + 10000*minor + 100*revision.
const Version uint32 = 100

// GenesisBlockHash anchors every chain. There is no genesis block on
// disk; the first mined block points here.
var GenesisBlockHash = mustIDFromHex(
	"a71b445873a2f1c0256af99d7fc0ffb117ca2fa16945ebcaa6393b60bdd8e787",
)

func mustIDFromHex(s string) ids.ID {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != ids.IDLen {
		panic(fmt.Sprintf("invalid hash constant %q", s))
	}
	var id ids.ID
	copy(id[:], raw)
	return id
}

// BlockHeader is the fixed-size part of a block the miner grinds on.
type BlockHeader struct {
	Version   uint32
	PrevBlock ids.ID
	// Nonce is the proof-of-work counter
	Nonce uint32
	// Time is the block creation time in milliseconds since the epoch,
	// fixed when the mining round starts
	Time int64
}

func packHeader(p *wrappers.Packer, h *BlockHeader) {
	p.PackInt(h.Version)
	p.PackID(h.PrevBlock)
	p.PackInt(h.Nonce)
	p.PackLong(uint64(h.Time))
}

func unpackHeader(p *wrappers.Packer) BlockHeader {
	return BlockHeader{
		Version:   p.UnpackInt(),
		PrevBlock: p.UnpackID(),
		Nonce:     p.UnpackInt(),
		Time:      int64(p.UnpackLong()),
	}
}

// Block seals an ordered set of transactions under a proof-of-work
// header. Blocks are signed by a mining-role key; like every Signable the
// block hash excludes the signature but covers the verification key, the
// header and the full transaction encodings.
type Block struct {
	Signable

	Header BlockHeader
	// Txs is kept in ascending transaction-hash order
	Txs []Tx
}

// SortTxs brings a transaction set into its canonical ascending-hash
// order.
func SortTxs(txs []Tx) {
	sort.Slice(txs, func(i, j int) bool {
		hi, hj := TxHash(txs[i]), TxHash(txs[j])
		return bytes.Compare(hi[:], hj[:]) < 0
	})
}

// SortTxs brings the block's transaction set into its canonical order.
func (b *Block) SortTxs() {
	SortTxs(b.Txs)
}

// Contains reports whether the block holds a transaction with this hash.
func (b *Block) Contains(txHash ids.ID) bool {
	for _, tx := range b.Txs {
		if TxHash(tx) == txHash {
			return true
		}
	}
	return false
}

func (b *Block) marshal(includeSig bool) ([]byte, error) {
	p := &wrappers.Packer{MaxSize: maxEncodedLen}
	b.Signable.pack(p, includeSig)
	packHeader(p, &b.Header)

	p.PackInt(uint32(len(b.Txs)))
	for _, tx := range b.Txs {
		raw, err := TxBytes(tx)
		if err != nil {
			return nil, err
		}
		p.PackBytes(raw)
	}
	if p.Errored() {
		return nil, p.Err
	}
	return p.Bytes, nil
}

// Bytes returns the full canonical encoding, signature included.
func (b *Block) Bytes() ([]byte, error) {
	return b.marshal(true)
}

// Hash is SHA-256d over the encoding with the block signature omitted.
// The nonce sits inside the hashed range, which is what makes the
// proof-of-work search work.
func (b *Block) Hash() ids.ID {
	raw, err := b.marshal(false)
	if err != nil {
		return ids.Empty
	}
	return hashing.ComputeHash256Array(raw)
}

// Sign signs the block with a mining-role key.
func (b *Block) Sign(key *keys.PrivateKey) error {
	if key.Role() != keys.RoleMining {
		return fmt.Errorf("%w: block signed with %s key", ErrWrongRole, key.Role())
	}
	b.verificationKey = key.PublicKey()
	b.signature = key.Sign(b.Hash())
	return nil
}

// VerifySignature checks the block signature and the mining role of the
// embedded key.
func (b *Block) VerifySignature() error {
	switch {
	case b.verificationKey == nil:
		return errNoKey
	case len(b.signature) == 0:
		return ErrUnsigned
	case b.verificationKey.Role() != keys.RoleMining:
		return ErrWrongRole
	}
	if !b.verificationKey.Verify(b.Hash(), b.signature) {
		return errBadSignature
	}
	return nil
}

// ParseBlock decodes a block from its canonical encoding.
func ParseBlock(raw []byte) (*Block, error) {
	p := &wrappers.Packer{Bytes: raw}
	b, err := unpackBlock(p)
	if err != nil {
		return nil, err
	}
	if p.Offset != len(raw) {
		return nil, errTrailingBytes
	}
	return b, nil
}

// UnpackBlock decodes one block record starting at the packer offset,
// leaving the offset at the first byte after it. The block store reads
// concatenated records this way.
func UnpackBlock(p *wrappers.Packer) (*Block, error) {
	return unpackBlock(p)
}

func unpackBlock(p *wrappers.Packer) (*Block, error) {
	b := &Block{}
	b.Signable.unpack(p)
	b.Header = unpackHeader(p)

	count := int(p.UnpackInt())
	if p.Errored() {
		return nil, p.Err
	}
	if count > maxTxsPerBlock {
		return nil, errTooManyTxs
	}
	for i := 0; i < count; i++ {
		raw := p.UnpackBytes()
		if p.Errored() {
			return nil, p.Err
		}
		tx, err := ParseTx(raw)
		if err != nil {
			return nil, err
		}
		b.Txs = append(b.Txs, tx)
	}
	if p.Errored() {
		return nil, p.Err
	}
	return b, nil
}

const maxTxsPerBlock = 1 << 16

var errTooManyTxs = fmt.Errorf("block exceeds %d transactions", maxTxsPerBlock)
