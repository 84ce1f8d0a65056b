// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package chain defines the transaction and block data model: every
// semantically meaningful event is a signed transaction, sealed into
// proof-of-work blocks. Each object hashes over its canonical encoding
// with the signature byte range omitted, so the hash is stable across
// signing.
package chain

import (
	"errors"
	"fmt"

	"github.com/luxfi/ids"

	"github.com/luxfi/bitvote/crypto/keys"
	"github.com/luxfi/bitvote/utils/hashing"
	"github.com/luxfi/bitvote/utils/wrappers"
)

// TxType tags the four transaction variants on the wire.
type TxType byte

const (
	TxTypeNone TxType = iota
	TxTypeVote
	TxTypeElection
	TxTypeTally
	TxTypeTrusteeTally
)

func (t TxType) String() string {
	switch t {
	case TxTypeVote:
		return "vote"
	case TxTypeElection:
		return "election"
	case TxTypeTally:
		return "tally"
	case TxTypeTrusteeTally:
		return "trustee tally"
	default:
		return "none"
	}
}

// SignerRole returns the key role that must sign this transaction type.
func (t TxType) SignerRole() keys.Role {
	switch t {
	case TxTypeVote:
		return keys.RoleVote
	case TxTypeElection, TxTypeTally:
		return keys.RoleElection
	case TxTypeTrusteeTally:
		return keys.RoleTrustee
	default:
		return keys.RoleUnknown
	}
}

var (
	ErrWrongRole   = errors.New("signing key has the wrong role")
	ErrUnsigned    = errors.New("object carries no signature")
	ErrUnknownType = errors.New("unknown transaction type")
	errNoKey       = errors.New("object carries no verification key")
)

// Signable carries the verification key and detached DER signature shared
// by transactions and blocks. The signature is excluded from hashing; the
// verification key is not.
type Signable struct {
	verificationKey *keys.PublicKey
	signature       []byte
}

// PublicKey returns the embedded verification key.
func (s *Signable) PublicKey() *keys.PublicKey {
	return s.verificationKey
}

// SetPublicKey sets the verification key ahead of signing, so the hash
// already covers it.
func (s *Signable) SetPublicKey(key *keys.PublicKey) {
	s.verificationKey = key
}

// Signature returns the detached DER signature.
func (s *Signable) Signature() []byte {
	return s.signature
}

// pack writes the signable region. The signature range is suppressed while
// hashing.
func (s *Signable) pack(p *wrappers.Packer, includeSig bool) {
	if s.verificationKey != nil {
		p.PackByte(byte(s.verificationKey.Role()))
		p.PackBytes(s.verificationKey.Bytes())
	} else {
		p.PackByte(byte(keys.RoleUnknown))
		p.PackBytes(nil)
	}
	if includeSig {
		p.PackBytes(s.signature)
	}
}

// unpack reads the signable region.
func (s *Signable) unpack(p *wrappers.Packer) {
	role := keys.Role(p.UnpackByte())
	raw := p.UnpackLimitedBytes(keys.UncompressedPubKeyLen)
	if p.Errored() {
		return
	}
	if len(raw) > 0 {
		key, err := keys.PublicKeyFromBytes(raw, role)
		if err != nil {
			p.Add(err)
			return
		}
		s.verificationKey = key
	}
	s.signature = p.UnpackLimitedBytes(maxSignatureLen)
}

// maxSignatureLen bounds a DER-encoded ECDSA signature.
const maxSignatureLen = 80

// Tx is the interface of the four transaction variants.
type Tx interface {
	Type() TxType

	// PublicKey and Signature come from the embedded Signable
	PublicKey() *keys.PublicKey
	Signature() []byte
	SetPublicKey(*keys.PublicKey)

	// signable returns the embedded region for signing
	signable() *Signable
	// packPayload writes the variant fields after the common region
	packPayload(p *wrappers.Packer)
	// unpackPayload reads the variant fields
	unpackPayload(p *wrappers.Packer)
}

// TxBytes returns the full canonical encoding, signature included.
func TxBytes(tx Tx) ([]byte, error) {
	return marshalTx(tx, true)
}

// TxHash is SHA-256d over the canonical encoding with the signature
// omitted. It is stable whether or not the transaction is signed.
func TxHash(tx Tx) ids.ID {
	b, err := marshalTx(tx, false)
	if err != nil {
		// an unencodable transaction has no identity; the zero hash never
		// verifies against anything
		return ids.Empty
	}
	return hashing.ComputeHash256Array(b)
}

func marshalTx(tx Tx, includeSig bool) ([]byte, error) {
	p := &wrappers.Packer{MaxSize: maxEncodedLen}
	p.PackByte(byte(tx.Type()))
	tx.signable().pack(p, includeSig)
	tx.packPayload(p)
	if p.Errored() {
		return nil, p.Err
	}
	return p.Bytes, nil
}

// maxEncodedLen bounds any single encoded transaction or block.
const maxEncodedLen = 1 << 28

// SignTx sets the verification key and signs the transaction hash. The
// key role must match the transaction type.
func SignTx(tx Tx, key *keys.PrivateKey) error {
	if key.Role() != tx.Type().SignerRole() {
		return fmt.Errorf("%w: %s signed with %s key", ErrWrongRole, tx.Type(), key.Role())
	}
	s := tx.signable()
	s.verificationKey = key.PublicKey()
	s.signature = key.Sign(TxHash(tx))
	return nil
}

// VerifyTxSignature checks the embedded signature and that the embedded
// key carries the role prescribed for the transaction type.
func VerifyTxSignature(tx Tx) error {
	s := tx.signable()
	switch {
	case s.verificationKey == nil:
		return errNoKey
	case len(s.signature) == 0:
		return ErrUnsigned
	case s.verificationKey.Role() != tx.Type().SignerRole():
		return ErrWrongRole
	}
	if !s.verificationKey.Verify(TxHash(tx), s.signature) {
		return errBadSignature
	}
	return nil
}

var errBadSignature = errors.New("signature verification failed")

// ParseTx decodes a transaction from its canonical encoding.
func ParseTx(b []byte) (Tx, error) {
	p := &wrappers.Packer{Bytes: b}
	tx, err := unpackTx(p)
	if err != nil {
		return nil, err
	}
	if p.Offset != len(b) {
		return nil, errTrailingBytes
	}
	return tx, nil
}

var errTrailingBytes = errors.New("trailing bytes after encoded object")

func unpackTx(p *wrappers.Packer) (Tx, error) {
	var tx Tx
	switch TxType(p.UnpackByte()) {
	case TxTypeVote:
		tx = &TxVote{}
	case TxTypeElection:
		tx = &TxElection{}
	case TxTypeTally:
		tx = &TxTally{}
	case TxTypeTrusteeTally:
		tx = &TxTrusteeTally{}
	default:
		if p.Errored() {
			return nil, p.Err
		}
		return nil, ErrUnknownType
	}
	tx.signable().unpack(p)
	tx.unpackPayload(p)
	if p.Errored() {
		return nil, p.Err
	}
	return tx, nil
}
