// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keys

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/luxfi/ids"

	"github.com/luxfi/bitvote/utils/hashing"
)

const (
	// PrivateKeyLen is the byte length of a raw secp256k1 scalar
	PrivateKeyLen = 32
	// CompressedPubKeyLen is the byte length of a compressed public key
	CompressedPubKeyLen = 33
	// UncompressedPubKeyLen is the byte length of an uncompressed public key
	UncompressedPubKeyLen = 65
)

// orderMinusOne is the big-endian encoding of the secp256k1 group order
// minus one. A private scalar must be in [1, n-1]; the check is a plain
// byte comparison against this constant.
var orderMinusOne = [PrivateKeyLen]byte{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xfe,
	0xba, 0xae, 0xdc, 0xe6, 0xaf, 0x48, 0xa0, 0x3b,
	0xbf, 0xd2, 0x5e, 0x8c, 0xd0, 0x36, 0x41, 0x40,
}

var (
	ErrInvalidRole       = errors.New("invalid key role")
	ErrInvalidScalar     = errors.New("private scalar outside [1, n-1]")
	ErrInvalidPubKey     = errors.New("invalid public key encoding")
	errInvalidPrivKeyLen = fmt.Errorf("private key is not %d bytes", PrivateKeyLen)
)

// PrivateKey is a secp256k1 private scalar bound to a role.
type PrivateKey struct {
	sk   *secp256k1.PrivateKey
	role Role

	pk *PublicKey
}

// NewPrivateKey generates a fresh keypair for the given role.
func NewPrivateKey(role Role) (*PrivateKey, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	sk, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("couldn't generate secp256k1 key: %w", err)
	}
	return &PrivateKey{sk: sk, role: role}, nil
}

// PrivateKeyFromBytes parses a raw 32-byte scalar. The scalar must be
// non-zero and no larger than n-1.
func PrivateKeyFromBytes(raw []byte, role Role) (*PrivateKey, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	if len(raw) != PrivateKeyLen {
		return nil, errInvalidPrivKeyLen
	}
	var zero [PrivateKeyLen]byte
	if bytes.Equal(raw, zero[:]) || bytes.Compare(raw, orderMinusOne[:]) > 0 {
		return nil, ErrInvalidScalar
	}
	return &PrivateKey{sk: secp256k1.PrivKeyFromBytes(raw), role: role}, nil
}

// Role returns the role this key was created with.
func (k *PrivateKey) Role() Role {
	return k.role
}

// Bytes returns the raw 32-byte scalar.
func (k *PrivateKey) Bytes() []byte {
	return k.sk.Serialize()
}

// PublicKey returns the compressed public key of this private key.
func (k *PrivateKey) PublicKey() *PublicKey {
	if k.pk == nil {
		k.pk = &PublicKey{
			raw:  k.sk.PubKey().SerializeCompressed(),
			role: k.role,
		}
	}
	return k.pk
}

// Sign produces a canonical DER-encoded ECDSA signature over the given
// hash. The signature always carries a low S value.
func (k *PrivateKey) Sign(hash ids.ID) []byte {
	return ecdsa.Sign(k.sk, hash[:]).Serialize()
}

// PublicKey is a compressed (33-byte) or uncompressed (65-byte) secp256k1
// public key encoding bound to a role. The role is not part of the key id.
type PublicKey struct {
	raw  []byte
	role Role
}

// PublicKeyFromBytes parses and validates a public key encoding.
func PublicKeyFromBytes(raw []byte, role Role) (*PublicKey, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	switch len(raw) {
	case CompressedPubKeyLen:
		if raw[0] != 0x02 && raw[0] != 0x03 {
			return nil, ErrInvalidPubKey
		}
	case UncompressedPubKeyLen:
		if raw[0] != 0x04 && raw[0] != 0x06 && raw[0] != 0x07 {
			return nil, ErrInvalidPubKey
		}
	default:
		return nil, ErrInvalidPubKey
	}
	if _, err := secp256k1.ParsePubKey(raw); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPubKey, err)
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return &PublicKey{raw: cp, role: role}, nil
}

// Role returns the role this key is bound to.
func (p *PublicKey) Role() Role {
	return p.role
}

// Bytes returns the key encoding exactly as it was parsed or produced.
func (p *PublicKey) Bytes() []byte {
	return p.raw
}

// KeyID is RIPEMD-160(SHA-256(encoding)). The role is excluded.
func (p *PublicKey) KeyID() ids.ShortID {
	return hashing.ComputeHash160Array(p.raw)
}

// Equal reports whether both encoding and role match.
func (p *PublicKey) Equal(other *PublicKey) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.role == other.role && bytes.Equal(p.raw, other.raw)
}

// Verify checks a DER signature over hash. Non-canonical DER encodings are
// rejected by re-serializing the parsed signature and requiring an exact
// byte match, which also forces low S.
func (p *PublicKey) Verify(hash ids.ID, sig []byte) bool {
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	if !bytes.Equal(parsed.Serialize(), sig) {
		return false
	}
	pk, err := secp256k1.ParsePubKey(p.raw)
	if err != nil {
		return false
	}
	return parsed.Verify(hash[:], pk)
}
