// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package paillier

import (
	"github.com/luxfi/bitvote/utils/wrappers"
)

// PackPublicKey writes pk in canonical form: scalar parameters first, then
// n, v and the verification keys in server order. The cached values are
// recomputed on unpack, mirroring how the key is dealt on the wire.
func PackPublicKey(p *wrappers.Packer, pk *PublicKey) {
	p.PackInt(uint32(pk.Bits))
	p.PackInt(uint32(pk.DecryptServers))
	p.PackInt(uint32(pk.Threshold))
	p.PackBigInt(pk.N)
	p.PackBigInt(pk.V)
	for _, vk := range pk.VerificationKeys {
		p.PackInt(uint32(vk.ID))
		p.PackBigInt(vk.V)
	}
}

// UnpackPublicKey reads a public key and recomputes its cached values.
func UnpackPublicKey(p *wrappers.Packer) *PublicKey {
	pk := &PublicKey{
		Bits:           int(p.UnpackInt()),
		DecryptServers: int(p.UnpackInt()),
		Threshold:      int(p.UnpackInt()),
		N:              p.UnpackBigInt(),
		V:              p.UnpackBigInt(),
	}
	if p.Errored() {
		return nil
	}
	if pk.DecryptServers < 1 || pk.DecryptServers > maxDecryptServers ||
		pk.Threshold < 1 || pk.Threshold > pk.DecryptServers {
		p.Add(ErrInvalidParams)
		return nil
	}
	pk.VerificationKeys = make([]*VerificationKey, pk.DecryptServers)
	for i := range pk.VerificationKeys {
		pk.VerificationKeys[i] = &VerificationKey{
			ID: int(p.UnpackInt()),
			V:  p.UnpackBigInt(),
		}
	}
	if p.Errored() {
		return nil
	}
	if err := pk.complete(); err != nil {
		p.Add(err)
		return nil
	}
	return pk
}

// maxDecryptServers bounds l on unpack so a hostile encoding cannot force
// an enormous allocation or factorial.
const maxDecryptServers = 1024

// PackPartialKey writes a Shamir share.
func PackPartialKey(p *wrappers.Packer, key *PartialKey) {
	p.PackInt(uint32(key.ID))
	p.PackBigInt(key.S)
}

// UnpackPartialKey reads a Shamir share.
func UnpackPartialKey(p *wrappers.Packer) *PartialKey {
	key := &PartialKey{
		ID: int(p.UnpackInt()),
		S:  p.UnpackBigInt(),
	}
	if p.Errored() {
		return nil
	}
	return key
}

// PackCiphertextProof writes a ciphertext with its membership proof.
func PackCiphertextProof(p *wrappers.Packer, proof *CiphertextProof) {
	p.PackBigInt(proof.C)
	p.PackBigInt(proof.E)
	p.PackBigInt(proof.E1)
	p.PackBigInt(proof.V1)
	p.PackBigInt(proof.E2)
	p.PackBigInt(proof.V2)
}

// UnpackCiphertextProof reads a ciphertext with its membership proof.
func UnpackCiphertextProof(p *wrappers.Packer) *CiphertextProof {
	proof := &CiphertextProof{
		C:  p.UnpackBigInt(),
		E:  p.UnpackBigInt(),
		E1: p.UnpackBigInt(),
		V1: p.UnpackBigInt(),
		E2: p.UnpackBigInt(),
		V2: p.UnpackBigInt(),
	}
	if p.Errored() {
		return nil
	}
	return proof
}

// PackPartialDecryption writes a partial decryption with its proof.
func PackPartialDecryption(p *wrappers.Packer, pd *PartialDecryption) {
	p.PackInt(uint32(pd.ID))
	p.PackBigInt(pd.Decryption)
	p.PackBigInt(pd.C4)
	p.PackBigInt(pd.Ci2)
	p.PackBigInt(pd.E)
	p.PackBigInt(pd.Z)
}

// UnpackPartialDecryption reads a partial decryption with its proof.
func UnpackPartialDecryption(p *wrappers.Packer) *PartialDecryption {
	pd := &PartialDecryption{
		ID:         int(p.UnpackInt()),
		Decryption: p.UnpackBigInt(),
		C4:         p.UnpackBigInt(),
		Ci2:        p.UnpackBigInt(),
		E:          p.UnpackBigInt(),
		Z:          p.UnpackBigInt(),
	}
	if p.Errored() {
		return nil
	}
	return pd
}
