// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package paillier

import (
	"io"
	"math/big"

	crand "crypto/rand"
)

// challengeBits is the digest length of the Fiat-Shamir hash.
const challengeBits = 256

// PartialDecryption is decryption server ID's contribution
// c_i = c^(2*delta*s_i) mod n², together with a proof of equality of
// discrete logs showing the server used the share it was dealt.
type PartialDecryption struct {
	ID         int
	Decryption *big.Int // c_i
	C4         *big.Int // c^4 mod n²
	Ci2        *big.Int // c_i² mod n²
	E          *big.Int // challenge
	Z          *big.Int // response
}

// Compare orders partial decryptions by id, then lexicographically over
// the integer fields in declaration order.
func (pd *PartialDecryption) Compare(other *PartialDecryption) int {
	if pd.ID != other.ID {
		if pd.ID < other.ID {
			return -1
		}
		return 1
	}
	for _, pair := range [][2]*big.Int{
		{pd.Decryption, other.Decryption},
		{pd.C4, other.C4},
		{pd.Ci2, other.Ci2},
		{pd.E, other.E},
		{pd.Z, other.Z},
	} {
		if c := pair[0].Cmp(pair[1]); c != 0 {
			return c
		}
	}
	return 0
}

// Equal reports whether every field of both partials matches.
func (pd *PartialDecryption) Equal(other *PartialDecryption) bool {
	if pd == nil || other == nil {
		return pd == other
	}
	return pd.Compare(other) == 0
}

// partialDecrypt raises the ciphertext to 2*delta*s_i.
func partialDecrypt(pk *PublicKey, share *PartialKey, c *big.Int) *big.Int {
	exp := new(big.Int).Mul(pk.Delta, share.S)
	exp.Mul(exp, two)
	return new(big.Int).Exp(c, exp, pk.NSquared)
}

// PartialDecrypt produces server share.ID's partial decryption of c with
// its correctness proof.
func PartialDecrypt(rand io.Reader, pk *PublicKey, share *PartialKey, c *big.Int) (*PartialDecryption, error) {
	if rand == nil {
		rand = crand.Reader
	}

	// the nonce needs slack over e*s*delta, so 3b + hash length bits
	r, err := randBits(rand, 3*pk.Bits+challengeBits)
	if err != nil {
		return nil, err
	}

	out := &PartialDecryption{ID: share.ID}

	out.C4 = new(big.Int).Exp(c, four, pk.NSquared)
	a := new(big.Int).Exp(out.C4, r, pk.NSquared)
	b := new(big.Int).Exp(pk.V, r, pk.NSquared)

	out.Decryption = partialDecrypt(pk, share, c)
	out.Ci2 = new(big.Int).Exp(out.Decryption, two, pk.NSquared)

	out.E = challengeHash(a, b, out.C4, out.Ci2)

	// z = r + e*s*delta
	out.Z = new(big.Int).Mul(share.S, out.E)
	out.Z.Mul(out.Z, pk.Delta)
	out.Z.Add(r, out.Z)

	return out, nil
}

// VerifyPartial checks the equality-of-discrete-logs proof of a partial
// decryption against the server's verification key.
func VerifyPartial(pk *PublicKey, pd *PartialDecryption) bool {
	if pd == nil {
		return false
	}
	vk := pk.VerificationKey(pd.ID)
	if vk == nil {
		return false
	}

	negE := new(big.Int).Neg(pd.E)

	// a' = c4^z * ci2^(-e)
	a := new(big.Int).Exp(pd.C4, pd.Z, pk.NSquared)
	t, err := modExp(pd.Ci2, negE, pk.NSquared)
	if err != nil {
		return false
	}
	a.Mul(a, t)
	a.Mod(a, pk.NSquared)

	// b' = v^z * v_i^(-e)
	b := new(big.Int).Exp(pk.V, pd.Z, pk.NSquared)
	t, err = modExp(vk.V, negE, pk.NSquared)
	if err != nil {
		return false
	}
	b.Mul(b, t)
	b.Mod(b, pk.NSquared)

	return challengeHash(a, b, pd.C4, pd.Ci2).Cmp(pd.E) == 0
}

// Combine recovers the plaintext from at least threshold partial
// decryptions. Only the first threshold partials are used; their ids must
// be distinct.
func Combine(pk *PublicKey, partials []*PartialDecryption) (*big.Int, error) {
	if len(partials) < pk.Threshold {
		return nil, ErrTooFewShares
	}
	chosen := partials[:pk.Threshold]

	cPrime := big.NewInt(1)
	for i, pdi := range chosen {
		// integer Lagrange coefficient at zero with the delta multiplier:
		// lambda_i = delta * prod_{j != i} (-id_j) / (id_i - id_j)
		num := new(big.Int).Set(pk.Delta)
		den := big.NewInt(1)
		for j, pdj := range chosen {
			if j == i {
				continue
			}
			num.Mul(num, big.NewInt(int64(-pdj.ID)))
			den.Mul(den, big.NewInt(int64(pdi.ID-pdj.ID)))
		}
		lambda := num.Quo(num, den)

		exp := lambda.Mul(lambda, two)
		factor, err := modExp(pdi.Decryption, exp, pk.NSquared)
		if err != nil {
			return nil, err
		}
		cPrime.Mul(cPrime, factor)
		cPrime.Mod(cPrime, pk.NSquared)
	}

	// L(x) = (x-1)/n, then scale by the combining constant
	l := new(big.Int).Sub(cPrime, one)
	l.Quo(l, pk.N)
	m := l.Mul(l, pk.CombineConst)
	return m.Mod(m, pk.N), nil
}
