// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package paillier

import (
	"errors"
	"io"
	"math/big"

	crand "crypto/rand"
)

var errBadPlaintext = errors.New("plaintext is not a member of the candidate set")

// CiphertextProof is a Paillier ciphertext c together with a
// non-interactive sigma proof that the plaintext is one of two candidate
// messages. For ballots the candidates are always 0 and 1.
type CiphertextProof struct {
	C  *big.Int
	E  *big.Int
	E1 *big.Int
	V1 *big.Int
	E2 *big.Int
	V2 *big.Int
}

// Compare orders proofs lexicographically over their integer fields in
// declaration order, the comparator canonical set encoding relies on.
func (cp *CiphertextProof) Compare(other *CiphertextProof) int {
	for _, pair := range [][2]*big.Int{
		{cp.C, other.C},
		{cp.E, other.E},
		{cp.E1, other.E1},
		{cp.V1, other.V1},
		{cp.E2, other.E2},
		{cp.V2, other.V2},
	} {
		if c := pair[0].Cmp(pair[1]); c != 0 {
			return c
		}
	}
	return 0
}

// Equal reports whether every field of both proofs matches.
func (cp *CiphertextProof) Equal(other *CiphertextProof) bool {
	if cp == nil || other == nil {
		return cp == other
	}
	return cp.Compare(other) == 0
}

// encrypt computes (n+1)^m * r^n mod n² for a fresh blinding r < n.
func encrypt(rand io.Reader, pk *PublicKey, m *big.Int) (c, r *big.Int, err error) {
	r, err = randBelow(rand, pk.Bits, pk.N)
	if err != nil {
		return nil, nil, err
	}

	c = new(big.Int).Exp(pk.NPlusOne, m, pk.NSquared)
	blind := new(big.Int).Exp(r, pk.N, pk.NSquared)
	c.Mul(c, blind)
	c.Mod(c, pk.NSquared)
	return c, r, nil
}

// EncryptBinary encrypts the bit (0 or 1) under pk and attaches a proof
// that the plaintext is 0 or 1, without revealing which.
func EncryptBinary(rand io.Reader, pk *PublicKey, bit int) (*CiphertextProof, error) {
	if bit != 0 && bit != 1 {
		return nil, errBadPlaintext
	}
	return EncryptWithProof(rand, pk, new(big.Int), one, bit == 1)
}

// EncryptWithProof encrypts one of the two candidate plaintexts (m2 if
// second is set, m1 otherwise) and proves membership of {m1, m2}.
//
// The proof simulates the transcript for the message that was not
// encrypted (random challenge share and response) and answers honestly for
// the one that was, with the overall challenge fixed by hashing both
// commitments together with the ciphertext and the candidate set.
func EncryptWithProof(rand io.Reader, pk *PublicKey, m1, m2 *big.Int, second bool) (*CiphertextProof, error) {
	if rand == nil {
		rand = crand.Reader
	}

	chosen, other := m1, m2
	if second {
		chosen, other = m2, m1
	}

	c, r, err := encrypt(rand, pk, chosen)
	if err != nil {
		return nil, err
	}

	rho, err := randBelow(rand, pk.Bits, pk.N)
	if err != nil {
		return nil, err
	}
	eOther, err := randBelow(rand, pk.Bits, pk.N)
	if err != nil {
		return nil, err
	}
	vOther, err := randBelow(rand, pk.Bits, pk.N)
	if err != nil {
		return nil, err
	}

	// simulated commitment for the message that was not encrypted:
	// uOther = vOther^n * (n+1)^(mOther*eOther) * c^(-eOther) mod n²
	uOther := new(big.Int).Exp(vOther, pk.N, pk.NSquared)
	gPow := new(big.Int).Mul(other, eOther)
	gPow.Exp(pk.NPlusOne, gPow, pk.NSquared)
	cPow, err := modExp(c, new(big.Int).Neg(eOther), pk.NSquared)
	if err != nil {
		return nil, err
	}
	uOther.Mul(uOther, gPow)
	uOther.Mul(uOther, cPow)
	uOther.Mod(uOther, pk.NSquared)

	// honest commitment
	uChosen := new(big.Int).Exp(rho, pk.N, pk.NSquared)

	// challenge binds the commitments in candidate order
	u1, u2 := uChosen, uOther
	if second {
		u1, u2 = uOther, uChosen
	}
	e := challengeHash(u1, u2, c, m1, m2)

	// split the challenge: eChosen = (e - eOther) mod n, with the overflow
	// quotient folded into the response
	eNoMod := new(big.Int).Sub(e, eOther)
	eChosen := new(big.Int).Mod(eNoMod, pk.N)

	k := new(big.Int).Quo(eNoMod, pk.N)
	vChosen, err := modExp(pk.NPlusOne, k, pk.N)
	if err != nil {
		return nil, err
	}
	rPow := new(big.Int).Exp(r, eChosen, pk.N)
	vChosen.Mul(vChosen, rPow)
	vChosen.Mul(vChosen, rho)
	vChosen.Mod(vChosen, pk.N)

	proof := &CiphertextProof{C: c, E: e}
	if second {
		proof.E1, proof.V1 = eOther, vOther
		proof.E2, proof.V2 = eChosen, vChosen
	} else {
		proof.E1, proof.V1 = eChosen, vChosen
		proof.E2, proof.V2 = eOther, vOther
	}
	return proof, nil
}

// VerifyBinary checks the proof against the candidate set {0, 1}.
func VerifyBinary(pk *PublicKey, proof *CiphertextProof) bool {
	return Verify(pk, proof, new(big.Int), one)
}

// Verify recomputes both commitments from the transcript and checks that
// the hashed challenge matches and splits into the two challenge shares.
func Verify(pk *PublicKey, proof *CiphertextProof, m1, m2 *big.Int) bool {
	if proof == nil || proof.C == nil || proof.C.Sign() <= 0 || proof.C.Cmp(pk.NSquared) >= 0 {
		return false
	}

	u1, ok := recomputeCommitment(pk, proof.C, m1, proof.E1, proof.V1)
	if !ok {
		return false
	}
	u2, ok := recomputeCommitment(pk, proof.C, m2, proof.E2, proof.V2)
	if !ok {
		return false
	}

	e := challengeHash(u1, u2, proof.C, m1, m2)
	if e.Cmp(proof.E) != 0 {
		return false
	}

	sum := new(big.Int).Add(proof.E1, proof.E2)
	sum.Mod(sum, pk.N)
	return sum.Cmp(new(big.Int).Mod(e, pk.N)) == 0
}

// recomputeCommitment returns v^n * (n+1)^(m*e) * c^(-e) mod n².
func recomputeCommitment(pk *PublicKey, c, m, e, v *big.Int) (*big.Int, bool) {
	u := new(big.Int).Exp(v, pk.N, pk.NSquared)
	gPow := new(big.Int).Mul(m, e)
	gPow.Exp(pk.NPlusOne, gPow, pk.NSquared)
	cPow, err := modExp(c, new(big.Int).Neg(e), pk.NSquared)
	if err != nil {
		return nil, false
	}
	u.Mul(u, gPow)
	u.Mul(u, cPow)
	u.Mod(u, pk.NSquared)
	return u, true
}

// AddCiphertexts multiplies two ciphertexts mod n², which adds the
// underlying plaintexts mod n.
func AddCiphertexts(pk *PublicKey, a, b *big.Int) *big.Int {
	sum := new(big.Int).Mul(a, b)
	return sum.Mod(sum, pk.NSquared)
}

// OneCiphertext returns the unblinded encryption of zero (the number 1),
// the neutral element homomorphic sums start from.
func OneCiphertext() *big.Int {
	return big.NewInt(1)
}
