// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package paillier implements a threshold variant of the Paillier
// cryptosystem. A key is generated for l decryption servers with threshold
// t: encryption is ordinary Paillier over Z*_{n²}, decryption requires t
// cooperating servers, each holding a Shamir share of the secret exponent.
// Ballots are encrypted together with a non-interactive zero-knowledge
// proof that the plaintext is 0 or 1, and every partial decryption carries
// a proof that the server really used its share.
package paillier

import (
	"errors"
	"fmt"
	"io"
	"math/big"

	crand "crypto/rand"
)

var (
	one  = big.NewInt(1)
	two  = big.NewInt(2)
	four = big.NewInt(4)

	ErrTooFewShares   = errors.New("not enough partial decryptions to combine")
	ErrInvalidParams  = errors.New("invalid threshold parameters")
	errNoInverse      = errors.New("modular inverse does not exist")
	errPrimeGenFailed = errors.New("safe prime generation failed")
)

// VerificationKey lets anyone check that decryption server id produced its
// partial decryption with the share it was dealt.
type VerificationKey struct {
	ID int
	V  *big.Int // v^(delta * s_id) mod n²
}

// PublicKey holds the public modulus together with the threshold
// parameters and the precomputed values every operation needs.
type PublicKey struct {
	Bits           int // e.g. 1024
	DecryptServers int // l: number of decryption servers
	Threshold      int // t: servers necessary for decryption

	N            *big.Int // public modulus n = p*q
	NSquared     *big.Int // n²
	NPlusOne     *big.Int // n+1, the generator g
	Delta        *big.Int // l!
	CombineConst *big.Int // (4*delta²)^-1 mod n
	V            *big.Int // generator of the squares in Z*_{n²}

	VerificationKeys []*VerificationKey // one per decryption server
}

// PartialKey is the Shamir share dealt to decryption server ID.
type PartialKey struct {
	ID int
	S  *big.Int // f(ID) mod n*m
}

// complete fills in the cached values from n, l and t.
func (pk *PublicKey) complete() error {
	pk.NSquared = new(big.Int).Mul(pk.N, pk.N)
	pk.NPlusOne = new(big.Int).Add(pk.N, one)
	pk.Delta = factorial(pk.DecryptServers)

	combine := new(big.Int).Mul(pk.Delta, pk.Delta)
	combine.Mul(combine, four)
	if combine.ModInverse(combine, pk.N) == nil {
		return fmt.Errorf("inverse of 4*delta² mod n: %w", errNoInverse)
	}
	pk.CombineConst = combine
	return nil
}

// Equal reports whether every field of both keys matches.
func (pk *PublicKey) Equal(other *PublicKey) bool {
	if pk == nil || other == nil {
		return pk == other
	}
	if pk.Bits != other.Bits ||
		pk.DecryptServers != other.DecryptServers ||
		pk.Threshold != other.Threshold ||
		pk.N.Cmp(other.N) != 0 ||
		pk.V.Cmp(other.V) != 0 ||
		len(pk.VerificationKeys) != len(other.VerificationKeys) {
		return false
	}
	for i, vk := range pk.VerificationKeys {
		ovk := other.VerificationKeys[i]
		if vk.ID != ovk.ID || vk.V.Cmp(ovk.V) != 0 {
			return false
		}
	}
	return true
}

// VerificationKey returns the verification key for server id, or nil.
func (pk *PublicKey) VerificationKey(id int) *VerificationKey {
	for _, vk := range pk.VerificationKeys {
		if vk.ID == id {
			return vk
		}
	}
	return nil
}

// GenerateKey creates a threshold keypair: the public key and one partial
// key per decryption server. Randomness is drawn from rand, so key
// generation is replayable in tests; pass crypto/rand.Reader in
// production.
func GenerateKey(rand io.Reader, bits, decryptServers, threshold int) (*PublicKey, []*PartialKey, error) {
	if rand == nil {
		rand = crand.Reader
	}
	if decryptServers < 1 || threshold < 1 || threshold > decryptServers {
		return nil, nil, ErrInvalidParams
	}

	pk := &PublicKey{
		Bits:           bits,
		DecryptServers: decryptServers,
		Threshold:      threshold,
	}

	// pick safe primes p = 2p'+1, q = 2q'+1 until n = p*q has full length
	var p, p1, q, q1, m *big.Int
	for {
		var err error
		p1, p, err = genSafePrime(rand, bits/2)
		if err != nil {
			return nil, nil, err
		}
		for {
			q1, q, err = genSafePrime(rand, bits/2)
			if err != nil {
				return nil, nil, err
			}
			if p.Cmp(q) != 0 && p.Cmp(q1) != 0 && q.Cmp(p1) != 0 && q1.Cmp(p1) != 0 {
				break
			}
		}

		pk.N = new(big.Int).Mul(p, q)
		m = new(big.Int).Mul(p1, q1)
		if pk.N.Bit(bits-1) == 1 {
			break
		}
	}
	if err := pk.complete(); err != nil {
		return nil, nil, err
	}

	nm := new(big.Int).Mul(pk.N, m)

	// d = 0 mod m and d = 1 mod n by the Chinese remainder theorem:
	// d = m * (m^-1 mod n)
	mInv := new(big.Int).ModInverse(m, pk.N)
	if mInv == nil {
		return nil, nil, fmt.Errorf("inverse of m mod n: %w", errNoInverse)
	}
	d := new(big.Int).Mul(m, mInv)

	// random polynomial f of degree t-1 over Z_{nm} with f(0) = d
	coeffs := make([]*big.Int, threshold)
	coeffs[0] = d
	for i := 1; i < threshold; i++ {
		a, err := crand.Int(rand, nm)
		if err != nil {
			return nil, nil, err
		}
		coeffs[i] = a
	}

	// v must generate the squares in Z*_{n²}; squaring a random unit gives
	// a generator with high probability (Shoup's heuristic)
	for {
		r, err := randBits(rand, 4*bits)
		if err != nil {
			return nil, nil, err
		}
		if new(big.Int).GCD(nil, nil, r, pk.N).Cmp(one) == 0 {
			pk.V = r.Exp(r, two, pk.NSquared)
			break
		}
	}

	// deal shares s_i = f(i) and verification keys v_i = v^(delta*s_i)
	shares := make([]*PartialKey, decryptServers)
	pk.VerificationKeys = make([]*VerificationKey, decryptServers)
	for i := 0; i < decryptServers; i++ {
		id := i + 1
		s := evaluatePolynomial(coeffs, id, nm)

		exp := new(big.Int).Mul(pk.Delta, s)
		pk.VerificationKeys[i] = &VerificationKey{
			ID: id,
			V:  new(big.Int).Exp(pk.V, exp, pk.NSquared),
		}
		shares[i] = &PartialKey{ID: id, S: s}
	}

	return pk, shares, nil
}

// genSafePrime finds p' prime with p = 2p'+1 also prime, p of length bits.
func genSafePrime(rand io.Reader, bits int) (p1, p *big.Int, err error) {
	for attempts := 0; attempts < 10000; attempts++ {
		p1, err = crand.Prime(rand, bits-1)
		if err != nil {
			return nil, nil, err
		}
		p = new(big.Int).Lsh(p1, 1)
		p.Add(p, one)
		if p.ProbablyPrime(10) {
			return p1, p, nil
		}
	}
	return nil, nil, errPrimeGenFailed
}

// evaluatePolynomial returns sum(coeffs[i] * x^i) mod modulus.
func evaluatePolynomial(coeffs []*big.Int, x int, modulus *big.Int) *big.Int {
	sum := new(big.Int)
	xBig := big.NewInt(int64(x))
	xPow := big.NewInt(1)
	term := new(big.Int)
	for _, c := range coeffs {
		term.Mul(c, xPow)
		sum.Add(sum, term)
		xPow = new(big.Int).Mul(xPow, xBig)
	}
	return sum.Mod(sum, modulus)
}

func factorial(n int) *big.Int {
	return new(big.Int).MulRange(1, int64(n))
}

// modExp is Exp extended to negative exponents via the modular inverse.
func modExp(base, exp, modulus *big.Int) (*big.Int, error) {
	if exp.Sign() >= 0 {
		return new(big.Int).Exp(base, exp, modulus), nil
	}
	inv := new(big.Int).ModInverse(base, modulus)
	if inv == nil {
		return nil, errNoInverse
	}
	return inv.Exp(inv, new(big.Int).Neg(exp), modulus), nil
}

// randBits returns a uniform integer of at most bits bits.
func randBits(rand io.Reader, bits int) (*big.Int, error) {
	limit := new(big.Int).Lsh(one, uint(bits))
	return crand.Int(rand, limit)
}

// randBelow returns a uniform integer in [0, limit) by drawing integers of
// at most bits bits until the draw is small enough, the sampling loop the
// original scheme specifies for Z_n and Z*_n elements.
func randBelow(rand io.Reader, bits int, limit *big.Int) (*big.Int, error) {
	for {
		r, err := randBits(rand, bits)
		if err != nil {
			return nil, err
		}
		if r.Cmp(limit) < 0 {
			return r, nil
		}
	}
}
