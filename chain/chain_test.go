// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	mrand "math/rand"
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/bitvote/crypto/keys"
	"github.com/luxfi/bitvote/crypto/paillier"
	"github.com/luxfi/bitvote/voting"
)

func testElection(t *testing.T) (*voting.Election, []*paillier.PartialKey) {
	t.Helper()
	require := require.New(t)

	pk, shares, err := paillier.GenerateKey(mrand.New(mrand.NewSource(21)), 128, 1, 1)
	require.NoError(err)

	q, err := voting.NewQuestion("Adopt the proposal?", [2]string{"NO", "YES"})
	require.NoError(err)

	voter, err := keys.NewPrivateKey(keys.RoleVote)
	require.NoError(err)
	trustee, err := keys.NewPrivateKey(keys.RoleTrustee)
	require.NoError(err)

	return &voting.Election{
		Name:       "test",
		Questions:  []voting.Question{q},
		EndingTime: 1700000000000,
		EncPubKey:  pk,
		Voters:     []ids.ShortID{voter.PublicKey().KeyID()},
		Trustees:   []ids.ShortID{trustee.PublicKey().KeyID()},
	}, shares
}

func TestTxHashExcludesSignature(t *testing.T) {
	require := require.New(t)

	e, _ := testElection(t)
	tx := &TxElection{Election: e}

	signer, err := keys.NewPrivateKey(keys.RoleElection)
	require.NoError(err)
	tx.SetPublicKey(signer.PublicKey())

	unsigned := TxHash(tx)
	require.NotEqual(ids.Empty, unsigned)

	require.NoError(SignTx(tx, signer))
	require.NotEmpty(tx.Signature())
	require.Equal(unsigned, TxHash(tx))

	// re-serialization keeps the hash stable
	raw, err := TxBytes(tx)
	require.NoError(err)
	parsed, err := ParseTx(raw)
	require.NoError(err)
	require.Equal(unsigned, TxHash(parsed))
	require.NoError(VerifyTxSignature(parsed))
}

func TestSignTxEnforcesRoles(t *testing.T) {
	require := require.New(t)

	tx := &TxTally{Election: ids.GenerateTestID(), LastBlock: ids.GenerateTestID()}

	voteKey, err := keys.NewPrivateKey(keys.RoleVote)
	require.NoError(err)
	require.ErrorIs(SignTx(tx, voteKey), ErrWrongRole)

	electionKey, err := keys.NewPrivateKey(keys.RoleElection)
	require.NoError(err)
	require.NoError(SignTx(tx, electionKey))
	require.NoError(VerifyTxSignature(tx))

	// a vote key cannot sign a trustee tally
	tt := &TxTrusteeTally{Tally: ids.GenerateTestID()}
	require.ErrorIs(SignTx(tt, voteKey), ErrWrongRole)
}

func TestVerifyTxSignatureRejectsTampering(t *testing.T) {
	require := require.New(t)

	tx := &TxTally{Election: ids.GenerateTestID(), LastBlock: ids.GenerateTestID()}
	key, err := keys.NewPrivateKey(keys.RoleElection)
	require.NoError(err)
	require.NoError(SignTx(tx, key))

	tx.EndElection = !tx.EndElection
	require.Error(VerifyTxSignature(tx))
}

func TestParseTxRejectsGarbage(t *testing.T) {
	require := require.New(t)

	_, err := ParseTx(nil)
	require.Error(err)

	_, err = ParseTx([]byte{0xee})
	require.ErrorIs(err, ErrUnknownType)

	tx := &TxTally{Election: ids.GenerateTestID()}
	key, err := keys.NewPrivateKey(keys.RoleElection)
	require.NoError(err)
	require.NoError(SignTx(tx, key))
	raw, err := TxBytes(tx)
	require.NoError(err)

	_, err = ParseTx(append(raw, 0x00))
	require.Error(err)
}

func TestBlockHashAndSignature(t *testing.T) {
	require := require.New(t)

	electionKey, err := keys.NewPrivateKey(keys.RoleElection)
	require.NoError(err)
	tx := &TxTally{Election: ids.GenerateTestID(), LastBlock: ids.GenerateTestID()}
	require.NoError(SignTx(tx, electionKey))

	miningKey, err := keys.NewPrivateKey(keys.RoleMining)
	require.NoError(err)

	b := &Block{
		Header: BlockHeader{
			Version:   Version,
			PrevBlock: GenesisBlockHash,
			Time:      1700000000000,
		},
		Txs: []Tx{tx},
	}
	b.SetPublicKey(miningKey.PublicKey())

	unsigned := b.Hash()
	require.NoError(b.Sign(miningKey))
	require.Equal(unsigned, b.Hash())
	require.NoError(b.VerifySignature())

	// the nonce is part of the hashed range
	b.Header.Nonce++
	require.NotEqual(unsigned, b.Hash())
	require.Error(b.VerifySignature())
	b.Header.Nonce--

	raw, err := b.Bytes()
	require.NoError(err)
	parsed, err := ParseBlock(raw)
	require.NoError(err)
	require.Equal(unsigned, parsed.Hash())
	require.NoError(parsed.VerifySignature())
	require.True(parsed.Contains(TxHash(tx)))

	voteKey, err := keys.NewPrivateKey(keys.RoleVote)
	require.NoError(err)
	require.ErrorIs(b.Sign(voteKey), ErrWrongRole)
}
