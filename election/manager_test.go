// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package election

import (
	mrand "math/rand"
	"testing"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/bitvote/chain"
	"github.com/luxfi/bitvote/chain/store"
	"github.com/luxfi/bitvote/crypto/keys"
	"github.com/luxfi/bitvote/crypto/paillier"
	"github.com/luxfi/bitvote/voting"
)

// lifecycleFixture commits an election and lets tests append vote blocks
// directly to the store, bypassing mining.
type lifecycleFixture struct {
	store   *store.Store
	manager *Manager
	shares  []*paillier.PartialKey
	voter   *keys.PrivateKey
	mining  *keys.PrivateKey
	qid     ids.ShortID
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	require := require.New(t)

	st, err := store.New(memdb.New(), t.TempDir(), log.NewNoOpLogger())
	require.NoError(err)

	pk, shares, err := paillier.GenerateKey(mrand.New(mrand.NewSource(61)), 256, 2, 2)
	require.NoError(err)
	q, err := voting.NewQuestion("approve?", [2]string{"NO", "YES"})
	require.NoError(err)

	voter, err := keys.NewPrivateKey(keys.RoleVote)
	require.NoError(err)
	creator, err := keys.NewPrivateKey(keys.RoleElection)
	require.NoError(err)
	mining, err := keys.NewPrivateKey(keys.RoleMining)
	require.NoError(err)

	tx := &chain.TxElection{Election: &voting.Election{
		Name:      "revote",
		Questions: []voting.Question{q},
		EncPubKey: pk,
		Voters:    []ids.ShortID{voter.PublicKey().KeyID()},
		Trustees:  []ids.ShortID{ids.GenerateTestShortID(), ids.GenerateTestShortID()},
	}}
	require.NoError(chain.SignTx(tx, creator))

	f := &lifecycleFixture{
		store:   st,
		manager: NewManager(tx),
		shares:  shares,
		voter:   voter,
		mining:  mining,
		qid:     q.ID,
	}
	f.appendBlock(t, tx)
	return f
}

func (f *lifecycleFixture) appendBlock(t *testing.T, txs ...chain.Tx) *chain.Block {
	require := require.New(t)
	b := &chain.Block{
		Header: chain.BlockHeader{
			Version:   chain.Version,
			PrevBlock: f.store.LatestBlockHash(),
			Time:      1000,
		},
		Txs: txs,
	}
	require.NoError(b.Sign(f.mining))
	require.NoError(f.store.AddBlock(b))
	return b
}

func (f *lifecycleFixture) vote(t *testing.T, answer int32) *chain.Block {
	require := require.New(t)
	tx, err := f.manager.CreateVote(nil, []voting.Ballot{{QuestionID: f.qid, Answer: answer}})
	require.NoError(err)
	require.NoError(chain.SignTx(tx, f.voter))
	return f.appendBlock(t, tx)
}

// A voter who votes again invalidates the earlier vote: the aggregation
// walk keeps only the most recent vote per voter up to the tally block.
func TestLastVoteRule(t *testing.T) {
	require := require.New(t)
	f := newLifecycleFixture(t)

	f.vote(t, 1)
	last := f.vote(t, 0)

	tally := &chain.TxTally{
		Election:  f.manager.Hash(),
		LastBlock: last.Hash(),
	}

	key := f.manager.Tx.Election.EncPubKey
	var partials []*paillier.PartialDecryption
	for _, share := range f.shares {
		tt, err := f.manager.CreateTrusteeTally(nil, f.store, tally, share)
		require.NoError(err)
		require.Len(tt.PartialDecryptions, 1)
		require.Equal(f.qid, tt.PartialDecryptions[0].QuestionID)
		require.True(paillier.VerifyPartial(key, tt.PartialDecryptions[0].Answers))
		partials = append(partials, tt.PartialDecryptions[0].Answers)
	}

	// only the later vote counts: a 0, not the earlier 1
	plain, err := paillier.Combine(key, partials)
	require.NoError(err)
	require.Equal(int64(0), plain.Int64())
}

// The same walk bounded at the first vote's block counts the first vote.
func TestTallyBoundedByLastBlock(t *testing.T) {
	require := require.New(t)
	f := newLifecycleFixture(t)

	first := f.vote(t, 1)
	f.vote(t, 0)

	tally := &chain.TxTally{
		Election:  f.manager.Hash(),
		LastBlock: first.Hash(),
	}

	key := f.manager.Tx.Election.EncPubKey
	var partials []*paillier.PartialDecryption
	for _, share := range f.shares {
		tt, err := f.manager.CreateTrusteeTally(nil, f.store, tally, share)
		require.NoError(err)
		partials = append(partials, tt.PartialDecryptions[0].Answers)
	}

	plain, err := paillier.Combine(key, partials)
	require.NoError(err)
	require.Equal(int64(1), plain.Int64())
}

func TestCreateVoteChecksBallots(t *testing.T) {
	require := require.New(t)
	f := newLifecycleFixture(t)

	// unknown question
	_, err := f.manager.CreateVote(nil, []voting.Ballot{{
		QuestionID: ids.GenerateTestShortID(),
		Answer:     1,
	}})
	require.Error(err)

	// a full abstention produces no ballots to publish
	_, err = f.manager.CreateVote(nil, []voting.Ballot{{
		QuestionID: f.qid,
		Answer:     voting.Abstain,
	}})
	require.Error(err)
}

func TestCreateTrusteeTallyNeedsVotes(t *testing.T) {
	require := require.New(t)
	f := newLifecycleFixture(t)

	// a tally pointing at the election block finds nothing to count
	tally := &chain.TxTally{
		Election:  f.manager.Hash(),
		LastBlock: f.store.LatestBlockHash(),
	}
	_, err := f.manager.CreateTrusteeTally(nil, f.store, tally, f.shares[0])
	require.ErrorIs(err, ErrNoVotes)
}
