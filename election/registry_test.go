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

// commitElection mines nothing: it appends a block holding the election
// transaction directly to the store.
func commitElection(t *testing.T, st *store.Store) *chain.TxElection {
	t.Helper()
	require := require.New(t)

	pk, _, err := paillier.GenerateKey(mrand.New(mrand.NewSource(51)), 128, 1, 1)
	require.NoError(err)
	q, err := voting.NewQuestion("ok?", [2]string{"NO", "YES"})
	require.NoError(err)

	creator, err := keys.NewPrivateKey(keys.RoleElection)
	require.NoError(err)
	tx := &chain.TxElection{Election: &voting.Election{
		Name:      "persisted",
		Questions: []voting.Question{q},
		EncPubKey: pk,
		Voters:    []ids.ShortID{ids.GenerateTestShortID()},
		Trustees:  []ids.ShortID{ids.GenerateTestShortID()},
	}}
	require.NoError(chain.SignTx(tx, creator))

	miningKey, err := keys.NewPrivateKey(keys.RoleMining)
	require.NoError(err)
	b := &chain.Block{
		Header: chain.BlockHeader{
			Version:   chain.Version,
			PrevBlock: st.LatestBlockHash(),
			Time:      1000,
		},
		Txs: []chain.Tx{tx},
	}
	require.NoError(b.Sign(miningKey))
	require.NoError(st.AddBlock(b))
	return tx
}

func TestRegistryPersistsState(t *testing.T) {
	require := require.New(t)

	db := memdb.New()
	st, err := store.New(db, t.TempDir(), log.NewNoOpLogger())
	require.NoError(err)

	tx := commitElection(t, st)
	hash := chain.TxHash(tx)

	registry := NewRegistry(db, st, log.NewNoOpLogger())
	_, ok := registry.Get(hash)
	require.False(ok)

	m := NewManager(tx)
	m.Ended = true
	voter := ids.GenerateTestShortID()
	m.VotesRegistered[voter] = struct{}{}
	m.MyVotes[voter] = ids.GenerateTestID()
	tally := ids.GenerateTestID()
	m.Tallies[tally] = map[ids.ID]struct{}{
		ids.GenerateTestID(): {},
		ids.GenerateTestID(): {},
	}
	m.Results[tally] = []voting.Ballot{{
		QuestionID: tx.Election.Questions[0].ID,
		Answer:     4,
	}}
	require.NoError(registry.Save(m))

	// a fresh registry over the same database restores everything,
	// re-reading the election transaction from the chain
	reopened := NewRegistry(db, st, log.NewNoOpLogger())
	restored, ok := reopened.Get(hash)
	require.True(ok)
	require.True(restored.Ended)
	require.Contains(restored.VotesRegistered, voter)
	require.Equal(m.MyVotes[voter], restored.MyVotes[voter])
	require.Len(restored.Tallies[tally], 2)
	require.Equal(m.Results[tally], restored.Results[tally])
	require.Equal(hash, restored.Hash())
	require.Len(reopened.All(), 1)
}
