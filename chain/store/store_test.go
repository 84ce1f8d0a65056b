// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/bitvote/chain"
	"github.com/luxfi/bitvote/crypto/keys"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(memdb.New(), t.TempDir(), log.NewNoOpLogger())
	require.NoError(t, err)
	return s
}

// testBlock builds a signed block with one tally transaction carrying the
// given name, chained onto prev.
func testBlock(t *testing.T, prev ids.ID, timeMs int64, name string) *chain.Block {
	t.Helper()
	require := require.New(t)

	electionKey, err := keys.NewPrivateKey(keys.RoleElection)
	require.NoError(err)
	tx := &chain.TxTally{
		Election:  hashOf(name),
		LastBlock: prev,
	}
	require.NoError(chain.SignTx(tx, electionKey))

	miningKey, err := keys.NewPrivateKey(keys.RoleMining)
	require.NoError(err)
	b := &chain.Block{
		Header: chain.BlockHeader{
			Version:   chain.Version,
			PrevBlock: prev,
			Time:      timeMs,
		},
		Txs: []chain.Tx{tx},
	}
	require.NoError(b.Sign(miningKey))
	return b
}

func hashOf(name string) ids.ID {
	var id ids.ID
	copy(id[:], name)
	return id
}

func TestAddAndGetBlocks(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	genesis := s.GenesisBlockHash()
	require.Equal(chain.GenesisBlockHash, genesis)
	require.Equal(genesis, s.LatestBlockHash())

	_, err := s.GetLatestBlock()
	require.ErrorIs(err, ErrEmptyChain)

	var blocks []*chain.Block
	prev := genesis
	for i, name := range []string{"E1", "E2", "E3"} {
		b := testBlock(t, prev, int64(1000*(i+1)), name)
		require.NoError(s.AddBlock(b))
		require.Equal(b.Hash(), s.LatestBlockHash())
		require.True(s.ContainsBlock(b.Hash()))
		for _, tx := range b.Txs {
			require.True(s.ContainsTx(chain.TxHash(tx)))
		}
		blocks = append(blocks, b)
		prev = b.Hash()
	}

	// appending a block that does not chain is refused
	fork := testBlock(t, blocks[0].Hash(), 5000, "E4")
	require.ErrorIs(s.AddBlock(fork), ErrInvalidBlock)

	// blocks come back in chain order, hashes linking up
	all, err := s.GetAllBlocks(genesis, s.LatestBlockHash())
	require.NoError(err)
	require.Len(all, 3)
	prev = genesis
	for i, b := range all {
		require.Equal(blocks[i].Hash(), b.Hash())
		require.Equal(prev, b.Header.PrevBlock)
		prev = b.Hash()
	}

	// single block and transaction lookups
	got, err := s.GetBlock(blocks[1].Hash())
	require.NoError(err)
	require.Equal(blocks[1].Hash(), got.Hash())

	txHash := chain.TxHash(blocks[2].Txs[0])
	tx, err := s.GetTx(txHash)
	require.NoError(err)
	require.Equal(txHash, chain.TxHash(tx))

	byTx, err := s.GetBlockByTx(txHash)
	require.NoError(err)
	require.Equal(blocks[2].Hash(), byTx.Hash())

	_, err = s.GetBlock(ids.GenerateTestID())
	require.ErrorIs(err, database.ErrNotFound)
}

func TestReopenKeepsState(t *testing.T) {
	require := require.New(t)

	db := memdb.New()
	dir := t.TempDir()
	s, err := New(db, dir, log.NewNoOpLogger())
	require.NoError(err)

	b := testBlock(t, s.GenesisBlockHash(), 1000, "E1")
	require.NoError(s.AddBlock(b))

	reopened, err := New(db, dir, log.NewNoOpLogger())
	require.NoError(err)
	require.Equal(b.Hash(), reopened.LatestBlockHash())

	got, err := reopened.GetLatestBlock()
	require.NoError(err)
	require.Equal(b.Hash(), got.Hash())
}

func TestCutOffAfter(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)
	genesis := s.GenesisBlockHash()

	var blocks []*chain.Block
	prev := genesis
	for i := 0; i < 5; i++ {
		b := testBlock(t, prev, int64(1000*(i+1)), "E1")
		require.NoError(s.AddBlock(b))
		blocks = append(blocks, b)
		prev = b.Hash()
	}

	fileBefore, err := os.Stat(filepath.Join(s.dir, "blockfile_0000000000.bin"))
	require.NoError(err)

	require.NoError(s.CutOffAfter(blocks[2].Hash()))
	require.Equal(blocks[2].Hash(), s.LatestBlockHash())

	all, err := s.GetAllBlocks(genesis, s.LatestBlockHash())
	require.NoError(err)
	require.Len(all, 3)

	// cut blocks and their transactions are unreachable
	for _, b := range blocks[3:] {
		require.False(s.ContainsBlock(b.Hash()))
		for _, tx := range b.Txs {
			require.False(s.ContainsTx(chain.TxHash(tx)))
		}
	}

	// the block file shrank to the retained prefix
	fileAfter, err := os.Stat(filepath.Join(s.dir, "blockfile_0000000000.bin"))
	require.NoError(err)
	require.Less(fileAfter.Size(), fileBefore.Size())

	// reapplying the removed blocks restores the chain
	for _, b := range blocks[3:] {
		require.NoError(s.AddBlock(b))
	}
	require.Equal(blocks[4].Hash(), s.LatestBlockHash())
	all, err = s.GetAllBlocks(genesis, s.LatestBlockHash())
	require.NoError(err)
	require.Len(all, 5)
	for i, b := range all {
		require.Equal(blocks[i].Hash(), b.Hash())
	}

	// cutting at the tip is a no-op
	require.NoError(s.CutOffAfter(s.LatestBlockHash()))
	require.Equal(blocks[4].Hash(), s.LatestBlockHash())
}

func TestClear(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	prev := s.GenesisBlockHash()
	for i := 0; i < 3; i++ {
		b := testBlock(t, prev, int64(1000*(i+1)), "E1")
		require.NoError(s.AddBlock(b))
		prev = b.Hash()
	}

	require.NoError(s.Clear())
	require.Equal(s.GenesisBlockHash(), s.LatestBlockHash())
	_, err := os.Stat(filepath.Join(s.dir, "blockfile_0000000000.bin"))
	require.True(os.IsNotExist(err))

	// the store accepts blocks again from scratch
	b := testBlock(t, s.GenesisBlockHash(), 1000, "E9")
	require.NoError(s.AddBlock(b))
	require.Equal(b.Hash(), s.LatestBlockHash())
}
