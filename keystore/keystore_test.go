// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keystore

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/bitvote/crypto/keys"
	"github.com/luxfi/bitvote/crypto/paillier"
)

func TestKeystoreRoundTrip(t *testing.T) {
	require := require.New(t)

	db := memdb.New()
	ks, err := New(db, log.NewNoOpLogger())
	require.NoError(err)

	vote, err := ks.NewKey(keys.RoleVote)
	require.NoError(err)
	mining, err := ks.NewKey(keys.RoleMining)
	require.NoError(err)

	id := vote.PublicKey().KeyID()
	got, ok := ks.Get(id)
	require.True(ok)
	require.Equal(vote.Bytes(), got.Bytes())
	require.True(ks.Contains(id))

	require.Len(ks.KeysOfRole(keys.RoleVote), 1)
	require.Len(ks.KeysOfRole(keys.RoleMining), 1)
	require.Empty(ks.KeysOfRole(keys.RoleTrustee))

	// a fresh keystore over the same database sees the same keys
	reopened, err := New(db, log.NewNoOpLogger())
	require.NoError(err)
	require.True(reopened.Contains(id))
	require.True(reopened.Contains(mining.PublicKey().KeyID()))

	restored, ok := reopened.Get(id)
	require.True(ok)
	require.Equal(keys.RoleVote, restored.Role())
	require.Equal(vote.Bytes(), restored.Bytes())

	require.NoError(reopened.RemoveKey(id))
	require.False(reopened.Contains(id))
}

func TestSharesRoundTrip(t *testing.T) {
	require := require.New(t)

	ks, err := New(memdb.New(), log.NewNoOpLogger())
	require.NoError(err)

	electionA := ids.GenerateTestID()
	electionB := ids.GenerateTestID()

	shareA1 := ElectionShare{
		Election: electionA,
		SignKey:  ids.GenerateTestShortID(),
		Share:    &paillier.PartialKey{ID: 1, S: big.NewInt(123456789)},
	}
	shareA2 := ElectionShare{
		Election: electionA,
		SignKey:  ids.GenerateTestShortID(),
		Share:    &paillier.PartialKey{ID: 2, S: big.NewInt(987654321)},
	}
	shareB := ElectionShare{
		Election: electionB,
		SignKey:  ids.GenerateTestShortID(),
		Share:    &paillier.PartialKey{ID: 1, S: big.NewInt(42)},
	}

	require.NoError(ks.AddShare(shareA1))
	require.NoError(ks.AddShare(shareA2))
	require.NoError(ks.AddShare(shareB))

	forA, err := ks.SharesFor(electionA)
	require.NoError(err)
	require.Len(forA, 2)
	forB, err := ks.SharesFor(electionB)
	require.NoError(err)
	require.Len(forB, 1)
	require.Equal(int64(42), forB[0].Share.S.Int64())

	none, err := ks.SharesFor(ids.GenerateTestID())
	require.NoError(err)
	require.Empty(none)
}

func TestShareFile(t *testing.T) {
	require := require.New(t)

	share := ElectionShare{
		Election: ids.GenerateTestID(),
		SignKey:  ids.GenerateTestShortID(),
		Share:    &paillier.PartialKey{ID: 3, S: big.NewInt(55555)},
	}

	path := filepath.Join(t.TempDir(), "trustee_share")
	require.NoError(WriteShareFile(path, share))

	restored, err := ReadShareFile(path)
	require.NoError(err)
	require.Equal(share.Election, restored.Election)
	require.Equal(share.SignKey, restored.SignKey)
	require.Equal(share.Share.ID, restored.Share.ID)
	require.Equal(0, share.Share.S.Cmp(restored.Share.S))

	_, err = ReadShareFile(filepath.Join(t.TempDir(), "missing"))
	require.Error(err)
}
