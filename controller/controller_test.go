// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package controller

import (
	"fmt"
	mrand "math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/bitvote/chain"
	"github.com/luxfi/bitvote/chain/store"
	"github.com/luxfi/bitvote/crypto/keys"
	"github.com/luxfi/bitvote/crypto/paillier"
	"github.com/luxfi/bitvote/election"
	"github.com/luxfi/bitvote/keystore"
	"github.com/luxfi/bitvote/miner"
	"github.com/luxfi/bitvote/network"
	"github.com/luxfi/bitvote/network/protocols"
	"github.com/luxfi/bitvote/utils/timer/mockable"
	"github.com/luxfi/bitvote/voting"
)

// testPeer is a full single-process node without a listening socket:
// store, keystore, registry, protocols, miner and controller wired the
// way the node package does it. Floods go nowhere; the local delivery
// loop does all the work.
type testPeer struct {
	store      *store.Store
	keystore   *keystore.Keystore
	registry   *election.Registry
	controller *Controller
}

func newTestPeer(t *testing.T) *testPeer {
	t.Helper()
	require := require.New(t)

	logger := log.NewNoOpLogger()
	db := memdb.New()

	st, err := store.New(db, t.TempDir(), logger)
	require.NoError(err)
	ks, err := keystore.New(db, logger)
	require.NoError(err)
	registry := election.NewRegistry(db, st, logger)

	net, err := network.New(network.Config{
		Port:           0,
		MaxConnections: 1,
		FloodTTL:       3,
	}, logger, metric.NewRegistry())
	require.NoError(err)

	clock := &mockable.Clock{}
	txProto := protocols.NewTransactions(net, logger, clock, time.Minute)
	blocksProto := protocols.NewBlocks(net, logger, clock, time.Minute)

	c := New(st, ks, registry, txProto, blocksProto, clock, logger)

	miningKey, err := ks.NewKey(keys.RoleMining)
	require.NoError(err)
	m, err := miner.New(
		miner.Config{Threads: 2},
		st,
		blocksProto,
		miningKey,
		c.VerifyTx,
		clock,
		logger,
		metric.NewRegistry(),
	)
	require.NoError(err)
	c.SetMiner(m)

	return &testPeer{
		store:      st,
		keystore:   ks,
		registry:   registry,
		controller: c,
	}
}

func (p *testPeer) waitForTx(t *testing.T, hash ids.ID) {
	t.Helper()
	require.Eventually(t, func() bool {
		return p.store.ContainsTx(hash)
	}, 2*time.Minute, 20*time.Millisecond, "transaction %s never committed", hash)
}

// The full election lifecycle on one peer: create, seven votes, an
// ending tally, three trustee tallies, threshold decryption.
func TestElectionLifecycle(t *testing.T) {
	require := require.New(t)
	peer := newTestPeer(t)

	// keys for everyone involved; this peer plays every part
	creator, err := peer.keystore.NewKey(keys.RoleElection)
	require.NoError(err)

	votes := []int32{1, 0, 1, 1, 0, 0, 1}
	voters := make([]*keys.PrivateKey, len(votes))
	voterIDs := make([]ids.ShortID, len(votes))
	for i := range votes {
		voters[i], err = peer.keystore.NewKey(keys.RoleVote)
		require.NoError(err)
		voterIDs[i] = voters[i].PublicKey().KeyID()
	}

	trustees := make([]*keys.PrivateKey, 3)
	trusteeIDs := make([]ids.ShortID, 3)
	for i := range trustees {
		trustees[i], err = peer.keystore.NewKey(keys.RoleTrustee)
		require.NoError(err)
		trusteeIDs[i] = trustees[i].PublicKey().KeyID()
	}

	encKey, shares, err := paillier.GenerateKey(mrand.New(mrand.NewSource(42)), 256, 3, 3)
	require.NoError(err)

	question, err := voting.NewQuestion("Adopt the new bylaws?", [2]string{"NO", "YES"})
	require.NoError(err)

	e := &voting.Election{
		Name:        "bylaws 2024",
		Description: "Annual bylaws revision",
		Questions:   []voting.Question{question},
		EndingTime:  time.Now().Add(time.Hour).UnixMilli(),
		EncPubKey:   encKey,
		Voters:      voterIDs,
		Trustees:    trusteeIDs,
	}
	require.NoError(e.Verify())

	// --- create the election ---
	exportDir := t.TempDir()
	require.NoError(peer.controller.OnElectionCreated(e, creator, exportDir, shares))

	electionTx := &chain.TxElection{Election: e}
	electionTx.SetPublicKey(creator.PublicKey())
	electionHash := chain.TxHash(electionTx)
	peer.waitForTx(t, electionHash)

	em, ok := peer.registry.Get(electionHash)
	require.True(ok)
	require.True(em.AmICreator(peer.keystore))
	require.True(em.AmIVoter(peer.keystore))
	require.True(em.AmITrustee(peer.keystore))

	// --- import the exported trustee shares ---
	entries, err := os.ReadDir(exportDir)
	require.NoError(err)
	require.Len(entries, 3)
	for _, entry := range entries {
		share, err := keystore.ReadShareFile(filepath.Join(exportDir, entry.Name()))
		require.NoError(err)
		require.Equal(electionHash, share.Election)
		require.NoError(peer.controller.OnNewPaillierShare(share))
	}

	// --- vote ---
	var voteHashes []ids.ID
	for i, answer := range votes {
		ballots := []voting.Ballot{{QuestionID: question.ID, Answer: answer}}
		require.NoError(peer.controller.OnVote(em, ballots, voters[i]))
	}
	require.Eventually(func() bool {
		em, _ := peer.registry.Get(electionHash)
		return len(em.VotesRegistered) == len(votes)
	}, 2*time.Minute, 20*time.Millisecond)

	em, _ = peer.registry.Get(electionHash)
	for _, id := range voterIDs {
		_, voted := em.VotesRegistered[id]
		require.True(voted)
		// all the voter keys are ours
		_, mine := em.MyVotes[id]
		require.True(mine)
		voteHashes = append(voteHashes, em.MyVotes[id])
	}
	for _, h := range voteHashes {
		require.True(peer.store.ContainsTx(h))
	}

	// --- tally and trustee tallies ---
	lastBlock := peer.store.LatestBlockHash()
	require.NoError(peer.controller.OnTally(em, true, lastBlock))

	// the trustees answer automatically; the results appear once the
	// threshold of three is reached
	require.Eventually(func() bool {
		em, _ := peer.registry.Get(electionHash)
		return em.ResultsAvailable()
	}, 4*time.Minute, 50*time.Millisecond)

	em, _ = peer.registry.Get(electionHash)
	require.True(em.Ended)
	require.Len(em.Results, 1)
	for tallyHash, results := range em.Results {
		require.Len(em.Tallies[tallyHash], 3)
		require.Len(results, 1)
		require.Equal(question.ID, results[0].QuestionID)
		require.Equal(int32(4), results[0].Answer, "seven ballots [1 0 1 1 0 0 1] must count to 4")
	}
}

func TestVerifyTxRejections(t *testing.T) {
	require := require.New(t)
	peer := newTestPeer(t)

	// a vote referencing an unknown election cannot be admitted
	voter, err := keys.NewPrivateKey(keys.RoleVote)
	require.NoError(err)
	vote := &chain.TxVote{Election: ids.GenerateTestID()}
	require.NoError(chain.SignTx(vote, voter))
	require.ErrorIs(peer.controller.VerifyTx(vote), ErrTxMissing)

	// an unsigned transaction fails outright
	unsigned := &chain.TxTally{Election: ids.GenerateTestID()}
	unsigned.SetPublicKey(voter.PublicKey())
	require.Error(peer.controller.VerifyTx(unsigned))

	// an incomplete election is rejected
	electionKey, err := keys.NewPrivateKey(keys.RoleElection)
	require.NoError(err)
	enc, _, err := paillier.GenerateKey(mrand.New(mrand.NewSource(7)), 128, 1, 1)
	require.NoError(err)
	badElection := &chain.TxElection{Election: &voting.Election{
		Name:      "no voters",
		EncPubKey: enc,
		Trustees:  []ids.ShortID{ids.GenerateTestShortID()},
		Questions: mustQuestions(t, 1),
	}}
	require.NoError(chain.SignTx(badElection, electionKey))
	require.ErrorIs(peer.controller.VerifyTx(badElection), voting.ErrIncomplete)
}

func mustQuestions(t *testing.T, n int) []voting.Question {
	t.Helper()
	out := make([]voting.Question, n)
	for i := range out {
		q, err := voting.NewQuestion(fmt.Sprintf("question %d", i), [2]string{"NO", "YES"})
		require.NoError(t, err)
		out[i] = q
	}
	return out
}
