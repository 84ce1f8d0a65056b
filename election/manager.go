// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package election keeps the per-election bookkeeping for every election
// this node is involved in: who voted, which tallies are pending, and the
// decrypted results. The state is rebuilt from the chain, so only what
// cannot be derived cheaply is persisted.
package election

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"

	"github.com/luxfi/ids"

	"github.com/luxfi/bitvote/chain"
	"github.com/luxfi/bitvote/chain/store"
	"github.com/luxfi/bitvote/crypto/keys"
	"github.com/luxfi/bitvote/crypto/paillier"
	"github.com/luxfi/bitvote/keystore"
	"github.com/luxfi/bitvote/voting"
)

var (
	ErrNoVotes          = errors.New("no votes to tally")
	ErrBelowThreshold   = errors.New("not enough valid partial decryptions")
	errUnknownTally     = errors.New("unknown tally")
	errAllAbstained     = errors.New("every ballot abstained")
	errResultOutOfRange = errors.New("decrypted count does not fit an int32")
)

// Manager tracks one election this node takes part in as creator, voter
// or trustee.
type Manager struct {
	// Tx is the original election transaction, restored from the chain
	Tx *chain.TxElection

	// Ended latches once an end-marker tally committed
	Ended bool
	// VotesRegistered holds the key id of every voter who voted
	VotesRegistered map[ids.ShortID]struct{}
	// MyVotes maps this node's voter keys to their latest vote
	// transaction, so the UI can warn before invalidating a vote
	MyVotes map[ids.ShortID]ids.ID
	// Tallies maps tally transactions to the trustee tallies answering
	// them
	Tallies map[ids.ID]map[ids.ID]struct{}
	// Results maps tally transactions to the decrypted counts
	Results map[ids.ID][]voting.Ballot
}

// NewManager creates empty bookkeeping for an election transaction.
func NewManager(tx *chain.TxElection) *Manager {
	return &Manager{
		Tx:              tx,
		VotesRegistered: make(map[ids.ShortID]struct{}),
		MyVotes:         make(map[ids.ShortID]ids.ID),
		Tallies:         make(map[ids.ID]map[ids.ID]struct{}),
		Results:         make(map[ids.ID][]voting.Ballot),
	}
}

// Hash returns the election transaction hash.
func (m *Manager) Hash() ids.ID {
	return chain.TxHash(m.Tx)
}

// IsVoterEligible reports whether the key may vote here.
func (m *Manager) IsVoterEligible(key *keys.PublicKey) bool {
	return m.Tx.Election.IsVoter(key.KeyID())
}

// IsTrusteeEligible reports whether the key may publish trustee tallies.
func (m *Manager) IsTrusteeEligible(key *keys.PublicKey) bool {
	return m.Tx.Election.IsTrustee(key.KeyID())
}

// AmICreator reports whether one of the node's election keys signed the
// election.
func (m *Manager) AmICreator(ks *keystore.Keystore) bool {
	creator := m.Tx.PublicKey()
	if creator == nil {
		return false
	}
	creatorID := creator.KeyID()
	for _, key := range ks.KeysOfRole(keys.RoleElection) {
		if key.PublicKey().KeyID() == creatorID {
			return true
		}
	}
	return false
}

// AmIVoter reports whether the node holds an eligible voting key.
func (m *Manager) AmIVoter(ks *keystore.Keystore) bool {
	for _, key := range ks.KeysOfRole(keys.RoleVote) {
		if m.IsVoterEligible(key.PublicKey()) {
			return true
		}
	}
	return false
}

// AmITrustee reports whether the node holds an eligible trustee key.
func (m *Manager) AmITrustee(ks *keystore.Keystore) bool {
	for _, key := range ks.KeysOfRole(keys.RoleTrustee) {
		if m.IsTrusteeEligible(key.PublicKey()) {
			return true
		}
	}
	return false
}

// AmIInvolved reports whether this election concerns this node at all.
func (m *Manager) AmIInvolved(ks *keystore.Keystore) bool {
	return m.AmICreator(ks) || m.AmIVoter(ks) || m.AmITrustee(ks)
}

// AlreadyVoted reports whether one of this node's keys voted.
func (m *Manager) AlreadyVoted() bool {
	return len(m.MyVotes) > 0
}

// ResultsAvailable reports whether any tally has been decrypted.
func (m *Manager) ResultsAvailable() bool {
	return len(m.Results) > 0
}

// CreateVote encrypts the given answers into a vote transaction.
// Abstained questions are left out of the ballot set.
func (m *Manager) CreateVote(rand io.Reader, ballots []voting.Ballot) (*chain.TxVote, error) {
	e := m.Tx.Election
	if err := e.CheckBallots(ballots); err != nil {
		return nil, err
	}

	var encrypted []voting.EncryptedBallot
	for _, b := range ballots {
		if b.Answer == voting.Abstain {
			continue
		}
		proof, err := paillier.EncryptBinary(rand, e.EncPubKey, int(b.Answer))
		if err != nil {
			return nil, fmt.Errorf("encrypting ballot: %w", err)
		}
		encrypted = append(encrypted, voting.EncryptedBallot{
			QuestionID: b.QuestionID,
			Answer:     proof,
		})
	}
	if len(encrypted) == 0 {
		return nil, errAllAbstained
	}

	return &chain.TxVote{
		Election: m.Hash(),
		Ballots:  encrypted,
	}, nil
}

// CreateTrusteeTally aggregates all counted votes up to the tally's last
// block and partially decrypts the per-question sums with the given
// share.
func (m *Manager) CreateTrusteeTally(
	rand io.Reader,
	st *store.Store,
	tally *chain.TxTally,
	share *paillier.PartialKey,
) (*chain.TxTrusteeTally, error) {
	ballots, err := m.gatherVotes(st, tally.LastBlock)
	if err != nil {
		return nil, err
	}
	if len(ballots) == 0 {
		return nil, ErrNoVotes
	}

	key := m.Tx.Election.EncPubKey

	// homomorphic per-question sums; invalid ciphertexts are skipped, not
	// fatal
	sums := make(map[ids.ShortID]*big.Int)
	var order []ids.ShortID
	for _, b := range ballots {
		if !paillier.VerifyBinary(key, b.Answer) {
			continue
		}
		sum, ok := sums[b.QuestionID]
		if !ok {
			sum = paillier.OneCiphertext()
			order = append(order, b.QuestionID)
		}
		sums[b.QuestionID] = paillier.AddCiphertexts(key, sum, b.Answer.C)
	}

	var tallied []voting.TalliedBallots
	for _, qid := range order {
		proof, err := paillier.PartialDecrypt(rand, key, share, sums[qid])
		if err != nil {
			return nil, fmt.Errorf("partial decryption: %w", err)
		}
		tallied = append(tallied, voting.TalliedBallots{
			QuestionID: qid,
			Answers:    proof,
		})
	}

	return &chain.TxTrusteeTally{
		Tally:              chain.TxHash(tally),
		PartialDecryptions: tallied,
	}, nil
}

// Tally combines the trustee tallies answering tallyHash into plaintext
// counts. Partials with bad proofs are discarded; a question short of the
// threshold fails the whole tally.
func (m *Manager) Tally(st *store.Store, tallyHash ids.ID) error {
	trusteeTallies, ok := m.Tallies[tallyHash]
	if !ok {
		return errUnknownTally
	}

	key := m.Tx.Election.EncPubKey

	// collect at most threshold valid partials per question
	partials := make(map[ids.ShortID][]*paillier.PartialDecryption)
	var order []ids.ShortID
	for ttHash := range trusteeTallies {
		tx, err := st.GetTx(ttHash)
		if err != nil {
			continue
		}
		trusteeTally, ok := tx.(*chain.TxTrusteeTally)
		if !ok {
			continue
		}
		for _, ballot := range trusteeTally.PartialDecryptions {
			if _, seen := partials[ballot.QuestionID]; !seen {
				order = append(order, ballot.QuestionID)
			}
			if len(partials[ballot.QuestionID]) >= key.Threshold {
				continue
			}
			// two shares with one server id cannot be combined
			duplicate := false
			for _, pd := range partials[ballot.QuestionID] {
				if pd.ID == ballot.Answers.ID {
					duplicate = true
					break
				}
			}
			if duplicate || !paillier.VerifyPartial(key, ballot.Answers) {
				continue
			}
			partials[ballot.QuestionID] = append(partials[ballot.QuestionID], ballot.Answers)
		}
	}

	for _, qid := range order {
		if len(partials[qid]) < key.Threshold {
			return ErrBelowThreshold
		}
	}

	var results []voting.Ballot
	for _, qid := range order {
		plain, err := paillier.Combine(key, partials[qid])
		if err != nil {
			return err
		}
		if !plain.IsInt64() || plain.Int64() > math.MaxInt32 {
			return errResultOutOfRange
		}
		results = append(results, voting.Ballot{
			QuestionID: qid,
			Answer:     int32(plain.Int64()),
		})
	}

	m.Results[tallyHash] = results
	return nil
}

// gatherVotes walks the chain from the election's block to lastBlock
// inclusive and returns the ballots of the most recent vote per voter;
// earlier votes are discarded.
func (m *Manager) gatherVotes(st *store.Store, lastBlock ids.ID) ([]voting.EncryptedBallot, error) {
	electionHash := m.Hash()

	startBlock, err := st.GetBlockByTx(electionHash)
	if err != nil {
		return nil, err
	}
	blocks, err := st.GetAllBlocks(startBlock.Hash(), lastBlock)
	if err != nil {
		return nil, err
	}

	var result []voting.EncryptedBallot
	voted := make(map[ids.ShortID]struct{})
	// newest block first, so the first vote seen per voter is the one
	// that counts
	for i := len(blocks) - 1; i >= 0; i-- {
		for _, tx := range blocks[i].Txs {
			vote, ok := tx.(*chain.TxVote)
			if !ok || vote.Election != electionHash {
				continue
			}
			signer := vote.PublicKey()
			if signer == nil {
				continue
			}
			voter := signer.KeyID()
			if _, seen := voted[voter]; seen {
				continue
			}
			voted[voter] = struct{}{}
			result = append(result, vote.Ballots...)
		}
	}
	return result, nil
}
