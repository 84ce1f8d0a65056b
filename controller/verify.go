// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package controller

import (
	"errors"
	"fmt"

	"github.com/luxfi/ids"

	"github.com/luxfi/bitvote/chain"
	"github.com/luxfi/bitvote/crypto/paillier"
	"github.com/luxfi/bitvote/voting"
)

// The error taxonomy of transaction verification. Signature and proof
// failures drop the transaction; policy rejections are well-formed but
// ineligible; missing transactions may simply not have committed yet.
var (
	ErrTxMissing      = errors.New("required transaction is not in the block chain")
	ErrPolicyRejected = errors.New("permission denied for transaction")
	ErrBallots        = errors.New("ballots are not correct")
	ErrTallyVotes     = errors.New("votes for election are missing")
	ErrTallySigner    = errors.New("tally was not signed by the election creator")
)

// VerifyTx applies the full verification discipline for one transaction:
// canonical signature by a key of the right role, then the per-type
// rules. It runs both at gossip receipt and on block inclusion.
func (c *Controller) VerifyTx(tx chain.Tx) error {
	if err := chain.VerifyTxSignature(tx); err != nil {
		return err
	}

	switch tx := tx.(type) {
	case *chain.TxElection:
		return c.verifyElection(tx)
	case *chain.TxVote:
		return c.verifyVote(tx)
	case *chain.TxTally:
		return c.verifyTally(tx)
	case *chain.TxTrusteeTally:
		return c.verifyTrusteeTally(tx)
	default:
		return chain.ErrUnknownType
	}
}

func (c *Controller) verifyElection(tx *chain.TxElection) error {
	return tx.Election.Verify()
}

func (c *Controller) verifyVote(tx *chain.TxVote) error {
	electionTx, err := c.getElection(tx.Election)
	if err != nil {
		return err
	}

	if err := checkQuestionCoverage(electionTx.Election, len(tx.Ballots), func(i int) ids.ShortID {
		return tx.Ballots[i].QuestionID
	}); err != nil {
		return err
	}
	for _, ballot := range tx.Ballots {
		if ballot.Answer == nil {
			return ErrBallots
		}
		if !paillier.VerifyBinary(electionTx.Election.EncPubKey, ballot.Answer) {
			return fmt.Errorf("%w: membership proof failed", ErrBallots)
		}
	}

	if !electionTx.Election.IsVoter(tx.PublicKey().KeyID()) {
		return fmt.Errorf("%w: signer is not a voter", ErrPolicyRejected)
	}
	return nil
}

func (c *Controller) verifyTally(tx *chain.TxTally) error {
	electionTx, err := c.getElection(tx.Election)
	if err != nil {
		return err
	}

	lastBlock, err := c.store.GetBlock(tx.LastBlock)
	if err != nil {
		return fmt.Errorf("%w: last block unknown", ErrTallyVotes)
	}

	// there must be something to count in the referenced block
	voted := false
	for _, blockTx := range lastBlock.Txs {
		vote, ok := blockTx.(*chain.TxVote)
		if ok && vote.Election == tx.Election {
			voted = true
			break
		}
	}
	if !voted {
		return ErrTallyVotes
	}

	if !electionTx.PublicKey().Equal(tx.PublicKey()) {
		return ErrTallySigner
	}
	return nil
}

func (c *Controller) verifyTrusteeTally(tx *chain.TxTrusteeTally) error {
	tallyTxRaw, err := c.store.GetTx(tx.Tally)
	if err != nil {
		return fmt.Errorf("%w: tally", ErrTxMissing)
	}
	tallyTx, ok := tallyTxRaw.(*chain.TxTally)
	if !ok {
		return fmt.Errorf("%w: tally", ErrTxMissing)
	}

	electionTx, err := c.getElection(tallyTx.Election)
	if err != nil {
		return err
	}

	if !electionTx.Election.IsTrustee(tx.PublicKey().KeyID()) {
		return fmt.Errorf("%w: signer is not a trustee", ErrPolicyRejected)
	}

	// one partial decryption per question, none invented
	if len(tx.PartialDecryptions) != len(electionTx.Election.Questions) {
		return fmt.Errorf("%w: wrong partial decryption count", ErrBallots)
	}
	if err := checkQuestionCoverage(electionTx.Election, len(tx.PartialDecryptions), func(i int) ids.ShortID {
		return tx.PartialDecryptions[i].QuestionID
	}); err != nil {
		return err
	}
	for _, ballot := range tx.PartialDecryptions {
		if ballot.Answers == nil {
			return ErrBallots
		}
		if !paillier.VerifyPartial(electionTx.Election.EncPubKey, ballot.Answers) {
			return fmt.Errorf("%w: partial decryption proof failed", ErrBallots)
		}
	}
	return nil
}

// getElection loads a committed TxElection by hash.
func (c *Controller) getElection(hash ids.ID) (*chain.TxElection, error) {
	tx, err := c.store.GetTx(hash)
	if err != nil {
		return nil, fmt.Errorf("%w: election", ErrTxMissing)
	}
	electionTx, ok := tx.(*chain.TxElection)
	if !ok {
		return nil, fmt.Errorf("%w: election", ErrTxMissing)
	}
	return electionTx, nil
}

// checkQuestionCoverage verifies that the n referenced question ids are
// distinct and all belong to the election.
func checkQuestionCoverage(e *voting.Election, n int, questionID func(int) ids.ShortID) error {
	seen := make(map[ids.ShortID]struct{}, n)
	for i := 0; i < n; i++ {
		qid := questionID(i)
		if _, dup := seen[qid]; dup {
			return fmt.Errorf("%w: duplicate question", ErrBallots)
		}
		if _, ok := e.Question(qid); !ok {
			return fmt.Errorf("%w: unknown question", ErrBallots)
		}
		seen[qid] = struct{}{}
	}
	return nil
}
