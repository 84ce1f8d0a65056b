// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package controller

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/luxfi/ids"
	"go.uber.org/zap"

	"github.com/luxfi/bitvote/chain"
	"github.com/luxfi/bitvote/crypto/keys"
	"github.com/luxfi/bitvote/crypto/paillier"
	"github.com/luxfi/bitvote/election"
	"github.com/luxfi/bitvote/keystore"
	"github.com/luxfi/bitvote/voting"
)

// The user-initiated flows. The interface layer calls these; everything
// they publish loops back through the gossip path like any remote event.

var (
	errShareCount   = errors.New("share count does not match the trustee count")
	errNotMyTally   = errors.New("tally signing key is not in the keystore")
	errShareOrphan  = errors.New("no tracked election for this share")
	errShareNoKey   = errors.New("no signing key for this share")
	errShareBadRole = errors.New("share's signing key is not an eligible trustee")
)

// OnElectionCreated turns an election into a signed transaction, exports
// one Paillier share blob per trustee into exportDir, and floods the
// transaction.
func (c *Controller) OnElectionCreated(
	e *voting.Election,
	signKey *keys.PrivateKey,
	exportDir string,
	shares []*paillier.PartialKey,
) error {
	tx := &chain.TxElection{Election: e}
	// the verification key is part of the hash, so fix it before export
	tx.SetPublicKey(signKey.PublicKey())

	if len(shares) != len(e.Trustees) {
		return errShareCount
	}

	hash := chain.TxHash(tx)
	c.log.Info("exporting paillier shares",
		zap.Stringer("election", hash),
		zap.Int("trustees", len(e.Trustees)),
	)
	for i, trustee := range e.Trustees {
		path := filepath.Join(exportDir, fmt.Sprintf("trustee_%x", trustee[:4]))
		err := keystore.WriteShareFile(path, keystore.ElectionShare{
			Election: hash,
			SignKey:  trustee,
			Share:    shares[i],
		})
		if err != nil {
			return fmt.Errorf("exporting share for trustee %s: %w", trustee, err)
		}
	}

	return c.txProto.Publish(tx, signKey)
}

// OnVote encrypts the ballots and floods the vote.
func (c *Controller) OnVote(em *election.Manager, ballots []voting.Ballot, signKey *keys.PrivateKey) error {
	tx, err := em.CreateVote(nil, ballots)
	if err != nil {
		return err
	}
	return c.txProto.Publish(tx, signKey)
}

// OnTally announces a vote count up to lastBlock, optionally ending the
// election. Only the election creator's key can sign it.
func (c *Controller) OnTally(em *election.Manager, ending bool, lastBlock ids.ID) error {
	tx := &chain.TxTally{
		Election:    em.Hash(),
		LastBlock:   lastBlock,
		EndElection: ending,
	}

	signKey, ok := c.keystore.Get(em.Tx.PublicKey().KeyID())
	if !ok {
		return errNotMyTally
	}
	return c.txProto.Publish(tx, signKey)
}

// OnNewPaillierShare imports a trustee's share and answers every pending
// tally this trustee has not responded to yet.
func (c *Controller) OnNewPaillierShare(share keystore.ElectionShare) error {
	em, ok := c.registry.Get(share.Election)
	if !ok {
		return errShareOrphan
	}
	signKey, ok := c.keystore.Get(share.SignKey)
	if !ok {
		return errShareNoKey
	}
	if !em.IsTrusteeEligible(signKey.PublicKey()) {
		return errShareBadRole
	}
	if err := c.keystore.AddShare(share); err != nil {
		return err
	}

	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	myKey := signKey.PublicKey()
	for tallyHash, trusteeTallies := range em.Tallies {
		answered := false
		for ttHash := range trusteeTallies {
			tx, err := c.store.GetTx(ttHash)
			if err != nil {
				continue
			}
			if tx.PublicKey().Equal(myKey) {
				answered = true
				break
			}
		}
		if answered {
			continue
		}

		tallyTxRaw, err := c.store.GetTx(tallyHash)
		if err != nil {
			continue
		}
		tallyTx, ok := tallyTxRaw.(*chain.TxTally)
		if !ok {
			continue
		}

		trusteeTally, err := em.CreateTrusteeTally(nil, c.store, tallyTx, share.Share)
		if err != nil {
			c.log.Warn("could not create trustee tally", zap.Error(err))
			continue
		}
		if err := c.txProto.Publish(trusteeTally, signKey); err != nil {
			c.log.Warn("could not publish trustee tally", zap.Error(err))
		}
	}
	return nil
}
