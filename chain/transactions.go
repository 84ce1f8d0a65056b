// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/bitvote/utils/wrappers"
	"github.com/luxfi/bitvote/voting"
)

// TxElection announces a new election. Signed by the creator's
// election-role key, which from then on is the only key allowed to tally.
type TxElection struct {
	Signable

	Election *voting.Election
}

func (*TxElection) Type() TxType { return TxTypeElection }

func (tx *TxElection) signable() *Signable { return &tx.Signable }

func (tx *TxElection) packPayload(p *wrappers.Packer) {
	voting.PackElection(p, tx.Election)
}

func (tx *TxElection) unpackPayload(p *wrappers.Packer) {
	tx.Election = voting.UnpackElection(p)
}

// TxVote commits a voter's encrypted ballots for one election.
type TxVote struct {
	Signable

	// Election is the hash of the TxElection voted in
	Election ids.ID
	Ballots  []voting.EncryptedBallot
}

func (*TxVote) Type() TxType { return TxTypeVote }

func (tx *TxVote) signable() *Signable { return &tx.Signable }

func (tx *TxVote) packPayload(p *wrappers.Packer) {
	p.PackID(tx.Election)
	voting.PackEncryptedBallots(p, tx.Ballots)
}

func (tx *TxVote) unpackPayload(p *wrappers.Packer) {
	tx.Election = p.UnpackID()
	tx.Ballots = voting.UnpackEncryptedBallots(p)
}

// TxTally announces a vote count for an election. LastBlock fixes which
// votes are counted; EndElection marks the election as finished.
type TxTally struct {
	Signable

	// Election is the hash of the TxElection being tallied
	Election ids.ID
	// LastBlock is the last block whose votes take part in the count
	LastBlock   ids.ID
	EndElection bool
}

func (*TxTally) Type() TxType { return TxTypeTally }

func (tx *TxTally) signable() *Signable { return &tx.Signable }

func (tx *TxTally) packPayload(p *wrappers.Packer) {
	p.PackID(tx.Election)
	p.PackID(tx.LastBlock)
	p.PackBool(tx.EndElection)
}

func (tx *TxTally) unpackPayload(p *wrappers.Packer) {
	tx.Election = p.UnpackID()
	tx.LastBlock = p.UnpackID()
	tx.EndElection = p.UnpackBool()
}

// TxTrusteeTally commits one trustee's partial decryption of the counted
// votes announced by a TxTally.
type TxTrusteeTally struct {
	Signable

	// Tally is the hash of the TxTally answered
	Tally              ids.ID
	PartialDecryptions []voting.TalliedBallots
}

func (*TxTrusteeTally) Type() TxType { return TxTypeTrusteeTally }

func (tx *TxTrusteeTally) signable() *Signable { return &tx.Signable }

func (tx *TxTrusteeTally) packPayload(p *wrappers.Packer) {
	p.PackID(tx.Tally)
	voting.PackTalliedBallots(p, tx.PartialDecryptions)
}

func (tx *TxTrusteeTally) unpackPayload(p *wrappers.Packer) {
	tx.Tally = p.UnpackID()
	tx.PartialDecryptions = voting.UnpackTalliedBallots(p)
}
