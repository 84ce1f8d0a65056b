// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package voting

import (
	"bytes"
	"sort"

	"github.com/luxfi/ids"

	"github.com/luxfi/bitvote/crypto/paillier"
	"github.com/luxfi/bitvote/utils/wrappers"
)

// The canonical encoding writes compound fields in declaration order and
// sets in ascending order of their natural comparator, so equal values
// always serialize to equal bytes.

// PackQuestion writes a question.
func PackQuestion(p *wrappers.Packer, q Question) {
	p.PackShortID(q.ID)
	p.PackStr(q.Prompt)
	for _, a := range q.Answers {
		p.PackStr(a)
	}
}

// UnpackQuestion reads a question.
func UnpackQuestion(p *wrappers.Packer) Question {
	q := Question{
		ID:     p.UnpackShortID(),
		Prompt: p.UnpackStr(),
	}
	for i := range q.Answers {
		q.Answers[i] = p.UnpackLimitedStr(wrappers.MaxStringLen)
	}
	return q
}

// PackBallot writes a cleartext ballot.
func PackBallot(p *wrappers.Packer, b Ballot) {
	p.PackShortID(b.QuestionID)
	p.PackInt(uint32(b.Answer))
}

// UnpackBallot reads a cleartext ballot.
func UnpackBallot(p *wrappers.Packer) Ballot {
	return Ballot{
		QuestionID: p.UnpackShortID(),
		Answer:     int32(p.UnpackInt()),
	}
}

// PackEncryptedBallots writes the set in ascending order.
func PackEncryptedBallots(p *wrappers.Packer, ballots []EncryptedBallot) {
	sorted := make([]EncryptedBallot, len(ballots))
	copy(sorted, ballots)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Compare(sorted[j]) < 0
	})

	p.PackInt(uint32(len(sorted)))
	for _, b := range sorted {
		p.PackShortID(b.QuestionID)
		paillier.PackCiphertextProof(p, b.Answer)
	}
}

// UnpackEncryptedBallots reads a set of encrypted ballots.
func UnpackEncryptedBallots(p *wrappers.Packer) []EncryptedBallot {
	count := int(p.UnpackInt())
	if p.Errored() || count > maxSetLen {
		return nil
	}
	ballots := make([]EncryptedBallot, 0, count)
	for i := 0; i < count; i++ {
		ballots = append(ballots, EncryptedBallot{
			QuestionID: p.UnpackShortID(),
			Answer:     paillier.UnpackCiphertextProof(p),
		})
	}
	if p.Errored() {
		return nil
	}
	return ballots
}

// PackTalliedBallots writes the set in ascending order.
func PackTalliedBallots(p *wrappers.Packer, ballots []TalliedBallots) {
	sorted := make([]TalliedBallots, len(ballots))
	copy(sorted, ballots)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Compare(sorted[j]) < 0
	})

	p.PackInt(uint32(len(sorted)))
	for _, b := range sorted {
		p.PackShortID(b.QuestionID)
		paillier.PackPartialDecryption(p, b.Answers)
	}
}

// UnpackTalliedBallots reads a set of tallied ballots.
func UnpackTalliedBallots(p *wrappers.Packer) []TalliedBallots {
	count := int(p.UnpackInt())
	if p.Errored() || count > maxSetLen {
		return nil
	}
	ballots := make([]TalliedBallots, 0, count)
	for i := 0; i < count; i++ {
		ballots = append(ballots, TalliedBallots{
			QuestionID: p.UnpackShortID(),
			Answers:    paillier.UnpackPartialDecryption(p),
		})
	}
	if p.Errored() {
		return nil
	}
	return ballots
}

// PackElection writes an election.
func PackElection(p *wrappers.Packer, e *Election) {
	if e == nil || e.EncPubKey == nil {
		p.Add(ErrIncomplete)
		return
	}
	p.PackStr(e.Name)
	p.PackStr(e.Description)
	p.PackInt(uint32(len(e.Questions)))
	for _, q := range e.Questions {
		PackQuestion(p, q)
	}
	p.PackLong(uint64(e.EndingTime))
	paillier.PackPublicKey(p, e.EncPubKey)
	packShortIDSet(p, e.Voters)
	packShortIDSet(p, e.Trustees)
}

// UnpackElection reads an election.
func UnpackElection(p *wrappers.Packer) *Election {
	e := &Election{
		Name:        p.UnpackLimitedStr(wrappers.MaxStringLen),
		Description: p.UnpackLimitedStr(wrappers.MaxStringLen),
	}
	count := int(p.UnpackInt())
	if p.Errored() || count > maxSetLen {
		return nil
	}
	for i := 0; i < count; i++ {
		e.Questions = append(e.Questions, UnpackQuestion(p))
	}
	e.EndingTime = int64(p.UnpackLong())
	e.EncPubKey = paillier.UnpackPublicKey(p)
	e.Voters = unpackShortIDSet(p)
	e.Trustees = unpackShortIDSet(p)
	if p.Errored() {
		return nil
	}
	return e
}

// maxSetLen bounds every unpacked collection so hostile encodings cannot
// force huge allocations.
const maxSetLen = 1 << 16

func packShortIDSet(p *wrappers.Packer, set []ids.ShortID) {
	sorted := make([]ids.ShortID, len(set))
	copy(sorted, set)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})

	p.PackInt(uint32(len(sorted)))
	for _, id := range sorted {
		p.PackShortID(id)
	}
}

func unpackShortIDSet(p *wrappers.Packer) []ids.ShortID {
	count := int(p.UnpackInt())
	if p.Errored() || count > maxSetLen {
		return nil
	}
	set := make([]ids.ShortID, 0, count)
	for i := 0; i < count; i++ {
		set = append(set, p.UnpackShortID())
	}
	return set
}
