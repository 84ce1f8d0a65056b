// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package voting defines the election domain objects carried inside
// transactions: questions, ballots in their cleartext, encrypted and
// tallied forms, and the election itself.
package voting

import (
	"bytes"
	"errors"
	"fmt"

	crand "crypto/rand"

	"github.com/luxfi/ids"

	"github.com/luxfi/bitvote/crypto/paillier"
)

const (
	// MaxNameLen bounds the election name
	MaxNameLen = 25
	// MaxDescriptionLen bounds the election description
	MaxDescriptionLen = 255
	// AnswersPerQuestion is fixed: every question is binary
	AnswersPerQuestion = 2

	// PaillierKeyBits is the modulus length elections are created with
	PaillierKeyBits = 1024

	// Abstain is the ballot answer for an abstention
	Abstain = -1
)

var (
	ErrIncomplete       = errors.New("election attributes are missing or wrong")
	ErrAnswerCount      = errors.New("exactly two answers must be provided")
	errNameTooLong      = fmt.Errorf("election name exceeds %d characters", MaxNameLen)
	errDescTooLong      = fmt.Errorf("election description exceeds %d characters", MaxDescriptionLen)
	errTrusteeCount     = errors.New("trustee count does not match the number of decryption servers")
	errBadAnswer        = errors.New("ballot answer must be -1, 0 or 1")
	errUnknownQuestion  = errors.New("ballot references an unknown question")
	errDuplicateAnswers = errors.New("question answered more than once")
)

// Question is a binary question of an election.
type Question struct {
	// ID is random, so questions are unique across elections
	ID      ids.ShortID
	Prompt  string
	Answers [AnswersPerQuestion]string
}

// NewQuestion creates a question with a random 160-bit id.
func NewQuestion(prompt string, answers [AnswersPerQuestion]string) (Question, error) {
	q := Question{Prompt: prompt, Answers: answers}
	if _, err := crand.Read(q.ID[:]); err != nil {
		return Question{}, err
	}
	return q, nil
}

// Ballot is a cleartext answer to one question: the answer index, or
// Abstain.
type Ballot struct {
	QuestionID ids.ShortID
	Answer     int32
}

// Verify checks the answer is in the allowed range.
func (b Ballot) Verify() error {
	if b.Answer < Abstain || b.Answer >= AnswersPerQuestion {
		return errBadAnswer
	}
	return nil
}

// Compare orders ballots by question id, then answer.
func (b Ballot) Compare(other Ballot) int {
	if c := bytes.Compare(b.QuestionID[:], other.QuestionID[:]); c != 0 {
		return c
	}
	switch {
	case b.Answer < other.Answer:
		return -1
	case b.Answer > other.Answer:
		return 1
	default:
		return 0
	}
}

// EncryptedBallot is the encrypted answer to one question together with
// the proof that the plaintext is 0 or 1.
type EncryptedBallot struct {
	QuestionID ids.ShortID
	Answer     *paillier.CiphertextProof
}

// Compare orders encrypted ballots by question id, then ciphertext fields.
func (b EncryptedBallot) Compare(other EncryptedBallot) int {
	if c := bytes.Compare(b.QuestionID[:], other.QuestionID[:]); c != 0 {
		return c
	}
	return b.Answer.Compare(other.Answer)
}

// TalliedBallots is one trustee's partial decryption of the homomorphic
// sum of all counted ballots for one question.
type TalliedBallots struct {
	QuestionID ids.ShortID
	Answers    *paillier.PartialDecryption
}

// Compare orders tallied ballots by question id, then partial-decryption
// fields.
func (b TalliedBallots) Compare(other TalliedBallots) int {
	if c := bytes.Compare(b.QuestionID[:], other.QuestionID[:]); c != 0 {
		return c
	}
	return b.Answers.Compare(other.Answers)
}

// Election describes one election: what is asked, who may vote, who
// guards the decryption key, and until when votes are expected.
type Election struct {
	Name        string
	Description string
	Questions   []Question
	// EndingTime is the advertised end of the voting period in
	// milliseconds since the unix epoch. It is advisory; tallies define
	// what is counted.
	EndingTime int64
	EncPubKey  *paillier.PublicKey
	// Voters and Trustees hold key ids; the encoding writes them in
	// ascending order, so decoded elections have them sorted
	Voters   []ids.ShortID
	Trustees []ids.ShortID
}

// Verify checks the structural invariants: bounded strings, at least one
// question, voter and trustee, exactly two answers per question, a
// threshold key matching the trustee count.
func (e *Election) Verify() error {
	switch {
	case e == nil:
		return ErrIncomplete
	case len(e.Name) > MaxNameLen:
		return errNameTooLong
	case len(e.Description) > MaxDescriptionLen:
		return errDescTooLong
	case e.EncPubKey == nil, len(e.Questions) == 0, len(e.Voters) == 0, len(e.Trustees) == 0:
		return ErrIncomplete
	}
	for _, q := range e.Questions {
		for _, a := range q.Answers {
			if a == "" {
				return ErrAnswerCount
			}
		}
	}
	if len(e.Trustees) != e.EncPubKey.DecryptServers {
		return errTrusteeCount
	}
	if e.EncPubKey.Threshold > e.EncPubKey.DecryptServers {
		return ErrIncomplete
	}
	return nil
}

// Question returns the question with the given id.
func (e *Election) Question(id ids.ShortID) (Question, bool) {
	for _, q := range e.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// IsVoter reports whether the key id is in the voter set.
func (e *Election) IsVoter(keyID ids.ShortID) bool {
	return containsShortID(e.Voters, keyID)
}

// IsTrustee reports whether the key id is in the trustee set.
func (e *Election) IsTrustee(keyID ids.ShortID) bool {
	return containsShortID(e.Trustees, keyID)
}

// CheckBallots verifies that the given cleartext ballots answer every
// question of this election exactly once.
func (e *Election) CheckBallots(ballots []Ballot) error {
	if len(ballots) != len(e.Questions) {
		return errUnknownQuestion
	}
	seen := make(map[ids.ShortID]struct{}, len(ballots))
	for _, b := range ballots {
		if err := b.Verify(); err != nil {
			return err
		}
		if _, ok := seen[b.QuestionID]; ok {
			return errDuplicateAnswers
		}
		if _, ok := e.Question(b.QuestionID); !ok {
			return errUnknownQuestion
		}
		seen[b.QuestionID] = struct{}{}
	}
	return nil
}

func containsShortID(set []ids.ShortID, id ids.ShortID) bool {
	for _, cur := range set {
		if cur == id {
			return true
		}
	}
	return false
}
