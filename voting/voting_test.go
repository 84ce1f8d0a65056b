// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package voting

import (
	mrand "math/rand"
	"strings"
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/bitvote/crypto/paillier"
	"github.com/luxfi/bitvote/utils/wrappers"
)

func testElection(t *testing.T, l, threshold int) (*Election, *paillier.PublicKey) {
	t.Helper()
	require := require.New(t)

	pk, _, err := paillier.GenerateKey(mrand.New(mrand.NewSource(31)), 128, l, threshold)
	require.NoError(err)

	q1, err := NewQuestion("first?", [2]string{"NO", "YES"})
	require.NoError(err)
	q2, err := NewQuestion("second?", [2]string{"NO", "YES"})
	require.NoError(err)

	trustees := make([]ids.ShortID, l)
	for i := range trustees {
		trustees[i] = ids.GenerateTestShortID()
	}

	return &Election{
		Name:        "board vote",
		Description: "two questions",
		Questions:   []Question{q1, q2},
		EndingTime:  1700000000000,
		EncPubKey:   pk,
		Voters:      []ids.ShortID{ids.GenerateTestShortID(), ids.GenerateTestShortID()},
		Trustees:    trustees,
	}, pk
}

func TestElectionVerify(t *testing.T) {
	require := require.New(t)

	e, _ := testElection(t, 2, 2)
	require.NoError(e.Verify())

	long := *e
	long.Name = strings.Repeat("x", MaxNameLen+1)
	require.Error(long.Verify())

	noVoters := *e
	noVoters.Voters = nil
	require.ErrorIs(noVoters.Verify(), ErrIncomplete)

	wrongTrustees := *e
	wrongTrustees.Trustees = e.Trustees[:1]
	require.Error(wrongTrustees.Verify())

	noKey := *e
	noKey.EncPubKey = nil
	require.ErrorIs(noKey.Verify(), ErrIncomplete)
}

func TestCheckBallots(t *testing.T) {
	require := require.New(t)
	e, _ := testElection(t, 2, 2)

	q1 := e.Questions[0].ID
	q2 := e.Questions[1].ID

	require.NoError(e.CheckBallots([]Ballot{
		{QuestionID: q1, Answer: 1},
		{QuestionID: q2, Answer: Abstain},
	}))

	// one answer missing
	require.Error(e.CheckBallots([]Ballot{{QuestionID: q1, Answer: 0}}))

	// a question answered twice
	require.Error(e.CheckBallots([]Ballot{
		{QuestionID: q1, Answer: 0},
		{QuestionID: q1, Answer: 1},
	}))

	// an unknown question
	require.Error(e.CheckBallots([]Ballot{
		{QuestionID: q1, Answer: 0},
		{QuestionID: ids.GenerateTestShortID(), Answer: 1},
	}))

	// an out-of-range answer
	require.Error(e.CheckBallots([]Ballot{
		{QuestionID: q1, Answer: 2},
		{QuestionID: q2, Answer: 0},
	}))
}

func TestElectionCodecCanonical(t *testing.T) {
	require := require.New(t)
	e, _ := testElection(t, 2, 2)

	encode := func(e *Election) []byte {
		p := &wrappers.Packer{MaxSize: 1 << 20}
		PackElection(p, e)
		require.NoError(p.Err)
		return p.Bytes
	}
	raw := encode(e)

	// voter and trustee sets encode identically regardless of order
	shuffled := *e
	shuffled.Voters = []ids.ShortID{e.Voters[1], e.Voters[0]}
	shuffled.Trustees = append([]ids.ShortID{}, e.Trustees...)
	shuffled.Trustees[0], shuffled.Trustees[1] = shuffled.Trustees[1], shuffled.Trustees[0]
	require.Equal(raw, encode(&shuffled))

	restored := UnpackElection(&wrappers.Packer{Bytes: raw})
	require.NotNil(restored)
	require.Equal(e.Name, restored.Name)
	require.Equal(e.Description, restored.Description)
	require.Equal(e.Questions, restored.Questions)
	require.Equal(e.EndingTime, restored.EndingTime)
	require.True(e.EncPubKey.Equal(restored.EncPubKey))
	require.NoError(restored.Verify())

	// the nil key is refused, not encoded
	p := &wrappers.Packer{MaxSize: 64}
	PackElection(p, &Election{})
	require.ErrorIs(p.Err, ErrIncomplete)
}

func TestEncryptedBallotOrdering(t *testing.T) {
	require := require.New(t)
	e, pk := testElection(t, 1, 1)
	rng := mrand.New(mrand.NewSource(33))

	var ballots []EncryptedBallot
	for _, q := range e.Questions {
		proof, err := paillier.EncryptBinary(rng, pk, 1)
		require.NoError(err)
		ballots = append(ballots, EncryptedBallot{QuestionID: q.ID, Answer: proof})
	}

	encode := func(in []EncryptedBallot) []byte {
		p := &wrappers.Packer{MaxSize: 1 << 20}
		PackEncryptedBallots(p, in)
		require.NoError(p.Err)
		return p.Bytes
	}
	reversed := []EncryptedBallot{ballots[1], ballots[0]}
	require.Equal(encode(ballots), encode(reversed))

	restored := UnpackEncryptedBallots(&wrappers.Packer{Bytes: encode(ballots)})
	require.Len(restored, 2)
	for _, b := range restored {
		require.True(paillier.VerifyBinary(pk, b.Answer))
	}
}
