// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package election

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/luxfi/bitvote/chain"
	"github.com/luxfi/bitvote/chain/store"
	"github.com/luxfi/bitvote/utils/wrappers"
	"github.com/luxfi/bitvote/voting"
)

var registryPrefix = []byte("elections")

// Registry persists the managers of the elections this node is involved
// in. The election transaction itself is never stored here; it is
// restored from the chain on load.
type Registry struct {
	log log.Logger
	db  database.Database
	st  *store.Store

	mu       sync.Mutex
	managers map[ids.ID]*Manager
}

// NewRegistry opens the registry over the node database.
func NewRegistry(db database.Database, st *store.Store, logger log.Logger) *Registry {
	return &Registry{
		log:      logger,
		db:       prefixdb.New(registryPrefix, db),
		st:       st,
		managers: make(map[ids.ID]*Manager),
	}
}

// Get returns the manager for an election hash, restoring it from the
// database and the chain if needed.
func (r *Registry) Get(election ids.ID) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.managers[election]; ok {
		return m, true
	}

	raw, err := r.db.Get(election[:])
	if err != nil {
		return nil, false
	}
	tx, err := r.st.GetTx(election)
	if err != nil {
		r.log.Warn("registry entry without chain transaction",
			zap.Stringer("election", election),
			zap.Error(err),
		)
		return nil, false
	}
	electionTx, ok := tx.(*chain.TxElection)
	if !ok {
		return nil, false
	}

	m, err := unpackManagerState(electionTx, raw)
	if err != nil {
		r.log.Warn("corrupt election state",
			zap.Stringer("election", election),
			zap.Error(err),
		)
		return nil, false
	}
	r.managers[election] = m
	return m, true
}

// Save persists a manager's state.
func (r *Registry) Save(m *Manager) error {
	hash := m.Hash()

	r.mu.Lock()
	r.managers[hash] = m
	r.mu.Unlock()

	return r.db.Put(hash[:], packManagerState(m))
}

// All returns every known manager.
func (r *Registry) All() []*Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Manager, 0, len(r.managers))
	for _, m := range r.managers {
		out = append(out, m)
	}
	return out
}

func packManagerState(m *Manager) []byte {
	p := &wrappers.Packer{MaxSize: 1 << 24}
	p.PackBool(m.Ended)

	voters := make([]ids.ShortID, 0, len(m.VotesRegistered))
	for id := range m.VotesRegistered {
		voters = append(voters, id)
	}
	sortShortIDs(voters)
	p.PackInt(uint32(len(voters)))
	for _, id := range voters {
		p.PackShortID(id)
	}

	myVoters := make([]ids.ShortID, 0, len(m.MyVotes))
	for id := range m.MyVotes {
		myVoters = append(myVoters, id)
	}
	sortShortIDs(myVoters)
	p.PackInt(uint32(len(myVoters)))
	for _, id := range myVoters {
		p.PackShortID(id)
		p.PackID(m.MyVotes[id])
	}

	tallies := sortedIDKeys(m.Tallies)
	p.PackInt(uint32(len(tallies)))
	for _, tallyHash := range tallies {
		p.PackID(tallyHash)
		trustees := make([]ids.ID, 0, len(m.Tallies[tallyHash]))
		for id := range m.Tallies[tallyHash] {
			trustees = append(trustees, id)
		}
		sortIDs(trustees)
		p.PackInt(uint32(len(trustees)))
		for _, id := range trustees {
			p.PackID(id)
		}
	}

	results := sortedIDKeys(m.Results)
	p.PackInt(uint32(len(results)))
	for _, tallyHash := range results {
		p.PackID(tallyHash)
		ballots := m.Results[tallyHash]
		p.PackInt(uint32(len(ballots)))
		for _, b := range ballots {
			voting.PackBallot(p, b)
		}
	}

	return p.Bytes
}

func unpackManagerState(tx *chain.TxElection, raw []byte) (*Manager, error) {
	m := NewManager(tx)
	p := &wrappers.Packer{Bytes: raw}

	m.Ended = p.UnpackBool()

	for i, n := 0, int(p.UnpackInt()); i < n && !p.Errored(); i++ {
		m.VotesRegistered[p.UnpackShortID()] = struct{}{}
	}
	for i, n := 0, int(p.UnpackInt()); i < n && !p.Errored(); i++ {
		id := p.UnpackShortID()
		m.MyVotes[id] = p.UnpackID()
	}
	for i, n := 0, int(p.UnpackInt()); i < n && !p.Errored(); i++ {
		tallyHash := p.UnpackID()
		set := make(map[ids.ID]struct{})
		for j, k := 0, int(p.UnpackInt()); j < k && !p.Errored(); j++ {
			set[p.UnpackID()] = struct{}{}
		}
		m.Tallies[tallyHash] = set
	}
	for i, n := 0, int(p.UnpackInt()); i < n && !p.Errored(); i++ {
		tallyHash := p.UnpackID()
		var ballots []voting.Ballot
		for j, k := 0, int(p.UnpackInt()); j < k && !p.Errored(); j++ {
			ballots = append(ballots, voting.UnpackBallot(p))
		}
		m.Results[tallyHash] = ballots
	}

	if p.Errored() {
		return nil, fmt.Errorf("unpacking election state: %w", p.Err)
	}
	return m, nil
}

func sortShortIDs(s []ids.ShortID) {
	sort.Slice(s, func(i, j int) bool {
		return bytes.Compare(s[i][:], s[j][:]) < 0
	})
}

func sortIDs(s []ids.ID) {
	sort.Slice(s, func(i, j int) bool {
		return bytes.Compare(s[i][:], s[j][:]) < 0
	})
}

func sortedIDKeys[V any](m map[ids.ID]V) []ids.ID {
	out := make([]ids.ID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}
