// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package protocols implements the typed gossip protocols on top of the
// network layer: connection initialization, peer discovery, keep-alive,
// and the flooding of transactions, blocks and block requests.
package protocols

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luxfi/bitvote/utils/timer/mockable"
)

// suppressor remembers recently seen message ids. Flooding protocols use
// it to deliver and re-flood every message exactly once; entries older
// than the validity window are pruned on every check.
type suppressor struct {
	mu       sync.Mutex
	validity time.Duration
	clock    *mockable.Clock
	seen     []seenEntry
}

type seenEntry struct {
	id uuid.UUID
	at time.Time
}

func newSuppressor(validity time.Duration, clock *mockable.Clock) *suppressor {
	return &suppressor{validity: validity, clock: clock}
}

// markSeen registers an id without checking it, for messages this node
// originated.
func (s *suppressor) markSeen(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, seenEntry{id: id, at: s.clock.Time()})
}

// isDuplicate prunes stale entries, then reports whether the id was seen
// within the validity window. A fresh id is registered as seen.
func (s *suppressor) isDuplicate(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Time()
	kept := s.seen[:0]
	duplicate := false
	for _, e := range s.seen {
		if now.Sub(e.at) >= s.validity {
			continue
		}
		if e.id == id {
			duplicate = true
		}
		kept = append(kept, e)
	}
	s.seen = kept

	if !duplicate {
		s.seen = append(s.seen, seenEntry{id: id, at: now})
	}
	return duplicate
}
