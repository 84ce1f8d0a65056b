// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package miner

import (
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
	"sync"

	crand "crypto/rand"

	"github.com/holiman/uint256"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"go.uber.org/zap"

	"github.com/luxfi/bitvote/chain"
	"github.com/luxfi/bitvote/chain/store"
	"github.com/luxfi/bitvote/crypto/keys"
	"github.com/luxfi/bitvote/utils/timer/mockable"
)

const (
	// MinTxsPerBlock is the smallest transaction selection worth mining
	MinTxsPerBlock = 1
	// LeadingZeroBits sets the proof-of-work difficulty
	LeadingZeroBits = 13
	// NoncesPerBatch is how many nonces a worker reserves at once
	NoncesPerBatch = 1000
	// DefaultMiningThreads is the default number of mining workers; New
	// does not read it and takes the count from Config.Threads
	DefaultMiningThreads = 2
)

var (
	// ErrInvalidTx is returned when an admitted transaction fails
	// verification
	ErrInvalidTx = errors.New("transaction failed verification")
	errNoThreads = errors.New("mining is disabled")
)

// Config carries the miner parameters.
type Config struct {
	// Threads is the number of mining workers; 0, negative or more than 4
	// picks the hardware concurrency
	Threads int
}

// Publisher seals a mined block into the network. The blocks protocol
// implements it; publishing delivers the block locally too.
type Publisher interface {
	Publish(*chain.Block, *keys.PrivateKey) error
}

// Manager owns the queue of verified transactions and starts a mining
// round whenever no round runs and the filtered queue is large enough.
type Manager struct {
	log     log.Logger
	store   *store.Store
	pub     Publisher
	verify  func(chain.Tx) error
	clock   *mockable.Clock
	key     *keys.PrivateKey
	metrics *minerMetrics

	threads        int
	noncesPerBatch uint32
	target         *uint256.Int
	// nonceStart picks the random starting nonce of a round; tests pin it
	nonceStart func() uint32

	mu    sync.Mutex
	queue []chain.Tx
	cur   *round
}

// New creates a manager mining with the given mining-role key.
func New(
	cfg Config,
	blockStore *store.Store,
	pub Publisher,
	key *keys.PrivateKey,
	verify func(chain.Tx) error,
	clock *mockable.Clock,
	logger log.Logger,
	registerer metric.Registerer,
) (*Manager, error) {
	if key.Role() != keys.RoleMining {
		return nil, fmt.Errorf("miner needs a mining key, got %s", key.Role())
	}

	threads := cfg.Threads
	if threads <= 0 || threads > 4 {
		threads = runtime.NumCPU()
	}

	metrics, err := newMetrics(registerer)
	if err != nil {
		return nil, err
	}

	target := Target(LeadingZeroBits)
	logger.Info("miner ready",
		zap.String("target", target.Hex()),
		zap.Int("threads", threads),
	)

	return &Manager{
		log:            logger,
		store:          blockStore,
		pub:            pub,
		verify:         verify,
		clock:          clock,
		key:            key,
		metrics:        metrics,
		threads:        threads,
		noncesPerBatch: NoncesPerBatch,
		target:         target,
		nonceStart:     randomNonce,
	}, nil
}

func randomNonce() uint32 {
	var buf [4]byte
	_, _ = crand.Read(buf[:])
	return binary.BigEndian.Uint32(buf[:])
}

// Target returns the proof-of-work target of this miner.
func (m *Manager) Target() *uint256.Int {
	return m.target
}

// AddTransaction verifies a transaction and queues it for mining. A
// verified transaction may start a round immediately.
func (m *Manager) AddTransaction(tx chain.Tx) error {
	if err := m.verify(tx); err != nil {
		m.log.Info("rejecting transaction",
			zap.Stringer("type", tx.Type()),
			zap.Stringer("hash", chain.TxHash(tx)),
			zap.Error(err),
		)
		m.metrics.txsRejected.Inc()
		return fmt.Errorf("%w: %s", ErrInvalidTx, err)
	}

	m.log.Info("queueing transaction",
		zap.Stringer("type", tx.Type()),
		zap.Stringer("hash", chain.TxHash(tx)),
	)

	m.mu.Lock()
	m.queue = append(m.queue, tx)
	m.mu.Unlock()

	m.runIfPossible()
	return nil
}

// returnToFront puts transactions from a torn-down round back at the
// head of the queue, order preserved, without re-verification.
func (m *Manager) returnToFront(txs []chain.Tx) {
	if len(txs) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(append(make([]chain.Tx, 0, len(txs)+len(m.queue)), txs...), m.queue...)
}

// OnNewBlockFromNetwork tells a running round that the chain tip moved.
func (m *Manager) OnNewBlockFromNetwork(b *chain.Block) {
	m.mu.Lock()
	cur := m.cur
	m.mu.Unlock()
	if cur != nil && cur.isRunning() {
		cur.onNewBlockFromNetwork(b)
	}
}

// onRoundFinished is called by a round on its way out; there may be
// queued transactions ready for the next one.
func (m *Manager) onRoundFinished() {
	m.runIfPossible()
}

// runIfPossible starts a round when none is running and the queue,
// after duplicate-vote filtering, is large enough.
func (m *Manager) runIfPossible() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.threads == 0 {
		return errNoThreads
	}
	if m.cur != nil && m.cur.isRunning() {
		return nil
	}

	selection, ok := m.selectTransactions()
	if !ok {
		return nil
	}

	m.log.Info("starting mining round", zap.Int("txs", len(selection)))
	m.cur = newRound(m, selection)
	return nil
}

// selectTransactions filters the queue for one block: a second vote by
// the same voter for the same election waits for a later block, so only
// the earliest such vote in queue order is taken. Selected transactions
// leave the queue.
func (m *Manager) selectTransactions() ([]chain.Tx, bool) {
	var selection []chain.Tx
	taken := make(map[int]struct{})

	for i, tx := range m.queue {
		duplicate := false
		for _, chosen := range selection {
			if isDuplicateVote(tx, chosen) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			selection = append(selection, tx)
			taken[i] = struct{}{}
		}
	}

	if len(selection) < MinTxsPerBlock {
		return nil, false
	}

	rest := m.queue[:0]
	for i, tx := range m.queue {
		if _, ok := taken[i]; !ok {
			rest = append(rest, tx)
		}
	}
	m.queue = rest
	return selection, true
}

// isDuplicateVote reports whether both transactions are votes by the
// same voter in the same election.
func isDuplicateVote(a, b chain.Tx) bool {
	voteA, ok := a.(*chain.TxVote)
	if !ok {
		return false
	}
	voteB, ok := b.(*chain.TxVote)
	if !ok {
		return false
	}
	if voteA.Election != voteB.Election {
		return false
	}
	return voteA.PublicKey().Equal(voteB.PublicKey())
}

// publish seals the block through the blocks protocol.
func (m *Manager) publish(b *chain.Block) error {
	return m.pub.Publish(b, m.key)
}

// QueuedTxs snapshots the queue, oldest first.
func (m *Manager) QueuedTxs() []chain.Tx {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]chain.Tx, len(m.queue))
	copy(out, m.queue)
	return out
}
