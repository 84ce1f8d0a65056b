// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package miner

import (
	"sync"
	"sync/atomic"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
	"go.uber.org/zap"

	"github.com/luxfi/bitvote/chain"
)

// round is one mining attempt over a fixed transaction selection.
//
// Starting from a random nonce, workers count upward until the nonce
// space wraps around to the start. Every worker reserves a batch of
// nonces at a time from a shared cursor to keep mutex traffic low.
type round struct {
	mgr *Manager

	txs       []chain.Tx
	prevBlock ids.ID
	timeMs    int64
	target    *uint256.Int

	mu          sync.Mutex
	found       bool
	threadsDone int
	startNonce  uint32
	cursor      uint32
	workers     int

	running     atomic.Bool
	interrupted atomic.Bool
}

func newRound(mgr *Manager, txs []chain.Tx) *round {
	// fix the canonical transaction order once; the workers share the
	// slice read-only
	chain.SortTxs(txs)

	start := mgr.nonceStart()
	r := &round{
		mgr:        mgr,
		txs:        txs,
		prevBlock:  mgr.store.LatestBlockHash(),
		timeMs:     mgr.clock.UnixMilli(),
		target:     mgr.target,
		startNonce: start,
		cursor:     start + 1,
		workers:    mgr.threads,
	}
	r.running.Store(true)

	for i := 0; i < r.workers; i++ {
		go r.mine()
	}
	return r
}

func (r *round) isRunning() bool {
	return r.running.Load()
}

// consumeNonces reserves the next batch. lower == upper signals that the
// nonce space is exhausted.
func (r *round) consumeNonces(batch uint32) (lower, upper uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lower = r.cursor
	// detect the wrap back onto the starting nonce
	if r.startNonce >= r.cursor && r.startNonce < r.cursor+batch {
		r.cursor = r.startNonce
	} else {
		r.cursor += batch
	}
	return lower, r.cursor
}

// mine is the worker loop. Each worker grinds its own block copy, so
// nonce writes never race.
func (r *round) mine() {
	block := &chain.Block{
		Header: chain.BlockHeader{
			Version:   chain.Version,
			PrevBlock: r.prevBlock,
			Time:      r.timeMs,
		},
		Txs: r.txs,
	}
	block.SetPublicKey(r.mgr.key.PublicKey())

	for !r.interrupted.Load() {
		lower, upper := r.consumeNonces(r.mgr.noncesPerBatch)
		if lower == upper {
			r.abort()
			return
		}

		for nonce := lower; nonce != upper; nonce++ {
			if r.interrupted.Load() {
				return
			}
			block.Header.Nonce = nonce
			hash := block.Hash()
			if MeetsTarget(hash, r.target) {
				if r.onBlockFound(block) {
					return
				}
			}
		}
	}
}

// onBlockFound publishes the block unless another worker or an external
// block beat it. Returns true when this worker is done.
func (r *round) onBlockFound(block *chain.Block) bool {
	r.mu.Lock()
	if r.found || r.interrupted.Load() {
		r.mu.Unlock()
		return true
	}
	r.found = true
	r.mu.Unlock()

	r.mgr.log.Info("mined block",
		zap.Stringer("hash", block.Hash()),
		zap.Uint32("nonce", block.Header.Nonce),
		zap.Int("txs", len(block.Txs)),
	)
	r.mgr.metrics.blocksMined.Inc()

	// publishing loops the block back into the controller, which appends
	// it; the mutex must not be held across it
	if err := r.mgr.publish(block); err != nil {
		r.mgr.log.Error("failed to publish mined block", zap.Error(err))
	}

	r.tearDown()
	r.mgr.onRoundFinished()
	return true
}

// onNewBlockFromNetwork preempts the round: the transactions the new
// block did not take are returned to the front of the queue and the
// round shuts down.
func (r *round) onNewBlockFromNetwork(b *chain.Block) {
	r.mu.Lock()
	if r.found || r.interrupted.Load() {
		r.mu.Unlock()
		return
	}
	r.interrupted.Store(true)
	r.mu.Unlock()

	r.mgr.log.Info("mining preempted by network block", zap.Stringer("hash", b.Hash()))

	var remaining []chain.Tx
	for _, tx := range r.txs {
		if !b.Contains(chain.TxHash(tx)) {
			remaining = append(remaining, tx)
		}
	}
	r.mgr.returnToFront(remaining)

	r.tearDown()
	r.mgr.onRoundFinished()
}

// abort is called by a worker that ran out of nonces. The last worker
// returns the transactions and finishes the round.
func (r *round) abort() {
	r.mu.Lock()
	r.threadsDone++
	done := r.threadsDone >= r.workers
	r.mu.Unlock()

	if !done {
		return
	}
	r.mgr.log.Warn("nonce space exhausted, requeueing transactions")
	r.mgr.returnToFront(r.txs)
	r.tearDown()
	r.mgr.onRoundFinished()
}

func (r *round) tearDown() {
	r.interrupted.Store(true)
	r.running.Store(false)
}
