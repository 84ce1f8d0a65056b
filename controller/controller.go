// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package controller wires the node together: transactions arriving from
// gossip or the local UI are verified and queued for mining, mined and
// received blocks are validated and appended, and committed transactions
// drive the election state.
package controller

import (
	"sync"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/luxfi/bitvote/chain"
	"github.com/luxfi/bitvote/chain/store"
	"github.com/luxfi/bitvote/election"
	"github.com/luxfi/bitvote/keystore"
	"github.com/luxfi/bitvote/miner"
	"github.com/luxfi/bitvote/network"
	"github.com/luxfi/bitvote/network/protocols"
	"github.com/luxfi/bitvote/utils/timer/mockable"
)

// Controller handles and delegates every incoming event.
type Controller struct {
	log      log.Logger
	clock    *mockable.Clock
	store    *store.Store
	keystore *keystore.Keystore
	registry *election.Registry

	txProto *protocols.Transactions
	miner   *miner.Manager

	// stateMu serializes the election-state handlers; gossip dispatch
	// runs on one goroutine per connection
	stateMu sync.Mutex
}

// New creates a controller and registers it with the gossip protocols.
// The miner is attached afterwards, once it has been built around this
// controller's verification.
func New(
	st *store.Store,
	ks *keystore.Keystore,
	registry *election.Registry,
	txProto *protocols.Transactions,
	blocksProto *protocols.Blocks,
	clock *mockable.Clock,
	logger log.Logger,
) *Controller {
	c := &Controller{
		log:      logger,
		clock:    clock,
		store:    st,
		keystore: ks,
		registry: registry,
		txProto:  txProto,
	}

	for _, txType := range []chain.TxType{
		chain.TxTypeElection,
		chain.TxTypeVote,
		chain.TxTypeTally,
		chain.TxTypeTrusteeTally,
	} {
		txProto.SetCallback(txType, c.ReceiveTransaction)
	}
	blocksProto.SetCallback(c.ReceiveBlock)
	blocksProto.SetRequestCallback(c.ReceiveBlockRequest)

	return c
}

// SetMiner attaches the mining manager.
func (c *Controller) SetMiner(m *miner.Manager) {
	c.miner = m
}

// ReceiveTransaction forwards an unseen transaction to the miner, which
// verifies it on admission.
func (c *Controller) ReceiveTransaction(tx chain.Tx) {
	hash := chain.TxHash(tx)
	if c.store.ContainsTx(hash) {
		return
	}
	c.log.Info("received transaction",
		zap.Stringer("type", tx.Type()),
		zap.Stringer("hash", hash),
	)
	if err := c.miner.AddTransaction(tx); err != nil {
		c.log.Info("transaction not admitted", zap.Error(err))
	}
}

// ReceiveBlock validates a block from the network (or the local miner via
// its publish loopback) and appends it on success.
func (c *Controller) ReceiveBlock(b *chain.Block) {
	hash := b.Hash()
	c.log.Info("received block", zap.Stringer("hash", hash))

	// header checks against the local tip
	latestHash := c.store.LatestBlockHash()
	var latestTime int64
	if latest, err := c.store.GetLatestBlock(); err == nil {
		latestTime = latest.Header.Time
	} else if err != store.ErrEmptyChain {
		c.log.Warn("cannot read latest block", zap.Error(err))
		return
	}

	switch {
	case b.Header.PrevBlock != latestHash:
		c.log.Info("block does not extend local chain, rejecting",
			zap.Stringer("prev", b.Header.PrevBlock),
			zap.Stringer("latest", latestHash),
		)
		return
	case b.Header.Time > c.clock.UnixMilli() || b.Header.Time < latestTime:
		c.log.Info("block has implausible creation time, rejecting",
			zap.Int64("time", b.Header.Time),
		)
		return
	case !miner.MeetsTarget(hash, c.miner.Target()):
		c.log.Info("block hash misses the target, rejecting", zap.Stringer("hash", hash))
		return
	case c.store.ContainsBlock(hash):
		c.log.Info("block already stored, rejecting", zap.Stringer("hash", hash))
		return
	}

	if err := b.VerifySignature(); err != nil {
		c.log.Info("block signature invalid, rejecting", zap.Error(err))
		return
	}

	// every transaction must be fresh and valid
	for _, tx := range b.Txs {
		txHash := chain.TxHash(tx)
		if c.store.ContainsTx(txHash) {
			c.log.Info("block repeats a committed transaction, rejecting",
				zap.Stringer("tx", txHash),
			)
			return
		}
		if err := c.VerifyTx(tx); err != nil {
			c.log.Info("block carries an invalid transaction, rejecting",
				zap.Stringer("tx", txHash),
				zap.Error(err),
			)
			return
		}
	}

	if err := c.store.AddBlock(b); err != nil {
		c.log.Warn("could not append block", zap.Error(err))
		return
	}
	c.log.Info("accepted block",
		zap.Stringer("hash", hash),
		zap.Int("txs", len(b.Txs)),
	)

	// the miner may be grinding on transactions this block took
	c.miner.OnNewBlockFromNetwork(b)

	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	for _, tx := range b.Txs {
		c.processTx(tx)
	}
}

// ReceiveBlockRequest returns the blocks to send for a request: the
// chain after the requested hash, or the single requested block.
func (c *Controller) ReceiveBlockRequest(req *network.BlockRequest) []*chain.Block {
	if !req.Following {
		b, err := c.store.GetBlock(req.Block)
		if err != nil {
			return nil
		}
		return []*chain.Block{b}
	}

	genesis := c.store.GenesisBlockHash()
	if req.Block != genesis && !c.store.ContainsBlock(req.Block) {
		return nil
	}
	blocks, err := c.store.GetAllBlocks(req.Block, c.store.LatestBlockHash())
	if err != nil {
		return nil
	}
	if req.Block != genesis && len(blocks) > 0 {
		// the requester already has the anchor block
		blocks = blocks[1:]
	}
	return blocks
}

// processTx updates the election state for one committed transaction.
func (c *Controller) processTx(tx chain.Tx) {
	c.log.Debug("processing transaction",
		zap.Stringer("type", tx.Type()),
		zap.Stringer("hash", chain.TxHash(tx)),
	)
	switch tx := tx.(type) {
	case *chain.TxElection:
		c.processTxElection(tx)
	case *chain.TxVote:
		c.processTxVote(tx)
	case *chain.TxTally:
		c.processTxTally(tx)
	case *chain.TxTrusteeTally:
		c.processTxTrusteeTally(tx)
	}
}

func (c *Controller) processTxElection(tx *chain.TxElection) {
	em := election.NewManager(tx)
	if !em.AmIInvolved(c.keystore) {
		return
	}
	if err := c.registry.Save(em); err != nil {
		c.log.Warn("could not save election state", zap.Error(err))
	}
}

func (c *Controller) processTxVote(tx *chain.TxVote) {
	em, ok := c.registry.Get(tx.Election)
	if !ok {
		return
	}
	c.log.Info("registering vote for tracked election",
		zap.Stringer("election", tx.Election),
	)

	voter := tx.PublicKey().KeyID()
	em.VotesRegistered[voter] = struct{}{}
	if c.keystore.Contains(voter) {
		em.MyVotes[voter] = chain.TxHash(tx)
	}
	if err := c.registry.Save(em); err != nil {
		c.log.Warn("could not save election state", zap.Error(err))
	}
}

func (c *Controller) processTxTally(tx *chain.TxTally) {
	em, ok := c.registry.Get(tx.Election)
	if !ok {
		return
	}
	// once ended, later tallies are ignored
	if em.Ended {
		return
	}
	c.log.Info("registering tally", zap.Stringer("election", tx.Election))

	tallyHash := chain.TxHash(tx)
	em.Ended = tx.EndElection
	if _, ok := em.Tallies[tallyHash]; !ok {
		em.Tallies[tallyHash] = make(map[ids.ID]struct{})
	}
	if err := c.registry.Save(em); err != nil {
		c.log.Warn("could not save election state", zap.Error(err))
	}

	if !em.AmITrustee(c.keystore) {
		return
	}
	c.publishTrusteeTallies(em, tx)
}

// publishTrusteeTallies answers a tally with one trustee tally per
// Paillier share this node holds for the election.
func (c *Controller) publishTrusteeTallies(em *election.Manager, tx *chain.TxTally) {
	shares, err := c.keystore.SharesFor(tx.Election)
	if err != nil {
		c.log.Warn("could not load paillier shares", zap.Error(err))
		return
	}
	c.log.Info("creating trustee tallies", zap.Int("shares", len(shares)))

	for _, share := range shares {
		signKey, ok := c.keystore.Get(share.SignKey)
		if !ok || !em.IsTrusteeEligible(signKey.PublicKey()) {
			c.log.Warn("found paillier share without an eligible signing key")
			continue
		}
		trusteeTally, err := em.CreateTrusteeTally(nil, c.store, tx, share.Share)
		if err != nil {
			c.log.Warn("could not create trustee tally", zap.Error(err))
			continue
		}
		if err := c.txProto.Publish(trusteeTally, signKey); err != nil {
			c.log.Warn("could not publish trustee tally", zap.Error(err))
		}
	}
}

func (c *Controller) processTxTrusteeTally(tx *chain.TxTrusteeTally) {
	tallyTxRaw, err := c.store.GetTx(tx.Tally)
	if err != nil {
		return
	}
	tallyTx, ok := tallyTxRaw.(*chain.TxTally)
	if !ok {
		return
	}
	tallyHash := chain.TxHash(tallyTx)

	em, ok := c.registry.Get(tallyTx.Election)
	if !ok {
		return
	}
	c.log.Info("registering trustee tally", zap.Stringer("tally", tallyHash))

	if _, ok := em.Tallies[tallyHash]; !ok {
		em.Tallies[tallyHash] = make(map[ids.ID]struct{})
	}
	em.Tallies[tallyHash][chain.TxHash(tx)] = struct{}{}

	// decrypt once enough trustees answered
	threshold := em.Tx.Election.EncPubKey.Threshold
	if _, done := em.Results[tallyHash]; !done && len(em.Tallies[tallyHash]) >= threshold {
		c.log.Info("trustee tallies reached threshold, tallying",
			zap.Stringer("tally", tallyHash),
		)
		if err := em.Tally(c.store, tallyHash); err != nil {
			c.log.Warn("tallying failed", zap.Error(err))
		}
	}

	if err := c.registry.Save(em); err != nil {
		c.log.Warn("could not save election state", zap.Error(err))
	}
}
