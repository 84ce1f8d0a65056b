// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package protocols

import (
	"time"

	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/luxfi/bitvote/chain"
	"github.com/luxfi/bitvote/crypto/keys"
	"github.com/luxfi/bitvote/network"
	"github.com/luxfi/bitvote/utils/timer/mockable"
)

// Blocks floods mined blocks and answers block requests. Like
// transactions, a locally mined block is delivered through the same code
// path as one from the network, so the controller appends it exactly
// once.
type Blocks struct {
	*suppressor

	net *network.Network
	log log.Logger

	callback func(*chain.Block)
	// requestCallback returns the blocks to send for a request
	requestCallback func(*network.BlockRequest) []*chain.Block
}

func NewBlocks(
	net *network.Network,
	logger log.Logger,
	clock *mockable.Clock,
	duplicateValidity time.Duration,
) *Blocks {
	b := &Blocks{
		suppressor: newSuppressor(duplicateValidity, clock),
		net:        net,
		log:        logger,
	}
	net.SetHandler(network.TypeBlock, b.receivedBlock)
	net.SetHandler(network.TypeBlockRequest, b.receivedBlockRequest)
	return b
}

// SetCallback registers the consumer for received blocks.
func (b *Blocks) SetCallback(callback func(*chain.Block)) {
	b.callback = callback
}

// SetRequestCallback registers the supplier for block requests.
func (b *Blocks) SetRequestCallback(callback func(*network.BlockRequest) []*chain.Block) {
	b.requestCallback = callback
}

// Publish signs a freshly mined block with the mining key and floods it
// with infinite TTL, delivering it locally as well.
func (b *Blocks) Publish(block *chain.Block, key *keys.PrivateKey) error {
	if err := block.Sign(key); err != nil {
		return err
	}
	b.log.Info("publishing block", zap.Stringer("hash", block.Hash()))

	m := network.NewMessage(&network.Block{Block: block})
	m.Header.TTL = network.TTLInfinite
	b.markSeen(m.ID)
	b.net.Flood(m, nil)

	b.distribute(block)
	return nil
}

func (b *Blocks) receivedBlock(conn *network.Conn, m *network.Message) {
	msg, ok := m.Body.(*network.Block)
	if !ok || b.isDuplicate(m.ID) {
		return
	}
	b.distribute(msg.Block)
	b.net.Flood(m, conn)
}

func (b *Blocks) receivedBlockRequest(conn *network.Conn, m *network.Message) {
	msg, ok := m.Body.(*network.BlockRequest)
	if !ok || b.requestCallback == nil {
		return
	}

	blocks := b.requestCallback(msg)
	if len(blocks) == 0 {
		return
	}
	b.log.Info("answering block request",
		zap.String("peer", conn.RemoteAddr()),
		zap.Int("blocks", len(blocks)),
	)
	for _, block := range blocks {
		conn.Write(network.NewMessage(&network.Block{Block: block}))
	}
}

func (b *Blocks) distribute(block *chain.Block) {
	if b.callback != nil {
		b.callback(block)
	}
}
