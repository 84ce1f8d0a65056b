// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package protocols

import (
	"sync"
	"time"

	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/luxfi/bitvote/chain"
	"github.com/luxfi/bitvote/crypto/keys"
	"github.com/luxfi/bitvote/network"
	"github.com/luxfi/bitvote/utils/timer/mockable"
)

// Transactions floods signed transactions. Publishing signs the
// transaction, floods it with infinite TTL and delivers it locally
// through the same path a network transaction takes, so the local miner
// and a remote one see identical inputs.
type Transactions struct {
	*suppressor

	net *network.Network
	log log.Logger

	mu        sync.RWMutex
	callbacks map[chain.TxType]func(chain.Tx)
}

func NewTransactions(
	net *network.Network,
	logger log.Logger,
	clock *mockable.Clock,
	duplicateValidity time.Duration,
) *Transactions {
	t := &Transactions{
		suppressor: newSuppressor(duplicateValidity, clock),
		net:        net,
		log:        logger,
		callbacks:  make(map[chain.TxType]func(chain.Tx)),
	}
	net.SetHandler(network.TypeTransaction, t.receivedTransaction)
	return t
}

// SetCallback registers the consumer for one transaction type.
func (t *Transactions) SetCallback(txType chain.TxType, callback func(chain.Tx)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks[txType] = callback
}

// Publish signs and floods a transaction. The key role must match the
// transaction type.
func (t *Transactions) Publish(tx chain.Tx, key *keys.PrivateKey) error {
	if err := chain.SignTx(tx, key); err != nil {
		return err
	}
	t.log.Info("publishing transaction",
		zap.Stringer("type", tx.Type()),
		zap.Stringer("hash", chain.TxHash(tx)),
	)

	m := network.NewMessage(&network.Transaction{Tx: tx})
	m.Header.TTL = network.TTLInfinite
	t.markSeen(m.ID)
	t.net.Flood(m, nil)

	t.distribute(tx)
	return nil
}

func (t *Transactions) receivedTransaction(conn *network.Conn, m *network.Message) {
	msg, ok := m.Body.(*network.Transaction)
	if !ok || t.isDuplicate(m.ID) {
		return
	}
	t.distribute(msg.Tx)
	t.net.Flood(m, conn)
}

func (t *Transactions) distribute(tx chain.Tx) {
	t.mu.RLock()
	callback := t.callbacks[tx.Type()]
	t.mu.RUnlock()
	if callback != nil {
		callback(tx)
	}
}
