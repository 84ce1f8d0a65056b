// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package miner

import (
	"github.com/luxfi/metric"
)

type minerMetrics struct {
	blocksMined metric.Counter
	txsRejected metric.Counter
}

func newMetrics(registerer metric.Registerer) (*minerMetrics, error) {
	m := &minerMetrics{
		blocksMined: metric.NewCounter(metric.CounterOpts{
			Name: "miner_blocks_mined",
			Help: "Number of blocks this node mined",
		}),
		txsRejected: metric.NewCounter(metric.CounterOpts{
			Name: "miner_txs_rejected",
			Help: "Number of transactions rejected at admission",
		}),
	}
	if err := registerer.Register(metric.AsCollector(m.blocksMined)); err != nil {
		return nil, err
	}
	if err := registerer.Register(metric.AsCollector(m.txsRejected)); err != nil {
		return nil, err
	}
	return m, nil
}
