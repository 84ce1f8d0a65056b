// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package protocols

import (
	"time"

	"github.com/luxfi/log"

	"github.com/luxfi/bitvote/network"
)

// Heartbeat sends a single-hop keep-alive to every neighbor so NAT
// mappings stay warm. Receiving one needs no handling; the arrival alone
// refreshes the connection's idle clock.
type Heartbeat struct {
	net      *network.Network
	log      log.Logger
	interval time.Duration
}

func NewHeartbeat(net *network.Network, logger log.Logger, interval time.Duration, stop <-chan struct{}) *Heartbeat {
	h := &Heartbeat{net: net, log: logger, interval: interval}
	net.SetHandler(network.TypeHeartbeat, func(*network.Conn, *network.Message) {})
	go h.loop(stop)
	return h
}

// Beat sends one heartbeat to all neighbors.
func (h *Heartbeat) Beat() {
	m := network.NewMessage(&network.Heartbeat{})
	m.Header.TTL = 1
	h.net.Flood(m, nil)
}

func (h *Heartbeat) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.Beat()
		}
	}
}
