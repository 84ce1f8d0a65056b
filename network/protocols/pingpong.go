// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package protocols

import (
	"net"
	"strconv"
	"time"

	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/luxfi/bitvote/network"
	"github.com/luxfi/bitvote/utils/timer/mockable"
)

// PingPong floods periodic pings advertising this node's endpoint. Peers
// receiving a ping try to connect to the advertised endpoint, which is
// how new nodes spread through the network. Pongs are reserved and never
// sent.
type PingPong struct {
	*suppressor

	net      *network.Network
	log      log.Logger
	interval time.Duration
}

func NewPingPong(
	net *network.Network,
	logger log.Logger,
	clock *mockable.Clock,
	interval time.Duration,
	duplicateValidity time.Duration,
	stop <-chan struct{},
) *PingPong {
	p := &PingPong{
		suppressor: newSuppressor(duplicateValidity, clock),
		net:        net,
		log:        logger,
		interval:   interval,
	}
	net.SetHandler(network.TypePing, p.receivedPing)
	net.SetHandler(network.TypePong, func(*network.Conn, *network.Message) {})
	go p.pingLoop(stop)
	return p
}

// Ping floods one discovery ping. The address field stays empty; the
// first hop fills it in from the socket, saving this node the lookup of
// its own address.
func (p *PingPong) Ping() {
	m := network.NewMessage(&network.Ping{Port: p.net.Port()})
	p.markSeen(m.ID)
	p.net.Flood(m, nil)
}

func (p *PingPong) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// only look for more peers below the connection limit
			if p.net.Peers().Len() < p.net.MaxConnections() {
				p.Ping()
			}
		}
	}
}

func (p *PingPong) receivedPing(conn *network.Conn, m *network.Message) {
	ping, ok := m.Body.(*network.Ping)
	if !ok || p.isDuplicate(m.ID) {
		return
	}

	if ping.Address == "" {
		ping.Address = conn.RemoteIP()
	} else {
		addr := net.JoinHostPort(ping.Address, strconv.Itoa(int(ping.Port)))
		if !p.net.Peers().HasAddr(addr) {
			go func() {
				if err := p.net.Connect(addr); err != nil {
					p.log.Debug("discovery connect failed",
						zap.String("peer", addr),
						zap.Error(err),
					)
				}
			}()
		}
	}

	p.net.Flood(m, conn)
}
