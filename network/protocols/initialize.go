// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package protocols

import (
	"github.com/google/uuid"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/luxfi/bitvote/network"
)

// Initialize handles the handshake of a fresh connection: both sides
// introduce themselves with PeerInfo, duplicate or self connections are
// closed, and a newly initialized connection is immediately asked for the
// remote chain tail.
type Initialize struct {
	net *network.Network
	log log.Logger
	// latest supplies this node's newest block hash for the catch-up
	// request
	latest func() ids.ID
}

func NewInitialize(net *network.Network, logger log.Logger, latest func() ids.ID) *Initialize {
	p := &Initialize{net: net, log: logger, latest: latest}
	net.SetHandler(network.TypePeerInfo, p.receivedPeerInfo)
	return p
}

func (p *Initialize) receivedPeerInfo(conn *network.Conn, m *network.Message) {
	info, ok := m.Body.(*network.PeerInfo)
	if !ok {
		return
	}
	guid, err := uuid.Parse(info.GUID)
	if err != nil {
		p.log.Warn("peer sent malformed guid",
			zap.String("peer", conn.RemoteAddr()),
			zap.Error(err),
		)
		conn.Close()
		return
	}

	// refuse loops back to ourselves and second connections to the same
	// peer
	if guid == p.net.GUID() || p.net.Peers().HasGUID(guid) {
		conn.Close()
		return
	}

	conn.Initialize(guid, info.Version)
	p.log.Info("peer initialized",
		zap.String("peer", conn.RemoteAddr()),
		zap.String("guid", info.GUID),
	)

	// the new peer may know a longer chain
	conn.Write(network.NewMessage(&network.BlockRequest{
		Block:     p.latest(),
		Following: true,
	}))
}
