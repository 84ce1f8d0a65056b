// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"go.uber.org/zap"
)

var errTooManyConnections = errors.New("reached the maximum number of connections")

// Handler consumes a message that arrived on a connection.
type Handler func(*Conn, *Message)

// Config carries the network parameters the node resolved from flags and
// config file.
type Config struct {
	Port           uint16
	MaxConnections int
	FloodTTL       int32
	// IdleTimeout closes peers that sent no frame for this long; zero
	// disables the reaper
	IdleTimeout time.Duration
}

// Network owns the listener, the peer list and the per-type dispatch
// table. Protocols register one handler per message type; the reactor
// goroutines deliver messages synchronously.
type Network struct {
	cfg  Config
	log  log.Logger
	guid uuid.UUID

	peers    *Peers
	listener net.Listener

	handlerMu sync.RWMutex
	handlers  map[Type]Handler

	closeOnce sync.Once
	closed    chan struct{}

	metrics *networkMetrics
}

// New creates a network with a fresh node guid.
func New(cfg Config, logger log.Logger, registerer metric.Registerer) (*Network, error) {
	m, err := newMetrics(registerer)
	if err != nil {
		return nil, err
	}
	return &Network{
		cfg:      cfg,
		log:      logger,
		guid:     uuid.New(),
		peers:    &Peers{},
		handlers: make(map[Type]Handler),
		closed:   make(chan struct{}),
		metrics:  m,
	}, nil
}

// GUID returns this node's identity.
func (n *Network) GUID() uuid.UUID {
	return n.guid
}

// Peers returns the live peer list.
func (n *Network) Peers() *Peers {
	return n.peers
}

// Port returns the configured listening port.
func (n *Network) Port() uint16 {
	return n.cfg.Port
}

// MaxConnections returns the configured connection limit.
func (n *Network) MaxConnections() int {
	return n.cfg.MaxConnections
}

// SetHandler registers the callback for a message type. The network
// recovers from handler panics so one bad message cannot take the node
// down.
func (n *Network) SetHandler(t Type, h Handler) {
	n.handlerMu.Lock()
	defer n.handlerMu.Unlock()
	n.handlers[t] = h
}

// Listen binds the configured port and accepts connections until
// shutdown.
func (n *Network) Listen() error {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", n.cfg.Port))
	if err != nil {
		return err
	}
	n.listener = l
	n.log.Info("listening", zap.String("addr", l.Addr().String()))

	go n.acceptLoop()
	if n.cfg.IdleTimeout > 0 {
		go n.reapLoop()
	}
	return nil
}

// Addr returns the bound listener address, for tests using port 0.
func (n *Network) Addr() net.Addr {
	if n.listener == nil {
		return nil
	}
	return n.listener.Addr()
}

func (n *Network) acceptLoop() {
	for {
		raw, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.closed:
				return
			default:
			}
			n.log.Warn("accept failed", zap.Error(err))
			continue
		}
		n.log.Info("new connection", zap.String("peer", raw.RemoteAddr().String()))

		if n.peers.Len() >= n.cfg.MaxConnections {
			n.log.Warn("connection limit reached, dropping",
				zap.String("peer", raw.RemoteAddr().String()),
			)
			_ = raw.Close()
			continue
		}
		n.startConn(raw, Inbound)
	}
}

// Connect dials a peer and starts the handshake.
func (n *Network) Connect(addr string) error {
	if n.peers.Len() >= n.cfg.MaxConnections {
		return errTooManyConnections
	}
	n.log.Info("connecting", zap.String("peer", addr))

	raw, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return err
	}
	n.startConn(raw, Outbound)
	return nil
}

// startConn registers the connection, starts its reader, and introduces
// this node. Both sides send PeerInfo first.
func (n *Network) startConn(raw net.Conn, typ ConnType) {
	c := &Conn{network: n, conn: raw, typ: typ, lastFrame: time.Now()}
	n.peers.Add(c)
	go c.readLoop(n.log)

	c.Write(NewMessage(&PeerInfo{
		GUID:    n.guid.String(),
		Version: clientVersion,
	}))
}

// clientVersion mirrors the header version constant of the chain.
const clientVersion = 100

// Flood sends a message to every initialized connection except the one
// it came from. An unset TTL becomes the configured flooding TTL.
func (n *Network) Flood(m *Message, except *Conn) {
	if m.Header.TTL == TTLNotSet {
		m.Header.TTL = n.cfg.FloodTTL
	}
	for _, c := range n.peers.List() {
		if c == except || !c.Initialized() {
			continue
		}
		c.Write(m)
	}
	n.metrics.framesOut.Inc()
}

// dispatch hands a received message to the registered handler.
func (n *Network) dispatch(c *Conn, m *Message) {
	n.metrics.framesIn.Inc()

	n.handlerMu.RLock()
	h := n.handlers[m.Header.Type]
	n.handlerMu.RUnlock()
	if h == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			n.log.Error("handler panicked",
				zap.Stringer("type", m.Header.Type),
				zap.Any("panic", r),
			)
		}
	}()
	h(c, m)
}

// reapLoop closes peers that went silent for longer than the idle
// timeout. They are rediscovered through pings if they come back.
func (n *Network) reapLoop() {
	ticker := time.NewTicker(n.cfg.IdleTimeout / 4)
	defer ticker.Stop()
	for {
		select {
		case <-n.closed:
			return
		case <-ticker.C:
			deadline := time.Now().Add(-n.cfg.IdleTimeout)
			for _, c := range n.peers.List() {
				if c.LastFrame().Before(deadline) {
					n.log.Info("dropping idle peer", zap.String("peer", c.RemoteAddr()))
					c.Close()
				}
			}
		}
	}
}

// Shutdown closes the listener and every connection.
func (n *Network) Shutdown() {
	n.closeOnce.Do(func() {
		close(n.closed)
		if n.listener != nil {
			_ = n.listener.Close()
		}
		for _, c := range n.peers.List() {
			c.Close()
		}
	})
}
