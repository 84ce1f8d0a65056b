// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/luxfi/log"
	"go.uber.org/zap"
)

// ConnType marks who opened the connection.
type ConnType byte

const (
	Inbound ConnType = iota
	Outbound
)

// Conn is one peer connection. A goroutine per connection reads frames
// and hands them to the network dispatcher in arrival order.
type Conn struct {
	network *Network
	conn    net.Conn
	typ     ConnType

	writeMu sync.Mutex

	mu        sync.Mutex
	guid      uuid.UUID
	version   uint32
	lastFrame time.Time
	closed    bool
}

// GUID returns the remote peer id learned from its PeerInfo.
func (c *Conn) GUID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.guid
}

// Version returns the remote client version.
func (c *Conn) Version() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Initialized reports whether PeerInfo has been exchanged.
func (c *Conn) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.guid != uuid.Nil
}

// Initialize records the remote identity.
func (c *Conn) Initialize(guid uuid.UUID, version uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.guid = guid
	c.version = version
}

// RemoteAddr returns the remote endpoint as host:port.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// RemoteIP returns just the remote host.
func (c *Conn) RemoteIP() string {
	host, _, err := net.SplitHostPort(c.conn.RemoteAddr().String())
	if err != nil {
		return ""
	}
	return host
}

// LastFrame returns when the last frame arrived, for idle detection.
func (c *Conn) LastFrame() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFrame
}

// Write frames and sends a message. An unset TTL becomes 1 (direct
// write); a non-infinite TTL that has run out drops the message.
func (c *Conn) Write(m *Message) {
	switch {
	case m.Header.TTL == TTLNotSet:
		m.Header.TTL = 1
	case m.Header.TTL != TTLInfinite && m.Header.TTL <= 0:
		return
	}

	c.writeMu.Lock()
	err := WriteMessage(c.conn, m)
	c.writeMu.Unlock()
	if err != nil {
		c.network.log.Debug("write failed, dropping peer",
			zap.String("peer", c.RemoteAddr()),
			zap.Error(err),
		)
		c.Close()
	}
}

// Close tears the connection down and removes it from the peer list.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.network.peers.Remove(c)
	_ = c.conn.Close()
}

// readLoop delivers incoming frames until the connection dies. The hop
// count is incremented and the TTL decremented on receipt; dispatch
// happens on this goroutine, so per-connection ordering is preserved.
func (c *Conn) readLoop(logger log.Logger) {
	defer c.Close()
	for {
		m, err := ReadMessage(c.conn)
		if err != nil {
			logger.Debug("connection closed",
				zap.String("peer", c.RemoteAddr()),
				zap.Error(err),
			)
			return
		}

		c.mu.Lock()
		c.lastFrame = time.Now()
		c.mu.Unlock()

		m.Header.Hop++
		if m.Header.TTL != TTLInfinite {
			m.Header.TTL--
		}

		c.network.dispatch(c, m)
	}
}
