// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"sync"

	"github.com/google/uuid"
)

// Peers tracks the active connections. It has its own mutex; the
// acquisition order is always peer list first, then connection state.
type Peers struct {
	mu    sync.Mutex
	conns []*Conn
}

// Add registers a connection.
func (p *Peers) Add(c *Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns = append(p.conns, c)
}

// Remove drops a connection from the list.
func (p *Peers) Remove(c *Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, cur := range p.conns {
		if cur == c {
			p.conns = append(p.conns[:i], p.conns[i+1:]...)
			return
		}
	}
}

// Len returns the number of tracked connections.
func (p *Peers) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// List snapshots the tracked connections.
func (p *Peers) List() []*Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Conn, len(p.conns))
	copy(out, p.conns)
	return out
}

// HasGUID reports whether an initialized connection with this peer guid
// exists.
func (p *Peers) HasGUID(guid uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.conns {
		if c.Initialized() && c.GUID() == guid {
			return true
		}
	}
	return false
}

// HasAddr reports whether a connection to this remote endpoint exists.
func (p *Peers) HasAddr(addr string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.conns {
		if c.RemoteAddr() == addr {
			return true
		}
	}
	return false
}
