// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package protocols

import (
	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/luxfi/bitvote/network"
)

// Text carries neighbor-only operator broadcasts, handy for poking a
// running mesh.
type Text struct {
	net      *network.Network
	log      log.Logger
	callback func(string)
}

func NewText(net *network.Network, logger log.Logger) *Text {
	t := &Text{net: net, log: logger}
	net.SetHandler(network.TypeText, t.receivedText)
	return t
}

// SetCallback registers a consumer for received texts.
func (t *Text) SetCallback(callback func(string)) {
	t.callback = callback
}

// Broadcast sends a text to all direct neighbors.
func (t *Text) Broadcast(text string) {
	m := network.NewMessage(&network.Text{Text: text})
	m.Header.TTL = 1
	t.net.Flood(m, nil)
}

func (t *Text) receivedText(conn *network.Conn, m *network.Message) {
	msg, ok := m.Body.(*network.Text)
	if !ok {
		return
	}
	t.log.Info("text from peer",
		zap.String("peer", conn.RemoteAddr()),
		zap.String("text", msg.Text),
	)
	if t.callback != nil {
		t.callback(msg.Text)
	}
}
