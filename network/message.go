// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package network implements the flooding gossip layer: framed messages
// over TCP, the peer list, and connection lifecycle. Protocol logic lives
// in network/protocols.
package network

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/luxfi/ids"

	"github.com/luxfi/bitvote/chain"
	"github.com/luxfi/bitvote/utils/wrappers"
)

// Type tags a message on the wire.
type Type byte

const (
	TypeNone Type = 0x00

	// network specific messages
	TypeText      Type = 0x01
	TypePing      Type = 0x02
	TypePong      Type = 0x03
	TypePeerInfo  Type = 0x04
	TypeHeartbeat Type = 0x05

	// voting specific messages
	TypeTransaction  Type = 0x10
	TypeBlock        Type = 0x20
	TypeBlockRequest Type = 0x21
)

func (t Type) String() string {
	switch t {
	case TypeText:
		return "text"
	case TypePing:
		return "ping"
	case TypePong:
		return "pong"
	case TypePeerInfo:
		return "peer info"
	case TypeHeartbeat:
		return "heartbeat"
	case TypeTransaction:
		return "transaction"
	case TypeBlock:
		return "block"
	case TypeBlockRequest:
		return "block request"
	default:
		return "none"
	}
}

const (
	// TTLNotSet marks a message whose TTL has not been assigned yet; the
	// flood path replaces it with the configured flooding TTL, a direct
	// write with 1
	TTLNotSet int32 = -32
	// TTLInfinite marks a message that floods forever (transactions and
	// blocks must reach everyone)
	TTLInfinite int32 = -64

	// HeaderLen is the exact size of the wire header:
	// ttl i32 | hop i32 | size i64 | type u8, all little-endian
	HeaderLen = 17

	// maxBodyLen bounds a message body read from the wire
	maxBodyLen = 1 << 28
)

var (
	errOversizedBody = errors.New("message body exceeds limit")
	errUnknownType   = errors.New("unknown message type")
)

// Header is the fixed preamble of every frame.
type Header struct {
	TTL  int32
	Hop  int32
	Size int64
	Type Type
}

// Payload is the typed body of a message.
type Payload interface {
	Type() Type
	Pack(p *wrappers.Packer)
	Unpack(p *wrappers.Packer)
}

// Message is one gossip frame: header, a random id for duplicate
// suppression, and the typed payload.
type Message struct {
	Header Header
	ID     uuid.UUID
	Body   Payload
}

// NewMessage wraps a payload with a fresh random id and an unset TTL.
func NewMessage(body Payload) *Message {
	return &Message{
		Header: Header{TTL: TTLNotSet, Type: body.Type()},
		ID:     uuid.New(),
		Body:   body,
	}
}

func (m *Message) String() string {
	return fmt.Sprintf("%s {ttl: (%d,%d); id: %s}", m.Header.Type, m.Header.TTL, m.Header.Hop, m.ID)
}

// WriteMessage frames and writes a message. The header carries the exact
// body length so the receiver can read the frame without scanning.
func WriteMessage(w io.Writer, m *Message) error {
	p := &wrappers.Packer{MaxSize: maxBodyLen}
	p.PackFixedBytes(m.ID[:])
	m.Body.Pack(p)
	if p.Errored() {
		return p.Err
	}

	m.Header.Size = int64(len(p.Bytes))

	var head [HeaderLen]byte
	binary.LittleEndian.PutUint32(head[0:], uint32(m.Header.TTL))
	binary.LittleEndian.PutUint32(head[4:], uint32(m.Header.Hop))
	binary.LittleEndian.PutUint64(head[8:], uint64(m.Header.Size))
	head[16] = byte(m.Header.Type)

	if _, err := w.Write(head[:]); err != nil {
		return err
	}
	_, err := w.Write(p.Bytes)
	return err
}

// ReadMessage reads and decodes one frame.
func ReadMessage(r io.Reader) (*Message, error) {
	var head [HeaderLen]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}

	m := &Message{
		Header: Header{
			TTL:  int32(binary.LittleEndian.Uint32(head[0:])),
			Hop:  int32(binary.LittleEndian.Uint32(head[4:])),
			Size: int64(binary.LittleEndian.Uint64(head[8:])),
			Type: Type(head[16]),
		},
	}
	if m.Header.Size < uuidLen || m.Header.Size > maxBodyLen {
		return nil, errOversizedBody
	}

	body := make([]byte, m.Header.Size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	switch m.Header.Type {
	case TypeText:
		m.Body = &Text{}
	case TypePing:
		m.Body = &Ping{}
	case TypePong:
		m.Body = &Pong{}
	case TypePeerInfo:
		m.Body = &PeerInfo{}
	case TypeHeartbeat:
		m.Body = &Heartbeat{}
	case TypeTransaction:
		m.Body = &Transaction{}
	case TypeBlock:
		m.Body = &Block{}
	case TypeBlockRequest:
		m.Body = &BlockRequest{}
	default:
		return nil, errUnknownType
	}

	p := &wrappers.Packer{Bytes: body}
	copy(m.ID[:], p.UnpackFixedBytes(uuidLen))
	m.Body.Unpack(p)
	if p.Errored() {
		return nil, p.Err
	}
	return m, nil
}

const uuidLen = 16

// Text is a neighbor-only operator broadcast.
type Text struct {
	Text string
}

func (*Text) Type() Type { return TypeText }

func (t *Text) Pack(p *wrappers.Packer) { p.PackStr(t.Text) }

func (t *Text) Unpack(p *wrappers.Packer) { t.Text = p.UnpackLimitedStr(wrappers.MaxStringLen) }

// Ping advertises a peer's listening endpoint for discovery. The sender
// leaves the address empty; the first hop fills it in from the socket.
type Ping struct {
	Address string
	Port    uint16
}

func (*Ping) Type() Type { return TypePing }

func (m *Ping) Pack(p *wrappers.Packer) {
	p.PackStr(m.Address)
	p.PackShort(m.Port)
}

func (m *Ping) Unpack(p *wrappers.Packer) {
	m.Address = p.UnpackLimitedStr(wrappers.MaxStringLen)
	m.Port = p.UnpackShort()
}

// Pong is reserved; the discovery protocol never answers pings.
type Pong struct{}

func (*Pong) Type() Type { return TypePong }

func (*Pong) Pack(*wrappers.Packer) {}

func (*Pong) Unpack(*wrappers.Packer) {}

// PeerInfo opens every connection: both sides introduce themselves with
// their node guid and client version.
type PeerInfo struct {
	GUID    string
	Version uint32
}

func (*PeerInfo) Type() Type { return TypePeerInfo }

func (m *PeerInfo) Pack(p *wrappers.Packer) {
	p.PackStr(m.GUID)
	p.PackInt(m.Version)
}

func (m *PeerInfo) Unpack(p *wrappers.Packer) {
	m.GUID = p.UnpackLimitedStr(wrappers.MaxStringLen)
	m.Version = p.UnpackInt()
}

// Heartbeat keeps NAT state alive on a single hop.
type Heartbeat struct{}

func (*Heartbeat) Type() Type { return TypeHeartbeat }

func (*Heartbeat) Pack(*wrappers.Packer) {}

func (*Heartbeat) Unpack(*wrappers.Packer) {}

// Transaction floods a signed transaction.
type Transaction struct {
	Tx chain.Tx
}

func (*Transaction) Type() Type { return TypeTransaction }

func (m *Transaction) Pack(p *wrappers.Packer) {
	raw, err := chain.TxBytes(m.Tx)
	if err != nil {
		p.Add(err)
		return
	}
	p.PackBytes(raw)
}

func (m *Transaction) Unpack(p *wrappers.Packer) {
	raw := p.UnpackLimitedBytes(maxBodyLen)
	if p.Errored() {
		return
	}
	tx, err := chain.ParseTx(raw)
	if err != nil {
		p.Add(err)
		return
	}
	m.Tx = tx
}

// Block floods a mined block.
type Block struct {
	Block *chain.Block
}

func (*Block) Type() Type { return TypeBlock }

func (m *Block) Pack(p *wrappers.Packer) {
	raw, err := m.Block.Bytes()
	if err != nil {
		p.Add(err)
		return
	}
	p.PackBytes(raw)
}

func (m *Block) Unpack(p *wrappers.Packer) {
	raw := p.UnpackLimitedBytes(maxBodyLen)
	if p.Errored() {
		return
	}
	b, err := chain.ParseBlock(raw)
	if err != nil {
		p.Add(err)
		return
	}
	m.Block = b
}

// BlockRequest asks a peer for the blocks after the given one. A newly
// initialized connection requests everything following its own latest
// block.
type BlockRequest struct {
	Block     ids.ID
	Following bool
}

func (*BlockRequest) Type() Type { return TypeBlockRequest }

func (m *BlockRequest) Pack(p *wrappers.Packer) {
	p.PackID(m.Block)
	p.PackBool(m.Following)
}

func (m *BlockRequest) Unpack(p *wrappers.Packer) {
	m.Block = p.UnpackID()
	m.Following = p.UnpackBool()
}
