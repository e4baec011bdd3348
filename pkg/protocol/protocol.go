// Package protocol implements the live wire format between the sync engine
// and a receiver. Every message is a little-endian frame:
//
//	magic "MSBR" | version u32 | session uuid [16] | message id u64 | type u8 | body
//
// A sync pass is sent as Fence(begin), materials, non-geometry entities,
// one Set per mesh, animation, deletions and Fence(end).
package protocol

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Faultbox/meshbridge/pkg/scene"
)

// Magic opens every message.
const Magic = "MSBR"

// Version is the wire protocol version.
const Version uint32 = 1

// HeaderSize is the encoded size of a Header.
const HeaderSize = 4 + 4 + 16 + 8 + 1

// Protocol errors.
var (
	ErrInvalidMagic       = errors.New("invalid message magic: expected 'MSBR'")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
	ErrTruncated          = errors.New("truncated message data")
	ErrUnknownType        = errors.New("unknown message type")
	ErrUnknownKind        = errors.New("unknown entity kind")
	ErrMalformed          = errors.New("malformed message")
)

// MessageType identifies the body of a message.
type MessageType uint8

// Message types.
const (
	TypeFence MessageType = iota + 1
	TypeSet
	TypeDelete
	TypeQuery
	TypeResponse
	TypeText
)

func (t MessageType) String() string {
	switch t {
	case TypeFence:
		return "fence"
	case TypeSet:
		return "set"
	case TypeDelete:
		return "delete"
	case TypeQuery:
		return "query"
	case TypeResponse:
		return "response"
	case TypeText:
		return "text"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Header precedes every message body.
type Header struct {
	Version uint32
	Session uuid.UUID
	ID      uint64
	Type    MessageType
}

// Message is a decodable message body.
type Message interface {
	Type() MessageType
	encode(e *encoder)
	decode(d *decoder) error
}

// FenceKind marks the boundaries of a pass.
type FenceKind uint8

const (
	FenceSceneBegin FenceKind = iota + 1
	FenceSceneEnd
)

// Fence brackets the messages of one pass.
type Fence struct {
	Kind FenceKind
}

func (*Fence) Type() MessageType    { return TypeFence }
func (m *Fence) encode(e *encoder) { e.u8(uint8(m.Kind)) }
func (m *Fence) decode(d *decoder) error {
	m.Kind = FenceKind(d.u8())
	if d.err == nil && m.Kind != FenceSceneBegin && m.Kind != FenceSceneEnd {
		return fmt.Errorf("%w: fence kind %d", ErrMalformed, m.Kind)
	}
	return d.err
}

// Set carries scene data to add or replace.
type Set struct {
	Scene *scene.Scene
}

func (*Set) Type() MessageType { return TypeSet }
func (m *Set) encode(e *encoder) {
	s := m.Scene
	if s == nil {
		s = &scene.Scene{}
	}
	e.buf = AppendScene(e.buf, s)
}
func (m *Set) decode(d *decoder) error {
	s, err := decodeScene(d)
	if err != nil {
		return err
	}
	m.Scene = s
	return nil
}

// Delete removes entities by path and materials by id.
type Delete struct {
	Paths     []string
	Materials []int32
}

func (*Delete) Type() MessageType { return TypeDelete }
func (m *Delete) encode(e *encoder) {
	e.u32(uint32(len(m.Paths)))
	for _, p := range m.Paths {
		e.str(p)
	}
	e.i32Array(m.Materials)
}
func (m *Delete) decode(d *decoder) error {
	n := d.count(4)
	for i := 0; i < n && d.err == nil; i++ {
		m.Paths = append(m.Paths, d.str())
	}
	m.Materials = d.i32Array()
	return d.err
}

// QueryKind selects what a Query asks for.
type QueryKind uint8

const (
	QueryPluginVersion QueryKind = iota + 1
	QueryProtocolVersion
	QueryHostName
	QueryRootNodes
	QueryAllNodes
)

// Query asks the peer for information; it answers with a Response.
type Query struct {
	Kind QueryKind
}

func (*Query) Type() MessageType    { return TypeQuery }
func (m *Query) encode(e *encoder) { e.u8(uint8(m.Kind)) }
func (m *Query) decode(d *decoder) error {
	m.Kind = QueryKind(d.u8())
	return d.err
}

// Response answers a Query with lines of text.
type Response struct {
	Text []string
}

func (*Response) Type() MessageType { return TypeResponse }
func (m *Response) encode(e *encoder) {
	e.u32(uint32(len(m.Text)))
	for _, s := range m.Text {
		e.str(s)
	}
}
func (m *Response) decode(d *decoder) error {
	n := d.count(4)
	for i := 0; i < n && d.err == nil; i++ {
		m.Text = append(m.Text, d.str())
	}
	return d.err
}

// TextSeverity classifies a Text message.
type TextSeverity uint8

const (
	TextInfo TextSeverity = iota
	TextWarning
	TextError
)

// Text is a free-form log line shown by the peer.
type Text struct {
	Severity TextSeverity
	Text     string
}

func (*Text) Type() MessageType { return TypeText }
func (m *Text) encode(e *encoder) {
	e.u8(uint8(m.Severity))
	e.str(m.Text)
}
func (m *Text) decode(d *decoder) error {
	m.Severity = TextSeverity(d.u8())
	m.Text = d.str()
	return d.err
}

func newMessage(t MessageType) (Message, error) {
	switch t {
	case TypeFence:
		return &Fence{}, nil
	case TypeSet:
		return &Set{}, nil
	case TypeDelete:
		return &Delete{}, nil
	case TypeQuery:
		return &Query{}, nil
	case TypeResponse:
		return &Response{}, nil
	case TypeText:
		return &Text{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint8(t))
	}
}

// Marshal encodes m with the given header fields. h.Type and h.Version are
// taken from m and the package version.
func Marshal(h Header, m Message) []byte {
	e := &encoder{buf: make([]byte, 0, 64)}
	e.raw([]byte(Magic))
	e.u32(Version)
	e.raw(h.Session[:])
	e.u64(h.ID)
	e.u8(uint8(m.Type()))
	m.encode(e)
	return e.buf
}

// ParseHeader decodes only the message header.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, ErrTruncated
	}
	if string(data[:4]) != Magic {
		return Header{}, ErrInvalidMagic
	}
	d := &decoder{data: data, off: 4}
	var h Header
	h.Version = d.u32()
	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	copy(h.Session[:], d.bytes(16))
	h.ID = d.u64()
	h.Type = MessageType(d.u8())
	return h, d.err
}

// Unmarshal decodes a complete message.
func Unmarshal(data []byte) (Header, Message, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return Header{}, nil, err
	}
	m, err := newMessage(h.Type)
	if err != nil {
		return h, nil, err
	}
	d := &decoder{data: data, off: HeaderSize}
	if err := m.decode(d); err != nil {
		return h, nil, fmt.Errorf("decoding %v message %d: %w", h.Type, h.ID, err)
	}
	if d.remaining() != 0 {
		return h, nil, fmt.Errorf("%w: %d trailing bytes in %v message", ErrMalformed, d.remaining(), h.Type)
	}
	return h, m, nil
}

// Encoder numbers the messages of one session. It is safe for concurrent
// use.
type Encoder struct {
	session uuid.UUID
	next    atomic.Uint64
}

// NewEncoder creates an encoder for session. A zero session gets a random
// id.
func NewEncoder(session uuid.UUID) *Encoder {
	if session == uuid.Nil {
		session = uuid.New()
	}
	return &Encoder{session: session}
}

// Session returns the session id stamped on every message.
func (e *Encoder) Session() uuid.UUID {
	return e.session
}

// Encode marshals m with the next message id.
func (e *Encoder) Encode(m Message) []byte {
	return Marshal(Header{Session: e.session, ID: e.next.Add(1)}, m)
}
