package candb

import (
	"fmt"
	"sort"
)

// Bus describes a physical CAN bus segment a database's messages may be attached to.
type Bus struct {
	Name     string
	Comment  string
	Baudrate uint32
}

// Node describes an ECU (ATU in DBC parlance) that sends or receives messages on the bus.
type Node struct {
	Name    string
	Comment string
}

// Signal is a single value packed into a Message's payload.
type Signal struct {
	Name       string
	StartBit   uint16
	LengthBits uint16
	ByteOrder  ByteOrder
	IsSigned   bool
	IsFloat    bool // when true, the raw bits are IEEE-754 (LengthBits must be 32 or 64)

	Scale  float64
	Offset float64

	Min *float64
	Max *float64
	Unit string

	// Choices maps a raw integer value to its symbolic name (DBC VAL_ / KCD <Value> / SYM {ENUMS}).
	Choices map[int64]string

	// IsMultiplexer marks the switch signal of a multiplexed message (DBC "M").
	IsMultiplexer bool
	// MultiplexerID is non-nil for a signal that is only present when the message's multiplexer
	// signal carries this value (DBC "m<n>").
	MultiplexerID *uint64

	Nodes   []string // receiving node names
	Comment string

	// RawAttributes carries any BA_/attribute values attached to this signal that this package
	// does not otherwise model, keyed by attribute name, so round-tripping does not silently
	// drop them.
	RawAttributes map[string]string
}

// IsScaled reports whether the signal has a non-identity linear transform applied to its raw value.
func (s *Signal) IsScaled() bool {
	return s.Scale != 1 || s.Offset != 0
}

func (s *Signal) validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: signal has no name", ErrInvalidSignal)
	}
	if s.LengthBits == 0 || s.LengthBits > 64 {
		return fmt.Errorf("%w: signal %q has invalid length %d", ErrInvalidSignal, s.Name, s.LengthBits)
	}
	if s.IsFloat && s.LengthBits != 32 && s.LengthBits != 64 {
		return fmt.Errorf("%w: signal %q is float but has length %d, want 32 or 64", ErrInvalidSignal, s.Name, s.LengthBits)
	}
	if s.IsFloat && s.IsSigned {
		return fmt.Errorf("%w: signal %q cannot be both float and signed", ErrInvalidSignal, s.Name)
	}
	if idx := maxBitIndex(s.StartBit, s.LengthBits, s.ByteOrder); idx > 63 {
		return fmt.Errorf("%w: signal %q overflows an 8-byte frame (max bit %d)", ErrInvalidSignal, s.Name, idx)
	}
	if s.Scale == 0 {
		return fmt.Errorf("%w: signal %q has zero scale", ErrInvalidSignal, s.Name)
	}
	return nil
}

// Message is a single CAN frame layout: an id, a fixed payload length, and the signals packed
// into it.
type Message struct {
	FrameID         uint32
	Name            string
	IsExtendedFrame bool
	LengthBytes     uint8
	Signals         []*Signal // declaration order, not bit order
	Nodes           []string  // sending node names
	Comment         string
	SendType        string
	CycleTime       uint32 // milliseconds, 0 when not periodic
	BusName         string

	RawAttributes map[string]string
}

// IsMultiplexed reports whether the message has a multiplexer switch signal.
func (m *Message) IsMultiplexed() bool {
	return m.MultiplexerSignalName() != ""
}

// MultiplexerSignalName returns the name of the message's multiplexer switch signal, or "" if
// the message is not multiplexed.
func (m *Message) MultiplexerSignalName() string {
	for _, s := range m.Signals {
		if s.IsMultiplexer {
			return s.Name
		}
	}
	return ""
}

// SignalByName returns the signal with the given name, or nil.
func (m *Message) SignalByName(name string) *Signal {
	for _, s := range m.Signals {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// SignalsByMultiplexerID returns the signals of a multiplexed message that are active when the
// multiplexer switch signal carries the given raw value, plus any non-multiplexed signals that
// are always present (including the multiplexer signal itself).
func (m *Message) SignalsByMultiplexerID(id uint64) []*Signal {
	var out []*Signal
	for _, s := range m.Signals {
		if s.MultiplexerID == nil || *s.MultiplexerID == id {
			out = append(out, s)
		}
	}
	return out
}

func (m *Message) validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: message has no name", ErrInvalidMessage)
	}
	if m.LengthBytes > 8 {
		return fmt.Errorf("%w: message %q has length %d, max 8", ErrInvalidMessage, m.Name, m.LengthBytes)
	}

	muxCount := 0
	seen := map[string]bool{}
	for _, s := range m.Signals {
		if seen[s.Name] {
			return fmt.Errorf("%w: message %q has duplicate signal %q", ErrInvalidMessage, m.Name, s.Name)
		}
		seen[s.Name] = true

		if err := s.validate(); err != nil {
			return fmt.Errorf("message %q: %w", m.Name, err)
		}
		if idx := maxBitIndex(s.StartBit, s.LengthBits, s.ByteOrder); idx >= int(m.LengthBytes)*8 {
			return fmt.Errorf("%w: signal %q of message %q overflows declared length %d bytes",
				ErrInvalidSignal, s.Name, m.Name, m.LengthBytes)
		}
		if s.IsMultiplexer {
			muxCount++
		}
	}
	if muxCount > 1 {
		return fmt.Errorf("%w: message %q has more than one multiplexer signal", ErrInvalidMessage, m.Name)
	}
	if muxCount == 0 {
		for _, s := range m.Signals {
			if s.MultiplexerID != nil {
				return fmt.Errorf("%w: message %q has a multiplexed signal %q but no multiplexer switch",
					ErrInvalidMessage, m.Name, s.Name)
			}
		}
	}
	return nil
}

// Database is an in-memory collection of CAN messages, nodes and buses, indexed for lookup by
// frame id and by name. It is the root type parsed DBC/KCD/SYM sources are converted into, and
// the type EncodeMessage/DecodeMessage operate against.
//
// Lookups and EncodeMessage/DecodeMessage only read a Database and may run concurrently. The Add*
// methods mutate it without any locking; callers must not run them concurrently with any other
// use of the same Database.
type Database struct {
	Version    string
	Buses      []*Bus
	Nodes      []*Node
	Messages   []*Message
	Attributes []AttributeDefinition

	byFrameID map[uint32]*Message
	byName    map[string]*Message
}

// AttributeDefinition mirrors a BA_DEF_/BA_DEF_DEF_ pair verbatim, so AsDBCString can re-emit
// attribute declarations without interpreting them.
type AttributeDefinition struct {
	Object  string
	Name    string
	RawType string
	Default string
}

// NewDatabase returns an empty, ready to use Database.
func NewDatabase() *Database {
	return &Database{
		byFrameID: map[uint32]*Message{},
		byName:    map[string]*Message{},
	}
}

// AddNode appends a node definition to the database. Node names are not required to be unique;
// callers that load multiple source files may legitimately redeclare a node.
func (d *Database) AddNode(n *Node) {
	d.Nodes = append(d.Nodes, n)
}

// AddBus appends a bus definition to the database.
func (d *Database) AddBus(b *Bus) {
	d.Buses = append(d.Buses, b)
}

// AddMessage validates and inserts a message into the database. It returns ErrDuplicateFrameID
// if a message with the same FrameID is already present.
func (d *Database) AddMessage(m *Message) error {
	if err := m.validate(); err != nil {
		return err
	}
	if d.byFrameID == nil {
		d.byFrameID = map[uint32]*Message{}
		d.byName = map[string]*Message{}
	}
	if _, ok := d.byFrameID[m.FrameID]; ok {
		return fmt.Errorf("%w: 0x%x (%s)", ErrDuplicateFrameID, m.FrameID, m.Name)
	}
	d.Messages = append(d.Messages, m)
	d.byFrameID[m.FrameID] = m
	d.byName[m.Name] = m
	return nil
}

// LookupMessage returns the message with the given frame id.
func (d *Database) LookupMessage(frameID uint32) (*Message, error) {
	m, ok := d.byFrameID[frameID]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%x", ErrUnknownFrameID, frameID)
	}
	return m, nil
}

// LookupMessageByName returns the message with the given name.
func (d *Database) LookupMessageByName(name string) (*Message, error) {
	m, ok := d.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageName, name)
	}
	return m, nil
}

// SortedMessages returns the database's messages ordered by frame id, leaving Messages itself in
// insertion order.
func (d *Database) SortedMessages() []*Message {
	out := make([]*Message, len(d.Messages))
	copy(out, d.Messages)
	sort.Slice(out, func(i, j int) bool { return out[i].FrameID < out[j].FrameID })
	return out
}
