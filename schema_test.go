package candb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabase_AddMessageAndLookup(t *testing.T) {
	db := NewDatabase()
	msg := &Message{FrameID: 0x100, Name: "Foo", LengthBytes: 8}

	require.NoError(t, db.AddMessage(msg))

	got, err := db.LookupMessage(0x100)
	require.NoError(t, err)
	assert.Same(t, msg, got)

	got, err = db.LookupMessageByName("Foo")
	require.NoError(t, err)
	assert.Same(t, msg, got)

	_, err = db.LookupMessage(0x101)
	assert.ErrorIs(t, err, ErrUnknownFrameID)

	_, err = db.LookupMessageByName("Bar")
	assert.ErrorIs(t, err, ErrUnknownMessageName)
}

func TestDatabase_AddMessage_DuplicateFrameID(t *testing.T) {
	db := NewDatabase()
	require.NoError(t, db.AddMessage(&Message{FrameID: 1, Name: "A", LengthBytes: 1}))

	err := db.AddMessage(&Message{FrameID: 1, Name: "B", LengthBytes: 1})
	assert.ErrorIs(t, err, ErrDuplicateFrameID)
}

func TestMessage_Validate_MultipleMultiplexers(t *testing.T) {
	db := NewDatabase()
	msg := &Message{
		FrameID:     2,
		Name:        "Bad",
		LengthBytes: 1,
		Signals: []*Signal{
			{Name: "M1", StartBit: 0, LengthBits: 1, IsMultiplexer: true, Scale: 1},
			{Name: "M2", StartBit: 1, LengthBits: 1, IsMultiplexer: true, Scale: 1},
		},
	}
	err := db.AddMessage(msg)
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestMessage_Validate_MultiplexedSignalWithoutSwitch(t *testing.T) {
	db := NewDatabase()
	id := uint64(0)
	msg := &Message{
		FrameID:     3,
		Name:        "Bad",
		LengthBytes: 1,
		Signals: []*Signal{
			{Name: "A", StartBit: 0, LengthBits: 1, MultiplexerID: &id, Scale: 1},
		},
	}
	err := db.AddMessage(msg)
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestMessage_Validate_SignalOverflowsLength(t *testing.T) {
	db := NewDatabase()
	msg := &Message{
		FrameID:     4,
		Name:        "Bad",
		LengthBytes: 1,
		Signals: []*Signal{
			{Name: "A", StartBit: 0, LengthBits: 16, ByteOrder: LittleEndian, Scale: 1},
		},
	}
	err := db.AddMessage(msg)
	assert.ErrorIs(t, err, ErrInvalidSignal)
}

func TestMessage_Validate_DuplicateSignalName(t *testing.T) {
	db := NewDatabase()
	msg := &Message{
		FrameID:     5,
		Name:        "Bad",
		LengthBytes: 2,
		Signals: []*Signal{
			{Name: "A", StartBit: 0, LengthBits: 8, Scale: 1},
			{Name: "A", StartBit: 8, LengthBits: 8, Scale: 1},
		},
	}
	err := db.AddMessage(msg)
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestMessage_IsMultiplexedAndSignalsByID(t *testing.T) {
	muxID0 := uint64(0)
	muxID1 := uint64(1)
	msg := &Message{
		Name: "SENSOR",
		Signals: []*Signal{
			{Name: "Mux", IsMultiplexer: true, Scale: 1},
			{Name: "A", MultiplexerID: &muxID0, Scale: 1},
			{Name: "B", MultiplexerID: &muxID1, Scale: 1},
			{Name: "Always", Scale: 1},
		},
	}

	assert.True(t, msg.IsMultiplexed())
	assert.Equal(t, "Mux", msg.MultiplexerSignalName())

	byZero := msg.SignalsByMultiplexerID(0)
	names := signalNames(byZero)
	assert.ElementsMatch(t, []string{"Mux", "A", "Always"}, names)

	byOne := msg.SignalsByMultiplexerID(1)
	names = signalNames(byOne)
	assert.ElementsMatch(t, []string{"Mux", "B", "Always"}, names)
}

func signalNames(sigs []*Signal) []string {
	out := make([]string, len(sigs))
	for i, s := range sigs {
		out[i] = s.Name
	}
	return out
}

func TestSignal_IsScaled(t *testing.T) {
	s := &Signal{Scale: 1, Offset: 0}
	assert.False(t, s.IsScaled())

	s = &Signal{Scale: 0.1, Offset: 0}
	assert.True(t, s.IsScaled())

	s = &Signal{Scale: 1, Offset: -273}
	assert.True(t, s.IsScaled())
}

func TestDatabase_SortedMessages(t *testing.T) {
	db := NewDatabase()
	require.NoError(t, db.AddMessage(&Message{FrameID: 200, Name: "B", LengthBytes: 1}))
	require.NoError(t, db.AddMessage(&Message{FrameID: 100, Name: "A", LengthBytes: 1}))

	sorted := db.SortedMessages()
	require.Len(t, sorted, 2)
	assert.Equal(t, uint32(100), sorted[0].FrameID)
	assert.Equal(t, uint32(200), sorted[1].FrameID)
	// insertion order of Messages itself is untouched
	assert.Equal(t, uint32(200), db.Messages[0].FrameID)
}
