package dbc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDBC = `VERSION "1.0"

NS_ :
	NS_DESC_
	CM_

BS_: 500000:

BU_: PCM1 FOO

BO_ 496 ExampleMessage: 8 PCM1
 SG_ Temperature : 0|12@0- (0.01,-273) [-273|373.01] "degK" FOO
 SG_ AverageRadius : 6|6@0+ (0.1,0) [0|6.3] "m" Vector__XXX
 SG_ Enable : 7|1@0+ (1,0) [0|1] "" Vector__XXX

BO_ 200 SENSOR_SONARS: 8 DBG
 SG_ SENSOR_SONARS_mux M : 0|4@1+ (1,0) [0|3] "" Vector__XXX
 SG_ SENSOR_SONARS_left m0 : 8|12@1+ (1,0) [0|0] "" Vector__XXX
 SG_ SENSOR_SONARS_middle m1 : 8|12@1+ (1,0) [0|0] "" Vector__XXX

CM_ BU_ PCM1 "Power control module";
CM_ BO_ 496 "Example message comment";
CM_ SG_ 496 Enable "Enable switch comment";

BA_DEF_ BO_ "GenMsgCycleTime" INT 0 10000;
BA_DEF_DEF_ "GenMsgCycleTime" 0;
BA_ "GenMsgCycleTime" BO_ 496 100;

VAL_ 496 Enable 0 "Disabled" 1 "Enabled" ;
`

func TestParse_Sample(t *testing.T) {
	db, err := Parse(strings.NewReader(sampleDBC))
	require.NoError(t, err)

	assert.Equal(t, "1.0", db.Version)
	require.NotNil(t, db.Bus)
	assert.Equal(t, uint32(500000), db.Bus.Baudrate)

	require.Len(t, db.Nodes, 2)
	assert.Equal(t, "PCM1", db.Nodes[0].Name)
	assert.Equal(t, "Power control module", db.Nodes[0].Comment)

	require.Len(t, db.Messages, 2)
	msg := db.Messages[0]
	assert.Equal(t, uint32(496), msg.FrameID)
	assert.Equal(t, "ExampleMessage", msg.Name)
	assert.Equal(t, uint8(8), msg.LengthBytes)
	assert.Equal(t, "Example message comment", msg.Comment)
	assert.Equal(t, uint32(100), msg.CycleTime)
	require.Len(t, msg.Signals, 3)

	temp := msg.Signals[0]
	assert.Equal(t, "Temperature", temp.Name)
	assert.Equal(t, uint16(0), temp.StartBit)
	assert.Equal(t, uint16(12), temp.LengthBits)
	assert.True(t, temp.BigEndian)
	assert.True(t, temp.Signed)
	assert.Equal(t, 0.01, temp.Scale)
	assert.Equal(t, -273.0, temp.Offset)
	assert.Equal(t, "degK", temp.Unit)

	enable := msg.Signals[2]
	assert.Equal(t, "Enable switch comment", enable.Comment)
	assert.Equal(t, map[int64]string{0: "Disabled", 1: "Enabled"}, enable.Choices)

	mux := db.Messages[1]
	assert.True(t, mux.Signals[0].IsMultiplexer)
	require.NotNil(t, mux.Signals[1].MultiplexerID)
	assert.Equal(t, uint64(0), *mux.Signals[1].MultiplexerID)
	require.NotNil(t, mux.Signals[2].MultiplexerID)
	assert.Equal(t, uint64(1), *mux.Signals[2].MultiplexerID)
}

func TestParse_MalformedSignalLine(t *testing.T) {
	bad := "BO_ 1 Foo: 8 X\n SG_ Broken : nope\n"
	_, err := Parse(strings.NewReader(bad))
	assert.Error(t, err)
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}
