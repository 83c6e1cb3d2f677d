package candb

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDBCContent = `VERSION "1.0"

BU_: ECU1

BO_ 100 Heartbeat: 1 ECU1
 SG_ Counter : 0|8@1+ (1,0) [0|255] "" Vector__XXX

VAL_ 100 Counter 0 "Idle" 1 "Running" ;
`

const testKCDContent = `<NetworkDefinition>
  <Bus name="Main">
    <Message id="0x200" name="Status" length="2">
      <Signal name="Code" offset="0" length="16">
        <Value type="unsigned" slope="1" intercept="0"/>
      </Signal>
    </Message>
  </Bus>
</NetworkDefinition>`

const testSYMContent = `FormatVersion=6.0

{SEND}
[Ping]
ID=10h
Len=1
Var=Seq unsigned 0,8
`

func TestLoad_DBC(t *testing.T) {
	db, err := Load(strings.NewReader(testDBCContent))
	require.NoError(t, err)
	assert.Equal(t, "1.0", db.Version)

	msg, err := db.LookupMessage(100)
	require.NoError(t, err)
	assert.Equal(t, "Heartbeat", msg.Name)
	assert.Equal(t, map[int64]string{0: "Idle", 1: "Running"}, msg.SignalByName("Counter").Choices)
}

func TestLoad_KCD(t *testing.T) {
	db, err := Load(strings.NewReader(testKCDContent))
	require.NoError(t, err)

	msg, err := db.LookupMessage(0x200)
	require.NoError(t, err)
	assert.Equal(t, "Status", msg.Name)
	assert.Equal(t, uint8(2), msg.LengthBytes)
}

func TestLoad_SYM(t *testing.T) {
	db, err := Load(strings.NewReader(testSYMContent))
	require.NoError(t, err)

	msg, err := db.LookupMessage(0x10)
	require.NoError(t, err)
	assert.Equal(t, "Ping", msg.Name)
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	_, err := Load(strings.NewReader("this is not any known database format"))
	assert.ErrorIs(t, err, ErrUnsupportedDatabaseFormat)
}

func TestLoad_UnsupportedSYMVersion(t *testing.T) {
	_, err := Load(strings.NewReader("FormatVersion=5.0\n"))
	assert.ErrorIs(t, err, ErrUnsupportedSYMVersion)
}

func TestDatabase_AddDBC(t *testing.T) {
	db := NewDatabase()
	require.NoError(t, db.AddDBC(strings.NewReader(testDBCContent)))
	_, err := db.LookupMessageByName("Heartbeat")
	require.NoError(t, err)
}

func TestDatabase_AsDBCString_RoundTrip(t *testing.T) {
	db, err := Load(strings.NewReader(testDBCContent))
	require.NoError(t, err)

	out, err := db.AsDBCString()
	require.NoError(t, err)

	reloaded, err := Load(strings.NewReader(out))
	require.NoError(t, err)

	msg, err := reloaded.LookupMessage(100)
	require.NoError(t, err)
	assert.Equal(t, "Heartbeat", msg.Name)
	assert.Equal(t, msg.Signals[0].Choices, db.Messages[0].Signals[0].Choices)
}
