package main

import (
	"testing"

	"github.com/canlab/go-candb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDatabase(t *testing.T) *candb.Database {
	t.Helper()
	db := candb.NewDatabase()
	require.NoError(t, db.AddMessage(&candb.Message{
		FrameID:     200,
		Name:        "SENSOR_SONARS",
		LengthBytes: 8,
		Signals: []*candb.Signal{
			{Name: "SENSOR_SONARS_mux", StartBit: 0, LengthBits: 4, ByteOrder: candb.LittleEndian, IsMultiplexer: true, Scale: 1},
			{Name: "SENSOR_SONARS_err_count", StartBit: 4, LengthBits: 12, ByteOrder: candb.LittleEndian, Scale: 1},
		},
	}))
	return db
}

func TestDecodeLine_Matches(t *testing.T) {
	db := testDatabase(t)
	line := "  vcan0  0C8   [8]  F0 00 00 00 00 00 00 00"

	got := decodeLine(db, line)
	assert.Contains(t, got, line)
	assert.Contains(t, got, "SENSOR_SONARS(")
	assert.Contains(t, got, "SENSOR_SONARS_mux: 0")
}

func TestDecodeLine_NoMatchPassesThrough(t *testing.T) {
	db := testDatabase(t)
	line := "  vcan0  064   [8]  F0 01 FF FF FF FF FF FF"

	got := decodeLine(db, line)
	assert.Equal(t, line, got)
}

func TestDecodeLine_MalformedPassesThrough(t *testing.T) {
	db := testDatabase(t)
	line := "not a frame line at all"

	got := decodeLine(db, line)
	assert.Equal(t, line, got)
}
