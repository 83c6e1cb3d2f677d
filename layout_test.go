package candb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitPositions_LittleEndian(t *testing.T) {
	t.Run("1 bit at byte boundary start", func(t *testing.T) {
		got := BitPositions(0, 1, LittleEndian)
		assert.Equal(t, []BitPosition{{ByteIndex: 0, BitInByte: 0}}, got)
	})

	t.Run("1 bit at top of first byte", func(t *testing.T) {
		got := BitPositions(7, 1, LittleEndian)
		assert.Equal(t, []BitPosition{{ByteIndex: 0, BitInByte: 7}}, got)
	})

	t.Run("1 bit at start of second byte", func(t *testing.T) {
		got := BitPositions(8, 1, LittleEndian)
		assert.Equal(t, []BitPosition{{ByteIndex: 1, BitInByte: 0}}, got)
	})

	t.Run("64 bit signal is identity mapping over whole payload", func(t *testing.T) {
		got := BitPositions(0, 64, LittleEndian)
		assert.Len(t, got, 64)
		for i, p := range got {
			assert.Equal(t, i/8, p.ByteIndex)
			assert.Equal(t, uint8(i%8), p.BitInByte)
		}
	})

	t.Run("16 bit signal spans two bytes LSB first", func(t *testing.T) {
		got := BitPositions(0, 16, LittleEndian)
		assert.Equal(t, BitPosition{ByteIndex: 0, BitInByte: 0}, got[0])
		assert.Equal(t, BitPosition{ByteIndex: 1, BitInByte: 7}, got[15])
	})
}

func TestBitPositions_BigEndian(t *testing.T) {
	t.Run("1 bit at MSB of first byte", func(t *testing.T) {
		got := BitPositions(7, 1, BigEndian)
		assert.Equal(t, []BitPosition{{ByteIndex: 0, BitInByte: 7}}, got)
	})

	t.Run("1 bit at LSB of first byte", func(t *testing.T) {
		got := BitPositions(0, 1, BigEndian)
		assert.Equal(t, []BitPosition{{ByteIndex: 0, BitInByte: 0}}, got)
	})

	t.Run("8 bits at start 7 fill the byte exactly and don't cross", func(t *testing.T) {
		// start_bit=7, length=8 fits entirely in the byte it starts in (rem+1 == 8 == length),
		// so it keeps the simple bit-in-byte countdown with no crossing involved.
		got := BitPositions(7, 8, BigEndian)
		assert.Equal(t, BitPosition{ByteIndex: 0, BitInByte: 7}, got[0])
		assert.Equal(t, BitPosition{ByteIndex: 0, BitInByte: 0}, got[7])
	})

	t.Run("sawtooth crossing restarts from the bits actually left in the first byte", func(t *testing.T) {
		// start_bit=7, length=16 doesn't fit in 8 bits, so it restarts from bit (7-rem)=0 of
		// byte 0 -- i.e. it only takes the one bit it has left there -- then walks whole bytes.
		got := BitPositions(7, 16, BigEndian)
		assert.Equal(t, BitPosition{ByteIndex: 0, BitInByte: 0}, got[0])
		assert.Equal(t, BitPosition{ByteIndex: 1, BitInByte: 7}, got[1])
		assert.Equal(t, BitPosition{ByteIndex: 1, BitInByte: 0}, got[8])
		assert.Equal(t, BitPosition{ByteIndex: 2, BitInByte: 1}, got[15])
	})
}

func TestBitPositions_BigEndianMultiByte(t *testing.T) {
	t.Run("10 bit signal sharing its first byte with another signal", func(t *testing.T) {
		// start_bit=6, length=10: rem+1=7 bits of room in byte 0, but length 10 doesn't fit, so
		// it restarts at bit (7-6)=1 -- leaving bit 0..6's upper bits free for a neighboring
		// signal -- takes bits 1 and 0 of byte 0, then all of byte 1.
		got := BitPositions(6, 10, BigEndian)
		assert.Equal(t, BitPosition{ByteIndex: 0, BitInByte: 1}, got[0])
		assert.Equal(t, BitPosition{ByteIndex: 0, BitInByte: 0}, got[1])
		assert.Equal(t, BitPosition{ByteIndex: 1, BitInByte: 7}, got[2])
		assert.Equal(t, BitPosition{ByteIndex: 1, BitInByte: 0}, got[9])
	})

	t.Run("20 bit signal crosses three byte boundaries", func(t *testing.T) {
		// start_bit=23, length=20: rem=7 so only one bit of room in byte 2; the remaining 19
		// bits spill as two full bytes (3, 4) plus the top 3 bits of byte 5.
		got := BitPositions(23, 20, BigEndian)
		assert.Equal(t, BitPosition{ByteIndex: 2, BitInByte: 0}, got[0])
		assert.Equal(t, BitPosition{ByteIndex: 3, BitInByte: 7}, got[1])
		assert.Equal(t, BitPosition{ByteIndex: 4, BitInByte: 7}, got[9])
		assert.Equal(t, BitPosition{ByteIndex: 5, BitInByte: 5}, got[19])
	})

	t.Run("never produces a negative byte index", func(t *testing.T) {
		got := BitPositions(6, 10, BigEndian)
		for _, p := range got {
			assert.GreaterOrEqual(t, p.ByteIndex, 0)
		}
	})
}

func TestMaxBitIndex(t *testing.T) {
	assert.Equal(t, -1, maxBitIndex(0, 0, LittleEndian))
	assert.Equal(t, 63, maxBitIndex(0, 64, LittleEndian))
	assert.Equal(t, 0, maxBitIndex(0, 1, LittleEndian))
	// start_bit=0 (rem=0) is byte-aligned, so the crossing signal uses whole bytes throughout
	// and fits exactly in the 8-byte frame.
	assert.Equal(t, 63, maxBitIndex(0, 64, BigEndian))
}
