package candb

import (
	"fmt"
	"math"
)

// EncodeOption configures EncodeMessage.
type EncodeOption func(*codecConfig)

// DecodeOption configures DecodeMessage.
type DecodeOption func(*codecConfig)

type codecConfig struct {
	scaling       bool
	strict        bool
	decodeChoices bool
}

func defaultCodecConfig() codecConfig {
	return codecConfig{scaling: true, strict: true, decodeChoices: true}
}

// WithScaling controls whether EncodeMessage/DecodeMessage apply a signal's scale/offset. When
// false, values are treated as already being the raw integer/float stored on the wire. Default true.
func WithScaling(enabled bool) func(*codecConfig) {
	return func(c *codecConfig) { c.scaling = enabled }
}

// WithStrict controls whether EncodeMessage requires every non-multiplexed-out signal to have a
// value in the input map. Default true.
func WithStrict(enabled bool) func(*codecConfig) {
	return func(c *codecConfig) { c.strict = enabled }
}

// WithDecodeChoices controls whether DecodeMessage resolves a signal's raw value through its
// Choices table to a string. Default true.
func WithDecodeChoices(enabled bool) func(*codecConfig) {
	return func(c *codecConfig) { c.decodeChoices = enabled }
}

// EncodeMessage packs data (signal name -> value, where value is int64/float64/string) into the
// wire payload of the message identified by frameID. String values are resolved against the
// target signal's Choices table.
func (d *Database) EncodeMessage(frameID uint32, data map[string]any, opts ...EncodeOption) ([]byte, error) {
	msg, err := d.LookupMessage(frameID)
	if err != nil {
		return nil, err
	}

	cfg := defaultCodecConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	payload := make([]byte, msg.LengthBytes)

	active := msg.Signals
	if muxName := msg.MultiplexerSignalName(); muxName != "" {
		muxVal, ok := data[muxName]
		if !ok {
			if cfg.strict {
				return nil, fmt.Errorf("%w: %q (multiplexer) of message %q", ErrMissingSignalValue, muxName, msg.Name)
			}
		} else {
			muxID, err := toUint64(muxVal)
			if err != nil {
				return nil, fmt.Errorf("signal %q: %w", muxName, err)
			}
			active = msg.SignalsByMultiplexerID(muxID)
		}
	}

	for _, sig := range active {
		raw, ok, err := encodeSignalValue(sig, data, cfg)
		if err != nil {
			return nil, fmt.Errorf("signal %q of message %q: %w", sig.Name, msg.Name, err)
		}
		if !ok {
			if cfg.strict {
				return nil, fmt.Errorf("%w: %q of message %q", ErrMissingSignalValue, sig.Name, msg.Name)
			}
			continue
		}
		if err := packSignal(payload, sig, raw); err != nil {
			return nil, fmt.Errorf("signal %q of message %q: %w", sig.Name, msg.Name, err)
		}
	}

	return payload, nil
}

// DecodeMessage unpacks the wire payload of the message identified by frameID into a signal
// name -> value map.
func (d *Database) DecodeMessage(frameID uint32, payload []byte, opts ...DecodeOption) (map[string]any, error) {
	msg, err := d.LookupMessage(frameID)
	if err != nil {
		return nil, err
	}
	if len(payload) < int(msg.LengthBytes) {
		return nil, fmt.Errorf("%w: message %q wants %d bytes, got %d", ErrPayloadTooShort, msg.Name, msg.LengthBytes, len(payload))
	}

	cfg := defaultCodecConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	out := make(map[string]any, len(msg.Signals))

	active := msg.Signals
	var muxID uint64
	if muxName := msg.MultiplexerSignalName(); muxName != "" {
		muxSig := msg.SignalByName(muxName)
		raw := unpackRaw(payload, muxSig)
		muxID = raw
		active = msg.SignalsByMultiplexerID(muxID)
	}

	for _, sig := range active {
		raw := unpackRaw(payload, sig)
		value := decodeSignalValue(sig, raw, cfg)
		out[sig.Name] = value
	}

	return out, nil
}

// encodeSignalValue resolves data[sig.Name] into the raw wire integer for sig. ok is false when
// the signal has no value supplied (non-strict path).
func encodeSignalValue(sig *Signal, data map[string]any, cfg codecConfig) (raw uint64, ok bool, err error) {
	v, present := data[sig.Name]
	if !present {
		return 0, false, nil
	}

	if s, isStr := v.(string); isStr {
		id, found := lookupChoiceID(sig, s)
		if !found {
			return 0, false, fmt.Errorf("%w: %q", ErrInvalidChoice, s)
		}
		raw, err = encodeRawInt(sig, id)
		return raw, true, err
	}

	if sig.IsFloat {
		f, err := toFloat64(v)
		if err != nil {
			return 0, false, err
		}
		bits, err := floatBits(sig, f)
		return bits, true, err
	}

	if cfg.scaling && sig.IsScaled() {
		f, err := toFloat64(v)
		if err != nil {
			return 0, false, err
		}
		rawSigned := int64(math.RoundToEven((f - sig.Offset) / sig.Scale))
		raw, err = encodeRawInt(sig, rawSigned)
		return raw, true, err
	}

	i, err := toInt64(v)
	if err != nil {
		return 0, false, err
	}
	raw, err = encodeRawInt(sig, i)
	return raw, true, err
}

// decodeSignalValue converts a raw wire integer back into the application value for sig.
func decodeSignalValue(sig *Signal, raw uint64, cfg codecConfig) any {
	if sig.IsFloat {
		return bitsToFloat(sig, raw)
	}

	signedOrUnsigned := rawToSigned(sig, raw)

	if cfg.decodeChoices && sig.Choices != nil {
		if name, ok := sig.Choices[signedOrUnsigned]; ok {
			return name
		}
	}

	if cfg.scaling && sig.IsScaled() {
		return float64(signedOrUnsigned)*sig.Scale + sig.Offset
	}
	if sig.IsSigned {
		return signedOrUnsigned
	}
	return raw
}

func lookupChoiceID(sig *Signal, name string) (int64, bool) {
	for id, choiceName := range sig.Choices {
		if choiceName == name {
			return id, true
		}
	}
	return 0, false
}

// encodeRawInt masks/validates v into the unsigned bit pattern stored on the wire for sig.
func encodeRawInt(sig *Signal, v int64) (uint64, error) {
	mask := bitMask(sig.LengthBits)
	if sig.IsSigned {
		if v < minSigned(sig.LengthBits) || v > maxSigned(sig.LengthBits) {
			return 0, fmt.Errorf("%w: %d", ErrValueOverflow, v)
		}
		return uint64(v) & mask, nil
	}
	if v < 0 || uint64(v) > mask {
		return 0, fmt.Errorf("%w: %d", ErrValueOverflow, v)
	}
	return uint64(v) & mask, nil
}

func floatBits(sig *Signal, f float64) (uint64, error) {
	if sig.LengthBits == 32 {
		return uint64(math.Float32bits(float32(f))), nil
	}
	return math.Float64bits(f), nil
}

func bitsToFloat(sig *Signal, raw uint64) float64 {
	if sig.LengthBits == 32 {
		return float64(math.Float32frombits(uint32(raw)))
	}
	return math.Float64frombits(raw)
}

func rawToSigned(sig *Signal, raw uint64) int64 {
	if !sig.IsSigned {
		return int64(raw)
	}
	bits := sig.LengthBits
	signBit := uint64(1) << (bits - 1)
	if raw&signBit == 0 {
		return int64(raw)
	}
	return int64(raw) - int64(uint64(1)<<bits)
}

func bitMask(length uint16) uint64 {
	if length >= 64 {
		return math.MaxUint64
	}
	return (uint64(1) << length) - 1
}

func minSigned(length uint16) int64 {
	if length >= 64 {
		return math.MinInt64
	}
	return -(int64(1) << (length - 1))
}

func maxSigned(length uint16) int64 {
	if length >= 64 {
		return math.MaxInt64
	}
	return (int64(1) << (length - 1)) - 1
}

// packSignal ORs raw's bits into payload at the positions sig occupies. For LittleEndian,
// iterator position i carries raw's bit i (the LSB first). For BigEndian, the iterator produces
// raw's MSB first, so position i carries raw's bit (length-1-i) instead.
func packSignal(payload []byte, sig *Signal, raw uint64) error {
	positions := BitPositions(sig.StartBit, sig.LengthBits, sig.ByteOrder)
	for i, pos := range positions {
		if pos.ByteIndex < 0 || pos.ByteIndex >= len(payload) {
			return fmt.Errorf("%w: bit %d lands outside payload", ErrInvalidSignal, i)
		}
		bit := (raw >> rawBitShift(sig, i)) & 1
		payload[pos.ByteIndex] |= byte(bit) << pos.BitInByte
	}
	return nil
}

// unpackRaw reassembles the raw unsigned wire integer sig occupies in payload, mirroring
// packSignal's bit-significance mapping.
func unpackRaw(payload []byte, sig *Signal) uint64 {
	positions := BitPositions(sig.StartBit, sig.LengthBits, sig.ByteOrder)
	var raw uint64
	for i, pos := range positions {
		if pos.ByteIndex < 0 || pos.ByteIndex >= len(payload) {
			continue
		}
		bit := (payload[pos.ByteIndex] >> pos.BitInByte) & 1
		raw |= uint64(bit) << rawBitShift(sig, i)
	}
	return raw
}

// rawBitShift returns the significance (0 = LSB) of raw's bit carried by iterator position i.
func rawBitShift(sig *Signal, i int) uint {
	if sig.ByteOrder == BigEndian {
		return uint(sig.LengthBits) - 1 - uint(i)
	}
	return uint(i)
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("value %v (%T) is not numeric", v, v)
	}
}

func toUint64(v any) (uint64, error) {
	i, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	if i < 0 {
		return 0, fmt.Errorf("value %d is negative", i)
	}
	return uint64(i), nil
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("value %v (%T) is not numeric", v, v)
	}
}
