package sym

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseError reports a line-located structural problem in a SYM document.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("sym: parse error at line %d: %s", e.Line, e.Msg)
}

// ErrUnsupportedFormatVersion is returned when the document's FormatVersion is not 6.0, the only
// version this parser understands. Parse wraps it with the declared version via fmt.Errorf/%w;
// candb reports such an error as its own ErrUnsupportedSYMVersion.
var ErrUnsupportedFormatVersion = errors.New("sym: unsupported FormatVersion, only \"6.0\" is supported")

// Parse reads a PCAN-View SYM document. Only FormatVersion 6.0 is accepted; any other declared
// version fails immediately with an error wrapping ErrUnsupportedFormatVersion. Sections other
// than {SEND}/{RECEIVE}/{SENDRECEIVE}/{ENUMS} are skipped.
func Parse(r io.Reader) (ParsedDatabase, error) {
	scanner := bufio.NewScanner(r)
	db := ParsedDatabase{Enums: map[string]*ParsedEnum{}}

	lineNo := 0
	section := ""
	var current *ParsedMessage

	sawVersion := false

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}

		if !sawVersion {
			if !strings.HasPrefix(line, "FormatVersion=") {
				continue
			}
			version := strings.TrimSpace(strings.TrimPrefix(line, "FormatVersion="))
			if version != "6.0" {
				return ParsedDatabase{}, fmt.Errorf("%w: got %q", ErrUnsupportedFormatVersion, version)
			}
			db.FormatVersion = version
			sawVersion = true
			continue
		}

		if strings.HasPrefix(line, "{") && strings.HasSuffix(line, "}") {
			section = strings.Trim(line, "{}")
			current = nil
			continue
		}

		switch section {
		case "ENUMS":
			if err := parseEnumLine(&db, line, lineNo); err != nil {
				return ParsedDatabase{}, err
			}

		case "SEND", "RECEIVE", "SENDRECEIVE":
			if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
				current = &ParsedMessage{
					Name:       strings.Trim(line, "[]"),
					IsReceived: section != "SEND",
				}
				db.Messages = append(db.Messages, current)
				continue
			}
			if current == nil {
				continue
			}
			if err := applyMessageLine(current, line, lineNo); err != nil {
				return ParsedDatabase{}, err
			}

		default:
			// Unrecognized section ({TITLE}, {OPTIONS}, ...): skipped silently.
		}
	}

	if !sawVersion {
		return ParsedDatabase{}, &ParseError{Line: 0, Msg: "missing FormatVersion declaration"}
	}

	return db, nil
}

func applyMessageLine(m *ParsedMessage, line string, lineNo int) error {
	switch {
	case strings.HasPrefix(line, "ID="):
		idText := strings.TrimSpace(strings.TrimPrefix(line, "ID="))
		idText = strings.TrimSuffix(idText, "h")
		id, err := strconv.ParseUint(idText, 16, 32)
		if err != nil {
			return &ParseError{Line: lineNo, Msg: "malformed ID: " + err.Error()}
		}
		const extendedBit = uint64(0x80000000)
		m.FrameID = uint32(id &^ extendedBit)
		m.IsExtendedFrame = id&extendedBit != 0

	case strings.HasPrefix(line, "Len="):
		lenText := strings.TrimSpace(strings.TrimPrefix(line, "Len="))
		v, err := strconv.ParseUint(lenText, 10, 8)
		if err != nil {
			return &ParseError{Line: lineNo, Msg: "malformed Len: " + err.Error()}
		}
		m.LengthBytes = uint8(v)

	case strings.HasPrefix(line, "Mux="):
		sig, err := parseVarOrMux(strings.TrimPrefix(line, "Mux="), lineNo)
		if err != nil {
			return err
		}
		sig.IsMultiplexer = true
		m.Signals = append(m.Signals, sig)

	case strings.HasPrefix(line, "Var="):
		sig, err := parseVarOrMux(strings.TrimPrefix(line, "Var="), lineNo)
		if err != nil {
			return err
		}
		m.Signals = append(m.Signals, sig)
	}
	return nil
}

// parseVarOrMux parses `<name> <type> <start>,<length> [/flag ...]`.
func parseVarOrMux(rest string, lineNo int) (*ParsedSignal, error) {
	fields := strings.Fields(rest)
	if len(fields) < 3 {
		return nil, &ParseError{Line: lineNo, Msg: "malformed Var/Mux line: " + rest}
	}

	sig := &ParsedSignal{Name: fields[0], Scale: 1}

	typ := strings.ToLower(fields[1])
	switch typ {
	case "signed":
		sig.Signed = true
	case "float":
		sig.IsFloat = true
	case "double":
		sig.IsFloat = true
	}

	startLen := strings.SplitN(fields[2], ",", 2)
	if len(startLen) != 2 {
		return nil, &ParseError{Line: lineNo, Msg: "malformed start,length: " + fields[2]}
	}
	start, err := strconv.ParseUint(startLen[0], 10, 16)
	if err != nil {
		return nil, &ParseError{Line: lineNo, Msg: "malformed start bit: " + err.Error()}
	}
	length, err := strconv.ParseUint(startLen[1], 10, 16)
	if err != nil {
		return nil, &ParseError{Line: lineNo, Msg: "malformed bit length: " + err.Error()}
	}
	sig.StartBit = uint16(start)
	sig.LengthBits = uint16(length)

	for _, tok := range fields[3:] {
		if !strings.HasPrefix(tok, "/") {
			continue
		}
		applyFlag(sig, tok[1:])
	}

	return sig, nil
}

func applyFlag(sig *ParsedSignal, flag string) {
	parts := strings.SplitN(flag, ":", 2)
	key := parts[0]
	value := ""
	if len(parts) == 2 {
		value = parts[1]
	}
	switch key {
	case "u":
		sig.Unit = value
	case "f":
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			sig.Scale = v
		}
	case "o":
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			sig.Offset = v
		}
	case "min":
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			sig.Min, sig.HasMin = v, true
		}
	case "max":
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			sig.Max, sig.HasMax = v, true
		}
	case "e":
		sig.EnumName = value
	case "mux":
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			sig.MultiplexerID = &v
		}
	case "motorola":
		sig.BigEndian = true
	}
}

func parseEnumLine(db *ParsedDatabase, line string, lineNo int) error {
	// enum Name(0="A", 1="B")
	if !strings.HasPrefix(line, "enum ") {
		return nil
	}
	rest := strings.TrimSpace(strings.TrimPrefix(line, "enum"))
	parenStart := strings.Index(rest, "(")
	parenEnd := strings.LastIndex(rest, ")")
	if parenStart < 0 || parenEnd < 0 || parenEnd < parenStart {
		return &ParseError{Line: lineNo, Msg: "malformed enum line: " + line}
	}
	name := strings.TrimSpace(rest[:parenStart])
	body := rest[parenStart+1 : parenEnd]

	enum := &ParsedEnum{Name: name}
	for _, entry := range splitTopLevelComma(body) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		eq := strings.Index(entry, "=")
		if eq < 0 {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(entry[:eq]), 10, 64)
		if err != nil {
			continue
		}
		label := strings.Trim(strings.TrimSpace(entry[eq+1:]), "\"")
		enum.Labels = append(enum.Labels, ParsedLabel{Value: id, Name: label})
	}
	db.Enums[name] = enum
	return nil
}

func splitTopLevelComma(s string) []string {
	var out []string
	inQuote := false
	start := 0
	for i, r := range s {
		switch r {
		case '"':
			inQuote = !inQuote
		case ',':
			if !inQuote {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}
