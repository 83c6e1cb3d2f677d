package dbc

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseError reports a line-located structural problem found in the input. candb wraps this into
// its own *candb.ParseError at the call site; dbc itself has no dependency on candb's error types.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("dbc: parse error at line %d: %s", e.Line, e.Msg)
}

type lineReader struct {
	scanner *bufio.Scanner
	line    int
	peeked  string
	hasPeek bool
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{scanner: bufio.NewScanner(r)}
}

func (lr *lineReader) next() (string, bool) {
	if lr.hasPeek {
		lr.hasPeek = false
		return lr.peeked, true
	}
	if !lr.scanner.Scan() {
		return "", false
	}
	lr.line++
	return lr.scanner.Text(), true
}

func (lr *lineReader) unread(s string) {
	lr.peeked = s
	lr.hasPeek = true
}

// Parse reads a DBC text stream and returns a flat mirror of its declarations.
func Parse(r io.Reader) (ParsedDatabase, error) {
	lr := newLineReader(r)
	db := ParsedDatabase{ValueTables: map[string]map[int64]string{}}

	messagesByID := map[uint32]*ParsedMessage{}
	nodesByName := map[string]*ParsedNode{}

	var current *ParsedMessage

	for {
		raw, ok := lr.next()
		if !ok {
			break
		}
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "VERSION"):
			db.Version = unquoteFirst(line[len("VERSION"):])

		case strings.HasPrefix(line, "NS_"):
			skipIndentedBlock(lr)

		case strings.HasPrefix(line, "BS_"):
			rest := strings.TrimPrefix(line, "BS_")
			rest = strings.TrimPrefix(strings.TrimSpace(rest), ":")
			rest = strings.TrimSpace(rest)
			rest = strings.TrimSuffix(rest, ":")
			if rest != "" {
				if baud, err := strconv.ParseUint(strings.TrimSpace(rest), 10, 32); err == nil {
					db.Bus = &ParsedBus{Baudrate: uint32(baud)}
				}
			}

		case strings.HasPrefix(line, "BU_"):
			rest := strings.TrimSpace(strings.TrimPrefix(line, "BU_:"))
			for _, name := range strings.Fields(rest) {
				n := &ParsedNode{Name: name}
				db.Nodes = append(db.Nodes, n)
				nodesByName[name] = n
			}

		case strings.HasPrefix(line, "BO_ "):
			msg, err := parseMessageHeader(line, lr.line)
			if err != nil {
				return ParsedDatabase{}, err
			}
			db.Messages = append(db.Messages, msg)
			messagesByID[msg.FrameID] = msg
			current = msg

		case strings.HasPrefix(line, "SG_ "):
			if current == nil {
				return ParsedDatabase{}, &ParseError{Line: lr.line, Msg: "SG_ line outside of a BO_ block"}
			}
			sig, err := parseSignal(line, lr.line)
			if err != nil {
				return ParsedDatabase{}, err
			}
			current.Signals = append(current.Signals, sig)

		case strings.HasPrefix(line, "CM_"):
			stmt, err := readStatement(lr, line)
			if err != nil {
				return ParsedDatabase{}, err
			}
			applyComment(&db, messagesByID, nodesByName, stmt)

		case strings.HasPrefix(line, "BA_DEF_DEF_"):
			stmt, err := readStatement(lr, line)
			if err != nil {
				return ParsedDatabase{}, err
			}
			applyAttributeDefault(&db, stmt)

		case strings.HasPrefix(line, "BA_DEF_"):
			stmt, err := readStatement(lr, line)
			if err != nil {
				return ParsedDatabase{}, err
			}
			applyAttributeDefinition(&db, stmt)

		case strings.HasPrefix(line, "BA_"):
			stmt, err := readStatement(lr, line)
			if err != nil {
				return ParsedDatabase{}, err
			}
			applyAttributeValue(messagesByID, stmt)

		case strings.HasPrefix(line, "VAL_TABLE_"):
			stmt, err := readStatement(lr, line)
			if err != nil {
				return ParsedDatabase{}, err
			}
			applyValueTable(&db, stmt)

		case strings.HasPrefix(line, "VAL_"):
			stmt, err := readStatement(lr, line)
			if err != nil {
				return ParsedDatabase{}, err
			}
			applyValueDescription(messagesByID, stmt)

		default:
			// Unknown top-level keyword (EV_, BO_TX_BU_, SIG_GROUP_, ...). Ignored, matching the
			// decision to skip unrecognized sections rather than fail the whole parse.
		}
	}

	return db, nil
}

// skipIndentedBlock consumes the NS_ symbol list, which is indented and has no terminator other
// than the next unindented line.
func skipIndentedBlock(lr *lineReader) {
	for {
		raw, ok := lr.next()
		if !ok {
			return
		}
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if !strings.HasPrefix(raw, " ") && !strings.HasPrefix(raw, "\t") {
			lr.unread(raw)
			return
		}
	}
}

// readStatement joins lines starting with first until an unquoted ';' terminates the statement,
// returning the joined text with the trailing ';' stripped.
func readStatement(lr *lineReader, first string) (string, error) {
	buf := first
	for !hasUnquotedSemicolon(buf) {
		next, ok := lr.next()
		if !ok {
			return "", &ParseError{Line: lr.line, Msg: "unterminated statement, expected ';'"}
		}
		buf += "\n" + next
	}
	idx := indexUnquotedSemicolon(buf)
	return strings.TrimSpace(buf[:idx]), nil
}

func hasUnquotedSemicolon(s string) bool {
	return indexUnquotedSemicolon(s) >= 0
}

func indexUnquotedSemicolon(s string) int {
	inQuote := false
	for i, r := range s {
		switch r {
		case '"':
			inQuote = !inQuote
		case ';':
			if !inQuote {
				return i
			}
		}
	}
	return -1
}

func unquoteFirst(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' {
		if end := strings.IndexByte(s[1:], '"'); end >= 0 {
			return s[1 : end+1]
		}
	}
	return s
}

func parseMessageHeader(line string, lineNo int) (*ParsedMessage, error) {
	// BO_ <id> <name>: <dlc> <sender>
	rest := strings.TrimSpace(strings.TrimPrefix(line, "BO_"))
	colonIdx := strings.Index(rest, ":")
	if colonIdx < 0 {
		return nil, &ParseError{Line: lineNo, Msg: "malformed BO_ line, missing ':'"}
	}
	head := strings.Fields(rest[:colonIdx])
	if len(head) != 2 {
		return nil, &ParseError{Line: lineNo, Msg: "malformed BO_ line, expected '<id> <name>'"}
	}
	rawID, err := strconv.ParseUint(head[0], 10, 32)
	if err != nil {
		return nil, &ParseError{Line: lineNo, Msg: "malformed BO_ frame id: " + err.Error()}
	}

	tail := strings.Fields(rest[colonIdx+1:])
	if len(tail) < 1 {
		return nil, &ParseError{Line: lineNo, Msg: "malformed BO_ line, missing dlc"}
	}
	dlc, err := strconv.ParseUint(tail[0], 10, 8)
	if err != nil {
		return nil, &ParseError{Line: lineNo, Msg: "malformed BO_ dlc: " + err.Error()}
	}
	sender := ""
	if len(tail) > 1 {
		sender = tail[1]
	}

	const extendedBit = uint64(0x80000000)
	isExtended := rawID&extendedBit != 0
	frameID := uint32(rawID &^ extendedBit)

	return &ParsedMessage{
		FrameID:         frameID,
		Name:            head[1],
		IsExtendedFrame: isExtended,
		LengthBytes:     uint8(dlc),
		SenderNode:      sender,
	}, nil
}

func parseSignal(line string, lineNo int) (*ParsedSignal, error) {
	// SG_ <name> [M|m<id>] : <start>|<length>@<order><sign> (<scale>,<offset>) [<min>|<max>] "<unit>" <receivers>
	rest := strings.TrimSpace(strings.TrimPrefix(line, "SG_"))
	colonIdx := strings.Index(rest, ":")
	if colonIdx < 0 {
		return nil, &ParseError{Line: lineNo, Msg: "malformed SG_ line, missing ':'"}
	}
	head := strings.Fields(rest[:colonIdx])
	if len(head) < 1 {
		return nil, &ParseError{Line: lineNo, Msg: "malformed SG_ line, missing name"}
	}

	sig := &ParsedSignal{Name: head[0]}
	if len(head) > 1 {
		marker := head[1]
		switch {
		case marker == "M":
			sig.IsMultiplexer = true
		case strings.HasPrefix(marker, "m"):
			id, err := strconv.ParseUint(marker[1:], 10, 64)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Msg: "malformed multiplexer id: " + err.Error()}
			}
			sig.MultiplexerID = &id
		}
	}

	body := strings.TrimSpace(rest[colonIdx+1:])

	atIdx := strings.Index(body, "@")
	if atIdx < 0 {
		return nil, &ParseError{Line: lineNo, Msg: "malformed SG_ line, missing '@'"}
	}
	bitSpec := strings.TrimSpace(body[:atIdx])
	pipeIdx := strings.Index(bitSpec, "|")
	if pipeIdx < 0 {
		return nil, &ParseError{Line: lineNo, Msg: "malformed SG_ line, missing '|'"}
	}
	startBit, err := strconv.ParseUint(bitSpec[:pipeIdx], 10, 16)
	if err != nil {
		return nil, &ParseError{Line: lineNo, Msg: "malformed start bit: " + err.Error()}
	}
	length, err := strconv.ParseUint(bitSpec[pipeIdx+1:], 10, 16)
	if err != nil {
		return nil, &ParseError{Line: lineNo, Msg: "malformed bit length: " + err.Error()}
	}
	sig.StartBit = uint16(startBit)
	sig.LengthBits = uint16(length)

	after := body[atIdx+1:]
	if len(after) < 2 {
		return nil, &ParseError{Line: lineNo, Msg: "malformed byte order/sign marker"}
	}
	sig.BigEndian = after[0] == '0'
	sig.Signed = after[1] == '-'

	parenStart := strings.Index(after, "(")
	parenEnd := strings.Index(after, ")")
	if parenStart < 0 || parenEnd < 0 || parenEnd < parenStart {
		return nil, &ParseError{Line: lineNo, Msg: "malformed (scale,offset)"}
	}
	scaleOffset := strings.Split(after[parenStart+1:parenEnd], ",")
	if len(scaleOffset) != 2 {
		return nil, &ParseError{Line: lineNo, Msg: "malformed (scale,offset)"}
	}
	sig.Scale, err = strconv.ParseFloat(strings.TrimSpace(scaleOffset[0]), 64)
	if err != nil {
		return nil, &ParseError{Line: lineNo, Msg: "malformed scale: " + err.Error()}
	}
	sig.Offset, err = strconv.ParseFloat(strings.TrimSpace(scaleOffset[1]), 64)
	if err != nil {
		return nil, &ParseError{Line: lineNo, Msg: "malformed offset: " + err.Error()}
	}

	bracketStart := strings.Index(after, "[")
	bracketEnd := strings.Index(after, "]")
	if bracketStart >= 0 && bracketEnd > bracketStart {
		minMax := strings.Split(after[bracketStart+1:bracketEnd], "|")
		if len(minMax) == 2 {
			if v, err := strconv.ParseFloat(strings.TrimSpace(minMax[0]), 64); err == nil {
				sig.Min, sig.HasMin = v, true
			}
			if v, err := strconv.ParseFloat(strings.TrimSpace(minMax[1]), 64); err == nil {
				sig.Max, sig.HasMax = v, true
			}
		}
	}

	quoteStart := strings.Index(after, "\"")
	if quoteStart >= 0 {
		if rel := strings.Index(after[quoteStart+1:], "\""); rel >= 0 {
			sig.Unit = after[quoteStart+1 : quoteStart+1+rel]
			receiverPart := strings.TrimSpace(after[quoteStart+1+rel+1:])
			for _, name := range strings.Split(receiverPart, ",") {
				name = strings.TrimSpace(name)
				if name != "" && name != "Vector__XXX" {
					sig.Receivers = append(sig.Receivers, name)
				}
			}
		}
	}

	return sig, nil
}

func splitQuoted(s string) []string {
	var out []string
	var cur strings.Builder
	inQuote := false
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case !inQuote && (r == ' ' || r == '\t' || r == '\n'):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

func unquote(tok string) string {
	if len(tok) >= 2 && strings.HasPrefix(tok, "\"") && strings.HasSuffix(tok, "\"") {
		return tok[1 : len(tok)-1]
	}
	return tok
}

func applyComment(db *ParsedDatabase, msgs map[uint32]*ParsedMessage, nodes map[string]*ParsedNode, stmt string) {
	toks := splitQuoted(strings.TrimPrefix(stmt, "CM_"))
	toks = trimLeadingEmpty(toks)
	if len(toks) == 0 {
		return
	}
	switch toks[0] {
	case "BU_":
		if len(toks) >= 3 {
			if n, ok := nodes[toks[1]]; ok {
				n.Comment = unquote(toks[2])
			}
		}
	case "BO_":
		if len(toks) >= 3 {
			id, err := strconv.ParseUint(toks[1], 10, 32)
			if err == nil {
				if m, ok := msgs[uint32(id)&^0x80000000]; ok {
					m.Comment = unquote(toks[2])
				}
			}
		}
	case "SG_":
		if len(toks) >= 4 {
			id, err := strconv.ParseUint(toks[1], 10, 32)
			if err == nil {
				if m, ok := msgs[uint32(id)&^0x80000000]; ok {
					for _, s := range m.Signals {
						if s.Name == toks[2] {
							s.Comment = unquote(toks[3])
						}
					}
				}
			}
		}
	default:
		if db.Version == "" {
			// bare `CM_ "..."` database-level comment; nothing in the schema models it beyond
			// Version, so it is intentionally dropped (matches cantools, which has no slot for it
			// in the data model either).
			_ = toks
		}
	}
}

func trimLeadingEmpty(toks []string) []string {
	for len(toks) > 0 && strings.TrimSpace(toks[0]) == "" {
		toks = toks[1:]
	}
	return toks
}

func applyAttributeDefinition(db *ParsedDatabase, stmt string) {
	toks := splitQuoted(strings.TrimPrefix(stmt, "BA_DEF_"))
	toks = trimLeadingEmpty(toks)
	if len(toks) == 0 {
		return
	}
	object := ""
	idx := 0
	switch toks[0] {
	case "BU_", "BO_", "SG_", "EV_":
		object = toks[0]
		idx = 1
	}
	if idx >= len(toks) {
		return
	}
	name := unquote(toks[idx])
	rawType := strings.Join(toks[idx+1:], " ")
	db.Attributes = append(db.Attributes, AttributeDefinition{Object: object, Name: name, RawType: rawType})
}

func applyAttributeDefault(db *ParsedDatabase, stmt string) {
	toks := splitQuoted(strings.TrimPrefix(stmt, "BA_DEF_DEF_"))
	toks = trimLeadingEmpty(toks)
	if len(toks) < 2 {
		return
	}
	name := unquote(toks[0])
	value := strings.Join(toks[1:], " ")
	for i := range db.Attributes {
		if db.Attributes[i].Name == name {
			db.Attributes[i].Default = value
			return
		}
	}
}

func applyAttributeValue(msgs map[uint32]*ParsedMessage, stmt string) {
	toks := splitQuoted(strings.TrimPrefix(stmt, "BA_"))
	toks = trimLeadingEmpty(toks)
	if len(toks) < 2 {
		return
	}
	name := unquote(toks[0])
	rest := toks[1:]

	switch rest[0] {
	case "BO_":
		if len(rest) < 3 {
			return
		}
		id, err := strconv.ParseUint(rest[1], 10, 32)
		if err != nil {
			return
		}
		m, ok := msgs[uint32(id)&^0x80000000]
		if !ok {
			return
		}
		value := strings.Join(rest[2:], " ")
		applyKnownMessageAttribute(m, name, value)
	case "SG_":
		if len(rest) < 4 {
			return
		}
		id, err := strconv.ParseUint(rest[1], 10, 32)
		if err != nil {
			return
		}
		m, ok := msgs[uint32(id)&^0x80000000]
		if !ok {
			return
		}
		for _, s := range m.Signals {
			if s.Name == rest[2] {
				if s.RawAttributes == nil {
					s.RawAttributes = map[string]string{}
				}
				s.RawAttributes[name] = strings.Join(rest[3:], " ")
			}
		}
	case "BU_":
		// node-level attributes are not modeled beyond comments; dropped silently.
	default:
		// global attribute value; nothing to attach it to in the schema.
	}
}

func applyKnownMessageAttribute(m *ParsedMessage, name, value string) {
	switch name {
	case "GenMsgCycleTime":
		if v, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32); err == nil {
			m.CycleTime = uint32(v)
			return
		}
	case "GenMsgSendType":
		m.SendType = strings.TrimSpace(value)
		return
	}
	if m.RawAttributes == nil {
		m.RawAttributes = map[string]string{}
	}
	m.RawAttributes[name] = value
}

func applyValueTable(db *ParsedDatabase, stmt string) {
	toks := splitQuoted(strings.TrimPrefix(stmt, "VAL_TABLE_"))
	toks = trimLeadingEmpty(toks)
	if len(toks) < 1 {
		return
	}
	name := toks[0]
	table := parseChoicesTokens(toks[1:])
	db.ValueTables[name] = table
}

func applyValueDescription(msgs map[uint32]*ParsedMessage, stmt string) {
	toks := splitQuoted(strings.TrimPrefix(stmt, "VAL_"))
	toks = trimLeadingEmpty(toks)
	if len(toks) < 2 {
		return
	}
	id, err := strconv.ParseUint(toks[0], 10, 32)
	if err != nil {
		return
	}
	m, ok := msgs[uint32(id)&^0x80000000]
	if !ok {
		return
	}
	sigName := toks[1]
	for _, s := range m.Signals {
		if s.Name == sigName {
			s.Choices = parseChoicesTokens(toks[2:])
		}
	}
}

func parseChoicesTokens(toks []string) map[int64]string {
	choices := map[int64]string{}
	for i := 0; i+1 < len(toks); i += 2 {
		id, err := strconv.ParseInt(toks[i], 10, 64)
		if err != nil {
			continue
		}
		choices[id] = unquote(toks[i+1])
	}
	return choices
}
