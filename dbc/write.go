package dbc

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Write renders db as DBC text in the canonical section order: VERSION, BU_, BO_/SG_, CM_,
// BA_DEF_/BA_DEF_DEF_/BA_, VAL_. This matches the order a conforming DBC writer (and cantools'
// own `as_dbc_string`) uses, so that a database parsed from such a writer's output and immediately
// re-emitted reproduces it byte for byte.
func Write(w io.Writer, db ParsedDatabase) error {
	bw := &bufWriter{w: w}

	bw.printf("VERSION \"%s\"\n", db.Version)
	bw.printf("\n\nNS_ : \n\n")
	if db.Bus != nil {
		bw.printf("BS_: %d\n\n", db.Bus.Baudrate)
	} else {
		bw.printf("BS_:\n\n")
	}

	names := make([]string, len(db.Nodes))
	for i, n := range db.Nodes {
		names[i] = n.Name
	}
	bw.printf("BU_: %s\n", strings.Join(names, " "))

	for _, m := range db.Messages {
		writeMessage(bw, m)
	}

	writeComments(bw, db)
	writeAttributeDefinitions(bw, db)
	writeAttributeValues(bw, db)
	writeValueTables(bw, db)

	return bw.err
}

type bufWriter struct {
	w   io.Writer
	err error
}

func (b *bufWriter) printf(format string, args ...any) {
	if b.err != nil {
		return
	}
	_, b.err = fmt.Fprintf(b.w, format, args...)
}

func writeMessage(bw *bufWriter, m *ParsedMessage) {
	rawID := uint64(m.FrameID)
	if m.IsExtendedFrame {
		rawID |= 0x80000000
	}
	bw.printf("\nBO_ %d %s: %d %s\n", rawID, m.Name, m.LengthBytes, emptyToVectorXXX(m.SenderNode))
	for _, s := range m.Signals {
		writeSignal(bw, s)
	}
}

func writeSignal(bw *bufWriter, s *ParsedSignal) {
	marker := ""
	switch {
	case s.IsMultiplexer:
		marker = " M"
	case s.MultiplexerID != nil:
		marker = fmt.Sprintf(" m%d", *s.MultiplexerID)
	}

	order := "1"
	if s.BigEndian {
		order = "0"
	}
	sign := "+"
	if s.Signed {
		sign = "-"
	}

	receivers := "Vector__XXX"
	if len(s.Receivers) > 0 {
		receivers = strings.Join(s.Receivers, ",")
	}

	minV, maxV := s.Min, s.Max
	bw.printf(" SG_ %s%s : %d|%d@%s%s (%s,%s) [%s|%s] \"%s\" %s\n",
		s.Name, marker, s.StartBit, s.LengthBits, order, sign,
		formatFloat(s.Scale), formatFloat(s.Offset),
		formatFloat(minV), formatFloat(maxV), s.Unit, receivers)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func emptyToVectorXXX(s string) string {
	if s == "" {
		return "Vector__XXX"
	}
	return s
}

func writeComments(bw *bufWriter, db ParsedDatabase) {
	for _, n := range db.Nodes {
		if n.Comment != "" {
			bw.printf("\nCM_ BU_ %s \"%s\";\n", n.Name, n.Comment)
		}
	}
	for _, m := range db.Messages {
		if m.Comment != "" {
			bw.printf("\nCM_ BO_ %d \"%s\";\n", m.FrameID, m.Comment)
		}
		for _, s := range m.Signals {
			if s.Comment != "" {
				bw.printf("\nCM_ SG_ %d %s \"%s\";\n", m.FrameID, s.Name, s.Comment)
			}
		}
	}
}

func writeAttributeDefinitions(bw *bufWriter, db ParsedDatabase) {
	for _, a := range db.Attributes {
		obj := a.Object
		if obj != "" {
			obj += " "
		}
		bw.printf("\nBA_DEF_ %s\"%s\" %s;\n", obj, a.Name, a.RawType)
	}
	for _, a := range db.Attributes {
		if a.Default != "" {
			bw.printf("BA_DEF_DEF_ \"%s\" %s;\n", a.Name, a.Default)
		}
	}
}

func writeAttributeValues(bw *bufWriter, db ParsedDatabase) {
	for _, m := range db.Messages {
		keys := sortedKeys(m.RawAttributes)
		for _, name := range keys {
			bw.printf("BA_ \"%s\" BO_ %d %s;\n", name, m.FrameID, m.RawAttributes[name])
		}
		if m.CycleTime != 0 {
			bw.printf("BA_ \"GenMsgCycleTime\" BO_ %d %d;\n", m.FrameID, m.CycleTime)
		}
		if m.SendType != "" {
			bw.printf("BA_ \"GenMsgSendType\" BO_ %d %s;\n", m.FrameID, m.SendType)
		}
		for _, s := range m.Signals {
			sigKeys := sortedKeys(s.RawAttributes)
			for _, name := range sigKeys {
				bw.printf("BA_ \"%s\" SG_ %d %s %s;\n", name, m.FrameID, s.Name, s.RawAttributes[name])
			}
		}
	}
}

func writeValueTables(bw *bufWriter, db ParsedDatabase) {
	for _, m := range db.Messages {
		for _, s := range m.Signals {
			if len(s.Choices) == 0 {
				continue
			}
			ids := make([]int64, 0, len(s.Choices))
			for id := range s.Choices {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
			var parts []string
			for _, id := range ids {
				parts = append(parts, fmt.Sprintf("%d \"%s\"", id, s.Choices[id]))
			}
			bw.printf("VAL_ %d %s %s;\n", m.FrameID, s.Name, strings.Join(parts, " "))
		}
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
