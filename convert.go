package candb

import (
	"fmt"
	"strings"

	"github.com/canlab/go-candb/dbc"
	"github.com/canlab/go-candb/kcd"
	"github.com/canlab/go-candb/sym"
)

func foldDBC(d *Database, parsed dbc.ParsedDatabase) error {
	if d.Version == "" {
		d.Version = parsed.Version
	}
	if parsed.Bus != nil {
		d.AddBus(&Bus{Baudrate: parsed.Bus.Baudrate})
	}
	for _, n := range parsed.Nodes {
		d.AddNode(&Node{Name: n.Name, Comment: n.Comment})
	}
	for _, a := range parsed.Attributes {
		d.Attributes = append(d.Attributes, AttributeDefinition{
			Object: a.Object, Name: a.Name, RawType: a.RawType, Default: a.Default,
		})
	}

	for _, m := range parsed.Messages {
		msg := &Message{
			FrameID:         m.FrameID,
			Name:            m.Name,
			IsExtendedFrame: m.IsExtendedFrame,
			LengthBytes:     m.LengthBytes,
			Nodes:           nodeList(m.SenderNode),
			Comment:         m.Comment,
			SendType:        m.SendType,
			CycleTime:       m.CycleTime,
			RawAttributes:   m.RawAttributes,
		}
		for _, s := range m.Signals {
			msg.Signals = append(msg.Signals, &Signal{
				Name:          s.Name,
				StartBit:      s.StartBit,
				LengthBits:    s.LengthBits,
				ByteOrder:     byteOrderOf(s.BigEndian),
				IsSigned:      s.Signed,
				Scale:         nonZero(s.Scale, 1),
				Offset:        s.Offset,
				Min:           optionalFloat(s.HasMin, s.Min),
				Max:           optionalFloat(s.HasMax, s.Max),
				Unit:          s.Unit,
				Choices:       s.Choices,
				IsMultiplexer: s.IsMultiplexer,
				MultiplexerID: s.MultiplexerID,
				Nodes:         s.Receivers,
				Comment:       s.Comment,
				RawAttributes: s.RawAttributes,
			})
		}
		if err := d.AddMessage(msg); err != nil {
			return err
		}
	}
	return nil
}

func foldKCD(d *Database, parsed kcd.ParsedDatabase) error {
	for _, n := range parsed.Nodes {
		d.AddNode(&Node{Name: n.Name})
	}
	for _, b := range parsed.Buses {
		d.AddBus(&Bus{Name: b.Name})
	}
	for _, m := range parsed.Messages {
		msg := &Message{
			FrameID:         m.FrameID,
			Name:            m.Name,
			IsExtendedFrame: m.IsExtendedFrame,
			LengthBytes:     m.LengthBytes,
			BusName:         m.BusName,
			Comment:         m.Comment,
		}
		for _, s := range m.Signals {
			choices := map[int64]string{}
			for _, l := range s.Labels {
				choices[l.Value] = l.Name
			}
			if len(choices) == 0 {
				choices = nil
			}
			msg.Signals = append(msg.Signals, &Signal{
				Name:          s.Name,
				StartBit:      s.StartBit,
				LengthBits:    s.LengthBits,
				ByteOrder:     byteOrderOf(s.BigEndian),
				IsSigned:      s.Signed,
				IsFloat:       s.IsFloat,
				Scale:         nonZero(s.Slope, 1),
				Offset:        s.Intercept,
				Min:           optionalFloat(s.HasMin, s.Min),
				Max:           optionalFloat(s.HasMax, s.Max),
				Unit:          s.Unit,
				Choices:       choices,
				IsMultiplexer: s.IsMultiplexer,
				MultiplexerID: s.MultiplexerID,
			})
		}
		if err := d.AddMessage(msg); err != nil {
			return err
		}
	}
	return nil
}

func foldSYM(d *Database, parsed sym.ParsedDatabase) error {
	for _, m := range parsed.Messages {
		msg := &Message{
			FrameID:         m.FrameID,
			Name:            m.Name,
			IsExtendedFrame: m.IsExtendedFrame,
			LengthBytes:     m.LengthBytes,
		}
		for _, s := range m.Signals {
			var choices map[int64]string
			if s.EnumName != "" {
				if enum, ok := parsed.Enums[s.EnumName]; ok {
					choices = map[int64]string{}
					for _, l := range enum.Labels {
						choices[l.Value] = l.Name
					}
				}
			}
			msg.Signals = append(msg.Signals, &Signal{
				Name:          s.Name,
				StartBit:      s.StartBit,
				LengthBits:    s.LengthBits,
				ByteOrder:     byteOrderOf(s.BigEndian),
				IsSigned:      s.Signed,
				IsFloat:       s.IsFloat,
				Scale:         nonZero(s.Scale, 1),
				Offset:        s.Offset,
				Min:           optionalFloat(s.HasMin, s.Min),
				Max:           optionalFloat(s.HasMax, s.Max),
				Unit:          s.Unit,
				Choices:       choices,
				IsMultiplexer: s.IsMultiplexer,
				MultiplexerID: s.MultiplexerID,
			})
		}
		if err := d.AddMessage(msg); err != nil {
			return err
		}
	}
	return nil
}

// AsDBCString renders d as DBC text. Byte-exact round-trip is only guaranteed for databases that
// were themselves parsed from a conforming DBC writer's output; KCD/SYM-sourced databases can
// still be rendered (nothing in the model is DBC-specific) but are not guaranteed to reproduce
// any particular source byte for byte.
func (d *Database) AsDBCString() (string, error) {
	parsed := dbc.ParsedDatabase{
		Version:     d.Version,
		ValueTables: map[string]map[int64]string{},
	}
	if len(d.Buses) > 0 {
		parsed.Bus = &dbc.ParsedBus{Baudrate: d.Buses[0].Baudrate}
	}
	for _, n := range d.Nodes {
		parsed.Nodes = append(parsed.Nodes, &dbc.ParsedNode{Name: n.Name, Comment: n.Comment})
	}
	for _, a := range d.Attributes {
		parsed.Attributes = append(parsed.Attributes, dbc.AttributeDefinition{
			Object: a.Object, Name: a.Name, RawType: a.RawType, Default: a.Default,
		})
	}

	for _, m := range d.SortedMessages() {
		pm := &dbc.ParsedMessage{
			FrameID:         m.FrameID,
			Name:            m.Name,
			IsExtendedFrame: m.IsExtendedFrame,
			LengthBytes:     m.LengthBytes,
			SenderNode:      firstOrEmpty(m.Nodes),
			Comment:         m.Comment,
			CycleTime:       m.CycleTime,
			SendType:        m.SendType,
			RawAttributes:   m.RawAttributes,
		}
		for _, s := range m.Signals {
			pm.Signals = append(pm.Signals, &dbc.ParsedSignal{
				Name:          s.Name,
				StartBit:      s.StartBit,
				LengthBits:    s.LengthBits,
				BigEndian:     s.ByteOrder == BigEndian,
				Signed:        s.IsSigned,
				Scale:         s.Scale,
				Offset:        s.Offset,
				HasMin:        s.Min != nil,
				Min:           derefOr(s.Min, 0),
				HasMax:        s.Max != nil,
				Max:           derefOr(s.Max, 0),
				Unit:          s.Unit,
				Choices:       s.Choices,
				IsMultiplexer: s.IsMultiplexer,
				MultiplexerID: s.MultiplexerID,
				Receivers:     s.Nodes,
				Comment:       s.Comment,
				RawAttributes: s.RawAttributes,
			})
		}
		parsed.Messages = append(parsed.Messages, pm)
	}

	var sb strings.Builder
	if err := dbc.Write(&sb, parsed); err != nil {
		return "", fmt.Errorf("candb: rendering dbc string: %w", err)
	}
	return sb.String(), nil
}

func byteOrderOf(bigEndian bool) ByteOrder {
	if bigEndian {
		return BigEndian
	}
	return LittleEndian
}

func nodeList(name string) []string {
	if name == "" || name == "Vector__XXX" {
		return nil
	}
	return []string{name}
}

func nonZero(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

func optionalFloat(has bool, v float64) *float64 {
	if !has {
		return nil
	}
	return &v
}

func derefOr(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}

func firstOrEmpty(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}
