package kcd

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseError reports a structural problem in a KCD document.
type ParseError struct {
	Msg string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("kcd: %s: %s", e.Msg, e.Err)
	}
	return fmt.Sprintf("kcd: %s", e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

type xmlNetworkDefinition struct {
	XMLName xml.Name `xml:"NetworkDefinition"`
	Nodes   []xmlNode `xml:"Node"`
	Buses   []xmlBus  `xml:"Bus"`
}

type xmlNode struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"name,attr"`
}

type xmlBus struct {
	Name     string       `xml:"name,attr"`
	Messages []xmlMessage `xml:"Message"`
}

type xmlMessage struct {
	ID       string      `xml:"id,attr"`
	Name     string      `xml:"name,attr"`
	Length   string      `xml:"length,attr"`
	Format   string      `xml:"format,attr"`
	Notes    string      `xml:"Notes"`
	Signals  []xmlSignal `xml:"Signal"`
	Multiplex []xmlMultiplex `xml:"Multiplex"`
}

type xmlSignal struct {
	Name      string    `xml:"name,attr"`
	Offset    string    `xml:"offset,attr"`
	Length    string    `xml:"length,attr"`
	Endianess string    `xml:"endianess,attr"`
	Value     *xmlValue `xml:"Value"`
}

type xmlValue struct {
	Type      string     `xml:"type,attr"`
	Slope     string     `xml:"slope,attr"`
	Intercept string     `xml:"intercept,attr"`
	Min       string     `xml:"min,attr"`
	Max       string     `xml:"max,attr"`
	Unit      string     `xml:"unit,attr"`
	Labels    []xmlLabel `xml:"Label"`
}

type xmlLabel struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type xmlMultiplex struct {
	Name      string        `xml:"name,attr"`
	Offset    string        `xml:"offset,attr"`
	Length    string        `xml:"length,attr"`
	Endianess string        `xml:"endianess,attr"`
	MuxGroups []xmlMuxGroup `xml:"MuxGroup"`
}

type xmlMuxGroup struct {
	Count   string      `xml:"count,attr"`
	Signals []xmlSignal `xml:"Signal"`
}

// Parse decodes a KCD XML document into a flat mirror of its buses/messages/signals.
func Parse(r io.Reader) (ParsedDatabase, error) {
	var doc xmlNetworkDefinition
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return ParsedDatabase{}, &ParseError{Msg: "malformed XML", Err: err}
	}

	db := ParsedDatabase{}
	for _, n := range doc.Nodes {
		db.Nodes = append(db.Nodes, &ParsedNode{ID: n.ID, Name: n.Name})
	}

	for _, b := range doc.Buses {
		db.Buses = append(db.Buses, &ParsedBus{Name: b.Name})
		for _, xm := range b.Messages {
			msg, err := convertMessage(xm, b.Name)
			if err != nil {
				return ParsedDatabase{}, err
			}
			db.Messages = append(db.Messages, msg)
		}
	}

	return db, nil
}

func convertMessage(xm xmlMessage, busName string) (*ParsedMessage, error) {
	frameID, isExtended, err := parseFrameID(xm.ID)
	if err != nil {
		return nil, &ParseError{Msg: fmt.Sprintf("message %q has invalid id %q", xm.Name, xm.ID), Err: err}
	}
	if xm.Format == "extended" {
		isExtended = true
	}

	length := uint8(8)
	if xm.Length != "" {
		v, err := strconv.ParseUint(xm.Length, 10, 8)
		if err != nil {
			return nil, &ParseError{Msg: fmt.Sprintf("message %q has invalid length %q", xm.Name, xm.Length), Err: err}
		}
		length = uint8(v)
	}

	msg := &ParsedMessage{
		FrameID:         frameID,
		Name:            xm.Name,
		IsExtendedFrame: isExtended,
		LengthBytes:     length,
		BusName:         busName,
		Comment:         strings.TrimSpace(xm.Notes),
	}

	for _, xs := range xm.Signals {
		sig, err := convertSignal(xs)
		if err != nil {
			return nil, err
		}
		msg.Signals = append(msg.Signals, sig)
	}

	for _, xmux := range xm.Multiplex {
		muxSig, err := convertSignal(xmlSignal{Name: xmux.Name, Offset: xmux.Offset, Length: xmux.Length, Endianess: xmux.Endianess})
		if err != nil {
			return nil, err
		}
		muxSig.IsMultiplexer = true
		msg.Signals = append(msg.Signals, muxSig)

		for _, group := range xmux.MuxGroups {
			id, err := strconv.ParseUint(group.Count, 10, 64)
			if err != nil {
				return nil, &ParseError{Msg: fmt.Sprintf("MuxGroup in message %q has invalid count %q", xm.Name, group.Count), Err: err}
			}
			for _, xs := range group.Signals {
				sig, err := convertSignal(xs)
				if err != nil {
					return nil, err
				}
				sig.MultiplexerID = &id
				msg.Signals = append(msg.Signals, sig)
			}
		}
	}

	return msg, nil
}

func convertSignal(xs xmlSignal) (*ParsedSignal, error) {
	offset, err := parseUintDefault(xs.Offset, 0)
	if err != nil {
		return nil, &ParseError{Msg: fmt.Sprintf("signal %q has invalid offset %q", xs.Name, xs.Offset), Err: err}
	}
	length, err := parseUintDefault(xs.Length, 1)
	if err != nil {
		return nil, &ParseError{Msg: fmt.Sprintf("signal %q has invalid length %q", xs.Name, xs.Length), Err: err}
	}

	sig := &ParsedSignal{
		Name:       xs.Name,
		StartBit:   uint16(offset),
		LengthBits: uint16(length),
		BigEndian:  xs.Endianess == "big",
		Slope:      1,
	}

	if xs.Value != nil {
		v := xs.Value
		sig.Signed = v.Type == "signed"
		sig.IsFloat = v.Type == "single" || v.Type == "double"
		if v.Slope != "" {
			f, err := strconv.ParseFloat(v.Slope, 64)
			if err != nil {
				return nil, &ParseError{Msg: fmt.Sprintf("signal %q has invalid slope %q", xs.Name, v.Slope), Err: err}
			}
			sig.Slope = f
		}
		if v.Intercept != "" {
			f, err := strconv.ParseFloat(v.Intercept, 64)
			if err != nil {
				return nil, &ParseError{Msg: fmt.Sprintf("signal %q has invalid intercept %q", xs.Name, v.Intercept), Err: err}
			}
			sig.Intercept = f
		}
		if v.Min != "" {
			if f, err := strconv.ParseFloat(v.Min, 64); err == nil {
				sig.Min, sig.HasMin = f, true
			}
		}
		if v.Max != "" {
			if f, err := strconv.ParseFloat(v.Max, 64); err == nil {
				sig.Max, sig.HasMax = f, true
			}
		}
		sig.Unit = v.Unit
		for _, l := range v.Labels {
			id, err := strconv.ParseInt(l.Value, 10, 64)
			if err != nil {
				continue
			}
			sig.Labels = append(sig.Labels, ParsedLabel{Value: id, Name: l.Name})
		}
	}

	return sig, nil
}

func parseUintDefault(s string, def uint64) (uint64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseUint(s, 10, 32)
}

// parseFrameID accepts both decimal and "0x"-prefixed hex ids, and reports whether the id's
// high bit (the KCD/DBC extended-frame convention) is set.
func parseFrameID(s string) (uint32, bool, error) {
	if s == "" {
		return 0, false, fmt.Errorf("missing id")
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, false, err
	}
	const extendedBit = uint64(0x80000000)
	return uint32(v &^ extendedBit), v&extendedBit != 0, nil
}
