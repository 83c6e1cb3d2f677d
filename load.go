package candb

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/canlab/go-candb/dbc"
	"github.com/canlab/go-candb/kcd"
	"github.com/canlab/go-candb/sym"
)

// Load reads a database from r, sniffing its content to decide whether it is DBC, KCD or SYM.
func Load(r io.Reader) (*Database, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("candb: reading database: %w", err)
	}

	db := NewDatabase()
	if err := addByFormat(db, content); err != nil {
		return nil, err
	}
	return db, nil
}

// LoadFile opens path and calls Load on its contents.
func LoadFile(path string) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("candb: opening database file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func addByFormat(db *Database, content []byte) error {
	switch sniffFormat(content) {
	case "dbc":
		return addDBC(db, content)
	case "kcd":
		return addKCD(db, content)
	case "sym":
		return addSYM(db, content)
	default:
		return ErrUnsupportedDatabaseFormat
	}
}

func sniffFormat(content []byte) string {
	text := string(content)
	trimmed := strings.TrimSpace(text)
	head := trimmed[:min(len(trimmed), 512)]
	switch {
	case strings.HasPrefix(trimmed, "<?xml") || strings.Contains(head, "<NetworkDefinition"):
		return "kcd"
	case strings.Contains(head, "FormatVersion="):
		return "sym"
	case strings.Contains(text, "VERSION") || strings.Contains(text, "BO_ "):
		return "dbc"
	default:
		return ""
	}
}

// AddDBC parses r as DBC text and folds its contents into d.
func (d *Database) AddDBC(r io.Reader) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("candb: reading dbc: %w", err)
	}
	return addDBC(d, content)
}

// AddDBCFile opens path and calls AddDBC on its contents.
func (d *Database) AddDBCFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("candb: opening dbc file: %w", err)
	}
	defer f.Close()
	return d.AddDBC(f)
}

// AddKCDFile opens path, parses it as KCD XML and folds its contents into d.
func (d *Database) AddKCDFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("candb: opening kcd file: %w", err)
	}
	return addKCD(d, content)
}

// AddSYMFile opens path, parses it as a SYM document and folds its contents into d.
func (d *Database) AddSYMFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("candb: opening sym file: %w", err)
	}
	return addSYM(d, content)
}

func addDBC(d *Database, content []byte) error {
	parsed, err := dbc.Parse(bytes.NewReader(content))
	if err != nil {
		return wrapParseError("dbc", err)
	}
	return foldDBC(d, parsed)
}

func addKCD(d *Database, content []byte) error {
	parsed, err := kcd.Parse(bytes.NewReader(content))
	if err != nil {
		return wrapParseError("kcd", err)
	}
	return foldKCD(d, parsed)
}

func addSYM(d *Database, content []byte) error {
	parsed, err := sym.Parse(bytes.NewReader(content))
	if err != nil {
		if strings.Contains(err.Error(), "unsupported FormatVersion") {
			return fmt.Errorf("%w: %s", ErrUnsupportedSYMVersion, err.Error())
		}
		return wrapParseError("sym", err)
	}
	return foldSYM(d, parsed)
}

func wrapParseError(format string, err error) error {
	pe := &ParseError{Format: format, Msg: err.Error(), Err: err}
	switch e := err.(type) {
	case *dbc.ParseError:
		pe.Line, pe.Msg = e.Line, e.Msg
	case *sym.ParseError:
		pe.Line, pe.Msg = e.Line, e.Msg
	}
	return pe
}
