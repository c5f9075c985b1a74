// Package seedio reads and writes the warehouse seed tables as CSV files:
// one file per entity, a header row, dates as YYYY-MM-DD, timestamps as
// "YYYY-MM-DD HH:MM:SS", booleans as True/False and nulls as empty fields.
package seedio

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrInputNotFound = errors.New("input file not found")
	ErrEmptyInput    = errors.New("input file has no header row")
	ErrUnknownColumn = errors.New("column not found")
)

// Table is a named, header-first tabular dataset. Name is the file stem,
// e.g. "raw_screenings".
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

// FileName is the CSV file the table is stored in.
func (t Table) FileName() string {
	return t.Name + ".csv"
}

// Column returns the index of name in the header.
func (t Table) Column(name string) (int, error) {
	for i, h := range t.Header {
		if h == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%s in %s: %w", name, t.Name, ErrUnknownColumn)
}

// Encode renders t as CSV bytes with "\n" line endings.
func (t Table) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write writes the header and all rows as CSV.
func (t Table) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("writing %s header: %w", t.Name, err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("writing %s rows: %w", t.Name, err)
	}
	return nil
}

// EncodeRows renders rows without a header.
func EncodeRows(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("encoding rows: %w", err)
	}
	return buf.Bytes(), nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode parses CSV bytes into a Table. Short rows are padded and long rows
// truncated to the header width.
func Decode(name string, data []byte) (*Table, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: %w", name, ErrEmptyInput)
		}
		return nil, fmt.Errorf("reading %s header: %w", name, err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}

	t := &Table{Name: name, Header: header}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		row := make([]string, len(header))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
