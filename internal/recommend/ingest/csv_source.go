// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Column names expected in the header row.
const (
	ColumnOrderID  = "order_id"
	ColumnItemName = "item_name"
)

// Row parse errors. ErrTooManyFields gets its own rejection reason.
var (
	ErrTooManyFields     = errors.New("more fields than header columns")
	ErrUnterminatedQuote = errors.New("unterminated quoted field")
)

// CSVSource reads order rows from comma-separated text with a header row.
// Fields may be quoted and quoted fields may contain commas and newlines.
// A backslash escapes the next character, inside or outside quotes, so
// Widget\, large is one field.
type CSVSource struct {
	name string
	open func() (io.ReadCloser, error)
}

// NewCSVFileSource reads from the file at path on every Rows call.
func NewCSVFileSource(path string) *CSVSource {
	return &CSVSource{
		name: path,
		open: func() (io.ReadCloser, error) { return os.Open(path) }, //nolint:gosec // path comes from configuration
	}
}

// NewCSVReaderSource reads from r. It can be scanned once.
func NewCSVReaderSource(name string, r io.Reader) *CSVSource {
	return &CSVSource{
		name: name,
		open: func() (io.ReadCloser, error) { return io.NopCloser(r), nil },
	}
}

// Name implements Source.
func (s *CSVSource) Name() string { return s.name }

// Rows implements Source.
func (s *CSVSource) Rows(ctx context.Context, fn func(RawRow) error) error {
	rc, err := s.open()
	if err != nil {
		return fmt.Errorf("open %s: %w", s.name, err)
	}
	defer rc.Close() //nolint:errcheck // read-only

	r := newRecordReader(rc)

	header, _, err := r.read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("read header of %s: %w", s.name, err)
	}
	orderCol, itemCol, err := locateColumns(header)
	if err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	need := orderCol
	if itemCol > need {
		need = itemCol
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, line, err := r.read()
		if errors.Is(err, io.EOF) {
			return nil
		}

		var row RawRow
		switch {
		case errors.Is(err, ErrUnterminatedQuote):
			row = RawRow{Line: line, Record: record, Err: err}
		case err != nil:
			return fmt.Errorf("read %s: %w", s.name, err)
		case len(record) > len(header):
			row = RawRow{Line: line, Record: record, Err: fmt.Errorf("%w: expected %d, got %d", ErrTooManyFields, len(header), len(record))}
		case len(record) <= need:
			row = RawRow{Line: line, Record: record, Err: fmt.Errorf("expected at least %d fields, got %d", need+1, len(record))}
		default:
			row = RawRow{Line: line, OrderID: record[orderCol], ItemName: record[itemCol], Record: record}
		}

		if err := fn(row); err != nil {
			return err
		}
	}
}

func locateColumns(header []string) (orderCol, itemCol int, err error) {
	orderCol, itemCol = -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case ColumnOrderID:
			orderCol = i
		case ColumnItemName:
			itemCol = i
		}
	}
	if orderCol < 0 || itemCol < 0 {
		return 0, 0, fmt.Errorf("header %q must contain %s and %s", header, ColumnOrderID, ColumnItemName)
	}
	return orderCol, itemCol, nil
}

// recordReader splits comma-separated records. Quoting follows RFC 4180
// with lazy quotes (a quote inside an unquoted field is literal) plus a
// backslash escape character that applies everywhere. Blank lines are
// skipped.
type recordReader struct {
	r    *bufio.Reader
	line int
}

func newRecordReader(r io.Reader) *recordReader {
	return &recordReader{r: bufio.NewReader(r), line: 1}
}

// read returns the next record and the line it starts on. At the end of
// input it returns io.EOF. A record cut short by an unterminated quote is
// returned together with ErrUnterminatedQuote.
func (rr *recordReader) read() ([]string, int, error) {
	for {
		b, err := rr.r.ReadByte()
		if err != nil {
			return nil, 0, err
		}
		if b == '\n' {
			rr.line++
			continue
		}
		if b == '\r' {
			continue
		}
		if err := rr.r.UnreadByte(); err != nil {
			return nil, 0, err
		}
		break
	}

	start := rr.line
	var (
		record  []string
		field   strings.Builder
		quoted  bool
		atStart = true
	)
	flush := func() {
		record = append(record, field.String())
		field.Reset()
		atStart = true
	}

	for {
		b, err := rr.r.ReadByte()
		if errors.Is(err, io.EOF) {
			flush()
			if quoted {
				return record, start, fmt.Errorf("line %d: %w", start, ErrUnterminatedQuote)
			}
			return record, start, nil
		}
		if err != nil {
			return nil, start, err
		}

		switch {
		case b == '\\':
			atStart = false
			next, err := rr.r.ReadByte()
			if err != nil {
				field.WriteByte(b)
				continue
			}
			if next == '\n' {
				rr.line++
			}
			field.WriteByte(next)
		case quoted && b == '"':
			next, err := rr.r.ReadByte()
			if err == nil && next == '"' {
				field.WriteByte('"')
				continue
			}
			if err == nil {
				_ = rr.r.UnreadByte()
			}
			quoted = false
		case quoted:
			if b == '\n' {
				rr.line++
			}
			field.WriteByte(b)
		case b == '"' && atStart:
			quoted = true
			atStart = false
		case b == ',':
			flush()
		case b == '\n':
			rr.line++
			flush()
			return record, start, nil
		case b == '\r':
			if next, err := rr.r.Peek(1); err == nil && next[0] == '\n' {
				continue
			}
			atStart = false
			field.WriteByte(b)
		default:
			atStart = false
			field.WriteByte(b)
		}
	}
}
