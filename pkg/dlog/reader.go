package dlog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chewxy/math32"
)

// Recording is a decoded log file.
type Recording struct {
	Header Header
	// Rows holds one slice per record. When the header jitter flag is set,
	// the first slot of every row is the lateness column.
	Rows [][]float32
	// Truncated is set when the file ends in the middle of a record.
	Truncated bool
}

// Selection returns the column selection described by the header.
func (r *Recording) Selection() Selection {
	return SelectionFromColumns(r.Header.Columns)
}

// Decode reads a complete log stream.
func Decode(r io.Reader) (*Recording, error) {
	br := bufio.NewReader(r)

	var raw [HeaderSize]byte
	if _, err := io.ReadFull(br, raw[:]); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	rec := &Recording{}
	if err := rec.Header.UnmarshalBinary(raw[:]); err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}

	size := rec.Header.RecordSize()
	if size == 0 {
		return rec, nil
	}

	buf := make([]byte, 4*size)
	for {
		_, err := io.ReadFull(br, buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			rec.Truncated = true
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record %d: %w", len(rec.Rows), err)
		}

		row := make([]float32, size)
		for i := range row {
			row[i] = math32.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
		}
		rec.Rows = append(rec.Rows, row)
	}

	return rec, nil
}

// ReadFile decodes the log file at path.
func ReadFile(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	return Decode(f)
}
