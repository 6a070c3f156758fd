package dlog

import (
	"encoding/binary"
	"fmt"

	"github.com/chewxy/math32"
)

const (
	Magic1  uint32 = 0x2D5A4545
	Magic2  uint32 = 0x474F4C44
	Version uint16 = 1

	// HeaderSize is the size of the fixed file header in bytes.
	HeaderSize = 28
)

// Header is the fixed file header written once at session start.
//
// Layout (little-endian, no padding):
//
//	0  magic1      uint32
//	4  magic2      uint32
//	8  version     uint16
//	10 jitter      uint16 (0/1)
//	12 columns     uint32 (4 bits per channel: 1 voltage, 2 current, 4 power)
//	16 period      float32
//	20 duration    float32
//	24 start time  uint32 (UTC seconds)
type Header struct {
	Version   uint16
	Jitter    bool
	Columns   uint32
	Period    float32
	Duration  float32
	StartTime uint32
}

// AppendBinary appends the encoded header to b.
func (h Header) AppendBinary(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, Magic1)
	b = binary.LittleEndian.AppendUint32(b, Magic2)
	b = binary.LittleEndian.AppendUint16(b, h.Version)
	var jitter uint16
	if h.Jitter {
		jitter = 1
	}
	b = binary.LittleEndian.AppendUint16(b, jitter)
	b = binary.LittleEndian.AppendUint32(b, h.Columns)
	b = binary.LittleEndian.AppendUint32(b, math32.Float32bits(h.Period))
	b = binary.LittleEndian.AppendUint32(b, math32.Float32bits(h.Duration))
	b = binary.LittleEndian.AppendUint32(b, h.StartTime)
	return b
}

// MarshalBinary returns the HeaderSize bytes of the header.
func (h Header) MarshalBinary() ([]byte, error) {
	return h.AppendBinary(make([]byte, 0, HeaderSize)), nil
}

// UnmarshalBinary decodes a header, validating magics and version.
func (h *Header) UnmarshalBinary(b []byte) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("short header: %d bytes", len(b))
	}
	if m := binary.LittleEndian.Uint32(b[0:]); m != Magic1 {
		return fmt.Errorf("invalid magic1 0x%08X", m)
	}
	if m := binary.LittleEndian.Uint32(b[4:]); m != Magic2 {
		return fmt.Errorf("invalid magic2 0x%08X", m)
	}
	version := binary.LittleEndian.Uint16(b[8:])
	if version != Version {
		return fmt.Errorf("unsupported version %d", version)
	}

	h.Version = version
	h.Jitter = binary.LittleEndian.Uint16(b[10:]) != 0
	h.Columns = binary.LittleEndian.Uint32(b[12:])
	h.Period = math32.Float32frombits(binary.LittleEndian.Uint32(b[16:]))
	h.Duration = math32.Float32frombits(binary.LittleEndian.Uint32(b[20:]))
	h.StartTime = binary.LittleEndian.Uint32(b[24:])
	return nil
}

// RecordSize returns the number of float32 slots per record.
func (h Header) RecordSize() int {
	n := SelectionFromColumns(h.Columns).NumValues()
	if h.Jitter {
		n++
	}
	return n
}
