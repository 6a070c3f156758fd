package dlog

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader_Layout(t *testing.T) {
	h := Header{
		Version:   Version,
		Jitter:    true,
		Columns:   0x41,
		Period:    0.1,
		Duration:  0.3,
		StartTime: 1709294400,
	}

	b, err := h.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, HeaderSize)

	assert.Equal(t, uint32(0x2D5A4545), binary.LittleEndian.Uint32(b[0:]))
	assert.Equal(t, uint32(0x474F4C44), binary.LittleEndian.Uint32(b[4:]))
	assert.Equal(t, []byte{0x45, 0x45, 0x5A, 0x2D}, b[0:4]) // "EEZ-"
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(b[8:]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(b[10:]))
	assert.Equal(t, uint32(0x41), binary.LittleEndian.Uint32(b[12:]))
	assert.Equal(t, math.Float32bits(0.1), binary.LittleEndian.Uint32(b[16:]))
	assert.Equal(t, math.Float32bits(0.3), binary.LittleEndian.Uint32(b[20:]))
	assert.Equal(t, uint32(1709294400), binary.LittleEndian.Uint32(b[24:]))
}

func TestHeader_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		h    Header
	}{
		{
			name: "voltage on channel 1",
			h:    Header{Version: Version, Columns: 1, Period: 0.1, Duration: 0.3, StartTime: 1},
		},
		{
			name: "all columns with jitter",
			h:    Header{Version: Version, Jitter: true, Columns: 0x777777, Period: 0.02, Duration: 86400, StartTime: 0xFFFFFFFF},
		},
		{
			name: "power on channel 2",
			h:    Header{Version: Version, Columns: 0x40, Period: 120, Duration: 3600, StartTime: 1700000000},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := tt.h.MarshalBinary()
			require.NoError(t, err)

			var got Header
			require.NoError(t, got.UnmarshalBinary(b))
			assert.Equal(t, tt.h, got)
		})
	}
}

func TestHeader_UnmarshalErrors(t *testing.T) {
	valid, err := Header{Version: Version, Columns: 1, Period: 1, Duration: 1}.MarshalBinary()
	require.NoError(t, err)

	badMagic1 := append([]byte(nil), valid...)
	badMagic1[0] = 0

	badMagic2 := append([]byte(nil), valid...)
	badMagic2[7] = 0

	badVersion := append([]byte(nil), valid...)
	badVersion[8] = 2

	tests := []struct {
		name string
		b    []byte
	}{
		{name: "short", b: valid[:HeaderSize-1]},
		{name: "magic1", b: badMagic1},
		{name: "magic2", b: badMagic2},
		{name: "version", b: badVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var h Header
			assert.Error(t, h.UnmarshalBinary(tt.b))
		})
	}
}

func TestHeader_RecordSize(t *testing.T) {
	assert.Equal(t, 1, Header{Columns: 1}.RecordSize())
	assert.Equal(t, 4, Header{Columns: 0x17}.RecordSize())
	assert.Equal(t, 2, Header{Columns: 0x40, Jitter: true}.RecordSize())
	assert.Equal(t, 0, Header{}.RecordSize())
}

func TestSelection_Columns(t *testing.T) {
	var s Selection
	assert.False(t, s.Any())
	assert.Equal(t, uint32(0), s.Columns())

	s.Set(0, KindVoltage, true)
	s.Set(1, KindPower, true)
	s.Set(2, KindCurrent, true)
	assert.True(t, s.Any())
	assert.Equal(t, uint32(0x241), s.Columns())
	assert.Equal(t, 3, s.NumValues())
	assert.Equal(t, s, SelectionFromColumns(s.Columns()))
}

func TestParseTriggerSource(t *testing.T) {
	for _, name := range []string{"immediate", "bus", "manual", "pin1", "pin2"} {
		src, err := ParseTriggerSource(name)
		require.NoError(t, err)
		assert.Equal(t, name, src.String())
	}

	src, err := ParseTriggerSource(" Manual ")
	require.NoError(t, err)
	assert.Equal(t, TriggerManual, src)

	_, err = ParseTriggerSource("timer")
	assert.ErrorIs(t, err, ErrOutOfRange)
}
