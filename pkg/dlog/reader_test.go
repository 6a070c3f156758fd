package dlog

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeFile(h Header, values []float32, extra ...byte) []byte {
	b := h.AppendBinary(nil)
	for _, v := range values {
		b = binary.LittleEndian.AppendUint32(b, math32.Float32bits(v))
	}
	return append(b, extra...)
}

func TestDecode(t *testing.T) {
	header := Header{Version: Version, Columns: 0x3, Period: 0.5, Duration: 1, StartTime: 1700000000}

	tests := []struct {
		name          string
		data          []byte
		wantRows      [][]float32
		wantTruncated bool
	}{
		{
			name:     "header only",
			data:     encodeFile(header, nil),
			wantRows: nil,
		},
		{
			name:     "two records",
			data:     encodeFile(header, []float32{12, 0.5, 12.1, 0.6}),
			wantRows: [][]float32{{12, 0.5}, {12.1, 0.6}},
		},
		{
			name:          "partial trailing record",
			data:          encodeFile(header, []float32{12, 0.5, 12.1}),
			wantRows:      [][]float32{{12, 0.5}},
			wantTruncated: true,
		},
		{
			name:          "partial float",
			data:          encodeFile(header, []float32{12, 0.5}, 1, 2),
			wantRows:      [][]float32{{12, 0.5}},
			wantTruncated: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Decode(bytes.NewReader(tt.data))
			require.NoError(t, err)
			assert.Equal(t, header, rec.Header)
			assert.Equal(t, tt.wantRows, rec.Rows)
			assert.Equal(t, tt.wantTruncated, rec.Truncated)
			assert.True(t, rec.Selection().Current[0])
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	header := Header{Version: Version, Columns: 0x1, Period: 0.5, Duration: 1}
	data := encodeFile(header, []float32{1})

	_, err := Decode(bytes.NewReader(data[:HeaderSize-1]))
	assert.Error(t, err)

	bad := bytes.Clone(data)
	bad[0] ^= 0xff
	_, err = Decode(bytes.NewReader(bad))
	assert.Error(t, err)
}

func TestReadFile(t *testing.T) {
	header := Header{Version: Version, Jitter: true, Columns: 0x4, Period: 0.5, Duration: 1}
	path := filepath.Join(t.TempDir(), "x.dlog")
	require.NoError(t, os.WriteFile(path, encodeFile(header, []float32{0.001, 6}), 0644))

	rec, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.001, 6}}, rec.Rows)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.dlog"))
	assert.Error(t, err)
}
