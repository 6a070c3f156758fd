package playback

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/psudlog/pkg/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_SaveLoad(t *testing.T) {
	v := newTestView()
	opts := testOptions()
	opts.StartTime = time.Unix(1700000000, 0).UTC()
	v.Begin(opts)
	record(v, 10)
	v.End()

	require.NoError(t, v.SetPerDiv(2, 20))
	require.NoError(t, v.SetOffset(0, -1.5))
	v.SetPosition(3)
	v.SetCursorOffset(2)

	path := filepath.Join(t.TempDir(), "run.dlog")
	require.NoError(t, v.SaveSnapshot(path))

	s, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, opts.Session.String(), s.Session)
	assert.True(t, opts.StartTime.Equal(s.StartTime))
	assert.Equal(t, float32(0.5), s.Period)
	assert.Equal(t, uint32(0x43), s.Columns)
	assert.Equal(t, uint32(10), s.Size)
	assert.Equal(t, uint32(2), s.CursorOffset)
	require.Len(t, s.Descriptors, 3)
	assert.Equal(t, "P2", s.Descriptors[2].Label)
	assert.Equal(t, float32(20), s.Descriptors[2].PerDiv)

	// a fresh view of the same session gets the display state back
	other := newTestView()
	other.Begin(opts)
	record(other, 10)
	other.End()
	other.Restore(s)

	assert.Equal(t, uint32(3), other.Position())
	assert.Equal(t, uint32(2), other.CursorOffset())
	assert.Equal(t, float32(20), other.Descriptors()[2].PerDiv)
	assert.Equal(t, float32(-1.5), other.Descriptors()[0].Offset)
}

func TestSnapshot_RestoreOtherSession(t *testing.T) {
	v := newTestView()
	v.Begin(testOptions())
	record(v, 10)
	v.End()
	v.SetPosition(5)
	require.NoError(t, v.SetPerDiv(0, 2))
	s := v.Snapshot()

	// descriptors still match by type but the navigation belongs to the old session
	other := newTestView()
	other.Begin(testOptions())
	record(other, 10)
	other.End()
	other.Restore(s)

	assert.Equal(t, uint32(0), other.Position())
	assert.Equal(t, float32(2), other.Descriptors()[0].PerDiv)
}

func TestSnapshot_RestoreIgnoresBadValues(t *testing.T) {
	v := newTestView()
	v.Begin(testOptions())

	v.Restore(Snapshot{Descriptors: []DescriptorInfo{
		{Type: 0, PerDiv: 1000, Offset: 500},
		{Type: 17, PerDiv: 1, Offset: 1},
	}})

	d := v.Descriptors()
	assert.Equal(t, float32(5), d[0].PerDiv)
	assert.Equal(t, float32(0), d[0].Offset)
}

func TestUnmarshalSnapshot_Invalid(t *testing.T) {
	_, err := UnmarshalSnapshot([]byte{0xc1})
	assert.Error(t, err)

	_, err = LoadSnapshot(filepath.Join(t.TempDir(), "missing.dlog"))
	assert.Error(t, err)
}

func TestView_LoadRecording(t *testing.T) {
	header := dlog.Header{
		Version:   dlog.Version,
		Jitter:    true,
		Columns:   0x3,
		Period:    0.5,
		Duration:  1,
		StartTime: 1700000000,
	}
	b := header.AppendBinary(nil)
	// jitter column first, NaN filler row in the middle
	rows := [][]float32{
		{0, 12, 0.5},
		{math32.NaN(), math32.NaN(), math32.NaN()},
		{0.001, 12.5, 0.75},
	}
	for _, row := range rows {
		for _, f := range row {
			b = binary.LittleEndian.AppendUint32(b, math32.Float32bits(f))
		}
	}

	rec, err := dlog.Decode(bytes.NewReader(b))
	require.NoError(t, err)

	v := newTestView()
	v.Load(rec, 2)

	assert.False(t, v.IsExecuting())
	assert.Equal(t, uint32(3), v.Size())
	assert.Equal(t, 2, v.NumValues())
	assert.Equal(t, "U1", v.Label(0))
	assert.Equal(t, "I1", v.Label(1))
	assert.Equal(t, float32(12), v.Value(0, 0))
	assert.True(t, math32.IsNaN(v.Value(1, 1)))
	assert.Equal(t, float32(0.75), v.Value(2, 1))
	assert.InDelta(t, 1.5, v.CurrentDuration(), 1e-9)
	assert.Equal(t, int64(1700000000), v.Options().StartTime.Unix())
}
