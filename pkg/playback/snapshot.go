package playback

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/itohio/psudlog/pkg/dlog"
	"github.com/vmihailenco/msgpack/v5"
)

// MetaExt is appended to a log file path to name its view sidecar.
const MetaExt = ".meta"

// Snapshot is the persisted review state of a recording.
type Snapshot struct {
	Session      string           `msgpack:"session"`
	StartTime    time.Time        `msgpack:"start_time"`
	Period       float32          `msgpack:"period"`
	Duration     float32          `msgpack:"duration"`
	Columns      uint32           `msgpack:"columns"`
	Size         uint32           `msgpack:"size"`
	TimeOffset   float64          `msgpack:"time_offset"`
	CursorOffset uint32           `msgpack:"cursor_offset"`
	Descriptors  []DescriptorInfo `msgpack:"descriptors"`
}

// DescriptorInfo is the persisted form of a Descriptor.
type DescriptorInfo struct {
	Label  string  `msgpack:"label"`
	Type   int     `msgpack:"type"`
	PerDiv float32 `msgpack:"per_div"`
	Offset float32 `msgpack:"offset"`
}

// Snapshot captures the current review state.
func (v *View) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()

	s := Snapshot{
		Session:      v.opts.Session.String(),
		StartTime:    v.opts.StartTime,
		Period:       v.opts.Params.Period,
		Duration:     v.opts.Params.Duration,
		Columns:      v.opts.Selection.Columns(),
		Size:         v.size,
		TimeOffset:   v.timeOffset,
		CursorOffset: v.cursorOffset,
		Descriptors:  make([]DescriptorInfo, len(v.descriptors)),
	}
	for i, d := range v.descriptors {
		s.Descriptors[i] = DescriptorInfo{
			Label:  d.Type.String(),
			Type:   int(d.Type),
			PerDiv: d.PerDiv,
			Offset: d.Offset,
		}
	}
	return s
}

// Restore applies the display settings of s. Descriptors are matched by type, so
// a snapshot of a different column layout only restores what still applies.
func (v *View) Restore(s Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	// Loaded recordings carry no session id
	session, err := uuid.Parse(s.Session)
	if err == nil && (session == v.opts.Session || v.opts.Session == uuid.Nil) {
		v.timeOffset = s.TimeOffset
		v.cursorOffset = s.CursorOffset
	}

	for _, info := range s.Descriptors {
		for i := range v.descriptors {
			if int(v.descriptors[i].Type) != info.Type {
				continue
			}
			if info.PerDiv >= PerDivMin && info.PerDiv <= PerDivMax {
				v.descriptors[i].PerDiv = info.PerDiv
			}
			if info.Offset >= OffsetMin && info.Offset <= OffsetMax {
				v.descriptors[i].Offset = info.Offset
			}
		}
	}
}

// Load fills the view from a decoded recording so it can be reviewed.
func (v *View) Load(rec *dlog.Recording, numChannels int) {
	opts := dlog.Options{
		NumChannels: numChannels,
		Selection:   rec.Selection(),
		Params: dlog.Params{
			Period:   rec.Header.Period,
			Duration: rec.Header.Duration,
			Jitter:   rec.Header.Jitter,
		},
		StartTime: time.Unix(int64(rec.Header.StartTime), 0).UTC(),
	}

	v.Begin(opts)
	skip := 0
	if rec.Header.Jitter {
		skip = 1
	}
	for _, row := range rec.Rows {
		v.Record(row[skip:])
	}
	v.End()
}

// MarshalSnapshot encodes s with msgpack.
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	data, err := msgpack.Marshal(&s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// UnmarshalSnapshot decodes a msgpack snapshot.
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return s, nil
}

// SaveSnapshot writes the view state next to the log file at logPath.
func (v *View) SaveSnapshot(logPath string) error {
	data, err := MarshalSnapshot(v.Snapshot())
	if err != nil {
		return err
	}
	if err := os.WriteFile(logPath+MetaExt, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads the sidecar of the log file at logPath.
func LoadSnapshot(logPath string) (Snapshot, error) {
	data, err := os.ReadFile(logPath + MetaExt)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return UnmarshalSnapshot(data)
}
