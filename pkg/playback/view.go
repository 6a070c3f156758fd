package playback

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chewxy/math32"
	"github.com/itohio/psudlog/pkg/config"
	"github.com/itohio/psudlog/pkg/dlog"
)

const (
	NumHorzDivisions = 10
	NumVertDivisions = 6
	// MaxVisibleValues is the number of value traces the graph can show at once.
	MaxVisibleValues = 4

	PerDivMin = 0.01
	PerDivMax = 100.0
	OffsetMin = -100.0
	OffsetMax = 100.0
)

// ErrOutOfRange is returned for invalid descriptor indices or values.
var ErrOutOfRange = errors.New("value out of range")

var _ dlog.Recorder = (*View)(nil)

// ValueType identifies a logged column: channel*3 + kind.
type ValueType int

// NewValueType returns the type of quantity kind on channel (zero based).
func NewValueType(channel int, kind dlog.Kind) ValueType {
	return ValueType(channel*3 + int(kind))
}

func (t ValueType) Channel() int {
	return int(t) / 3
}

func (t ValueType) Kind() dlog.Kind {
	return dlog.Kind(int(t) % 3)
}

// String returns the display label, e.g. U1, I2, P3.
func (t ValueType) String() string {
	labels := [...]byte{'U', 'I', 'P'}
	return fmt.Sprintf("%c%d", labels[int(t)%3], int(t)/3+1)
}

// Descriptor holds the display scaling of one column.
type Descriptor struct {
	Type   ValueType
	PerDiv float32
	Offset float32
}

// View retains the most recent recording for display. It is written by the
// sampling goroutine through the dlog.Recorder methods and read by display code.
type View struct {
	cfg *config.PlaybackConfig

	mu          sync.RWMutex
	opts        dlog.Options
	executing   bool
	descriptors []Descriptor

	// Retained rows, oldest first, flattened numValues per row.
	// first is the record index of values[0].
	values    []float32
	numValues int
	first     uint32
	size      uint32

	pageSize     uint32
	timeOffset   float64
	cursorOffset uint32

	callbacks []func(size uint32)
	cbMu      sync.RWMutex
}

// New creates an empty view.
func New(cfg *config.Config) *View {
	return &View{
		cfg:       &cfg.Playback,
		pageSize:  uint32(cfg.Playback.PageSize),
		values:    make([]float32, 0),
		callbacks: make([]func(size uint32), 0),
	}
}

// OnUpdate registers a callback invoked after every recorded row and at session end.
func (v *View) OnUpdate(fn func(size uint32)) {
	v.cbMu.Lock()
	defer v.cbMu.Unlock()
	v.callbacks = append(v.callbacks, fn)
}

// Begin resets the view for a new session.
func (v *View) Begin(opts dlog.Options) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.opts = opts
	v.executing = true
	v.values = v.values[:0]
	v.numValues = opts.NumValues()
	v.first = 0
	v.size = 0
	v.timeOffset = 0
	v.cursorOffset = 0
	v.descriptors = v.defaultDescriptors(opts)
}

func (v *View) defaultDescriptors(opts dlog.Options) []Descriptor {
	perDiv := [...]float32{v.cfg.VoltagePerDiv, v.cfg.CurrentPerDiv, v.cfg.PowerPerDiv}

	descriptors := make([]Descriptor, 0, opts.NumValues())
	for ch := range min(opts.NumChannels, dlog.MaxChannels) {
		for _, kind := range []dlog.Kind{dlog.KindVoltage, dlog.KindCurrent, dlog.KindPower} {
			if !selected(opts.Selection, ch, kind) {
				continue
			}
			descriptors = append(descriptors, Descriptor{
				Type:   NewValueType(ch, kind),
				PerDiv: perDiv[kind],
			})
		}
	}
	return descriptors
}

func selected(s dlog.Selection, ch int, kind dlog.Kind) bool {
	switch kind {
	case dlog.KindVoltage:
		return s.Voltage[ch]
	case dlog.KindCurrent:
		return s.Current[ch]
	case dlog.KindPower:
		return s.Power[ch]
	}
	return false
}

// Record appends one row. Rows of the wrong width are ignored.
func (v *View) Record(row []float32) {
	v.mu.Lock()
	if len(row) != v.numValues || v.numValues == 0 {
		v.mu.Unlock()
		return
	}

	v.values = append(v.values, row...)
	v.size++

	// Drop the oldest quarter once the window is full
	maxRecords := v.cfg.MaxRecords
	if maxRecords > 0 && len(v.values) > maxRecords*v.numValues {
		drop := max(maxRecords/4, 1)
		n := copy(v.values, v.values[drop*v.numValues:])
		v.values = v.values[:n]
		v.first += uint32(drop)
	}
	size := v.size
	v.mu.Unlock()

	v.notify(size)
}

// End marks the session as finished; the data stays available for review.
func (v *View) End() {
	v.mu.Lock()
	v.executing = false
	size := v.size
	v.mu.Unlock()

	v.notify(size)
}

func (v *View) notify(size uint32) {
	v.cbMu.RLock()
	callbacks := make([]func(size uint32), len(v.callbacks))
	copy(callbacks, v.callbacks)
	v.cbMu.RUnlock()

	for _, cb := range callbacks {
		cb(size)
	}
}

// Options returns the snapshot of the recorded session.
func (v *View) Options() dlog.Options {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.opts
}

// IsExecuting reports whether the recorded session is still running.
func (v *View) IsExecuting() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.executing
}

// Size returns the number of recorded rows, including rows no longer retained.
func (v *View) Size() uint32 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.size
}

// NumValues returns the number of columns per row.
func (v *View) NumValues() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.numValues
}

// NumVisibleValues returns the number of columns drawn as traces.
func (v *View) NumVisibleValues() int {
	return min(v.NumValues(), MaxVisibleValues)
}

// Value returns column valueIndex of row record, or NaN when it is not retained.
func (v *View) Value(record uint32, valueIndex int) float32 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value(record, valueIndex)
}

func (v *View) value(record uint32, valueIndex int) float32 {
	if valueIndex < 0 || valueIndex >= v.numValues || record < v.first || record >= v.size {
		return math32.NaN()
	}
	return v.values[int(record-v.first)*v.numValues+valueIndex]
}

// Descriptors returns a copy of the column descriptors.
func (v *View) Descriptors() []Descriptor {
	v.mu.RLock()
	defer v.mu.RUnlock()

	result := make([]Descriptor, len(v.descriptors))
	copy(result, v.descriptors)
	return result
}

// Label returns the label of column i.
func (v *View) Label(i int) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if i < 0 || i >= len(v.descriptors) {
		return ""
	}
	return v.descriptors[i].Type.String()
}

// SetPerDiv sets the vertical scale of column i.
func (v *View) SetPerDiv(i int, perDiv float32) error {
	if !(perDiv >= PerDivMin && perDiv <= PerDivMax) {
		return fmt.Errorf("per division %g: %w", perDiv, ErrOutOfRange)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if i < 0 || i >= len(v.descriptors) {
		return fmt.Errorf("value %d: %w", i, ErrOutOfRange)
	}
	v.descriptors[i].PerDiv = perDiv
	return nil
}

// SetOffset sets the display offset of column i.
func (v *View) SetOffset(i int, offset float32) error {
	if !(offset >= OffsetMin && offset <= OffsetMax) {
		return fmt.Errorf("offset %g: %w", offset, ErrOutOfRange)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if i < 0 || i >= len(v.descriptors) {
		return fmt.Errorf("value %d: %w", i, ErrOutOfRange)
	}
	v.descriptors[i].Offset = offset
	return nil
}

// PageSize returns the number of rows shown at once.
func (v *View) PageSize() uint32 {
	return v.pageSize
}

// Position returns the first row of the displayed page. While executing the
// page follows the newest rows.
func (v *View) Position() uint32 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.position()
}

func (v *View) position() uint32 {
	last := v.lastPosition()
	if v.executing {
		return last
	}

	if v.opts.Params.Period <= 0 {
		return 0
	}
	position := math32.Round(float32(v.timeOffset / float64(v.opts.Params.Period)))
	if position < 0 {
		return 0
	}
	if position > float32(last) {
		return last
	}
	return uint32(position)
}

func (v *View) lastPosition() uint32 {
	if v.size < v.pageSize {
		return 0
	}
	return v.size - v.pageSize
}

// SetPosition moves the displayed page, clamped to the recording.
func (v *View) SetPosition(position uint32) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if position+v.pageSize > v.size {
		position = v.lastPosition()
	}
	v.timeOffset = float64(position) * float64(v.opts.Params.Period)
}

// TimeOffset returns the time of the first row of the page in review mode.
func (v *View) TimeOffset() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.timeOffset
}

// IsCursorVisible reports whether the review cursor is shown.
func (v *View) IsCursorVisible() bool {
	return !v.IsExecuting()
}

// CursorOffset returns the cursor position relative to the page.
func (v *View) CursorOffset() uint32 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cursorOffset
}

// SetCursorOffset moves the cursor within the page.
func (v *View) SetCursorOffset(offset uint32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cursorOffset = offset
}

// CursorTime returns the recording time under the cursor in seconds.
func (v *View) CursorTime() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return float64(v.position()+v.cursorOffset) * float64(v.opts.Params.Period)
}

// CurrentDuration returns the recorded time in seconds (size * period).
func (v *View) CurrentDuration() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return float64(v.size) * float64(v.opts.Params.Period)
}

// TotalDuration returns the configured duration of the recording.
func (v *View) TotalDuration() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return float64(v.opts.Params.Duration)
}

// Remaining returns the time left until the configured duration is reached.
func (v *View) Remaining() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.executing {
		return 0
	}
	return max(float64(v.opts.Params.Duration)-float64(v.size)*float64(v.opts.Params.Period), 0)
}

// Page copies column valueIndex of the displayed page into dst. Rows that are not
// retained read as NaN. Destination-based: reuses dst if it has sufficient capacity.
func (v *View) Page(dst []float32, valueIndex int) []float32 {
	v.mu.RLock()
	defer v.mu.RUnlock()

	n := int(v.pageSize)
	if cap(dst) >= n {
		dst = dst[:n]
	} else {
		dst = make([]float32, n)
	}

	position := v.position()
	for i := range dst {
		dst[i] = v.value(position+uint32(i), valueIndex)
	}
	return dst
}
