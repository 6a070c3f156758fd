package dlog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/itohio/psudlog/pkg/config"
)

const (
	// MaxChannels is the number of channels addressable by the column bitmap.
	MaxChannels = config.MaxChannels
	// MaxPathLength bounds the target file path.
	MaxPathLength = 255

	PeriodMin   = 0.001
	PeriodMax   = 120.0
	DurationMax = 86400000.0
)

var (
	// ErrExecution is the single validation error: nothing selected or no path.
	ErrExecution = errors.New("execution error")
	// ErrBusy is returned when configuration is changed while a session is triggered or executing.
	ErrBusy = errors.New("data logging in progress")
	// ErrOutOfRange is returned for invalid channel indices or parameter values.
	ErrOutOfRange = errors.New("parameter out of range")
	// ErrOverrun is returned when the encoder has no free block because storage fell behind.
	ErrOverrun = errors.New("sample buffer overrun")
)

// State is the session state.
type State int

const (
	StateIdle State = iota
	StateInitiated
	StateTriggered
	StateExecuting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitiated:
		return "initiated"
	case StateTriggered:
		return "triggered"
	case StateExecuting:
		return "executing"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// TriggerSource selects what moves an initiated session forward.
type TriggerSource int

const (
	TriggerImmediate TriggerSource = iota
	TriggerBus
	TriggerManual
	TriggerPin1
	TriggerPin2
)

var triggerNames = []string{"immediate", "bus", "manual", "pin1", "pin2"}

func (s TriggerSource) String() string {
	if s >= 0 && int(s) < len(triggerNames) {
		return triggerNames[s]
	}
	return fmt.Sprintf("TriggerSource(%d)", int(s))
}

// ParseTriggerSource parses a trigger source name as used in the configuration file.
func ParseTriggerSource(name string) (TriggerSource, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range triggerNames {
		if n == name {
			return TriggerSource(i), nil
		}
	}
	return TriggerImmediate, fmt.Errorf("unknown trigger source %q: %w", name, ErrOutOfRange)
}

// Kind is the logged quantity of a column.
type Kind int

const (
	KindVoltage Kind = iota
	KindCurrent
	KindPower
)

// Selection holds per channel flags of the logged quantities.
type Selection struct {
	Voltage [MaxChannels]bool
	Current [MaxChannels]bool
	Power   [MaxChannels]bool
}

// Any reports whether at least one quantity of any channel is selected.
func (s Selection) Any() bool {
	for i := range MaxChannels {
		if s.Voltage[i] || s.Current[i] || s.Power[i] {
			return true
		}
	}
	return false
}

// Columns returns the header column bitmap: 4 bits per channel,
// bit0 voltage, bit1 current, bit2 power.
func (s Selection) Columns() uint32 {
	var columns uint32
	for i := range MaxChannels {
		if s.Voltage[i] {
			columns |= 1 << (4 * i)
		}
		if s.Current[i] {
			columns |= 2 << (4 * i)
		}
		if s.Power[i] {
			columns |= 4 << (4 * i)
		}
	}
	return columns
}

// NumValues returns the number of selected columns.
func (s Selection) NumValues() int {
	n := 0
	for i := range MaxChannels {
		if s.Voltage[i] {
			n++
		}
		if s.Current[i] {
			n++
		}
		if s.Power[i] {
			n++
		}
	}
	return n
}

// Set sets the flag of a quantity on a channel.
func (s *Selection) Set(channel int, kind Kind, on bool) {
	switch kind {
	case KindVoltage:
		s.Voltage[channel] = on
	case KindCurrent:
		s.Current[channel] = on
	case KindPower:
		s.Power[channel] = on
	}
}

// SelectionFromColumns rebuilds a selection from a header column bitmap.
func SelectionFromColumns(columns uint32) Selection {
	var s Selection
	for i := range MaxChannels {
		nibble := columns >> (4 * i)
		s.Voltage[i] = nibble&1 != 0
		s.Current[i] = nibble&2 != 0
		s.Power[i] = nibble&4 != 0
	}
	return s
}

// Params is the session configuration.
type Params struct {
	Period        float32 // seconds
	Duration      float32 // seconds
	TriggerSource TriggerSource
	Path          string
	FillMissed    bool // Write a NaN row for every missed boundary
	Jitter        bool // Prefix every row with the sample lateness column
}

// Options is the snapshot of a session taken when it starts. It stays valid
// after the session ends so that recordings can be reviewed.
type Options struct {
	Session     uuid.UUID
	NumChannels int
	Selection   Selection
	Params      Params
	StartTime   time.Time
}

// NumValues returns the number of data columns per record, excluding the jitter column.
func (o Options) NumValues() int {
	return o.Selection.NumValues()
}
