package dlog

import (
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/chewxy/math32"
	"github.com/google/uuid"
	"github.com/itohio/psudlog/pkg/config"
)

// Monitor supplies last known monitor values of a channel. Reads have no side effects.
type Monitor interface {
	UMonLast(channel int) float32
	IMonLast(channel int) float32
}

// EventLog receives errors that have no caller to return to.
type EventLog interface {
	GenerateError(err error)
}

// Recorder retains the rows of the running session for display.
type Recorder interface {
	Begin(opts Options)
	Record(row []float32)
	End()
}

// LogEvents is the default EventLog; it writes errors to the standard logger.
type LogEvents struct{}

func (LogEvents) GenerateError(err error) {
	log.Printf("Data logging error: %v", err)
}

type storageFault struct {
	session uuid.UUID
	err     error
}

// Engine is the data logging session controller.
//
// All methods except StorageFailed must be called from one goroutine, normally the
// one driving Tick. Tick never blocks.
type Engine struct {
	cfg         *config.DlogConfig
	numChannels int

	monitor  Monitor
	clock    Clock
	events   EventLog
	recorder Recorder

	state     State
	selection Selection
	params    Params

	session     uuid.UUID
	lastOptions Options
	enc         *Encoder
	clk         SampleClock
	row         []float32

	fault atomic.Pointer[storageFault]
}

// New creates a session controller for the configured channels. Storage requests
// are submitted to sink using blocks taken from pool.
func New(cfg *config.Config, monitor Monitor, sink Sink, pool *BlockPool) *Engine {
	e := &Engine{
		cfg:         &cfg.Dlog,
		numChannels: cfg.NumChannels(),
		monitor:     monitor,
		clock:       NewSystemClock(),
		events:      LogEvents{},
		enc:         NewEncoder(sink, pool),
		row:         make([]float32, 0, 3*MaxChannels+1),
	}
	e.resetParams()
	return e
}

// SetClock replaces the tick and wall clock source.
func (e *Engine) SetClock(c Clock) {
	e.clock = c
}

// SetEventLog replaces the asynchronous error sink.
func (e *Engine) SetEventLog(l EventLog) {
	e.events = l
}

// SetRecorder attaches the playback recorder.
func (e *Engine) SetRecorder(r Recorder) {
	e.recorder = r
}

func (e *Engine) resetParams() {
	source, err := ParseTriggerSource(e.cfg.TriggerSource)
	if err != nil {
		log.Printf("Invalid default trigger source, using immediate: %v", err)
	}
	e.params = Params{
		Period:        e.cfg.Period,
		Duration:      e.cfg.Duration,
		TriggerSource: source,
		FillMissed:    !e.cfg.OmitMissed,
		Jitter:        e.cfg.Jitter,
	}
}

// State returns the session state.
func (e *Engine) State() State {
	return e.state
}

func (e *Engine) IsIdle() bool {
	return e.state == StateIdle
}

func (e *Engine) IsInitiated() bool {
	return e.state == StateInitiated
}

func (e *Engine) IsTriggered() bool {
	return e.state == StateTriggered
}

func (e *Engine) IsExecuting() bool {
	return e.state == StateExecuting
}

// Selection returns the current column selection.
func (e *Engine) Selection() Selection {
	return e.selection
}

// Params returns the current session configuration.
func (e *Engine) Params() Params {
	return e.params
}

// LastOptions returns the snapshot of the most recently started session.
func (e *Engine) LastOptions() Options {
	return e.lastOptions
}

// Session returns the id of the most recently started session.
func (e *Engine) Session() uuid.UUID {
	return e.session
}

// CurrentTime returns seconds elapsed in the running or last session.
func (e *Engine) CurrentTime() float64 {
	return e.clk.CurrentTime()
}

// NextSampleTime returns the session time in seconds of the next scheduled row.
func (e *Engine) NextSampleTime() float64 {
	return e.clk.NextTime()
}

func (e *Engine) configurable() error {
	if e.state == StateTriggered || e.state == StateExecuting {
		return ErrBusy
	}
	return nil
}

func (e *Engine) setFlag(channel int, kind Kind, on bool) error {
	if err := e.configurable(); err != nil {
		return err
	}
	if channel < 0 || channel >= e.numChannels {
		return fmt.Errorf("channel %d: %w", channel+1, ErrOutOfRange)
	}
	e.selection.Set(channel, kind, on)
	return nil
}

// SetVoltage selects voltage logging on channel (zero based).
func (e *Engine) SetVoltage(channel int, on bool) error {
	return e.setFlag(channel, KindVoltage, on)
}

// SetCurrent selects current logging on channel (zero based).
func (e *Engine) SetCurrent(channel int, on bool) error {
	return e.setFlag(channel, KindCurrent, on)
}

// SetPower selects power logging on channel (zero based).
func (e *Engine) SetPower(channel int, on bool) error {
	return e.setFlag(channel, KindPower, on)
}

// SetPeriod sets the sampling period in seconds.
func (e *Engine) SetPeriod(period float32) error {
	if err := e.configurable(); err != nil {
		return err
	}
	if period < PeriodMin || period > PeriodMax || math32.IsNaN(period) {
		return fmt.Errorf("period %g: %w", period, ErrOutOfRange)
	}
	e.params.Period = period
	return nil
}

// SetDuration sets the recording duration in seconds.
func (e *Engine) SetDuration(duration float32) error {
	if err := e.configurable(); err != nil {
		return err
	}
	if !(duration > 0 && duration <= DurationMax) {
		return fmt.Errorf("duration %g: %w", duration, ErrOutOfRange)
	}
	e.params.Duration = duration
	return nil
}

// SetTriggerSource sets what starts an initiated session.
func (e *Engine) SetTriggerSource(source TriggerSource) error {
	if err := e.configurable(); err != nil {
		return err
	}
	if source < TriggerImmediate || source > TriggerPin2 {
		return fmt.Errorf("trigger source %d: %w", int(source), ErrOutOfRange)
	}
	e.params.TriggerSource = source
	return nil
}

// SetFillMissed selects whether missed boundaries produce NaN rows.
func (e *Engine) SetFillMissed(on bool) error {
	if err := e.configurable(); err != nil {
		return err
	}
	e.params.FillMissed = on
	return nil
}

// SetJitter selects whether every row carries the lateness column.
func (e *Engine) SetJitter(on bool) error {
	if err := e.configurable(); err != nil {
		return err
	}
	e.params.Jitter = on
	return nil
}

func (e *Engine) checkParameters() error {
	if !e.selection.Any() {
		return ErrExecution
	}
	if e.params.Path == "" || len(e.params.Path) > MaxPathLength {
		return ErrExecution
	}
	return nil
}

// Initiate arms a session writing to path. With the immediate trigger source the
// session starts right away, otherwise it waits in the initiated state.
// The path is cleared when arming fails.
func (e *Engine) Initiate(path string) error {
	if e.state != StateIdle {
		return ErrBusy
	}

	e.params.Path = path

	var err error
	if e.params.TriggerSource == TriggerImmediate {
		err = e.start(e.clock.Micros())
	} else {
		err = e.checkParameters()
		if err == nil {
			e.setState(StateInitiated)
		}
	}

	if err != nil {
		e.params.Path = ""
	}
	return err
}

// TriggerGenerated is called by the trigger subsystem. Start failures are
// reported through the event log and leave the state unchanged.
func (e *Engine) TriggerGenerated(startImmediately bool) {
	if e.state != StateInitiated {
		return
	}

	if !startImmediately {
		e.setState(StateTriggered)
		return
	}

	if err := e.start(e.clock.Micros()); err != nil {
		e.events.GenerateError(err)
	}
}

// Tick is the periodic entry point carrying the hardware tick counter.
func (e *Engine) Tick(tick uint32) {
	switch e.state {
	case StateTriggered:
		if err := e.start(tick); err != nil {
			e.events.GenerateError(err)
		}
	case StateExecuting:
		if f := e.fault.Swap(nil); f != nil && f.session == e.session {
			e.events.GenerateError(fmt.Errorf("session %s: %w", f.session, f.err))
			e.finish()
			return
		}
		e.log(tick)
	}
}

// StorageFailed posts a storage fault of session. It is safe to call from any
// goroutine; the running session is finished on the next tick.
func (e *Engine) StorageFailed(session uuid.UUID, err error) {
	e.fault.Store(&storageFault{session: session, err: err})
}

// Abort stops the session. Calling it while idle does nothing.
func (e *Engine) Abort() {
	switch e.state {
	case StateExecuting:
		e.finish()
	case StateInitiated, StateTriggered:
		e.setState(StateIdle)
	}
}

// Reset aborts any session and restores the default configuration.
func (e *Engine) Reset() {
	e.Abort()
	e.selection = Selection{}
	e.resetParams()
}

func (e *Engine) setState(s State) {
	if e.state != s {
		log.Printf("Data logging %s -> %s", e.state, s)
		e.state = s
	}
}

func (e *Engine) start(tick uint32) error {
	if err := e.checkParameters(); err != nil {
		return err
	}

	// Clear before the open request; a sink may report its failure inline
	e.fault.Store(nil)
	session := uuid.New()
	if err := e.enc.Begin(session, e.params.Path); err != nil {
		return fmt.Errorf("failed to start data logging: %w", err)
	}

	now := e.clock.Now()
	e.session = session
	e.lastOptions = Options{
		Session:     session,
		NumChannels: e.numChannels,
		Selection:   e.selection,
		Params:      e.params,
		StartTime:   now,
	}
	if e.recorder != nil {
		e.recorder.Begin(e.lastOptions)
	}

	e.setState(StateExecuting)

	header := Header{
		Version:   Version,
		Jitter:    e.params.Jitter,
		Columns:   e.selection.Columns(),
		Period:    e.params.Period,
		Duration:  e.params.Duration,
		StartTime: uint32(now.Unix()),
	}
	e.enc.Write(header.AppendBinary(make([]byte, 0, HeaderSize)))

	e.clk.Reset(tick, e.params.Period, e.params.Duration)
	e.log(tick)
	return nil
}

func (e *Engine) finish() {
	e.setState(StateIdle)

	reported := e.enc.Err()
	if err := e.enc.Finish(); err != nil && !errors.Is(err, reported) {
		e.events.GenerateError(fmt.Errorf("session %s: %w", e.session, err))
	}
	if e.recorder != nil {
		e.recorder.End()
	}

	e.selection = Selection{}
	e.resetParams()
}

func (e *Engine) log(tick uint32) {
	step := e.clk.Advance(tick)
	if !step.Sample {
		return
	}

	if e.params.FillMissed {
		for range step.Missed {
			e.writeMissed()
		}
	}
	e.writeSample(step.Lateness)

	if err := e.enc.Err(); err != nil {
		e.events.GenerateError(fmt.Errorf("session %s: %w", e.session, err))
		e.finish()
		return
	}

	if step.Finished {
		e.finish()
	}
}

func (e *Engine) writeMissed() {
	nan := math32.NaN()
	row := e.row[:0]
	if e.params.Jitter {
		row = append(row, nan)
	}
	for range e.selection.NumValues() {
		row = append(row, nan)
	}
	e.emit(row)
}

func (e *Engine) writeSample(lateness float64) {
	row := e.row[:0]
	if e.params.Jitter {
		row = append(row, float32(lateness))
	}

	for i := range e.numChannels {
		var uMon, iMon float32

		if e.selection.Voltage[i] {
			uMon = e.monitor.UMonLast(i)
			row = append(row, uMon)
		}

		if e.selection.Current[i] {
			iMon = e.monitor.IMonLast(i)
			row = append(row, iMon)
		}

		if e.selection.Power[i] {
			if !e.selection.Voltage[i] {
				uMon = e.monitor.UMonLast(i)
			}
			if !e.selection.Current[i] {
				iMon = e.monitor.IMonLast(i)
			}
			row = append(row, uMon*iMon)
		}
	}
	e.emit(row)
}

func (e *Engine) emit(row []float32) {
	for _, v := range row {
		e.enc.WriteFloat(v)
	}
	if e.recorder != nil {
		values := row
		if e.params.Jitter {
			values = row[1:]
		}
		e.recorder.Record(values)
	}
}
