package dlog

import (
	"bytes"
	"errors"
	"time"

	"github.com/itohio/psudlog/pkg/config"
)

var errSinkFull = errors.New("sink full")

// recordingSink executes requests synchronously into memory.
type recordingSink struct {
	pool     *BlockPool
	requests []Request
	lens     []int
	file     bytes.Buffer
	hold     bool // keep blocks instead of recycling them
	held     []*Block
	failNext bool
	onOpen   func(req Request)
}

func (s *recordingSink) Submit(req Request) error {
	if s.failNext {
		s.failNext = false
		return errSinkFull
	}
	s.requests = append(s.requests, req)
	switch req.Kind {
	case RequestOpen:
		s.file.Reset()
		if s.onOpen != nil {
			s.onOpen(req)
		}
	case RequestWrite:
		s.lens = append(s.lens, req.Len)
		s.file.Write(req.Data())
		if s.hold {
			s.held = append(s.held, req.Block)
		} else {
			s.pool.Put(req.Block)
		}
	}
	return nil
}

func (s *recordingSink) kinds() []RequestKind {
	kinds := make([]RequestKind, len(s.requests))
	for i, r := range s.requests {
		kinds[i] = r.Kind
	}
	return kinds
}

type fakeClock struct {
	micros uint32
	now    time.Time
}

func (c *fakeClock) Micros() uint32 { return c.micros }
func (c *fakeClock) Now() time.Time  { return c.now }

type fakeMonitor struct {
	u, i   []float32
	uReads int
	iReads int
}

func (m *fakeMonitor) UMonLast(ch int) float32 {
	m.uReads++
	return m.u[ch]
}

func (m *fakeMonitor) IMonLast(ch int) float32 {
	m.iReads++
	return m.i[ch]
}

type fakeEvents struct {
	errs []error
}

func (l *fakeEvents) GenerateError(err error) {
	l.errs = append(l.errs, err)
}

type fakeRecorder struct {
	opts  Options
	rows  [][]float32
	began int
	ended int
}

func (r *fakeRecorder) Begin(opts Options) {
	r.opts = opts
	r.rows = nil
	r.began++
}

func (r *fakeRecorder) Record(row []float32) {
	r.rows = append(r.rows, append([]float32(nil), row...))
}

func (r *fakeRecorder) End() {
	r.ended++
}

type harness struct {
	engine   *Engine
	sink     *recordingSink
	pool     *BlockPool
	clock    *fakeClock
	monitor  *fakeMonitor
	events   *fakeEvents
	recorder *fakeRecorder
}

func newHarness() *harness {
	cfg := config.Default()
	pool := NewBlockPool(2)
	h := &harness{
		sink:     &recordingSink{pool: pool},
		pool:     pool,
		clock:    &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		monitor:  &fakeMonitor{u: []float32{10, 12}, i: []float32{2, 0.5}},
		events:   &fakeEvents{},
		recorder: &fakeRecorder{},
	}
	h.engine = New(cfg, h.monitor, h.sink, pool)
	h.engine.SetClock(h.clock)
	h.engine.SetEventLog(h.events)
	h.engine.SetRecorder(h.recorder)
	return h
}

// runUntilIdle advances the tick counter in steps until the session ends.
func (h *harness) runUntilIdle(step uint32, limit uint32) {
	for !h.engine.IsIdle() && h.clock.micros < limit {
		h.clock.micros += step
		h.engine.Tick(h.clock.micros)
	}
}

func (h *harness) decode() (*Recording, error) {
	return Decode(bytes.NewReader(h.sink.file.Bytes()))
}
