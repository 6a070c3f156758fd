package dlog

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/google/uuid"
)

// BlockSize is the size of one write block.
const BlockSize = 4096

// Block is a fixed size buffer handed from the encoder to the storage writer.
// Ownership moves with the request; the writer returns it to the pool once written.
type Block [BlockSize]byte

// RequestKind is the kind of a storage request.
type RequestKind int

const (
	RequestOpen RequestKind = iota + 1
	RequestWrite
	RequestClose
)

func (k RequestKind) String() string {
	switch k {
	case RequestOpen:
		return "open"
	case RequestWrite:
		return "write"
	case RequestClose:
		return "close"
	}
	return fmt.Sprintf("RequestKind(%d)", int(k))
}

// Request is an asynchronous storage operation.
type Request struct {
	Kind    RequestKind
	Session uuid.UUID
	Path    string // Open only
	Block   *Block // Write only
	Len     int    // Write only
}

// Data returns the bytes carried by a write request.
func (r Request) Data() []byte {
	if r.Block == nil {
		return nil
	}
	return r.Block[:r.Len]
}

// Sink accepts storage requests. Submit must not block.
type Sink interface {
	Submit(req Request) error
}

// BlockPool is the free list of write blocks shared by the encoder and the writer.
type BlockPool struct {
	free chan *Block
}

// NewBlockPool allocates n blocks. Two blocks give the classic double buffer.
func NewBlockPool(n int) *BlockPool {
	if n < 2 {
		n = 2
	}
	p := &BlockPool{free: make(chan *Block, n)}
	for range n {
		p.free <- new(Block)
	}
	return p
}

// Get takes a free block without waiting.
func (p *BlockPool) Get() (*Block, bool) {
	select {
	case b := <-p.free:
		return b, true
	default:
		return nil, false
	}
}

// Put returns a block to the pool.
func (p *BlockPool) Put(b *Block) {
	if b == nil {
		return
	}
	select {
	case p.free <- b:
	default:
		// more blocks returned than allocated, drop the extra one
	}
}

// Available returns the number of free blocks.
func (p *BlockPool) Available() int {
	return len(p.free)
}

// Encoder serializes little-endian primitives into blocks and submits
// full blocks to the sink. After the first error all writes are dropped.
type Encoder struct {
	sink    Sink
	pool    *BlockPool
	session uuid.UUID

	active *Block
	cursor int
	err    error
}

// NewEncoder creates an encoder writing into blocks from pool.
func NewEncoder(sink Sink, pool *BlockPool) *Encoder {
	return &Encoder{sink: sink, pool: pool}
}

// Begin opens path through the sink and prepares an empty active block.
func (e *Encoder) Begin(session uuid.UUID, path string) error {
	e.release()
	e.session = session
	e.cursor = 0
	e.err = nil

	b, ok := e.pool.Get()
	if !ok {
		return ErrOverrun
	}

	if err := e.sink.Submit(Request{Kind: RequestOpen, Session: session, Path: path}); err != nil {
		e.pool.Put(b)
		return fmt.Errorf("failed to queue open: %w", err)
	}

	e.active = b
	return nil
}

// WriteUint8 appends one byte, flushing the block when it fills.
func (e *Encoder) WriteUint8(v uint8) {
	if e.err != nil {
		return
	}
	e.active[e.cursor] = v
	e.cursor++
	if e.cursor == BlockSize {
		e.flush()
	}
}

// WriteUint16 appends v least significant byte first.
func (e *Encoder) WriteUint16(v uint16) {
	e.WriteUint8(uint8(v))
	e.WriteUint8(uint8(v >> 8))
}

// WriteUint32 appends v least significant byte first.
func (e *Encoder) WriteUint32(v uint32) {
	e.WriteUint8(uint8(v))
	e.WriteUint8(uint8(v >> 8))
	e.WriteUint8(uint8(v >> 16))
	e.WriteUint8(uint8(v >> 24))
}

// WriteFloat appends the IEEE-754 bit pattern of v.
func (e *Encoder) WriteFloat(v float32) {
	e.WriteUint32(math32.Float32bits(v))
}

// Write appends raw bytes.
func (e *Encoder) Write(p []byte) {
	for _, b := range p {
		e.WriteUint8(b)
	}
}

func (e *Encoder) flush() {
	full := e.active
	e.active = nil
	e.cursor = 0

	if err := e.sink.Submit(Request{Kind: RequestWrite, Session: e.session, Block: full, Len: BlockSize}); err != nil {
		e.pool.Put(full)
		e.err = fmt.Errorf("failed to queue write: %w", err)
		return
	}

	b, ok := e.pool.Get()
	if !ok {
		e.err = ErrOverrun
		return
	}
	e.active = b
}

// Finish submits the pending partial block, if any, followed by a close request.
// It returns the first error seen during the session.
func (e *Encoder) Finish() error {
	if e.err == nil && e.cursor > 0 {
		if err := e.sink.Submit(Request{Kind: RequestWrite, Session: e.session, Block: e.active, Len: e.cursor}); err != nil {
			e.err = fmt.Errorf("failed to queue write: %w", err)
		} else {
			e.active = nil
		}
	}
	e.release()
	e.cursor = 0

	if err := e.sink.Submit(Request{Kind: RequestClose, Session: e.session}); err != nil && e.err == nil {
		e.err = fmt.Errorf("failed to queue close: %w", err)
	}
	return e.err
}

// Err returns the first error that stopped the encoder.
func (e *Encoder) Err() error {
	return e.err
}

// Pending returns the number of bytes in the active block.
func (e *Encoder) Pending() int {
	return e.cursor
}

func (e *Encoder) release() {
	if e.active != nil {
		e.pool.Put(e.active)
		e.active = nil
	}
}
