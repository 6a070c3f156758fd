package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/itohio/psudlog/pkg/dlog"
)

const (
	// DefaultQueueDepth is the default bound of the request channel.
	DefaultQueueDepth = 16
)

var (
	// ErrQueueFull is returned by Submit when the writer is behind.
	ErrQueueFull = errors.New("storage request queue full")
	// ErrStopped is returned by Submit after the writer has stopped.
	ErrStopped = errors.New("storage writer stopped")
	// ErrNotOpen is reported when a write arrives without an open file.
	ErrNotOpen = errors.New("log file not open")
)

// File is the subset of *os.File used by the writer.
type File interface {
	io.Writer
	Sync() error
	Close() error
}

// FS creates log files.
type FS interface {
	Create(path string) (File, error)
}

// OSFS creates files on the local filesystem, relative paths resolved against Dir.
type OSFS struct {
	Dir string
}

// Path resolves path against Dir.
func (fs OSFS) Path(path string) string {
	if !filepath.IsAbs(path) && fs.Dir != "" {
		return filepath.Join(fs.Dir, path)
	}
	return path
}

// Create creates or truncates the file at path.
func (fs OSFS) Create(path string) (File, error) {
	path = fs.Path(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Writer executes log file requests in submission order from its own goroutine.
// There must be a single producer.
type Writer struct {
	fs       FS
	pool     *dlog.BlockPool
	requests chan dlog.Request

	mu      sync.RWMutex
	onError func(session uuid.UUID, err error)
	stopped bool

	// owned by the Run goroutine
	file    File
	session uuid.UUID
	failed  bool

	done chan struct{}
}

// New creates a writer returning written blocks to pool.
func New(fs FS, pool *dlog.BlockPool, queueDepth int) *Writer {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	return &Writer{
		fs:       fs,
		pool:     pool,
		requests: make(chan dlog.Request, queueDepth),
		done:     make(chan struct{}),
	}
}

// OnError registers the callback receiving storage faults. It is called from the
// writer goroutine.
func (w *Writer) OnError(fn func(session uuid.UUID, err error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = fn
}

// Submit queues a request without blocking.
func (w *Writer) Submit(req dlog.Request) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return ErrStopped
	}

	select {
	case w.requests <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued requests.
func (w *Writer) Pending() int {
	return len(w.requests)
}

// Done is closed when Run has returned.
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

// Run executes requests until ctx is cancelled. Requests already queued at that
// point are still executed, then any open file is closed.
func (w *Writer) Run(ctx context.Context) {
	defer close(w.done)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic in storage writer: %v", r)
		}
	}()

	for {
		select {
		case req := <-w.requests:
			w.Execute(req)
		case <-ctx.Done():
			w.drain()
			return
		}
	}
}

func (w *Writer) drain() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()

	for {
		select {
		case req := <-w.requests:
			w.Execute(req)
		default:
			w.closeFile()
			return
		}
	}
}

// Execute runs one request synchronously. It is used by Run and by callers that
// already own the storage context.
func (w *Writer) Execute(req dlog.Request) {
	switch req.Kind {
	case dlog.RequestOpen:
		w.closeFile()
		w.session = req.Session
		w.failed = false

		f, err := w.fs.Create(req.Path)
		if err != nil {
			w.fail(req.Session, fmt.Errorf("failed to open %s: %w", req.Path, err))
			return
		}
		w.file = f

	case dlog.RequestWrite:
		defer w.pool.Put(req.Block)

		if w.failed || req.Session != w.session {
			return
		}
		if w.file == nil {
			w.fail(req.Session, ErrNotOpen)
			return
		}
		if _, err := w.file.Write(req.Data()); err != nil {
			w.fail(req.Session, fmt.Errorf("failed to write log block: %w", err))
		}

	case dlog.RequestClose:
		if req.Session != w.session {
			return
		}
		w.closeFile()
	}
}

func (w *Writer) fail(session uuid.UUID, err error) {
	w.failed = true
	log.Printf("Storage error: %v", err)

	w.mu.RLock()
	fn := w.onError
	w.mu.RUnlock()

	if fn != nil {
		fn(session, err)
	}
}

func (w *Writer) closeFile() {
	if w.file == nil {
		return
	}
	if err := w.file.Sync(); err != nil {
		log.Printf("Error syncing log file: %v", err)
	}
	if err := w.file.Close(); err != nil {
		log.Printf("Error closing log file: %v", err)
	}
	w.file = nil
}
