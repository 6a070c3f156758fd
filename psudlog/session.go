package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/itohio/psudlog/pkg/config"
	"github.com/itohio/psudlog/pkg/dlog"
	"github.com/itohio/psudlog/pkg/playback"
	"github.com/itohio/psudlog/pkg/storage"
)

const progressInterval = time.Second

// session runs one logging session from arming to the closed file.
type session struct {
	cfg       *config.Config
	device    dlog.Monitor
	selection dlog.Selection
	period    float32 // 0 keeps the configured value
	duration  float32 // 0 keeps the configured value
	triggers  <-chan struct{}
	out       io.Writer

	clock dlog.Clock
	fs    storage.FS
}

// eventLog collects errors reported asynchronously by the engine.
type eventLog struct {
	mu   sync.Mutex
	errs []error
}

func (l *eventLog) GenerateError(err error) {
	log.Printf("Data logging error: %v", err)
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.mu.Unlock()
}

func (l *eventLog) err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return errors.Join(l.errs...)
}

func (s *session) configure(engine *dlog.Engine) error {
	for ch := range s.cfg.NumChannels() {
		if err := engine.SetVoltage(ch, s.selection.Voltage[ch]); err != nil {
			return err
		}
		if err := engine.SetCurrent(ch, s.selection.Current[ch]); err != nil {
			return err
		}
		if err := engine.SetPower(ch, s.selection.Power[ch]); err != nil {
			return err
		}
	}
	if s.period != 0 {
		if err := engine.SetPeriod(s.period); err != nil {
			return fmt.Errorf("period %g: %w", s.period, err)
		}
	}
	if s.duration != 0 {
		if err := engine.SetDuration(s.duration); err != nil {
			return fmt.Errorf("duration %g: %w", s.duration, err)
		}
	}
	return nil
}

func (s *session) run(ctx context.Context) error {
	if s.clock == nil {
		s.clock = dlog.NewSystemClock()
	}
	osfs := storage.OSFS{Dir: s.cfg.Storage.Dir}
	if s.fs == nil {
		s.fs = osfs
	}

	pool := dlog.NewBlockPool(s.cfg.Storage.Blocks)
	writer := storage.New(s.fs, pool, s.cfg.Storage.QueueDepth)

	writerCtx, stopWriter := context.WithCancel(context.Background())
	defer stopWriter()
	go writer.Run(writerCtx)

	events := &eventLog{}
	view := playback.New(s.cfg)

	engine := dlog.New(s.cfg, s.device, writer, pool)
	engine.SetClock(s.clock)
	engine.SetEventLog(events)
	engine.SetRecorder(view)
	writer.OnError(engine.StorageFailed)

	if err := s.configure(engine); err != nil {
		return err
	}

	path := s.cfg.Dlog.Path
	if path == "" {
		path = fmt.Sprintf("psu-%s.dlog", s.clock.Now().Format("20060102-150405"))
	}

	if err := engine.Initiate(path); err != nil {
		return fmt.Errorf("failed to start logging to %s: %w", path, err)
	}
	if engine.IsInitiated() {
		fmt.Fprintf(s.out, "Waiting for %s trigger (press Enter)\n", engine.Params().TriggerSource)
	}

	s.loop(ctx, engine, view)

	// Drain pending blocks and close the file
	stopWriter()
	<-writer.Done()

	opts := engine.LastOptions()
	if view.Size() > 0 {
		if err := view.SaveSnapshot(osfs.Path(path)); err != nil {
			log.Printf("Failed to save view state: %v", err)
		}
	}

	fmt.Fprintf(s.out, "Session %s: %d records, %.3f s of %.3f s -> %s\n",
		opts.Session, view.Size(), view.CurrentDuration(), view.TotalDuration(), osfs.Path(path))
	summarize(s.out, view)

	return events.err()
}

// loop drives the engine tick until the session is over or ctx is cancelled.
func (s *session) loop(ctx context.Context, engine *dlog.Engine, view *playback.View) {
	ticker := time.NewTicker(s.cfg.Dlog.TickInterval)
	defer ticker.Stop()
	progress := time.NewTicker(progressInterval)
	defer progress.Stop()

	for !engine.IsIdle() {
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out, "Aborting")
			engine.Abort()
			return
		case <-s.triggers:
			engine.TriggerGenerated(false)
		case <-ticker.C:
			engine.Tick(s.clock.Micros())
		case <-progress.C:
			if engine.IsExecuting() {
				fmt.Fprintf(s.out, "%8.1f s  %d records  next %.2f s  %.1f s left\n",
					view.CurrentDuration(), view.Size(), engine.NextSampleTime(), view.Remaining())
			}
		}
	}
}

// stdinTriggers fires a trigger for every line read from stdin.
func stdinTriggers() <-chan struct{} {
	triggers := make(chan struct{}, 1)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case triggers <- struct{}{}:
			default:
			}
		}
	}()
	return triggers
}
