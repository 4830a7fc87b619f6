package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"logpack/internal/archive"
	"logpack/internal/notify"
	"logpack/internal/sink"
)

const DefaultSendTimeout = 10 * time.Second

var ErrClosed = errors.New("dispatcher closed")

// Meta describes the request an archive was built for.
type Meta struct {
	CorrelationID string
	Status        int
	Metadata      string
	Time          time.Time
}

type Kind string

const (
	KindSink     Kind = "sink"
	KindNotifier Kind = "notifier"
)

// Hooks observe dispatch progress. Every field is optional.
type Hooks struct {
	// OnStart is called when a background dispatch has been accepted and
	// counts towards Inflight.
	OnStart func(meta Meta)
	OnWrite func(meta Meta, path string, size int64)
	OnSend  func(meta Meta, kind Kind, name string, elapsed time.Duration, err error)
	// OnDone is called once per Dispatch with the joined error, also for
	// background dispatches whose error never reaches the caller.
	OnDone func(meta Meta, elapsed time.Duration, err error)
}

type Options struct {
	WorkDir     string
	Location    *time.Location
	Sinks       []sink.Sink
	Notifiers   []notify.Notifier
	SendTimeout time.Duration
	Async       bool
	Hooks       Hooks
}

type Coordinator struct {
	opts     Options
	inflight *tracker
}

func New(opts Options) *Coordinator {
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	return &Coordinator{opts: opts, inflight: newTracker()}
}

func (c *Coordinator) Async() bool {
	return c.opts.Async
}

// Dispatch writes a to the work directory, hands the file to every sink,
// deletes it and then runs every notifier. Failures of single destinations
// are collected into the returned error and never stop the others. With
// Async the work happens on a tracked goroutine and Dispatch returns nil.
func (c *Coordinator) Dispatch(ctx context.Context, a *archive.Archive, meta Meta) error {
	if a == nil {
		return errors.New("dispatch: nil archive")
	}
	if meta.Time.IsZero() {
		meta.Time = a.Created()
	}
	if !c.opts.Async {
		return c.run(ctx, a, meta)
	}

	if !c.inflight.start() {
		return ErrClosed
	}
	if c.opts.Hooks.OnStart != nil {
		c.opts.Hooks.OnStart(meta)
	}
	go func() {
		defer c.inflight.done()
		_ = c.run(context.WithoutCancel(ctx), a, meta)
	}()
	return nil
}

func (c *Coordinator) run(ctx context.Context, a *archive.Archive, meta Meta) (err error) {
	start := time.Now()
	defer func() {
		if c.opts.Hooks.OnDone != nil {
			c.opts.Hooks.OnDone(meta, time.Since(start), err)
		}
	}()

	path, size, err := c.write(a, meta)
	if err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	if c.opts.Hooks.OnWrite != nil {
		c.opts.Hooks.OnWrite(meta, path, size)
	}

	var errs []error
	for _, s := range c.opts.Sinks {
		if err := c.send(ctx, meta, KindSink, s.Name(), func(ctx context.Context) error {
			return s.Send(ctx, path)
		}); err != nil {
			errs = append(errs, err)
		}
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("delete archive: %w", err))
	}
	for _, n := range c.opts.Notifiers {
		if err := c.send(ctx, meta, KindNotifier, n.Name(), func(ctx context.Context) error {
			return n.Send(ctx, path, meta.Metadata)
		}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) send(ctx context.Context, meta Meta, kind Kind, name string, fn func(context.Context) error) (err error) {
	sendCtx, cancel := context.WithTimeout(ctx, c.opts.SendTimeout)
	start := time.Now()
	defer func() {
		cancel()
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%s %s panicked: %v", kind, name, recovered)
		}
		if c.opts.Hooks.OnSend != nil {
			c.opts.Hooks.OnSend(meta, kind, name, time.Since(start), err)
		}
	}()
	if err := fn(sendCtx); err != nil {
		return fmt.Errorf("%s %s: %w", kind, name, err)
	}
	return nil
}

func (c *Coordinator) write(a *archive.Archive, meta Meta) (string, int64, error) {
	if err := os.MkdirAll(c.opts.WorkDir, 0o755); err != nil {
		return "", 0, err
	}
	var (
		file *os.File
		err  error
	)
	for attempt := 0; attempt < 3; attempt++ {
		path := filepath.Join(c.opts.WorkDir, Filename(meta.Time, meta.Status, c.opts.Location))
		file, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if !errors.Is(err, os.ErrExist) {
			break
		}
	}
	if err != nil {
		return "", 0, err
	}
	path := file.Name()
	if err := a.WriteZip(file); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return "", 0, err
	}
	info, statErr := file.Stat()
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return "", 0, err
	}
	var size int64
	if statErr == nil {
		size = info.Size()
	}
	return path, size, nil
}

// Wait blocks until background dispatches finished or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	return c.inflight.wait(ctx)
}

// Close rejects new background dispatches and waits for running ones.
func (c *Coordinator) Close(ctx context.Context) error {
	c.inflight.close()
	return c.Wait(ctx)
}

func (c *Coordinator) Inflight() int64 {
	return c.inflight.len()
}
