package stream

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/audiolibrelab/pcmrecorder/internal/apperr"
	"github.com/audiolibrelab/pcmrecorder/internal/audio"
)

// Progress is the playback position within a recording
type Progress struct {
	Position time.Duration
	Duration time.Duration
}

// RenderHandle is a running file -> speaker loop
type RenderHandle struct {
	id        string
	path      string
	startedAt time.Time
	total     int64
	opts      Options
	logger    *slog.Logger

	// owned by the loop goroutine
	file   *os.File
	device audio.OutputDevice

	running  atomic.Bool
	written  atomic.Int64
	finished atomic.Bool
	done     chan struct{}

	fatalErr   error
	releaseErr error
}

// BeginRender opens the recording at path, acquires the output device and
// starts playing. The file length at start is the playback length.
func BeginRender(backend audio.Backend, path string, opts Options) (*RenderHandle, error) {
	opts = opts.withDefaults()

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.New(apperr.KindFileNotFound, "begin playback", err)
		}
		return nil, apperr.New(apperr.KindInitFailed, "begin playback", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, apperr.New(apperr.KindInitFailed, "begin playback", err)
	}

	device, err := backend.OpenOutput(opts.Format)
	if err != nil {
		file.Close()
		return nil, apperr.New(apperr.KindInitFailed, "begin playback", err)
	}

	h := &RenderHandle{
		id:        uuid.NewString(),
		path:      path,
		startedAt: time.Now(),
		total:     opts.Format.AlignDown64(info.Size()),
		opts:      opts,
		file:      file,
		device:    device,
		done:      make(chan struct{}),
	}
	h.logger = slog.Default().With("component", "render", "session_id", h.id)
	h.running.Store(true)

	h.logger.Info("Playback started", "file", path, "duration", opts.Format.Duration(h.total))

	go h.run()

	return h, nil
}

func (h *RenderHandle) run() {
	defer close(h.done)
	defer h.release()

	src := io.LimitReader(h.file, h.total)
	buf := make([]byte, h.opts.Format.BufferSize(h.opts.BufferBytes))

	for h.running.Load() {
		n, readErr := io.ReadFull(src, buf)
		if n > 0 {
			written, err := h.device.Write(buf[:n])
			if err == nil && written < n {
				err = io.ErrShortWrite
			}
			h.written.Add(int64(written))
			if err != nil {
				h.fail(fmt.Errorf("device write failed: %w", err))
				return
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
				h.finish()
				return
			}
			h.fail(fmt.Errorf("file read failed: %w", readErr))
			return
		}
	}
}

// finish drains the device after the last chunk so the tail is heard
func (h *RenderHandle) finish() {
	if err := h.device.Drain(); err != nil {
		h.logger.Warn("Failed to drain output device", "error", err)
	}
	h.running.Store(false)
	h.finished.Store(true)
	h.logger.Info("Playback reached end of file")
}

func (h *RenderHandle) fail(err error) {
	h.running.Store(false)
	h.fatalErr = apperr.New(apperr.KindIOFatal, "playback", err)
	h.logger.Error("Playback aborted", "error", err)
}

func (h *RenderHandle) release() {
	var errs []error
	if err := h.device.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close output device: %w", err))
	}
	if err := h.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close playback file: %w", err))
	}
	h.releaseErr = errors.Join(errs...)

	h.logger.Debug("Playback released", "bytes_written", h.written.Load())
}

// End stops playback and waits for the loop to release its resources
func (h *RenderHandle) End() error {
	h.running.Store(false)
	<-h.done

	if h.fatalErr != nil {
		return h.fatalErr
	}
	if h.releaseErr != nil {
		return apperr.New(apperr.KindIOFatal, "end playback", h.releaseErr)
	}
	return nil
}

// Progress reports how much of the recording has been handed to the device
func (h *RenderHandle) Progress() Progress {
	written := h.written.Load()
	if written > h.total {
		written = h.total
	}
	return Progress{
		Position: h.opts.Format.Duration(written),
		Duration: h.opts.Format.Duration(h.total),
	}
}

func (h *RenderHandle) Done() <-chan struct{} {
	return h.done
}

// Finished reports whether playback ended by reaching the end of the file
func (h *RenderHandle) Finished() bool {
	return h.finished.Load()
}

func (h *RenderHandle) Err() error {
	select {
	case <-h.done:
		return h.fatalErr
	default:
		return nil
	}
}

func (h *RenderHandle) ID() string {
	return h.id
}

func (h *RenderHandle) Path() string {
	return h.path
}

func (h *RenderHandle) StartedAt() time.Time {
	return h.startedAt
}

func (h *RenderHandle) TotalBytes() int64 {
	return h.total
}

func (h *RenderHandle) BytesWritten() int64 {
	return h.written.Load()
}
