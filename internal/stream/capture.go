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

// CaptureHandle is a running mic -> file loop
type CaptureHandle struct {
	id        string
	path      string
	startedAt time.Time
	opts      Options
	logger    *slog.Logger

	// owned by the loop goroutine
	file    *os.File
	device  audio.InputDevice
	written int64

	running atomic.Bool
	bytes   atomic.Int64
	done    chan struct{}

	// set by the loop before done is closed
	fatalErr   error
	releaseErr error
}

// BeginCapture acquires the input device, creates path and starts the
// capture loop. path must not exist yet; a finished recording is never
// reopened for writing.
func BeginCapture(backend audio.Backend, path string, opts Options) (*CaptureHandle, error) {
	opts = opts.withDefaults()

	// acquire the device first so a busy mic leaves no empty file behind
	device, err := backend.OpenInput(opts.Format)
	if err != nil {
		return nil, apperr.New(apperr.KindDeviceUnavailable, "begin capture", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		device.Close()
		if errors.Is(err, os.ErrPermission) {
			return nil, apperr.New(apperr.KindPermissionDenied, "begin capture", err)
		}
		return nil, apperr.New(apperr.KindInitFailed, "begin capture", err)
	}

	h := &CaptureHandle{
		id:        uuid.NewString(),
		path:      path,
		startedAt: time.Now(),
		opts:      opts,
		file:      file,
		device:    device,
		done:      make(chan struct{}),
	}
	h.logger = slog.Default().With("component", "capture", "session_id", h.id)
	h.running.Store(true)

	h.logger.Info("Capture started", "file", path, "buffer_bytes", opts.Format.BufferSize(opts.BufferBytes))

	go h.run()

	return h, nil
}

func (h *CaptureHandle) run() {
	defer close(h.done)
	defer h.release()

	buf := make([]byte, h.opts.Format.BufferSize(h.opts.BufferBytes))
	carry := 0
	consecutive := 0

	for h.running.Load() {
		n, readErr := h.device.Read(buf[carry:])
		n += carry

		aligned := h.opts.Format.AlignDown(n)
		if aligned > 0 {
			if err := h.writeChunk(buf[:aligned]); err != nil {
				consecutive++
				h.logger.Warn("Dropped capture chunk", "bytes", aligned, "error", err, "consecutive_errors", consecutive)
				if consecutive >= h.opts.MaxConsecutiveErrors {
					h.fail(fmt.Errorf("too many consecutive errors: %w", err))
					return
				}
			} else if readErr == nil {
				consecutive = 0
			}
		}
		carry = copy(buf, buf[aligned:n])

		if readErr == nil {
			continue
		}

		if errors.Is(readErr, audio.ErrDeviceClosed) || errors.Is(readErr, io.EOF) {
			if !h.running.Load() {
				return
			}
			h.fail(readErr)
			return
		}

		consecutive++
		h.logger.Warn("Capture read failed", "error", readErr, "consecutive_errors", consecutive)
		if consecutive >= h.opts.MaxConsecutiveErrors {
			h.fail(fmt.Errorf("too many consecutive errors: %w", readErr))
			return
		}
	}
}

// writeChunk writes one frame-aligned chunk. A short write is rolled back
// so the file never ends on a partial frame.
func (h *CaptureHandle) writeChunk(chunk []byte) error {
	n, err := h.file.Write(chunk)
	if err == nil && n == len(chunk) {
		h.written += int64(n)
		h.bytes.Add(int64(n))
		return nil
	}

	if err == nil {
		err = io.ErrShortWrite
	}
	if n > 0 {
		if truncErr := h.file.Truncate(h.written); truncErr != nil {
			h.logger.Error("Failed to roll back partial write", "error", truncErr)
		} else if _, seekErr := h.file.Seek(h.written, io.SeekStart); seekErr != nil {
			h.logger.Error("Failed to rewind after partial write", "error", seekErr)
		}
	}
	return apperr.New(apperr.KindIOTransient, "write chunk", err)
}

func (h *CaptureHandle) fail(err error) {
	h.running.Store(false)
	h.fatalErr = apperr.New(apperr.KindIOFatal, "capture", err)
	h.logger.Error("Capture aborted", "error", err)
}

func (h *CaptureHandle) release() {
	var errs []error
	if err := h.device.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close input device: %w", err))
	}
	if err := h.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close capture file: %w", err))
	}
	h.releaseErr = errors.Join(errs...)

	h.logger.Info("Capture released", "file", h.path, "bytes", h.bytes.Load())
}

// End stops the loop, waits for it to exit and returns any error from
// releasing the device and file. A loop that already died of a fatal error
// reports that error instead.
func (h *CaptureHandle) End() error {
	h.running.Store(false)
	<-h.done

	if h.fatalErr != nil {
		return h.fatalErr
	}
	if h.releaseErr != nil {
		return apperr.New(apperr.KindIOFatal, "end capture", h.releaseErr)
	}
	return nil
}

// Done is closed once the loop has exited and released its resources
func (h *CaptureHandle) Done() <-chan struct{} {
	return h.done
}

// Err returns the fatal error that ended the loop, if any. Only meaningful
// after Done is closed.
func (h *CaptureHandle) Err() error {
	select {
	case <-h.done:
		return h.fatalErr
	default:
		return nil
	}
}

func (h *CaptureHandle) ID() string {
	return h.id
}

func (h *CaptureHandle) Path() string {
	return h.path
}

func (h *CaptureHandle) StartedAt() time.Time {
	return h.startedAt
}

// BytesCaptured is the number of bytes appended by this session
func (h *CaptureHandle) BytesCaptured() int64 {
	return h.bytes.Load()
}

// Elapsed is the audio duration captured so far
func (h *CaptureHandle) Elapsed() time.Duration {
	return h.opts.Format.Duration(h.bytes.Load())
}
