// Package session owns the capture and playback state machines. Each kind is
// either Idle or Active; the controller serializes start and stop calls and
// is the only place that creates or ends streams.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/audiolibrelab/pcmrecorder/internal/apperr"
	"github.com/audiolibrelab/pcmrecorder/internal/audio"
	"github.com/audiolibrelab/pcmrecorder/internal/lifecycle"
	"github.com/audiolibrelab/pcmrecorder/internal/storage"
	"github.com/audiolibrelab/pcmrecorder/internal/stream"
)

// State of one session kind
type State string

const (
	StateIdle   State = "IDLE"
	StateActive State = "ACTIVE"
)

// PermissionChecker decides whether the microphone may be used
type PermissionChecker interface {
	CheckMicrophone() error
}

type Options struct {
	Backend    audio.Backend
	Store      *storage.Store
	Permission PermissionChecker
	Notifier   lifecycle.Notifier
	Stream     stream.Options

	// ProbeBeforeCapture opens and immediately releases the input device
	// before the real acquisition.
	ProbeBeforeCapture bool
}

// CaptureInfo describes an accepted capture
type CaptureInfo struct {
	SessionID string    `json:"session_id"`
	Recording string    `json:"recording"`
	StartedAt time.Time `json:"started_at"`
}

// PlaybackInfo describes an accepted playback
type PlaybackInfo struct {
	SessionID string        `json:"session_id"`
	Recording string        `json:"recording"`
	Duration  time.Duration `json:"-"`
}

// PlaybackProgress is the answer to a progress query
type PlaybackProgress struct {
	SessionID string        `json:"session_id"`
	Recording string        `json:"recording"`
	Position  time.Duration `json:"-"`
	Duration  time.Duration `json:"-"`
}

// CaptureStatus is a snapshot of the capture state machine
type CaptureStatus struct {
	State         State     `json:"state"`
	SessionID     string    `json:"session_id,omitempty"`
	Recording     string    `json:"recording,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	BytesCaptured int64     `json:"bytes_captured"`
	Elapsed       float64   `json:"elapsed_seconds"`
	LastError     string    `json:"last_error,omitempty"`
}

// PlaybackStatus is a snapshot of the playback state machine
type PlaybackStatus struct {
	State     State   `json:"state"`
	SessionID string  `json:"session_id,omitempty"`
	Recording string  `json:"recording,omitempty"`
	Position  float64 `json:"position_seconds"`
	Duration  float64 `json:"duration_seconds"`
	LastError string  `json:"last_error,omitempty"`
}

type Status struct {
	Capture  CaptureStatus  `json:"capture"`
	Playback PlaybackStatus `json:"playback"`
}

// Controller coordinates at most one capture and at most one playback
type Controller struct {
	mu sync.Mutex

	backend    audio.Backend
	store      *storage.Store
	permission PermissionChecker
	streamOpts stream.Options
	probe      bool
	dispatcher *lifecycle.Dispatcher
	logger     *slog.Logger

	capture      *stream.CaptureHandle
	captureFault error

	playback      *stream.RenderHandle
	playbackFault error

	closed bool
}

func New(opts Options) *Controller {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = lifecycle.NopNotifier{}
	}

	return &Controller{
		backend:    opts.Backend,
		store:      opts.Store,
		permission: opts.Permission,
		streamOpts: opts.Stream,
		probe:      opts.ProbeBeforeCapture,
		dispatcher: lifecycle.NewDispatcher(notifier),
		logger:     slog.Default().With("component", "session"),
	}
}

// StartCapture checks the preconditions and starts recording into a new
// recording_<unix>.pcm file.
func (c *Controller) StartCapture() (*CaptureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, apperr.New(apperr.KindInitFailed, "start capture", errors.New("controller closed"))
	}

	c.reapCapture()
	if c.capture != nil {
		return nil, apperr.New(apperr.KindAlreadyActive, "start capture", nil)
	}

	if err := c.checkPermission(); err != nil {
		return nil, err
	}

	if c.probe {
		if err := c.probeInput(); err != nil {
			return nil, err
		}
	}

	path, err := c.store.NewRecordingPath()
	if err != nil {
		return nil, apperr.New(apperr.KindInitFailed, "start capture", err)
	}

	h, err := stream.BeginCapture(c.backend, path, c.streamOpts)
	if err != nil {
		c.logger.Warn("Capture acquisition failed", "error", err)
		return nil, err
	}

	c.capture = h
	c.captureFault = nil

	info := &CaptureInfo{
		SessionID: h.ID(),
		Recording: filepath.Base(path),
		StartedAt: h.StartedAt(),
	}
	c.dispatcher.Post(lifecycle.Event{Kind: lifecycle.CaptureStarted, SessionID: info.SessionID, Recording: info.Recording})

	c.logger.Info("Capture session started", "session_id", info.SessionID, "recording", info.Recording)
	return info, nil
}

// StopCapture ends the running capture and returns the finished recording.
// The session is Idle afterwards even when releasing the device failed. A
// capture that died on its own reports its fatal error here once.
func (c *Controller) StopCapture() (*storage.Recording, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reapCapture()
	if c.capture == nil {
		if fault := c.captureFault; fault != nil {
			c.captureFault = nil
			return nil, fault
		}
		return nil, apperr.New(apperr.KindNotActive, "stop capture", nil)
	}

	return c.endCapture()
}

func (c *Controller) endCapture() (*storage.Recording, error) {
	h := c.capture
	c.capture = nil

	endErr := h.End()
	name := filepath.Base(h.Path())

	if endErr != nil {
		c.logger.Error("Capture session ended with error", "session_id", h.ID(), "error", endErr)
		c.dispatcher.Post(lifecycle.Event{Kind: lifecycle.CaptureFailed, SessionID: h.ID(), Recording: name, Err: endErr})
	} else {
		c.logger.Info("Capture session stopped", "session_id", h.ID(), "recording", name, "bytes", h.BytesCaptured())
		c.dispatcher.Post(lifecycle.Event{Kind: lifecycle.CaptureStopped, SessionID: h.ID(), Recording: name})
	}

	rec, statErr := c.store.Stat(name)
	if statErr != nil && endErr == nil {
		return nil, statErr
	}
	return rec, endErr
}

// reapCapture clears a capture whose loop already exited on a fatal error
func (c *Controller) reapCapture() {
	if c.capture == nil {
		return
	}
	select {
	case <-c.capture.Done():
	default:
		return
	}

	h := c.capture
	c.capture = nil
	c.captureFault = h.End()
	if c.captureFault == nil {
		c.captureFault = apperr.New(apperr.KindIOFatal, "capture", errors.New("capture loop exited"))
	}

	c.logger.Warn("Capture session ended unexpectedly", "session_id", h.ID(), "error", c.captureFault)
	c.dispatcher.Post(lifecycle.Event{
		Kind:      lifecycle.CaptureFailed,
		SessionID: h.ID(),
		Recording: filepath.Base(h.Path()),
		Err:       c.captureFault,
	})
}

func (c *Controller) checkPermission() error {
	if c.permission == nil {
		return nil
	}
	if err := c.permission.CheckMicrophone(); err != nil {
		if apperr.KindOf(err) == apperr.KindPermissionDenied {
			return err
		}
		return apperr.New(apperr.KindPermissionDenied, "check microphone", err)
	}
	return nil
}

// probeInput opens the input device and releases it straight away. The
// device can still be taken by someone else before the real acquisition;
// that failure is reported the same way.
func (c *Controller) probeInput() error {
	format := c.streamOpts.Format
	if format == (audio.Format{}) {
		format = audio.PCM16Mono44k
	}

	dev, err := c.backend.OpenInput(format)
	if err != nil {
		return apperr.New(apperr.KindDeviceUnavailable, "probe microphone", err)
	}
	if err := dev.Close(); err != nil {
		c.logger.Debug("Failed to release probed input device", "error", err)
	}
	return nil
}

// StartPlayback plays the recording called name
func (c *Controller) StartPlayback(name string) (*PlaybackInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, apperr.New(apperr.KindInitFailed, "start playback", errors.New("controller closed"))
	}

	c.reapPlayback()
	if c.playback != nil {
		return nil, apperr.New(apperr.KindAlreadyActive, "start playback", nil)
	}

	path, err := c.store.Resolve(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.New(apperr.KindFileNotFound, "start playback", fmt.Errorf("%s", name))
		}
		return nil, apperr.New(apperr.KindInitFailed, "start playback", err)
	}

	h, err := stream.BeginRender(c.backend, path, c.streamOpts)
	if err != nil {
		return nil, err
	}

	c.playback = h
	c.playbackFault = nil

	c.logger.Info("Playback session started", "session_id", h.ID(), "recording", name)
	return &PlaybackInfo{
		SessionID: h.ID(),
		Recording: name,
		Duration:  h.Progress().Duration,
	}, nil
}

// StopPlayback ends the running playback
func (c *Controller) StopPlayback() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reapPlayback()
	if c.playback == nil {
		return apperr.New(apperr.KindNotActive, "stop playback", nil)
	}

	return c.endPlayback()
}

func (c *Controller) endPlayback() error {
	h := c.playback
	c.playback = nil

	if err := h.End(); err != nil {
		c.logger.Error("Playback session ended with error", "session_id", h.ID(), "error", err)
		return err
	}
	c.logger.Info("Playback session stopped", "session_id", h.ID())
	return nil
}

// QueryPlaybackProgress reports the position of the running playback. A
// playback that reached the end of its file is reported as NotActive.
func (c *Controller) QueryPlaybackProgress() (*PlaybackProgress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reapPlayback()
	if c.playback == nil {
		return nil, apperr.New(apperr.KindNotActive, "query playback", nil)
	}

	p := c.playback.Progress()
	return &PlaybackProgress{
		SessionID: c.playback.ID(),
		Recording: filepath.Base(c.playback.Path()),
		Position:  p.Position,
		Duration:  p.Duration,
	}, nil
}

// reapPlayback clears a playback whose loop exited at end of file or on error
func (c *Controller) reapPlayback() {
	if c.playback == nil {
		return
	}
	select {
	case <-c.playback.Done():
	default:
		return
	}

	h := c.playback
	c.playback = nil

	if err := h.End(); err != nil {
		c.playbackFault = err
		c.logger.Warn("Playback session ended with error", "session_id", h.ID(), "error", err)
		return
	}
	c.logger.Debug("Playback session finished", "session_id", h.ID(), "finished", h.Finished())
}

// ListRecordings returns all recordings, newest first
func (c *Controller) ListRecordings() ([]storage.Recording, error) {
	return c.store.List()
}

// RecordingInfo returns the recording called name
func (c *Controller) RecordingInfo(name string) (*storage.Recording, error) {
	return c.store.Stat(name)
}

// DeleteRecording removes a recording that is neither being captured nor played
func (c *Controller) DeleteRecording(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	path, err := c.store.Resolve(name)
	if err != nil {
		return err
	}

	c.reapCapture()
	c.reapPlayback()

	if c.capture != nil && c.capture.Path() == path {
		return apperr.New(apperr.KindInUse, "delete recording", fmt.Errorf("%s is being recorded", name))
	}
	if c.playback != nil && c.playback.Path() == path {
		return apperr.New(apperr.KindInUse, "delete recording", fmt.Errorf("%s is being played", name))
	}

	return c.store.Delete(name)
}

// EnsureFinished fails with InUse while name is still being recorded.
// Recordings that are being played are finished and may be read.
func (c *Controller) EnsureFinished(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	path, err := c.store.Resolve(name)
	if err != nil {
		return err
	}

	c.reapCapture()
	if c.capture != nil && c.capture.Path() == path {
		return apperr.New(apperr.KindInUse, "read recording", fmt.Errorf("%s is being recorded", name))
	}
	return nil
}

// CheckMicrophonePermission returns nil when capture is allowed
func (c *Controller) CheckMicrophonePermission() error {
	return c.checkPermission()
}

// CheckMicrophoneAvailable probes the input device. While a capture is
// running the device is ours and counts as available.
func (c *Controller) CheckMicrophoneAvailable() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reapCapture()
	if c.capture != nil {
		return nil
	}
	return c.probeInput()
}

// Status returns a snapshot of both state machines
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reapCapture()
	c.reapPlayback()

	var st Status

	st.Capture.State = StateIdle
	if c.capture != nil {
		st.Capture.State = StateActive
		st.Capture.SessionID = c.capture.ID()
		st.Capture.Recording = filepath.Base(c.capture.Path())
		st.Capture.StartedAt = c.capture.StartedAt()
		st.Capture.BytesCaptured = c.capture.BytesCaptured()
		st.Capture.Elapsed = c.capture.Elapsed().Seconds()
	}
	if c.captureFault != nil {
		st.Capture.LastError = apperr.Message(c.captureFault)
	}

	st.Playback.State = StateIdle
	if c.playback != nil {
		p := c.playback.Progress()
		st.Playback.State = StateActive
		st.Playback.SessionID = c.playback.ID()
		st.Playback.Recording = filepath.Base(c.playback.Path())
		st.Playback.Position = p.Position.Seconds()
		st.Playback.Duration = p.Duration.Seconds()
	}
	if c.playbackFault != nil {
		st.Playback.LastError = apperr.Message(c.playbackFault)
	}

	return st
}

// Retire closes an idle controller. It fails with InUse, and leaves the
// controller usable, while a capture or playback is running. Once retired
// the controller refuses new sessions.
func (c *Controller) Retire() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.reapCapture()
	c.reapPlayback()
	if c.capture != nil || c.playback != nil {
		return apperr.New(apperr.KindInUse, "retire controller", errors.New("a session is running"))
	}

	c.closed = true
	return c.dispatcher.Close()
}

// Close stops any running session and flushes pending notifications
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if c.capture != nil {
		if _, err := c.endCapture(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.playback != nil {
		if err := c.endPlayback(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.dispatcher.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
