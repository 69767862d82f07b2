package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/pcmrecorder/internal/apperr"
	"github.com/audiolibrelab/pcmrecorder/internal/audio"
	"github.com/audiolibrelab/pcmrecorder/internal/config"
	"github.com/audiolibrelab/pcmrecorder/internal/export"
	"github.com/audiolibrelab/pcmrecorder/internal/lifecycle"
	"github.com/audiolibrelab/pcmrecorder/internal/permission"
	"github.com/audiolibrelab/pcmrecorder/internal/session"
	"github.com/audiolibrelab/pcmrecorder/internal/storage"
	"github.com/audiolibrelab/pcmrecorder/internal/stream"
)

// Service is the operation surface shared by the CLI and the HTTP server
type Service interface {
	// Capture operations
	StartCapture() (*session.CaptureInfo, error)
	StopCapture() (*storage.Recording, error)

	// Playback operations
	StartPlayback(name string) (*session.PlaybackInfo, error)
	StopPlayback() error
	QueryPlaybackProgress() (*session.PlaybackProgress, error)

	// Recording operations
	ListRecordings() ([]storage.Recording, error)
	RecordingInfo(name string) (*storage.Recording, error)
	DeleteRecording(name string) error
	ExportRecording(name, format string) (string, error)

	// Pipeline operations
	RunPipeline(ctx context.Context, steps string, duration time.Duration) error

	// Checks
	CheckMicrophonePermission() error
	CheckMicrophoneAvailable() error
	CheckNotificationSupport(ctx context.Context) lifecycle.Support
	ListSources() ([]string, error)

	// Configuration operations
	LoadProfile(profile string) error
	Reload(cfg *config.Config) error
	GetConfig() *config.Config

	// Information operations
	Status() Status
	GetLastError() string

	Close() error
}

// Status is the controller snapshot plus service level details
type Status struct {
	session.Status
	Backend   string `json:"backend"`
	LastError string `json:"last_error,omitempty"`
}

// RecorderService is the main service implementation
type RecorderService struct {
	mu         sync.RWMutex
	cfg        *config.Config
	configFile string
	backend    audio.Backend
	store      *storage.Store
	controller *session.Controller
	exporter   *export.Exporter

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a service for cfg. configFile is used to switch profiles.
func New(cfg *config.Config, configFile string) (*RecorderService, error) {
	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}

	s := &RecorderService{configFile: configFile}
	s.apply(cfg, backend)
	return s, nil
}

func newBackend(cfg *config.Config) (audio.Backend, error) {
	backend, err := audio.NewBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio backend: %w", err)
	}
	return backend, nil
}

// apply builds the store, exporter and controller for cfg
func (s *RecorderService) apply(cfg *config.Config, backend audio.Backend) {
	store := storage.NewStore(cfg.Storage.Directory)

	s.cfg = cfg
	s.backend = backend
	s.store = store
	s.exporter = export.New(store, cfg.Storage.ExportDirectory)
	s.controller = session.New(session.Options{
		Backend:    backend,
		Store:      store,
		Permission: permission.NewChecker(cfg.Permission),
		Notifier:   newNotifier(cfg.Notifications),
		Stream: stream.Options{
			Format:               audio.PCM16Mono44k,
			BufferBytes:          cfg.Audio.BufferBytes,
			MaxConsecutiveErrors: cfg.Audio.MaxConsecutiveErrors,
		},
		ProbeBeforeCapture: cfg.Audio.ProbeEnabled(),
	})

	slog.Debug("Service configured", "backend", backend.GetType(), "directory", store.Dir())
}

func newNotifier(cfg config.NotificationsConfig) lifecycle.Notifier {
	if !cfg.NotificationsEnabled() {
		return lifecycle.NopNotifier{}
	}

	n, err := lifecycle.NewDBusNotifier(cfg.AppName, cfg.Timeout)
	if err != nil {
		slog.Info("Desktop notifications unavailable", "error", err)
		return lifecycle.NopNotifier{}
	}
	return n
}

func (s *RecorderService) ctrl() *session.Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.controller
}

// record tracks the outcome of an operation for GetLastError
func (s *RecorderService) record(op string, err error) error {
	if err != nil {
		slog.Debug("Service operation failed", "operation", op, "error", err)
		s.setLastError(apperr.Message(err))
	} else {
		s.clearLastError()
	}
	return err
}

// StartCapture starts a new recording
func (s *RecorderService) StartCapture() (*session.CaptureInfo, error) {
	info, err := s.ctrl().StartCapture()
	return info, s.record("start capture", err)
}

// StopCapture stops the current recording
func (s *RecorderService) StopCapture() (*storage.Recording, error) {
	rec, err := s.ctrl().StopCapture()
	return rec, s.record("stop capture", err)
}

func (s *RecorderService) StartPlayback(name string) (*session.PlaybackInfo, error) {
	info, err := s.ctrl().StartPlayback(name)
	return info, s.record("start playback", err)
}

func (s *RecorderService) StopPlayback() error {
	return s.record("stop playback", s.ctrl().StopPlayback())
}

// QueryPlaybackProgress does not touch the last error; a NotActive answer
// is the normal end of a playback.
func (s *RecorderService) QueryPlaybackProgress() (*session.PlaybackProgress, error) {
	return s.ctrl().QueryPlaybackProgress()
}

func (s *RecorderService) ListRecordings() ([]storage.Recording, error) {
	recordings, err := s.ctrl().ListRecordings()
	if err != nil {
		s.setLastError(apperr.Message(err))
	}
	return recordings, err
}

func (s *RecorderService) RecordingInfo(name string) (*storage.Recording, error) {
	return s.ctrl().RecordingInfo(name)
}

func (s *RecorderService) DeleteRecording(name string) error {
	return s.record("delete recording", s.ctrl().DeleteRecording(name))
}

// ExportRecording writes a shareable copy of name in format. A recording
// that is still being captured is refused with InUse.
func (s *RecorderService) ExportRecording(name, format string) (string, error) {
	s.mu.RLock()
	exporter := s.exporter
	controller := s.controller
	s.mu.RUnlock()

	if err := controller.EnsureFinished(name); err != nil {
		return "", s.record("export recording", err)
	}

	path, err := exporter.Export(name, format)
	return path, s.record("export recording", err)
}

// RunPipeline executes a sequence of operations (r=record, p=play, e=export).
// Recording lasts for duration or until ctx is cancelled; play and export
// act on the recording made by the pipeline, or the newest one.
func (s *RecorderService) RunPipeline(ctx context.Context, steps string, duration time.Duration) error {
	var current string

	for _, step := range steps {
		switch step {
		case 'r':
			name, err := s.recordFor(ctx, duration)
			if err != nil {
				return fmt.Errorf("pipeline record failed: %w", err)
			}
			current = name
		case 'p':
			name, err := s.pipelineTarget(current)
			if err != nil {
				return err
			}
			if err := s.playToEnd(ctx, name); err != nil {
				return fmt.Errorf("pipeline play failed: %w", err)
			}
		case 'e':
			name, err := s.pipelineTarget(current)
			if err != nil {
				return err
			}
			path, err := s.ExportRecording(name, export.FormatWAV)
			if err != nil {
				return fmt.Errorf("pipeline export failed: %w", err)
			}
			slog.Info("Pipeline exported recording", "file", path)
		default:
			return fmt.Errorf("unknown pipeline step: '%c' (valid: r=record, p=play, e=export)", step)
		}
	}
	return nil
}

func (s *RecorderService) pipelineTarget(current string) (string, error) {
	if current != "" {
		return current, nil
	}
	recordings, err := s.ListRecordings()
	if err != nil {
		return "", err
	}
	if len(recordings) == 0 {
		return "", apperr.New(apperr.KindFileNotFound, "pipeline", errors.New("no recordings"))
	}
	return recordings[0].Name, nil
}

func (s *RecorderService) recordFor(ctx context.Context, duration time.Duration) (string, error) {
	info, err := s.StartCapture()
	if err != nil {
		return "", err
	}

	var timeout <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
	case <-timeout:
	}

	if _, err := s.StopCapture(); err != nil {
		return "", err
	}
	return info.Recording, nil
}

// playToEnd plays name and waits until it finishes or ctx is cancelled
func (s *RecorderService) playToEnd(ctx context.Context, name string) error {
	if _, err := s.StartPlayback(name); err != nil {
		return err
	}

	ticker := time.NewTicker(s.GetConfig().Playback.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := s.StopPlayback(); err != nil && !errors.Is(err, apperr.ErrNotActive) {
				return err
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.QueryPlaybackProgress(); err != nil {
				if errors.Is(err, apperr.ErrNotActive) {
					return nil
				}
				return err
			}
		}
	}
}

func (s *RecorderService) CheckMicrophonePermission() error {
	return s.ctrl().CheckMicrophonePermission()
}

func (s *RecorderService) CheckMicrophoneAvailable() error {
	return s.ctrl().CheckMicrophoneAvailable()
}

// CheckNotificationSupport probes the desktop notification service unless
// notifications are switched off in the configuration
func (s *RecorderService) CheckNotificationSupport(ctx context.Context) lifecycle.Support {
	if !s.GetConfig().Notifications.NotificationsEnabled() {
		return lifecycle.Support{}
	}
	return lifecycle.CheckNotificationSupport(ctx)
}

// ListSources lists capture sources known to the audio backend
func (s *RecorderService) ListSources() ([]string, error) {
	s.mu.RLock()
	backend := s.backend
	s.mu.RUnlock()
	return backend.ListSources()
}

// LoadProfile switches to another configuration profile. It is refused
// while a capture or playback is running.
func (s *RecorderService) LoadProfile(profile string) error {
	newCfg, err := config.LoadWithProfile(s.configFile, profile)
	if err != nil {
		return fmt.Errorf("failed to load profile '%s': %w", profile, err)
	}
	return s.Reload(newCfg)
}

// Reload replaces the running configuration with cfg. The old controller
// is retired under its own lock, so a session started concurrently either
// blocks the reload or is refused by the retired controller.
func (s *RecorderService) Reload(cfg *config.Config) error {
	backend, err := newBackend(cfg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.controller.Retire(); err != nil {
		if errors.Is(err, apperr.ErrInUse) {
			return err
		}
		slog.Warn("Failed to close previous controller", "error", err)
	}

	s.apply(cfg, backend)

	slog.Info("Configuration reloaded", "backend", s.backend.GetType())
	return nil
}

// GetConfig returns the current configuration
func (s *RecorderService) GetConfig() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *RecorderService) Status() Status {
	s.mu.RLock()
	backend := s.backend
	controller := s.controller
	s.mu.RUnlock()

	return Status{
		Status:    controller.Status(),
		Backend:   string(backend.GetType()),
		LastError: s.GetLastError(),
	}
}

// Close stops any running session
func (s *RecorderService) Close() error {
	return s.ctrl().Close()
}

// GetLastError returns the last error message (thread-safe)
func (s *RecorderService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *RecorderService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (s *RecorderService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}
