package audio

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/audiolibrelab/pcmrecorder/internal/config"
)

// BackendType represents the type of audio backend
type BackendType string

const (
	BackendTypePipeWire  BackendType = "pipewire"
	BackendTypeALSA      BackendType = "alsa"
	BackendTypePortAudio BackendType = "portaudio"
	BackendTypeNull      BackendType = "null"
	BackendTypeAuto      BackendType = "auto"
)

// Backend opens capture and render devices
type Backend interface {
	// OpenInput acquires the capture device
	OpenInput(f Format) (InputDevice, error)

	// OpenOutput acquires the render device
	OpenOutput(f Format) (OutputDevice, error)

	// List available audio sources
	ListSources() ([]string, error)

	// Get the backend type
	GetType() BackendType
}

// backendTools lists, in order of preference, the command line tools each
// subprocess backend needs.
var backendTools = []struct {
	backend BackendType
	tools   []string
}{
	{BackendTypePipeWire, []string{"pw-record", "pw-play"}},
	{BackendTypeALSA, []string{"arecord", "aplay"}},
}

// NewBackend creates the backend selected by configuration
func NewBackend(cfg *config.Config) (Backend, error) {
	backendType, err := determineBackend(cfg)
	if err != nil {
		return nil, err
	}

	slog.Debug("Selected audio backend", "backend", backendType)

	switch backendType {
	case BackendTypePipeWire:
		return NewPipeWireBackend(cfg.Audio.InputDevice, cfg.Audio.OutputDevice), nil
	case BackendTypeALSA:
		return NewALSABackend(cfg.Audio.InputDevice, cfg.Audio.OutputDevice), nil
	case BackendTypePortAudio:
		return newPortAudioBackend()
	case BackendTypeNull:
		return NewNullBackend(true), nil
	default:
		return nil, fmt.Errorf("unsupported audio backend: %s", backendType)
	}
}

// determineBackend determines which backend to use based on configuration
func determineBackend(cfg *config.Config) (BackendType, error) {
	requested := BackendType(strings.ToLower(cfg.Audio.Backend))
	if requested != "" && requested != BackendTypeAuto {
		return requested, nil
	}

	available := GetAvailableBackends()
	if len(available) == 0 {
		return "", fmt.Errorf("no audio backend found (install pipewire or alsa-utils, or set audio.backend)")
	}
	return available[0], nil
}

// GetAvailableBackends returns the subprocess backends whose tools are
// installed, in order of preference
func GetAvailableBackends() []BackendType {
	var backends []BackendType
	for _, candidate := range backendTools {
		if toolsInstalled(candidate.tools) {
			backends = append(backends, candidate.backend)
		}
	}
	return backends
}

func toolsInstalled(tools []string) bool {
	for _, tool := range tools {
		if _, err := exec.LookPath(tool); err != nil {
			return false
		}
	}
	return true
}
