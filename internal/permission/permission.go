package permission

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/audiolibrelab/pcmrecorder/internal/apperr"
	"github.com/audiolibrelab/pcmrecorder/internal/config"
)

const defaultSoundDir = "/dev/snd"

// Checker answers whether this user may record from the microphone
type Checker struct {
	mode     string
	soundDir string
}

func NewChecker(cfg config.PermissionConfig) *Checker {
	mode := cfg.Microphone
	if mode == "" {
		mode = config.MicrophoneAuto
	}
	return &Checker{mode: mode, soundDir: defaultSoundDir}
}

// CheckMicrophone returns nil when capture is allowed and a PermissionDenied
// error otherwise.
func (c *Checker) CheckMicrophone() error {
	switch c.mode {
	case config.MicrophoneGranted:
		return nil
	case config.MicrophoneDenied:
		return apperr.New(apperr.KindPermissionDenied, "check microphone", fmt.Errorf("denied by configuration"))
	default:
		return c.checkDeviceNodes()
	}
}

// checkDeviceNodes grants access when at least one ALSA capture node is
// readable and writable. Systems without /dev/snd (sound servers running
// elsewhere, containers) are left to the device probe.
func (c *Checker) checkDeviceNodes() error {
	nodes, err := filepath.Glob(filepath.Join(c.soundDir, "pcmC*D*c"))
	if err != nil {
		return fmt.Errorf("failed to scan sound devices: %w", err)
	}

	if len(nodes) == 0 {
		slog.Debug("No ALSA capture nodes found, skipping permission check", "dir", c.soundDir)
		return nil
	}

	var lastErr error
	for _, node := range nodes {
		if err := unix.Access(node, unix.R_OK|unix.W_OK); err != nil {
			lastErr = fmt.Errorf("%s: %w", node, err)
			continue
		}
		return nil
	}

	return apperr.New(apperr.KindPermissionDenied, "check microphone", lastErr)
}
