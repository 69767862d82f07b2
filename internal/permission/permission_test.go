package permission

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/pcmrecorder/internal/apperr"
	"github.com/audiolibrelab/pcmrecorder/internal/config"
)

func TestCheckMicrophone_Configured(t *testing.T) {
	granted := NewChecker(config.PermissionConfig{Microphone: config.MicrophoneGranted})
	assert.NoError(t, granted.CheckMicrophone())

	denied := NewChecker(config.PermissionConfig{Microphone: config.MicrophoneDenied})
	assert.ErrorIs(t, denied.CheckMicrophone(), apperr.ErrPermissionDenied)
}

func TestCheckMicrophone_AutoWithoutSoundDir(t *testing.T) {
	c := NewChecker(config.PermissionConfig{})
	c.soundDir = filepath.Join(t.TempDir(), "missing")

	assert.NoError(t, c.CheckMicrophone())
}

func TestCheckMicrophone_AutoAccessibleNode(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pcmC0D0c"), nil, 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pcmC0D0p"), nil, 0600))

	c := NewChecker(config.PermissionConfig{Microphone: config.MicrophoneAuto})
	c.soundDir = dir

	assert.NoError(t, c.CheckMicrophone())
}

func TestCheckMicrophone_AutoInaccessibleNode(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root bypasses file permissions")
	}

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pcmC0D0c"), nil, 0000))

	c := NewChecker(config.PermissionConfig{Microphone: config.MicrophoneAuto})
	c.soundDir = dir

	assert.ErrorIs(t, c.CheckMicrophone(), apperr.ErrPermissionDenied)
}
