package service

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/pcmrecorder/internal/apperr"
	"github.com/audiolibrelab/pcmrecorder/internal/config"
	"github.com/audiolibrelab/pcmrecorder/internal/session"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	disabled := false

	cfg := config.Default()
	cfg.Audio.Backend = "null"
	cfg.Storage.Directory = filepath.Join(dir, "recordings")
	cfg.Storage.ExportDirectory = filepath.Join(dir, "share")
	cfg.Permission.Microphone = config.MicrophoneGranted
	cfg.Notifications.Enabled = &disabled
	cfg.Playback.PollInterval = 20 * time.Millisecond
	return cfg
}

func newTestService(t *testing.T) *RecorderService {
	t.Helper()
	svc, err := New(testConfig(t), "")
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestService_LastErrorTracking(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.StopCapture()
	assert.ErrorIs(t, err, apperr.ErrNotActive)
	assert.Equal(t, "Nothing to stop", svc.GetLastError())

	_, err = svc.StartCapture()
	require.NoError(t, err)
	assert.Empty(t, svc.GetLastError())

	status := svc.Status()
	assert.Equal(t, session.StateActive, status.Capture.State)
	assert.Equal(t, "null", status.Backend)

	time.Sleep(100 * time.Millisecond)
	rec, err := svc.StopCapture()
	require.NoError(t, err)
	assert.Greater(t, rec.Size, int64(0))
}

func TestService_RunPipeline(t *testing.T) {
	svc := newTestService(t)

	err := svc.RunPipeline(context.Background(), "rpe", 100*time.Millisecond)
	require.NoError(t, err)

	recordings, err := svc.ListRecordings()
	require.NoError(t, err)
	require.Len(t, recordings, 1)
	assert.Greater(t, recordings[0].Size, int64(0))

	status := svc.Status()
	assert.Equal(t, session.StateIdle, status.Capture.State)
	assert.Equal(t, session.StateIdle, status.Playback.State)
	wavName := strings.TrimSuffix(recordings[0].Name, ".pcm") + ".wav"
	assert.FileExists(t, filepath.Join(svc.GetConfig().Storage.ExportDirectory, wavName))
}

func TestService_RunPipelineErrors(t *testing.T) {
	svc := newTestService(t)

	err := svc.RunPipeline(context.Background(), "x", 0)
	assert.ErrorContains(t, err, "unknown pipeline step")

	err = svc.RunPipeline(context.Background(), "p", 0)
	assert.ErrorIs(t, err, apperr.ErrFileNotFound)
}

func TestService_RecordUntilCancelled(t *testing.T) {
	svc := newTestService(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, svc.RunPipeline(ctx, "r", 0))

	recordings, err := svc.ListRecordings()
	require.NoError(t, err)
	assert.Len(t, recordings, 1)
}

func TestService_ReloadRefusedWhileActive(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.StartCapture()
	require.NoError(t, err)

	next := testConfig(t)
	assert.ErrorIs(t, svc.Reload(next), apperr.ErrInUse)

	_, err = svc.StopCapture()
	require.NoError(t, err)

	require.NoError(t, svc.Reload(next))
	assert.Same(t, next, svc.GetConfig())
}

func TestService_ReloadRetiresOldController(t *testing.T) {
	svc := newTestService(t)
	old := svc.ctrl()

	require.NoError(t, svc.Reload(testConfig(t)))

	// a caller still holding the previous controller cannot start a session
	_, err := old.StartCapture()
	assert.ErrorIs(t, err, apperr.ErrInitFailed)

	_, err = svc.StartCapture()
	require.NoError(t, err)
	_, err = svc.StopCapture()
	require.NoError(t, err)
}

func TestService_ExportRefusedWhileRecording(t *testing.T) {
	svc := newTestService(t)

	info, err := svc.StartCapture()
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)

	_, err = svc.ExportRecording(info.Recording, "wav")
	assert.ErrorIs(t, err, apperr.ErrInUse)

	_, err = svc.StopCapture()
	require.NoError(t, err)

	path, err := svc.ExportRecording(info.Recording, "wav")
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestService_ExportAndDelete(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.StartCapture()
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)
	rec, err := svc.StopCapture()
	require.NoError(t, err)

	path, err := svc.ExportRecording(rec.Name, "wav")
	require.NoError(t, err)
	assert.FileExists(t, path)

	require.NoError(t, svc.DeleteRecording(rec.Name))
	_, err = svc.RecordingInfo(rec.Name)
	assert.ErrorIs(t, err, apperr.ErrFileNotFound)
}

func TestService_Checks(t *testing.T) {
	svc := newTestService(t)

	assert.NoError(t, svc.CheckMicrophonePermission())
	assert.NoError(t, svc.CheckMicrophoneAvailable())

	sources, err := svc.ListSources()
	require.NoError(t, err)
	assert.NotEmpty(t, sources)
}
