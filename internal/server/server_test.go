package server

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/pcmrecorder/internal/apperr"
	"github.com/audiolibrelab/pcmrecorder/internal/audio"
	"github.com/audiolibrelab/pcmrecorder/internal/config"
	"github.com/audiolibrelab/pcmrecorder/internal/service"
)

func newTestServer(t *testing.T) (*httptest.Server, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	disabled := false

	cfg := config.Default()
	cfg.Audio.Backend = "null"
	cfg.Storage.Directory = filepath.Join(dir, "recordings")
	cfg.Storage.ExportDirectory = filepath.Join(dir, "share")
	cfg.Permission.Microphone = config.MicrophoneGranted
	cfg.Notifications.Enabled = &disabled

	svc, err := service.New(cfg, "")
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	ts := httptest.NewServer(New(svc, "0").Handler())
	t.Cleanup(ts.Close)
	return ts, cfg
}

func writeRecording(t *testing.T, cfg *config.Config, name string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(cfg.Storage.Directory, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Storage.Directory, name), make([]byte, size), 0644))
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func post(t *testing.T, ts *httptest.Server, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := http.PostForm(ts.URL+path, form)
	require.NoError(t, err)
	return resp
}

func TestCaptureLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := post(t, ts, "/capture/start", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, true, body["success"])

	resp = post(t, ts, "/capture/start", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	body = decode(t, resp)
	assert.Equal(t, apperr.Message(apperr.ErrAlreadyActive), body["error"])

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	body = decode(t, resp)
	capture := body["capture"].(map[string]interface{})
	assert.Equal(t, "ACTIVE", capture["state"])

	time.Sleep(100 * time.Millisecond)

	resp = post(t, ts, "/capture/stop", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body = decode(t, resp)
	rec := body["recording"].(map[string]interface{})
	assert.Greater(t, rec["size"].(float64), 0.0)

	resp = post(t, ts, "/capture/stop", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestRecordingsListAndDelete(t *testing.T) {
	ts, cfg := newTestServer(t)
	writeRecording(t, cfg, "recording_100.pcm", 882)
	writeRecording(t, cfg, "recording_200.pcm", 88200)

	resp, err := http.Get(ts.URL + "/recordings")
	require.NoError(t, err)
	var list RecordingsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()

	require.Equal(t, 2, list.TotalCount)
	assert.Equal(t, "recording_200.pcm", list.Recordings[0].Name)
	assert.InDelta(t, 1.0, list.Recordings[0].DurationSeconds, 0.0001)
	assert.Equal(t, "/recordings/recording_200.pcm/wav", list.Recordings[0].StreamURL)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/recordings/recording_100.pcm", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/recordings/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestPlayback(t *testing.T) {
	ts, cfg := newTestServer(t)
	writeRecording(t, cfg, "recording_300.pcm", 88200*5)

	resp := post(t, ts, "/playback/start", url.Values{"name": {"recording_404.pcm"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = post(t, ts, "/playback/start", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = post(t, ts, "/playback/start", url.Values{"name": {"recording_300.pcm"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.InDelta(t, 5.0, body["duration_seconds"].(float64), 0.0001)

	resp, err := http.Get(ts.URL + "/playback/progress")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var progress ProgressResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&progress))
	resp.Body.Close()
	assert.LessOrEqual(t, progress.Position, progress.Duration)
	assert.Equal(t, "recording_300.pcm", progress.Recording)

	resp = post(t, ts, "/playback/stop", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/playback/progress")
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestRecordingStreamIsWAV(t *testing.T) {
	ts, cfg := newTestServer(t)
	writeRecording(t, cfg, "recording_400.pcm", 1000)

	resp, err := http.Get(ts.URL + "/recordings/recording_400.pcm/wav")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Len(t, data, audio.WAVHeaderSize+1000)
	assert.Equal(t, "RIFF", string(data[:4]))
	assert.Equal(t, uint32(1000), binary.LittleEndian.Uint32(data[40:44]))
}

func TestRecordingDownload(t *testing.T) {
	ts, cfg := newTestServer(t)
	writeRecording(t, cfg, "recording_500.pcm", 64)

	resp, err := http.Get(ts.URL + "/recordings/recording_500.pcm/download")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(resp.Header.Get("Content-Disposition"), "recording_500.pcm"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Len(t, data, 64)
}

func TestExport(t *testing.T) {
	ts, cfg := newTestServer(t)
	writeRecording(t, cfg, "recording_600.pcm", 64)

	resp := post(t, ts, "/recordings/recording_600.pcm/export?format=wav", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.FileExists(t, body["file"].(string))

	resp = post(t, ts, "/recordings/recording_600.pcm/export?format=ogg", nil)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	resp.Body.Close()
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/capture/start")
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	resp.Body.Close()
}

func TestChecksAndSources(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/checks")
	require.NoError(t, err)
	var checks ChecksResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&checks))
	resp.Body.Close()
	assert.True(t, checks.MicrophonePermission.OK)
	assert.True(t, checks.MicrophoneAvailable.OK)
	assert.Contains(t, checks.ExportFormats, "wav")

	resp, err = http.Get(ts.URL + "/sources")
	require.NoError(t, err)
	var sources SourcesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sources))
	resp.Body.Close()
	assert.Equal(t, "null", sources.Backend)
	assert.NotEmpty(t, sources.Sources)
}
