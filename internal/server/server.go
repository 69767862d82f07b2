package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/audiolibrelab/pcmrecorder/internal/apperr"
	"github.com/audiolibrelab/pcmrecorder/internal/audio"
	"github.com/audiolibrelab/pcmrecorder/internal/export"
	"github.com/audiolibrelab/pcmrecorder/internal/lifecycle"
	"github.com/audiolibrelab/pcmrecorder/internal/service"
	"github.com/audiolibrelab/pcmrecorder/internal/session"
	"github.com/audiolibrelab/pcmrecorder/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the recorder operations as a JSON API for a remote UI
type Server struct {
	service service.Service
	port    string
}

// StatusResponse represents the JSON response for status endpoint
type StatusResponse struct {
	service.Status
	Message   string `json:"message,omitempty"`
	Directory string `json:"directory"`
}

// RecordingsResponse represents the JSON response for the recordings list
type RecordingsResponse struct {
	Recordings []RecordingInfo `json:"recordings"`
	TotalCount int             `json:"total_count"`
	Directory  string          `json:"directory"`
}

// RecordingInfo is a recording plus the URLs to fetch it
type RecordingInfo struct {
	storage.Recording
	StreamURL   string `json:"stream_url"`
	DownloadURL string `json:"download_url"`
}

// ProgressResponse represents the JSON response for playback progress
type ProgressResponse struct {
	SessionID string  `json:"session_id"`
	Recording string  `json:"recording"`
	Position  float64 `json:"position_seconds"`
	Duration  float64 `json:"duration_seconds"`
}

// CheckResult is the outcome of a single precondition check
type CheckResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ChecksResponse represents the JSON response for the checks endpoint
type ChecksResponse struct {
	MicrophonePermission CheckResult       `json:"microphone_permission"`
	MicrophoneAvailable  CheckResult       `json:"microphone_available"`
	Notifications        lifecycle.Support `json:"notifications"`
	ExportFormats        []string          `json:"export_formats"`
}

// SourcesResponse represents the JSON response for the sources endpoint
type SourcesResponse struct {
	Backend string   `json:"backend"`
	Sources []string `json:"sources"`
}

func New(svc service.Service, port string) *Server {
	return &Server{
		service: svc,
		port:    port,
	}
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/capture/start", s.handleStartCapture)
	mux.HandleFunc("/capture/stop", s.handleStopCapture)
	mux.HandleFunc("/playback/start", s.handleStartPlayback)
	mux.HandleFunc("/playback/stop", s.handleStopPlayback)
	mux.HandleFunc("/playback/progress", s.handleProgress)
	mux.HandleFunc("/recordings", s.handleRecordings)
	mux.HandleFunc("/recordings/{name}", s.handleRecording)
	mux.HandleFunc("/recordings/{name}/wav", s.handleRecordingStream)
	mux.HandleFunc("/recordings/{name}/download", s.handleRecordingDownload)
	mux.HandleFunc("/recordings/{name}/export", s.handleExport)
	mux.HandleFunc("/checks", s.handleChecks)
	mux.HandleFunc("/sources", s.handleSources)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	localIP := getLocalIP()
	slog.Info("Starting pcmrecorder API server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	status := s.service.Status()
	response := StatusResponse{
		Status:    status,
		Message:   generateStatusMessage(status),
		Directory: s.service.GetConfig().Storage.Directory,
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleStartCapture(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	info, err := s.service.StartCapture()
	if err != nil {
		s.sendError(w, err, "operation", "start_capture")
		return
	}

	slog.Info("Server: capture started", "recording", info.Recording, "session_id", info.SessionID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Recording started",
		"session": info,
	})
}

func (s *Server) handleStopCapture(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	rec, err := s.service.StopCapture()
	if err != nil {
		s.sendError(w, err, "operation", "stop_capture")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "Recording stopped",
		"recording": rec,
	})
}

func (s *Server) handleStartPlayback(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	if err := r.ParseForm(); err != nil {
		sendErrorResponse(w, http.StatusBadRequest, "Failed to parse form")
		return
	}

	name := r.FormValue("name")
	if name == "" {
		sendErrorResponse(w, http.StatusBadRequest, "Recording name is required", "operation", "start_playback")
		return
	}

	info, err := s.service.StartPlayback(name)
	if err != nil {
		s.sendError(w, err, "operation", "start_playback", "recording", name)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"message":          "Playback started",
		"session_id":       info.SessionID,
		"recording":        info.Recording,
		"duration_seconds": info.Duration.Seconds(),
	})
}

func (s *Server) handleStopPlayback(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	if err := s.service.StopPlayback(); err != nil {
		s.sendError(w, err, "operation", "stop_playback")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Playback stopped",
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	p, err := s.service.QueryPlaybackProgress()
	if err != nil {
		s.sendError(w, err, "operation", "playback_progress")
		return
	}

	writeJSON(w, http.StatusOK, ProgressResponse{
		SessionID: p.SessionID,
		Recording: p.Recording,
		Position:  p.Position.Seconds(),
		Duration:  p.Duration.Seconds(),
	})
}

func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	recordings, err := s.service.ListRecordings()
	if err != nil {
		s.sendError(w, err, "operation", "list_recordings")
		return
	}

	infos := make([]RecordingInfo, 0, len(recordings))
	for _, rec := range recordings {
		infos = append(infos, newRecordingInfo(rec))
	}

	writeJSON(w, http.StatusOK, RecordingsResponse{
		Recordings: infos,
		TotalCount: len(infos),
		Directory:  s.service.GetConfig().Storage.Directory,
	})
}

func newRecordingInfo(rec storage.Recording) RecordingInfo {
	return RecordingInfo{
		Recording:   rec,
		StreamURL:   fmt.Sprintf("/recordings/%s/wav", rec.Name),
		DownloadURL: fmt.Sprintf("/recordings/%s/download", rec.Name),
	}
}

// handleRecording returns (GET) or deletes (DELETE) a single recording
func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	switch r.Method {
	case http.MethodGet:
		rec, err := s.service.RecordingInfo(name)
		if err != nil {
			s.sendError(w, err, "operation", "recording_info", "recording", name)
			return
		}
		writeJSON(w, http.StatusOK, newRecordingInfo(*rec))

	case http.MethodDelete:
		if err := s.service.DeleteRecording(name); err != nil {
			s.sendError(w, err, "operation", "delete_recording", "recording", name)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "Recording deleted",
		})

	default:
		sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleRecordingStream serves a recording wrapped in a WAV header so
// browsers can play it. The WAV copy is temporary.
func (s *Server) handleRecordingStream(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	name := r.PathValue("name")
	rec, err := s.service.RecordingInfo(name)
	if err != nil {
		s.sendError(w, err, "operation", "stream_recording", "recording", name)
		return
	}

	tmp, err := os.CreateTemp("", "pcmrecorder-*.wav")
	if err != nil {
		sendErrorResponse(w, http.StatusInternalServerError, "Error preparing stream")
		return
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if _, err := audio.WrapWAVFile(rec.Path, tmpPath, audio.PCM16Mono44k); err != nil {
		sendErrorResponse(w, http.StatusInternalServerError, "Error preparing stream", "error", err)
		return
	}

	file, err := os.Open(tmpPath)
	if err != nil {
		sendErrorResponse(w, http.StatusInternalServerError, "Error opening file")
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Accept-Ranges", "bytes")
	http.ServeContent(w, r, rec.Name+".wav", rec.CreatedAt, file)
}

// handleRecordingDownload serves the raw PCM file for download
func (s *Server) handleRecordingDownload(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	name := r.PathValue("name")
	rec, err := s.service.RecordingInfo(name)
	if err != nil {
		s.sendError(w, err, "operation", "download_recording", "recording", name)
		return
	}

	file, err := os.Open(rec.Path)
	if err != nil {
		sendErrorResponse(w, http.StatusInternalServerError, "Error opening file")
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", rec.Name))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", rec.Size))

	if _, err := io.Copy(w, file); err != nil {
		slog.Error("Error serving file download", "file", rec.Name, "error", err)
	}
}

// handleExport writes a shareable copy into the export directory
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	name := r.PathValue("name")
	format := r.URL.Query().Get("format")

	path, err := s.service.ExportRecording(name, format)
	if err != nil {
		s.sendError(w, err, "operation", "export_recording", "recording", name, "format", format)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Recording exported",
		"file":    path,
	})
}

func (s *Server) handleChecks(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	writeJSON(w, http.StatusOK, ChecksResponse{
		MicrophonePermission: checkResult(s.service.CheckMicrophonePermission()),
		MicrophoneAvailable:  checkResult(s.service.CheckMicrophoneAvailable()),
		Notifications:        s.service.CheckNotificationSupport(r.Context()),
		ExportFormats:        export.SupportedFormats(),
	})
}

func checkResult(err error) CheckResult {
	if err != nil {
		return CheckResult{OK: false, Error: apperr.Message(err)}
	}
	return CheckResult{OK: true}
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	sources, err := s.service.ListSources()
	if err != nil {
		sendErrorResponse(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list sources: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, SourcesResponse{
		Backend: s.service.Status().Backend,
		Sources: sources,
	})
}

func generateStatusMessage(status service.Status) string {
	switch {
	case status.Capture.State == session.StateActive:
		return fmt.Sprintf("Recording %s", status.Capture.Recording)
	case status.Playback.State == session.StateActive:
		return fmt.Sprintf("Playing %s", status.Playback.Recording)
	case status.Capture.LastError != "":
		return status.Capture.LastError
	default:
		return ""
	}
}

// statusCode maps a domain failure to an HTTP status
func statusCode(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindAlreadyActive, apperr.KindNotActive, apperr.KindInUse:
		return http.StatusConflict
	case apperr.KindFileNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidName:
		return http.StatusBadRequest
	case apperr.KindPermissionDenied:
		return http.StatusForbidden
	case apperr.KindDeviceUnavailable:
		return http.StatusServiceUnavailable
	case apperr.KindUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) sendError(w http.ResponseWriter, err error, logContext ...interface{}) {
	logContext = append(logContext, "cause", err)
	sendErrorResponse(w, statusCode(err), apperr.Message(err), logContext...)
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	if statusCode >= http.StatusInternalServerError {
		slog.Error("Sending error response to client", logFields...)
	} else {
		slog.Debug("Sending error response to client", logFields...)
	}

	writeJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode JSON response", "error", err)
	}
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
