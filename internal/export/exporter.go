package export

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/audiolibrelab/pcmrecorder/internal/apperr"
	"github.com/audiolibrelab/pcmrecorder/internal/audio"
	"github.com/audiolibrelab/pcmrecorder/internal/storage"
)

const (
	FormatWAV  = "wav"
	FormatFLAC = "flac"
	FormatMP3  = "mp3"
)

// ffmpeg encoders for the compressed share formats
var codecs = map[string]string{
	FormatFLAC: "flac",
	FormatMP3:  "libmp3lame",
}

// Exporter writes shareable copies of recordings. The PCM file stays the
// source of truth; exports are disposable.
type Exporter struct {
	store  *storage.Store
	dir    string
	format audio.Format
}

func New(store *storage.Store, exportDir string) *Exporter {
	return &Exporter{
		store:  store,
		dir:    exportDir,
		format: audio.PCM16Mono44k,
	}
}

// SupportedFormats lists the formats Export accepts on this system
func SupportedFormats() []string {
	formats := []string{FormatWAV}
	if _, err := exec.LookPath("ffmpeg"); err == nil {
		formats = append(formats, FormatFLAC, FormatMP3)
	}
	return formats
}

// Export converts the recording called name to format and returns the path
// of the exported file.
func (e *Exporter) Export(name, format string) (string, error) {
	format = strings.ToLower(strings.TrimPrefix(format, "."))
	if format == "" {
		format = FormatWAV
	}

	rec, err := e.store.Stat(name)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	outputFile := filepath.Join(e.dir, strings.TrimSuffix(rec.Name, filepath.Ext(rec.Name))+"."+format)

	// Remove existing output file
	os.Remove(outputFile)

	switch format {
	case FormatWAV:
		if _, err := audio.WrapWAVFile(rec.Path, outputFile, e.format); err != nil {
			return "", fmt.Errorf("WAV export failed: %w", err)
		}
	case FormatFLAC, FormatMP3:
		if err := e.encode(rec.Path, outputFile, codecs[format]); err != nil {
			return "", err
		}
	default:
		return "", apperr.New(apperr.KindUnsupported, "export", fmt.Errorf("format %q", format))
	}

	slog.Info("Exported recording", "recording", name, "file", outputFile)
	return outputFile, nil
}

func (e *Exporter) encode(inputFile, outputFile, codec string) error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return apperr.New(apperr.KindUnsupported, "export", fmt.Errorf("ffmpeg not found: %w", err))
	}

	cmd := exec.Command("ffmpeg",
		"-f", fmt.Sprintf("s%dle", e.format.BitDepth()),
		"-ar", fmt.Sprintf("%d", e.format.SampleRate),
		"-ac", fmt.Sprintf("%d", e.format.Channels),
		"-i", inputFile,
		"-c:a", codec,
		"-y", // Overwrite output file
		outputFile,
	)

	slog.Debug("Running FFmpeg for export", "command", strings.Join(cmd.Args, " "))

	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(outputFile)
		return fmt.Errorf("FFmpeg export failed: %w\nOutput: %s", err, string(output))
	}

	// Verify output file was created
	if _, err := os.Stat(outputFile); err != nil {
		return fmt.Errorf("output file not created: %s", outputFile)
	}
	return nil
}
