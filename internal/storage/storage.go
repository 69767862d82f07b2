package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/audiolibrelab/pcmrecorder/internal/apperr"
	"github.com/audiolibrelab/pcmrecorder/internal/audio"
)

const (
	filePrefix    = "recording_"
	fileExtension = ".pcm"
)

var namePattern = regexp.MustCompile(`^recording_(\d+)\.pcm$`)

// Recording is a finished capture stored as a headerless PCM file
type Recording struct {
	Name            string        `json:"name"`
	Path            string        `json:"path"`
	Size            int64         `json:"size"`
	SizeHuman       string        `json:"size_human"`
	CreatedAt       time.Time     `json:"created_at"`
	CreatedAtHuman  string        `json:"created_at_human"`
	Duration        time.Duration `json:"-"`
	DurationSeconds float64       `json:"duration_seconds"`
}

// Store resolves recording names to paths inside a single directory
type Store struct {
	dir    string
	format audio.Format
	now    func() time.Time
}

// NewStore creates a store rooted at dir. The directory is created lazily.
func NewStore(dir string) *Store {
	return &Store{
		dir:    dir,
		format: audio.PCM16Mono44k,
		now:    time.Now,
	}
}

// Dir returns the recordings directory
func (s *Store) Dir() string {
	return s.dir
}

// maxNameProbes bounds the search for a free second in NewRecordingPath
const maxNameProbes = 3600

// NewRecordingPath returns an unused path for a capture started now,
// creating the directory if needed. When the current second is taken the
// next free second is used, so an existing recording is never reused.
func (s *Store) NewRecordingPath() (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create recordings directory: %w", err)
	}

	ts := s.now().Unix()
	for i := 0; i < maxNameProbes; i++ {
		path := filepath.Join(s.dir, fmt.Sprintf("%s%d%s", filePrefix, ts+int64(i), fileExtension))
		if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
			return path, nil
		} else if err != nil {
			return "", fmt.Errorf("failed to check recording path: %w", err)
		}
	}
	return "", fmt.Errorf("no free recording name after %d attempts", maxNameProbes)
}

// Resolve returns the path of the recording called name. Names that try to
// leave the directory are InvalidName; any other name that cannot be a
// recording is FileNotFound. It does not check that the file exists.
func (s *Store) Resolve(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	if !namePattern.MatchString(name) {
		return "", apperr.New(apperr.KindFileNotFound, "resolve recording", fmt.Errorf("%s", name))
	}
	return filepath.Join(s.dir, name), nil
}

// Stat returns the recording called name
func (s *Store) Stat(name string) (*Recording, error) {
	path, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.New(apperr.KindFileNotFound, "stat recording", fmt.Errorf("%s", name))
		}
		return nil, fmt.Errorf("failed to stat recording %s: %w", name, err)
	}
	if info.IsDir() {
		return nil, apperr.New(apperr.KindFileNotFound, "stat recording", fmt.Errorf("%s is a directory", name))
	}

	rec := s.newRecording(name, info.Size())
	return &rec, nil
}

// List returns all recordings, newest first. A missing directory is an
// empty list.
func (s *Store) List() ([]Recording, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Recording{}, nil
		}
		return nil, fmt.Errorf("failed to read recordings directory: %w", err)
	}

	recordings := []Recording{}
	for _, entry := range entries {
		if entry.IsDir() || !namePattern.MatchString(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			slog.Warn("Failed to get file info", "file", entry.Name(), "error", err)
			continue
		}

		recordings = append(recordings, s.newRecording(entry.Name(), info.Size()))
	}

	sort.Slice(recordings, func(i, j int) bool {
		if recordings[i].CreatedAt.Equal(recordings[j].CreatedAt) {
			return recordings[i].Name > recordings[j].Name
		}
		return recordings[i].CreatedAt.After(recordings[j].CreatedAt)
	})

	return recordings, nil
}

// Delete removes the recording called name
func (s *Store) Delete(name string) error {
	path, err := s.Resolve(name)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.New(apperr.KindFileNotFound, "delete recording", fmt.Errorf("%s", name))
		}
		return fmt.Errorf("failed to delete recording %s: %w", name, err)
	}

	slog.Info("Recording deleted", "name", name)
	return nil
}

func (s *Store) newRecording(name string, size int64) Recording {
	created, _ := ParseCreated(name)
	duration := s.format.Duration(size)
	return Recording{
		Name:            name,
		Path:            filepath.Join(s.dir, name),
		Size:            size,
		SizeHuman:       FormatBytes(size),
		CreatedAt:       created,
		CreatedAtHuman:  created.Format("2006-01-02 15:04:05"),
		Duration:        duration,
		DurationSeconds: duration.Seconds(),
	}
}

// ValidateName rejects empty names and names that are not a plain file
// name inside the recordings directory
func ValidateName(name string) error {
	if name == "" {
		return apperr.New(apperr.KindInvalidName, "validate name", fmt.Errorf("empty name"))
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return apperr.New(apperr.KindInvalidName, "validate name", fmt.Errorf("%q", name))
	}
	return nil
}

// ParseCreated extracts the creation time encoded in a recording name
func ParseCreated(name string) (time.Time, bool) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0), true
}

// FormatBytes formats bytes in human readable format
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
