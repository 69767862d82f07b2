package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pcmrecorder.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}
	return path
}

func TestLoadWithProfile_MissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")

	cfg, err := LoadWithProfile(path, "")
	if err != nil {
		t.Fatalf("Expected defaults for missing file, got error: %v", err)
	}

	if cfg.Audio.BufferBytes != 4096 {
		t.Errorf("Expected default buffer 4096, got %d", cfg.Audio.BufferBytes)
	}
	if cfg.Playback.PollInterval != 200*time.Millisecond {
		t.Errorf("Expected default poll interval 200ms, got %s", cfg.Playback.PollInterval)
	}
	if !cfg.Audio.ProbeEnabled() {
		t.Error("Expected probe to be enabled by default")
	}
	if cfg.Inheritance.Fields["audio.backend"] != SourceBuiltin {
		t.Errorf("Expected builtin source for audio.backend, got %s", cfg.Inheritance.Fields["audio.backend"])
	}
}

func TestLoadWithProfile_MissingFileUnknownProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")

	if _, err := LoadWithProfile(path, "studio"); err == nil {
		t.Error("Expected error for named profile without config file")
	}
}

func TestLoadWithProfile_EmptyPath(t *testing.T) {
	if _, err := LoadWithProfile("", ""); err == nil {
		t.Error("Expected error for empty config path")
	}
}

const profileConfig = `
active_profile: field

profiles:
  default:
    storage:
      directory: /tmp/pcm-default
    audio:
      backend: pipewire
      buffer_bytes: 2048
    playback:
      poll_interval: 250ms

  field:
    storage:
      directory: /tmp/pcm-field
    audio:
      backend: alsa
      input_device: hw:1,0
      probe_before_capture: false
    notifications:
      enabled: false

  quiet:
    permission:
      microphone: denied
`

func TestLoadWithProfile_ActiveProfileInheritsDefault(t *testing.T) {
	path := createTempConfig(t, profileConfig)

	cfg, err := LoadWithProfile(path, "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Storage.Directory != "/tmp/pcm-field" {
		t.Errorf("Expected field directory, got %s", cfg.Storage.Directory)
	}
	if cfg.Audio.Backend != "alsa" {
		t.Errorf("Expected alsa backend, got %s", cfg.Audio.Backend)
	}
	if cfg.Audio.BufferBytes != 2048 {
		t.Errorf("Expected buffer inherited from default (2048), got %d", cfg.Audio.BufferBytes)
	}
	if cfg.Playback.PollInterval != 250*time.Millisecond {
		t.Errorf("Expected inherited poll interval 250ms, got %s", cfg.Playback.PollInterval)
	}
	if cfg.Audio.ProbeEnabled() {
		t.Error("Expected probe disabled by profile")
	}
	if cfg.Notifications.NotificationsEnabled() {
		t.Error("Expected notifications disabled by profile")
	}

	fields := cfg.Inheritance.Fields
	if fields["audio.backend"] != SourceProfileSpecific {
		t.Errorf("Expected audio.backend profile-specific, got %s", fields["audio.backend"])
	}
	if fields["audio.buffer_bytes"] != SourceInherited {
		t.Errorf("Expected audio.buffer_bytes inherited, got %s", fields["audio.buffer_bytes"])
	}
	if fields["server.port"] != SourceBuiltin {
		t.Errorf("Expected server.port builtin, got %s", fields["server.port"])
	}
}

func TestLoadWithProfile_ExplicitProfileOverridesActive(t *testing.T) {
	path := createTempConfig(t, profileConfig)

	cfg, err := LoadWithProfile(path, "quiet")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Permission.Microphone != MicrophoneDenied {
		t.Errorf("Expected microphone denied, got %s", cfg.Permission.Microphone)
	}
	if cfg.Storage.Directory != "/tmp/pcm-default" {
		t.Errorf("Expected directory inherited from default, got %s", cfg.Storage.Directory)
	}
}

func TestLoadWithProfile_DefaultProfileIsProfileSpecific(t *testing.T) {
	path := createTempConfig(t, profileConfig)

	cfg, err := LoadWithProfile(path, "default")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Inheritance.Fields["storage.directory"] != SourceProfileSpecific {
		t.Errorf("Expected storage.directory profile-specific, got %s", cfg.Inheritance.Fields["storage.directory"])
	}
}

func TestLoadWithProfile_UnknownProfile(t *testing.T) {
	path := createTempConfig(t, profileConfig)

	_, err := LoadWithProfile(path, "nope")
	if err == nil {
		t.Fatal("Expected error for unknown profile")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected 'not found' error, got: %v", err)
	}
}

func TestLoadWithProfile_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name: "bad backend",
			content: `
profiles:
  default:
    audio:
      backend: coreaudio
`,
			want: "audio.backend",
		},
		{
			name: "tiny buffer",
			content: `
profiles:
  default:
    audio:
      buffer_bytes: 1
`,
			want: "audio.buffer_bytes",
		},
		{
			name: "bad permission",
			content: `
profiles:
  default:
    permission:
      microphone: maybe
`,
			want: "permission.microphone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := createTempConfig(t, tt.content)
			_, err := LoadWithProfile(path, "")
			if err == nil {
				t.Fatalf("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error mentioning %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestLoadWithProfile_ExpandsHome(t *testing.T) {
	path := createTempConfig(t, `
profiles:
  default:
    storage:
      directory: ~/Recordings
`)

	cfg, err := LoadWithProfile(path, "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	home, _ := os.UserHomeDir()
	if cfg.Storage.Directory != filepath.Join(home, "Recordings") {
		t.Errorf("Expected expanded home directory, got %s", cfg.Storage.Directory)
	}
}

func TestUpdateActiveProfile(t *testing.T) {
	path := createTempConfig(t, profileConfig)

	if err := UpdateActiveProfile(path, "quiet"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	cfg, err := LoadWithProfile(path, "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Permission.Microphone != MicrophoneDenied {
		t.Errorf("Expected quiet profile to be active after update, got microphone=%s", cfg.Permission.Microphone)
	}

	names, err := ProfileNames(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(names) != 3 {
		t.Errorf("Expected 3 profiles, got %v", names)
	}
}

func TestMergeConfigs_NilProfileKeepsBase(t *testing.T) {
	base := Default()
	result := mergeConfigs(base, nil, SourceInherited)

	if result.Audio.BufferBytes != base.Audio.BufferBytes {
		t.Errorf("Expected base buffer size, got %d", result.Audio.BufferBytes)
	}
	if result.Inheritance.Fields["audio.buffer_bytes"] != SourceBuiltin {
		t.Errorf("Expected builtin tag preserved, got %s", result.Inheritance.Fields["audio.buffer_bytes"])
	}
}
