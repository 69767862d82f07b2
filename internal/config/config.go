package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RootConfig is the on-disk layout: a set of named profiles, one of which is active
type RootConfig struct {
	ActiveProfile string             `mapstructure:"active_profile" yaml:"active_profile"`
	Profiles      map[string]*Config `mapstructure:"profiles" yaml:"profiles"`
}

type Config struct {
	Storage       StorageConfig       `mapstructure:"storage" yaml:"storage"`
	Audio         AudioConfig         `mapstructure:"audio" yaml:"audio"`
	Playback      PlaybackConfig      `mapstructure:"playback" yaml:"playback"`
	Permission    PermissionConfig    `mapstructure:"permission" yaml:"permission"`
	Notifications NotificationsConfig `mapstructure:"notifications" yaml:"notifications"`
	Server        ServerConfig        `mapstructure:"server" yaml:"server"`
	Logging       LoggingConfig       `mapstructure:"logging" yaml:"logging"`

	// Internal field to track inheritance information for info command
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

type StorageConfig struct {
	Directory       string `mapstructure:"directory" yaml:"directory"`
	ExportDirectory string `mapstructure:"export_directory" yaml:"export_directory"`
}

type AudioConfig struct {
	Backend              string `mapstructure:"backend" yaml:"backend"` // "auto", "pipewire", "alsa", "portaudio", "null"
	InputDevice          string `mapstructure:"input_device" yaml:"input_device"`
	OutputDevice         string `mapstructure:"output_device" yaml:"output_device"`
	BufferBytes          int    `mapstructure:"buffer_bytes" yaml:"buffer_bytes"`
	ProbeBeforeCapture   *bool  `mapstructure:"probe_before_capture" yaml:"probe_before_capture,omitempty"`
	MaxConsecutiveErrors int    `mapstructure:"max_consecutive_errors" yaml:"max_consecutive_errors"`
}

type PlaybackConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

type PermissionConfig struct {
	Microphone string `mapstructure:"microphone" yaml:"microphone"` // "auto", "granted", "denied"
}

type NotificationsConfig struct {
	Enabled *bool         `mapstructure:"enabled" yaml:"enabled,omitempty"`
	AppName string        `mapstructure:"app_name" yaml:"app_name"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
}

type LoggingConfig struct {
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// InheritanceInfo records, per field, whether the value came from the
// built-in defaults, the "default" profile, or the selected profile.
type InheritanceInfo struct {
	Fields map[string]string
}

const (
	SourceBuiltin         = "builtin"
	SourceInherited       = "inherited"
	SourceProfileSpecific = "profile-specific"
)

const (
	MicrophoneAuto    = "auto"
	MicrophoneGranted = "granted"
	MicrophoneDenied  = "denied"
)

var validBackends = []string{"auto", "pipewire", "alsa", "portaudio", "null"}

// ProbeEnabled reports whether capture-start does a trial acquisition first
func (a AudioConfig) ProbeEnabled() bool {
	return a.ProbeBeforeCapture == nil || *a.ProbeBeforeCapture
}

// NotificationsEnabled reports whether lifecycle notifications are posted
func (n NotificationsConfig) NotificationsEnabled() bool {
	return n.Enabled == nil || *n.Enabled
}

// DefaultConfigPath returns $HOME/.config/pcmrecorder.yaml
func DefaultConfigPath() string {
	return os.ExpandEnv("$HOME/.config/pcmrecorder.yaml")
}

// Default returns the built-in configuration used when no file is present
func Default() *Config {
	probe := true
	notify := true
	cfg := &Config{
		Storage: StorageConfig{
			Directory:       filepath.Join(dataHome(), "pcmrecorder", "recordings"),
			ExportDirectory: filepath.Join(os.TempDir(), "pcmrecorder-share"),
		},
		Audio: AudioConfig{
			Backend:              "auto",
			BufferBytes:          4096,
			ProbeBeforeCapture:   &probe,
			MaxConsecutiveErrors: 50,
		},
		Playback: PlaybackConfig{
			PollInterval: 200 * time.Millisecond,
		},
		Permission: PermissionConfig{
			Microphone: MicrophoneAuto,
		},
		Notifications: NotificationsConfig{
			Enabled: &notify,
			AppName: "pcmrecorder",
			Timeout: 0,
		},
		Server: ServerConfig{
			Port: "8080",
		},
		Logging: LoggingConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
	cfg.Inheritance = &InheritanceInfo{Fields: map[string]string{}}
	for _, name := range trackedFields {
		cfg.Inheritance.Fields[name] = SourceBuiltin
	}
	return cfg
}

func dataHome() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	return filepath.Join(home, ".local", "share")
}

// LoadWithProfile reads configFile and resolves the requested profile
// (or the file's active_profile) on top of the "default" profile and the
// built-in defaults. A missing file yields the built-in defaults.
func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		if profile != "" && profile != "default" {
			return nil, fmt.Errorf("configuration profile '%s' not found (no config file at %s)", profile, configFile)
		}
		cfg := Default()
		return cfg, Validate(cfg)
	}

	rootConfig, err := ReadRootConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return resolveProfile(rootConfig, profile)
}

func resolveProfile(rootConfig *RootConfig, profile string) (*Config, error) {
	profileName := profile
	if profileName == "" {
		profileName = rootConfig.ActiveProfile
	}
	if profileName == "" {
		profileName = "default"
	}

	result := Default()

	if base, exists := rootConfig.Profiles["default"]; exists {
		result = mergeConfigs(result, base, SourceInherited)
	} else if profileName == "default" && len(rootConfig.Profiles) > 0 {
		return nil, fmt.Errorf("configuration profile 'default' not found")
	}

	if profileName != "default" {
		selected, exists := rootConfig.Profiles[profileName]
		if !exists {
			return nil, fmt.Errorf("configuration profile '%s' not found", profileName)
		}
		result = mergeConfigs(result, selected, SourceProfileSpecific)
	} else if base, exists := rootConfig.Profiles["default"]; exists {
		// the default profile is the selected one, so its values are its own
		result = mergeConfigs(result, base, SourceProfileSpecific)
	}

	result.Storage.Directory = expandPath(result.Storage.Directory)
	result.Storage.ExportDirectory = expandPath(result.Storage.ExportDirectory)
	result.Logging.File = expandPath(result.Logging.File)

	if err := Validate(result); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return result, nil
}

// ReadRootConfig parses configFile with viper. Environment variables with the
// PCMRECORDER_ prefix override file values.
func ReadRootConfig(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetEnvPrefix("PCMRECORDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if active := v.GetString("active_profile"); active != "" {
		rootConfig.ActiveProfile = active
	}

	for name, p := range rootConfig.Profiles {
		if p == nil {
			return nil, fmt.Errorf("profile '%s' is empty", name)
		}
	}

	return &rootConfig, nil
}

// ProfileNames lists the profiles defined in configFile
func ProfileNames(configFile string) ([]string, error) {
	rootConfig, err := ReadRootConfig(configFile)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rootConfig.Profiles))
	for name := range rootConfig.Profiles {
		names = append(names, name)
	}
	return names, nil
}

// UpdateActiveProfile updates the active_profile field in the config file
func UpdateActiveProfile(configFile, newActiveProfile string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	// Create a new viper instance to avoid interfering with the global one
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	v.Set("active_profile", newActiveProfile)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

var trackedFields = []string{
	"storage.directory",
	"storage.export_directory",
	"audio.backend",
	"audio.input_device",
	"audio.output_device",
	"audio.buffer_bytes",
	"audio.probe_before_capture",
	"audio.max_consecutive_errors",
	"playback.poll_interval",
	"permission.microphone",
	"notifications.enabled",
	"notifications.app_name",
	"notifications.timeout",
	"server.port",
	"logging.file",
}

// mergeConfigs overlays the non-zero fields of profile onto a copy of base,
// tagging every overridden field with source.
func mergeConfigs(base, profile *Config, source string) *Config {
	result := *base
	result.Inheritance = &InheritanceInfo{Fields: map[string]string{}}
	if base.Inheritance != nil {
		for k, v := range base.Inheritance.Fields {
			result.Inheritance.Fields[k] = v
		}
	}

	if profile == nil {
		return &result
	}

	set := func(field string) {
		result.Inheritance.Fields[field] = source
	}

	if profile.Storage.Directory != "" {
		result.Storage.Directory = profile.Storage.Directory
		set("storage.directory")
	}
	if profile.Storage.ExportDirectory != "" {
		result.Storage.ExportDirectory = profile.Storage.ExportDirectory
		set("storage.export_directory")
	}

	if profile.Audio.Backend != "" {
		result.Audio.Backend = profile.Audio.Backend
		set("audio.backend")
	}
	if profile.Audio.InputDevice != "" {
		result.Audio.InputDevice = profile.Audio.InputDevice
		set("audio.input_device")
	}
	if profile.Audio.OutputDevice != "" {
		result.Audio.OutputDevice = profile.Audio.OutputDevice
		set("audio.output_device")
	}
	if profile.Audio.BufferBytes != 0 {
		result.Audio.BufferBytes = profile.Audio.BufferBytes
		set("audio.buffer_bytes")
	}
	if profile.Audio.ProbeBeforeCapture != nil {
		v := *profile.Audio.ProbeBeforeCapture
		result.Audio.ProbeBeforeCapture = &v
		set("audio.probe_before_capture")
	}
	if profile.Audio.MaxConsecutiveErrors != 0 {
		result.Audio.MaxConsecutiveErrors = profile.Audio.MaxConsecutiveErrors
		set("audio.max_consecutive_errors")
	}

	if profile.Playback.PollInterval != 0 {
		result.Playback.PollInterval = profile.Playback.PollInterval
		set("playback.poll_interval")
	}

	if profile.Permission.Microphone != "" {
		result.Permission.Microphone = profile.Permission.Microphone
		set("permission.microphone")
	}

	if profile.Notifications.Enabled != nil {
		v := *profile.Notifications.Enabled
		result.Notifications.Enabled = &v
		set("notifications.enabled")
	}
	if profile.Notifications.AppName != "" {
		result.Notifications.AppName = profile.Notifications.AppName
		set("notifications.app_name")
	}
	if profile.Notifications.Timeout != 0 {
		result.Notifications.Timeout = profile.Notifications.Timeout
		set("notifications.timeout")
	}

	if profile.Server.Port != "" {
		result.Server.Port = profile.Server.Port
		set("server.port")
	}

	if profile.Logging.File != "" {
		result.Logging.File = profile.Logging.File
		set("logging.file")
	}
	if profile.Logging.MaxSizeMB != 0 {
		result.Logging.MaxSizeMB = profile.Logging.MaxSizeMB
	}
	if profile.Logging.MaxBackups != 0 {
		result.Logging.MaxBackups = profile.Logging.MaxBackups
	}
	if profile.Logging.MaxAgeDays != 0 {
		result.Logging.MaxAgeDays = profile.Logging.MaxAgeDays
	}

	return &result
}

// Validate checks value ranges and enumerations
func Validate(cfg *Config) error {
	if cfg.Storage.Directory == "" {
		return fmt.Errorf("storage.directory is required")
	}

	backendOK := false
	for _, b := range validBackends {
		if strings.ToLower(cfg.Audio.Backend) == b {
			backendOK = true
			break
		}
	}
	if !backendOK {
		return fmt.Errorf("audio.backend must be one of %s, got: %s", strings.Join(validBackends, ", "), cfg.Audio.Backend)
	}

	if cfg.Audio.BufferBytes < 2 {
		return fmt.Errorf("audio.buffer_bytes must be >= 2, got: %d", cfg.Audio.BufferBytes)
	}
	if cfg.Audio.BufferBytes > 1<<20 {
		return fmt.Errorf("audio.buffer_bytes must be <= %d, got: %d", 1<<20, cfg.Audio.BufferBytes)
	}
	if cfg.Audio.MaxConsecutiveErrors < 1 {
		return fmt.Errorf("audio.max_consecutive_errors must be >= 1, got: %d", cfg.Audio.MaxConsecutiveErrors)
	}

	if cfg.Playback.PollInterval <= 0 {
		return fmt.Errorf("playback.poll_interval must be > 0, got: %s", cfg.Playback.PollInterval)
	}

	switch cfg.Permission.Microphone {
	case MicrophoneAuto, MicrophoneGranted, MicrophoneDenied:
	default:
		return fmt.Errorf("permission.microphone must be 'auto', 'granted' or 'denied', got: %s", cfg.Permission.Microphone)
	}

	if cfg.Notifications.Timeout < 0 {
		return fmt.Errorf("notifications.timeout must be >= 0, got: %s", cfg.Notifications.Timeout)
	}

	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
