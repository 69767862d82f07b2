package cmd

import (
	"fmt"

	"github.com/audiolibrelab/pcmrecorder/internal/audio"
	"github.com/audiolibrelab/pcmrecorder/internal/config"
	"github.com/audiolibrelab/pcmrecorder/internal/storage"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info [recording]",
	Short: "Show resolved configuration and recording details",
	Long:  `Display the resolved configuration with inheritance indicators. When a recording name is given, also show its path, size and duration. Shows which values are inherited from default vs profile-specific.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := storage.NewStore(cfg.Storage.Directory)

		if len(args) == 1 {
			rec, err := store.Stat(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("=== RECORDING ===\n")
			fmt.Printf("name: %s\n", rec.Name)
			fmt.Printf("path: %s\n", rec.Path)
			fmt.Printf("size: %s (%d bytes)\n", rec.SizeHuman, rec.Size)
			fmt.Printf("duration: %.2fs\n", rec.DurationSeconds)
			fmt.Printf("created: %s\n", rec.CreatedAtHuman)
			f := audio.PCM16Mono44k
			fmt.Printf("format: s%dle %dHz %d channel(s)\n\n", f.BitDepth(), f.SampleRate, f.Channels)
		}

		// Display resolved configuration with inheritance indicators
		fmt.Printf("=== RESOLVED CONFIGURATION ===\n")

		fmt.Printf("\n[Storage]\n")
		printField("directory", cfg.Storage.Directory, "storage.directory")
		printField("export_directory", cfg.Storage.ExportDirectory, "storage.export_directory")

		fmt.Printf("\n[Audio]\n")
		printField("backend", cfg.Audio.Backend, "audio.backend")
		printField("input_device", cfg.Audio.InputDevice, "audio.input_device")
		printField("output_device", cfg.Audio.OutputDevice, "audio.output_device")
		printField("buffer_bytes", cfg.Audio.BufferBytes, "audio.buffer_bytes")
		printField("probe_before_capture", cfg.Audio.ProbeEnabled(), "audio.probe_before_capture")
		printField("max_consecutive_errors", cfg.Audio.MaxConsecutiveErrors, "audio.max_consecutive_errors")

		fmt.Printf("\n[Playback]\n")
		printField("poll_interval", cfg.Playback.PollInterval, "playback.poll_interval")

		fmt.Printf("\n[Permission]\n")
		printField("microphone", cfg.Permission.Microphone, "permission.microphone")

		fmt.Printf("\n[Notifications]\n")
		printField("enabled", cfg.Notifications.NotificationsEnabled(), "notifications.enabled")
		printField("app_name", cfg.Notifications.AppName, "notifications.app_name")
		printField("timeout", cfg.Notifications.Timeout, "notifications.timeout")

		fmt.Printf("\n[Server]\n")
		printField("port", cfg.Server.Port, "server.port")

		fmt.Printf("\n[Logging]\n")
		printField("file", cfg.Logging.File, "logging.file")

		return nil
	},
}

func printField(name string, value interface{}, field string) {
	source := ""
	if cfg.Inheritance != nil {
		source = cfg.Inheritance.Fields[field]
	}
	fmt.Printf("%s: %v %s\n", name, value, getInheritanceIndicator(source))
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case config.SourceBuiltin:
		return "[builtin]"
	case config.SourceInherited:
		return "[inherited]"
	case config.SourceProfileSpecific:
		return "[profile-specific]"
	default:
		return "[unknown]"
	}
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
