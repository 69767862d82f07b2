package cmd

import (
	"fmt"
	"runtime"

	"github.com/audiolibrelab/pcmrecorder/internal/audio"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available audio sources",
	Long:  `List the capture sources the configured audio backend can record from.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := audio.NewBackend(cfg)
		if err != nil {
			return err
		}
		return listAvailableSources(backend)
	},
}

// listAvailableSources prints the sources of backend with usage hints
func listAvailableSources(backend audio.Backend) error {
	fmt.Printf("🎵 Audio Sources (%s)\n", runtime.GOOS)
	fmt.Printf("═══════════════════════════════════════\n\n")

	sources, err := backend.ListSources()
	if err != nil {
		return fmt.Errorf("failed to get %s sources: %w", backend.GetType(), err)
	}

	fmt.Printf("📋 %s SOURCES (%d found):\n", backendLabel(backend.GetType()), len(sources))
	for i, source := range sources {
		fmt.Printf("  %d. %s\n", i+1, source)
	}

	switch backend.GetType() {
	case audio.BackendTypePipeWire:
		fmt.Printf("\n💡 PipeWire Usage:\n")
		fmt.Printf("  • Format: \"node:port\" or just the node name\n")
		fmt.Printf("  • Example: \"alsa_input.usb-Focusrite_Scarlett_2i2:capture_FL\"\n")
		fmt.Printf("  • Configure in audio.input_device\n\n")
	case audio.BackendTypeALSA:
		fmt.Printf("\n💡 ALSA Usage:\n")
		fmt.Printf("  • Example: \"hw:1,0\" or \"default\"\n")
		fmt.Printf("  • Configure in audio.input_device\n\n")
	}

	return nil
}

func backendLabel(t audio.BackendType) string {
	switch t {
	case audio.BackendTypePipeWire:
		return "PIPEWIRE"
	case audio.BackendTypeALSA:
		return "ALSA"
	case audio.BackendTypePortAudio:
		return "PORTAUDIO"
	default:
		return "NULL"
	}
}
