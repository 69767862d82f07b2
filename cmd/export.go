package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/audiolibrelab/pcmrecorder/internal/export"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export [recording]",
	Short: "Export a recording as WAV, FLAC or MP3",
	Long: `Convert a raw PCM recording into a shareable file in the export directory.
WAV is written directly; FLAC and MP3 are encoded with ffmpeg.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		name := args[0]

		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		slog.Debug("Exporting recording", "recording", name, "format", format)

		path, err := svc.ExportRecording(name, strings.ToLower(format))
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		fmt.Printf("Exported %s to %s\n", name, path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("format", "f", export.FormatWAV,
		fmt.Sprintf("output format (%s)", strings.Join(export.SupportedFormats(), ", ")))
}
