package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiolibrelab/pcmrecorder/internal/apperr"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play [recording]",
	Short: "Play a recording",
	Long: `Play a recording through the configured output device.
Without a name the newest recording is played. Press Ctrl+C to stop.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		var name string
		if len(args) == 1 {
			name = args[0]
		} else {
			recordings, err := svc.ListRecordings()
			if err != nil {
				return err
			}
			if len(recordings) == 0 {
				return fmt.Errorf("no recordings in %s", cfg.Storage.Directory)
			}
			name = recordings[0].Name
		}

		info, err := svc.StartPlayback(name)
		if err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}
		fmt.Printf("Playing %s (%s)\n", info.Recording, formatClock(info.Duration))

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		ticker := time.NewTicker(cfg.Playback.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-sigChan:
				fmt.Println()
				if err := svc.StopPlayback(); err != nil && !errors.Is(err, apperr.ErrNotActive) {
					return fmt.Errorf("failed to stop playback: %w", err)
				}
				fmt.Println("Playback stopped")
				return nil

			case <-ticker.C:
				progress, err := svc.QueryPlaybackProgress()
				if errors.Is(err, apperr.ErrNotActive) {
					fmt.Println()
					if lastErr := svc.Status().Playback.LastError; lastErr != "" {
						return fmt.Errorf("playback failed: %s", lastErr)
					}
					fmt.Println("Playback completed")
					return executePipeline(svc, 'p')
				}
				if err != nil {
					return fmt.Errorf("playback failed: %w", err)
				}
				fmt.Printf("\r  %s / %s", formatClock(progress.Position), formatClock(progress.Duration))
			}
		}
	},
}

// formatClock renders d as mm:ss
func formatClock(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
