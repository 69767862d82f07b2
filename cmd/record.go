package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiolibrelab/pcmrecorder/internal/session"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the microphone to a new PCM file",
	Long: `Record from the configured input device until Ctrl+C, or for --duration.
The recording is saved as recording_<unix-time>.pcm in the storage directory.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		duration, _ := cmd.Flags().GetDuration("duration")

		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		info, err := svc.StartCapture()
		if err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
		slog.Debug("Capture started", "session_id", info.SessionID, "recording", info.Recording)

		if duration > 0 {
			fmt.Printf("Recording %s for %s - Press Ctrl+C to stop early\n", info.Recording, duration)
		} else {
			fmt.Printf("Recording %s - Press Ctrl+C to stop\n", info.Recording)
		}

		// Handle interruption
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		var timeout <-chan time.Time
		if duration > 0 {
			timer := time.NewTimer(duration)
			defer timer.Stop()
			timeout = timer.C
		}

		// The capture can also end on its own when the device goes away
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

	wait:
		for {
			select {
			case <-sigChan:
				break wait
			case <-timeout:
				break wait
			case <-ticker.C:
				if svc.Status().Capture.State != session.StateActive {
					slog.Warn("Capture ended unexpectedly")
					break wait
				}
			}
		}
		slog.Info("Stopping recording...")

		rec, err := svc.StopCapture()
		if err != nil {
			return fmt.Errorf("failed to stop recording: %w", err)
		}

		fmt.Printf("Saved %s (%s, %.1fs)\n", rec.Path, rec.SizeHuman, rec.DurationSeconds)

		// Execute pipeline if specified
		return executePipeline(svc, 'r')
	},
}

func init() {
	recordCmd.Flags().DurationP("duration", "d", 0, "stop after this long (default: until Ctrl+C)")
}
