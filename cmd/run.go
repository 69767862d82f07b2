package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute pipeline steps",
	Long: `Execute the specified pipeline steps. Use -p to specify which steps to run:
r records (for --duration, or until Ctrl+C), p plays the recording to the end,
e exports it as WAV. Steps without a preceding record act on the newest recording.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if pipeline == "" {
			return fmt.Errorf("no pipeline specified, use -p flag (e.g., -p rpe)")
		}
		duration, _ := cmd.Flags().GetDuration("duration")

		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		steps := strings.ToLower(pipeline)
		fmt.Printf("Pipeline: executing steps '%s'...\n", steps)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = svc.RunPipeline(ctx, steps, duration)
		if errors.Is(err, context.Canceled) {
			fmt.Println("Pipeline: interrupted")
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Println("Pipeline: completed")
		return nil
	},
}

func init() {
	runCmd.Flags().DurationP("duration", "d", 0, "record step length (default: until Ctrl+C)")
}
