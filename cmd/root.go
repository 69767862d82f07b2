package cmd

import (
	"fmt"
	"os"

	"github.com/audiolibrelab/pcmrecorder/internal/config"
	"github.com/audiolibrelab/pcmrecorder/internal/service"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	pipeline     string
	profile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "pcmrecorder",
	Short: "Record and play back raw PCM audio",
	Long: `pcmrecorder records the microphone to raw PCM files (44.1kHz, 16-bit, mono)
and plays them back, one capture and one playback at a time.

Recordings are stored as recording_<unix-time>.pcm in the storage directory.
When a pipeline is given with -p, it acts as 'pcmrecorder run -p <steps>'.`,
	Args: cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure slog based on verbose level
		setupLogging(verboseLevel, nil)

		// Use default config path if not specified
		if cfgFile == "" {
			cfgFile = config.DefaultConfigPath()
		}

		var err error
		cfg, err = config.LoadWithProfile(cfgFile, profile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Once the profile is known, mirror logs into the configured file
		if cfg.Logging.File != "" {
			setupLogging(verboseLevel, &cfg.Logging)
		}

		// Validate pipeline if provided
		if err := validatePipeline(); err != nil {
			return err
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeLogFile()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// If a pipeline is provided, delegate to run command
		if pipeline != "" {
			return runCmd.RunE(cmd, args)
		}
		// Otherwise show help
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		closeLogFile()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/pcmrecorder.yaml)")
	rootCmd.PersistentFlags().StringVarP(&pipeline, "pipeline", "p", "", "pipeline steps: r=record, p=play, e=export (e.g., 'rp', 'rpe', 'e')")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_profile from file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=subprocess output, 3=max tracing")

	// Flags for direct pipeline execution
	rootCmd.Flags().DurationP("duration", "d", 0, "record step length (default: until Ctrl+C)")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(serveCmd)
}

// newService creates the service for the loaded configuration
func newService() (*service.RecorderService, error) {
	svc, err := service.New(cfg, cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return svc, nil
}
