package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/audiolibrelab/pcmrecorder/internal/apperr"
	"github.com/audiolibrelab/pcmrecorder/internal/audio"
	"github.com/audiolibrelab/pcmrecorder/internal/export"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check microphone, backend and notification support",
	Long: `Run the environment checks: microphone permission, whether the input device
can be acquired right now, installed audio tools, desktop notifications and
export formats.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		fmt.Printf("🔎 pcmrecorder checks (backend: %s)\n", svc.Status().Backend)
		fmt.Printf("═══════════════════════════════════════\n\n")

		failed := false
		report := func(name string, err error) {
			if err != nil {
				failed = true
				fmt.Printf("  ❌ %-22s %s\n", name, apperr.Message(err))
				return
			}
			fmt.Printf("  ✅ %s\n", name)
		}

		report("microphone permission", svc.CheckMicrophonePermission())
		report("microphone available", svc.CheckMicrophoneAvailable())

		installed := audio.GetAvailableBackends()
		if len(installed) == 0 {
			fmt.Printf("  ⚠️  %-22s none (install pipewire or alsa-utils)\n", "audio tools")
		} else {
			names := make([]string, len(installed))
			for i, b := range installed {
				names[i] = string(b)
			}
			fmt.Printf("  ✅ audio tools: %s\n", strings.Join(names, ", "))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		support := svc.CheckNotificationSupport(ctx)
		switch {
		case !support.Enabled:
			fmt.Printf("  ➖ notifications disabled in config\n")
		case !support.Available:
			fmt.Printf("  ⚠️  %-22s no notification service on the session bus\n", "notifications")
		default:
			fmt.Printf("  ✅ notifications (persistent: %t)\n", support.Persistent)
		}

		fmt.Printf("  ✅ export formats: %s\n", strings.Join(export.SupportedFormats(), ", "))

		if failed {
			return fmt.Errorf("some checks failed")
		}
		return nil
	},
}
