package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/audiolibrelab/pcmrecorder/internal/storage"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recordings, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		store := storage.NewStore(cfg.Storage.Directory)
		recordings, err := store.List()
		if err != nil {
			return fmt.Errorf("failed to list recordings: %w", err)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(recordings)
		}

		fmt.Printf("📼 Recordings in %s (%d found)\n", store.Dir(), len(recordings))
		fmt.Printf("═══════════════════════════════════════\n")
		for _, rec := range recordings {
			fmt.Printf("  %-28s %9s %8.1fs  %s\n", rec.Name, rec.SizeHuman, rec.DurationSeconds, rec.CreatedAtHuman)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete [recording]",
	Aliases: []string{"rm"},
	Short:   "Delete a recording",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.DeleteRecording(args[0]); err != nil {
			return fmt.Errorf("failed to delete %s: %w", args[0], err)
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	listCmd.Flags().Bool("json", false, "print recordings as JSON")
}
