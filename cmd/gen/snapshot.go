package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yanmxa/gencode/internal/session"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots <session-id>",
	Short: "List saved snapshots for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.NewStore()
		if err != nil {
			return fmt.Errorf("failed to open session store: %w", err)
		}

		snaps, err := store.ListSnapshots(args[0])
		if err != nil {
			return fmt.Errorf("failed to list snapshots: %w", err)
		}
		if len(snaps) == 0 {
			fmt.Println("No snapshots recorded for this session.")
			return nil
		}

		fmt.Printf("Snapshots for %s (%d total):\n\n", args[0], len(snaps))
		for _, s := range snaps {
			fmt.Printf("  #%d  %s  %d messages\n", s.Number, s.TakenAt.Format("2006-01-02 15:04:05"), len(s.Session.Messages))
		}
		return nil
	},
}

var cleanupSnapshotsCmd = &cobra.Command{
	Use:   "cleanup-snapshots",
	Short: "Remove expired sessions and their snapshots",
	Long: `Removes sessions older than the retention window and their on-disk
snapshot history, freeing up ~/.gen/sessions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.NewStore()
		if err != nil {
			return fmt.Errorf("failed to open session store: %w", err)
		}
		if err := store.Cleanup(); err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}
		fmt.Println("Cleanup complete.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(snapshotsCmd)
	rootCmd.AddCommand(cleanupSnapshotsCmd)
}
