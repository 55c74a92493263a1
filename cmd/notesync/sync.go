package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/notesync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay queued changes to the remote store",
	Long: `Probe the remote store and, if it answers, replay every queued change in
the order it was made, then refresh the local snapshot. Changes that fail stay
queued for the next sync.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if offline {
			return errors.New("cannot sync with --offline")
		}

		ctx := cmd.Context()
		s, failed, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer closeSession(s)

		report, err := s.Sync(ctx)
		if errors.Is(err, notesync.ErrOffline) {
			pending, perr := s.Pending(ctx)
			if perr != nil {
				return perr
			}
			fmt.Printf("Remote store unreachable; %d change(s) still queued.\n", len(pending))
			return err
		}
		if err != nil {
			return err
		}

		fmt.Printf("Replayed %d change(s): %d delivered, %d failed, %d waiting on an earlier create.\n",
			report.Attempted, report.Succeeded, report.Failed, report.Skipped)
		if report.Remaining > 0 {
			if err := failed.err(); err != nil {
				return fmt.Errorf("%d change(s) still queued: %w", report.Remaining, err)
			}
			return fmt.Errorf("%d change(s) still queued", report.Remaining)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
