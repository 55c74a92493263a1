package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/notesync"
)

var addPinned bool

var addCmd = &cobra.Command{
	Use:   "add <title> [content]",
	Short: "Create a note",
	Long: `Create a note. When the remote store is unreachable the note is kept with a
temporary id and queued; it takes its final id on the next sync.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := notesync.NoteInput{Title: args[0], Pinned: addPinned}
		if len(args) == 2 {
			in.Content = args[1]
		}

		ctx := cmd.Context()
		s, _, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer closeSession(s)

		// Load first so the snapshot written after the create keeps the other notes.
		if _, err := s.Engine.Load(ctx, notesync.DefaultQuery()); err != nil {
			return fmt.Errorf("load notes: %w", err)
		}
		n, err := s.Engine.Create(ctx, in)
		if err != nil {
			return err
		}
		s.Engine.Wait()

		if n.IsLocal() {
			fmt.Printf("Note '%s' queued as %s.\n", n.Title, n.ID)
			return nil
		}
		fmt.Printf("Note '%s' created with id %s.\n", n.Title, n.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().BoolVar(&addPinned, "pin", false, "Pin the note")
}
