package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/notesync"
)

var (
	editTitle   string
	editContent string
)

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change the title or content of a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch notesync.NotePatch
		if cmd.Flags().Changed("title") {
			patch.Title = &editTitle
		}
		if cmd.Flags().Changed("content") {
			patch.Content = &editContent
		}
		if patch.IsEmpty() {
			return errors.New("nothing to change: pass --title or --content")
		}

		return mutate(cmd.Context(), args[0], "updated", func(ctx context.Context, s *notesync.Session) {
			s.Engine.Update(ctx, args[0], patch)
		})
	},
}

var pinCmd = &cobra.Command{
	Use:   "pin <id>",
	Short: "Pin or unpin a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutate(cmd.Context(), args[0], "toggled", func(ctx context.Context, s *notesync.Session) {
			s.Engine.TogglePin(ctx, args[0])
		})
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a note",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutate(cmd.Context(), args[0], "deleted", func(ctx context.Context, s *notesync.Session) {
			s.Engine.Delete(ctx, args[0])
		})
	},
}

// mutate loads the record set, applies fn to the note with the given id and
// reports whether the change reached the store, was queued or was rolled back.
func mutate(ctx context.Context, id, verb string, fn func(context.Context, *notesync.Session)) error {
	s, failed, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer closeSession(s)

	n, err := ensureLoaded(ctx, s, id)
	if err != nil {
		return err
	}
	queued := !s.Monitor.Online() || n.IsLocal()

	fn(ctx, s)
	s.Engine.Wait()

	if err := failed.err(); err != nil {
		return fmt.Errorf("note %s not %s: %w", id, verb, err)
	}
	if queued {
		fmt.Printf("Note '%s' %s locally; the change is queued.\n", id, verb)
		return nil
	}
	fmt.Printf("Note '%s' %s.\n", id, verb)
	return nil
}

func init() {
	rootCmd.AddCommand(editCmd, pinCmd, rmCmd)
	editCmd.Flags().StringVar(&editTitle, "title", "", "New title")
	editCmd.Flags().StringVar(&editContent, "content", "", "New content")
}
