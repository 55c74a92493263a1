package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aretw0/lifecycle"
	"github.com/spf13/cobra"

	"github.com/aretw0/notesync/internal/platform"
	adapter "github.com/aretw0/notesync/pkg/adapters/lifecycle"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Keep the queue flowing to the remote store",
	Long: `Run until interrupted: probe the remote store, replay the queue whenever it
becomes reachable, and, with the fs cache adapter, replay as soon as another
notesync process queues a change.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := slog.Default()

		s, failed, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer closeSession(s)

		events, unsubscribe := s.Engine.Subscribe()
		defer unsubscribe()
		if err := logEvents(ctx, logger, "engine", adapter.NewSource(events)); err != nil {
			return err
		}

		queue, err := s.WatchQueue(ctx)
		switch {
		case err == nil:
			if err := logEvents(ctx, logger, "queue", adapter.NewSource(queue)); err != nil {
				return err
			}
		case errors.Is(err, platform.ErrWatchUnsupported):
			logger.Debug("queue watching disabled", "adapter", cfg.Cache.Adapter)
		default:
			return err
		}

		if err := s.Start(ctx); err != nil {
			return err
		}
		logger.Info("daemon started", "status", s.Engine.Status())

		<-ctx.Done()
		logger.Info("daemon stopping")
		if err := failed.err(); err != nil {
			logger.Warn("failures during run", "error", err)
		}
		return nil
	},
}

// logEvents starts src and logs every event it emits until ctx ends.
func logEvents(ctx context.Context, logger *slog.Logger, name string, src lifecycle.Source) error {
	if err := src.Start(ctx); err != nil {
		return err
	}
	lifecycle.Go(ctx, func(ctx context.Context) error {
		for e := range src.Events() {
			logger.Info("event", "source", name, "event", e.String())
		}
		return nil
	})
	return nil
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
