package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/aretw0/notesync"
	"github.com/aretw0/notesync/pkg/core"
)

var (
	verbose    bool
	offline    bool
	configPath string
	logFile    string

	cfg notesync.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "notesync",
	Short: "An offline-first client for a remote notes store",
	Long: `notesync keeps a local copy of your notes and a queue of the changes made
while the remote store was unreachable. Queued changes are replayed, oldest
first, as soon as the store answers again.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			found, err := notesync.FindConfig(wd)
			switch {
			case err == nil:
				path = found
			case !errors.Is(err, notesync.ErrConfigNotFound):
				return err
			}
		}

		var err error
		cfg, err = notesync.LoadConfig(path)
		if err != nil {
			return err
		}

		level := slog.LevelInfo
		if cfg.Log.Level != "" {
			if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
				return fmt.Errorf("log.level: %w", err)
			}
		}
		if verbose {
			level = slog.LevelDebug
		}

		var out io.Writer = os.Stderr
		if f := cmp.Or(logFile, cfg.Log.File); f != "" {
			out = &lumberjack.Logger{
				Filename:   f,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				Compress:   true,
			}
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(out, opts))
		slog.SetDefault(logger)
		if path != "" {
			logger.Debug("config loaded", "path", path)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Skip the remote store and queue every change")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to .notesync.yaml (default: searched upwards from the working directory)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to a rotating file instead of stderr")
}

// failures collects the errors the engine reports instead of returning, so a
// command can tell whether its mutation was rolled back.
type failures struct {
	mu   sync.Mutex
	errs []error
}

func (f *failures) add(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

func (f *failures) err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return errors.Join(f.errs...)
}

// openSession opens a session from the loaded configuration and the global
// flags.
func openSession(ctx context.Context, extra ...notesync.Option) (*notesync.Session, *failures, error) {
	failed := &failures{}
	opts := []notesync.Option{
		notesync.WithConfig(cfg),
		notesync.WithLogger(slog.Default()),
		notesync.WithErrorHandler(failed.add),
	}
	if offline {
		opts = append(opts, notesync.WithInitialOnline(false))
	}
	opts = append(opts, extra...)

	s, err := notesync.New(ctx, opts...)
	if err != nil {
		return nil, nil, err
	}
	return s, failed, nil
}

// ensureLoaded loads the record set and checks that id is part of it.
func ensureLoaded(ctx context.Context, s *notesync.Session, id string) (notesync.Note, error) {
	if _, err := s.Engine.Load(ctx, notesync.DefaultQuery()); err != nil {
		return notesync.Note{}, err
	}
	n, ok := s.Engine.Note(id)
	if !ok {
		return notesync.Note{}, fmt.Errorf("%s: %w", id, core.ErrNotFound)
	}
	return n, nil
}

func closeSession(s *notesync.Session) {
	if err := s.Close(); err != nil {
		slog.Error("close session", "error", err)
	}
}
