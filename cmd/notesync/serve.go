package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/remote/remotetest"
)

var (
	serveAddr string
	serveSeed int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an in-memory notes store for local development",
	Long: `Serve a MockAPI-compatible notes store kept in memory. Point the client at
it with --config or NOTESYNC_BASE_URL=http://<addr>. Stop it to simulate the
store going away.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := slog.Default()

		store := remotetest.NewServer(logger)
		now := time.Now().UTC()
		seed := make([]core.Note, serveSeed)
		for i := range seed {
			seed[i] = core.Note{
				ID:        strconv.Itoa(i + 1),
				Title:     fmt.Sprintf("Sample note %d", i+1),
				CreatedAt: now.Add(time.Duration(i-serveSeed) * time.Minute),
			}
		}
		store.Seed(seed...)

		srv := &http.Server{
			Addr:              serveAddr,
			Handler:           store,
			ReadHeaderTimeout: 5 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("serving notes store", "addr", serveAddr, "notes", serveSeed)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:3000", "Address to listen on")
	serveCmd.Flags().IntVar(&serveSeed, "seed", 0, "Number of sample notes to start with")
}
