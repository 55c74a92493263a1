package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/notesync"
)

var statusJSON bool

type statusReport struct {
	Status  string `json:"status"`
	Pending int    `json:"pending"`
	State   any    `json:"state"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity, the queue and the state of every component",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, _, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer closeSession(s)

		pending, err := s.Pending(ctx)
		if err != nil {
			return err
		}
		report := statusReport{
			Status:  string(s.Engine.Status()),
			Pending: len(pending),
			State:   s.State(),
		}

		if statusJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(report)
		}

		fmt.Printf("notesync %s\n", strings.TrimSpace(notesync.Version))
		fmt.Printf("status:  %s\n", report.Status)
		fmt.Printf("pending: %d\n", report.Pending)
		for _, op := range pending {
			fmt.Printf("  %s\n", op)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format, including component state")
}
