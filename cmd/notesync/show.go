package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, _, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer closeSession(s)

		n, err := s.Find(ctx, args[0])
		if err != nil {
			return err
		}

		if showJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(n)
		}

		fmt.Printf("# %s\n\n", n.Title)
		if n.Content != "" {
			fmt.Printf("%s\n\n", n.Content)
		}
		fmt.Printf("id:      %s\n", n.ID)
		fmt.Printf("created: %s\n", n.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		if n.UpdatedAt != nil {
			fmt.Printf("updated: %s\n", n.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
		}
		if n.Pinned {
			fmt.Println("pinned:  yes")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output in JSON format")
}
