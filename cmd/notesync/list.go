package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/view"
)

var (
	listJSON   bool
	listSearch string
	listSort   string
	listOrder  string
	listPage   int
	listSize   int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes",
	Long: `List notes from the remote store, or from the local snapshot when the
store is unreachable. Filtering, sorting and paging happen locally.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		field, err := core.ParseSortField(listSort)
		if err != nil {
			return err
		}
		order, err := core.ParseSortOrder(listOrder)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		s, _, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer closeSession(s)

		if _, err := s.Engine.Load(ctx, core.DefaultQuery()); err != nil {
			return fmt.Errorf("load notes: %w", err)
		}
		result := view.Project(s.Engine.Notes(), view.Options{
			Search:   listSearch,
			SortBy:   field,
			Order:    order,
			Page:     listPage,
			PageSize: listSize,
		})

		if listJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(result)
		}

		for _, n := range result.Notes {
			printNote(n)
		}
		fmt.Printf("page %d/%d (%d notes, %s)\n", result.Page, result.TotalPages, result.Total, s.Engine.Status())
		return nil
	},
}

func printNote(n core.Note) {
	pin := " "
	if n.Pinned {
		pin = "*"
	}
	fmt.Printf("%s %-12s %s  %s\n", pin, n.ID, n.CreatedAt.Local().Format("2006-01-02 15:04"), n.Title)
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	listCmd.Flags().StringVar(&listSearch, "search", "", "Only notes whose title contains this text")
	listCmd.Flags().StringVar(&listSort, "sort", string(core.SortByCreatedAt), "Sort by createdAt, title or id")
	listCmd.Flags().StringVar(&listOrder, "order", string(core.Desc), "Sort order: asc or desc")
	listCmd.Flags().IntVar(&listPage, "page", 1, "Page to show")
	listCmd.Flags().IntVar(&listSize, "page-size", view.DefaultPageSize, "Notes per page")
}
