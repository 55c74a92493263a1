// Package view derives read-only projections (sorted, filtered, paginated)
// from the engine's record set. Nothing here mutates its input.
package view

import (
	"cmp"
	"slices"
	"strings"

	"github.com/aretw0/notesync/pkg/core"
)

// DefaultPageSize is the number of notes per page in the UI.
const DefaultPageSize = 20

// Sort orders notes with pinned notes first, then by field and direction.
// Ties keep their relative order.
func Sort(notes []core.Note, field core.SortField, order core.SortOrder) []core.Note {
	out := slices.Clone(notes)
	slices.SortStableFunc(out, func(a, b core.Note) int {
		if a.Pinned != b.Pinned {
			if a.Pinned {
				return -1
			}
			return 1
		}
		c := compare(a, b, field)
		if order == core.Asc {
			return c
		}
		return -c
	})
	return out
}

func compare(a, b core.Note, field core.SortField) int {
	switch field {
	case core.SortByTitle:
		if c := strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title)); c != 0 {
			return c
		}
		return strings.Compare(a.Title, b.Title)
	case core.SortByID:
		return strings.Compare(a.ID, b.ID)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

// Filter keeps the notes whose title contains search, ignoring case.
// An empty search keeps everything.
func Filter(notes []core.Note, search string) []core.Note {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return slices.Clone(notes)
	}
	out := make([]core.Note, 0, len(notes))
	for _, n := range notes {
		if strings.Contains(strings.ToLower(n.Title), search) {
			out = append(out, n)
		}
	}
	return out
}

// Paginate returns the 1-based page of size items. Out of range pages are empty.
func Paginate(notes []core.Note, page, size int) []core.Note {
	if size < 1 {
		size = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * size
	if start >= len(notes) {
		return []core.Note{}
	}
	end := min(start+size, len(notes))
	return slices.Clone(notes[start:end])
}

// TotalPages is the number of pages needed for total items, never less than one.
func TotalPages(total, size int) int {
	if size < 1 {
		size = DefaultPageSize
	}
	return max(1, (total+size-1)/size)
}

// Options selects a projection.
type Options struct {
	Search   string
	SortBy   core.SortField
	Order    core.SortOrder
	Page     int
	PageSize int
}

// Result is a projected page.
type Result struct {
	Notes      []core.Note
	Total      int
	Page       int
	TotalPages int
}

// Project filters, sorts and paginates notes in that order.
func Project(notes []core.Note, opts Options) Result {
	size := cmp.Or(opts.PageSize, DefaultPageSize)
	page := max(opts.Page, 1)

	filtered := Filter(notes, opts.Search)
	sorted := Sort(filtered, cmp.Or(opts.SortBy, core.SortByCreatedAt), cmp.Or(opts.Order, core.Desc))

	return Result{
		Notes:      Paginate(sorted, page, size),
		Total:      len(sorted),
		Page:       page,
		TotalPages: TotalPages(len(sorted), size),
	}
}
