package view

import "github.com/aretw0/notesync/pkg/core"

// SortState is the active sort of a list view.
type SortState struct {
	Field core.SortField
	Order core.SortOrder
}

// DefaultSort is newest first.
func DefaultSort() SortState {
	return SortState{Field: core.SortByCreatedAt, Order: core.Desc}
}

// Toggle handles a click on a sort control: the active field flips its
// direction, a new field starts descending.
func (s SortState) Toggle(field core.SortField) SortState {
	if s.Field == field {
		if s.Order == core.Asc {
			s.Order = core.Desc
		} else {
			s.Order = core.Asc
		}
		return s
	}
	return SortState{Field: field, Order: core.Desc}
}

// Pager tracks the current page of a list view.
type Pager struct {
	Page int
}

// Goto jumps to page, clamped to the first page.
func (p Pager) Goto(page int) Pager {
	return Pager{Page: max(1, page)}
}

// Prev moves one page back, stopping at the first page.
func (p Pager) Prev() Pager {
	return Pager{Page: max(1, p.Page-1)}
}

// Next moves one page forward, stopping at totalPages.
func (p Pager) Next(totalPages int) Pager {
	return Pager{Page: max(1, min(totalPages, p.Page+1))}
}
