// Package core holds the domain types and the contracts between the sync engine
// and its collaborators (local cache, remote store, connectivity).
package core

import "fmt"

// OpKind is the kind of a queued mutation.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// PendingOperation is a mutation that could not reach the remote store.
// Timestamp is unique per operation and doubles as its key in the queue.
type PendingOperation struct {
	Kind      OpKind `json:"type"`
	Note      Note   `json:"note"`
	Timestamp int64  `json:"timestamp"`
}

func (op PendingOperation) String() string {
	return fmt.Sprintf("%s %s @%d", op.Kind, op.Note.ID, op.Timestamp)
}

// SortField is a field the record set can be ordered by.
type SortField string

const (
	SortByCreatedAt SortField = "createdAt"
	SortByTitle     SortField = "title"
	SortByID        SortField = "id"
)

// SortOrder is the direction of a sort.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// ParseSortField validates a user supplied sort field.
func ParseSortField(s string) (SortField, error) {
	switch f := SortField(s); f {
	case SortByCreatedAt, SortByTitle, SortByID:
		return f, nil
	}
	return "", fmt.Errorf("unknown sort field %q", s)
}

// ParseSortOrder validates a user supplied sort order.
func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(s); o {
	case Asc, Desc:
		return o, nil
	}
	return "", fmt.Errorf("unknown sort order %q", s)
}

// Query describes one page request against the record set.
// Page is 1-based.
type Query struct {
	Page     int
	PageSize int
	Search   string
	SortBy   SortField
	Order    SortOrder
}

// DefaultQuery loads everything the store is willing to hand out in one page,
// newest first.
func DefaultQuery() Query {
	return Query{Page: 1, PageSize: 1000, SortBy: SortByCreatedAt, Order: Desc}
}

// Normalize fills zero values with defaults.
func (q Query) Normalize() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}
	if q.SortBy == "" {
		q.SortBy = SortByCreatedAt
	}
	if q.Order == "" {
		q.Order = Desc
	}
	return q
}

// Page is the result of a Query. Total may be an estimate.
type Page struct {
	Notes []Note `json:"data"`
	Total int    `json:"total"`
}
