package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalIDPrefix marks identifiers minted on the client before the remote store
// has confirmed a record.
const LocalIDPrefix = "local-"

// Note is the central entity of the domain.
// The ID is assigned by the remote store; until then it carries a local ID.
type Note struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	Pinned    bool       `json:"pinned"`
}

// Clone returns a deep copy of the note.
func (n Note) Clone() Note {
	if n.UpdatedAt != nil {
		t := *n.UpdatedAt
		n.UpdatedAt = &t
	}
	return n
}

// IsLocal reports whether the note has not been confirmed by the remote store yet.
func (n Note) IsLocal() bool {
	return IsLocalID(n.ID)
}

// NewLocalID returns a temporary identifier that can never collide with a
// server-assigned one.
func NewLocalID() string {
	return LocalIDPrefix + uuid.NewString()
}

// IsLocalID reports whether id was produced by NewLocalID.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// NoteInput is the payload of a create request.
type NoteInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Pinned  bool   `json:"pinned"`
}

// NotePatch is a partial update. Nil fields are left untouched.
type NotePatch struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
	Pinned  *bool   `json:"pinned,omitempty"`
}

// Apply returns n with the patch merged in.
func (p NotePatch) Apply(n Note) Note {
	n = n.Clone()
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Content != nil {
		n.Content = *p.Content
	}
	if p.Pinned != nil {
		n.Pinned = *p.Pinned
	}
	return n
}

// IsEmpty reports whether the patch changes nothing.
func (p NotePatch) IsEmpty() bool {
	return p.Title == nil && p.Content == nil && p.Pinned == nil
}

// PatchOf builds a full patch carrying every mutable field of n.
// Replay uses it so the remote store receives the note as it was queued.
func PatchOf(n Note) NotePatch {
	title, content, pinned := n.Title, n.Content, n.Pinned
	return NotePatch{Title: &title, Content: &content, Pinned: &pinned}
}

// InputOf converts a note into a create payload.
func InputOf(n Note) NoteInput {
	return NoteInput{Title: n.Title, Content: n.Content, Pinned: n.Pinned}
}

// CloneNotes copies a slice of notes.
func CloneNotes(notes []Note) []Note {
	if notes == nil {
		return nil
	}
	out := make([]Note, len(notes))
	for i, n := range notes {
		out[i] = n.Clone()
	}
	return out
}
