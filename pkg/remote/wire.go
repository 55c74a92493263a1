package remote

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/notesync/pkg/core"
)

// wireNote is the note as the store sends it. Stores disagree on whether ids
// are strings or numbers and how timestamps look, so both are decoded leniently.
type wireNote struct {
	ID        flexID    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt flexTime  `json:"createdAt"`
	UpdatedAt *flexTime `json:"updatedAt,omitempty"`
	Pinned    bool      `json:"pinned"`
}

func (w wireNote) note() core.Note {
	n := core.Note{
		ID:        w.ID.String(),
		Title:     w.Title,
		Content:   w.Content,
		CreatedAt: w.CreatedAt.Time,
		Pinned:    w.Pinned,
	}
	if w.UpdatedAt != nil && !w.UpdatedAt.IsZero() {
		t := w.UpdatedAt.Time
		n.UpdatedAt = &t
	}
	return n
}

type flexID string

func (id flexID) String() string { return string(id) }

func (id *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = flexID(n.String())
	return nil
}

type flexTime struct {
	time.Time
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z07:00", "2006-01-02 15:04:05", "2006-01-02"}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) || len(data) == 0 {
		return nil
	}
	if data[0] != '"' {
		// Unix seconds.
		secs, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return err
		}
		t.Time = time.Unix(secs, 0).UTC()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var lastErr error
	for _, layout := range timeLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed.UTC()
			return nil
		}
		lastErr = err
	}
	return lastErr
}
