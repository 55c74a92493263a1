// Package cachetest is the conformance suite every core.LocalCache adapter runs.
package cachetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notesync/pkg/core"
)

// Opener opens the cache stored in dir. Opening the same dir twice must see
// the same data when the adapter is durable.
type Opener func(t *testing.T, dir string) core.LocalCache

// Run exercises the LocalCache contract. Durable adapters also get a reopen
// check.
func Run(t *testing.T, open Opener, durable bool) {
	ctx := context.Background()

	fresh := func(t *testing.T) core.LocalCache {
		t.Helper()
		c := open(t, t.TempDir())
		t.Cleanup(func() { _ = c.Close() })
		return c
	}

	t.Run("Empty Snapshot", func(t *testing.T) {
		c := fresh(t)
		notes, err := c.LoadSnapshot(ctx)
		require.NoError(t, err)
		assert.Empty(t, notes)

		ops, err := c.ListOperations(ctx)
		require.NoError(t, err)
		assert.Empty(t, ops)
	})

	t.Run("Snapshot Round Trip", func(t *testing.T) {
		c := fresh(t)
		want := Notes(3)
		require.NoError(t, c.PersistSnapshot(ctx, want))

		got, err := c.LoadSnapshot(ctx)
		require.NoError(t, err)
		AssertNotes(t, want, got)
	})

	t.Run("Snapshot Is Replaced", func(t *testing.T) {
		c := fresh(t)
		require.NoError(t, c.PersistSnapshot(ctx, Notes(5)))

		smaller := Notes(2)
		smaller[0], smaller[1] = smaller[1], smaller[0]
		require.NoError(t, c.PersistSnapshot(ctx, smaller))

		got, err := c.LoadSnapshot(ctx)
		require.NoError(t, err)
		AssertNotes(t, smaller, got)

		require.NoError(t, c.PersistSnapshot(ctx, nil))
		got, err = c.LoadSnapshot(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Operations Ordered By Timestamp", func(t *testing.T) {
		c := fresh(t)
		notes := Notes(3)
		require.NoError(t, c.EnqueueOperation(ctx, core.PendingOperation{Kind: core.OpUpdate, Note: notes[1], Timestamp: 300}))
		require.NoError(t, c.EnqueueOperation(ctx, core.PendingOperation{Kind: core.OpCreate, Note: notes[0], Timestamp: 100}))
		require.NoError(t, c.EnqueueOperation(ctx, core.PendingOperation{Kind: core.OpDelete, Note: notes[2], Timestamp: 200}))

		ops, err := c.ListOperations(ctx)
		require.NoError(t, err)
		require.Len(t, ops, 3)
		assert.Equal(t, []int64{100, 200, 300}, timestamps(ops))
		assert.Equal(t, core.OpCreate, ops[0].Kind)
		assert.Equal(t, core.OpDelete, ops[1].Kind)
		AssertNotes(t, []core.Note{notes[0], notes[2], notes[1]}, []core.Note{ops[0].Note, ops[1].Note, ops[2].Note})
	})

	t.Run("Same Timestamp Overwrites", func(t *testing.T) {
		c := fresh(t)
		n := Notes(1)[0]
		require.NoError(t, c.EnqueueOperation(ctx, core.PendingOperation{Kind: core.OpUpdate, Note: n, Timestamp: 7}))

		n.ID = "42"
		require.NoError(t, c.EnqueueOperation(ctx, core.PendingOperation{Kind: core.OpUpdate, Note: n, Timestamp: 7}))

		ops, err := c.ListOperations(ctx)
		require.NoError(t, err)
		require.Len(t, ops, 1)
		assert.Equal(t, "42", ops[0].Note.ID)
	})

	t.Run("Remove", func(t *testing.T) {
		c := fresh(t)
		n := Notes(1)[0]
		require.NoError(t, c.EnqueueOperation(ctx, core.PendingOperation{Kind: core.OpCreate, Note: n, Timestamp: 1}))
		require.NoError(t, c.EnqueueOperation(ctx, core.PendingOperation{Kind: core.OpUpdate, Note: n, Timestamp: 2}))

		require.NoError(t, c.RemoveOperation(ctx, 1))
		require.NoError(t, c.RemoveOperation(ctx, 1), "removing an absent key is a no-op")
		require.NoError(t, c.RemoveOperation(ctx, 99))

		ops, err := c.ListOperations(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{2}, timestamps(ops))
	})

	t.Run("Concurrent Enqueue", func(t *testing.T) {
		c := fresh(t)
		n := Notes(1)[0]

		var wg sync.WaitGroup
		for i := 1; i <= 20; i++ {
			wg.Add(1)
			go func(ts int64) {
				defer wg.Done()
				assert.NoError(t, c.EnqueueOperation(ctx, core.PendingOperation{Kind: core.OpUpdate, Note: n, Timestamp: ts}))
			}(int64(i))
		}
		wg.Wait()

		ops, err := c.ListOperations(ctx)
		require.NoError(t, err)
		assert.Len(t, ops, 20)
	})

	if !durable {
		return
	}

	t.Run("Survives Reopen", func(t *testing.T) {
		dir := t.TempDir()
		notes := Notes(4)

		c := open(t, dir)
		require.NoError(t, c.PersistSnapshot(ctx, notes))
		require.NoError(t, c.EnqueueOperation(ctx, core.PendingOperation{Kind: core.OpCreate, Note: notes[0], Timestamp: 10}))
		require.NoError(t, c.Close())

		c = open(t, dir)
		defer c.Close()

		got, err := c.LoadSnapshot(ctx)
		require.NoError(t, err)
		AssertNotes(t, notes, got)

		ops, err := c.ListOperations(ctx)
		require.NoError(t, err)
		require.Len(t, ops, 1)
		assert.Equal(t, core.OpCreate, ops[0].Kind)
		assert.Equal(t, notes[0].ID, ops[0].Note.ID)
	})
}

// ReportingOpener opens the cache stored in dir, handing skipped queue entries
// to report.
type ReportingOpener func(t *testing.T, dir string, report func(error)) core.LocalCache

// Corrupter writes an undecodable queue entry with timestamp ts into the closed
// cache stored in dir.
type Corrupter func(t *testing.T, dir string, ts int64)

// RunUndecodable checks that a queue entry that cannot be decoded is reported
// and skipped, and does not hide the entries around it.
func RunUndecodable(t *testing.T, open ReportingOpener, corrupt Corrupter) {
	ctx := context.Background()
	dir := t.TempDir()
	notes := Notes(2)

	c := open(t, dir, func(err error) { t.Errorf("unexpected report: %v", err) })
	require.NoError(t, c.EnqueueOperation(ctx, core.PendingOperation{Kind: core.OpCreate, Note: notes[0], Timestamp: 2}))
	require.NoError(t, c.EnqueueOperation(ctx, core.PendingOperation{Kind: core.OpUpdate, Note: notes[1], Timestamp: 3}))
	require.NoError(t, c.Close())

	corrupt(t, dir, 1)

	var mu sync.Mutex
	var reported []error
	c = open(t, dir, func(err error) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, err)
	})
	defer c.Close()

	ops, err := c.ListOperations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, timestamps(ops))

	mu.Lock()
	require.Len(t, reported, 1)
	assert.Contains(t, reported[0].Error(), "1")
	mu.Unlock()

	// Removing the readable entries leaves the broken one in place.
	require.NoError(t, c.RemoveOperation(ctx, 2))
	require.NoError(t, c.RemoveOperation(ctx, 3))
	ops, err = c.ListOperations(ctx)
	require.NoError(t, err)
	assert.Empty(t, ops)

	mu.Lock()
	assert.Len(t, reported, 2)
	mu.Unlock()
}

// Notes builds n distinct notes. Odd ones carry an update time, the first is pinned.
func Notes(n int) []core.Note {
	base := time.Date(2025, 6, 1, 12, 0, 0, 123456789, time.UTC)
	out := make([]core.Note, 0, n)
	for i := range n {
		note := core.Note{
			ID:        fmt.Sprintf("%d", i+1),
			Title:     fmt.Sprintf("Note %d", i+1),
			Content:   fmt.Sprintf("body of note %d\nwith two lines", i+1),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			Pinned:    i == 0,
		}
		if i%2 == 1 {
			updated := note.CreatedAt.Add(time.Minute)
			note.UpdatedAt = &updated
		}
		out = append(out, note)
	}
	if n > 2 {
		out[2].ID = core.NewLocalID()
	}
	return out
}

// AssertNotes compares notes field by field, treating times as instants.
func AssertNotes(t *testing.T, want, got []core.Note) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		w, g := want[i], got[i]
		assert.Equal(t, w.ID, g.ID, "note %d id", i)
		assert.Equal(t, w.Title, g.Title, "note %d title", i)
		assert.Equal(t, w.Content, g.Content, "note %d content", i)
		assert.Equal(t, w.Pinned, g.Pinned, "note %d pinned", i)
		assert.True(t, w.CreatedAt.Equal(g.CreatedAt), "note %d createdAt: want %v, got %v", i, w.CreatedAt, g.CreatedAt)
		if w.UpdatedAt == nil {
			assert.Nil(t, g.UpdatedAt, "note %d updatedAt", i)
			continue
		}
		if assert.NotNil(t, g.UpdatedAt, "note %d updatedAt", i) {
			assert.True(t, w.UpdatedAt.Equal(*g.UpdatedAt), "note %d updatedAt: want %v, got %v", i, *w.UpdatedAt, *g.UpdatedAt)
		}
	}
}

func timestamps(ops []core.PendingOperation) []int64 {
	out := make([]int64, len(ops))
	for i, op := range ops {
		out[i] = op.Timestamp
	}
	return out
}
