package engine_test

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/aretw0/notesync/pkg/adapters/memory"
	"github.com/aretw0/notesync/pkg/connectivity"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/engine"
)

// drain returns the event types already buffered on ch.
func drain(ch <-chan engine.Event) []engine.EventType {
	var out []engine.EventType
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, e.Type)
		default:
			return out
		}
	}
}

func TestEngine_OnlineSequence(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		seed := numbered(rapid.IntRange(0, 5).Draw(rt, "seed"))
		f := build(true, newStubRemote(seed...))
		defer f.close()

		_, err := f.engine.Load(ctx, core.DefaultQuery())
		require.NoError(rt, err)

		model := core.CloneNotes(seed)
		nextID := len(seed) + 1
		steps := rapid.IntRange(1, 15).Draw(rt, "steps")
		for range steps {
			action := rapid.SampledFrom([]string{"create", "update", "pin", "delete"}).Draw(rt, "action")
			if len(model) == 0 {
				action = "create"
			}
			title := rapid.StringMatching(`[a-z]{0,8}`).Draw(rt, "title")

			switch action {
			case "create":
				n, err := f.engine.Create(ctx, core.NoteInput{Title: title, Content: "c"})
				require.NoError(rt, err)
				want := core.Note{ID: strconv.Itoa(nextID), Title: title, Content: "c", CreatedAt: serverTime}
				nextID++
				require.Equal(rt, want, n)
				model = slices.Insert(model, 0, want)
			case "update":
				i := rapid.IntRange(0, len(model)-1).Draw(rt, "index")
				f.engine.Update(ctx, model[i].ID, core.NotePatch{Title: &title})
				model[i].Title = title
				model[i].UpdatedAt = ptr(serverTime)
			case "pin":
				i := rapid.IntRange(0, len(model)-1).Draw(rt, "index")
				f.engine.TogglePin(ctx, model[i].ID)
				model[i].Pinned = !model[i].Pinned
				model[i].UpdatedAt = ptr(serverTime)
			case "delete":
				i := rapid.IntRange(0, len(model)-1).Draw(rt, "index")
				f.engine.Delete(ctx, model[i].ID)
				model = slices.Delete(model, i, i+1)
			}
		}

		require.Equal(rt, model, f.engine.Notes())
		require.Equal(rt, model, f.snapshot(rt), "snapshot matches the set once persistence settles")
		require.Empty(rt, f.ops(rt))
		require.Empty(rt, f.sink.Errors())
	})
}

func TestEngine_OfflineQueue(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		// A frozen clock forces every stamp through the collision path.
		frozen := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		f := build(false, newStubRemote(), engine.WithClock(func() time.Time { return frozen }))
		defer f.close()

		seed := numbered(rapid.IntRange(0, 5).Draw(rt, "seed"))
		require.NoError(rt, f.cache.PersistSnapshot(ctx, seed))
		_, err := f.engine.Load(ctx, core.DefaultQuery())
		require.NoError(rt, err)

		model := core.CloneNotes(seed)
		var kinds []core.OpKind
		var queued []core.Note
		steps := rapid.IntRange(1, 15).Draw(rt, "steps")
		for range steps {
			action := rapid.SampledFrom([]string{"create", "update", "pin", "delete"}).Draw(rt, "action")
			if len(model) == 0 {
				action = "create"
			}
			title := rapid.StringMatching(`[a-z]{0,8}`).Draw(rt, "title")

			switch action {
			case "create":
				n, err := f.engine.Create(ctx, core.NoteInput{Title: title})
				require.NoError(rt, err)
				require.True(rt, n.IsLocal())
				require.Equal(rt, frozen, n.CreatedAt)
				model = slices.Insert(model, 0, n)
				kinds = append(kinds, core.OpCreate)
				queued = append(queued, n)
			case "update", "pin":
				i := rapid.IntRange(0, len(model)-1).Draw(rt, "index")
				if action == "update" {
					f.engine.Update(ctx, model[i].ID, core.NotePatch{Title: &title})
					model[i].Title = title
				} else {
					f.engine.TogglePin(ctx, model[i].ID)
					model[i].Pinned = !model[i].Pinned
				}
				kinds = append(kinds, core.OpUpdate)
				queued = append(queued, model[i].Clone())
			case "delete":
				i := rapid.IntRange(0, len(model)-1).Draw(rt, "index")
				f.engine.Delete(ctx, model[i].ID)
				kinds = append(kinds, core.OpDelete)
				queued = append(queued, model[i].Clone())
				model = slices.Delete(model, i, i+1)
			}
			require.Equal(rt, model, f.engine.Notes(), "optimistic state is visible immediately")
		}

		ops := f.ops(rt)
		require.Len(rt, ops, len(kinds), "one queue entry per operation")
		for i, op := range ops {
			require.Equal(rt, kinds[i], op.Kind)
			require.Equal(rt, queued[i], op.Note)
			if i > 0 {
				require.Greater(rt, op.Timestamp, ops[i-1].Timestamp)
			}
		}
		require.Equal(rt, model, f.snapshot(rt))
		require.Empty(rt, f.remote.Calls(), "nothing reaches the network while offline")
	})
}

func TestEngine_Replay(t *testing.T) {
	ctx := context.Background()

	t.Run("Idempotent Once Drained", func(t *testing.T) {
		seed := numbered(3)
		f := newFixture(t, false, newStubRemote(seed...))
		require.NoError(t, f.cache.PersistSnapshot(ctx, seed))
		_, err := f.engine.Load(ctx, core.DefaultQuery())
		require.NoError(t, err)

		_, err = f.engine.Create(ctx, core.NoteInput{Title: "X"})
		require.NoError(t, err)
		f.engine.Update(ctx, "2", core.NotePatch{Title: ptr("renamed")})
		f.engine.Delete(ctx, "3")
		require.Len(t, f.ops(t), 3)

		assert.Equal(t, engine.ReplayReport{}, f.engine.Replay(ctx), "no-op while offline")

		f.conn.Set(true)
		report := f.engine.Replay(ctx)
		assert.Equal(t, 3, report.Attempted)
		assert.Equal(t, 3, report.Succeeded)
		assert.Zero(t, report.Remaining)
		assert.Empty(t, f.ops(t))

		notes := f.engine.Notes()
		calls := f.remote.Calls()
		assert.Equal(t, engine.ReplayReport{}, f.engine.Replay(ctx))
		assert.Equal(t, notes, f.engine.Notes())
		assert.Equal(t, calls, f.remote.Calls())

		remote := f.remote.Notes()
		require.Len(t, remote, 3)
		assert.Equal(t, "renamed", remote[1].Title)
		assert.Equal(t, "X", remote[2].Title)
		assert.Equal(t, "4", notes[0].ID, "replayed create takes the server id")
	})

	t.Run("Offline Create Reconciled On Reconnect", func(t *testing.T) {
		remote := newStubRemote()
		remote.nextID = 42
		f := newFixture(t, false, remote)
		events, cancel := f.engine.Subscribe()
		defer cancel()

		n, err := f.engine.Create(ctx, core.NoteInput{Title: "X", Content: "Y"})
		require.NoError(t, err)
		notes := f.engine.Notes()
		require.Len(t, notes, 1)
		assert.True(t, core.IsLocalID(notes[0].ID))
		assert.Equal(t, "X", notes[0].Title)

		ops := f.ops(t)
		require.Len(t, ops, 1)
		assert.Equal(t, core.OpCreate, ops[0].Kind)

		stop := f.conn.OnTransition(func(online bool) {
			if online {
				f.engine.ReplayAsync(ctx)
			}
		})
		defer stop()
		f.conn.Set(true)
		f.engine.Wait()

		assert.Empty(t, f.ops(t))
		notes = f.engine.Notes()
		require.Len(t, notes, 1)
		assert.Equal(t, "42", notes[0].ID)
		assert.Equal(t, "X", notes[0].Title)
		assert.Equal(t, "Y", notes[0].Content)
		assert.Equal(t, serverTime, notes[0].CreatedAt)
		assert.Equal(t, notes, f.snapshot(t))

		f.engine.Replay(ctx)
		assert.Equal(t, []string{"create X"}, f.remote.Calls(), "no duplicate create")

		_, known := f.engine.Note(n.ID)
		assert.False(t, known, "temporary id is gone from the set")
		assert.Contains(t, drain(events), engine.EventReconcile)
	})

	t.Run("Later Operations Follow Their Create", func(t *testing.T) {
		remote := newStubRemote()
		f := newFixture(t, false, remote)

		n, err := f.engine.Create(ctx, core.NoteInput{Title: "draft"})
		require.NoError(t, err)
		f.engine.Update(ctx, n.ID, core.NotePatch{Content: ptr("more")})
		f.engine.TogglePin(ctx, n.ID)

		f.conn.Set(true)
		remote.mu.Lock()
		remote.failCreate = serverError()
		remote.mu.Unlock()

		report := f.engine.Replay(ctx)
		assert.Equal(t, 1, report.Attempted)
		assert.Equal(t, 1, report.Failed)
		assert.Equal(t, 2, report.Skipped)
		assert.Equal(t, 3, report.Remaining)
		assert.Equal(t, []string{"create draft"}, remote.Calls(), "skipped operations make no call")
		require.Len(t, f.ops(t), 3)

		var opErr *core.OpError
		require.NotEmpty(t, f.sink.Errors())
		require.ErrorAs(t, f.sink.Errors()[0], &opErr)
		assert.Equal(t, 500, core.StatusOf(opErr))

		remote.mu.Lock()
		remote.failCreate = nil
		remote.mu.Unlock()

		report = f.engine.Replay(ctx)
		assert.Equal(t, 3, report.Succeeded)
		assert.Empty(t, f.ops(t))

		stored := remote.Notes()
		require.Len(t, stored, 1)
		assert.Equal(t, "1", stored[0].ID)
		assert.Equal(t, "more", stored[0].Content)
		assert.True(t, stored[0].Pinned)

		local, ok := f.engine.Note("1")
		require.True(t, ok)
		assert.Equal(t, "more", local.Content)
		assert.True(t, local.Pinned)
	})

	t.Run("Failure Does Not Block Others", func(t *testing.T) {
		seed := numbered(2)
		remote := newStubRemote(seed...)
		f := newFixture(t, false, remote)
		require.NoError(t, f.cache.PersistSnapshot(ctx, seed))
		_, err := f.engine.Load(ctx, core.DefaultQuery())
		require.NoError(t, err)

		f.engine.Update(ctx, "1", core.NotePatch{Title: ptr("one")})
		f.engine.Delete(ctx, "2")

		remote.mu.Lock()
		remote.failUpdate = serverError()
		remote.mu.Unlock()
		f.conn.Set(true)

		report := f.engine.Replay(ctx)
		assert.Equal(t, 1, report.Succeeded)
		assert.Equal(t, 1, report.Failed)
		ops := f.ops(t)
		require.Len(t, ops, 1)
		assert.Equal(t, core.OpUpdate, ops[0].Kind)
		assert.Len(t, remote.Notes(), 1)
	})

	t.Run("Delete Of Missing Record Counts As Delivered", func(t *testing.T) {
		seed := numbered(1)
		f := newFixture(t, false, newStubRemote())
		require.NoError(t, f.cache.PersistSnapshot(ctx, seed))
		_, err := f.engine.Load(ctx, core.DefaultQuery())
		require.NoError(t, err)

		f.engine.Delete(ctx, "1")
		f.conn.Set(true)

		report := f.engine.Replay(ctx)
		assert.Equal(t, 1, report.Succeeded)
		assert.Empty(t, f.ops(t))
		assert.Empty(t, f.sink.Errors())
	})
}

func TestEngine_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Remote Failure Rolls Back And Raises", func(t *testing.T) {
		remote := newStubRemote(numbered(2)...)
		remote.failCreate = serverError()
		f := newFixture(t, true, remote)
		_, err := f.engine.Load(ctx, core.DefaultQuery())
		require.NoError(t, err)
		events, cancel := f.engine.Subscribe()
		defer cancel()

		_, err = f.engine.Create(ctx, core.NoteInput{Title: "nope"})
		require.Error(t, err)
		assert.Equal(t, 500, core.StatusOf(err))
		assert.Len(t, f.engine.Notes(), 2)
		assert.Equal(t, []engine.EventType{engine.EventCreate, engine.EventRollback}, drain(events))
		assert.Len(t, f.snapshot(t), 2)
	})

	t.Run("Enqueue Failure Is A Failed Create", func(t *testing.T) {
		cache := &faultyCache{Cache: memory.New(), enqueueErr: errQuota}
		e := engine.New(cache, newStubRemote(), core.ConnectivityFunc(func() bool { return false }))
		defer e.Close()

		_, err := e.Create(ctx, core.NoteInput{Title: "lost"})
		require.Error(t, err)
		assert.True(t, core.IsStorageError(err))
		assert.ErrorIs(t, err, errQuota)
		assert.Empty(t, e.Notes())
	})

	t.Run("Edits During Flight Reach The Server", func(t *testing.T) {
		remote := newStubRemote()
		g := newGate()
		remote.createGate = g
		f := newFixture(t, true, remote)

		type result struct {
			note core.Note
			err  error
		}
		done := make(chan result, 1)
		go func() {
			n, err := f.engine.Create(ctx, core.NoteInput{Title: "first"})
			done <- result{n, err}
		}()

		<-g.entered
		provisional := f.engine.Notes()[0]
		require.True(t, provisional.IsLocal())
		f.engine.Update(ctx, provisional.ID, core.NotePatch{Title: ptr("second")})
		require.Len(t, f.ops(t), 1, "edit on a temporary id is queued")

		close(g.release)
		res := <-done
		require.NoError(t, res.err)
		assert.Equal(t, "1", res.note.ID)
		f.engine.Wait()

		assert.Empty(t, f.ops(t))
		stored := remote.Notes()
		require.Len(t, stored, 1)
		assert.Equal(t, "second", stored[0].Title)

		local, ok := f.engine.Note("1")
		require.True(t, ok)
		assert.Equal(t, "second", local.Title, "local edit survives confirmation")
	})

	t.Run("Delete During Flight Reaches The Server", func(t *testing.T) {
		remote := newStubRemote()
		g := newGate()
		remote.createGate = g
		f := newFixture(t, true, remote)

		done := make(chan error, 1)
		go func() {
			_, err := f.engine.Create(ctx, core.NoteInput{Title: "short lived"})
			done <- err
		}()

		<-g.entered
		f.engine.Delete(ctx, f.engine.Notes()[0].ID)
		close(g.release)
		require.NoError(t, <-done)
		f.engine.Wait()

		assert.Empty(t, f.engine.Notes())
		assert.Empty(t, remote.Notes())
		assert.Empty(t, f.ops(t))
	})

	t.Run("Temporary Ids Are Unique", func(t *testing.T) {
		frozen := time.Unix(0, 0)
		f := newFixture(t, false, newStubRemote(), engine.WithClock(func() time.Time { return frozen }))

		var wg sync.WaitGroup
		for range 20 {
			wg.Go(func() {
				_, err := f.engine.Create(ctx, core.NoteInput{Title: "t"})
				assert.NoError(t, err)
			})
		}
		wg.Wait()

		ids := make(map[string]bool)
		for _, n := range f.engine.Notes() {
			ids[n.ID] = true
		}
		assert.Len(t, ids, 20)

		stamps := make(map[int64]bool)
		for _, op := range f.ops(t) {
			stamps[op.Timestamp] = true
		}
		assert.Len(t, stamps, 20, "no two operations share a timestamp")
	})
}

func TestEngine_Rollback(t *testing.T) {
	ctx := context.Background()
	seed := numbered(2)
	seed[0].UpdatedAt = ptr(time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC))
	seed[0].Pinned = true

	t.Run("Update", func(t *testing.T) {
		remote := newStubRemote(seed...)
		remote.failUpdate = serverError()
		f := newFixture(t, true, remote)
		_, err := f.engine.Load(ctx, core.DefaultQuery())
		require.NoError(t, err)

		before, _ := f.engine.Note("1")
		f.engine.Update(ctx, "1", core.NotePatch{Title: ptr("changed"), Pinned: ptr(false)})

		after, ok := f.engine.Note("1")
		require.True(t, ok)
		assert.Equal(t, before, after)
		assert.Equal(t, seed, f.engine.Notes())

		errs := f.sink.Errors()
		require.Len(t, errs, 1)
		var opErr *core.OpError
		require.ErrorAs(t, errs[0], &opErr)
		assert.Equal(t, "update", opErr.Op)
		assert.Equal(t, "1", opErr.ID)
	})

	t.Run("Delete", func(t *testing.T) {
		remote := newStubRemote(seed...)
		remote.failDelete = serverError()
		f := newFixture(t, true, remote)
		_, err := f.engine.Load(ctx, core.DefaultQuery())
		require.NoError(t, err)

		f.engine.Delete(ctx, "1")

		restored, ok := f.engine.Note("1")
		require.True(t, ok)
		assert.Equal(t, seed[0], restored)
		assert.ElementsMatch(t, seed, f.engine.Notes())
		assert.Len(t, f.sink.Errors(), 1)
	})

	t.Run("Unknown Ids Are Ignored", func(t *testing.T) {
		f := newFixture(t, true, newStubRemote())
		f.engine.Update(ctx, "missing", core.NotePatch{Title: ptr("x")})
		f.engine.TogglePin(ctx, "missing")
		f.engine.Delete(ctx, "missing")
		assert.Empty(t, f.remote.Calls())
		assert.Empty(t, f.sink.Errors())
	})

	t.Run("Enqueue Failure", func(t *testing.T) {
		cache := &faultyCache{Cache: memory.New()}
		require.NoError(t, cache.PersistSnapshot(ctx, seed))
		sink := &errorSink{}
		e := engine.New(cache, newStubRemote(), core.ConnectivityFunc(func() bool { return false }),
			engine.WithErrorHandler(sink.handle))
		defer e.Close()
		_, err := e.Load(ctx, core.DefaultQuery())
		require.NoError(t, err)

		cache.mu.Lock()
		cache.enqueueErr = errQuota
		cache.mu.Unlock()

		e.Update(ctx, "2", core.NotePatch{Title: ptr("x")})
		e.Delete(ctx, "1")
		assert.Equal(t, seed[1], mustNote(t, e, "2"))
		assert.Equal(t, seed[0], mustNote(t, e, "1"))

		errs := sink.Errors()
		require.Len(t, errs, 2)
		for _, err := range errs {
			assert.True(t, core.IsStorageError(err))
			assert.ErrorIs(t, err, errQuota)
		}
	})
}

func mustNote(t *testing.T, e *engine.Engine, id string) core.Note {
	t.Helper()
	n, ok := e.Note(id)
	require.True(t, ok, "note %s", id)
	return n
}

func TestEngine_TogglePinRollback(t *testing.T) {
	ctx := context.Background()
	remote := newStubRemote(core.Note{ID: "1", Title: "A", CreatedAt: serverTime})
	g := newGate()
	remote.updateGate = g
	remote.failUpdate = serverError()
	f := newFixture(t, true, remote)
	_, err := f.engine.Load(ctx, core.DefaultQuery())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.engine.TogglePin(ctx, "1")
	}()

	<-g.entered
	assert.True(t, mustNote(t, f.engine, "1").Pinned, "pinned before the store answers")
	loading, submitting := f.engine.Busy()
	assert.False(t, loading)
	assert.True(t, submitting)

	close(g.release)
	<-done
	assert.False(t, mustNote(t, f.engine, "1").Pinned, "rolled back after the failure")
	assert.Len(t, f.sink.Errors(), 1)
}

func TestEngine_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("Offline Page Of Filtered Snapshot", func(t *testing.T) {
		f := newFixture(t, false, newStubRemote())
		seed := numbered(37)
		require.NoError(t, f.cache.PersistSnapshot(ctx, seed))

		page, err := f.engine.Load(ctx, core.Query{Page: 2, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, seed[10:20], page.Notes)
		assert.Equal(t, 37, page.Total)
		assert.Len(t, f.engine.Notes(), 37, "the set keeps the whole snapshot")

		// "3" matches Note 03, 13, 23 and 30 to 37.
		page, err = f.engine.Load(ctx, core.Query{Page: 2, PageSize: 10, Search: "3"})
		require.NoError(t, err)
		assert.Equal(t, 11, page.Total)
		require.Len(t, page.Notes, 1)
		assert.Equal(t, "Note 37", page.Notes[0].Title)
		assert.Empty(t, f.remote.Calls())
	})

	t.Run("Online Replaces The Set", func(t *testing.T) {
		f := newFixture(t, true, newStubRemote(numbered(5)...))
		events, cancel := f.engine.Subscribe()
		defer cancel()

		page, err := f.engine.Load(ctx, core.Query{Page: 1, PageSize: 3})
		require.NoError(t, err)
		assert.Len(t, page.Notes, 3)
		assert.Equal(t, page.Notes, f.engine.Notes())
		assert.Equal(t, page.Notes, f.snapshot(t))
		assert.Equal(t, []engine.EventType{engine.EventLoaded}, drain(events))
	})

	t.Run("Online Keeps Queued Changes", func(t *testing.T) {
		remote := newStubRemote(numbered(3)...)
		f := newFixture(t, true, remote)
		_, err := f.engine.Load(ctx, core.DefaultQuery())
		require.NoError(t, err)

		f.conn.Set(false)
		draft, err := f.engine.Create(ctx, core.NoteInput{Title: "draft"})
		require.NoError(t, err)
		f.engine.Update(ctx, "2", core.NotePatch{Title: ptr("edited offline")})
		f.engine.Delete(ctx, "3")
		require.Len(t, f.ops(t), 3)

		// Back online, the list is reloaded before the queue is replayed.
		f.conn.Set(true)
		_, err = f.engine.Load(ctx, core.DefaultQuery())
		require.NoError(t, err)

		notes := f.engine.Notes()
		require.Len(t, notes, 3)
		assert.Equal(t, draft.ID, notes[0].ID)
		assert.Equal(t, "1", notes[1].ID)
		assert.Equal(t, "edited offline", notes[2].Title)
		assert.Equal(t, notes, f.snapshot(t))
		assert.Len(t, f.ops(t), 3)

		report := f.engine.Replay(ctx)
		assert.Equal(t, 3, report.Succeeded)
		n, ok := f.engine.Note("4")
		require.True(t, ok, "the replayed create finds its note")
		assert.Equal(t, "draft", n.Title)
		assert.Empty(t, f.ops(t))
	})

	t.Run("Online Failure Clears", func(t *testing.T) {
		remote := newStubRemote(numbered(3)...)
		f := newFixture(t, true, remote)
		_, err := f.engine.Load(ctx, core.DefaultQuery())
		require.NoError(t, err)
		require.Len(t, f.engine.Notes(), 3)

		remote.mu.Lock()
		remote.failList = &core.RemoteError{Status: 503, Message: "Service Unavailable"}
		remote.mu.Unlock()

		_, err = f.engine.Load(ctx, core.DefaultQuery())
		require.Error(t, err)
		assert.Equal(t, 503, core.StatusOf(err))
		assert.Empty(t, f.engine.Notes())
	})

	t.Run("Offline Storage Failure", func(t *testing.T) {
		f := newFixture(t, false, newStubRemote())
		require.NoError(t, f.cache.Close())

		_, err := f.engine.Load(ctx, core.DefaultQuery())
		require.Error(t, err)
		assert.True(t, core.IsStorageError(err))
		assert.ErrorIs(t, err, core.ErrClosed)
	})
}

func TestEngine_Concurrency(t *testing.T) {
	ctx := context.Background()
	seed := numbered(10)
	f := newFixture(t, true, newStubRemote(seed...))
	_, err := f.engine.Load(ctx, core.DefaultQuery())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, n := range seed {
		wg.Go(func() {
			f.engine.Update(ctx, n.ID, core.NotePatch{Content: ptr("edited " + n.ID)})
		})
	}
	wg.Wait()

	for _, n := range f.engine.Notes() {
		assert.Equal(t, "edited "+n.ID, n.Content)
	}
	assert.Equal(t, f.engine.Notes(), f.snapshot(t))
}

func TestEngine_Events(t *testing.T) {
	ctx := context.Background()

	t.Run("Slow Subscribers Lose Events", func(t *testing.T) {
		f := newFixture(t, false, newStubRemote(), engine.WithEventBuffer(1))
		_, cancel := f.engine.Subscribe()
		defer cancel()

		for range 3 {
			_, err := f.engine.Create(ctx, core.NoteInput{Title: "n"})
			require.NoError(t, err)
		}

		state := f.engine.State().(engine.EngineState)
		assert.Equal(t, 1, state.Subscribers)
		assert.Equal(t, 2, state.DroppedEvents)
	})

	t.Run("Close Ends Subscriptions", func(t *testing.T) {
		f := newFixture(t, false, newStubRemote())
		events, _ := f.engine.Subscribe()
		require.NoError(t, f.engine.Close())

		_, ok := <-events
		assert.False(t, ok)

		late, _ := f.engine.Subscribe()
		_, ok = <-late
		assert.False(t, ok)
	})

	t.Run("Sync Markers", func(t *testing.T) {
		f := newFixture(t, false, newStubRemote())
		_, err := f.engine.Create(ctx, core.NoteInput{Title: "x"})
		require.NoError(t, err)

		events, cancel := f.engine.Subscribe()
		defer cancel()
		f.conn.Set(true)
		f.engine.Replay(ctx)

		got := drain(events)
		require.NotEmpty(t, got)
		assert.Equal(t, engine.EventSyncStart, got[0])
		assert.Equal(t, engine.EventSyncEnd, got[len(got)-1])
	})
}

func TestEngine_State(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false, newStubRemote())

	state := f.engine.State().(engine.EngineState)
	assert.Equal(t, connectivity.StatusOffline, state.Status)
	assert.Equal(t, "cache", state.CacheType)
	assert.Nil(t, state.LastReplay)
	assert.Equal(t, "engine", f.engine.ComponentType())

	_, err := f.engine.Create(ctx, core.NoteInput{Title: "x"})
	require.NoError(t, err)
	f.conn.Set(true)
	f.engine.Replay(ctx)

	state = f.engine.State().(engine.EngineState)
	assert.Equal(t, connectivity.StatusOnline, state.Status)
	assert.Equal(t, connectivity.StatusOnline, f.engine.Status())
	assert.False(t, f.engine.Syncing())
	assert.Equal(t, 1, state.Notes)
	require.NotNil(t, state.LastReplay)
	assert.Equal(t, 1, state.LastReplay.Succeeded)
}

func TestEngine_PersistFailureIsReported(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true, newStubRemote())
	require.NoError(t, f.cache.Close())

	_, err := f.engine.Create(ctx, core.NoteInput{Title: "kept"})
	require.NoError(t, err, "storage failures never fail a mutation")
	f.engine.Wait()

	assert.Len(t, f.engine.Notes(), 1)
	errs := f.sink.Errors()
	require.NotEmpty(t, errs)
	assert.True(t, core.IsStorageError(errs[0]))
	assert.True(t, errors.Is(errs[0], core.ErrClosed))
}
