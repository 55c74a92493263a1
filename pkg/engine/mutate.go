package engine

import (
	"context"

	"github.com/aretw0/notesync/pkg/core"
)

// Create adds a note. A provisional note with a temporary id is prepended
// immediately.
//
// Online, it is swapped for the note the store returns. If the store rejects
// it, the provisional note is removed and the error returned.
//
// Offline, a create operation is queued and the provisional note returned; it
// keeps its temporary id until Replay confirms it. Failing to queue counts as a
// failed create.
func (e *Engine) Create(ctx context.Context, in core.NoteInput) (core.Note, error) {
	e.begin(&e.submitting)
	defer e.end(&e.submitting)

	provisional := core.Note{
		ID:        e.opts.newID(),
		Title:     in.Title,
		Content:   in.Content,
		Pinned:    in.Pinned,
		CreatedAt: e.now(),
	}

	e.mu.Lock()
	e.prependLocked(provisional)
	e.mu.Unlock()
	e.emit(EventCreate, provisional.ID)

	// The snapshot reflects the set after the attempt, whatever its outcome.
	defer e.persist()

	if !e.conn.Online() {
		if err := e.enqueue(ctx, core.OpCreate, provisional); err != nil {
			e.rollbackCreate(provisional.ID)
			return core.Note{}, err
		}
		return provisional, nil
	}

	created, err := e.remote.Create(ctx, in)
	if err != nil {
		e.rollbackCreate(provisional.ID)
		e.opts.logger.Warn("create failed", "error", err)
		return core.Note{}, err
	}

	e.mu.Lock()
	waiting := e.waiting[provisional.ID]
	delete(e.waiting, provisional.ID)
	current, present := e.removeLocked(provisional.ID)
	if present {
		confirmed := created
		if waiting {
			confirmed = adopt(current, created)
		}
		e.prependLocked(confirmed)
	}
	e.aliases[provisional.ID] = created.ID
	e.mu.Unlock()
	e.publishReconcile(provisional.ID, created.ID)

	// Edits made while the create was in flight were queued under the
	// temporary id. Point them at the server id and send them.
	if waiting && e.rewriteQueued(ctx, provisional.ID, created.ID) > 0 {
		e.ReplayAsync(context.WithoutCancel(ctx))
	}
	if !present {
		e.opts.logger.Debug("provisional note deleted before confirmation", "id", provisional.ID)
	}
	return created, nil
}

func (e *Engine) rollbackCreate(id string) {
	e.mu.Lock()
	e.removeLocked(id)
	e.mu.Unlock()
	e.emit(EventRollback, id)
}

// Update merges patch into the note with the given id. Unknown ids are ignored.
// A failed remote update restores the note exactly as it was and is reported
// through the error handler, never returned.
func (e *Engine) Update(ctx context.Context, id string, patch core.NotePatch) {
	e.begin(&e.submitting)
	defer e.end(&e.submitting)

	e.mu.Lock()
	i := e.indexLocked(id)
	if i < 0 {
		e.mu.Unlock()
		return
	}
	undo := e.notes[i].Clone()
	updated := patch.Apply(undo)
	e.notes[i] = updated.Clone()
	e.mu.Unlock()
	e.emit(EventModify, id)

	defer e.persist()

	if e.queueBound(id) {
		if err := e.enqueue(ctx, core.OpUpdate, updated); err != nil {
			e.rollbackUpdate(undo)
			e.report(&core.OpError{Op: "update", ID: id, Err: err})
		}
		return
	}

	server, err := e.remote.Update(ctx, id, patch)
	if err != nil {
		e.rollbackUpdate(undo)
		e.report(&core.OpError{Op: "update", ID: id, Err: err})
		return
	}

	e.mu.Lock()
	e.replaceLocked(id, server)
	e.mu.Unlock()
	e.emit(EventReconcile, id)
}

func (e *Engine) rollbackUpdate(undo core.Note) {
	e.mu.Lock()
	e.replaceLocked(undo.ID, undo)
	e.mu.Unlock()
	e.emit(EventRollback, undo.ID)
}

// TogglePin flips the pinned flag of a note with the same contract as Update.
func (e *Engine) TogglePin(ctx context.Context, id string) {
	n, ok := e.Note(id)
	if !ok {
		return
	}
	pinned := !n.Pinned
	e.Update(ctx, id, core.NotePatch{Pinned: &pinned})
}

// Delete removes the note with the given id. Unknown ids are ignored. A failed
// remote delete puts the note back at the end of the set and is reported
// through the error handler, never returned.
func (e *Engine) Delete(ctx context.Context, id string) {
	e.begin(&e.submitting)
	defer e.end(&e.submitting)

	e.mu.Lock()
	removed, ok := e.removeLocked(id)
	e.mu.Unlock()
	if !ok {
		return
	}
	e.emit(EventDelete, id)

	defer e.persist()

	if e.queueBound(id) {
		if err := e.enqueue(ctx, core.OpDelete, removed); err != nil {
			e.rollbackDelete(removed)
			e.report(&core.OpError{Op: "delete", ID: id, Err: err})
		}
		return
	}

	if err := e.remote.Delete(ctx, id); err != nil {
		e.rollbackDelete(removed)
		e.report(&core.OpError{Op: "delete", ID: id, Err: err})
	}
}

func (e *Engine) rollbackDelete(n core.Note) {
	e.mu.Lock()
	if e.indexLocked(n.ID) < 0 {
		e.notes = append(e.notes, n.Clone())
	}
	e.mu.Unlock()
	e.emit(EventRollback, n.ID)
}

// queueBound reports whether a mutation on id must go through the queue: when
// offline, and for notes whose create has not reached the store yet.
func (e *Engine) queueBound(id string) bool {
	return !e.conn.Online() || core.IsLocalID(id)
}
