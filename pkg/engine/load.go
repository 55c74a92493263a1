package engine

import (
	"context"

	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/view"
)

// Load fetches one page of notes and makes it the record set.
//
// Online, the page comes from the remote store. Queued operations the store has
// not accepted yet are applied on top of it, so a reload never drops or reverts
// a pending local change. On failure the set is cleared and the error returned:
// an empty list is preferred over stale data.
//
// Offline, the full snapshot is read from the cache, filtered by title and
// sliced to the requested page; Total is the filtered count. The set becomes
// the full snapshot so that later persists never drop notes outside the page.
//
// Concurrent loads are not deduplicated; the last to finish wins.
func (e *Engine) Load(ctx context.Context, q core.Query) (core.Page, error) {
	q = q.Normalize()
	e.begin(&e.loading)
	defer e.end(&e.loading)

	if e.conn.Online() {
		return e.loadRemote(ctx, q)
	}
	return e.loadLocal(ctx, q)
}

func (e *Engine) loadRemote(ctx context.Context, q core.Query) (core.Page, error) {
	page, err := e.remote.List(ctx, q)
	if err != nil {
		e.clear()
		e.opts.logger.Warn("load failed", "error", err)
		return core.Page{}, err
	}

	ops, err := e.cache.ListOperations(ctx)
	if err != nil {
		e.report(&core.StorageError{Op: "list operations", Err: err})
	}

	e.mu.Lock()
	e.notes = core.CloneNotes(page.Notes)
	if e.notes == nil {
		e.notes = []core.Note{}
	}
	e.overlayLocked(ops)
	e.mu.Unlock()

	e.opts.logger.Debug("loaded from remote", "count", len(page.Notes), "total", page.Total, "pending", len(ops))
	e.emit(EventLoaded, "")
	e.persist()
	return page, nil
}

func (e *Engine) loadLocal(ctx context.Context, q core.Query) (core.Page, error) {
	snapshot, err := e.cache.LoadSnapshot(ctx)
	if err != nil {
		e.clear()
		return core.Page{}, &core.StorageError{Op: "load", Err: err}
	}

	e.mu.Lock()
	e.notes = core.CloneNotes(snapshot)
	if e.notes == nil {
		e.notes = []core.Note{}
	}
	e.mu.Unlock()

	filtered := view.Filter(snapshot, q.Search)
	page := core.Page{
		Notes: core.CloneNotes(view.Paginate(filtered, q.Page, q.PageSize)),
		Total: len(filtered),
	}

	e.opts.logger.Debug("loaded from cache", "snapshot", len(snapshot), "total", page.Total)
	e.emit(EventLoaded, "")
	return page, nil
}

// overlayLocked replays queued operations onto the set, oldest first. Creates
// are prepended, updates replace notes present in the set and deletes remove
// them.
func (e *Engine) overlayLocked(ops []core.PendingOperation) {
	for _, op := range ops {
		n := op.Note.Clone()
		n.ID = e.resolveLocked(n.ID)
		switch op.Kind {
		case core.OpCreate:
			if e.indexLocked(n.ID) < 0 {
				e.prependLocked(n)
			}
		case core.OpUpdate:
			e.replaceLocked(n.ID, n)
		case core.OpDelete:
			e.removeLocked(n.ID)
		}
	}
}

func (e *Engine) clear() {
	e.mu.Lock()
	e.notes = []core.Note{}
	e.mu.Unlock()
	e.emit(EventCleared, "")
}
