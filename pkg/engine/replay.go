package engine

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/notesync/pkg/core"
)

// ReplayReport summarizes one Replay run.
type ReplayReport struct {
	Attempted int       `json:"attempted"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Remaining int       `json:"remaining"`
	Finished  time.Time `json:"finished"`
}

// Replay sends the queued operations to the remote store, oldest first, one at
// a time. Each success is removed from the queue; each failure is reported and
// kept for the next run without stopping the others. Delivery is at least once.
//
// A replayed create reconciles its temporary id: the note in the set takes the
// server id (keeping its local fields) and queued operations on the temporary
// id are rewritten in place. Operations on a temporary id whose create has not
// succeeded yet are skipped without a network call.
//
// Replay is a no-op while offline, runs one at a time and never returns an
// error.
func (e *Engine) Replay(ctx context.Context) ReplayReport {
	if !e.conn.Online() {
		return ReplayReport{}
	}

	e.replayMu.Lock()
	defer e.replayMu.Unlock()

	ops, err := e.cache.ListOperations(ctx)
	if err != nil {
		e.report(&core.StorageError{Op: "list operations", Err: err})
		return ReplayReport{}
	}
	if len(ops) == 0 {
		return ReplayReport{}
	}

	e.syncing.Store(true)
	e.emit(EventSyncStart, "")
	e.opts.logger.Info("replaying pending operations", "count", len(ops))

	var report ReplayReport
	reconciled := false
	for _, op := range ops {
		e.mu.Lock()
		op.Note.ID = e.resolveLocked(op.Note.ID)
		e.mu.Unlock()

		if op.Kind != core.OpCreate && core.IsLocalID(op.Note.ID) {
			report.Skipped++
			report.Remaining++
			e.opts.logger.Debug("operation waits for its create", "op", op.String())
			continue
		}

		report.Attempted++
		created, err := e.dispatch(ctx, op)
		if err != nil {
			report.Failed++
			report.Remaining++
			e.report(&core.OpError{Op: "replay " + string(op.Kind), ID: op.Note.ID, Err: err})
			continue
		}
		report.Succeeded++

		if err := e.cache.RemoveOperation(ctx, op.Timestamp); err != nil {
			// The store has it; the queue entry will be sent again.
			e.report(&core.StorageError{Op: "remove operation", Err: err})
		}

		if op.Kind == core.OpCreate && core.IsLocalID(op.Note.ID) {
			if e.reconcileCreate(ctx, op.Note.ID, created) {
				reconciled = true
			}
		}
	}

	report.Finished = e.now()
	e.mu.Lock()
	r := report
	e.lastReplay = &r
	e.mu.Unlock()

	if reconciled {
		e.persist()
	}
	e.syncing.Store(false)
	e.emit(EventSyncEnd, "")
	e.opts.logger.Info("replay finished",
		"succeeded", report.Succeeded, "failed", report.Failed, "skipped", report.Skipped)
	return report
}

// ReplayAsync runs Replay in the background. Close waits for it.
func (e *Engine) ReplayAsync(ctx context.Context) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.bg.Add(1)
	e.mu.Unlock()

	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer e.bg.Done()
		e.Replay(ctx)
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		e.report(fmt.Errorf("replay panic: %w", err))
	}))
}

// dispatch performs the remote effect of one operation.
func (e *Engine) dispatch(ctx context.Context, op core.PendingOperation) (core.Note, error) {
	switch op.Kind {
	case core.OpCreate:
		return e.remote.Create(ctx, core.InputOf(op.Note))
	case core.OpUpdate:
		return e.remote.Update(ctx, op.Note.ID, core.PatchOf(op.Note))
	case core.OpDelete:
		err := e.remote.Delete(ctx, op.Note.ID)
		if core.StatusOf(err) == http.StatusNotFound {
			// Already gone, possibly by an earlier delivery of this operation.
			return core.Note{}, nil
		}
		return core.Note{}, err
	default:
		return core.Note{}, fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

// reconcileCreate gives the note created from localID its server identity and
// reports whether the set held it. Local field values win: later queued edits
// are already applied to them.
func (e *Engine) reconcileCreate(ctx context.Context, localID string, created core.Note) bool {
	e.mu.Lock()
	e.aliases[localID] = created.ID
	delete(e.waiting, localID)
	i := e.indexLocked(localID)
	if i >= 0 {
		e.notes[i] = adopt(e.notes[i], created)
	}
	e.mu.Unlock()

	e.publishReconcile(localID, created.ID)
	e.rewriteQueued(ctx, localID, created.ID)
	return i >= 0
}

// adopt gives local the identity and timestamps the store assigned.
func adopt(local, server core.Note) core.Note {
	n := local.Clone()
	n.ID = server.ID
	if !server.CreatedAt.IsZero() {
		n.CreatedAt = server.CreatedAt
	}
	if server.UpdatedAt != nil {
		t := *server.UpdatedAt
		n.UpdatedAt = &t
	}
	return n
}

func (e *Engine) publishReconcile(prevID, id string) {
	e.events.publish(Event{Type: EventReconcile, ID: id, PrevID: prevID, Timestamp: e.opts.now().UnixNano()})
}

// rewriteQueued points queued operations on localID at serverID. Entries keep
// their timestamp, so the rewrite overwrites them in place.
func (e *Engine) rewriteQueued(ctx context.Context, localID, serverID string) int {
	ops, err := e.cache.ListOperations(ctx)
	if err != nil {
		e.report(&core.StorageError{Op: "list operations", Err: err})
		return 0
	}

	rewritten := 0
	for _, op := range ops {
		if op.Note.ID != localID {
			continue
		}
		op.Note.ID = serverID
		if err := e.cache.EnqueueOperation(ctx, op); err != nil {
			e.report(&core.StorageError{Op: "rewrite operation", Err: err})
			continue
		}
		rewritten++
	}
	if rewritten > 0 {
		e.opts.logger.Debug("queued operations rewritten", "from", localID, "to", serverID, "count", rewritten)
	}
	return rewritten
}
