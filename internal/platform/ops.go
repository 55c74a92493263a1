package platform

import (
	"context"
	"errors"

	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/engine"
)

// ErrOffline is returned by Sync when the remote store cannot be reached.
var ErrOffline = errors.New("remote store unreachable")

// Sync probes the remote store and, if it answers, replays the queue, reloads
// the record set and waits for the snapshot to be written.
func (s *Session) Sync(ctx context.Context) (engine.ReplayReport, error) {
	if s.Prober != nil {
		s.Prober.ProbeOnce(ctx)
	}
	if !s.Monitor.Online() {
		return engine.ReplayReport{}, ErrOffline
	}

	report := s.Engine.Replay(ctx)
	if _, err := s.Engine.Load(ctx, core.DefaultQuery()); err != nil {
		return report, err
	}
	s.Engine.Wait()
	return report, nil
}

// Pending returns the operations still waiting for the remote store.
func (s *Session) Pending(ctx context.Context) ([]core.PendingOperation, error) {
	ops, err := s.Cache.ListOperations(ctx)
	if err != nil {
		return nil, &core.StorageError{Op: "list operations", Err: err}
	}
	return ops, nil
}

// Find loads the full record set and returns the note with the given id,
// which may be a temporary id.
func (s *Session) Find(ctx context.Context, id string) (core.Note, error) {
	if _, err := s.Engine.Load(ctx, core.DefaultQuery()); err != nil {
		return core.Note{}, err
	}
	if n, ok := s.Engine.Note(id); ok {
		return n, nil
	}
	if s.Monitor.Online() && !core.IsLocalID(id) {
		// The note may sit beyond the first page.
		return s.Remote.Get(ctx, id)
	}
	return core.Note{}, core.ErrNotFound
}
