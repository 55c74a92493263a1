// Package notesync is the composition root of an offline-first note sync
// engine.
//
// Notes live in a remote record store (a MockAPI-style REST endpoint). The
// engine keeps an in-memory record set, applies every mutation to it at once
// and then confirms it with the store. While the store is unreachable,
// mutations go to a durable queue in the local cache and are replayed, oldest
// first, when connectivity returns. Temporary ids of notes created offline are
// reconciled with the ids the store assigns.
//
// Features:
//
//   - Optimistic mutations with exact rollback on failure.
//   - Durable queue and snapshot in SQLite, bbolt, plain JSON files or memory.
//   - Connectivity probing with exponential backoff and replay on reconnect.
//   - Event subscriptions for UIs and a queue watcher for multi-process use.
//
// Usage:
//
//	s, err := notesync.New(ctx,
//		notesync.WithBaseURL("https://example.mockapi.io/api/v1"),
//		notesync.WithAdapter("sqlite"),
//	)
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	page, err := s.Engine.Load(ctx, notesync.DefaultQuery())
//	note, err := s.Engine.Create(ctx, notesync.NoteInput{Title: "Groceries"})
package notesync
