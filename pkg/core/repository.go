package core

import "context"

// LocalCache is the durable on-device store: the last known snapshot of the
// record set plus the queue of operations awaiting the remote store.
// It holds no business logic.
type LocalCache interface {
	// PersistSnapshot replaces the stored snapshot with notes. It is a total
	// replacement, never a merge. Order is preserved.
	PersistSnapshot(ctx context.Context, notes []Note) error

	// LoadSnapshot returns the last persisted snapshot, or an empty slice.
	LoadSnapshot(ctx context.Context) ([]Note, error)

	// EnqueueOperation stores op under its timestamp. An existing entry with the
	// same timestamp is overwritten.
	EnqueueOperation(ctx context.Context, op PendingOperation) error

	// ListOperations returns all pending operations by ascending timestamp.
	ListOperations(ctx context.Context) ([]PendingOperation, error)

	// RemoveOperation deletes one entry. Removing an absent key is not an error.
	RemoveOperation(ctx context.Context, timestamp int64) error

	// Close releases the underlying storage.
	Close() error
}

// RemoteStore is the CRUD endpoint holding the authoritative records.
// Every failure is returned as a *RemoteError.
type RemoteStore interface {
	List(ctx context.Context, q Query) (Page, error)
	Get(ctx context.Context, id string) (Note, error)
	Create(ctx context.Context, in NoteInput) (Note, error)
	Update(ctx context.Context, id string, patch NotePatch) (Note, error)
	Delete(ctx context.Context, id string) error
}

// Connectivity exposes the current platform connectivity.
type Connectivity interface {
	Online() bool
}

// ConnectivityFunc adapts a function to Connectivity.
type ConnectivityFunc func() bool

func (f ConnectivityFunc) Online() bool { return f() }
