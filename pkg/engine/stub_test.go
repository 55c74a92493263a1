package engine_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aretw0/notesync/pkg/adapters/memory"
	"github.com/aretw0/notesync/pkg/connectivity"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/engine"
	"github.com/aretw0/notesync/pkg/view"
)

var serverTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// stubRemote is an in-process RemoteStore. Failures are injected per method
// and gates hold a call until the test releases it.
type stubRemote struct {
	mu     sync.Mutex
	notes  []core.Note
	nextID int
	calls  []string

	failCreate error
	failUpdate error
	failDelete error
	failList   error

	createGate *gate
	updateGate *gate
}

func newStubRemote(seed ...core.Note) *stubRemote {
	return &stubRemote{notes: core.CloneNotes(seed), nextID: len(seed) + 1}
}

// gate blocks a call until released and records that it was entered.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gate) pass() {
	if g == nil {
		return
	}
	g.entered <- struct{}{}
	<-g.release
}

func (s *stubRemote) record(call string) {
	s.calls = append(s.calls, call)
}

func (s *stubRemote) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

func (s *stubRemote) Notes() []core.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.CloneNotes(s.notes)
}

func (s *stubRemote) find(id string) int {
	return slices.IndexFunc(s.notes, func(n core.Note) bool { return n.ID == id })
}

func (s *stubRemote) List(ctx context.Context, q core.Query) (core.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("list")
	if s.failList != nil {
		return core.Page{}, s.failList
	}
	filtered := view.Filter(s.notes, q.Search)
	return core.Page{
		Notes: core.CloneNotes(view.Paginate(filtered, q.Page, q.PageSize)),
		Total: len(filtered),
	}, nil
}

func (s *stubRemote) Get(ctx context.Context, id string) (core.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("get " + id)
	if i := s.find(id); i >= 0 {
		return s.notes[i].Clone(), nil
	}
	return core.Note{}, notFound()
}

func (s *stubRemote) Create(ctx context.Context, in core.NoteInput) (core.Note, error) {
	s.mu.Lock()
	g := s.createGate
	s.mu.Unlock()
	g.pass()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("create " + in.Title)
	if s.failCreate != nil {
		return core.Note{}, s.failCreate
	}
	n := core.Note{
		ID:        strconv.Itoa(s.nextID),
		Title:     in.Title,
		Content:   in.Content,
		Pinned:    in.Pinned,
		CreatedAt: serverTime,
	}
	s.nextID++
	s.notes = append(s.notes, n)
	return n.Clone(), nil
}

func (s *stubRemote) Update(ctx context.Context, id string, patch core.NotePatch) (core.Note, error) {
	s.mu.Lock()
	g := s.updateGate
	s.mu.Unlock()
	g.pass()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("update " + id)
	if s.failUpdate != nil {
		return core.Note{}, s.failUpdate
	}
	i := s.find(id)
	if i < 0 {
		return core.Note{}, notFound()
	}
	n := patch.Apply(s.notes[i])
	at := serverTime
	n.UpdatedAt = &at
	s.notes[i] = n
	return n.Clone(), nil
}

func (s *stubRemote) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("delete " + id)
	if s.failDelete != nil {
		return s.failDelete
	}
	i := s.find(id)
	if i < 0 {
		return notFound()
	}
	s.notes = slices.Delete(s.notes, i, i+1)
	return nil
}

func notFound() error {
	return &core.RemoteError{Status: http.StatusNotFound, Message: "Not found"}
}

func serverError() error {
	return &core.RemoteError{Status: http.StatusInternalServerError, Message: "Internal Server Error"}
}

// faultyCache fails enqueues on demand.
type faultyCache struct {
	*memory.Cache
	mu         sync.Mutex
	enqueueErr error
}

func (c *faultyCache) EnqueueOperation(ctx context.Context, op core.PendingOperation) error {
	c.mu.Lock()
	err := c.enqueueErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.Cache.EnqueueOperation(ctx, op)
}

var errQuota = errors.New("quota exceeded")

// errorSink collects reported failures.
type errorSink struct {
	mu   sync.Mutex
	errs []error
}

func (s *errorSink) handle(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *errorSink) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.errs)
}

type fixture struct {
	engine *engine.Engine
	cache  *memory.Cache
	remote *stubRemote
	conn   *connectivity.Monitor
	sink   *errorSink
}

func newFixture(t testing.TB, online bool, remote *stubRemote, opts ...engine.Option) *fixture {
	t.Helper()
	f := build(online, remote, opts...)
	t.Cleanup(f.close)
	return f
}

// build wires a fixture without registering cleanup, for property checks that
// create one per run.
func build(online bool, remote *stubRemote, opts ...engine.Option) *fixture {
	f := &fixture{
		cache:  memory.New(),
		remote: remote,
		conn:   connectivity.NewMonitor(online),
		sink:   &errorSink{},
	}
	opts = append([]engine.Option{engine.WithErrorHandler(f.sink.handle)}, opts...)
	f.engine = engine.New(f.cache, f.remote, f.conn, opts...)
	return f
}

func (f *fixture) close() {
	_ = f.engine.Close()
	_ = f.cache.Close()
}

func (f *fixture) ops(t require.TestingT) []core.PendingOperation {
	ops, err := f.cache.ListOperations(context.Background())
	require.NoError(t, err)
	return ops
}

func (f *fixture) snapshot(t require.TestingT) []core.Note {
	f.engine.Wait()
	notes, err := f.cache.LoadSnapshot(context.Background())
	require.NoError(t, err)
	return notes
}

func numbered(n int) []core.Note {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]core.Note, n)
	for i := range out {
		out[i] = core.Note{
			ID:        strconv.Itoa(i + 1),
			Title:     fmt.Sprintf("Note %02d", i+1),
			Content:   "body",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func ptr[T any](v T) *T { return &v }
