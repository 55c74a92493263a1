// Package remotetest provides an in-memory record store speaking the same
// protocol as MockAPI, with fault injection for tests and local development.
package remotetest

import (
	"cmp"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/view"
)

// Server is an in-memory notes store.
type Server struct {
	mu       sync.Mutex
	notes    []core.Note
	nextID   int
	failures []fault
	latency  time.Duration
	calls    map[string]int
	now      func() time.Time
	logger   *slog.Logger
	router   *mux.Router
}

type fault struct {
	method string
	status int
}

// NewServer creates an empty store.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		nextID: 1,
		calls:  make(map[string]int),
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}

	r := mux.NewRouter()
	r.Use(s.intercept)
	r.HandleFunc("/notes", s.list).Methods(http.MethodGet)
	r.HandleFunc("/notes", s.create).Methods(http.MethodPost)
	r.HandleFunc("/notes/{id}", s.get).Methods(http.MethodGet)
	r.HandleFunc("/notes/{id}", s.update).Methods(http.MethodPut)
	r.HandleFunc("/notes/{id}", s.remove).Methods(http.MethodDelete)
	s.router = r

	return s
}

// Start serves the store on a loopback listener and stops it when the test ends.
func Start(t interface {
	Helper()
	Cleanup(func())
}) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(nil)
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return s, ts
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Seed replaces the stored notes. Numeric ids advance the id counter.
func (s *Server) Seed(notes ...core.Note) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = core.CloneNotes(notes)
	for _, n := range notes {
		if id, err := strconv.Atoi(n.ID); err == nil && id >= s.nextID {
			s.nextID = id + 1
		}
	}
}

// Notes returns a copy of the stored notes.
func (s *Server) Notes() []core.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.CloneNotes(s.notes)
}

// FailNext makes the next request with the given method ("" for any) answer
// with status instead of being served.
func (s *Server) FailNext(method string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, fault{method: method, status: status})
}

// SetLatency delays every response.
func (s *Server) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// Calls returns how many requests were received for method.
func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.Method]++
		latency := s.latency
		status := 0
		for i, f := range s.failures {
			if f.method == "" || f.method == r.Method {
				status = f.status
				s.failures = slices.Delete(s.failures, i, i+1)
				break
			}
		}
		s.mu.Unlock()

		if latency > 0 {
			select {
			case <-time.After(latency):
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			s.logger.Debug("injected failure", "method", r.Method, "path", r.URL.Path, "status", status)
			http.Error(w, fmt.Sprintf("injected failure %d", status), status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	search := q.Get("title")

	s.mu.Lock()
	notes := view.Filter(s.notes, search)
	s.mu.Unlock()

	if search != "" && len(notes) == 0 {
		http.Error(w, `"Not found"`, http.StatusNotFound)
		return
	}

	field := core.SortField(cmp.Or(q.Get("sortBy"), string(core.SortByCreatedAt)))
	desc := q.Get("order") == string(core.Desc)
	slices.SortStableFunc(notes, func(a, b core.Note) int {
		var c int
		switch field {
		case core.SortByTitle:
			c = strings.Compare(a.Title, b.Title)
		case core.SortByID:
			c = cmp.Compare(atoi(a.ID), atoi(b.ID))
		default:
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		if desc {
			return -c
		}
		return c
	})

	if page > 0 && limit > 0 {
		notes = view.Paginate(notes, page, limit)
	}
	writeJSON(w, http.StatusOK, notes)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		writeError(w, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.notes[i])
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var in core.NoteInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := core.Note{
		ID:        strconv.Itoa(s.nextID),
		Title:     in.Title,
		Content:   in.Content,
		Pinned:    in.Pinned,
		CreatedAt: s.now(),
	}
	s.nextID++
	s.notes = append(s.notes, n)
	writeJSON(w, http.StatusCreated, n)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var patch core.NotePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		writeError(w, http.StatusNotFound)
		return
	}
	n := patch.Apply(s.notes[i])
	now := s.now()
	n.UpdatedAt = &now
	s.notes[i] = n
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		writeError(w, http.StatusNotFound)
		return
	}
	n := s.notes[i]
	s.notes = slices.Delete(s.notes, i, i+1)
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) indexOf(id string) int {
	return slices.IndexFunc(s.notes, func(n core.Note) bool { return n.ID == id })
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`"Not found"`))
}
