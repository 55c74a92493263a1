package remote_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/remote"
	"github.com/aretw0/notesync/pkg/remote/remotetest"
)

func ptr[T any](v T) *T { return &v }

func seed(srv *remotetest.Server, n int) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	notes := make([]core.Note, 0, n)
	for i := 1; i <= n; i++ {
		notes = append(notes, core.Note{
			ID:        strconv.Itoa(i),
			Title:     "note " + strconv.Itoa(i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	srv.Seed(notes...)
}

func TestClientList(t *testing.T) {
	srv, ts := remotetest.Start(t)
	seed(srv, 25)
	c := remote.New(ts.URL)
	ctx := context.Background()

	t.Run("Full Page Estimates One More", func(t *testing.T) {
		page, err := c.List(ctx, core.Query{Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Len(t, page.Notes, 10)
		assert.Equal(t, 11, page.Total)
		assert.Equal(t, "25", page.Notes[0].ID, "default order is newest first")
	})

	t.Run("Short Page Is Exact", func(t *testing.T) {
		page, err := c.List(ctx, core.Query{Page: 3, PageSize: 10, SortBy: core.SortByCreatedAt, Order: core.Asc})
		require.NoError(t, err)
		assert.Len(t, page.Notes, 5)
		assert.Equal(t, 25, page.Total)
		assert.Equal(t, "21", page.Notes[0].ID)
	})

	t.Run("Search Without Matches Is Empty", func(t *testing.T) {
		page, err := c.List(ctx, core.Query{Search: "nothing like this"})
		require.NoError(t, err)
		assert.Empty(t, page.Notes)
		assert.Zero(t, page.Total)
	})

	t.Run("Search Filters Titles", func(t *testing.T) {
		page, err := c.List(ctx, core.Query{Search: "note 2", PageSize: 50})
		require.NoError(t, err)
		// note 2, note 20..25
		assert.Len(t, page.Notes, 7)
	})
}

func TestClientListUsesTotalHeader(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Header().Set("X-Total-Count", "42")
		w.Write([]byte(`[{"id": 7, "title": "numeric", "createdAt": 1700000000, "updatedAt": null}]`))
	}))
	defer ts.Close()

	page, err := remote.New(ts.URL).List(context.Background(), core.Query{Page: 2, PageSize: 5})
	require.NoError(t, err)
	assert.Equal(t, 42, page.Total)
	require.Len(t, page.Notes, 1)
	assert.Equal(t, "7", page.Notes[0].ID)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), page.Notes[0].CreatedAt)
	assert.Nil(t, page.Notes[0].UpdatedAt)
}

func TestClientMutations(t *testing.T) {
	srv, ts := remotetest.Start(t)
	c := remote.New(ts.URL)
	ctx := context.Background()

	created, err := c.Create(ctx, core.NoteInput{Title: "first", Content: "body"})
	require.NoError(t, err)
	assert.Equal(t, "1", created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	updated, err := c.Update(ctx, created.ID, core.NotePatch{Pinned: ptr(true)})
	require.NoError(t, err)
	assert.True(t, updated.Pinned)
	assert.Equal(t, "first", updated.Title, "fields outside the patch are kept")
	require.NotNil(t, updated.UpdatedAt)

	got, err := c.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.ID, got.ID)
	assert.True(t, got.Pinned)

	require.NoError(t, c.Delete(ctx, created.ID))
	assert.Empty(t, srv.Notes())

	err = c.Delete(ctx, created.ID)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, core.StatusOf(err))
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("Server Error Keeps Status And Body", func(t *testing.T) {
		srv, ts := remotetest.Start(t)
		srv.FailNext(http.MethodPost, http.StatusInternalServerError)

		_, err := remote.New(ts.URL).Create(ctx, core.NoteInput{Title: "x"})
		var re *core.RemoteError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, http.StatusInternalServerError, re.Status)
		assert.Contains(t, re.Message, "injected failure")
		assert.Empty(t, srv.Notes())
	})

	t.Run("Empty Body Uses Status Text", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer ts.Close()

		_, err := remote.New(ts.URL).Get(ctx, "1")
		var re *core.RemoteError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, "API error: Bad Gateway", re.Message)
	})

	t.Run("Timeout", func(t *testing.T) {
		srv, ts := remotetest.Start(t)
		srv.SetLatency(500 * time.Millisecond)

		_, err := remote.New(ts.URL, remote.WithTimeout(30*time.Millisecond)).List(ctx, core.Query{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrTimeout))
		assert.Equal(t, http.StatusRequestTimeout, core.StatusOf(err))
	})

	t.Run("Unreachable", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		url := ts.URL
		ts.Close()

		c := remote.New(url)
		_, err := c.Get(ctx, "1")
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrUnreachable))
		assert.Zero(t, core.StatusOf(err))
		assert.Error(t, c.Ping(ctx))
	})

	t.Run("Ping Accepts Any Answer", func(t *testing.T) {
		srv, ts := remotetest.Start(t)
		srv.FailNext("", http.StatusServiceUnavailable)
		assert.NoError(t, remote.New(ts.URL).Ping(ctx))
	})
}

func TestMockAPIURL(t *testing.T) {
	assert.Equal(t, "https://abc123.mockapi.io", remote.MockAPIURL("abc123"))
	assert.Equal(t, "http://x", remote.New("http://x/").BaseURL())
}
