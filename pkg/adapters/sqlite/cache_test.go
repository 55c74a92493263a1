package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notesync/pkg/adapters/cachetest"
	"github.com/aretw0/notesync/pkg/adapters/sqlite"
	"github.com/aretw0/notesync/pkg/core"
)

func open(t *testing.T, dir string) core.LocalCache {
	t.Helper()
	c, err := sqlite.Open(context.Background(), dir)
	require.NoError(t, err)
	return c
}

func TestConformance(t *testing.T) {
	cachetest.Run(t, open, true)
}

func TestSchemaVersion(t *testing.T) {
	dir := t.TempDir()
	c, err := sqlite.Open(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "notes-app-db.sqlite"), c.Path())

	state := c.State().(sqlite.CacheState)
	assert.Equal(t, 1, state.Version)
	assert.Empty(t, state.Error)
	require.NoError(t, c.Close())

	t.Run("Rejects Newer Schema", func(t *testing.T) {
		db, err := sql.Open("sqlite3", "file:"+c.Path())
		require.NoError(t, err)
		_, err = db.Exec("PRAGMA user_version=2")
		require.NoError(t, err)
		require.NoError(t, db.Close())

		_, err = sqlite.Open(context.Background(), dir)
		assert.ErrorContains(t, err, "newer than supported")
	})
}

func TestClosed(t *testing.T) {
	c, err := sqlite.Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "second close is a no-op")

	_, err = c.ListOperations(context.Background())
	assert.ErrorIs(t, err, core.ErrClosed)
	assert.True(t, c.State().(sqlite.CacheState).Closed)
}

func TestUndecodableOperation(t *testing.T) {
	cachetest.RunUndecodable(t, func(t *testing.T, dir string, report func(error)) core.LocalCache {
		c, err := sqlite.Open(context.Background(), dir, sqlite.WithErrorHandler(report))
		require.NoError(t, err)
		return c
	}, func(t *testing.T, dir string, ts int64) {
		db, err := sql.Open("sqlite3", "file:"+filepath.Join(dir, sqlite.DatabaseName+".sqlite"))
		require.NoError(t, err)
		defer db.Close()
		_, err = db.Exec("INSERT INTO pending_operations (timestamp, type, note) VALUES (?, 'update', '{')", ts)
		require.NoError(t, err)
	})
}
