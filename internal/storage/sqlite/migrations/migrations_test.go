package migrations_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/slok/comicsub/internal/log"
	"github.com/slok/comicsub/internal/storage/sqlite/migrations"
)

func tableExists(t *testing.T, db *sql.DB) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'datasets'`).Scan(&n)
	require.NoError(t, err)
	return n == 1
}

func TestSchema(t *testing.T) {
	require := require.New(t)

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(err)
	defer db.Close()

	s, err := migrations.NewSchema(db, log.Noop)
	require.NoError(err)

	v, err := s.Apply()
	require.NoError(err)
	assert.Equal(t, uint(1), v)
	assert.True(t, tableExists(t, db))

	// Applying again is a noop.
	v, err = s.Apply()
	require.NoError(err)
	assert.Equal(t, uint(1), v)

	require.NoError(s.Drop())
	assert.False(t, tableExists(t, db))
}

func TestNewSchemaRequiresDB(t *testing.T) {
	_, err := migrations.NewSchema(nil, log.Noop)
	assert.Error(t, err)
}
