package facts

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

func TestSQLiteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo_index.db")
	in := sampleTables()
	require.NoError(t, WriteSQLite(path, in))

	out, err := ReadSQLite(context.Background(), path)
	require.NoError(t, err)
	assert.ElementsMatch(t, in.Assignments, out.Assignments)
	assert.ElementsMatch(t, in.CallArgs, out.CallArgs)
	assert.ElementsMatch(t, in.Returns, out.Returns)
	assert.ElementsMatch(t, in.Symbols, out.Symbols)

	s, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, NewStore(in).Skipped(), s.Skipped())
}

func TestOpenSQLiteMissingTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.db")

	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate, sqlite.OpenReadWrite)
	require.NoError(t, err)
	require.NoError(t, sqlitex.ExecuteScript(conn,
		`CREATE TABLE assignments (file TEXT, line INTEGER, target_var TEXT, source_expr TEXT, in_function TEXT);`, nil))
	require.NoError(t, conn.Close())

	_, err = OpenSQLite(context.Background(), path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingTable))
}

func TestOpenSQLiteNullColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nulls.db")
	require.NoError(t, WriteSQLite(path, Tables{}))

	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite)
	require.NoError(t, err)
	require.NoError(t, sqlitex.ExecuteScript(conn, `
		INSERT INTO assignments VALUES ('a.py', NULL, 'x', 'input()', 'main');
		INSERT INTO assignments VALUES ('a.py', 3, 'y', NULL, 'main');
		INSERT INTO assignments VALUES ('a.py', 4, 'z', 'input()', 'main');
		INSERT INTO function_call_args VALUES ('a.py', 5, 'main', 'run', NULL, 'z', NULL);
	`, nil))
	require.NoError(t, conn.Close())

	s, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, s.Assignments(), 1)
	assert.Equal(t, Skipped{Assignments: 2, CallArgs: 1}, s.Skipped())
}

func TestOpenSQLiteMissingFile(t *testing.T) {
	_, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "absent.db"))
	assert.Error(t, err)
}
