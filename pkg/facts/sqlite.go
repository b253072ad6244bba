package facts

import (
	"context"
	"errors"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// ErrMissingTable is returned when the fact store lacks one of the tables
// the engine reads.
var ErrMissingTable = errors.New("fact store table missing")

var requiredTables = []string{"assignments", "function_call_args", "function_returns", "symbols"}

// OpenSQLite reads the fact tables of the SQLite database at path and
// returns them indexed. The database is opened read-only and is never
// modified. Cancelling ctx interrupts a running query.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	t, err := ReadSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	return NewStore(t), nil
}

// ReadSQLite reads the raw fact tables of the SQLite database at path.
func ReadSQLite(ctx context.Context, path string) (Tables, error) {
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadOnly)
	if err != nil {
		return Tables{}, fmt.Errorf("failed to open fact store %s: %w", path, err)
	}
	defer func() { _ = conn.Close() }()
	conn.SetInterrupt(ctx.Done())

	if err := checkTables(conn); err != nil {
		return Tables{}, err
	}

	var t Tables
	err = sqlitex.ExecuteTransient(conn,
		`SELECT file, line, target_var, source_expr, in_function FROM assignments`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				t.Assignments = append(t.Assignments, Assignment{
					File:     stmt.ColumnText(0),
					Line:     columnInt(stmt, 1),
					Target:   stmt.ColumnText(2),
					Expr:     stmt.ColumnText(3),
					Function: stmt.ColumnText(4),
				})
				return nil
			},
		})
	if err != nil {
		return Tables{}, fmt.Errorf("failed to read assignments: %w", err)
	}

	err = sqlitex.ExecuteTransient(conn,
		`SELECT file, line, caller_function, callee_function, argument_index, argument_expr, param_name
		 FROM function_call_args`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				t.CallArgs = append(t.CallArgs, CallArg{
					File:   stmt.ColumnText(0),
					Line:   columnInt(stmt, 1),
					Caller: stmt.ColumnText(2),
					Callee: stmt.ColumnText(3),
					Index:  columnInt(stmt, 4),
					Expr:   stmt.ColumnText(5),
					Param:  stmt.ColumnText(6),
				})
				return nil
			},
		})
	if err != nil {
		return Tables{}, fmt.Errorf("failed to read function_call_args: %w", err)
	}

	err = sqlitex.ExecuteTransient(conn,
		`SELECT file, line, function_name, return_expr FROM function_returns`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				t.Returns = append(t.Returns, Return{
					File:     stmt.ColumnText(0),
					Line:     columnInt(stmt, 1),
					Function: stmt.ColumnText(2),
					Expr:     stmt.ColumnText(3),
				})
				return nil
			},
		})
	if err != nil {
		return Tables{}, fmt.Errorf("failed to read function_returns: %w", err)
	}

	err = sqlitex.ExecuteTransient(conn,
		`SELECT path, name, type, line FROM symbols`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				t.Symbols = append(t.Symbols, Symbol{
					Path: stmt.ColumnText(0),
					Name: stmt.ColumnText(1),
					Type: stmt.ColumnText(2),
					Line: columnInt(stmt, 3),
				})
				return nil
			},
		})
	if err != nil {
		return Tables{}, fmt.Errorf("failed to read symbols: %w", err)
	}

	return t, nil
}

// columnInt reads an integer column; NULL reads as -1 so the row fails
// validation instead of pointing at line 0 or argument 0.
func columnInt(stmt *sqlite.Stmt, col int) int {
	if stmt.ColumnType(col) == sqlite.TypeNull {
		return -1
	}
	return int(stmt.ColumnInt64(col))
}

func checkTables(conn *sqlite.Conn) error {
	present := make(map[string]bool)
	err := sqlitex.ExecuteTransient(conn,
		`SELECT name FROM sqlite_master WHERE type = 'table'`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				present[stmt.ColumnText(0)] = true
				return nil
			},
		})
	if err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}
	for _, name := range requiredTables {
		if !present[name] {
			return fmt.Errorf("%w: %s", ErrMissingTable, name)
		}
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS assignments (
	file TEXT, line INTEGER, target_var TEXT, source_expr TEXT, in_function TEXT
);
CREATE TABLE IF NOT EXISTS function_call_args (
	file TEXT, line INTEGER, caller_function TEXT, callee_function TEXT,
	argument_index INTEGER, argument_expr TEXT, param_name TEXT
);
CREATE TABLE IF NOT EXISTS function_returns (
	file TEXT, line INTEGER, function_name TEXT, return_expr TEXT
);
CREATE TABLE IF NOT EXISTS symbols (
	path TEXT, name TEXT, type TEXT, line INTEGER
);
`

// WriteSQLite creates (or extends) a fact store at path holding t. It is the
// fixture writer used by tests and by `gtq init --sample`.
func WriteSQLite(path string, t Tables) (err error) {
	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate, sqlite.OpenReadWrite)
	if err != nil {
		return fmt.Errorf("failed to create fact store %s: %w", path, err)
	}
	defer func() { _ = conn.Close() }()

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer endFn(&err)

	for _, a := range t.Assignments {
		if err := sqlitex.ExecuteTransient(conn,
			`INSERT INTO assignments (file, line, target_var, source_expr, in_function) VALUES (?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{a.File, a.Line, a.Target, a.Expr, a.Function}}); err != nil {
			return fmt.Errorf("failed to insert assignment: %w", err)
		}
	}
	for _, c := range t.CallArgs {
		if err := sqlitex.ExecuteTransient(conn,
			`INSERT INTO function_call_args (file, line, caller_function, callee_function, argument_index, argument_expr, param_name)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{c.File, c.Line, c.Caller, c.Callee, c.Index, c.Expr, c.Param}}); err != nil {
			return fmt.Errorf("failed to insert call argument: %w", err)
		}
	}
	for _, r := range t.Returns {
		if err := sqlitex.ExecuteTransient(conn,
			`INSERT INTO function_returns (file, line, function_name, return_expr) VALUES (?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{r.File, r.Line, r.Function, r.Expr}}); err != nil {
			return fmt.Errorf("failed to insert return: %w", err)
		}
	}
	for _, s := range t.Symbols {
		if err := sqlitex.ExecuteTransient(conn,
			`INSERT INTO symbols (path, name, type, line) VALUES (?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{s.Path, s.Name, s.Type, s.Line}}); err != nil {
			return fmt.Errorf("failed to insert symbol: %w", err)
		}
	}
	return nil
}
