package duck

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/marcboeker/go-duckdb/v2"
)

// quoteSQLIdentifier safely quotes a SQL identifier to prevent injection
func quoteSQLIdentifier(identifier string) string {
	// DuckDB uses double quotes for identifiers, escape any existing quotes
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

type DBEngine struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string // used to delete the file if not in-memory
}

// NewDuckDBEngine opens an in-memory database, or a file-backed one when
// dbPath is set.
func NewDuckDBEngine(dbPath string) (*DBEngine, error) {
	dsn := ":memory:"
	if dbPath != "" {
		dsn = fmt.Sprintf("%s?access_mode=read_write", dbPath)
		os.Remove(dbPath)
	}

	connector, err := duckdb.NewConnector(dsn, func(execer driver.ExecerContext) error {
		bootQueries := []string{
			`SET schema='main'`,
			`SET search_path='main'`,
		}
		for _, q := range bootQueries {
			if _, err := execer.ExecContext(context.Background(), q, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	return &DBEngine{
		db:     sql.OpenDB(connector),
		dbPath: dbPath,
	}, nil
}

// Exec runs statements in order, stopping at the first failure.
func (e *DBEngine) Exec(ctx context.Context, statements ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, stmt := range statements {
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing %q: %w", stmt, err)
		}
	}
	return nil
}

// FloatRows runs a SELECT and returns every row cast to float64, one value
// per requested column.
func (e *DBEngine) FloatRows(ctx context.Context, query string, columns []string) ([][]float64, error) {
	casts := make([]string, len(columns))
	for i, c := range columns {
		casts[i] = fmt.Sprintf("CAST(%s AS DOUBLE)", quoteSQLIdentifier(c))
	}
	wrapped := fmt.Sprintf("SELECT %s FROM (%s) AS src", strings.Join(casts, ", "), query)

	rows, err := e.db.QueryContext(ctx, wrapped)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]float64
	for rows.Next() {
		row := make([]float64, len(columns))
		dest := make([]any, len(columns))
		for i := range row {
			dest[i] = &row[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning row %d: %w", len(out), err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Cleanup closes the database and removes the physical file (if not in-memory)
func (e *DBEngine) Cleanup() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_ = e.db.Close()
	if e.dbPath != "" {
		if err := os.Remove(e.dbPath); err != nil {
			return fmt.Errorf("failed to delete DuckDB file: %w", err)
		}
	}
	log.Printf("[DuckDB] Engine closed")
	return nil
}
