// Package sqldb implements the repository interfaces over database/sql.
//
// Two drivers are supported:
//   - "sqlite"   → modernc.org/sqlite, pure Go, the default. Use ":memory:"
//     in tests or a file path such as "data/harena.db".
//   - "postgres" → github.com/lib/pq, for deployments that already run a
//     PostgreSQL server.
//
// Queries are written once with "?" placeholders. For PostgreSQL they are
// rewritten to "$1, $2, ..." by rebind before being sent.
//
// TRANSACTIONS:
// A *DB either wraps the pool (tx == nil) or a single *sql.Tx. Both
// satisfy the small querier interface, so every repository method is
// written once and works inside or outside a transaction. InTx hands the
// callback a transactional *DB and commits or rolls back around it.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mundorum/harena/internal/apperror"
	"github.com/mundorum/harena/internal/repository"
)

// Dialect selects the driver and its SQL quirks.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// querier is the subset of *sql.DB and *sql.Tx the repositories use.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB implements repository.Store.
type DB struct {
	conn    *sql.DB
	q       querier
	tx      *sql.Tx
	dialect Dialect
}

var _ repository.Store = (*DB)(nil)

// New opens a SQLite database at dbPath and runs migrations.
//
//   - "data/harena.db" → file-based database (persistent)
//   - ":memory:"       → in-memory database, private to this *DB
func New(dbPath string) (*DB, error) {
	return Open(DialectSQLite, dbPath)
}

// Open connects with the given dialect, verifies the connection and runs
// migrations.
func Open(dialect Dialect, dsn string) (*DB, error) {
	driver, dsn, err := driverFor(dialect, dsn)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqldb: opening database: %w", err)
	}

	// Every connection to ":memory:" gets its own empty database, so the
	// pool must never grow past one.
	if dialect == DialectSQLite && strings.HasPrefix(dsn, ":memory:") {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqldb: pinging database: %w", err)
	}

	if dialect == DialectSQLite {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqldb: setting WAL mode: %w", err)
		}
		if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqldb: enabling foreign keys: %w", err)
		}
	}

	db := NewFromConn(conn, dialect)
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqldb: running migrations: %w", err)
	}

	return db, nil
}

// NewFromConn wraps an already-open pool without running migrations.
// Tests use it with go-sqlmock.
func NewFromConn(conn *sql.DB, dialect Dialect) *DB {
	return &DB{conn: conn, q: conn, dialect: dialect}
}

func driverFor(dialect Dialect, dsn string) (string, string, error) {
	switch dialect {
	case DialectSQLite, "":
		// foreign_keys is a per-connection pragma; putting it in the DSN
		// applies it to every connection the pool opens.
		if !strings.HasPrefix(dsn, ":memory:") && !strings.Contains(dsn, "?") {
			dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
		}
		return "sqlite", dsn, nil
	case DialectPostgres:
		return "postgres", dsn, nil
	default:
		return "", "", fmt.Errorf("sqldb: unknown dialect %q", dialect)
	}
}

// Close closes the connection pool. It is a no-op on a transactional DB.
func (db *DB) Close() error {
	if db.tx != nil {
		return nil
	}
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// InTx implements repository.Store.
func (db *DB) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if db.tx != nil {
		return fn(db)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqldb: beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&DB{conn: db.conn, q: tx, tx: tx, dialect: db.dialect}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqldb: committing transaction: %w", err)
	}
	return nil
}

func (db *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.q.ExecContext(ctx, db.rebind(query), args...)
}

func (db *DB) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.q.QueryContext(ctx, db.rebind(query), args...)
}

func (db *DB) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return db.q.QueryRowContext(ctx, db.rebind(query), args...)
}

// rebind rewrites "?" placeholders to "$n" for PostgreSQL. None of the
// queries in this package contain a literal "?" inside a string.
func (db *DB) rebind(query string) string {
	if db.dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure from either driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// notFoundOr maps sql.ErrNoRows to apperror.NotFound and wraps anything
// else with context.
func notFoundOr(err error, resource, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound(resource, id)
	}
	return fmt.Errorf("sqldb: getting %s %s: %w", resource, id, err)
}

// nullable turns sql.NullString into the *string the models use.
func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
