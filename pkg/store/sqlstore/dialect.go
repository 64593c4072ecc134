package sqlstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/block/dumpimport/pkg/dbconn"
	"github.com/block/dumpimport/pkg/store"
)

const (
	mysqlErrDupEntry          = 1062
	mysqlErrNoReferencedRow   = 1216
	mysqlErrNoReferencedRow2  = 1452
	mysqlErrLockWaitTimeout   = 1205
	mysqlErrDeadlock          = 1213
	postgresUniqueViolation   = "23505"
	postgresForeignKey        = "23503"
	postgresSerialization     = "40001"
	postgresDeadlockDetected  = "40P01"
	postgresAdminShutdown     = "57P01"
	postgresCannotConnectNow  = "57P03"
	postgresConnectionFailure = "08006"
)

// Dialect is the SQL flavor of a target database.
type Dialect interface {
	Name() string
	// Placeholder returns the bind parameter for the n-th argument, from 1.
	Placeholder(n int) string
	Quote(ident string) string
	// Returning reports whether INSERT ... RETURNING is used to read the
	// assigned id instead of LastInsertId.
	Returning() bool
	// Classify wraps constraint violations in store.ErrDuplicate or
	// store.ErrForeignKey.
	Classify(err error) error
	// Retryable reports whether a failed read can be run again.
	Retryable(err error) bool
	// RetryableWrite reports whether a failed INSERT certainly did not
	// take effect. A lost connection does not qualify: the row may have
	// been committed before the connection dropped.
	RetryableWrite(err error) bool
}

// NewDialect returns the dialect for a database/sql driver name.
func NewDialect(driver string) (Dialect, error) {
	switch driver {
	case dbconn.DriverMySQL:
		return MySQL{}, nil
	case dbconn.DriverPostgres:
		return Postgres{}, nil
	case dbconn.DriverSQLite:
		return SQLite{}, nil
	}
	return nil, fmt.Errorf("unsupported driver %q", driver)
}

func classified(err, sentinel error) error {
	return fmt.Errorf("%w: %w", sentinel, err)
}

type MySQL struct{}

var _ Dialect = MySQL{}

func (MySQL) Name() string           { return dbconn.DriverMySQL }
func (MySQL) Placeholder(int) string { return "?" }
func (MySQL) Returning() bool        { return false }

func (MySQL) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (MySQL) Classify(err error) error {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return err
	}
	switch myErr.Number {
	case mysqlErrDupEntry:
		return classified(err, store.ErrDuplicate)
	case mysqlErrNoReferencedRow, mysqlErrNoReferencedRow2:
		return classified(err, store.ErrForeignKey)
	}
	return err
}

func (MySQL) Retryable(err error) bool {
	return dbconn.CanRetryError(err)
}

func (MySQL) RetryableWrite(err error) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	return myErr.Number == mysqlErrDeadlock || myErr.Number == mysqlErrLockWaitTimeout
}

type Postgres struct{}

var _ Dialect = Postgres{}

func (Postgres) Name() string             { return dbconn.DriverPostgres }
func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }
func (Postgres) Returning() bool          { return true }

func (Postgres) Quote(ident string) string {
	return pq.QuoteIdentifier(ident)
}

func (Postgres) Classify(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case postgresUniqueViolation:
		return classified(err, store.ErrDuplicate)
	case postgresForeignKey:
		return classified(err, store.ErrForeignKey)
	}
	return err
}

func (Postgres) Retryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case postgresSerialization, postgresDeadlockDetected, postgresAdminShutdown,
		postgresCannotConnectNow, postgresConnectionFailure:
		return true
	}
	return false
}

func (Postgres) RetryableWrite(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == postgresSerialization || pqErr.Code == postgresDeadlockDetected
}

type SQLite struct{}

var _ Dialect = SQLite{}

func (SQLite) Name() string           { return dbconn.DriverSQLite }
func (SQLite) Placeholder(int) string { return "?" }
func (SQLite) Returning() bool        { return false }

func (SQLite) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (SQLite) Classify(err error) error {
	var liteErr *sqlite.Error
	if !errors.As(err, &liteErr) {
		return err
	}
	switch liteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return classified(err, store.ErrDuplicate)
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return classified(err, store.ErrForeignKey)
	}
	return err
}

func (SQLite) Retryable(err error) bool {
	var liteErr *sqlite.Error
	if !errors.As(err, &liteErr) {
		return false
	}
	// extended codes carry the primary code in the low byte
	switch liteErr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// RetryableWrite is Retryable: a busy or locked database rejects the
// statement before it runs.
func (d SQLite) RetryableWrite(err error) bool {
	return d.Retryable(err)
}
