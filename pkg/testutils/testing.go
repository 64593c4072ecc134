// Package testutils contains some common utilities used exclusively
// by the test suite.
package testutils

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite" // sqlite driver
)

var (
	//go:embed schema/sqlite.sql
	sqliteSchema string
	//go:embed schema/mysql.sql
	mysqlSchema string
)

// DSN returns the MySQL DSN of the integration test server, from the
// MYSQL_DSN environment variable. It is empty when no server is configured.
func DSN() string {
	return os.Getenv("MYSQL_DSN")
}

// RequireMySQL skips the test unless MYSQL_DSN is set, and returns it.
func RequireMySQL(t *testing.T) string {
	t.Helper()
	dsn := DSN()
	if dsn == "" {
		t.Skip("MYSQL_DSN is not set")
	}
	return dsn
}

// DSNForDatabase returns a DSN for a specific database name
func DSNForDatabase(t *testing.T, dbName string) string {
	t.Helper()
	cfg, err := mysql.ParseDSN(RequireMySQL(t))
	require.NoError(t, err)
	cfg.DBName = dbName
	return cfg.FormatDSN()
}

// CreateUniqueTestDatabase creates a database with the target schema for
// a test, and drops it when the test ends.
func CreateUniqueTestDatabase(t *testing.T) string {
	t.Helper()
	dbName := fmt.Sprintf("t_%s_%d",
		strings.ReplaceAll(strings.ToLower(t.Name()), "/", "_"),
		os.Getpid())
	if len(dbName) > 64 {
		dbName = dbName[len(dbName)-64:]
	}
	rootDSN := DSNForDatabase(t, "")

	db, err := sql.Open("mysql", rootDSN)
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	_, err = db.ExecContext(t.Context(), "DROP DATABASE IF EXISTS `"+dbName+"`")
	require.NoError(t, err)
	_, err = db.ExecContext(t.Context(), "CREATE DATABASE `"+dbName+"`")
	require.NoError(t, err)

	t.Cleanup(func() {
		db, err := sql.Open("mysql", rootDSN)
		require.NoError(t, err)
		defer func() {
			_ = db.Close()
		}()
		_, err = db.ExecContext(context.Background(), "DROP DATABASE IF EXISTS `"+dbName+"`")
		require.NoError(t, err)
	})

	RunSQLInDatabase(t, dbName, mysqlSchema)
	return dbName
}

// RunSQLInDatabase runs ';'-separated SQL in a specific database
func RunSQLInDatabase(t *testing.T, dbName, stmts string) {
	t.Helper()
	db, err := sql.Open("mysql", DSNForDatabase(t, dbName))
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	RunSQL(t, db, stmts)
}

// RunSQL runs ';'-separated SQL statements. Statements must not contain
// semicolons in literals.
func RunSQL(t *testing.T, db *sql.DB, stmts string) {
	t.Helper()
	for stmt := range strings.SplitSeq(stmts, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err := db.ExecContext(t.Context(), stmt)
		require.NoError(t, err, stmt)
	}
}

// SQLiteDSN returns the DSN of a fresh SQLite database file in a
// temporary directory.
func SQLiteDSN(t *testing.T) string {
	t.Helper()
	return "file:" + filepath.Join(t.TempDir(), "target.db")
}

// NewSQLite opens a fresh SQLite database with the target schema and
// foreign keys enforced. It is closed when the test ends.
func NewSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", SQLiteDSN(t)+"?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = db.Close()
	})
	RunSQL(t, db, sqliteSchema)
	return db
}
