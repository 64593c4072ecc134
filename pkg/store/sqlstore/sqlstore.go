// Package sqlstore implements store.Store on a database/sql target:
// MySQL, PostgreSQL or SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/block/dumpimport/pkg/dbconn"
	"github.com/block/dumpimport/pkg/record"
	"github.com/block/dumpimport/pkg/store"
)

const idField = "id"

type Store struct {
	db      *sql.DB
	dialect Dialect
	config  *dbconn.DBConfig
	logger  *slog.Logger
}

var _ store.Store = (*Store)(nil)

// New wraps an open database. The caller keeps ownership of db.
func New(db *sql.DB, dialect Dialect, config *dbconn.DBConfig, logger *slog.Logger) *Store {
	if config == nil {
		config = dbconn.NewDBConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, dialect: dialect, config: config, logger: logger}
}

// Open connects to the target database with dbconn.New. Close releases it.
func Open(driver, dsn string, config *dbconn.DBConfig, logger *slog.Logger) (*Store, error) {
	dialect, err := NewDialect(driver)
	if err != nil {
		return nil, err
	}
	db, err := dbconn.New(driver, dsn, config)
	if err != nil {
		return nil, err
	}
	return New(db, dialect, config, logger), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts rec. When rec carries an id it is inserted as-is and
// returned; otherwise the id assigned by the database is returned.
func (s *Store) Create(ctx context.Context, rec record.Record) (int64, error) {
	query, args, explicitID, err := s.insertQuery(rec)
	if err != nil {
		return 0, err
	}
	var id int64
	err = dbconn.Retry(ctx, s.config, s.dialect.RetryableWrite, func(ctx context.Context) error {
		if s.dialect.Returning() {
			return s.db.QueryRowContext(ctx, query, args...).Scan(&id)
		}
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		if explicitID != 0 {
			id = explicitID
			return nil
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", rec.Table(), s.dialect.Classify(err))
	}
	s.logger.Debug("inserted row", "table", rec.Table().String(), "id", id, "sourceID", rec.SourceID())
	return id, nil
}

func (s *Store) insertQuery(rec record.Record) (string, []any, int64, error) {
	var (
		cols, placeholders []string
		args               []any
		explicitID         int64
	)
	for _, f := range rec.Fields() {
		if !store.ValidIdentifier(f.Name) {
			return "", nil, 0, fmt.Errorf("%s: invalid field name %q", rec.Table(), f.Name)
		}
		v := bindValue(f.Value)
		if f.Name == idField {
			explicitID, _ = v.(int64)
		}
		cols = append(cols, s.dialect.Quote(f.Name))
		args = append(args, v)
		placeholders = append(placeholders, s.dialect.Placeholder(len(args)))
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.dialect.Quote(rec.Table().String()),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
	)
	if s.dialect.Returning() {
		query += " RETURNING " + s.dialect.Quote(idField)
	}
	return query, args, explicitID, nil
}

// FindUnique looks a row up by a field with a unique index. A nil value
// never matches.
func (s *Store) FindUnique(ctx context.Context, table record.Table, field string, value any) (*store.Ref, error) {
	if !store.IsUnique(table, field) {
		return nil, fmt.Errorf("%s.%s: %w", table, field, store.ErrNotUnique)
	}
	if bindValue(value) == nil {
		return nil, nil
	}
	return s.find(ctx, table, store.Criteria{field: value})
}

// FindFirst returns the row with the lowest id matching every criterion.
func (s *Store) FindFirst(ctx context.Context, table record.Table, criteria store.Criteria) (*store.Ref, error) {
	return s.find(ctx, table, criteria)
}

func (s *Store) find(ctx context.Context, table record.Table, criteria store.Criteria) (*store.Ref, error) {
	query, args, err := s.selectQuery(table, criteria)
	if err != nil {
		return nil, err
	}
	var id int64
	err = dbconn.Retry(ctx, s.config, s.dialect.Retryable, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, query, args...).Scan(&id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", table, err)
	}
	return &store.Ref{Table: table, ID: id}, nil
}

func (s *Store) selectQuery(table record.Table, criteria store.Criteria) (string, []any, error) {
	fields := slices.Sorted(maps.Keys(criteria))
	var (
		conds []string
		args  []any
	)
	for _, field := range fields {
		if !store.ValidIdentifier(field) {
			return "", nil, fmt.Errorf("%s: invalid field name %q", table, field)
		}
		v := bindValue(criteria[field])
		if v == nil {
			conds = append(conds, s.dialect.Quote(field)+" IS NULL")
			continue
		}
		args = append(args, v)
		conds = append(conds, s.dialect.Quote(field)+" = "+s.dialect.Placeholder(len(args)))
	}
	id := s.dialect.Quote(idField)
	query := fmt.Sprintf("SELECT %s FROM %s", id, s.dialect.Quote(table.String()))
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY " + id + " LIMIT 1"
	return query, args, nil
}

// bindValue converts a field value to a driver argument. Decimals are
// bound as their exact string so no driver sees a float.
func bindValue(v any) any {
	v = store.Normalize(v)
	if d, ok := v.(decimal.Decimal); ok {
		return d.String()
	}
	return v
}
