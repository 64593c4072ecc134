package store

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/block/dumpimport/pkg/record"
)

type row map[string]any

// Memory is a Store held in memory. It enforces the unique and foreign key
// constraints of the target schema, so an importer run against it fails
// the same way it would against a database. It backs --dry-run and tests.
type Memory struct {
	sync.Mutex
	rows   map[record.Table][]row
	nextID map[record.Table]int64

	// FailCreate, when set, is consulted before every insert. A non-nil
	// error is returned from Create as-is.
	FailCreate func(rec record.Record) error
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		rows:   make(map[record.Table][]row),
		nextID: make(map[record.Table]int64),
	}
}

// Seed adds a row without checking constraints. It is used for rows that
// exist before the import, such as users and trainers.
func (m *Memory) Seed(table record.Table, id int64, fields map[string]any) {
	m.Lock()
	defer m.Unlock()
	r := row{"id": id}
	for k, v := range fields {
		r[k] = Normalize(v)
	}
	m.rows[table] = append(m.rows[table], r)
	m.nextID[table] = max(m.nextID[table], id)
}

func (m *Memory) Create(ctx context.Context, rec record.Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if m.FailCreate != nil {
		if err := m.FailCreate(rec); err != nil {
			return 0, err
		}
	}
	table := rec.Table()
	r := make(row)
	for _, f := range rec.Fields() {
		r[f.Name] = Normalize(f.Value)
	}

	m.Lock()
	defer m.Unlock()
	if _, ok := r["id"]; !ok {
		r["id"] = m.nextID[table] + 1
	}
	id, ok := r["id"].(int64)
	if !ok {
		return 0, fmt.Errorf("%s: id is %T, not int64", table, r["id"])
	}
	for _, field := range uniqueFields[table] {
		v, ok := r[field]
		if !ok || v == nil {
			continue
		}
		if m.find(table, Criteria{field: v}) != nil {
			return 0, fmt.Errorf("%s.%s = %v: %w", table, field, v, ErrDuplicate)
		}
	}
	for field, ref := range foreignKeys[table] {
		v, ok := r[field]
		if !ok || v == nil {
			continue
		}
		if m.find(ref, Criteria{"id": v}) == nil {
			return 0, fmt.Errorf("%s.%s references missing %s %v: %w", table, field, ref, v, ErrForeignKey)
		}
	}
	m.rows[table] = append(m.rows[table], r)
	m.nextID[table] = max(m.nextID[table], id)
	return id, nil
}

func (m *Memory) FindUnique(ctx context.Context, table record.Table, field string, value any) (*Ref, error) {
	if !IsUnique(table, field) {
		return nil, fmt.Errorf("%s.%s: %w", table, field, ErrNotUnique)
	}
	if Normalize(value) == nil {
		return nil, nil
	}
	return m.FindFirst(ctx, table, Criteria{field: value})
}

func (m *Memory) FindFirst(ctx context.Context, table record.Table, criteria Criteria) (*Ref, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.Lock()
	defer m.Unlock()
	return m.find(table, criteria), nil
}

// find returns the first row matching criteria. The caller holds the lock.
func (m *Memory) find(table record.Table, criteria Criteria) *Ref {
	for _, r := range m.rows[table] {
		if matches(r, criteria) {
			return &Ref{Table: table, ID: r["id"].(int64)}
		}
	}
	return nil
}

func matches(r row, criteria Criteria) bool {
	for field, want := range criteria {
		if !Equal(r[field], Normalize(want)) {
			return false
		}
	}
	return true
}

// Count returns the number of rows in table.
func (m *Memory) Count(table record.Table) int {
	m.Lock()
	defer m.Unlock()
	return len(m.rows[table])
}

// Rows returns a copy of the rows of table, in insertion order.
func (m *Memory) Rows(table record.Table) []map[string]any {
	m.Lock()
	defer m.Unlock()
	out := make([]map[string]any, len(m.rows[table]))
	for i, r := range m.rows[table] {
		out[i] = maps.Clone(r)
	}
	return out
}
