// Package record maps tuples read from a legacy dump to the records of
// the target schema: products, orders and payments.
package record

import (
	"fmt"
	"strings"
)

// Table is an entity of the target schema.
type Table int

const (
	TableProduct Table = iota
	TableOrder
	TablePayment
	// TableUser and TableTrainer are never imported. They are looked up to
	// keep foreign keys that point at pre-existing rows.
	TableUser
	TableTrainer
)

// ImportOrder is the dependency order in which tables are persisted:
// orders reference products, payments reference orders.
var ImportOrder = []Table{TableProduct, TableOrder, TablePayment}

func (t Table) String() string {
	switch t {
	case TableProduct:
		return "Product"
	case TableOrder:
		return "Order"
	case TablePayment:
		return "Payment"
	case TableUser:
		return "User"
	case TableTrainer:
		return "Trainer"
	}
	return "unknown"
}

// ParseTable returns the importable table a dump table name refers to.
// Unsupported tables return false.
func ParseTable(name string) (Table, bool) {
	switch strings.ToLower(name) {
	case "products", "product":
		return TableProduct, true
	case "orders", "order":
		return TableOrder, true
	case "payments", "payment":
		return TablePayment, true
	}
	return 0, false
}

// DumpTableNames returns the dump table names accepted by ParseTable.
func DumpTableNames() []string {
	return []string{"products", "product", "orders", "order", "payments", "payment"}
}

// Record is a mapped Product, Order or Payment.
type Record interface {
	Table() Table
	// SourceID is the primary key the row had in the dump.
	SourceID() int64
	// NaturalKey identifies the record independently of its id.
	NaturalKey() string
	// Fields returns the target columns in a fixed order. The id is omitted
	// when it is zero, leaving it to the store to assign one.
	Fields() []Field
}

// Field is one target column and its value. Nullable values are nil
// pointers rather than typed zero values.
type Field struct {
	Name  string
	Value any
}

// MapError is a row that could not be mapped to a record.
type MapError struct {
	Table    Table
	SourceID int64 // 0 when the id itself is missing
	Field    string
	Reason   string
	Err      error
}

func (e *MapError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	if e.SourceID == 0 {
		return fmt.Sprintf("%s: field %s: %s", e.Table, e.Field, msg)
	}
	return fmt.Sprintf("%s %d: field %s: %s", e.Table, e.SourceID, e.Field, msg)
}

func (e *MapError) Unwrap() error {
	return e.Err
}

// idField prepends the id to fields unless it is zero.
func idField(id int64, fields ...Field) []Field {
	if id == 0 {
		return fields
	}
	return append([]Field{{Name: "id", Value: id}}, fields...)
}
