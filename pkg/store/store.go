// Package store is the data-access layer the importer writes through.
// The importer never issues SQL itself: it creates records and looks them
// up by a unique field or by a set of criteria.
package store

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/block/dumpimport/pkg/record"
)

var (
	// ErrDuplicate is a violated primary key or unique constraint.
	ErrDuplicate = errors.New("duplicate key")
	// ErrForeignKey is a reference to a row that does not exist.
	ErrForeignKey = errors.New("foreign key constraint fails")
	// ErrNotUnique is returned by FindUnique for fields without a unique index.
	ErrNotUnique = errors.New("field is not unique")

	identRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Criteria is a conjunction of field equalities. A nil value matches NULL.
type Criteria map[string]any

// Ref points at a stored row.
type Ref struct {
	Table record.Table
	ID    int64
}

// Store is implemented by the in-memory store and by sqlstore. Find
// methods return nil, nil when nothing matches.
type Store interface {
	// Create inserts a record and returns its id. The id of the record is
	// used when it is non-zero, otherwise the store assigns one.
	Create(ctx context.Context, rec record.Record) (int64, error)
	FindUnique(ctx context.Context, table record.Table, field string, value any) (*Ref, error)
	FindFirst(ctx context.Context, table record.Table, criteria Criteria) (*Ref, error)
}

var uniqueFields = map[record.Table][]string{
	record.TableProduct: {"id", "sku"},
	record.TableOrder:   {"id", "orderNumber"},
	record.TablePayment: {"id", "transactionId"},
	record.TableUser:    {"id", "email"},
	record.TableTrainer: {"id"},
}

// IsUnique reports whether field has a unique index in table.
func IsUnique(table record.Table, field string) bool {
	for _, f := range uniqueFields[table] {
		if f == field {
			return true
		}
	}
	return false
}

// foreignKeys maps the reference fields of a table to the referenced table.
var foreignKeys = map[record.Table]map[string]record.Table{
	record.TableProduct: {"trainerId": record.TableTrainer},
	record.TableOrder:   {"userId": record.TableUser, "trainerId": record.TableTrainer, "productId": record.TableProduct},
	record.TablePayment: {"orderId": record.TableOrder, "userId": record.TableUser},
}

// ValidIdentifier reports whether name can be used as a field name.
func ValidIdentifier(name string) bool {
	return identRegex.MatchString(name)
}

// Normalize converts a field value to the form stores compare and bind:
// nil pointers become nil, other pointers are dereferenced, times are UTC
// and integers are int64.
func Normalize(v any) any {
	switch x := v.(type) {
	case *int64:
		if x == nil {
			return nil
		}
		return *x
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC()
	case *decimal.Decimal:
		if x == nil {
			return nil
		}
		return *x
	case time.Time:
		return x.UTC()
	case int:
		return int64(x)
	case int32:
		return int64(x)
	}
	return v
}

// Equal compares two normalized values. Times and decimals compare by
// value rather than by representation.
func Equal(a, b any) bool {
	switch x := a.(type) {
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case decimal.Decimal:
		y, ok := b.(decimal.Decimal)
		return ok && x.Equal(y)
	}
	return a == b
}
