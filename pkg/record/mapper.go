package record

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/block/dumpimport/pkg/dump"
)

const (
	DefaultCurrency = "EUR"
	DefaultStatus   = "pending"
)

// Legacy product type codes and their display categories.
var categories = map[string]string{
	"program":      "Training Program",
	"ticket":       "Event Ticket",
	"subscription": "Subscription",
}

// Payment gateways and the payment method they imply.
var paymentMethods = map[string]string{
	"stripe":   "card",
	"swedbank": "bank_transfer",
	"montonio": "bank_transfer",
}

// NormalizeCategory maps a legacy product type code to its display
// category. Unknown codes are returned unchanged.
func NormalizeCategory(code string) string {
	if c, ok := categories[strings.ToLower(strings.TrimSpace(code))]; ok {
		return c
	}
	return code
}

// NormalizePaymentMethod maps a gateway name to a payment method. Unknown
// gateways are returned unchanged.
func NormalizePaymentMethod(gateway string) string {
	if m, ok := paymentMethods[strings.ToLower(strings.TrimSpace(gateway))]; ok {
		return m
	}
	return gateway
}

// SKU is the stock keeping unit derived for products that have none.
func SKU(id int64) string {
	return "SKU-" + strconv.FormatInt(id, 10)
}

// OrderNumber is the order number derived from a dump order id. Payments
// find their order through it.
func OrderNumber(id int64) string {
	return "ORDER-" + strconv.FormatInt(id, 10)
}

// Mapper maps one dump row to a record.
type Mapper interface {
	Map(row Row) (Record, error)
}

// Clock returns the time used for rows without a creation timestamp.
type Clock func() time.Time

// GetMapper returns the mapper for table. now may be nil, in which case
// time.Now is used.
func GetMapper(table Table, now Clock) (Mapper, error) {
	if now == nil {
		now = time.Now
	}
	switch table {
	case TableProduct:
		return &ProductMapper{Now: now}, nil
	case TableOrder:
		return &OrderMapper{Now: now}, nil
	case TablePayment:
		return &PaymentMapper{Now: now}, nil
	}
	return nil, fmt.Errorf("no mapper for table %s", table)
}

// Map maps a tuple of a statement into table.
func Map(table Table, columns dump.ColumnList, tuple dump.Tuple, now Clock) (Record, error) {
	m, err := GetMapper(table, now)
	if err != nil {
		return nil, err
	}
	row, err := NewRow(columns, tuple)
	if err != nil {
		return nil, &MapError{Table: table, Field: "*", Reason: "malformed row", Err: err}
	}
	return m.Map(row)
}

// fieldReader accumulates the first coercion error of a row, so that each
// mapper can read all of its fields before checking.
type fieldReader struct {
	row   Row
	table Table
	id    int64
	err   *MapError
}

func (f *fieldReader) fail(field, reason string, err error) {
	if f.err == nil {
		f.err = &MapError{Table: f.table, SourceID: f.id, Field: field, Reason: reason, Err: err}
	}
}

// readID reads the mandatory primary key.
func (f *fieldReader) readID() bool {
	id, name, err := f.row.Int("id")
	switch {
	case err != nil:
		f.fail(name, "invalid id", err)
		return false
	case id == nil:
		f.fail("id", "missing id", nil)
		return false
	}
	f.id = *id
	return true
}

func (f *fieldReader) readInt(names ...string) *int64 {
	v, name, err := f.row.Int(names...)
	if err != nil {
		f.fail(name, "not an integer", err)
	}
	return v
}

// readMoney returns the first present amount, or zero.
func (f *fieldReader) readMoney(names ...string) decimal.Decimal {
	v, name, err := f.row.Decimal(names...)
	if err != nil {
		f.fail(name, "not a number", err)
	}
	if v == nil {
		return decimal.Zero
	}
	return *v
}

func (f *fieldReader) readTime(names ...string) *time.Time {
	v, name, err := f.row.Time(names...)
	if err != nil {
		f.fail(name, "not a timestamp", err)
	}
	return v
}

func (f *fieldReader) readBool(def bool, names ...string) bool {
	v, name, err := f.row.Bool(names...)
	if err != nil {
		f.fail(name, "not a boolean", err)
	}
	if v == nil {
		return def
	}
	return *v
}

// timestamps applies the defaults for creation and update times. dated
// reports whether the creation time was read from the row rather than
// taken from now.
func (f *fieldReader) timestamps(now Clock) (created, updated time.Time, dated bool) {
	c := f.readTime("created_at", "createdAt", "created", "date_created")
	u := f.readTime("updated_at", "updatedAt", "modified_at", "updated")
	created = now().UTC()
	if c != nil {
		created, dated = *c, true
	}
	updated = created
	if u != nil {
		updated = *u
	}
	return created, updated, dated
}

func (f *fieldReader) currency() string {
	if c := f.row.String("currency"); c != nil {
		return strings.ToUpper(*c)
	}
	return DefaultCurrency
}

func (f *fieldReader) status() string {
	if s := f.row.String("status"); s != nil {
		return strings.ToLower(*s)
	}
	return DefaultStatus
}
