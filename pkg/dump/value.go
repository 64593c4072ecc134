package dump

import (
	"fmt"
	"strconv"
	"strings"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/shopspring/decimal"
)

// Kind is the type of a scalar read from a dump.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	}
	return "unknown"
}

// Value is a typed scalar. Numbers keep their source text in Raw so that
// DECIMAL columns survive without float rounding. Strings are stored
// unescaped.
type Value struct {
	Kind Kind
	Raw  string
}

// Tuple is one row of a VALUES list, positionally aligned with a ColumnList.
type Tuple []Value

// Null returns the NULL value.
func Null() Value { return Value{Kind: KindNull} }

// String returns a string value.
func String(s string) Value { return Value{Kind: KindString, Raw: s} }

// Number returns a numeric value from its textual form.
func Number(raw string) Value { return Value{Kind: KindNumber, Raw: raw} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// Int64 returns the value as an integer. Numeric strings are accepted,
// as are decimals without a fractional part ("12.00").
func (v Value) Int64() (int64, error) {
	if v.IsNull() {
		return 0, fmt.Errorf("value is NULL")
	}
	raw := strings.TrimSpace(v.Raw)
	if n, err := strconv.ParseInt(strings.TrimPrefix(raw, "+"), 10, 64); err == nil {
		return n, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", v.Raw)
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("%q is not an integer", v.Raw)
	}
	return d.IntPart(), nil
}

// Decimal returns the value as an exact decimal.
func (v Value) Decimal() (decimal.Decimal, error) {
	if v.IsNull() {
		return decimal.Zero, fmt.Errorf("value is NULL")
	}
	d, err := decimal.NewFromString(strings.TrimPrefix(strings.TrimSpace(v.Raw), "+"))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a number", v.Raw)
	}
	return d, nil
}

// SQL renders the value as a MySQL literal.
func (v Value) SQL() string {
	switch v.Kind {
	case KindNull:
		return "NULL"
	case KindNumber:
		return v.Raw
	default:
		return "'" + gomysql.Escape(v.Raw) + "'"
	}
}

func (v Value) String() string {
	if v.IsNull() {
		return "NULL"
	}
	return v.Raw
}

// FormatTuple renders a tuple as a parenthesized VALUES fragment. It is the
// inverse of Tokenize.
func FormatTuple(t Tuple) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, v := range t {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(v.SQL())
	}
	sb.WriteByte(')')
	return sb.String()
}

// ColumnList is the ordered column names of one INSERT statement.
type ColumnList []string

// Index returns the position of name, compared case-insensitively, or -1.
func (c ColumnList) Index(name string) int {
	for i, col := range c {
		if strings.EqualFold(col, name) {
			return i
		}
	}
	return -1
}
