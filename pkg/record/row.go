package record

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/block/dumpimport/pkg/dump"
)

var (
	epochRegex = regexp.MustCompile(`^[+-]?\d+(\.\d+)?$`)

	// Dump timestamps carry no zone unless they are RFC 3339; they are read as UTC.
	timeLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02",
	}

	errNotTimestamp = errors.New("not an ISO-8601 timestamp or Unix epoch")
	errNotBool      = errors.New("not a boolean")
	errEpochRange   = errors.New("Unix epoch out of range")

	minEpochNanos = decimal.NewFromInt(math.MinInt64)
	maxEpochNanos = decimal.NewFromInt(math.MaxInt64)
)

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
// 1e11 seconds is in the year 5138, 1e11 milliseconds is in 1973.
const epochMillisThreshold = 100_000_000_000

// Row is one tuple together with the column list of its statement.
type Row struct {
	Columns dump.ColumnList
	Values  dump.Tuple
}

// NewRow aligns a tuple with its columns.
func NewRow(columns dump.ColumnList, values dump.Tuple) (Row, error) {
	if len(columns) != len(values) {
		return Row{}, fmt.Errorf("column count %d does not match value count %d", len(columns), len(values))
	}
	return Row{Columns: columns, Values: values}, nil
}

// present returns the first of names holding a non-NULL value that is
// not blank. Blank strings count as absent, so the next name is tried.
func (r Row) present(names ...string) (dump.Value, string, bool) {
	for _, name := range names {
		i := r.Columns.Index(name)
		if i < 0 || r.Values[i].IsNull() || strings.TrimSpace(r.Values[i].Raw) == "" {
			continue
		}
		return r.Values[i], name, true
	}
	return dump.Value{}, "", false
}

// String returns the first non-NULL, non-blank value of names.
func (r Row) String(names ...string) *string {
	v, _, ok := r.present(names...)
	if !ok {
		return nil
	}
	s := strings.TrimSpace(v.Raw)
	return &s
}

// Int returns the first non-NULL, non-blank value of names as an integer.
func (r Row) Int(names ...string) (*int64, string, error) {
	v, name, ok := r.present(names...)
	if !ok {
		return nil, name, nil
	}
	n, err := v.Int64()
	if err != nil {
		return nil, name, err
	}
	return &n, name, nil
}

// Decimal returns the first non-NULL, non-blank value of names as a decimal.
func (r Row) Decimal(names ...string) (*decimal.Decimal, string, error) {
	v, name, ok := r.present(names...)
	if !ok {
		return nil, name, nil
	}
	d, err := v.Decimal()
	if err != nil {
		return nil, name, err
	}
	return &d, name, nil
}

// Time returns the first non-NULL, non-blank value of names as a UTC
// timestamp. Both ISO-8601 strings and Unix epochs are accepted; see
// ParseTimestamp.
func (r Row) Time(names ...string) (*time.Time, string, error) {
	v, name, ok := r.present(names...)
	if !ok {
		return nil, name, nil
	}
	t, err := ParseTimestamp(v)
	return t, name, err
}

// Bool returns the first non-NULL, non-blank value of names as a boolean.
func (r Row) Bool(names ...string) (*bool, string, error) {
	v, name, ok := r.present(names...)
	if !ok {
		return nil, name, nil
	}
	switch strings.ToLower(strings.TrimSpace(v.Raw)) {
	case "1", "true", "t", "yes", "y", "on", "active", "enabled":
		b := true
		return &b, name, nil
	case "0", "false", "f", "no", "n", "off", "inactive", "disabled":
		b := false
		return &b, name, nil
	}
	if v.Kind == dump.KindNumber {
		d, err := v.Decimal()
		if err == nil {
			b := !d.IsZero()
			return &b, name, nil
		}
	}
	return nil, name, fmt.Errorf("%q: %w", v.Raw, errNotBool)
}

// ParseTimestamp normalizes a dump timestamp to UTC. Numbers, and strings
// made only of digits, are Unix epochs: seconds, or milliseconds when the
// value is above 1e11. Strings are parsed as RFC 3339 or as MySQL
// DATETIME/DATE text in UTC. Blank strings and MySQL zero dates are
// absent and return nil. Epochs outside the years 1678 to 2262 are an
// error.
func ParseTimestamp(v dump.Value) (*time.Time, error) {
	if v.IsNull() {
		return nil, nil
	}
	s := strings.TrimSpace(v.Raw)
	if s == "" || strings.HasPrefix(s, "0000-00-00") {
		return nil, nil
	}
	if epochRegex.MatchString(s) {
		d, err := decimal.NewFromString(strings.TrimPrefix(s, "+"))
		if err != nil {
			return nil, err
		}
		unit := decimal.NewFromInt(int64(time.Second))
		if d.Abs().GreaterThan(decimal.NewFromInt(epochMillisThreshold)) {
			unit = decimal.NewFromInt(int64(time.Millisecond))
		}
		nanos := d.Mul(unit)
		if nanos.LessThan(minEpochNanos) || nanos.GreaterThan(maxEpochNanos) {
			return nil, fmt.Errorf("%q: %w", v.Raw, errEpochRange)
		}
		t := time.Unix(0, nanos.IntPart()).UTC()
		return &t, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", v.Raw, errNotTimestamp)
}
