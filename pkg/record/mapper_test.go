package record

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/block/dumpimport/pkg/dump"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
	os.Exit(m.Run())
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// mapTuple tokenizes a VALUES fragment and maps it.
func mapTuple(t *testing.T, table Table, columns dump.ColumnList, fragment string) (Record, error) {
	t.Helper()
	tuple, err := dump.Tokenize(fragment)
	require.NoError(t, err)
	return Map(table, columns, tuple, clock)
}

func TestProductPriceSelection(t *testing.T) {
	cols := dump.ColumnList{"id", "name", "price", "discounted_price"}
	rec, err := mapTuple(t, TableProduct, cols, "(1, 'Yoga', 14.99, 9.99)")
	require.NoError(t, err)
	assert.Equal(t, "9.99", rec.(*Product).Price.String())

	rec, err = mapTuple(t, TableProduct, cols, "(2, 'Yoga', 14.99, NULL)")
	require.NoError(t, err)
	assert.Equal(t, "14.99", rec.(*Product).Price.String())

	rec, err = mapTuple(t, TableProduct, dump.ColumnList{"id", "name"}, "(3, 'Free')")
	require.NoError(t, err)
	assert.True(t, rec.(*Product).Price.IsZero())
}

func TestProductMapping(t *testing.T) {
	cols := dump.ColumnList{"id", "trainer_id", "title", "description", "type", "stock", "is_active", "created_at", "updated_at"}
	rec, err := mapTuple(t, TableProduct, cols,
		"(42, 7, 'Strength 101', 'Twelve weeks', 'program', 5, 0, '2023-01-02 03:04:05', NULL)")
	require.NoError(t, err)
	p, ok := rec.(*Product)
	require.True(t, ok)

	assert.Equal(t, TableProduct, p.Table())
	assert.Equal(t, int64(42), p.SourceID())
	assert.Equal(t, "Strength 101", p.Name)
	assert.Equal(t, "Strength 101", p.NaturalKey())
	assert.Equal(t, "SKU-42", p.SKU)
	require.NotNil(t, p.TrainerID)
	assert.Equal(t, int64(7), *p.TrainerID)
	require.NotNil(t, p.Category)
	assert.Equal(t, "Training Program", *p.Category)
	require.NotNil(t, p.StockQuantity)
	assert.Equal(t, int64(5), *p.StockQuantity)
	assert.Equal(t, "Twelve weeks", *p.Description)
	assert.False(t, p.IsActive)
	assert.Equal(t, time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC), p.CreatedAt)
	assert.Equal(t, p.CreatedAt, p.UpdatedAt)
}

func TestProductDefaults(t *testing.T) {
	rec, err := mapTuple(t, TableProduct, dump.ColumnList{"id", "name", "sku"}, "(9, 'Mat', 'MAT-BLUE')")
	require.NoError(t, err)
	p := rec.(*Product)
	assert.Equal(t, "MAT-BLUE", p.SKU)
	assert.True(t, p.IsActive)
	assert.Nil(t, p.Category)
	assert.Nil(t, p.TrainerID)
	assert.Equal(t, fixedNow, p.CreatedAt)
	assert.Equal(t, fixedNow, p.UpdatedAt)
}

func TestCategories(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"program", "Training Program"},
		{"ticket", "Event Ticket"},
		{"subscription", "Subscription"},
		{"Ticket", "Event Ticket"},
		{"merch", "merch"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeCategory(tt.code))
		})
	}
}

func TestPaymentMethods(t *testing.T) {
	tests := []struct {
		gateway string
		want    string
	}{
		{"stripe", "card"},
		{"swedbank", "bank_transfer"},
		{"montonio", "bank_transfer"},
		{"Stripe", "card"},
		{"paypal", "paypal"},
	}
	for _, tt := range tests {
		t.Run(tt.gateway, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePaymentMethod(tt.gateway))
		})
	}
}

func TestOrderMapping(t *testing.T) {
	cols := dump.ColumnList{"id", "user_id", "product_id", "customer_email", "customer_name", "status", "total", "currency", "created_at"}
	rec, err := mapTuple(t, TableOrder, cols,
		"(17, 3, 42, 'anna@example.com', 'Anna Tamm', 'PAID', 49.90, 'usd', 1700000000)")
	require.NoError(t, err)
	o := rec.(*Order)
	assert.Equal(t, "ORDER-17", o.OrderNumber)
	assert.Equal(t, "ORDER-17", o.NaturalKey())
	assert.Equal(t, int64(3), *o.UserID)
	assert.Equal(t, int64(42), *o.ProductID)
	assert.Nil(t, o.TrainerID)
	assert.Equal(t, "Anna Tamm", o.CustomerName)
	assert.Equal(t, "paid", o.Status)
	assert.Equal(t, "49.9", o.TotalAmount.String())
	assert.Equal(t, "USD", o.Currency)
	assert.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC), o.CreatedAt)
}

func TestOrderDefaults(t *testing.T) {
	rec, err := mapTuple(t, TableOrder, dump.ColumnList{"id", "email"}, "(5, 'bob@example.com')")
	require.NoError(t, err)
	o := rec.(*Order)
	assert.Equal(t, "bob@example.com", o.CustomerName)
	assert.Equal(t, DefaultStatus, o.Status)
	assert.Equal(t, DefaultCurrency, o.Currency)
	assert.True(t, o.TotalAmount.IsZero())
}

func TestPaymentMapping(t *testing.T) {
	cols := dump.ColumnList{"id", "order_id", "gateway", "transaction_id", "amount", "status", "paid_at", "created_at"}
	rec, err := mapTuple(t, TablePayment, cols,
		"(8, 17, 'montonio', 'tx_123', '49.90', 'completed', '2023-11-14T22:15:00Z', 1700000000000)")
	require.NoError(t, err)
	p := rec.(*Payment)
	assert.Equal(t, int64(17), *p.OrderID)
	assert.Equal(t, "bank_transfer", p.PaymentMethod)
	assert.Equal(t, "tx_123", p.NaturalKey())
	assert.Equal(t, "49.9", p.Amount.String())
	assert.Equal(t, DefaultCurrency, p.Currency)
	assert.Equal(t, "completed", p.Status)
	require.NotNil(t, p.PaidAt)
	assert.Equal(t, time.Date(2023, 11, 14, 22, 15, 0, 0, time.UTC), *p.PaidAt)
	assert.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC), p.CreatedAt)
	assert.False(t, p.Undated)
}

func TestPaymentWithoutGateway(t *testing.T) {
	rec, err := mapTuple(t, TablePayment, dump.ColumnList{"id", "amount"}, "(3, NULL)")
	require.NoError(t, err)
	p := rec.(*Payment)
	assert.Equal(t, UnknownPaymentMethod, p.PaymentMethod)
	assert.Nil(t, p.TransactionID)
	assert.Equal(t, "PAYMENT-3", p.NaturalKey())
	assert.True(t, p.Amount.IsZero())
	assert.Nil(t, p.PaidAt)
	assert.True(t, p.Undated)
	assert.Equal(t, clock(), p.CreatedAt)
}

func TestMapErrors(t *testing.T) {
	tests := []struct {
		name     string
		table    Table
		columns  dump.ColumnList
		fragment string
		field    string
		sourceID int64
	}{
		{"missing id column", TableProduct, dump.ColumnList{"name"}, "('Yoga')", "id", 0},
		{"null id", TableOrder, dump.ColumnList{"id", "email"}, "(NULL, 'a@example.com')", "id", 0},
		{"product without name", TableProduct, dump.ColumnList{"id", "name", "title"}, "(4, NULL, '  ')", "name", 4},
		{"order without email", TableOrder, dump.ColumnList{"id", "customer_email"}, "(6, NULL)", "customer_email", 6},
		{"bad price", TableProduct, dump.ColumnList{"id", "name", "price"}, "(7, 'Yoga', 'free')", "price", 7},
		{"bad timestamp", TablePayment, dump.ColumnList{"id", "created_at"}, "(8, 'yesterday')", "created_at", 8},
		{"bad flag", TableProduct, dump.ColumnList{"id", "name", "active"}, "(9, 'Yoga', 'maybe')", "active", 9},
		{"bad fk", TableOrder, dump.ColumnList{"id", "email", "product_id"}, "(10, 'a@example.com', 'abc')", "product_id", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mapTuple(t, tt.table, tt.columns, tt.fragment)
			var merr *MapError
			require.ErrorAs(t, err, &merr)
			assert.Equal(t, tt.table, merr.Table)
			assert.Equal(t, tt.field, merr.Field)
			assert.Equal(t, tt.sourceID, merr.SourceID)
		})
	}
}

func TestMapColumnCountMismatch(t *testing.T) {
	_, err := Map(TableProduct, dump.ColumnList{"id", "name"}, dump.Tuple{dump.Number("1")}, clock)
	var merr *MapError
	require.ErrorAs(t, err, &merr)
	assert.Contains(t, merr.Error(), "does not match value count")
}

func TestFieldsOmitZeroID(t *testing.T) {
	p := &Product{ID: 5, Name: "Yoga"}
	fields := p.Fields()
	assert.Equal(t, "id", fields[0].Name)

	p.ID = 0
	for _, f := range p.Fields() {
		assert.NotEqual(t, "id", f.Name)
	}
}

func TestParseTable(t *testing.T) {
	for _, name := range DumpTableNames() {
		_, ok := ParseTable(name)
		assert.True(t, ok, name)
	}
	table, ok := ParseTable("Orders")
	assert.True(t, ok)
	assert.Equal(t, TableOrder, table)
	_, ok = ParseTable("users")
	assert.False(t, ok)
	assert.Equal(t, "Payment", TablePayment.String())
}
