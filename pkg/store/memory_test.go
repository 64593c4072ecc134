package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/block/dumpimport/pkg/record"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
	os.Exit(m.Run())
}

func ptr[T any](v T) *T { return &v }

func TestMemoryCreateAssignsIDs(t *testing.T) {
	ctx := t.Context()
	m := NewMemory()
	id, err := m.Create(ctx, &record.Product{Name: "Yoga", SKU: "SKU-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	id, err = m.Create(ctx, &record.Product{ID: 40, Name: "Pilates", SKU: "SKU-40"})
	require.NoError(t, err)
	assert.Equal(t, int64(40), id)

	id, err = m.Create(ctx, &record.Product{Name: "Spin", SKU: "SKU-41"})
	require.NoError(t, err)
	assert.Equal(t, int64(41), id)
	assert.Equal(t, 3, m.Count(record.TableProduct))
}

func TestMemoryConstraints(t *testing.T) {
	ctx := t.Context()
	m := NewMemory()
	m.Seed(record.TableUser, 3, map[string]any{"email": "anna@example.com"})

	_, err := m.Create(ctx, &record.Product{ID: 1, Name: "Yoga", SKU: "SKU-1"})
	require.NoError(t, err)

	_, err = m.Create(ctx, &record.Product{ID: 1, Name: "Other", SKU: "SKU-X"})
	require.ErrorIs(t, err, ErrDuplicate)

	_, err = m.Create(ctx, &record.Product{ID: 2, Name: "Other", SKU: "SKU-1"})
	require.ErrorIs(t, err, ErrDuplicate)

	_, err = m.Create(ctx, &record.Order{ID: 1, OrderNumber: "ORDER-1", ProductID: ptr(int64(99))})
	require.ErrorIs(t, err, ErrForeignKey)

	_, err = m.Create(ctx, &record.Order{ID: 1, OrderNumber: "ORDER-1", ProductID: ptr(int64(1)), UserID: ptr(int64(3))})
	require.NoError(t, err)

	_, err = m.Create(ctx, &record.Payment{ID: 1, OrderID: ptr(int64(2))})
	require.ErrorIs(t, err, ErrForeignKey)

	// payments without a transaction id do not collide with each other
	_, err = m.Create(ctx, &record.Payment{ID: 1, OrderID: ptr(int64(1))})
	require.NoError(t, err)
	_, err = m.Create(ctx, &record.Payment{ID: 2})
	require.NoError(t, err)
}

func TestMemoryFind(t *testing.T) {
	ctx := t.Context()
	m := NewMemory()
	created := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	_, err := m.Create(ctx, &record.Payment{
		ID:            7,
		TransactionID: ptr("tx_1"),
		Amount:        decimal.RequireFromString("49.90"),
		CreatedAt:     created,
	})
	require.NoError(t, err)

	ref, err := m.FindUnique(ctx, record.TablePayment, "transactionId", "tx_1")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, int64(7), ref.ID)

	ref, err = m.FindUnique(ctx, record.TablePayment, "transactionId", "tx_2")
	require.NoError(t, err)
	assert.Nil(t, ref)

	_, err = m.FindUnique(ctx, record.TablePayment, "amount", "49.90")
	require.ErrorIs(t, err, ErrNotUnique)

	ref, err = m.FindFirst(ctx, record.TablePayment, Criteria{
		"orderId":   (*int64)(nil),
		"amount":    decimal.RequireFromString("49.9"),
		"createdAt": created.In(time.FixedZone("EET", 2*3600)),
	})
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, int64(7), ref.ID)

	ref, err = m.FindFirst(ctx, record.TablePayment, Criteria{"amount": decimal.RequireFromString("50")})
	require.NoError(t, err)
	assert.Nil(t, ref)
}

func TestMemoryFailCreate(t *testing.T) {
	errBoom := errors.New("boom")
	m := NewMemory()
	m.FailCreate = func(rec record.Record) error {
		if rec.NaturalKey() == "Broken" {
			return errBoom
		}
		return nil
	}
	_, err := m.Create(t.Context(), &record.Product{ID: 1, Name: "Broken", SKU: "SKU-1"})
	require.ErrorIs(t, err, errBoom)
	_, err = m.Create(t.Context(), &record.Product{ID: 2, Name: "Fine", SKU: "SKU-2"})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Count(record.TableProduct))
}

func TestMemoryCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	m := NewMemory()
	_, err := m.Create(ctx, &record.Product{ID: 1, Name: "Yoga"})
	require.ErrorIs(t, err, context.Canceled)
	_, err = m.FindFirst(ctx, record.TableProduct, Criteria{"name": "Yoga"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRowsAreCopies(t *testing.T) {
	m := NewMemory()
	_, err := m.Create(t.Context(), &record.Product{ID: 1, Name: "Yoga", SKU: "SKU-1"})
	require.NoError(t, err)
	rows := m.Rows(record.TableProduct)
	rows[0]["name"] = "changed"
	assert.Equal(t, "Yoga", m.Rows(record.TableProduct)[0]["name"])
	assert.Nil(t, rows[0]["trainerId"])
}
