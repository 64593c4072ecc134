package record

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID            int64
	OrderNumber   string
	UserID        *int64
	TrainerID     *int64
	ProductID     *int64
	CustomerEmail string
	CustomerName  string
	Status        string
	TotalAmount   decimal.Decimal
	Currency      string
	Notes         *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

var _ Record = (*Order)(nil)

func (o *Order) Table() Table       { return TableOrder }
func (o *Order) SourceID() int64    { return o.ID }
func (o *Order) NaturalKey() string { return o.OrderNumber }

func (o *Order) Fields() []Field {
	return idField(o.ID,
		Field{"orderNumber", o.OrderNumber},
		Field{"userId", o.UserID},
		Field{"trainerId", o.TrainerID},
		Field{"productId", o.ProductID},
		Field{"customerEmail", o.CustomerEmail},
		Field{"customerName", o.CustomerName},
		Field{"status", o.Status},
		Field{"totalAmount", o.TotalAmount},
		Field{"currency", o.Currency},
		Field{"notes", o.Notes},
		Field{"createdAt", o.CreatedAt},
		Field{"updatedAt", o.UpdatedAt},
	)
}

// OrderMapper maps rows of the legacy orders table. Foreign keys are left
// as dump ids; they are resolved when the order is persisted.
type OrderMapper struct {
	Now Clock
}

var _ Mapper = (*OrderMapper)(nil)

func (m *OrderMapper) Map(row Row) (Record, error) {
	f := &fieldReader{row: row, table: TableOrder}
	if !f.readID() {
		return nil, f.err
	}
	o := &Order{
		ID:          f.id,
		OrderNumber: OrderNumber(f.id),
		UserID:      f.readInt("user_id", "userId", "customer_id"),
		TrainerID:   f.readInt("trainer_id", "trainerId"),
		ProductID:   f.readInt("product_id", "productId"),
		Status:      f.status(),
		TotalAmount: f.readMoney("total_amount", "totalAmount", "total", "amount"),
		Currency:    f.currency(),
		Notes:       row.String("notes", "note", "comment"),
	}
	email := row.String("customer_email", "customerEmail", "email")
	if email == nil {
		f.fail("customer_email", "missing customer email", nil)
	} else {
		o.CustomerEmail = *email
		o.CustomerName = *email
	}
	if name := row.String("customer_name", "customerName", "full_name"); name != nil {
		o.CustomerName = *name
	}
	o.CreatedAt, o.UpdatedAt, _ = f.timestamps(m.Now)
	if f.err != nil {
		return nil, f.err
	}
	return o, nil
}
