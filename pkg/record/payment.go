package record

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownPaymentMethod is used for payments whose gateway is not recorded.
const UnknownPaymentMethod = "unknown"

type Payment struct {
	ID              int64
	OrderID         *int64
	UserID          *int64
	PaymentMethod   string
	TransactionID   *string
	Amount          decimal.Decimal
	Currency        string
	Status          string
	GatewayResponse *string
	PaidAt          *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// Undated is set when the row had no creation time and CreatedAt was
	// taken from the clock. It is not stored.
	Undated bool
}

var _ Record = (*Payment)(nil)

func (p *Payment) Table() Table    { return TablePayment }
func (p *Payment) SourceID() int64 { return p.ID }

// NaturalKey is the transaction id, or the derived payment reference when
// the gateway recorded none.
func (p *Payment) NaturalKey() string {
	if p.TransactionID != nil {
		return *p.TransactionID
	}
	return "PAYMENT-" + strconv.FormatInt(p.ID, 10)
}

func (p *Payment) Fields() []Field {
	return idField(p.ID,
		Field{"orderId", p.OrderID},
		Field{"userId", p.UserID},
		Field{"paymentMethod", p.PaymentMethod},
		Field{"transactionId", p.TransactionID},
		Field{"amount", p.Amount},
		Field{"currency", p.Currency},
		Field{"status", p.Status},
		Field{"gatewayResponse", p.GatewayResponse},
		Field{"paidAt", p.PaidAt},
		Field{"createdAt", p.CreatedAt},
		Field{"updatedAt", p.UpdatedAt},
	)
}

// PaymentMapper maps rows of the legacy payments table.
type PaymentMapper struct {
	Now Clock
}

var _ Mapper = (*PaymentMapper)(nil)

func (m *PaymentMapper) Map(row Row) (Record, error) {
	f := &fieldReader{row: row, table: TablePayment}
	if !f.readID() {
		return nil, f.err
	}
	p := &Payment{
		ID:              f.id,
		OrderID:         f.readInt("order_id", "orderId"),
		UserID:          f.readInt("user_id", "userId"),
		PaymentMethod:   UnknownPaymentMethod,
		TransactionID:   row.String("transaction_id", "transactionId", "reference", "external_id"),
		Amount:          f.readMoney("amount", "total"),
		Currency:        f.currency(),
		Status:          f.status(),
		GatewayResponse: row.String("gateway_response", "gatewayResponse", "response"),
		PaidAt:          f.readTime("paid_at", "paidAt", "completed_at"),
	}
	if gateway := row.String("gateway", "payment_method", "paymentMethod", "provider"); gateway != nil {
		p.PaymentMethod = NormalizePaymentMethod(*gateway)
	}
	var dated bool
	p.CreatedAt, p.UpdatedAt, dated = f.timestamps(m.Now)
	p.Undated = !dated
	if f.err != nil {
		return nil, f.err
	}
	return p, nil
}
