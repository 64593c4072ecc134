package record

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            int64
	TrainerID     *int64
	Name          string
	Description   *string
	Price         decimal.Decimal
	SKU           string
	StockQuantity *int64
	Category      *string
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

var _ Record = (*Product)(nil)

func (p *Product) Table() Table       { return TableProduct }
func (p *Product) SourceID() int64    { return p.ID }
func (p *Product) NaturalKey() string { return p.Name }

func (p *Product) Fields() []Field {
	return idField(p.ID,
		Field{"trainerId", p.TrainerID},
		Field{"name", p.Name},
		Field{"description", p.Description},
		Field{"price", p.Price},
		Field{"sku", p.SKU},
		Field{"stockQuantity", p.StockQuantity},
		Field{"category", p.Category},
		Field{"isActive", p.IsActive},
		Field{"createdAt", p.CreatedAt},
		Field{"updatedAt", p.UpdatedAt},
	)
}

// ProductMapper maps rows of the legacy products table.
type ProductMapper struct {
	Now Clock
}

var _ Mapper = (*ProductMapper)(nil)

// Map prefers discounted_price over price, synthesizes a SKU when the dump
// has none and renames legacy type codes to categories. A product needs a
// name or a title.
func (m *ProductMapper) Map(row Row) (Record, error) {
	f := &fieldReader{row: row, table: TableProduct}
	if !f.readID() {
		return nil, f.err
	}
	p := &Product{
		ID:            f.id,
		TrainerID:     f.readInt("trainer_id", "trainerId"),
		Description:   row.String("description"),
		Price:         f.readMoney("discounted_price", "price"),
		SKU:           SKU(f.id),
		StockQuantity: f.readInt("stock_quantity", "stockQuantity", "stock", "quantity"),
		IsActive:      f.readBool(true, "is_active", "isActive", "active", "enabled"),
	}
	name := row.String("name", "title")
	if name == nil {
		f.fail("name", "missing name and title", nil)
	} else {
		p.Name = *name
	}
	if sku := row.String("sku"); sku != nil {
		p.SKU = *sku
	}
	if code := row.String("category", "type"); code != nil {
		category := NormalizeCategory(*code)
		p.Category = &category
	}
	p.CreatedAt, p.UpdatedAt, _ = f.timestamps(m.Now)
	if f.err != nil {
		return nil, f.err
	}
	return p, nil
}
