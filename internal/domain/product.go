package domain

import (
	"strings"
	"time"
)

// Product — товарная позиция каталога и её складской остаток.
type Product struct {
	ID          string
	Name        string
	Description string
	Category    string
	Image       string
	// Price — цена за единицу в песо.
	Price int64
	// Stock никогда не опускается ниже нуля.
	Stock     int64
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Sellable сообщает, можно ли продать qty единиц товара прямо сейчас.
func (p *Product) Sellable(qty int64) bool {
	return p.IsActive && qty > 0 && p.Stock >= qty
}

// Snapshot фиксирует товар как позицию заказа.
func (p *Product) Snapshot(itemID string, qty int64) OrderItem {
	return OrderItem{
		ID:        itemID,
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Quantity:  qty,
		Image:     p.Image,
	}
}

// Validate проверяет поля товара перед сохранением.
func (p *Product) Validate() []error {
	var errs []error

	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, NewValidationError("name", "is required"))
	}
	if p.Price < 0 {
		errs = append(errs, NewValidationError("price", "must be non-negative"))
	}
	if p.Stock < 0 {
		errs = append(errs, NewValidationError("stock", "must be non-negative"))
	}

	return errs
}
