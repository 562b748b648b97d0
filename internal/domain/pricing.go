package domain

import (
	"fmt"

	"github.com/govalues/decimal"
)

// Totals — денежные поля заказа, рассчитанные на сервере.
type Totals struct {
	Subtotal     int64
	ShippingCost int64
	Tax          int64
	Total        int64
}

// PricingPolicy задаёт правила доставки и налога.
type PricingPolicy struct {
	// FreeShippingThreshold — сумма, начиная с которой доставка бесплатна.
	FreeShippingThreshold int64
	ShippingFee           int64
	TaxRate               decimal.Decimal
}

// DefaultPricingPolicy — чилийские значения по умолчанию: порог 50000, доставка 5000, IVA 19%.
func DefaultPricingPolicy() PricingPolicy {
	return PricingPolicy{
		FreeShippingThreshold: 50000,
		ShippingFee:           5000,
		TaxRate:               decimal.MustNew(19, 2),
	}
}

// Subtotal суммирует стоимость позиций.
func Subtotal(items []OrderItem) int64 {
	var total int64
	for _, item := range items {
		total += item.LineTotal()
	}
	return total
}

// ShippingFor возвращает стоимость доставки для subtotal.
func (p PricingPolicy) ShippingFor(subtotal int64) int64 {
	if subtotal >= p.FreeShippingThreshold {
		return 0
	}
	return p.ShippingFee
}

// TaxFor считает round(subtotal * rate) с округлением половины вверх.
func (p PricingPolicy) TaxFor(subtotal int64) (int64, error) {
	if subtotal < 0 {
		return 0, fmt.Errorf("%w: negative subtotal %d", ErrAmountMismatch, subtotal)
	}
	base, err := decimal.New(subtotal, 0)
	if err != nil {
		return 0, fmt.Errorf("subtotal to decimal: %w", err)
	}
	raw, err := base.Mul(p.TaxRate)
	if err != nil {
		return 0, fmt.Errorf("apply tax rate: %w", err)
	}
	half := decimal.MustNew(5, 1)
	raw, err = raw.Add(half)
	if err != nil {
		return 0, fmt.Errorf("round tax: %w", err)
	}
	whole, _, ok := raw.Floor(0).Int64(0)
	if !ok {
		return 0, fmt.Errorf("tax overflows int64: %s", raw)
	}
	return whole, nil
}

// Quote рассчитывает итоговые суммы заказа.
func (p PricingPolicy) Quote(subtotal int64) (Totals, error) {
	tax, err := p.TaxFor(subtotal)
	if err != nil {
		return Totals{}, err
	}
	shipping := p.ShippingFor(subtotal)
	return Totals{
		Subtotal:     subtotal,
		ShippingCost: shipping,
		Tax:          tax,
		Total:        subtotal + shipping + tax,
	}, nil
}

// Apply переносит суммы на заказ.
func (t Totals) Apply(o *Order) {
	o.Subtotal = t.Subtotal
	o.ShippingCost = t.ShippingCost
	o.Tax = t.Tax
	o.Total = t.Total
}
