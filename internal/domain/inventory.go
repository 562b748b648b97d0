package domain

import "context"

// StockLine — запрошенное количество одного товара.
type StockLine struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

// StockCheck — результат проверки одной строки.
type StockCheck struct {
	ProductID string `json:"productId"`
	Name      string `json:"name,omitempty"`
	Requested int64  `json:"requestedQuantity"`
	// Available равен нулю для отсутствующего или неактивного товара.
	Available   int64 `json:"availableStock"`
	IsAvailable bool  `json:"isAvailable"`
}

// StockReport — отчёт по всем строкам корзины.
type StockReport struct {
	AllAvailable bool         `json:"allAvailable"`
	Items        []StockCheck `json:"items"`
}

// Unavailable возвращает строки, которые нельзя продать.
func (r StockReport) Unavailable() []StockCheck {
	var out []StockCheck
	for _, item := range r.Items {
		if !item.IsAvailable {
			out = append(out, item)
		}
	}
	return out
}

// InventoryLedger — единственная точка изменения складских остатков.
type InventoryLedger interface {
	IsAvailable(ctx context.Context, productID string, qty int64) (bool, error)
	// Decrement списывает qty единиц атомарно; false означает нехватку без изменений.
	Decrement(ctx context.Context, productID string, qty int64) (bool, error)
	// Increment безусловно возвращает qty единиц на склад.
	Increment(ctx context.Context, productID string, qty int64) error
	CheckBatch(ctx context.Context, lines []StockLine) (StockReport, error)
}
