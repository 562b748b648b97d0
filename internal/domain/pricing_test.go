package domain_test

import (
	"testing"

	"github.com/govalues/decimal"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

func TestPricingPolicyQuote(t *testing.T) {
	policy := domain.DefaultPricingPolicy()

	cases := []struct {
		name     string
		subtotal int64
		want     domain.Totals
	}{
		{
			name:     "two units of P1",
			subtotal: 20000,
			want:     domain.Totals{Subtotal: 20000, ShippingCost: 5000, Tax: 3800, Total: 28800},
		},
		{
			name:     "zero subtotal",
			subtotal: 0,
			want:     domain.Totals{Subtotal: 0, ShippingCost: 5000, Tax: 0, Total: 5000},
		},
		{
			name:     "exactly at threshold",
			subtotal: 50000,
			want:     domain.Totals{Subtotal: 50000, ShippingCost: 0, Tax: 9500, Total: 59500},
		},
		{
			name:     "one unit below threshold",
			subtotal: 49999,
			want:     domain.Totals{Subtotal: 49999, ShippingCost: 5000, Tax: 9500, Total: 64499},
		},
		{
			name:     "half rounds up",
			subtotal: 50,
			want:     domain.Totals{Subtotal: 50, ShippingCost: 5000, Tax: 10, Total: 5060},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := policy.Quote(tc.subtotal)
			if err != nil {
				t.Fatalf("Quote: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Quote(%d) = %+v, want %+v", tc.subtotal, got, tc.want)
			}
			if got.Total != got.Subtotal+got.ShippingCost+got.Tax {
				t.Fatalf("total is not the sum of its parts: %+v", got)
			}
		})
	}
}

func TestPricingPolicyTaxFor_CustomRate(t *testing.T) {
	policy := domain.PricingPolicy{TaxRate: decimal.MustParse("0.125")}

	tax, err := policy.TaxFor(4)
	if err != nil {
		t.Fatalf("TaxFor: %v", err)
	}
	// 4 * 0.125 = 0.5 → 1
	if tax != 1 {
		t.Fatalf("tax = %d, want 1", tax)
	}

	if _, err := policy.TaxFor(-1); err == nil {
		t.Fatal("expected error for negative subtotal")
	}
}

func TestSubtotalUsesSnapshotPrices(t *testing.T) {
	product := domain.Product{ID: "P1", Name: "Terrario", Price: 10000, Stock: 5, IsActive: true}
	item := product.Snapshot("item-1", 2)

	product.Price = 99999
	product.Name = "Renamed"

	if got := domain.Subtotal([]domain.OrderItem{item}); got != 20000 {
		t.Fatalf("subtotal = %d, want 20000", got)
	}
	if item.Name != "Terrario" {
		t.Fatalf("snapshot name changed to %q", item.Name)
	}
}
