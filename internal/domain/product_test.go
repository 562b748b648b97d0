package domain

import "testing"

func TestProductSellable(t *testing.T) {
	p := Product{ID: "P1", Price: 1000, Stock: 3, IsActive: true}

	cases := []struct {
		name string
		mut  func(p *Product)
		qty  int64
		want bool
	}{
		{name: "enough stock", qty: 3, want: true},
		{name: "too many", qty: 4, want: false},
		{name: "zero qty", qty: 0, want: false},
		{name: "inactive", mut: func(p *Product) { p.IsActive = false }, qty: 1, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			product := p
			if tc.mut != nil {
				tc.mut(&product)
			}
			if got := product.Sellable(tc.qty); got != tc.want {
				t.Fatalf("Sellable(%d) = %v, want %v", tc.qty, got, tc.want)
			}
		})
	}
}

func TestProductValidate(t *testing.T) {
	valid := Product{Name: "Lampara UVB", Price: 0, Stock: 0}
	if errs := valid.Validate(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	invalid := Product{Name: " ", Price: -1, Stock: -1}
	if errs := invalid.Validate(); len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %v", errs)
	}
}
