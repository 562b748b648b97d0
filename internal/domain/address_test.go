package domain_test

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

func validAddress() domain.ShippingAddress {
	return domain.ShippingAddress{
		FirstName:  "Ana",
		LastName:   "Rojas",
		Email:      "ana@example.cl",
		Phone:      "+56911111111",
		Address:    "Av. Providencia 1234",
		City:       "Santiago",
		Region:     "RM",
		PostalCode: "7500000",
	}
}

func TestShippingAddressNormalize(t *testing.T) {
	addr := validAddress()
	addr.Email = "  Ana@Example.CL "
	addr.City = " Santiago "

	got := addr.Normalize()
	if got.Email != "ana@example.cl" || got.City != "Santiago" {
		t.Fatalf("unexpected normalized address: %+v", got)
	}
	if got.Country != domain.DefaultCountry {
		t.Fatalf("country = %q, want %q", got.Country, domain.DefaultCountry)
	}
}

func TestShippingAddressValidate(t *testing.T) {
	if err := validAddress().Normalize().Validate(); err != nil {
		t.Fatalf("valid address rejected: %v", err)
	}

	cases := []struct {
		name  string
		mut   func(a *domain.ShippingAddress)
		field string
	}{
		{"missing first name", func(a *domain.ShippingAddress) { a.FirstName = " " }, "shippingAddress.firstName"},
		{"missing region", func(a *domain.ShippingAddress) { a.Region = "" }, "shippingAddress.region"},
		{"bad email", func(a *domain.ShippingAddress) { a.Email = "not-an-email" }, "shippingAddress.email"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			addr := validAddress()
			tc.mut(&addr)

			err := addr.Validate()
			var vErr *domain.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if vErr.Field != tc.field {
				t.Fatalf("field = %q, want %q", vErr.Field, tc.field)
			}
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatal("validation error must match ErrValidation")
			}
		})
	}
}
