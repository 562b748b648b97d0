package domain

import (
	"net/mail"
	"strings"
)

// DefaultCountry подставляется, если страна в адресе не указана.
const DefaultCountry = "Chile"

// ShippingAddress — адрес доставки заказа.
type ShippingAddress struct {
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Address    string
	City       string
	Region     string
	PostalCode string
	Country    string
}

// Normalize обрезает пробелы и приводит email к нижнему регистру.
func (a ShippingAddress) Normalize() ShippingAddress {
	a.FirstName = strings.TrimSpace(a.FirstName)
	a.LastName = strings.TrimSpace(a.LastName)
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	a.Phone = strings.TrimSpace(a.Phone)
	a.Address = strings.TrimSpace(a.Address)
	a.City = strings.TrimSpace(a.City)
	a.Region = strings.TrimSpace(a.Region)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.TrimSpace(a.Country)
	if a.Country == "" {
		a.Country = DefaultCountry
	}
	return a
}

// Validate возвращает ошибку для первого незаполненного поля.
func (a ShippingAddress) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"shippingAddress.firstName", a.FirstName},
		{"shippingAddress.lastName", a.LastName},
		{"shippingAddress.email", a.Email},
		{"shippingAddress.phone", a.Phone},
		{"shippingAddress.address", a.Address},
		{"shippingAddress.city", a.City},
		{"shippingAddress.region", a.Region},
		{"shippingAddress.postalCode", a.PostalCode},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return NewValidationError(r.field, "is required")
		}
	}

	parsed, err := mail.ParseAddress(a.Email)
	if err != nil || parsed.Address != a.Email {
		return NewValidationError("shippingAddress.email", "is not a valid e-mail address")
	}
	return nil
}
