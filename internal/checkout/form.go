package checkout

import (
	"net/mail"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/models"
)

// DefaultCountry is the only country orders ship to
const DefaultCountry = "USA"

// ShippingForm is the customer-entered shipping data
type ShippingForm struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// Normalize trims every field and pins the country to DefaultCountry
func (f ShippingForm) Normalize() ShippingForm {
	return ShippingForm{
		Name:    strings.TrimSpace(f.Name),
		Email:   strings.TrimSpace(f.Email),
		Address: strings.TrimSpace(f.Address),
		City:    strings.TrimSpace(f.City),
		State:   strings.TrimSpace(f.State),
		Zip:     strings.TrimSpace(f.Zip),
		Country: DefaultCountry,
	}
}

// Validate returns a *apperr.ValidationError naming every missing or malformed field
func (f ShippingForm) Validate() error {
	verr := apperr.NewValidationError()

	required := []struct {
		field string
		value string
	}{
		{"name", f.Name},
		{"email", f.Email},
		{"address", f.Address},
		{"city", f.City},
		{"state", f.State},
		{"zip", f.Zip},
		{"country", f.Country},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			verr.Add(r.field, "required")
		}
	}

	if _, missing := verr.Fields["email"]; !missing {
		if _, err := mail.ParseAddress(f.Email); err != nil {
			verr.Add("email", "invalid email address")
		}
	}

	return verr.OrNil()
}

// ShippingAddress converts the form to the order's shipping snapshot
func (f ShippingForm) ShippingAddress() models.ShippingAddress {
	return models.ShippingAddress{
		Name:    f.Name,
		Email:   f.Email,
		Address: f.Address,
		City:    f.City,
		State:   f.State,
		Zip:     f.Zip,
		Country: f.Country,
	}
}
