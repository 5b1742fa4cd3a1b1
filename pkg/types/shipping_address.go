package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// ShippingAddress is snapshotted onto an order as JSONB so it survives
// later profile edits.
type ShippingAddress struct {
	FullName     string `json:"full_name" validate:"required,max=200"`
	AddressLine1 string `json:"address_line1" validate:"required,max=200"`
	AddressLine2 string `json:"address_line2,omitempty" validate:"max=200"`
	City         string `json:"city" validate:"required,max=100"`
	State        string `json:"state" validate:"required,max=100"`
	PostalCode   string `json:"postal_code" validate:"required,max=20"`
	Country      string `json:"country" validate:"required,iso3166_1_alpha2"`
	Phone        string `json:"phone,omitempty" validate:"omitempty,max=40"`
}

// Normalize trims every field and upper-cases the country code.
func (a ShippingAddress) Normalize() ShippingAddress {
	a.FullName = strings.TrimSpace(a.FullName)
	a.AddressLine1 = strings.TrimSpace(a.AddressLine1)
	a.AddressLine2 = strings.TrimSpace(a.AddressLine2)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	a.Phone = strings.TrimSpace(a.Phone)
	return a
}

// MissingFields lists required fields that are blank.
func (a ShippingAddress) MissingFields() []string {
	var missing []string
	check := func(name, val string) {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, name)
		}
	}
	check("full_name", a.FullName)
	check("address_line1", a.AddressLine1)
	check("city", a.City)
	check("state", a.State)
	check("postal_code", a.PostalCode)
	check("country", a.Country)
	return missing
}

func (a ShippingAddress) Value() (driver.Value, error) {
	buf, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

func (a *ShippingAddress) Scan(value interface{}) error {
	if value == nil {
		*a = ShippingAddress{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("shipping address: unsupported scan type %T", value)
	}
	return json.Unmarshal(raw, a)
}
