package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a two-decimal amount stored as numeric(12,2).
type Money struct {
	decimal.Decimal
}

var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {}, "KRW": {}, "MGA": {},
	"PYG": {}, "RWF": {}, "UGX": {}, "VND": {}, "VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

func NewMoney(amount decimal.Decimal) Money {
	return Money{Decimal: amount.Round(2)}
}

// MustMoney parses s and panics on malformed input. Intended for literals.
func MustMoney(s string) Money {
	return NewMoney(decimal.RequireFromString(s))
}

func ZeroMoney() Money {
	return Money{Decimal: decimal.Zero}
}

// Mul returns m multiplied by a quantity.
func (m Money) Mul(qty int) Money {
	return NewMoney(m.Decimal.Mul(decimal.NewFromInt(int64(qty))))
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return NewMoney(m.Decimal.Add(o.Decimal))
}

// MinorUnits converts the amount into the smallest unit of currency, the form
// Stripe expects for unit_amount.
func (m Money) MinorUnits(currency string) (int64, error) {
	scale := int32(2)
	if _, ok := zeroDecimalCurrencies[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		scale = 0
	}
	minor := m.Decimal.Shift(scale)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more precision than %s allows", m.String(), currency)
	}
	return minor.IntPart(), nil
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts either a quoted decimal or a JSON number.
func (m *Money) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	raw := strings.Trim(string(b), `"`)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("money: %w", err)
	}
	m.Decimal = d.Round(2)
	return nil
}

func (m Money) Value() (driver.Value, error) {
	return m.Decimal.Round(2).StringFixed(2), nil
}

func (m *Money) Scan(value interface{}) error {
	if err := m.Decimal.Scan(value); err != nil {
		return err
	}
	m.Decimal = m.Decimal.Round(2)
	return nil
}

func (m Money) String() string {
	return m.Decimal.Round(2).StringFixed(2)
}
