package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Money is a catalog price in the smallest currency unit. Credits are never
// bought or sold through the ledger, so Money only needs to be displayed.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"` // ISO 4217, lowercase
}

// USD returns a price in US cents.
func USD(cents int64) Money { return Money{Amount: cents, Currency: "usd"} }

// EUR returns a price in euro cents.
func EUR(cents int64) Money { return Money{Amount: cents, Currency: "eur"} }

// IsZero reports whether the price is free.
func (m Money) IsZero() bool { return m.Amount == 0 }

// FormatMajor renders the amount in major units, e.g. "50.00" for USD(5000).
// Whole amounts can be rendered without decimals via Short.
func (m Money) FormatMajor() string {
	sign := ""
	abs := m.Amount
	if abs < 0 {
		sign, abs = "-", -abs
	}
	return fmt.Sprintf("%s%d.%02d", sign, abs/100, abs%100)
}

// Short drops a zero minor part: "$50" instead of "$50.00".
func (m Money) Short() string {
	if m.Amount%100 == 0 {
		return currencySymbol(m.Currency) + fmt.Sprintf("%d", m.Amount/100)
	}
	return m.String()
}

// String returns the amount with its currency symbol, e.g. "$50.00".
func (m Money) String() string {
	return currencySymbol(m.Currency) + m.FormatMajor()
}

// MarshalJSON adds a display field for pricing cards.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{m.Amount, m.Currency, m.Short()})
}

// UnmarshalJSON ignores the display field.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Amount, m.Currency = raw.Amount, strings.ToLower(raw.Currency)
	return nil
}

func currencySymbol(currency string) string {
	switch strings.ToLower(currency) {
	case "usd":
		return "$"
	case "eur":
		return "€"
	case "gbp":
		return "£"
	default:
		return strings.ToUpper(currency) + " "
	}
}
