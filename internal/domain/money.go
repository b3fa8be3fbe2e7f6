package domain

import "github.com/shopspring/decimal"

// Currency represents ISO 4217 currency codes
type Currency string

const (
	NGN Currency = "NGN" // Nigerian Naira
	GHS Currency = "GHS" // Ghanaian Cedi
	KES Currency = "KES" // Kenyan Shilling
)

// Money is an amount in minor units (kobo, pesewas) paired with a currency.
// All balances in the system are stored this way; no floating point anywhere.
type Money struct {
	Amount   int64    `json:"amount"`
	Currency Currency `json:"currency"`
}

// MinorUnitFactor is the number of minor units per major unit for all
// supported currencies.
const MinorUnitFactor = 100

// Major returns the amount expressed in major units (e.g. naira, not kobo).
func (m Money) Major() decimal.Decimal {
	return decimal.NewFromInt(m.Amount).Div(decimal.NewFromInt(MinorUnitFactor))
}

// String renders the amount in major units with the currency code, e.g. "NGN 5000.00".
func (m Money) String() string {
	return string(m.Currency) + " " + m.Major().StringFixed(2)
}

// FormatMinor renders a raw minor-unit amount in major units.
func FormatMinor(amount int64, currency Currency) string {
	return Money{Amount: amount, Currency: currency}.String()
}
