package currency

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/expense-approval/internal"
)

const DefaultBaseCurrency = "USD"

type Country struct {
	Name     string `json:"country"`
	Currency string `json:"currency"`
}

var countries = []Country{
	{Name: "United States", Currency: "USD"},
	{Name: "United Kingdom", Currency: "GBP"},
	{Name: "European Union", Currency: "EUR"},
	{Name: "Japan", Currency: "JPY"},
	{Name: "Canada", Currency: "CAD"},
	{Name: "Australia", Currency: "AUD"},
	{Name: "Switzerland", Currency: "CHF"},
	{Name: "China", Currency: "CNY"},
	{Name: "India", Currency: "INR"},
	{Name: "Brazil", Currency: "BRL"},
}

// Countries returns a copy of the supported country table.
func Countries() []Country {
	out := make([]Country, len(countries))
	copy(out, countries)
	return out
}

// BaseCurrencyForCountry maps a country name to its currency, case-insensitively.
// Unknown countries fall back to USD.
func BaseCurrencyForCountry(country string) string {
	country = strings.TrimSpace(country)
	for _, c := range countries {
		if strings.EqualFold(c.Name, country) {
			return c.Currency
		}
	}
	return DefaultBaseCurrency
}

// NormalizeCode upper-cases and checks an ISO 4217 style code.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", internal.NewValidationFieldError("currency", "currency must be a 3-letter code", internal.ErrCodeInvalidCurrency)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", internal.NewValidationFieldError("currency", "currency must be a 3-letter code", internal.ErrCodeInvalidCurrency)
		}
	}
	return code, nil
}

// Conversion is the result of converting an amount between currencies.
type Conversion struct {
	Amount    decimal.Decimal `json:"amount"`
	Converted decimal.Decimal `json:"converted"`
	Rate      decimal.Decimal `json:"rate"`
	From      string          `json:"from"`
	To        string          `json:"to"`
}

// Converter converts money using an external rate source.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (Conversion, error)
}

// RateTable is every known rate quoted against Base.
type RateTable struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// RateService is what the HTTP handlers need from the rate client.
type RateService interface {
	Converter
	RateTable(ctx context.Context, base string) (RateTable, error)
}
