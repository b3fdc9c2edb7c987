// Package money holds the exact decimal value types used by the settlement chain.
//
// Amounts are kept as decimals with at most two fractional digits. Derived
// figures (percentages, divisions) may carry more digits until Round is called,
// which is done once at the end of each derived calculation.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidCurrency   = errors.New("invalid currency")
	ErrInvalidPercentage = errors.New("invalid percentage")
	ErrCurrencyMismatch  = errors.New("currency mismatch")
)

// Cents is the number of fractional digits kept for an amount.
const Cents = 2

var hundred = decimal.NewFromInt(100)

// Money is a non-negative amount in a single ISO 4217 currency.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// New parses an exact decimal string.
func New(amount string, cur string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	return FromDecimal(d, cur)
}

// FromDecimal validates d and binds it to cur.
func FromDecimal(d decimal.Decimal, cur string) (Money, error) {
	code, err := ParseCurrency(cur)
	if err != nil {
		return Money{}, err
	}
	if d.IsNegative() {
		return Money{}, fmt.Errorf("%w: %s is negative", ErrInvalidAmount, d)
	}
	if !d.Equal(d.Truncate(Cents)) {
		return Money{}, fmt.Errorf("%w: %s has more than %d fractional digits", ErrInvalidAmount, d, Cents)
	}
	return Money{amount: d, currency: code}, nil
}

// FromMinor builds an amount from minor units (cents).
func FromMinor(minor int64, cur string) (Money, error) {
	return FromDecimal(decimal.New(minor, -Cents), cur)
}

// MustNew is New for literals known to be valid.
func MustNew(amount string, cur string) Money {
	m, err := New(amount, cur)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns a zero amount in cur. cur is expected to be already validated.
func Zero(cur string) Money {
	return Money{amount: decimal.Zero, currency: cur}
}

// ParseCurrency normalises an ISO 4217 code.
func ParseCurrency(cur string) (string, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(cur)))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, cur)
	}
	return unit.String(), nil
}

func (m Money) Amount() decimal.Decimal { return m.amount }
func (m Money) Currency() string        { return m.currency }
func (m Money) IsZero() bool            { return m.amount.IsZero() }
func (m Money) IsPositive() bool        { return m.amount.IsPositive() }

// Equal reports whether both amount and currency match; 1.5 and 1.50 are equal.
func (m Money) Equal(o Money) bool {
	return m.currency == o.currency && m.amount.Equal(o.amount)
}

func (m Money) sameCurrency(o Money) error {
	if m.currency != o.currency {
		return fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.currency, o.currency)
	}
	return nil
}

// Cmp compares two amounts of the same currency.
func (m Money) Cmp(o Money) (int, error) {
	if err := m.sameCurrency(o); err != nil {
		return 0, err
	}
	return m.amount.Cmp(o.amount), nil
}

func (m Money) Add(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Add(o.amount), currency: m.currency}, nil
}

// Sub fails instead of producing a negative amount.
func (m Money) Sub(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	d := m.amount.Sub(o.amount)
	if d.IsNegative() {
		return Money{}, fmt.Errorf("%w: %s minus %s is negative", ErrInvalidAmount, m, o)
	}
	return Money{amount: d, currency: m.currency}, nil
}

// Percent applies p without rounding.
func (m Money) Percent(p Percentage) Money {
	return Money{amount: m.amount.Mul(p.value).Shift(-2), currency: m.currency}
}

// MulInt multiplies by a whole quantity. The result is exact.
func (m Money) MulInt(n int64) Money {
	return Money{amount: m.amount.Mul(decimal.NewFromInt(n)), currency: m.currency}
}

// DivRound divides by n and rounds half-up to cents. n must be positive.
func (m Money) DivRound(n int64) Money {
	return Money{amount: m.amount.DivRound(decimal.NewFromInt(n), Cents), currency: m.currency}
}

// DivDown divides by n and truncates to cents. n must be positive.
func (m Money) DivDown(n int64) Money {
	return Money{amount: m.amount.Div(decimal.NewFromInt(n)).Truncate(Cents), currency: m.currency}
}

// Round rounds half-up to cents. Amounts are non-negative, so half-away-from-zero
// and half-up coincide.
func (m Money) Round() Money {
	return Money{amount: m.amount.Round(Cents), currency: m.currency}
}

// Sum adds ms; an empty list sums to zero in cur.
func Sum(cur string, ms ...Money) (Money, error) {
	total := Zero(cur)
	for _, m := range ms {
		var err error
		if total, err = total.Add(m); err != nil {
			return Money{}, err
		}
	}
	return total, nil
}

func (m Money) text() string {
	if m.amount.Equal(m.amount.Truncate(Cents)) {
		return m.amount.StringFixed(Cents)
	}
	return m.amount.String()
}

func (m Money) String() string {
	return m.text() + " " + m.currency
}

type moneyJSON struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.text(), Currency: m.currency})
}

func (m *Money) UnmarshalJSON(b []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	parsed, err := New(raw.Amount, raw.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Percentage is a rate in [0,100].
type Percentage struct {
	value decimal.Decimal
}

func NewPercentage(value string) (Percentage, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return Percentage{}, fmt.Errorf("%w: %q", ErrInvalidPercentage, value)
	}
	return PercentageFromDecimal(d)
}

func PercentageFromDecimal(d decimal.Decimal) (Percentage, error) {
	if d.IsNegative() || d.GreaterThan(hundred) {
		return Percentage{}, fmt.Errorf("%w: %s is outside [0,100]", ErrInvalidPercentage, d)
	}
	return Percentage{value: d}, nil
}

func PercentageFromInt(v int64) (Percentage, error) {
	return PercentageFromDecimal(decimal.NewFromInt(v))
}

func MustPercentage(value string) Percentage {
	p, err := NewPercentage(value)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Percentage) Value() decimal.Decimal  { return p.value }
func (p Percentage) IsZero() bool            { return p.value.IsZero() }
func (p Percentage) Equal(o Percentage) bool { return p.value.Equal(o.value) }
func (p Percentage) String() string          { return p.value.String() + "%" }

func (p Percentage) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.value.String())
}

func (p *Percentage) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPercentage, err)
	}
	parsed, err := NewPercentage(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
