package money

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		cur     string
		want    string
		wantErr error
	}{
		{name: "whole", amount: "100000", cur: "USD", want: "100000.00 USD"},
		{name: "cents", amount: "12.5", cur: "usd", want: "12.50 USD"},
		{name: "zero", amount: "0", cur: "BRL", want: "0.00 BRL"},
		{name: "sub-cent", amount: "0.001", cur: "USD", wantErr: ErrInvalidAmount},
		{name: "negative", amount: "-1", cur: "USD", wantErr: ErrInvalidAmount},
		{name: "garbage", amount: "ten", cur: "USD", wantErr: ErrInvalidAmount},
		{name: "unknown currency", amount: "1", cur: "ZZZ", wantErr: ErrInvalidCurrency},
		{name: "empty currency", amount: "1", cur: "", wantErr: ErrInvalidCurrency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.amount, tt.cur)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, m.String())
		})
	}
}

func TestFromMinor(t *testing.T) {
	m, err := FromMinor(123456, "EUR")
	require.NoError(t, err)
	require.True(t, m.Equal(MustNew("1234.56", "EUR")))
}

func TestArithmetic(t *testing.T) {
	a := MustNew("100.10", "USD")
	b := MustNew("0.90", "USD")

	sum, err := a.Add(b)
	require.NoError(t, err)
	require.Equal(t, "101.00 USD", sum.String())

	diff, err := a.Sub(b)
	require.NoError(t, err)
	require.Equal(t, "99.20 USD", diff.String())

	_, err = b.Sub(a)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = a.Add(MustNew("1", "BRL"))
	require.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = a.Cmp(MustNew("1", "BRL"))
	require.ErrorIs(t, err, ErrCurrencyMismatch)

	cmp, err := a.Cmp(b)
	require.NoError(t, err)
	require.Equal(t, 1, cmp)

	total, err := Sum("USD", a, b, b)
	require.NoError(t, err)
	require.Equal(t, "101.90 USD", total.String())

	empty, err := Sum("USD")
	require.NoError(t, err)
	require.True(t, empty.IsZero())
}

func TestPercentRoundsOnlyOnRequest(t *testing.T) {
	m := MustNew("10.05", "USD")
	half := m.Percent(MustPercentage("50"))

	// 5.025 is kept until Round
	require.Equal(t, "5.025", half.Amount().String())
	require.Equal(t, "5.03 USD", half.Round().String())

	require.Equal(t, "3.33 USD", MustNew("10", "USD").DivRound(3).String())
	require.Equal(t, "3.33 USD", MustNew("10", "USD").DivDown(3).String())
	require.Equal(t, "6.67 USD", MustNew("20", "USD").DivRound(3).String())
	require.Equal(t, "6.66 USD", MustNew("20", "USD").DivDown(3).String())
	require.Equal(t, "37.50 USD", MustNew("12.50", "USD").MulInt(3).String())
}

func TestPercentage(t *testing.T) {
	p, err := NewPercentage("12.5")
	require.NoError(t, err)
	require.Equal(t, "12.5%", p.String())

	_, err = NewPercentage("100.01")
	require.ErrorIs(t, err, ErrInvalidPercentage)
	_, err = NewPercentage("-1")
	require.ErrorIs(t, err, ErrInvalidPercentage)
	_, err = PercentageFromInt(101)
	require.ErrorIs(t, err, ErrInvalidPercentage)

	edge, err := PercentageFromInt(100)
	require.NoError(t, err)
	require.True(t, MustNew("50", "USD").Percent(edge).Equal(MustNew("50", "USD")))
}

func TestJSON(t *testing.T) {
	b, err := json.Marshal(MustNew("30000", "USD"))
	require.NoError(t, err)
	require.JSONEq(t, `{"amount":"30000.00","currency":"USD"}`, string(b))

	var m Money
	require.NoError(t, json.Unmarshal([]byte(`{"amount":"19.99","currency":"brl"}`), &m))
	require.Equal(t, "19.99 BRL", m.String())

	err = json.Unmarshal([]byte(`{"amount":"19.999","currency":"BRL"}`), &m)
	require.ErrorIs(t, err, ErrInvalidAmount)

	var p Percentage
	require.NoError(t, json.Unmarshal([]byte(`"30"`), &p))
	require.True(t, p.Equal(MustPercentage("30")))
	b, err = json.Marshal(p)
	require.NoError(t, err)
	require.Equal(t, `"30"`, string(b))
}

func TestAddSubProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	cents := gen.Int64Range(0, 1_000_000_000_00)

	properties.Property("a + b - b == a", prop.ForAll(
		func(a, b int64) bool {
			ma, _ := FromMinor(a, "USD")
			mb, _ := FromMinor(b, "USD")
			sum, err := ma.Add(mb)
			if err != nil {
				return false
			}
			back, err := sum.Sub(mb)
			return err == nil && back.Equal(ma)
		},
		cents, cents,
	))

	properties.Property("percent of a whole amount rounds to within half a cent", prop.ForAll(
		func(a int64, rate int64) bool {
			ma, _ := FromMinor(a, "USD")
			p, err := PercentageFromInt(rate)
			if err != nil {
				return false
			}
			exact := ma.Percent(p)
			diff := exact.Round().Amount().Sub(exact.Amount()).Abs()
			return diff.LessThanOrEqual(decimal.RequireFromString("0.005"))
		},
		cents, gen.Int64Range(0, 100),
	))

	properties.TestingRun(t)
}
