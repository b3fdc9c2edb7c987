package settlement

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/iurnickita/importcredit/internal/model"
	"github.com/iurnickita/importcredit/internal/money"
)

func usd(v string) money.Money { return money.MustNew(v, "USD") }

func creditTerms(down, fee string, days ...int) model.CreditTerms {
	return model.CreditTerms{
		DownPaymentRate: money.MustPercentage(down),
		AdminFeeRate:    money.MustPercentage(fee),
		TermDays:        days,
	}
}

func requireMoney(t *testing.T, want string, got money.Money) {
	t.Helper()
	require.True(t, usd(want).Equal(got), "want %s USD, got %s", want, got)
}

func TestCalculateThreeInstallments(t *testing.T) {
	res, err := Calculate(usd("100000"), creditTerms("30", "10", 30, 60, 90))
	require.NoError(t, err)

	requireMoney(t, "30000", res.DownPayment)
	requireMoney(t, "70000", res.FinancedAmount)
	requireMoney(t, "7000", res.AdminFeeAmount)
	requireMoney(t, "107000", res.TotalCost)
	requireMoney(t, "23333.33", res.InstallmentAmount)
	require.Equal(t, 3, res.InstallmentCount)
	require.Len(t, res.Installments, 3)
	requireMoney(t, "23333.33", res.Installments[0].Amount)
	requireMoney(t, "23333.33", res.Installments[1].Amount)
	requireMoney(t, "23333.34", res.Installments[2].Amount)
	require.Equal(t, 90, res.Installments[2].DueInDays)
	require.Equal(t, 3, res.Installments[2].Number)
}

func TestCalculateBoundaries(t *testing.T) {
	t.Run("no down payment", func(t *testing.T) {
		res, err := Calculate(usd("1000"), creditTerms("0", "0", 30))
		require.NoError(t, err)
		requireMoney(t, "0", res.DownPayment)
		requireMoney(t, "1000", res.FinancedAmount)
	})

	t.Run("full down payment", func(t *testing.T) {
		res, err := Calculate(usd("1000"), creditTerms("100", "10", 30, 60))
		require.NoError(t, err)
		requireMoney(t, "0", res.FinancedAmount)
		requireMoney(t, "0", res.AdminFeeAmount)
		requireMoney(t, "1000", res.TotalCost)
		for _, inst := range res.Installments {
			requireMoney(t, "0", inst.Amount)
		}
	})

	t.Run("no term days", func(t *testing.T) {
		res, err := Calculate(usd("1000"), creditTerms("30", "10"))
		require.NoError(t, err)
		requireMoney(t, "700", res.FinancedAmount)
		require.Zero(t, res.InstallmentCount)
		require.Empty(t, res.Installments)
		requireMoney(t, "0", res.InstallmentAmount)
	})

	t.Run("non-positive value", func(t *testing.T) {
		_, err := Calculate(usd("0"), creditTerms("30", "0", 30))
		require.ErrorIs(t, err, ErrInvalidSettlementInput)
	})

	t.Run("bad term days", func(t *testing.T) {
		_, err := Calculate(usd("10"), creditTerms("30", "0", 30, 30))
		require.ErrorIs(t, err, ErrInvalidSettlementInput)
	})

	t.Run("rounding is applied once", func(t *testing.T) {
		// 33.33% of 100.05 = 33.346665 -> 33.35
		res, err := Calculate(usd("100.05"), creditTerms("33.33", "1.5", 30))
		require.NoError(t, err)
		requireMoney(t, "33.35", res.DownPayment)
		requireMoney(t, "66.70", res.FinancedAmount)
		// 1.5% of 66.70 = 1.0005 -> 1.00
		requireMoney(t, "1.00", res.AdminFeeAmount)
	})
}

func TestInstallmentsNeverNegative(t *testing.T) {
	// 0.10 over 7 rounds to 0.01, the last takes 0.04
	inst, err := Installments(usd("0.10"), []int{1, 2, 3, 4, 5, 6, 7})
	require.NoError(t, err)
	requireMoney(t, "0.01", inst[0].Amount)
	requireMoney(t, "0.04", inst[6].Amount)

	// 0.05 over 3 rounds half-up to 0.02, leaving 0.01 for the last
	inst, err = Installments(usd("0.05"), []int{1, 2, 3})
	require.NoError(t, err)
	requireMoney(t, "0.02", inst[0].Amount)
	requireMoney(t, "0.01", inst[2].Amount)

	// 0.15 over 10 rounds half-up to 0.02 and would leave -0.03, so the
	// regular amount drops to 0.01
	inst, err = Installments(usd("0.15"), []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	require.NoError(t, err)
	requireMoney(t, "0.01", inst[0].Amount)
	requireMoney(t, "0.06", inst[9].Amount)
}

func TestLCLProducts(t *testing.T) {
	products := []model.Product{
		{Name: "bolts", Quantity: 10, UnitPrice: usd("5.00")},
		{Name: "nuts", Quantity: 4, UnitPrice: usd("12.50")},
	}

	value, err := DeclaredValue(model.CargoTypeLCL, money.Zero("USD"), products)
	require.NoError(t, err)
	requireMoney(t, "100", value)

	fromProducts, err := Calculate(value, creditTerms("30", "10", 30, 60, 90))
	require.NoError(t, err)
	direct, err := Calculate(usd("100"), creditTerms("30", "10", 30, 60, 90))
	require.NoError(t, err)
	require.Equal(t, direct.TotalCost.String(), fromProducts.TotalCost.String())
	require.Equal(t, len(direct.Installments), len(fromProducts.Installments))
	for i := range direct.Installments {
		require.True(t, direct.Installments[i].Amount.Equal(fromProducts.Installments[i].Amount))
	}

	// FCL keeps the entered value
	value, err = DeclaredValue(model.CargoTypeFCL, usd("80"), products)
	require.NoError(t, err)
	requireMoney(t, "80", value)

	// LCL without products keeps the entered value too
	value, err = DeclaredValue(model.CargoTypeLCL, usd("80"), nil)
	require.NoError(t, err)
	requireMoney(t, "80", value)
}

func TestProductValidation(t *testing.T) {
	_, err := ProductsTotal("USD", []model.Product{{Name: "", Quantity: 1, UnitPrice: usd("1")}})
	require.ErrorIs(t, err, ErrInvalidProduct)

	_, err = ProductsTotal("USD", []model.Product{{Name: "x", Quantity: 0, UnitPrice: usd("1")}})
	require.ErrorIs(t, err, ErrInvalidProduct)

	_, err = ProductsTotal("USD", []model.Product{
		{Name: "x", Quantity: 1, UnitPrice: usd("1")},
		{Name: "y", Quantity: 1, UnitPrice: money.MustNew("1", "EUR")},
	})
	require.ErrorIs(t, err, money.ErrCurrencyMismatch)
}

func TestSettlementProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	termDays := gen.IntRange(0, 12).Map(func(n int) []int {
		days := make([]int, n)
		for i := range days {
			days[i] = 30 * (i + 1)
		}
		return days
	})

	properties.Property("parts always add up", prop.ForAll(
		func(cents int64, down int64, fee int64, days []int) bool {
			value, _ := money.FromMinor(cents, "USD")
			downRate, _ := money.PercentageFromInt(down)
			feeRate, _ := money.PercentageFromInt(fee)
			res, err := Calculate(value, model.CreditTerms{DownPaymentRate: downRate, AdminFeeRate: feeRate, TermDays: days})
			if err != nil {
				return false
			}

			parts, err := res.DownPayment.Add(res.FinancedAmount)
			if err != nil || !parts.Equal(value) {
				return false
			}
			cost, err := value.Add(res.AdminFeeAmount)
			if err != nil || !cost.Equal(res.TotalCost) {
				return false
			}
			if res.InstallmentCount != len(res.Installments) {
				return false
			}
			sum := money.Zero("USD")
			for _, inst := range res.Installments {
				if sum, err = sum.Add(inst.Amount); err != nil {
					return false
				}
			}
			return len(days) == 0 || sum.Equal(res.FinancedAmount)
		},
		gen.Int64Range(1, 1_000_000_000_00),
		gen.Int64Range(0, 100),
		gen.Int64Range(0, 100),
		termDays,
	))

	properties.TestingRun(t)
}
