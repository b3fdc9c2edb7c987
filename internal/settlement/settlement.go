// Package settlement turns a declared cargo value and resolved credit terms into
// a payment plan.
package settlement

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iurnickita/importcredit/internal/model"
	"github.com/iurnickita/importcredit/internal/money"
	"github.com/iurnickita/importcredit/internal/terms"
)

var (
	ErrInvalidSettlementInput = errors.New("invalid settlement input")
	ErrInvalidProduct         = errors.New("invalid product")
)

// Calculate computes the plan. The order of the steps is fixed:
// down payment on the full value, financed = value - down payment,
// admin fee on the financed part only, total cost = value + admin fee,
// installments split the financed part with the remainder on the last one.
func Calculate(totalValue money.Money, t model.CreditTerms) (model.SettlementResult, error) {
	if !totalValue.IsPositive() {
		return model.SettlementResult{}, fmt.Errorf("%w: total value %s must be positive", ErrInvalidSettlementInput, totalValue)
	}
	days, err := terms.NormalizeTermDays(t.TermDays)
	if err != nil {
		return model.SettlementResult{}, fmt.Errorf("%w: %w", ErrInvalidSettlementInput, err)
	}
	t.TermDays = days

	downPayment := totalValue.Percent(t.DownPaymentRate).Round()
	financed, err := totalValue.Sub(downPayment)
	if err != nil {
		return model.SettlementResult{}, err
	}
	adminFee := financed.Percent(t.AdminFeeRate).Round()
	totalCost, err := totalValue.Add(adminFee)
	if err != nil {
		return model.SettlementResult{}, err
	}

	res := model.SettlementResult{
		TotalValue:        totalValue,
		DownPayment:       downPayment,
		FinancedAmount:    financed,
		AdminFeeAmount:    adminFee,
		TotalCost:         totalCost,
		InstallmentAmount: money.Zero(totalValue.Currency()),
		InstallmentCount:  len(days),
		Installments:      []model.Installment{},
		Terms:             t,
	}
	if len(days) == 0 {
		// the financed amount is due as a single balance
		return res, nil
	}

	res.Installments, err = Installments(financed, days)
	if err != nil {
		return model.SettlementResult{}, err
	}
	res.InstallmentAmount = res.Installments[0].Amount
	return res, nil
}

// Installments splits financed over days. Every installment but the last is
// financed/len(days) rounded half-up; the last one takes what is left so the
// schedule sums to financed exactly. When rounding up would leave the last
// installment negative (a few cents over many terms) the regular amount is
// rounded down instead.
func Installments(financed money.Money, days []int) ([]model.Installment, error) {
	n := int64(len(days))
	if n == 0 {
		return nil, nil
	}
	regular := financed.DivRound(n)
	last, err := financed.Sub(regular.MulInt(n - 1))
	if err != nil {
		regular = financed.DivDown(n)
		if last, err = financed.Sub(regular.MulInt(n - 1)); err != nil {
			return nil, err
		}
	}

	out := make([]model.Installment, n)
	for i, d := range days {
		out[i] = model.Installment{Number: i + 1, DueInDays: d, Amount: regular}
	}
	out[n-1].Amount = last
	return out, nil
}

// ValidateProduct checks one line of an LCL product list.
func ValidateProduct(p model.Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if p.Quantity <= 0 {
		return fmt.Errorf("%w: %s quantity %d must be positive", ErrInvalidProduct, p.Name, p.Quantity)
	}
	if p.UnitPrice.Currency() == "" {
		return fmt.Errorf("%w: %s has no unit price", ErrInvalidProduct, p.Name)
	}
	return nil
}

// ProductsTotal sums quantity x unit price over products.
func ProductsTotal(cur string, products []model.Product) (money.Money, error) {
	totals := make([]money.Money, 0, len(products))
	for _, p := range products {
		if err := ValidateProduct(p); err != nil {
			return money.Money{}, err
		}
		totals = append(totals, p.Total())
	}
	return money.Sum(cur, totals...)
}

// DeclaredValue is the value a settlement runs on: for LCL cargo with a product
// list it is the product total, otherwise the value the user entered.
func DeclaredValue(cargo model.CargoType, declared money.Money, products []model.Product) (money.Money, error) {
	if cargo == model.CargoTypeLCL && len(products) > 0 {
		cur := declared.Currency()
		if cur == "" {
			cur = products[0].UnitPrice.Currency()
		}
		return ProductsTotal(cur, products)
	}
	return declared, nil
}
