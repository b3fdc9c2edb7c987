// Package terms picks the down payment rate, admin fee rate and term days that
// apply to one settlement.
//
// Precedence, highest first: the user's saved FinancialSettings, the credit
// application's finalized fields, the system default.
package terms

import (
	"errors"
	"fmt"
	"sort"

	"github.com/iurnickita/importcredit/internal/model"
	"github.com/iurnickita/importcredit/internal/money"
)

var (
	ErrApplicationNotFinalized = errors.New("credit application is not finalized")
	ErrApplicationRequired     = errors.New("credit application is required for credit imports")
	ErrUnknownPaymentMethod    = errors.New("unknown payment method")
	ErrInvalidTermDays         = errors.New("invalid term days")
)

// Default returns the system default terms.
func Default() model.CreditTerms {
	return model.CreditTerms{
		DownPaymentRate: money.MustPercentage("30"),
		AdminFeeRate:    money.MustPercentage("0"),
		TermDays:        []int{30},
	}
}

// Resolve returns nil terms for own_funds imports.
func Resolve(method model.PaymentMethod, app *model.CreditApplication, settings *model.FinancialSettings) (*model.CreditTerms, error) {
	switch method {
	case model.PaymentMethodOwnFunds:
		return nil, nil
	case model.PaymentMethodCredit:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, method)
	}

	if app == nil {
		return nil, ErrApplicationRequired
	}
	if !app.IsFinalized() {
		return nil, fmt.Errorf("%w: application %s is %s", ErrApplicationNotFinalized, app.ID, app.Status)
	}

	resolved := Default()
	fin := app.Finalized
	if fin.DownPaymentRate != nil {
		resolved.DownPaymentRate = *fin.DownPaymentRate
	}
	if fin.AdminFeeRate != nil {
		resolved.AdminFeeRate = *fin.AdminFeeRate
	}
	if fin.TermDays != nil {
		resolved.TermDays = fin.TermDays
	}

	if settings != nil {
		if settings.DownPaymentRate != nil {
			resolved.DownPaymentRate = *settings.DownPaymentRate
		}
		if settings.AdminFeeRate != nil {
			resolved.AdminFeeRate = *settings.AdminFeeRate
		}
		if settings.TermDays != nil {
			resolved.TermDays = settings.TermDays
		}
	}

	days, err := NormalizeTermDays(resolved.TermDays)
	if err != nil {
		return nil, err
	}
	resolved.TermDays = days
	return &resolved, nil
}

// NormalizeTermDays returns a sorted copy. Days must be positive and unique.
func NormalizeTermDays(days []int) ([]int, error) {
	out := make([]int, len(days))
	copy(out, days)
	sort.Ints(out)
	for i, d := range out {
		if d <= 0 {
			return nil, fmt.Errorf("%w: %d is not positive", ErrInvalidTermDays, d)
		}
		if i > 0 && out[i-1] == d {
			return nil, fmt.Errorf("%w: %d is repeated", ErrInvalidTermDays, d)
		}
	}
	return out, nil
}
