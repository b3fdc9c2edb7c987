package model

import (
	"time"

	"github.com/iurnickita/importcredit/internal/money"
)

// Снимки записей внешней платформы.
// Суммы и ставки передаются строками, чтобы не терять точность.

// ApplicationSnapshot is the wire form of a credit application.
type ApplicationSnapshot struct {
	ID                      string     `json:"id" validate:"required"`
	ApplicantID             string     `json:"applicant_id" validate:"required"`
	RequestedAmount         string     `json:"requested_amount" validate:"required"`
	Currency                string     `json:"currency" validate:"required,len=3"`
	Status                  string     `json:"status" validate:"required,oneof=draft pending under_review approved rejected cancelled"`
	FinalCreditLimit        *string    `json:"final_credit_limit,omitempty"`
	FinalDownPaymentPercent *string    `json:"final_down_payment_percent,omitempty"`
	FinalAdminFeePercent    *string    `json:"final_admin_fee_percent,omitempty"`
	FinalApprovedTerms      []int      `json:"final_approved_terms,omitempty" validate:"omitempty,dive,gt=0"`
	FinalizedAt             *time.Time `json:"finalized_at,omitempty"`
}

func ratePtr(s *string) (*money.Percentage, error) {
	if s == nil {
		return nil, nil
	}
	p, err := money.NewPercentage(*s)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s ApplicationSnapshot) ToModel() (CreditApplication, error) {
	requested, err := money.New(s.RequestedAmount, s.Currency)
	if err != nil {
		return CreditApplication{}, err
	}
	app := CreditApplication{
		ID:              s.ID,
		ApplicantID:     s.ApplicantID,
		RequestedAmount: requested,
		Status:          ApplicationStatus(s.Status),
	}
	if s.FinalCreditLimit == nil || s.FinalizedAt == nil {
		return app, nil
	}

	fin := FinalizedTerms{TermDays: s.FinalApprovedTerms, FinalizedAt: s.FinalizedAt.UTC()}
	if fin.CreditLimit, err = money.New(*s.FinalCreditLimit, s.Currency); err != nil {
		return CreditApplication{}, err
	}
	if fin.DownPaymentRate, err = ratePtr(s.FinalDownPaymentPercent); err != nil {
		return CreditApplication{}, err
	}
	if fin.AdminFeeRate, err = ratePtr(s.FinalAdminFeePercent); err != nil {
		return CreditApplication{}, err
	}
	app.Finalized = &fin
	return app, nil
}

// SettingsSnapshot is the wire form of FinancialSettings. Absent fields fall
// through to the application's terms.
type SettingsSnapshot struct {
	DownPaymentPercent *string `json:"down_payment_percent,omitempty"`
	AdminFeePercent    *string `json:"admin_fee_percent,omitempty"`
	TermDays           []int   `json:"term_days,omitempty" validate:"omitempty,dive,gt=0"`
}

func (s SettingsSnapshot) ToModel(userID string) (FinancialSettings, error) {
	var (
		settings = FinancialSettings{UserID: userID, TermDays: s.TermDays}
		err      error
	)
	if settings.DownPaymentRate, err = ratePtr(s.DownPaymentPercent); err != nil {
		return FinancialSettings{}, err
	}
	if settings.AdminFeeRate, err = ratePtr(s.AdminFeePercent); err != nil {
		return FinancialSettings{}, err
	}
	return settings, nil
}
