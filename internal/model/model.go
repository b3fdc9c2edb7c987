package model

import (
	"time"

	"github.com/iurnickita/importcredit/internal/money"
)

// Заявки на кредит

type ApplicationStatus string

const (
	ApplicationStatusDraft       ApplicationStatus = "draft"
	ApplicationStatusPending     ApplicationStatus = "pending"
	ApplicationStatusUnderReview ApplicationStatus = "under_review"
	ApplicationStatusApproved    ApplicationStatus = "approved"
	ApplicationStatusRejected    ApplicationStatus = "rejected"
	ApplicationStatusCancelled   ApplicationStatus = "cancelled"
)

func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationStatusDraft, ApplicationStatusPending, ApplicationStatusUnderReview,
		ApplicationStatusApproved, ApplicationStatusRejected, ApplicationStatusCancelled:
		return true
	}
	return false
}

// Terminal statuses never change again.
func (s ApplicationStatus) Terminal() bool {
	return s == ApplicationStatusRejected || s == ApplicationStatusCancelled
}

type CreditApplication struct {
	ID              string
	ApplicantID     string
	RequestedAmount money.Money
	Status          ApplicationStatus
	// Finalized is set once the approved terms are locked.
	Finalized *FinalizedTerms
}

// FinalizedTerms are the fields set by the financial institution at finalization.
// A nil rate or nil TermDays means the field was left to the system default.
type FinalizedTerms struct {
	CreditLimit     money.Money
	DownPaymentRate *money.Percentage
	AdminFeeRate    *money.Percentage
	TermDays        []int
	FinalizedAt     time.Time
}

func (a CreditApplication) IsFinalized() bool {
	return a.Status == ApplicationStatusApproved && a.Finalized != nil
}

// FinancialSettings is a per-user override saved by an administrator.
type FinancialSettings struct {
	UserID          string
	DownPaymentRate *money.Percentage
	AdminFeeRate    *money.Percentage
	TermDays        []int
}

// Условия и расчёт

type PaymentMethod string

const (
	PaymentMethodCredit   PaymentMethod = "credit"
	PaymentMethodOwnFunds PaymentMethod = "own_funds"
)

type CreditTerms struct {
	DownPaymentRate money.Percentage `json:"down_payment_rate"`
	AdminFeeRate    money.Percentage `json:"admin_fee_rate"`
	TermDays        []int            `json:"term_days"`
}

type Installment struct {
	Number    int         `json:"number"`
	DueInDays int         `json:"due_in_days"`
	Amount    money.Money `json:"amount"`
}

type SettlementResult struct {
	TotalValue        money.Money   `json:"total_value"`
	DownPayment       money.Money   `json:"down_payment"`
	FinancedAmount    money.Money   `json:"financed_amount"`
	AdminFeeAmount    money.Money   `json:"admin_fee_amount"`
	TotalCost         money.Money   `json:"total_cost"`
	InstallmentAmount money.Money   `json:"installment_amount"`
	InstallmentCount  int           `json:"installment_count"`
	Installments      []Installment `json:"installments"`
	Terms             CreditTerms   `json:"terms"`
}

// Импорт

type CargoType string

const (
	CargoTypeFCL CargoType = "FCL"
	CargoTypeLCL CargoType = "LCL"
)

type TransportMethod string

const (
	TransportMaritime TransportMethod = "maritimo"
	TransportAir      TransportMethod = "aereo"
)

type Stage string

const (
	StagePlanning         Stage = "planejamento"
	StageProduction       Stage = "producao"
	StageDeliveredAgent   Stage = "entregue_agente"
	StageMaritimeShipping Stage = "transporte_maritimo"
	StageAirShipping      Stage = "transporte_aereo"
	StageCustoms          Stage = "desembaraco"
	StageDomesticShipping Stage = "transporte_nacional"
	StageCompleted        Stage = "concluido"
	StageCancelled        Stage = "cancelado"
)

type ImportStatus string

const (
	ImportStatusPlanning  ImportStatus = "planning"
	ImportStatusActive    ImportStatus = "active"
	ImportStatusCompleted ImportStatus = "completed"
	ImportStatusCancelled ImportStatus = "cancelled"
)

type Product struct {
	Name      string      `json:"name"`
	Quantity  int64       `json:"quantity"`
	UnitPrice money.Money `json:"unit_price"`
}

func (p Product) Total() money.Money {
	return p.UnitPrice.MulInt(p.Quantity)
}

type Import struct {
	ID                  string          `json:"id"`
	OwnerID             string          `json:"owner_id"`
	CargoType           CargoType       `json:"cargo_type"`
	TransportMethod     TransportMethod `json:"transport_method"`
	Incoterm            string          `json:"incoterm"`
	TotalValue          money.Money     `json:"total_value"`
	Stage               Stage           `json:"stage"`
	Status              ImportStatus    `json:"status"`
	PaymentMethod       PaymentMethod   `json:"payment_method"`
	CreditApplicationID string          `json:"credit_application_id,omitempty"`
	// Terms are fixed when the import is created; nil when no plan applies.
	Terms *CreditTerms `json:"terms,omitempty"`
	// Committed is the amount currently counted against the application.
	Committed money.Money `json:"committed"`
	// Released is set once Committed was given back to the application.
	Released  bool      `json:"released"`
	Products  []Product `json:"products"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (i Import) UsesCredit() bool {
	return i.CreditApplicationID != ""
}

// ImportDraft is the caller input for a preview or a new import.
type ImportDraft struct {
	OwnerID             string
	CargoType           CargoType
	TransportMethod     TransportMethod
	Incoterm            string
	TotalValue          money.Money
	Products            []Product
	PaymentMethod       PaymentMethod
	CreditApplicationID string
	// Terms are used for own_funds imports only.
	Terms *CreditTerms
}

// История

type TimelineEntry struct {
	ID            string    `json:"id"`
	ImportID      string    `json:"import_id"`
	PreviousStage Stage     `json:"previous_stage,omitempty"`
	NewStage      Stage     `json:"new_stage"`
	ActorID       string    `json:"actor_id"`
	Timestamp     time.Time `json:"timestamp"`
	Note          string    `json:"note,omitempty"`
}

// Кредитный лимит

// LedgerAccount is the authoritative running total of an application.
type LedgerAccount struct {
	Application CreditApplication
	Used        money.Money
}

type Usage struct {
	ApplicationID string      `json:"application_id"`
	Limit         money.Money `json:"limit"`
	Used          money.Money `json:"used"`
	Available     money.Money `json:"available"`
}
