package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/iurnickita/importcredit/internal/idempotency"
	"github.com/iurnickita/importcredit/internal/ledger"
	"github.com/iurnickita/importcredit/internal/lifecycle"
	"github.com/iurnickita/importcredit/internal/model"
	"github.com/iurnickita/importcredit/internal/money"
	"github.com/iurnickita/importcredit/internal/service/config"
	"github.com/iurnickita/importcredit/internal/service/platformclient"
	"github.com/iurnickita/importcredit/internal/settlement"
	"github.com/iurnickita/importcredit/internal/store"
	"github.com/iurnickita/importcredit/internal/terms"
)

type Service interface {
	PutCreditApplication(ctx context.Context, app model.CreditApplication) error
	PutFinancialSettings(ctx context.Context, settings model.FinancialSettings) error
	PreviewSettlement(ctx context.Context, draft model.ImportDraft) (Preview, error)
	CreateImport(ctx context.Context, requestID string, draft model.ImportDraft, actorID string) (ImportResult, error)
	SetImportValue(ctx context.Context, id string, value money.Money, actorID string) (ImportResult, error)
	AddProduct(ctx context.Context, id string, product model.Product, actorID string) (ImportResult, error)
	UpdateProduct(ctx context.Context, id string, index int, product model.Product, actorID string) (ImportResult, error)
	RemoveProduct(ctx context.Context, id string, index int, actorID string) (ImportResult, error)
	TransitionImport(ctx context.Context, id string, to model.Stage, actorID string, note string) (ImportResult, error)
	CancelImport(ctx context.Context, id string, actorID string, note string) (ImportResult, error)
	GetImport(ctx context.Context, id string) (ImportResult, error)
	GetTimeline(ctx context.Context, id string) ([]model.TimelineEntry, error)
	GetUsage(ctx context.Context, applicationID string) (model.Usage, error)
}

var (
	ErrInsufficientData    = errors.New("insufficient data")
	ErrNotFound            = errors.New("not found")
	ErrInvalidDraft        = errors.New("invalid import draft")
	ErrInvalidApplication  = errors.New("invalid credit application")
	ErrApplicationLocked   = errors.New("credit application is locked")
	ErrProductIndex        = errors.New("product index out of range")
	ErrValueDerived        = errors.New("total value is derived from the product list")
	ErrApplicationNotOwned = errors.New("credit application belongs to another applicant")
)

// Preview is a settlement computed without side effects.
type Preview struct {
	TotalValue money.Money             `json:"total_value"`
	Terms      *model.CreditTerms      `json:"terms,omitempty"`
	Settlement *model.SettlementResult `json:"settlement,omitempty"`
	Usage      *model.Usage            `json:"usage,omitempty"`
}

type ImportResult struct {
	Import     model.Import            `json:"import"`
	Settlement *model.SettlementResult `json:"settlement,omitempty"`
	Usage      *model.Usage            `json:"usage,omitempty"`
	Entry      *model.TimelineEntry    `json:"timeline_entry,omitempty"`
	// Replayed is set when the result belongs to an earlier request with the same id.
	Replayed bool `json:"replayed,omitempty"`
}

type service struct {
	cfg      config.Config
	store    store.Store
	ledger   ledger.Ledger
	keeper   idempotency.Keeper
	platform platformclient.PlatformClient
	zaplog   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func NewService(cfg config.Config, store store.Store, keeper idempotency.Keeper, zaplog *zap.Logger) (Service, error) {
	var platform platformclient.PlatformClient
	if cfg.PlatformAddr != "" {
		platform = platformclient.NewPlatformClient(cfg.PlatformAddr, cfg.PlatformTimeout)
	}

	service := service{
		cfg:      cfg,
		store:    store,
		ledger:   ledger.NewLedger(store),
		keeper:   keeper,
		platform: platform,
		zaplog:   zaplog,
		tracer:   otel.Tracer("github.com/iurnickita/importcredit/internal/service"),
		now:      func() time.Time { return time.Now().UTC() },
	}

	return &service, nil
}

func notFound(err error, what string, id string) error {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, platformclient.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, what, id)
	}
	return err
}

// Заявки и настройки

func sameTerms(a, b *model.FinalizedTerms) bool {
	if a == nil || b == nil {
		return a == b
	}
	samePct := func(x, y *money.Percentage) bool {
		if x == nil || y == nil {
			return x == y
		}
		return x.Equal(*y)
	}
	if !a.CreditLimit.Equal(b.CreditLimit) || !samePct(a.DownPaymentRate, b.DownPaymentRate) ||
		!samePct(a.AdminFeeRate, b.AdminFeeRate) || (a.TermDays == nil) != (b.TermDays == nil) ||
		len(a.TermDays) != len(b.TermDays) {
		return false
	}
	for i := range a.TermDays {
		if a.TermDays[i] != b.TermDays[i] {
			return false
		}
	}
	return true
}

func validateApplication(app *model.CreditApplication) error {
	if app.ID == "" || app.ApplicantID == "" {
		return ErrInsufficientData
	}
	if !app.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidApplication, app.Status)
	}
	fin := app.Finalized
	if fin == nil {
		return nil
	}
	if app.Status != model.ApplicationStatusApproved && !app.Status.Terminal() {
		return fmt.Errorf("%w: %s application cannot carry finalized terms", ErrInvalidApplication, app.Status)
	}
	if fin.CreditLimit.Currency() != app.RequestedAmount.Currency() {
		return fmt.Errorf("%w: limit %s is not in %s", money.ErrCurrencyMismatch, fin.CreditLimit, app.RequestedAmount.Currency())
	}
	if fin.TermDays != nil {
		days, err := terms.NormalizeTermDays(fin.TermDays)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidApplication, err)
		}
		fin.TermDays = days
	}
	return nil
}

// PutCreditApplication stores the latest snapshot of an application. Rejected
// and cancelled applications never change again, and finalized terms are
// locked once set.
func (service *service) PutCreditApplication(ctx context.Context, app model.CreditApplication) error {
	ctx, span := service.tracer.Start(ctx, "PutCreditApplication", trace.WithAttributes(attribute.String("application.id", app.ID)))
	defer span.End()

	if err := validateApplication(&app); err != nil {
		return err
	}

	err := service.store.InTx(ctx, func(tx store.Tx) error {
		account, err := tx.AccountLock(ctx, app.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return tx.ApplicationUpsert(ctx, app)
		case err != nil:
			return err
		}

		prev := account.Application
		if prev.RequestedAmount.Currency() != app.RequestedAmount.Currency() {
			return fmt.Errorf("%w: application %s currency is %s", ErrApplicationLocked, app.ID, prev.RequestedAmount.Currency())
		}
		if prev.Status.Terminal() && prev.Status != app.Status {
			return fmt.Errorf("%w: application %s is %s", ErrApplicationLocked, app.ID, prev.Status)
		}
		if prev.Finalized != nil && !sameTerms(prev.Finalized, app.Finalized) {
			return fmt.Errorf("%w: application %s terms were finalized at %s", ErrApplicationLocked, app.ID, prev.Finalized.FinalizedAt.Format(time.RFC3339))
		}
		return tx.ApplicationUpsert(ctx, app)
	})
	if err != nil {
		return err
	}

	service.zaplog.Info("credit application stored",
		zap.String("application_id", app.ID),
		zap.String("status", string(app.Status)),
		zap.Bool("finalized", app.IsFinalized()),
	)
	return nil
}

func (service *service) PutFinancialSettings(ctx context.Context, settings model.FinancialSettings) error {
	if settings.UserID == "" {
		return ErrInsufficientData
	}
	if settings.TermDays != nil {
		days, err := terms.NormalizeTermDays(settings.TermDays)
		if err != nil {
			return err
		}
		settings.TermDays = days
	}
	return service.store.SettingsPut(ctx, settings)
}

// applicationFor loads the application and the owner's settings, refreshing
// both from the platform when one is configured.
func (service *service) applicationFor(ctx context.Context, applicationID string, ownerID string) (*model.CreditApplication, *model.FinancialSettings, error) {
	if service.platform != nil {
		app, err := service.platform.GetCreditApplication(ctx, applicationID)
		if err != nil {
			return nil, nil, notFound(err, "credit application", applicationID)
		}
		if err = service.PutCreditApplication(ctx, app); err != nil {
			return nil, nil, err
		}
		settings, err := service.platform.GetFinancialSettings(ctx, ownerID)
		if err != nil {
			return nil, nil, err
		}
		if settings != nil {
			if err = service.PutFinancialSettings(ctx, *settings); err != nil {
				return nil, nil, err
			}
		}
	}

	account, err := service.store.Account(ctx, applicationID)
	if err != nil {
		return nil, nil, notFound(err, "credit application", applicationID)
	}
	settings, err := service.store.SettingsGet(ctx, ownerID)
	if err != nil {
		return nil, nil, err
	}
	return &account.Application, settings, nil
}

// Расчёт

func validateDraft(draft model.ImportDraft) error {
	if draft.OwnerID == "" {
		return ErrInsufficientData
	}
	if draft.CargoType != model.CargoTypeFCL && draft.CargoType != model.CargoTypeLCL {
		return fmt.Errorf("%w: unknown cargo type %q", ErrInvalidDraft, draft.CargoType)
	}
	if _, err := lifecycle.TransportStage(draft.TransportMethod); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDraft, err)
	}
	switch draft.PaymentMethod {
	case model.PaymentMethodCredit:
		if draft.CreditApplicationID == "" {
			return terms.ErrApplicationRequired
		}
		if draft.Terms != nil {
			return fmt.Errorf("%w: credit imports take their terms from the application", ErrInvalidDraft)
		}
	case model.PaymentMethodOwnFunds:
		if draft.CreditApplicationID != "" {
			return fmt.Errorf("%w: own_funds imports do not reference a credit application", ErrInvalidDraft)
		}
	default:
		return fmt.Errorf("%w: %q", terms.ErrUnknownPaymentMethod, draft.PaymentMethod)
	}
	for _, p := range draft.Products {
		if err := settlement.ValidateProduct(p); err != nil {
			return err
		}
	}
	return nil
}

// termsFor resolves the credit terms of a draft. Own-funds drafts skip the
// resolver and use the caller's terms, if any.
func (service *service) termsFor(ctx context.Context, draft model.ImportDraft) (*model.CreditTerms, error) {
	if draft.PaymentMethod == model.PaymentMethodOwnFunds {
		if draft.Terms == nil {
			return nil, nil
		}
		days, err := terms.NormalizeTermDays(draft.Terms.TermDays)
		if err != nil {
			return nil, err
		}
		t := *draft.Terms
		t.TermDays = days
		return &t, nil
	}

	app, settings, err := service.applicationFor(ctx, draft.CreditApplicationID, draft.OwnerID)
	if err != nil {
		return nil, err
	}
	if app.ApplicantID != draft.OwnerID {
		return nil, fmt.Errorf("%w: application %s, importer %s", ErrApplicationNotOwned, app.ID, draft.OwnerID)
	}
	return terms.Resolve(draft.PaymentMethod, app, settings)
}

func settle(value money.Money, t *model.CreditTerms) (*model.SettlementResult, error) {
	if t == nil {
		if !value.IsPositive() {
			return nil, fmt.Errorf("%w: total value %s must be positive", settlement.ErrInvalidSettlementInput, value)
		}
		return nil, nil
	}
	res, err := settlement.Calculate(value, *t)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (service *service) PreviewSettlement(ctx context.Context, draft model.ImportDraft) (Preview, error) {
	ctx, span := service.tracer.Start(ctx, "PreviewSettlement")
	defer span.End()

	if err := validateDraft(draft); err != nil {
		return Preview{}, err
	}
	value, err := settlement.DeclaredValue(draft.CargoType, draft.TotalValue, draft.Products)
	if err != nil {
		return Preview{}, err
	}
	t, err := service.termsFor(ctx, draft)
	if err != nil {
		return Preview{}, err
	}
	res, err := settle(value, t)
	if err != nil {
		return Preview{}, err
	}

	preview := Preview{TotalValue: value, Terms: t, Settlement: res}
	if draft.PaymentMethod == model.PaymentMethodCredit {
		usage, err := service.ledger.Usage(ctx, draft.CreditApplicationID)
		if err != nil {
			return Preview{}, notFound(err, "credit application", draft.CreditApplicationID)
		}
		preview.Usage = &usage
	}
	return preview, nil
}

// Импорты

func (service *service) CreateImport(ctx context.Context, requestID string, draft model.ImportDraft, actorID string) (result ImportResult, err error) {
	ctx, span := service.tracer.Start(ctx, "CreateImport", trace.WithAttributes(attribute.String("request.id", requestID)))
	defer span.End()

	// ключи запросов у каждого пользователя свои
	if requestID != "" {
		requestID = actorID + ":" + requestID
		importID, done, err := service.keeper.Begin(ctx, requestID)
		if err != nil {
			return ImportResult{}, err
		}
		if done {
			result, err := service.GetImport(ctx, importID)
			result.Replayed = true
			return result, err
		}
		defer func() {
			if err != nil {
				if abortErr := service.keeper.Abort(ctx, requestID); abortErr != nil {
					service.zaplog.Warn("request key not released", zap.String("request_id", requestID), zap.Error(abortErr))
				}
			}
		}()
	}

	if err = validateDraft(draft); err != nil {
		return ImportResult{}, err
	}
	value, err := settlement.DeclaredValue(draft.CargoType, draft.TotalValue, draft.Products)
	if err != nil {
		return ImportResult{}, err
	}
	t, err := service.termsFor(ctx, draft)
	if err != nil {
		return ImportResult{}, err
	}
	res, err := settle(value, t)
	if err != nil {
		return ImportResult{}, err
	}

	now := service.now()
	imp := model.Import{
		ID:                  uuid.NewString(),
		OwnerID:             draft.OwnerID,
		CargoType:           draft.CargoType,
		TransportMethod:     draft.TransportMethod,
		Incoterm:            draft.Incoterm,
		TotalValue:          value,
		Stage:               model.StagePlanning,
		Status:              lifecycle.StatusOf(model.StagePlanning),
		PaymentMethod:       draft.PaymentMethod,
		CreditApplicationID: draft.CreditApplicationID,
		Terms:               t,
		Products:            draft.Products,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	entry := lifecycle.Created(imp, actorID, now)

	var usage *model.Usage
	err = service.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if usage, err = ledger.Commit(ctx, tx, &imp); err != nil {
			return err
		}
		if err = tx.ImportInsert(ctx, imp); err != nil {
			return err
		}
		return tx.TimelineAppend(ctx, entry)
	})
	if err != nil {
		service.logRejection("import not created", imp, err)
		return ImportResult{}, notFound(err, "credit application", draft.CreditApplicationID)
	}

	if requestID != "" {
		service.completeRequest(ctx, requestID, imp.ID)
	}

	service.zaplog.Info("import created",
		zap.String("import_id", imp.ID),
		zap.String("actor_id", actorID),
		zap.String("application_id", imp.CreditApplicationID),
		zap.String("total_value", imp.TotalValue.String()),
		zap.String("committed", imp.Committed.String()),
	)
	return ImportResult{Import: imp, Settlement: res, Usage: usage, Entry: &entry}, nil
}

// completeRequest records the created import under its request key. A key that
// cannot be completed is dropped, so a retry creates a new import rather than
// waiting out the key's TTL.
func (service *service) completeRequest(ctx context.Context, requestID string, importID string) {
	err := service.keeper.Complete(ctx, requestID, importID)
	if err == nil {
		return
	}
	if err = service.keeper.Complete(ctx, requestID, importID); err == nil {
		return
	}
	service.zaplog.Warn("request key not completed", zap.String("request_id", requestID), zap.String("import_id", importID), zap.Error(err))
	if abortErr := service.keeper.Abort(ctx, requestID); abortErr != nil {
		service.zaplog.Warn("request key not released", zap.String("request_id", requestID), zap.Error(abortErr))
	}
}

func (service *service) logRejection(msg string, imp model.Import, err error) {
	var creditErr *ledger.InsufficientCreditError
	if errors.As(err, &creditErr) {
		service.zaplog.Info(msg,
			zap.String("import_id", imp.ID),
			zap.String("application_id", creditErr.ApplicationID),
			zap.String("requested", creditErr.Requested.String()),
			zap.String("available", creditErr.Available.String()),
		)
		return
	}
	service.zaplog.Info(msg, zap.String("import_id", imp.ID), zap.Error(err))
}

// edit applies fn to an import in planejamento, recomputes its value and
// moves the ledger commitment by the difference, all in one unit of work.
// productsChanged makes an LCL import take its value from the product list.
func (service *service) edit(ctx context.Context, id string, actorID string, action string, productsChanged bool, fn func(imp *model.Import) error) (ImportResult, error) {
	ctx, span := service.tracer.Start(ctx, action, trace.WithAttributes(attribute.String("import.id", id)))
	defer span.End()

	var (
		imp   model.Import
		res   *model.SettlementResult
		usage *model.Usage
	)
	err := service.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if imp, err = tx.ImportLock(ctx, id); err != nil {
			return notFound(err, "import", id)
		}
		if err = lifecycle.CheckEditable(imp); err != nil {
			return err
		}
		if err = fn(&imp); err != nil {
			return err
		}

		value := imp.TotalValue
		if imp.CargoType == model.CargoTypeLCL && productsChanged {
			if value, err = settlement.ProductsTotal(imp.TotalValue.Currency(), imp.Products); err != nil {
				return err
			}
		}
		if res, err = settle(value, imp.Terms); err != nil {
			return err
		}
		if usage, err = ledger.Adjust(ctx, tx, &imp, value); err != nil {
			return err
		}
		imp.TotalValue = value
		imp.UpdatedAt = service.now()
		return tx.ImportSave(ctx, imp)
	})
	if err != nil {
		service.logRejection(action+" rejected", imp, err)
		return ImportResult{}, err
	}

	service.zaplog.Info("import edited",
		zap.String("import_id", id),
		zap.String("action", action),
		zap.String("actor_id", actorID),
		zap.String("total_value", imp.TotalValue.String()),
	)
	return ImportResult{Import: imp, Settlement: res, Usage: usage}, nil
}

func checkProduct(imp *model.Import, product model.Product) error {
	if err := settlement.ValidateProduct(product); err != nil {
		return err
	}
	if product.UnitPrice.Currency() != imp.TotalValue.Currency() {
		return fmt.Errorf("%w: product %s priced in %s, import in %s", money.ErrCurrencyMismatch,
			product.Name, product.UnitPrice.Currency(), imp.TotalValue.Currency())
	}
	return nil
}

func (service *service) SetImportValue(ctx context.Context, id string, value money.Money, actorID string) (ImportResult, error) {
	return service.edit(ctx, id, actorID, "SetImportValue", false, func(imp *model.Import) error {
		if imp.CargoType == model.CargoTypeLCL && len(imp.Products) > 0 {
			return fmt.Errorf("%w: import %s", ErrValueDerived, imp.ID)
		}
		if value.Currency() != imp.TotalValue.Currency() {
			return fmt.Errorf("%w: %s for an import in %s", money.ErrCurrencyMismatch, value, imp.TotalValue.Currency())
		}
		imp.TotalValue = value
		return nil
	})
}

func (service *service) AddProduct(ctx context.Context, id string, product model.Product, actorID string) (ImportResult, error) {
	return service.edit(ctx, id, actorID, "AddProduct", true, func(imp *model.Import) error {
		if err := checkProduct(imp, product); err != nil {
			return err
		}
		imp.Products = append(imp.Products, product)
		return nil
	})
}

func (service *service) UpdateProduct(ctx context.Context, id string, index int, product model.Product, actorID string) (ImportResult, error) {
	return service.edit(ctx, id, actorID, "UpdateProduct", true, func(imp *model.Import) error {
		if index < 0 || index >= len(imp.Products) {
			return fmt.Errorf("%w: %d of %d", ErrProductIndex, index, len(imp.Products))
		}
		if err := checkProduct(imp, product); err != nil {
			return err
		}
		imp.Products[index] = product
		return nil
	})
}

func (service *service) RemoveProduct(ctx context.Context, id string, index int, actorID string) (ImportResult, error) {
	return service.edit(ctx, id, actorID, "RemoveProduct", true, func(imp *model.Import) error {
		if index < 0 || index >= len(imp.Products) {
			return fmt.Errorf("%w: %d of %d", ErrProductIndex, index, len(imp.Products))
		}
		imp.Products = append(imp.Products[:index], imp.Products[index+1:]...)
		return nil
	})
}

// TransitionImport moves the import one stage. Entering cancelado releases the
// import's credit in the same unit of work that records the stage change.
func (service *service) TransitionImport(ctx context.Context, id string, to model.Stage, actorID string, note string) (ImportResult, error) {
	ctx, span := service.tracer.Start(ctx, "TransitionImport", trace.WithAttributes(
		attribute.String("import.id", id),
		attribute.String("import.stage", string(to)),
	))
	defer span.End()

	var (
		imp   model.Import
		entry *model.TimelineEntry
		usage *model.Usage
	)
	err := service.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if imp, err = tx.ImportLock(ctx, id); err != nil {
			return notFound(err, "import", id)
		}
		// a repeated cancellation is answered with the current state
		if to == model.StageCancelled && imp.Stage == model.StageCancelled {
			usage, err = ledger.Release(ctx, tx, &imp)
			return err
		}

		e, err := lifecycle.Transition(&imp, to, actorID, note, service.now())
		if err != nil {
			return err
		}
		entry = &e
		if to == model.StageCancelled {
			if usage, err = ledger.Release(ctx, tx, &imp); err != nil {
				return err
			}
		}
		if err = tx.ImportSave(ctx, imp); err != nil {
			return err
		}
		return tx.TimelineAppend(ctx, e)
	})
	if err != nil {
		service.logRejection("transition rejected", imp, err)
		return ImportResult{}, err
	}

	if entry != nil {
		fields := []zap.Field{
			zap.String("import_id", id),
			zap.String("from", string(entry.PreviousStage)),
			zap.String("to", string(entry.NewStage)),
			zap.String("actor_id", actorID),
		}
		if usage != nil {
			fields = append(fields, zap.String("released", imp.Committed.String()), zap.String("available", usage.Available.String()))
		}
		service.zaplog.Info("import stage changed", fields...)
	}

	res, err := settle(imp.TotalValue, imp.Terms)
	if err != nil {
		return ImportResult{}, err
	}
	return ImportResult{Import: imp, Settlement: res, Usage: usage, Entry: entry}, nil
}

func (service *service) CancelImport(ctx context.Context, id string, actorID string, note string) (ImportResult, error) {
	return service.TransitionImport(ctx, id, model.StageCancelled, actorID, note)
}

func (service *service) GetImport(ctx context.Context, id string) (ImportResult, error) {
	if id == "" {
		return ImportResult{}, ErrInsufficientData
	}
	imp, err := service.store.ImportGet(ctx, id)
	if err != nil {
		return ImportResult{}, notFound(err, "import", id)
	}
	res, err := settle(imp.TotalValue, imp.Terms)
	if err != nil {
		return ImportResult{}, err
	}
	result := ImportResult{Import: imp, Settlement: res}
	if imp.UsesCredit() {
		usage, err := service.ledger.Usage(ctx, imp.CreditApplicationID)
		if err != nil {
			return ImportResult{}, err
		}
		result.Usage = &usage
	}
	return result, nil
}

func (service *service) GetTimeline(ctx context.Context, id string) ([]model.TimelineEntry, error) {
	if id == "" {
		return nil, ErrInsufficientData
	}
	entries, err := service.store.ImportTimeline(ctx, id)
	if err != nil {
		return nil, notFound(err, "import", id)
	}
	return entries, nil
}

func (service *service) GetUsage(ctx context.Context, applicationID string) (model.Usage, error) {
	if applicationID == "" {
		return model.Usage{}, ErrInsufficientData
	}
	usage, err := service.ledger.Usage(ctx, applicationID)
	if err != nil {
		return model.Usage{}, notFound(err, "credit application", applicationID)
	}
	return usage, nil
}
