// Package ledger tracks how much of an application's credit limit is committed
// by imports. Completed imports stay counted; cancelled imports are released
// once.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/iurnickita/importcredit/internal/model"
	"github.com/iurnickita/importcredit/internal/money"
	"github.com/iurnickita/importcredit/internal/store"
	"github.com/iurnickita/importcredit/internal/terms"
)

var (
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrInconsistent       = errors.New("ledger is inconsistent")
	ErrNotCancelled       = errors.New("import is not cancelled")
)

// InsufficientCreditError carries the figures needed to tell the user by how
// much the request missed.
type InsufficientCreditError struct {
	ApplicationID string
	Requested     money.Money
	Available     money.Money
	Limit         money.Money
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("%s exceeds available credit of %s on application %s (limit %s)",
		e.Requested, e.Available, e.ApplicationID, e.Limit)
}

func (e *InsufficientCreditError) Is(target error) bool { return target == ErrInsufficientCredit }

// UsageOf derives limit, used and available from an account row. Applications
// without finalized terms have a zero limit.
func UsageOf(account model.LedgerAccount) (model.Usage, error) {
	app := account.Application
	limit := money.Zero(account.Used.Currency())
	if app.Finalized != nil {
		limit = app.Finalized.CreditLimit
	}
	available, err := limit.Sub(account.Used)
	if err != nil {
		return model.Usage{}, fmt.Errorf("%w: application %s uses %s of %s: %w", ErrInconsistent, app.ID, account.Used, limit, err)
	}
	return model.Usage{
		ApplicationID: app.ID,
		Limit:         limit,
		Used:          account.Used,
		Available:     available,
	}, nil
}

// Reserve adds amount to the application's used total if it fits in the
// available credit. The check and the write happen under the account lock held
// by tx.
func Reserve(ctx context.Context, tx store.Tx, applicationID string, amount money.Money) (model.Usage, error) {
	account, err := tx.AccountLock(ctx, applicationID)
	if err != nil {
		return model.Usage{}, err
	}
	if !account.Application.IsFinalized() {
		return model.Usage{}, fmt.Errorf("%w: application %s is %s", terms.ErrApplicationNotFinalized, applicationID, account.Application.Status)
	}
	usage, err := UsageOf(account)
	if err != nil {
		return model.Usage{}, err
	}
	cmp, err := amount.Cmp(usage.Available)
	if err != nil {
		return model.Usage{}, err
	}
	if cmp > 0 {
		return model.Usage{}, &InsufficientCreditError{
			ApplicationID: applicationID,
			Requested:     amount,
			Available:     usage.Available,
			Limit:         usage.Limit,
		}
	}

	account.Used, err = account.Used.Add(amount)
	if err != nil {
		return model.Usage{}, err
	}
	if err = tx.AccountSetUsed(ctx, applicationID, account.Used); err != nil {
		return model.Usage{}, err
	}
	return UsageOf(account)
}

// give returns amount to the application.
func give(ctx context.Context, tx store.Tx, applicationID string, amount money.Money) (model.Usage, error) {
	account, err := tx.AccountLock(ctx, applicationID)
	if err != nil {
		return model.Usage{}, err
	}
	used, err := account.Used.Sub(amount)
	if err != nil {
		return model.Usage{}, fmt.Errorf("%w: application %s: %w", ErrInconsistent, applicationID, err)
	}
	account.Used = used
	if err = tx.AccountSetUsed(ctx, applicationID, used); err != nil {
		return model.Usage{}, err
	}
	return UsageOf(account)
}

// Commit reserves the full value of a new credit import and records it as the
// import's commitment. Own-funds imports return nil usage.
func Commit(ctx context.Context, tx store.Tx, imp *model.Import) (*model.Usage, error) {
	imp.Committed = money.Zero(imp.TotalValue.Currency())
	if !imp.UsesCredit() {
		return nil, nil
	}
	usage, err := Reserve(ctx, tx, imp.CreditApplicationID, imp.TotalValue)
	if err != nil {
		return nil, err
	}
	imp.Committed = imp.TotalValue
	return &usage, nil
}

// Adjust moves the import's commitment to value: an increase is reserved, a
// decrease is given back.
func Adjust(ctx context.Context, tx store.Tx, imp *model.Import, value money.Money) (*model.Usage, error) {
	if !imp.UsesCredit() {
		imp.Committed = money.Zero(value.Currency())
		return nil, nil
	}
	if imp.Released {
		return nil, fmt.Errorf("%w: import %s was already released", ErrInconsistent, imp.ID)
	}

	cmp, err := value.Cmp(imp.Committed)
	if err != nil {
		return nil, err
	}
	var usage model.Usage
	switch {
	case cmp > 0:
		delta, _ := value.Sub(imp.Committed)
		usage, err = Reserve(ctx, tx, imp.CreditApplicationID, delta)
	case cmp < 0:
		delta, _ := imp.Committed.Sub(value)
		usage, err = give(ctx, tx, imp.CreditApplicationID, delta)
	default:
		var account model.LedgerAccount
		if account, err = tx.AccountLock(ctx, imp.CreditApplicationID); err == nil {
			usage, err = UsageOf(account)
		}
	}
	if err != nil {
		return nil, err
	}
	imp.Committed = value
	return &usage, nil
}

// Release gives the import's commitment back to its application. The import's
// Released flag makes repeated calls no-ops; the caller saves imp in the same tx.
func Release(ctx context.Context, tx store.Tx, imp *model.Import) (*model.Usage, error) {
	if !imp.UsesCredit() {
		return nil, nil
	}
	if imp.Released {
		account, err := tx.AccountLock(ctx, imp.CreditApplicationID)
		if err != nil {
			return nil, err
		}
		usage, err := UsageOf(account)
		return &usage, err
	}
	usage, err := give(ctx, tx, imp.CreditApplicationID, imp.Committed)
	if err != nil {
		return nil, err
	}
	imp.Released = true
	return &usage, nil
}

type Ledger interface {
	Usage(ctx context.Context, applicationID string) (model.Usage, error)
	Reserve(ctx context.Context, applicationID string, amount money.Money) (model.Usage, error)
	Release(ctx context.Context, importID string) (*model.Usage, error)
}

type ledger struct {
	store store.Store
}

func NewLedger(store store.Store) Ledger {
	ledger := ledger{store: store}
	return &ledger
}

func (ledger *ledger) Usage(ctx context.Context, applicationID string) (model.Usage, error) {
	account, err := ledger.store.Account(ctx, applicationID)
	if err != nil {
		return model.Usage{}, err
	}
	return UsageOf(account)
}

// Reserve commits amount outside of any import, e.g. for an import created by
// another system that only reports its value.
func (ledger *ledger) Reserve(ctx context.Context, applicationID string, amount money.Money) (model.Usage, error) {
	var usage model.Usage
	err := ledger.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		usage, err = Reserve(ctx, tx, applicationID, amount)
		return err
	})
	return usage, err
}

// Release looks a cancelled import up by id and releases its commitment.
func (ledger *ledger) Release(ctx context.Context, importID string) (*model.Usage, error) {
	var usage *model.Usage
	err := ledger.store.InTx(ctx, func(tx store.Tx) error {
		imp, err := tx.ImportLock(ctx, importID)
		if err != nil {
			return err
		}
		if imp.Stage != model.StageCancelled {
			return fmt.Errorf("%w: import %s is in stage %s", ErrNotCancelled, imp.ID, imp.Stage)
		}
		wasReleased := imp.Released
		if usage, err = Release(ctx, tx, &imp); err != nil {
			return err
		}
		if wasReleased || !imp.UsesCredit() {
			return nil
		}
		return tx.ImportSave(ctx, imp)
	})
	return usage, err
}
