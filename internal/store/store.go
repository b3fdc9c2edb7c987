package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/iurnickita/importcredit/internal/model"
	"github.com/iurnickita/importcredit/internal/money"
	"github.com/iurnickita/importcredit/internal/store/config"
)

// Store is the persistence collaborator of the core. Everything that must change
// together (import, ledger total, timeline) is written inside one InTx call.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Account(ctx context.Context, applicationID string) (model.LedgerAccount, error)
	SettingsGet(ctx context.Context, userID string) (*model.FinancialSettings, error)
	SettingsPut(ctx context.Context, settings model.FinancialSettings) error
	ImportGet(ctx context.Context, id string) (model.Import, error)
	ImportTimeline(ctx context.Context, id string) ([]model.TimelineEntry, error)
	Close() error
}

// Tx is one unit of work. Lock methods hold their row until the unit of work
// ends, so a check made on a locked row stays true until commit.
type Tx interface {
	AccountLock(ctx context.Context, applicationID string) (model.LedgerAccount, error)
	AccountSetUsed(ctx context.Context, applicationID string, used money.Money) error
	ApplicationUpsert(ctx context.Context, app model.CreditApplication) error
	ImportLock(ctx context.Context, id string) (model.Import, error)
	ImportInsert(ctx context.Context, imp model.Import) error
	ImportSave(ctx context.Context, imp model.Import) error
	TimelineAppend(ctx context.Context, entry model.TimelineEntry) error
}

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// NewStore opens PostgreSQL when a DSN is configured and falls back to the
// in-memory store otherwise.
func NewStore(cfg config.Config) (Store, error) {
	if cfg.DBDsn == "" {
		return NewMemStore(), nil
	}

	db, err := sql.Open("pgx", cfg.DBDsn)
	if err != nil {
		return nil, err
	}
	store := newPGStore(db)
	if err = store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// term days are kept as "30,60,90"; NULL means unset, "" means none
func encodeDays(days []int) sql.NullString {
	if days == nil {
		return sql.NullString{}
	}
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return sql.NullString{String: strings.Join(parts, ","), Valid: true}
}

func decodeDays(s sql.NullString) ([]int, error) {
	if !s.Valid {
		return nil, nil
	}
	days := []int{}
	if s.String == "" {
		return days, nil
	}
	for _, part := range strings.Split(s.String, ",") {
		d, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, nil
}

func cloneDays(days []int) []int {
	if days == nil {
		return nil
	}
	out := make([]int, len(days))
	copy(out, days)
	return out
}

func cloneApplication(app model.CreditApplication) model.CreditApplication {
	if app.Finalized != nil {
		fin := *app.Finalized
		fin.TermDays = cloneDays(fin.TermDays)
		app.Finalized = &fin
	}
	return app
}

func cloneImport(imp model.Import) model.Import {
	if imp.Terms != nil {
		terms := *imp.Terms
		terms.TermDays = cloneDays(terms.TermDays)
		imp.Terms = &terms
	}
	if imp.Products != nil {
		products := make([]model.Product, len(imp.Products))
		copy(products, imp.Products)
		imp.Products = products
	}
	return imp
}
