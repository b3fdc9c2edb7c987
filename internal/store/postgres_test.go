package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/iurnickita/importcredit/internal/model"
	"github.com/iurnickita/importcredit/internal/money"
)

func newMockStore(t *testing.T) (*pgStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newPGStore(db), mock
}

var accountRowColumns = []string{"id", "applicant_id", "currency", "requested_amount", "status",
	"credit_limit", "down_payment_rate", "admin_fee_rate", "term_days", "finalized_at", "used"}

func TestPGMigrate(t *testing.T) {
	store, mock := newMockStore(t)
	for _, table := range []string{"credit_application", "financial_settings", "import_order", "import_product", "import_timeline"} {
		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS " + table)).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE import_timeline ADD COLUMN IF NOT EXISTS seq BIGSERIAL")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, store.migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGAccount(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)
	finalizedAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(accountColumns + " WHERE id = $1")).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows(accountRowColumns).
			AddRow("app-1", "user-1", "USD", "50000.00", "approved", "40000.00", "20.0000", nil, "30,60", finalizedAt, "1000.00"))
	mock.ExpectQuery(regexp.QuoteMeta(accountColumns + " WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(accountRowColumns))

	account, err := store.Account(ctx, "app-1")
	require.NoError(t, err)
	require.True(t, account.Application.IsFinalized())
	require.Equal(t, "40000.00 USD", account.Application.Finalized.CreditLimit.String())
	require.True(t, money.MustPercentage("20").Equal(*account.Application.Finalized.DownPaymentRate))
	require.Nil(t, account.Application.Finalized.AdminFeeRate)
	require.Equal(t, []int{30, 60}, account.Application.Finalized.TermDays)
	require.Equal(t, "1000.00 USD", account.Used.String())

	_, err = store.Account(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGInTxCommitsLedgerWrite(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(accountColumns + " WHERE id = $1 FOR UPDATE")).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows(accountRowColumns).
			AddRow("app-1", "user-1", "USD", "50000.00", "approved", "40000.00", nil, nil, nil, time.Now(), "0"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE credit_application SET used = $1 WHERE id = $2")).
		WithArgs(sqlmock.AnyArg(), "app-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.InTx(ctx, func(tx Tx) error {
		account, err := tx.AccountLock(ctx, "app-1")
		if err != nil {
			return err
		}
		used, err := account.Used.Add(money.MustNew("300", "USD"))
		if err != nil {
			return err
		}
		return tx.AccountSetUsed(ctx, "app-1", used)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE credit_application SET used = $1 WHERE id = $2")).
		WithArgs(sqlmock.AnyArg(), "app-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := store.InTx(ctx, func(tx Tx) error {
		if err := tx.AccountSetUsed(ctx, "app-1", money.MustNew("1", "USD")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGImportInsertDuplicate(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO import_order")).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := store.InTx(ctx, func(tx Tx) error {
		return tx.ImportInsert(ctx, testImport("imp-1"))
	})
	require.ErrorIs(t, err, ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGImportInsertWithProducts(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)
	imp := testImport("imp-1")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO import_order")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO import_product")).
		WithArgs("imp-1", 0, "bolts", int64(10), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO import_product")).
		WithArgs("imp-1", 1, "nuts", int64(4), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO import_timeline")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.InTx(ctx, func(tx Tx) error {
		if err := tx.ImportInsert(ctx, imp); err != nil {
			return err
		}
		return tx.TimelineAppend(ctx, model.TimelineEntry{
			ID:        "entry-1",
			ImportID:  imp.ID,
			NewStage:  model.StagePlanning,
			ActorID:   "user-1",
			Timestamp: imp.CreatedAt,
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGImportGet(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)
	now := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(importColumns + " WHERE id = $1")).
		WithArgs("imp-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "cargo_type", "transport_method", "incoterm", "currency",
			"total_value", "stage", "status", "payment_method", "credit_application_id",
			"down_payment_rate", "admin_fee_rate", "term_days", "committed", "released",
			"created_at", "updated_at"}).
			AddRow("imp-1", "user-1", "LCL", "maritimo", "FOB", "USD",
				"100.00", "planejamento", "planning", "credit", "app-1",
				"30.0000", "10.0000", "30,60,90", "100.00", false,
				now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, quantity, unit_price FROM import_product")).
		WithArgs("imp-1").
		WillReturnRows(sqlmock.NewRows([]string{"name", "quantity", "unit_price"}).
			AddRow("bolts", int64(10), "5.00").
			AddRow("nuts", int64(4), "12.50"))

	imp, err := store.ImportGet(ctx, "imp-1")
	require.NoError(t, err)
	require.Equal(t, "100.00 USD", imp.TotalValue.String())
	require.Equal(t, "app-1", imp.CreditApplicationID)
	require.NotNil(t, imp.Terms)
	require.Equal(t, []int{30, 60, 90}, imp.Terms.TermDays)
	require.True(t, money.MustPercentage("10").Equal(imp.Terms.AdminFeeRate))
	require.Len(t, imp.Products, 2)
	require.Equal(t, "12.50 USD", imp.Products[1].UnitPrice.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGImportTimeline(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)
	now := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(importColumns + " WHERE id = $1")).
		WithArgs("imp-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "cargo_type", "transport_method", "incoterm", "currency",
			"total_value", "stage", "status", "payment_method", "credit_application_id",
			"down_payment_rate", "admin_fee_rate", "term_days", "committed", "released",
			"created_at", "updated_at"}).
			AddRow("imp-1", "user-1", "FCL", "aereo", "", "USD",
				"100.00", "producao", "active", "own_funds", "",
				nil, nil, nil, "0.00", false,
				now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, quantity, unit_price FROM import_product")).
		WithArgs("imp-1").
		WillReturnRows(sqlmock.NewRows([]string{"name", "quantity", "unit_price"}))
	// both entries share one timestamp; the insertion sequence orders them
	mock.ExpectQuery(regexp.QuoteMeta("FROM import_timeline WHERE import_id = $1 ORDER BY created_at, seq")).
		WithArgs("imp-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "import_id", "previous_stage", "new_stage", "actor_id", "created_at", "note"}).
			AddRow("e-b", "imp-1", "", "planejamento", "user-1", now, "").
			AddRow("e-a", "imp-1", "planejamento", "producao", "agent-1", now, "ready"))

	entries, err := store.ImportTimeline(ctx, "imp-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, model.StagePlanning, entries[0].NewStage)
	require.Equal(t, model.StageProduction, entries[1].NewStage)
	require.Equal(t, "ready", entries[1].Note)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGAccountSetUsedMissing(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE credit_application SET used = $1 WHERE id = $2")).
		WithArgs(sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.InTx(ctx, func(tx Tx) error {
		return tx.AccountSetUsed(ctx, "missing", money.MustNew("1", "USD"))
	})
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGSettingsGetMissing(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT down_payment_rate, admin_fee_rate, term_days FROM financial_settings")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"down_payment_rate", "admin_fee_rate", "term_days"}))

	settings, err := store.SettingsGet(context.Background(), "user-1")
	require.NoError(t, err)
	require.Nil(t, settings)
	require.NoError(t, mock.ExpectationsWereMet())
}
