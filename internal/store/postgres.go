package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/iurnickita/importcredit/internal/model"
	"github.com/iurnickita/importcredit/internal/money"
)

type pgStore struct {
	database *sql.DB
}

func newPGStore(db *sql.DB) *pgStore {
	return &pgStore{database: db}
}

func (store *pgStore) migrate(ctx context.Context) error {
	// Заявки на кредит.
	// used - текущая сумма импортов под эту заявку, меняется только под блокировкой строки
	_, err := store.database.ExecContext(ctx,
		"CREATE TABLE IF NOT EXISTS credit_application ("+
			" id VARCHAR (64) PRIMARY KEY,"+
			" applicant_id VARCHAR (64) NOT NULL,"+
			" currency CHAR (3) NOT NULL,"+
			" requested_amount NUMERIC (18, 2) NOT NULL,"+
			" status VARCHAR (20) NOT NULL,"+
			" credit_limit NUMERIC (18, 2),"+
			" down_payment_rate NUMERIC (9, 4),"+
			" admin_fee_rate NUMERIC (9, 4),"+
			" term_days VARCHAR (255),"+
			" finalized_at TIMESTAMP,"+
			" used NUMERIC (18, 2) NOT NULL DEFAULT 0"+
			" );")
	if err != nil {
		return err
	}

	_, err = store.database.ExecContext(ctx,
		"CREATE TABLE IF NOT EXISTS financial_settings ("+
			" user_id VARCHAR (64) PRIMARY KEY,"+
			" down_payment_rate NUMERIC (9, 4),"+
			" admin_fee_rate NUMERIC (9, 4),"+
			" term_days VARCHAR (255)"+
			" );")
	if err != nil {
		return err
	}

	// Импорты.
	// committed - сумма, учтенная в used заявки; released - сумма уже возвращена
	_, err = store.database.ExecContext(ctx,
		"CREATE TABLE IF NOT EXISTS import_order ("+
			" id VARCHAR (64) PRIMARY KEY,"+
			" owner_id VARCHAR (64) NOT NULL,"+
			" cargo_type VARCHAR (3) NOT NULL,"+
			" transport_method VARCHAR (20) NOT NULL,"+
			" incoterm VARCHAR (10) NOT NULL,"+
			" currency CHAR (3) NOT NULL,"+
			" total_value NUMERIC (18, 2) NOT NULL,"+
			" stage VARCHAR (30) NOT NULL,"+
			" status VARCHAR (20) NOT NULL,"+
			" payment_method VARCHAR (20) NOT NULL,"+
			" credit_application_id VARCHAR (64) REFERENCES credit_application (id),"+
			" down_payment_rate NUMERIC (9, 4),"+
			" admin_fee_rate NUMERIC (9, 4),"+
			" term_days VARCHAR (255),"+
			" committed NUMERIC (18, 2) NOT NULL,"+
			" released BOOLEAN NOT NULL,"+
			" created_at TIMESTAMP NOT NULL,"+
			" updated_at TIMESTAMP NOT NULL"+
			" );")
	if err != nil {
		return err
	}

	_, err = store.database.ExecContext(ctx,
		"CREATE TABLE IF NOT EXISTS import_product ("+
			" import_id VARCHAR (64) REFERENCES import_order (id),"+
			" position INTEGER NOT NULL,"+
			" name VARCHAR (255) NOT NULL,"+
			" quantity BIGINT NOT NULL,"+
			" unit_price NUMERIC (18, 2) NOT NULL,"+
			" PRIMARY KEY (import_id, position)"+
			" );")
	if err != nil {
		return err
	}

	// Журнал этапов. Записи только добавляются
	_, err = store.database.ExecContext(ctx,
		"CREATE TABLE IF NOT EXISTS import_timeline ("+
			" id VARCHAR (64) PRIMARY KEY,"+
			" import_id VARCHAR (64) REFERENCES import_order (id),"+
			" previous_stage VARCHAR (30) NOT NULL,"+
			" new_stage VARCHAR (30) NOT NULL,"+
			" actor_id VARCHAR (64) NOT NULL,"+
			" created_at TIMESTAMP NOT NULL,"+
			" note TEXT NOT NULL,"+
			" seq BIGSERIAL"+
			" );")
	if err != nil {
		return err
	}
	// порядок записей внутри одной микросекунды
	_, err = store.database.ExecContext(ctx,
		"ALTER TABLE import_timeline ADD COLUMN IF NOT EXISTS seq BIGSERIAL")
	return err
}

func (store *pgStore) Close() error {
	return store.database.Close()
}

func (store *pgStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := store.database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err = fn(&pgTx{tx: sqlTx}); err != nil {
		sqlTx.Rollback()
		return err
	}
	return sqlTx.Commit()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const accountColumns = "SELECT id, applicant_id, currency, requested_amount, status," +
	" credit_limit, down_payment_rate, admin_fee_rate, term_days, finalized_at, used" +
	" FROM credit_application"

func nullRate(p *money.Percentage) decimal.NullDecimal {
	if p == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: p.Value(), Valid: true}
}

func rateOf(d decimal.NullDecimal) (*money.Percentage, error) {
	if !d.Valid {
		return nil, nil
	}
	p, err := money.PercentageFromDecimal(d.Decimal)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanAccount(row *sql.Row) (model.LedgerAccount, error) {
	var (
		account         model.LedgerAccount
		currency        string
		status          string
		requested, used decimal.Decimal
		limit           decimal.NullDecimal
		downPayment     decimal.NullDecimal
		adminFee        decimal.NullDecimal
		termDays        sql.NullString
		finalizedAt     sql.NullTime
	)
	err := row.Scan(&account.Application.ID,
		&account.Application.ApplicantID,
		&currency,
		&requested,
		&status,
		&limit,
		&downPayment,
		&adminFee,
		&termDays,
		&finalizedAt,
		&used)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.LedgerAccount{}, ErrNotFound
		}
		return model.LedgerAccount{}, err
	}

	app := &account.Application
	app.Status = model.ApplicationStatus(status)
	if app.RequestedAmount, err = money.FromDecimal(requested, currency); err != nil {
		return model.LedgerAccount{}, err
	}
	if account.Used, err = money.FromDecimal(used, currency); err != nil {
		return model.LedgerAccount{}, err
	}
	if limit.Valid && finalizedAt.Valid {
		fin := model.FinalizedTerms{FinalizedAt: finalizedAt.Time}
		if fin.CreditLimit, err = money.FromDecimal(limit.Decimal, currency); err != nil {
			return model.LedgerAccount{}, err
		}
		if fin.DownPaymentRate, err = rateOf(downPayment); err != nil {
			return model.LedgerAccount{}, err
		}
		if fin.AdminFeeRate, err = rateOf(adminFee); err != nil {
			return model.LedgerAccount{}, err
		}
		if fin.TermDays, err = decodeDays(termDays); err != nil {
			return model.LedgerAccount{}, err
		}
		app.Finalized = &fin
	}
	return account, nil
}

func (store *pgStore) Account(ctx context.Context, applicationID string) (model.LedgerAccount, error) {
	row := store.database.QueryRowContext(ctx, accountColumns+" WHERE id = $1", applicationID)
	return scanAccount(row)
}

func (store *pgStore) SettingsGet(ctx context.Context, userID string) (*model.FinancialSettings, error) {
	var (
		settings    = model.FinancialSettings{UserID: userID}
		downPayment decimal.NullDecimal
		adminFee    decimal.NullDecimal
		termDays    sql.NullString
	)
	row := store.database.QueryRowContext(ctx,
		"SELECT down_payment_rate, admin_fee_rate, term_days"+
			" FROM financial_settings"+
			" WHERE user_id = $1",
		userID)
	err := row.Scan(&downPayment, &adminFee, &termDays)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) { // нет настроек - ок
			return nil, nil
		}
		return nil, err
	}
	if settings.DownPaymentRate, err = rateOf(downPayment); err != nil {
		return nil, err
	}
	if settings.AdminFeeRate, err = rateOf(adminFee); err != nil {
		return nil, err
	}
	if settings.TermDays, err = decodeDays(termDays); err != nil {
		return nil, err
	}
	return &settings, nil
}

func (store *pgStore) SettingsPut(ctx context.Context, settings model.FinancialSettings) error {
	_, err := store.database.ExecContext(ctx,
		"INSERT INTO financial_settings (user_id, down_payment_rate, admin_fee_rate, term_days)"+
			" VALUES ($1, $2, $3, $4)"+
			" ON CONFLICT (user_id) DO UPDATE"+
			" SET down_payment_rate = EXCLUDED.down_payment_rate,"+
			" admin_fee_rate = EXCLUDED.admin_fee_rate,"+
			" term_days = EXCLUDED.term_days",
		settings.UserID,
		nullRate(settings.DownPaymentRate),
		nullRate(settings.AdminFeeRate),
		encodeDays(settings.TermDays))
	return err
}

const importColumns = "SELECT id, owner_id, cargo_type, transport_method, incoterm, currency," +
	" total_value, stage, status, payment_method, credit_application_id," +
	" down_payment_rate, admin_fee_rate, term_days, committed, released," +
	" created_at, updated_at" +
	" FROM import_order"

func loadImport(ctx context.Context, q queryer, query string, id string) (model.Import, error) {
	var (
		imp         model.Import
		currency    string
		total       decimal.Decimal
		committed   decimal.Decimal
		application sql.NullString
		downPayment decimal.NullDecimal
		adminFee    decimal.NullDecimal
		termDays    sql.NullString
	)
	err := q.QueryRowContext(ctx, query, id).Scan(&imp.ID,
		&imp.OwnerID,
		&imp.CargoType,
		&imp.TransportMethod,
		&imp.Incoterm,
		&currency,
		&total,
		&imp.Stage,
		&imp.Status,
		&imp.PaymentMethod,
		&application,
		&downPayment,
		&adminFee,
		&termDays,
		&committed,
		&imp.Released,
		&imp.CreatedAt,
		&imp.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Import{}, ErrNotFound
		}
		return model.Import{}, err
	}
	imp.CreditApplicationID = application.String
	if imp.TotalValue, err = money.FromDecimal(total, currency); err != nil {
		return model.Import{}, err
	}
	if imp.Committed, err = money.FromDecimal(committed, currency); err != nil {
		return model.Import{}, err
	}
	if imp.Terms, err = loadTerms(downPayment, adminFee, termDays); err != nil {
		return model.Import{}, err
	}

	rows, err := q.QueryContext(ctx,
		"SELECT name, quantity, unit_price"+
			" FROM import_product"+
			" WHERE import_id = $1"+
			" ORDER BY position",
		id)
	if err != nil {
		return model.Import{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			product model.Product
			price   decimal.Decimal
		)
		if err = rows.Scan(&product.Name, &product.Quantity, &price); err != nil {
			return model.Import{}, err
		}
		if product.UnitPrice, err = money.FromDecimal(price, currency); err != nil {
			return model.Import{}, err
		}
		imp.Products = append(imp.Products, product)
	}
	return imp, rows.Err()
}

func loadTerms(downPayment, adminFee decimal.NullDecimal, termDays sql.NullString) (*model.CreditTerms, error) {
	if !downPayment.Valid || !adminFee.Valid {
		return nil, nil
	}
	var (
		terms model.CreditTerms
		err   error
	)
	if terms.DownPaymentRate, err = money.PercentageFromDecimal(downPayment.Decimal); err != nil {
		return nil, err
	}
	if terms.AdminFeeRate, err = money.PercentageFromDecimal(adminFee.Decimal); err != nil {
		return nil, err
	}
	if terms.TermDays, err = decodeDays(termDays); err != nil {
		return nil, err
	}
	if terms.TermDays == nil {
		terms.TermDays = []int{}
	}
	return &terms, nil
}

func (store *pgStore) ImportGet(ctx context.Context, id string) (model.Import, error) {
	return loadImport(ctx, store.database, importColumns+" WHERE id = $1", id)
}

func (store *pgStore) ImportTimeline(ctx context.Context, id string) ([]model.TimelineEntry, error) {
	if _, err := store.ImportGet(ctx, id); err != nil {
		return nil, err
	}
	rows, err := store.database.QueryContext(ctx,
		"SELECT id, import_id, previous_stage, new_stage, actor_id, created_at, note"+
			" FROM import_timeline"+
			" WHERE import_id = $1"+
			" ORDER BY created_at, seq",
		id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []model.TimelineEntry
	for rows.Next() {
		var entry model.TimelineEntry
		err := rows.Scan(&entry.ID,
			&entry.ImportID,
			&entry.PreviousStage,
			&entry.NewStage,
			&entry.ActorID,
			&entry.Timestamp,
			&entry.Note)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) AccountLock(ctx context.Context, applicationID string) (model.LedgerAccount, error) {
	row := t.tx.QueryRowContext(ctx, accountColumns+" WHERE id = $1 FOR UPDATE", applicationID)
	return scanAccount(row)
}

func (t *pgTx) AccountSetUsed(ctx context.Context, applicationID string, used money.Money) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE credit_application"+
			" SET used = $1"+
			" WHERE id = $2",
		used.Amount(),
		applicationID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (t *pgTx) ApplicationUpsert(ctx context.Context, app model.CreditApplication) error {
	var (
		limit       decimal.NullDecimal
		downPayment decimal.NullDecimal
		adminFee    decimal.NullDecimal
		termDays    sql.NullString
		finalizedAt sql.NullTime
	)
	if fin := app.Finalized; fin != nil {
		limit = decimal.NullDecimal{Decimal: fin.CreditLimit.Amount(), Valid: true}
		downPayment = nullRate(fin.DownPaymentRate)
		adminFee = nullRate(fin.AdminFeeRate)
		termDays = encodeDays(fin.TermDays)
		finalizedAt = sql.NullTime{Time: fin.FinalizedAt, Valid: true}
	}
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO credit_application (id, applicant_id, currency, requested_amount, status,"+
			" credit_limit, down_payment_rate, admin_fee_rate, term_days, finalized_at)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)"+
			" ON CONFLICT (id) DO UPDATE"+
			" SET applicant_id = EXCLUDED.applicant_id,"+
			" requested_amount = EXCLUDED.requested_amount,"+
			" status = EXCLUDED.status,"+
			" credit_limit = EXCLUDED.credit_limit,"+
			" down_payment_rate = EXCLUDED.down_payment_rate,"+
			" admin_fee_rate = EXCLUDED.admin_fee_rate,"+
			" term_days = EXCLUDED.term_days,"+
			" finalized_at = EXCLUDED.finalized_at",
		app.ID,
		app.ApplicantID,
		app.RequestedAmount.Currency(),
		app.RequestedAmount.Amount(),
		string(app.Status),
		limit,
		downPayment,
		adminFee,
		termDays,
		finalizedAt)
	return err
}

func (t *pgTx) ImportLock(ctx context.Context, id string) (model.Import, error) {
	return loadImport(ctx, t.tx, importColumns+" WHERE id = $1 FOR UPDATE", id)
}

func (t *pgTx) ImportInsert(ctx context.Context, imp model.Import) error {
	var (
		downPayment decimal.NullDecimal
		adminFee    decimal.NullDecimal
		termDays    sql.NullString
	)
	if imp.Terms != nil {
		downPayment = nullRate(&imp.Terms.DownPaymentRate)
		adminFee = nullRate(&imp.Terms.AdminFeeRate)
		termDays = encodeDays(imp.Terms.TermDays)
		if !termDays.Valid {
			termDays = sql.NullString{Valid: true}
		}
	}
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO import_order (id, owner_id, cargo_type, transport_method, incoterm, currency,"+
			" total_value, stage, status, payment_method, credit_application_id,"+
			" down_payment_rate, admin_fee_rate, term_days, committed, released,"+
			" created_at, updated_at)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)",
		imp.ID,
		imp.OwnerID,
		string(imp.CargoType),
		string(imp.TransportMethod),
		imp.Incoterm,
		imp.TotalValue.Currency(),
		imp.TotalValue.Amount(),
		string(imp.Stage),
		string(imp.Status),
		string(imp.PaymentMethod),
		sql.NullString{String: imp.CreditApplicationID, Valid: imp.CreditApplicationID != ""},
		downPayment,
		adminFee,
		termDays,
		imp.Committed.Amount(),
		imp.Released,
		imp.CreatedAt,
		imp.UpdatedAt)
	if err != nil {
		// Проверка: уже существует
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return err
	}
	return t.insertProducts(ctx, imp.ID, imp.Products)
}

func (t *pgTx) insertProducts(ctx context.Context, importID string, products []model.Product) error {
	for i, product := range products {
		_, err := t.tx.ExecContext(ctx,
			"INSERT INTO import_product (import_id, position, name, quantity, unit_price)"+
				" VALUES ($1, $2, $3, $4, $5)",
			importID,
			i,
			product.Name,
			product.Quantity,
			product.UnitPrice.Amount())
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) ImportSave(ctx context.Context, imp model.Import) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE import_order"+
			" SET total_value = $1, stage = $2, status = $3, committed = $4, released = $5, updated_at = $6"+
			" WHERE id = $7",
		imp.TotalValue.Amount(),
		string(imp.Stage),
		string(imp.Status),
		imp.Committed.Amount(),
		imp.Released,
		imp.UpdatedAt,
		imp.ID)
	if err != nil {
		return err
	}
	if err = expectOneRow(res); err != nil {
		return err
	}

	// список товаров пересобирается целиком
	_, err = t.tx.ExecContext(ctx,
		"DELETE FROM import_product WHERE import_id = $1",
		imp.ID)
	if err != nil {
		return err
	}
	return t.insertProducts(ctx, imp.ID, imp.Products)
}

func (t *pgTx) TimelineAppend(ctx context.Context, entry model.TimelineEntry) error {
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO import_timeline (id, import_id, previous_stage, new_stage, actor_id, created_at, note)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7)",
		entry.ID,
		entry.ImportID,
		string(entry.PreviousStage),
		string(entry.NewStage),
		entry.ActorID,
		entry.Timestamp.UTC(),
		entry.Note)
	return err
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
