package store

import (
	"context"
	"sort"
	"sync"

	"github.com/iurnickita/importcredit/internal/model"
	"github.com/iurnickita/importcredit/internal/money"
)

// keyLocks hands out one mutex per row key.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyLocks) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()

	if m, ok := k.locks[key]; ok {
		return m
	}
	m := &sync.Mutex{}
	k.locks[key] = m
	return m
}

type memStore struct {
	// mu guards the maps; row locks are taken through locks before mu
	mu           sync.RWMutex
	locks        keyLocks
	applications map[string]model.CreditApplication
	used         map[string]money.Money
	settings     map[string]model.FinancialSettings
	imports      map[string]model.Import
	timeline     map[string][]model.TimelineEntry
}

// NewMemStore is a single-process store. Row locks are per-key mutexes held
// for the duration of InTx.
func NewMemStore() Store {
	return &memStore{
		locks:        keyLocks{locks: make(map[string]*sync.Mutex)},
		applications: make(map[string]model.CreditApplication),
		used:         make(map[string]money.Money),
		settings:     make(map[string]model.FinancialSettings),
		imports:      make(map[string]model.Import),
		timeline:     make(map[string][]model.TimelineEntry),
	}
}

func (store *memStore) Close() error {
	return nil
}

func (store *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memTx{
		store:        store,
		held:         make(map[string]*sync.Mutex),
		applications: make(map[string]model.CreditApplication),
		used:         make(map[string]money.Money),
		imports:      make(map[string]model.Import),
	}
	defer tx.unlockAll()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (store *memStore) account(applicationID string) (model.LedgerAccount, error) {
	app, ok := store.applications[applicationID]
	if !ok {
		return model.LedgerAccount{}, ErrNotFound
	}
	return model.LedgerAccount{
		Application: cloneApplication(app),
		Used:        store.used[applicationID],
	}, nil
}

func (store *memStore) Account(_ context.Context, applicationID string) (model.LedgerAccount, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	return store.account(applicationID)
}

func (store *memStore) SettingsGet(_ context.Context, userID string) (*model.FinancialSettings, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	settings, ok := store.settings[userID]
	if !ok {
		return nil, nil
	}
	settings.TermDays = cloneDays(settings.TermDays)
	return &settings, nil
}

func (store *memStore) SettingsPut(_ context.Context, settings model.FinancialSettings) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	settings.TermDays = cloneDays(settings.TermDays)
	store.settings[settings.UserID] = settings
	return nil
}

func (store *memStore) ImportGet(_ context.Context, id string) (model.Import, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	imp, ok := store.imports[id]
	if !ok {
		return model.Import{}, ErrNotFound
	}
	return cloneImport(imp), nil
}

func (store *memStore) ImportTimeline(_ context.Context, id string) ([]model.TimelineEntry, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	if _, ok := store.imports[id]; !ok {
		return nil, ErrNotFound
	}
	entries := make([]model.TimelineEntry, len(store.timeline[id]))
	copy(entries, store.timeline[id])
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// memTx stages writes and applies them on commit.
type memTx struct {
	store *memStore
	held  map[string]*sync.Mutex
	order []string

	applications map[string]model.CreditApplication
	used         map[string]money.Money
	imports      map[string]model.Import
	timeline     []model.TimelineEntry
}

func (tx *memTx) lock(key string) {
	if _, ok := tx.held[key]; ok {
		return
	}
	m := tx.store.locks.get(key)
	m.Lock()
	tx.held[key] = m
	tx.order = append(tx.order, key)
}

func (tx *memTx) unlockAll() {
	for i := len(tx.order) - 1; i >= 0; i-- {
		tx.held[tx.order[i]].Unlock()
	}
	tx.held = nil
	tx.order = nil
}

func (tx *memTx) commit() {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	for id, app := range tx.applications {
		tx.store.applications[id] = app
	}
	for id, used := range tx.used {
		tx.store.used[id] = used
	}
	for id, imp := range tx.imports {
		tx.store.imports[id] = imp
	}
	for _, entry := range tx.timeline {
		tx.store.timeline[entry.ImportID] = append(tx.store.timeline[entry.ImportID], entry)
	}
}

func applicationKey(id string) string { return "application:" + id }
func importKey(id string) string      { return "import:" + id }

func (tx *memTx) AccountLock(_ context.Context, applicationID string) (model.LedgerAccount, error) {
	tx.lock(applicationKey(applicationID))

	if app, ok := tx.applications[applicationID]; ok {
		used, staged := tx.used[applicationID]
		if !staged {
			tx.store.mu.RLock()
			used = tx.store.used[applicationID]
			tx.store.mu.RUnlock()
		}
		return model.LedgerAccount{Application: cloneApplication(app), Used: used}, nil
	}

	tx.store.mu.RLock()
	account, err := tx.store.account(applicationID)
	tx.store.mu.RUnlock()
	if err != nil {
		return model.LedgerAccount{}, err
	}
	if used, ok := tx.used[applicationID]; ok {
		account.Used = used
	}
	return account, nil
}

func (tx *memTx) AccountSetUsed(_ context.Context, applicationID string, used money.Money) error {
	tx.lock(applicationKey(applicationID))

	if _, ok := tx.applications[applicationID]; !ok {
		tx.store.mu.RLock()
		_, ok = tx.store.applications[applicationID]
		tx.store.mu.RUnlock()
		if !ok {
			return ErrNotFound
		}
	}
	tx.used[applicationID] = used
	return nil
}

func (tx *memTx) ApplicationUpsert(_ context.Context, app model.CreditApplication) error {
	tx.lock(applicationKey(app.ID))

	tx.store.mu.RLock()
	_, exists := tx.store.applications[app.ID]
	tx.store.mu.RUnlock()
	if _, staged := tx.used[app.ID]; !exists && !staged {
		tx.used[app.ID] = money.Zero(app.RequestedAmount.Currency())
	}
	tx.applications[app.ID] = cloneApplication(app)
	return nil
}

func (tx *memTx) ImportLock(_ context.Context, id string) (model.Import, error) {
	tx.lock(importKey(id))

	if imp, ok := tx.imports[id]; ok {
		return cloneImport(imp), nil
	}
	tx.store.mu.RLock()
	imp, ok := tx.store.imports[id]
	tx.store.mu.RUnlock()
	if !ok {
		return model.Import{}, ErrNotFound
	}
	return cloneImport(imp), nil
}

func (tx *memTx) ImportInsert(_ context.Context, imp model.Import) error {
	tx.lock(importKey(imp.ID))

	tx.store.mu.RLock()
	_, exists := tx.store.imports[imp.ID]
	tx.store.mu.RUnlock()
	if _, staged := tx.imports[imp.ID]; exists || staged {
		return ErrAlreadyExists
	}
	tx.imports[imp.ID] = cloneImport(imp)
	return nil
}

func (tx *memTx) ImportSave(ctx context.Context, imp model.Import) error {
	if _, err := tx.ImportLock(ctx, imp.ID); err != nil {
		return err
	}
	tx.imports[imp.ID] = cloneImport(imp)
	return nil
}

func (tx *memTx) TimelineAppend(_ context.Context, entry model.TimelineEntry) error {
	tx.timeline = append(tx.timeline, entry)
	return nil
}
