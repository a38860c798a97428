package ledger_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avoronkov/hearthshare/internal/ledger"
	"github.com/avoronkov/hearthshare/pkg/dateutil"
)

// memStore is an in-memory ledger.Store for service tests. Entries keep
// insertion order. failCommits makes the next N commits fail with
// ErrTxConflict to exercise the retry path.
type memStore struct {
	mu           sync.Mutex
	transactions map[uuid.UUID]*ledger.Transaction
	entries      []*ledger.LedgerEntry
	failCommits  int
	commits      int
}

func newMemStore() *memStore {
	return &memStore{
		transactions: make(map[uuid.UUID]*ledger.Transaction),
	}
}

func (m *memStore) CreateTransaction(ctx context.Context, tx *ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tx
	m.transactions[tx.ID] = &cp
	return nil
}

func (m *memStore) GetTransaction(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[id]
	if !ok {
		return nil, ledger.ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *memStore) ListTransactions(ctx context.Context, filters ledger.TransactionFilters) ([]*ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ledger.Transaction
	for _, tx := range m.transactions {
		if filters.HouseholdID != "" && tx.HouseholdID != filters.HouseholdID {
			continue
		}
		if filters.RecurringOnly && !tx.IsRecurring {
			continue
		}
		cp := *tx
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) UpdateTransaction(ctx context.Context, tx *ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transactions[tx.ID]; !ok {
		return ledger.ErrTransactionNotFound
	}
	cp := *tx
	m.transactions[tx.ID] = &cp
	return nil
}

func (m *memStore) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transactions[id]; !ok {
		return ledger.ErrTransactionNotFound
	}
	delete(m.transactions, id)
	return nil
}

func (m *memStore) CreateEntry(ctx context.Context, entry *ledger.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *memStore) GetEntry(ctx context.Context, id uuid.UUID) (*ledger.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ledger.ErrEntryNotFound
}

func (m *memStore) ListEntries(ctx context.Context, filters ledger.EntryFilters) ([]*ledger.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ledger.LedgerEntry
	for _, e := range m.entries {
		if filters.HouseholdID != "" && e.HouseholdID != filters.HouseholdID {
			continue
		}
		if filters.Debtor != "" && e.Debtor != filters.Debtor {
			continue
		}
		if filters.Creditor != "" && e.Creditor != filters.Creditor {
			continue
		}
		if filters.EntryType != "" && e.EntryType != filters.EntryType {
			continue
		}
		if filters.RelatedTransactionID != nil &&
			(e.RelatedTransactionID == nil || *e.RelatedTransactionID != *filters.RelatedTransactionID) {
			continue
		}
		if filters.OnlyUnsettled && e.IsSettled {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) UpdateEntry(ctx context.Context, entry *ledger.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.ID == entry.ID {
			cp := *entry
			m.entries[i] = &cp
			return nil
		}
	}
	return ledger.ErrEntryNotFound
}

func (m *memStore) MarkEntriesSettled(ctx context.Context, ids []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for _, e := range m.entries {
		if want[e.ID] {
			e.IsSettled = true
		}
	}
	return nil
}

func (m *memStore) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return ledger.ErrEntryNotFound
}

func (m *memStore) DeleteEntriesByTransaction(ctx context.Context, transactionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.RelatedTransactionID == nil || *e.RelatedTransactionID != transactionID {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	return nil
}

func (m *memStore) ListDueTemplates(ctx context.Context, dueOn time.Time) ([]*ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ledger.Transaction
	for _, tx := range m.transactions {
		if !tx.IsRecurring || tx.NextPaymentDate == nil {
			continue
		}
		if dateutil.OnOrBefore(*tx.NextPaymentDate, dueOn) {
			cp := *tx
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) AdvanceTemplate(ctx context.Context, id uuid.UUID, from time.Time, to *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[id]
	if !ok || !tx.IsRecurring || tx.NextPaymentDate == nil {
		return false, nil
	}
	if !tx.NextPaymentDate.Equal(from) {
		return false, nil
	}
	if to == nil {
		delete(m.transactions, id)
		return true, nil
	}
	next := *to
	tx.NextPaymentDate = &next
	return true, nil
}

func (m *memStore) BeginTx(ctx context.Context) (context.Context, error) {
	return ctx, nil
}

func (m *memStore) CommitTx(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++
	if m.failCommits > 0 {
		m.failCommits--
		return ledger.ErrTxConflict
	}
	return nil
}

func (m *memStore) RollbackTx(ctx context.Context) error {
	return nil
}

// entriesFor returns the stored entries referencing a transaction.
func (m *memStore) entriesFor(id uuid.UUID) []*ledger.LedgerEntry {
	out, _ := m.ListEntries(context.Background(), ledger.EntryFilters{RelatedTransactionID: &id})
	return out
}

// memCache is an in-memory ledger.BalanceCache tracking invalidations.
type memCache struct {
	mu            sync.Mutex
	data          map[string][]ledger.PairBalance
	invalidations int
	hits          int
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]ledger.PairBalance)}
}

func (c *memCache) Get(ctx context.Context, householdID string) ([]ledger.PairBalance, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	balances, ok := c.data[householdID]
	if ok {
		c.hits++
	}
	return balances, ok, nil
}

func (c *memCache) Set(ctx context.Context, householdID string, balances []ledger.PairBalance) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[householdID] = balances
	return nil
}

func (c *memCache) Invalidate(ctx context.Context, householdID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, householdID)
	c.invalidations++
	return nil
}
