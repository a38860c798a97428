package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store defines the interface for ledger persistence operations.
//
// Multi-record mutations compose store calls between BeginTx and CommitTx;
// every call inside that window executes on the same serializable database
// transaction, so a multi-step operation is never partially observable to
// concurrent readers. A CommitTx that loses a serialization race returns
// ErrTxConflict and leaves no partial state.
type Store interface {
	// Transaction operations
	CreateTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	ListTransactions(ctx context.Context, filters TransactionFilters) ([]*Transaction, error)
	UpdateTransaction(ctx context.Context, tx *Transaction) error
	DeleteTransaction(ctx context.Context, id uuid.UUID) error

	// Entry operations
	CreateEntry(ctx context.Context, entry *LedgerEntry) error
	GetEntry(ctx context.Context, id uuid.UUID) (*LedgerEntry, error)
	ListEntries(ctx context.Context, filters EntryFilters) ([]*LedgerEntry, error)
	UpdateEntry(ctx context.Context, entry *LedgerEntry) error
	MarkEntriesSettled(ctx context.Context, ids []uuid.UUID) error
	DeleteEntry(ctx context.Context, id uuid.UUID) error
	DeleteEntriesByTransaction(ctx context.Context, transactionID uuid.UUID) error

	// Template operations
	ListDueTemplates(ctx context.Context, dueOn time.Time) ([]*Transaction, error)
	// AdvanceTemplate moves a template's next payment date from one value
	// to another as a compare-and-swap: the write applies only if the
	// stored date still equals from. A nil to retires (deletes) the
	// template. Returns false when the claim was lost to a concurrent
	// sweeper or the template is gone.
	AdvanceTemplate(ctx context.Context, id uuid.UUID, from time.Time, to *time.Time) (bool, error)

	// Transaction management
	BeginTx(ctx context.Context) (context.Context, error)
	CommitTx(ctx context.Context) error
	RollbackTx(ctx context.Context) error
}

// BalanceCache caches computed net-balance views per household. A nil
// cache is valid and disables caching.
type BalanceCache interface {
	Get(ctx context.Context, householdID string) ([]PairBalance, bool, error)
	Set(ctx context.Context, householdID string, balances []PairBalance) error
	Invalidate(ctx context.Context, householdID string) error
}
