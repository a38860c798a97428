package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/avoronkov/hearthshare/internal/ledger"
)

// LedgerRepository implements the ledger.Store interface using PostgreSQL.
// Amounts are stored as NUMERIC and transferred as strings to keep decimal
// precision intact.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new PostgreSQL ledger repository
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// Transaction operations

const transactionColumns = `id, creditor, participants, amount::text, description, household_id,
	is_settlement, is_recurring, recurrence_interval, start_date, next_payment_date, created_at`

// CreateTransaction inserts a transaction. The created_at timestamp is
// assigned by the database and written back to the struct.
func (r *LedgerRepository) CreateTransaction(ctx context.Context, tx *ledger.Transaction) error {
	query := `
		INSERT INTO transactions (id, creditor, participants, amount, description, household_id,
			is_settlement, is_recurring, recurrence_interval, start_date, next_payment_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`

	var interval *string
	if tx.IsRecurring {
		s := string(tx.RecurrenceInterval)
		interval = &s
	}

	q := r.getQueryer(ctx)
	err := q.QueryRow(ctx, query,
		tx.ID,
		tx.Creditor,
		tx.Participants,
		tx.Amount.String(),
		tx.Description,
		tx.HouseholdID,
		tx.IsSettlement,
		tx.IsRecurring,
		interval,
		tx.StartDate,
		tx.NextPaymentDate,
	).Scan(&tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", mapTxError(err))
	}

	return nil
}

// GetTransaction retrieves a transaction by ID
func (r *LedgerRepository) GetTransaction(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	q := r.getQueryer(ctx)
	tx, err := scanTransaction(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

// ListTransactions lists transactions matching the filters
func (r *LedgerRepository) ListTransactions(ctx context.Context, filters ledger.TransactionFilters) ([]*ledger.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`

	args := make([]interface{}, 0, 2)
	argPos := 1

	if filters.HouseholdID != "" {
		query += fmt.Sprintf(" AND household_id = $%d", argPos)
		args = append(args, filters.HouseholdID)
		argPos++
	}
	if filters.RecurringOnly {
		query += " AND is_recurring"
	}

	query += " ORDER BY created_at DESC"

	q := r.getQueryer(ctx)
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// UpdateTransaction rewrites a transaction's scalar and recurrence fields
func (r *LedgerRepository) UpdateTransaction(ctx context.Context, tx *ledger.Transaction) error {
	query := `
		UPDATE transactions
		SET creditor = $2, participants = $3, amount = $4, description = $5, household_id = $6,
			is_recurring = $7, recurrence_interval = $8, start_date = $9, next_payment_date = $10
		WHERE id = $1
	`

	var interval *string
	if tx.IsRecurring {
		s := string(tx.RecurrenceInterval)
		interval = &s
	}

	q := r.getQueryer(ctx)
	tag, err := q.Exec(ctx, query,
		tx.ID,
		tx.Creditor,
		tx.Participants,
		tx.Amount.String(),
		tx.Description,
		tx.HouseholdID,
		tx.IsRecurring,
		interval,
		tx.StartDate,
		tx.NextPaymentDate,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", mapTxError(err))
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrTransactionNotFound
	}

	return nil
}

// DeleteTransaction removes a transaction by ID
func (r *LedgerRepository) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	q := r.getQueryer(ctx)
	tag, err := q.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", mapTxError(err))
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrTransactionNotFound
	}
	return nil
}

// Entry operations

const entryColumns = `id, entry_type, creditor, debtor, amount::text, description, household_id,
	related_transaction_id, is_settled, created_at`

// CreateEntry inserts a ledger entry
func (r *LedgerRepository) CreateEntry(ctx context.Context, entry *ledger.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (id, entry_type, creditor, debtor, amount, description,
			household_id, related_transaction_id, is_settled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	q := r.getQueryer(ctx)
	err := q.QueryRow(ctx, query,
		entry.ID,
		string(entry.EntryType),
		entry.Creditor,
		entry.Debtor,
		entry.Amount.String(),
		entry.Description,
		entry.HouseholdID,
		entry.RelatedTransactionID,
		entry.IsSettled,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create ledger entry: %w", mapTxError(err))
	}

	return nil
}

// GetEntry retrieves a ledger entry by ID
func (r *LedgerRepository) GetEntry(ctx context.Context, id uuid.UUID) (*ledger.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE id = $1`

	q := r.getQueryer(ctx)
	entry, err := scanEntry(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return entry, nil
}

// ListEntries lists ledger entries matching the filters
func (r *LedgerRepository) ListEntries(ctx context.Context, filters ledger.EntryFilters) ([]*ledger.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE 1=1`

	args := make([]interface{}, 0, 4)
	argPos := 1

	if filters.HouseholdID != "" {
		query += fmt.Sprintf(" AND household_id = $%d", argPos)
		args = append(args, filters.HouseholdID)
		argPos++
	}
	if filters.Debtor != "" {
		query += fmt.Sprintf(" AND debtor = $%d", argPos)
		args = append(args, filters.Debtor)
		argPos++
	}
	if filters.Creditor != "" {
		query += fmt.Sprintf(" AND creditor = $%d", argPos)
		args = append(args, filters.Creditor)
		argPos++
	}
	if filters.EntryType != "" {
		query += fmt.Sprintf(" AND entry_type = $%d", argPos)
		args = append(args, string(filters.EntryType))
		argPos++
	}
	if filters.RelatedTransactionID != nil {
		query += fmt.Sprintf(" AND related_transaction_id = $%d", argPos)
		args = append(args, *filters.RelatedTransactionID)
		argPos++
	}
	if filters.OnlyUnsettled {
		query += " AND NOT is_settled"
	}

	query += " ORDER BY created_at ASC"

	q := r.getQueryer(ctx)
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*ledger.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}

	return entries, nil
}

// UpdateEntry rewrites a ledger entry's mutable fields
func (r *LedgerRepository) UpdateEntry(ctx context.Context, entry *ledger.LedgerEntry) error {
	query := `
		UPDATE ledger_entries
		SET creditor = $2, debtor = $3, amount = $4, description = $5, is_settled = $6
		WHERE id = $1
	`

	q := r.getQueryer(ctx)
	tag, err := q.Exec(ctx, query,
		entry.ID,
		entry.Creditor,
		entry.Debtor,
		entry.Amount.String(),
		entry.Description,
		entry.IsSettled,
	)
	if err != nil {
		return fmt.Errorf("failed to update ledger entry: %w", mapTxError(err))
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrEntryNotFound
	}

	return nil
}

// MarkEntriesSettled flags the given entries as settled
func (r *LedgerRepository) MarkEntriesSettled(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	q := r.getQueryer(ctx)
	_, err := q.Exec(ctx, `UPDATE ledger_entries SET is_settled = true WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("failed to mark entries settled: %w", mapTxError(err))
	}
	return nil
}

// DeleteEntry removes a ledger entry by ID
func (r *LedgerRepository) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	q := r.getQueryer(ctx)
	tag, err := q.Exec(ctx, `DELETE FROM ledger_entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete ledger entry: %w", mapTxError(err))
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrEntryNotFound
	}
	return nil
}

// DeleteEntriesByTransaction removes every entry owned by a transaction
func (r *LedgerRepository) DeleteEntriesByTransaction(ctx context.Context, transactionID uuid.UUID) error {
	q := r.getQueryer(ctx)
	_, err := q.Exec(ctx, `DELETE FROM ledger_entries WHERE related_transaction_id = $1`, transactionID)
	if err != nil {
		return fmt.Errorf("failed to delete entries for transaction: %w", mapTxError(err))
	}
	return nil
}

// Template operations

// ListDueTemplates lists recurring templates due on or before the given day
func (r *LedgerRepository) ListDueTemplates(ctx context.Context, dueOn time.Time) ([]*ledger.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE is_recurring AND next_payment_date <= $1
		ORDER BY next_payment_date ASC`

	q := r.getQueryer(ctx)
	rows, err := q.Query(ctx, query, dueOn)
	if err != nil {
		return nil, fmt.Errorf("failed to query due templates: %w", err)
	}
	defer rows.Close()

	var templates []*ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

// AdvanceTemplate conditionally advances or retires a template. The write
// only applies while the stored next_payment_date still equals from, which
// makes the claim a compare-and-swap: a sweeper racing on a stale date
// affects zero rows and reports an unclaimed template.
func (r *LedgerRepository) AdvanceTemplate(ctx context.Context, id uuid.UUID, from time.Time, to *time.Time) (bool, error) {
	q := r.getQueryer(ctx)

	var tag pgconn.CommandTag
	var err error
	if to == nil {
		tag, err = q.Exec(ctx,
			`DELETE FROM transactions WHERE id = $1 AND is_recurring AND next_payment_date = $2`,
			id, from)
	} else {
		tag, err = q.Exec(ctx,
			`UPDATE transactions SET next_payment_date = $3 WHERE id = $1 AND is_recurring AND next_payment_date = $2`,
			id, from, *to)
	}
	if err != nil {
		return false, fmt.Errorf("failed to advance template: %w", mapTxError(err))
	}

	return tag.RowsAffected() == 1, nil
}

// Transaction management using pgx transactions carried in context

type ctxKey string

const txContextKey ctxKey = "hearthshare_tx"

// BeginTx starts a serializable database transaction and stores it in the
// context. Every repository call made with the returned context executes
// inside that transaction.
func (r *LedgerRepository) BeginTx(ctx context.Context) (context.Context, error) {
	if tx := r.getTxFromContext(ctx); tx != nil {
		return ctx, fmt.Errorf("transaction already in progress")
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return ctx, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return context.WithValue(ctx, txContextKey, tx), nil
}

// CommitTx commits the database transaction from the context. A lost
// serialization race surfaces as ledger.ErrTxConflict.
func (r *LedgerRepository) CommitTx(ctx context.Context) error {
	tx := r.getTxFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("no transaction in context")
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapTxError(err))
	}

	return nil
}

// RollbackTx rolls back the database transaction from the context
func (r *LedgerRepository) RollbackTx(ctx context.Context) error {
	tx := r.getTxFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("no transaction in context")
	}

	if err := tx.Rollback(ctx); err != nil {
		if errors.Is(err, pgx.ErrTxClosed) {
			return nil
		}
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	return nil
}

func (r *LedgerRepository) getTxFromContext(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// getQueryer returns the transaction if one exists in context, otherwise
// the pool, so every method works both inside and outside transactions.
func (r *LedgerRepository) getQueryer(ctx context.Context) interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
} {
	if tx := r.getTxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// mapTxError converts PostgreSQL serialization failures into the store's
// retryable sentinel.
func mapTxError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 40001 serialization_failure, 40P01 deadlock_detected
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return fmt.Errorf("%w: %v", ledger.ErrTxConflict, err)
		}
	}
	return err
}

// Scan helpers

func scanTransaction(row pgx.Row) (*ledger.Transaction, error) {
	var tx ledger.Transaction
	var amountStr string
	var description, interval sql.NullString
	var startDate, nextPaymentDate *time.Time

	err := row.Scan(
		&tx.ID,
		&tx.Creditor,
		&tx.Participants,
		&amountStr,
		&description,
		&tx.HouseholdID,
		&tx.IsSettlement,
		&tx.IsRecurring,
		&interval,
		&startDate,
		&nextPaymentDate,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}
	tx.Amount = amount

	if description.Valid {
		tx.Description = description.String
	}
	if interval.Valid {
		tx.RecurrenceInterval = ledger.RecurrenceInterval(interval.String)
	}
	tx.StartDate = startDate
	tx.NextPaymentDate = nextPaymentDate

	return &tx, nil
}

func scanEntry(row pgx.Row) (*ledger.LedgerEntry, error) {
	var entry ledger.LedgerEntry
	var amountStr string
	var entryType string
	var description sql.NullString

	err := row.Scan(
		&entry.ID,
		&entryType,
		&entry.Creditor,
		&entry.Debtor,
		&amountStr,
		&description,
		&entry.HouseholdID,
		&entry.RelatedTransactionID,
		&entry.IsSettled,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}
	entry.Amount = amount
	entry.EntryType = ledger.EntryType(entryType)
	if description.Valid {
		entry.Description = description.String
	}

	return &entry, nil
}
