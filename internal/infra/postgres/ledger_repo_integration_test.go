//go:build integration

package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avoronkov/hearthshare/internal/infra/postgres"
	"github.com/avoronkov/hearthshare/internal/ledger"
	"github.com/avoronkov/hearthshare/testutil/testdb"
)

var testDB *testdb.TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	db, err := testdb.NewTestDB(ctx)
	if err != nil {
		panic("failed to start test database: " + err.Error())
	}
	testDB = db

	code := m.Run()

	_ = testDB.Close(ctx)
	os.Exit(code)
}

func newRepo(t *testing.T) *postgres.LedgerRepository {
	t.Helper()
	require.NoError(t, testDB.Reset(context.Background()))
	return postgres.NewLedgerRepository(testDB.Pool)
}

func seedTransaction(t *testing.T, repo *postgres.LedgerRepository, household string) *ledger.Transaction {
	t.Helper()
	tx := &ledger.Transaction{
		ID:           uuid.New(),
		Creditor:     "alice",
		Participants: []string{"alice", "bob", "carol"},
		Amount:       decimal.RequireFromString("90"),
		Description:  "groceries",
		HouseholdID:  household,
	}
	require.NoError(t, repo.CreateTransaction(context.Background(), tx))
	return tx
}

func TestLedgerRepository_TransactionRoundtrip(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	tx := seedTransaction(t, repo, "h1")
	assert.False(t, tx.CreatedAt.IsZero(), "created_at assigned by the database")

	got, err := repo.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.Creditor, got.Creditor)
	assert.Equal(t, tx.Participants, got.Participants)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("90")))
	assert.Equal(t, "groceries", got.Description)
	assert.False(t, got.IsRecurring)

	got.Description = "rent"
	got.Amount = decimal.RequireFromString("120.50")
	require.NoError(t, repo.UpdateTransaction(ctx, got))

	got2, err := repo.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "rent", got2.Description)
	assert.True(t, got2.Amount.Equal(decimal.RequireFromString("120.50")))

	require.NoError(t, repo.DeleteTransaction(ctx, tx.ID))
	_, err = repo.GetTransaction(ctx, tx.ID)
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func TestLedgerRepository_ListTransactionsFilters(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	seedTransaction(t, repo, "h1")
	seedTransaction(t, repo, "h2")

	start := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)
	tmpl := &ledger.Transaction{
		ID:                 uuid.New(),
		Creditor:           "alice",
		Participants:       []string{"alice", "bob"},
		Amount:             decimal.RequireFromString("40"),
		HouseholdID:        "h1",
		IsRecurring:        true,
		RecurrenceInterval: ledger.IntervalMonthly,
		StartDate:          &start,
		NextPaymentDate:    &start,
	}
	require.NoError(t, repo.CreateTransaction(ctx, tmpl))

	all, err := repo.ListTransactions(ctx, ledger.TransactionFilters{HouseholdID: "h1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	recurring, err := repo.ListTransactions(ctx, ledger.TransactionFilters{HouseholdID: "h1", RecurringOnly: true})
	require.NoError(t, err)
	require.Len(t, recurring, 1)
	assert.Equal(t, tmpl.ID, recurring[0].ID)
	assert.Equal(t, ledger.IntervalMonthly, recurring[0].RecurrenceInterval)
	require.NotNil(t, recurring[0].NextPaymentDate)
	assert.True(t, recurring[0].NextPaymentDate.Equal(start))
}

func TestLedgerRepository_EntryRoundtripAndFilters(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	tx := seedTransaction(t, repo, "h1")
	txID := tx.ID

	debts := []*ledger.LedgerEntry{
		{
			ID:                   uuid.New(),
			EntryType:            ledger.EntryTypeDebt,
			Creditor:             "alice",
			Debtor:               "bob",
			Amount:               decimal.RequireFromString("30"),
			HouseholdID:          "h1",
			RelatedTransactionID: &txID,
		},
		{
			ID:                   uuid.New(),
			EntryType:            ledger.EntryTypeDebt,
			Creditor:             "alice",
			Debtor:               "carol",
			Amount:               decimal.RequireFromString("30"),
			HouseholdID:          "h1",
			RelatedTransactionID: &txID,
		},
	}
	for _, d := range debts {
		require.NoError(t, repo.CreateEntry(ctx, d))
	}

	byDebtor, err := repo.ListEntries(ctx, ledger.EntryFilters{HouseholdID: "h1", Debtor: "bob"})
	require.NoError(t, err)
	require.Len(t, byDebtor, 1)
	assert.Equal(t, "bob", byDebtor[0].Debtor)

	byTx, err := repo.ListEntries(ctx, ledger.EntryFilters{RelatedTransactionID: &txID})
	require.NoError(t, err)
	assert.Len(t, byTx, 2)

	require.NoError(t, repo.MarkEntriesSettled(ctx, []uuid.UUID{debts[0].ID}))

	unsettled, err := repo.ListEntries(ctx, ledger.EntryFilters{HouseholdID: "h1", OnlyUnsettled: true})
	require.NoError(t, err)
	require.Len(t, unsettled, 1)
	assert.Equal(t, "carol", unsettled[0].Debtor)

	require.NoError(t, repo.DeleteEntriesByTransaction(ctx, txID))
	remaining, err := repo.ListEntries(ctx, ledger.EntryFilters{HouseholdID: "h1"})
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestLedgerRepository_AdvanceTemplateCAS(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	due := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	next := time.Date(2025, time.June, 8, 0, 0, 0, 0, time.UTC)
	tmpl := &ledger.Transaction{
		ID:                 uuid.New(),
		Creditor:           "alice",
		Participants:       []string{"alice", "bob"},
		Amount:             decimal.RequireFromString("40"),
		HouseholdID:        "h1",
		IsRecurring:        true,
		RecurrenceInterval: ledger.IntervalWeekly,
		StartDate:          &due,
		NextPaymentDate:    &due,
	}
	require.NoError(t, repo.CreateTransaction(ctx, tmpl))

	// First claim wins.
	claimed, err := repo.AdvanceTemplate(ctx, tmpl.ID, due, &next)
	require.NoError(t, err)
	assert.True(t, claimed)

	// Second claim on the now-stale date loses.
	claimed, err = repo.AdvanceTemplate(ctx, tmpl.ID, due, &next)
	require.NoError(t, err)
	assert.False(t, claimed)

	got, err := repo.GetTransaction(ctx, tmpl.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextPaymentDate)
	assert.True(t, got.NextPaymentDate.Equal(next))

	// A nil target retires the template.
	claimed, err = repo.AdvanceTemplate(ctx, tmpl.ID, next, nil)
	require.NoError(t, err)
	assert.True(t, claimed)

	_, err = repo.GetTransaction(ctx, tmpl.ID)
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func TestLedgerRepository_TxRollbackLeavesNothing(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	txCtx, err := repo.BeginTx(ctx)
	require.NoError(t, err)

	tx := &ledger.Transaction{
		ID:           uuid.New(),
		Creditor:     "alice",
		Participants: []string{"alice", "bob"},
		Amount:       decimal.RequireFromString("40"),
		HouseholdID:  "h1",
	}
	require.NoError(t, repo.CreateTransaction(txCtx, tx))
	require.NoError(t, repo.RollbackTx(txCtx))

	_, err = repo.GetTransaction(ctx, tx.ID)
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func TestLedgerRepository_TxCommitPersists(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	txCtx, err := repo.BeginTx(ctx)
	require.NoError(t, err)

	tx := &ledger.Transaction{
		ID:           uuid.New(),
		Creditor:     "alice",
		Participants: []string{"alice", "bob"},
		Amount:       decimal.RequireFromString("40"),
		HouseholdID:  "h1",
	}
	require.NoError(t, repo.CreateTransaction(txCtx, tx))

	entryID := uuid.New()
	require.NoError(t, repo.CreateEntry(txCtx, &ledger.LedgerEntry{
		ID:                   entryID,
		EntryType:            ledger.EntryTypeDebt,
		Creditor:             "alice",
		Debtor:               "bob",
		Amount:               decimal.RequireFromString("20"),
		HouseholdID:          "h1",
		RelatedTransactionID: &tx.ID,
	}))

	// Not visible outside the transaction before commit.
	_, err = repo.GetTransaction(ctx, tx.ID)
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)

	require.NoError(t, repo.CommitTx(txCtx))

	_, err = repo.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	_, err = repo.GetEntry(ctx, entryID)
	require.NoError(t, err)
}
