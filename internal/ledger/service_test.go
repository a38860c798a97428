package ledger_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avoronkov/hearthshare/internal/ledger"
	apperrors "github.com/avoronkov/hearthshare/internal/shared/errors"
	"github.com/avoronkov/hearthshare/pkg/logger"
)

func newTestService(t *testing.T) (*ledger.Service, *memStore, *memCache) {
	t.Helper()
	store := newMemStore()
	cache := newMemCache()
	log := logger.New("test", io.Discard)
	return ledger.NewService(store, cache, log), store, cache
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func concreteParams(household string) ledger.CreateParams {
	return ledger.CreateParams{
		Creditor:     "alice",
		Participants: []string{"alice", "bob", "carol"},
		Amount:       money("90"),
		Description:  "groceries",
		HouseholdID:  household,
	}
}

func TestService_CreateTransaction_EqualSplit(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	tx, err := svc.CreateTransaction(ctx, concreteParams("h1"))
	require.NoError(t, err)
	require.NotNil(t, tx)

	assert.Equal(t, "alice", tx.Creditor)
	assert.False(t, tx.IsRecurring)

	debts := store.entriesFor(tx.ID)
	require.Len(t, debts, 2, "one debt per non-creditor participant")

	debtors := make(map[string]decimal.Decimal)
	for _, d := range debts {
		assert.Equal(t, ledger.EntryTypeDebt, d.EntryType)
		assert.Equal(t, "alice", d.Creditor)
		assert.Equal(t, "h1", d.HouseholdID)
		assert.Equal(t, "groceries", d.Description)
		assert.False(t, d.IsSettled)
		require.NotNil(t, d.RelatedTransactionID)
		assert.Equal(t, tx.ID, *d.RelatedTransactionID)
		debtors[d.Debtor] = d.Amount
	}
	assert.True(t, debtors["bob"].Equal(money("30")), "bob owes %s", debtors["bob"])
	assert.True(t, debtors["carol"].Equal(money("30")), "carol owes %s", debtors["carol"])
}

func TestService_CreateTransaction_RoundsSharesToCents(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	params := concreteParams("h1")
	params.Amount = money("100")

	tx, err := svc.CreateTransaction(ctx, params)
	require.NoError(t, err)

	for _, d := range store.entriesFor(tx.ID) {
		assert.True(t, d.Amount.Equal(money("33.33")), "share is %s", d.Amount)
	}
}

func TestService_CreateTransaction_CreditorOnlyHasNoDebts(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	params := concreteParams("h1")
	params.Participants = []string{"alice"}

	tx, err := svc.CreateTransaction(ctx, params)
	require.NoError(t, err)
	assert.Empty(t, store.entriesFor(tx.ID))
}

func TestService_CreateTransaction_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	start := time.Now()
	tests := []struct {
		name   string
		mutate func(*ledger.CreateParams)
	}{
		{"missing creditor", func(p *ledger.CreateParams) { p.Creditor = "" }},
		{"missing household", func(p *ledger.CreateParams) { p.HouseholdID = "" }},
		{"no participants", func(p *ledger.CreateParams) { p.Participants = nil }},
		{"empty participant id", func(p *ledger.CreateParams) { p.Participants = []string{"alice", ""} }},
		{"zero amount", func(p *ledger.CreateParams) { p.Amount = decimal.Zero }},
		{"negative amount", func(p *ledger.CreateParams) { p.Amount = money("-5") }},
		{"recurring without interval", func(p *ledger.CreateParams) {
			p.IsRecurring = true
			p.StartDate = &start
		}},
		{"recurring with bad interval", func(p *ledger.CreateParams) {
			p.IsRecurring = true
			p.Interval = "daily"
			p.StartDate = &start
		}},
		{"recurring without start date", func(p *ledger.CreateParams) {
			p.IsRecurring = true
			p.Interval = ledger.IntervalWeekly
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := concreteParams("h1")
			tt.mutate(&params)

			_, err := svc.CreateTransaction(ctx, params)
			require.Error(t, err)
			appErr := apperrors.GetAppError(err)
			require.NotNil(t, appErr)
			assert.Equal(t, apperrors.ErrCodeValidation, appErr.Code)
		})
	}
}

func TestService_UpdateTransaction_RecomputesDebts(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	tx, err := svc.CreateTransaction(ctx, concreteParams("h1"))
	require.NoError(t, err)

	params := concreteParams("h1")
	params.Creditor = "bob"
	params.Participants = []string{"alice", "bob"}
	params.Amount = money("40")
	params.Description = "rent"

	updated, err := svc.UpdateTransaction(ctx, tx.ID, params)
	require.NoError(t, err)
	assert.Equal(t, "bob", updated.Creditor)
	assert.True(t, updated.Amount.Equal(money("40")))

	debts := store.entriesFor(tx.ID)
	require.Len(t, debts, 1, "old debts replaced, not accumulated")
	assert.Equal(t, "alice", debts[0].Debtor)
	assert.Equal(t, "bob", debts[0].Creditor)
	assert.True(t, debts[0].Amount.Equal(money("20")))
	assert.Equal(t, "rent", debts[0].Description)
}

func TestService_UpdateTransaction_ReducedParticipants(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	params := concreteParams("h1")
	params.Amount = money("30")
	tx, err := svc.CreateTransaction(ctx, params)
	require.NoError(t, err)

	debts := store.entriesFor(tx.ID)
	require.Len(t, debts, 2)
	for _, d := range debts {
		assert.True(t, d.Amount.Equal(money("10")))
	}

	// Dropping carol, amount unchanged: the debt set is re-derived from
	// the new split, carol's debt gone.
	params.Participants = []string{"alice", "bob"}
	_, err = svc.UpdateTransaction(ctx, tx.ID, params)
	require.NoError(t, err)

	debts = store.entriesFor(tx.ID)
	require.Len(t, debts, 1)
	assert.Equal(t, "bob", debts[0].Debtor)
	assert.True(t, debts[0].Amount.Equal(money("15")), "30 split two ways, got %s", debts[0].Amount)
}

func TestService_UpdateTransaction_NotFound(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.UpdateTransaction(ctx, uuid.New(), concreteParams("h1"))
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeNotFound, appErr.Code)
}

func TestService_UpdateTransaction_SettlementImmutable(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	settlement := &ledger.Transaction{
		ID:           uuid.New(),
		Creditor:     "bob",
		Participants: []string{"alice", "bob"},
		Amount:       money("30"),
		HouseholdID:  "h1",
		IsSettlement: true,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, store.CreateTransaction(ctx, settlement))

	_, err := svc.UpdateTransaction(ctx, settlement.ID, concreteParams("h1"))
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeImmutableRecord, appErr.Code)
}

func TestService_DeleteTransaction_RemovesOwnedDebts(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	tx, err := svc.CreateTransaction(ctx, concreteParams("h1"))
	require.NoError(t, err)
	other, err := svc.CreateTransaction(ctx, concreteParams("h1"))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteTransaction(ctx, tx.ID))

	_, err = store.GetTransaction(ctx, tx.ID)
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
	assert.Empty(t, store.entriesFor(tx.ID))
	assert.Len(t, store.entriesFor(other.ID), 2, "unrelated debts untouched")
}

func TestService_DeleteTransaction_NotFound(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	err := svc.DeleteTransaction(ctx, uuid.New())
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeNotFound, appErr.Code)
}

func TestService_MutationsInvalidateBalanceCache(t *testing.T) {
	ctx := context.Background()
	svc, _, cache := newTestService(t)

	tx, err := svc.CreateTransaction(ctx, concreteParams("h1"))
	require.NoError(t, err)
	assert.Equal(t, 1, cache.invalidations)

	_, err = svc.UpdateTransaction(ctx, tx.ID, concreteParams("h1"))
	require.NoError(t, err)
	assert.Equal(t, 2, cache.invalidations)

	require.NoError(t, svc.DeleteTransaction(ctx, tx.ID))
	assert.Equal(t, 3, cache.invalidations)
}

func TestService_RetriesSerializationConflicts(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	tx, err := svc.CreateTransaction(ctx, concreteParams("h1"))
	require.NoError(t, err)
	debts := store.entriesFor(tx.ID)
	require.NotEmpty(t, debts)

	// Two conflicting commits, then success on the third attempt.
	store.failCommits = 2
	before := store.commits

	_, err = svc.UpdateEntry(ctx, debts[0].ID, ledger.UpdateEntryParams{
		Creditor: "alice",
		Debtor:   "bob",
		Amount:   money("12.50"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, store.commits-before)

	got, err := store.GetEntry(ctx, debts[0].ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(money("12.50")))
}

func TestService_GivesUpAfterBoundedRetries(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	tx, err := svc.CreateTransaction(ctx, concreteParams("h1"))
	require.NoError(t, err)
	debts := store.entriesFor(tx.ID)
	require.NotEmpty(t, debts)

	store.failCommits = 100

	_, err = svc.UpdateEntry(ctx, debts[0].ID, ledger.UpdateEntryParams{
		Creditor: "alice",
		Debtor:   "bob",
		Amount:   money("12.50"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrTxConflict)
}

func TestService_ValidationErrorsAreNotRetried(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	params := concreteParams("h1")
	params.Amount = decimal.Zero

	before := store.commits
	_, err := svc.CreateTransaction(ctx, params)
	require.Error(t, err)
	assert.Equal(t, before, store.commits, "no transaction attempted")
}
