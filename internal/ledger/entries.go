package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/avoronkov/hearthshare/internal/shared/errors"
)

// ListDebts lists a household's ledger entries. Settled debts and
// settlement records are excluded unless includeSettled is set.
func (s *Service) ListDebts(ctx context.Context, householdID string, includeSettled bool) ([]*LedgerEntry, error) {
	if householdID == "" {
		return nil, apperrors.Validation("householdId", "is required")
	}
	entries, err := s.store.ListEntries(ctx, EntryFilters{
		HouseholdID:   householdID,
		OnlyUnsettled: !includeSettled,
	})
	if err != nil {
		return nil, apperrors.DatabaseError("failed to list ledger entries", err)
	}
	return entries, nil
}

// UpdateEntryParams carries the editable fields of a single debt.
type UpdateEntryParams struct {
	Creditor    string
	Debtor      string
	Amount      decimal.Decimal
	Description string
}

// UpdateEntry rewrites a single debt entry. Settlement records are
// immutable.
func (s *Service) UpdateEntry(ctx context.Context, id uuid.UUID, params UpdateEntryParams) (*LedgerEntry, error) {
	entry, err := s.store.GetEntry(ctx, id)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, apperrors.NotFound("debt")
		}
		return nil, apperrors.DatabaseError("failed to load ledger entry", err)
	}
	if entry.IsSettlementRecord() {
		return nil, apperrors.ImmutableRecord("settlement records are immutable")
	}

	if params.Creditor == "" {
		return nil, apperrors.Validation("creditor", "is required")
	}
	if params.Debtor == "" {
		return nil, apperrors.Validation("debtor", "is required")
	}
	if !params.Amount.IsPositive() {
		return nil, apperrors.Wrap(ErrNonPositiveAmount, apperrors.ErrCodeValidation, "amount: must be positive")
	}

	entry.Creditor = params.Creditor
	entry.Debtor = params.Debtor
	entry.Amount = params.Amount
	entry.Description = params.Description

	err = s.runInTx(ctx, func(ctx context.Context) error {
		return s.store.UpdateEntry(ctx, entry)
	})
	if err != nil {
		return nil, apperrors.DatabaseError("failed to update ledger entry", err)
	}

	s.invalidateBalances(ctx, entry.HouseholdID)
	return entry, nil
}

// DeleteEntry removes a single ledger entry.
func (s *Service) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	entry, err := s.store.GetEntry(ctx, id)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return apperrors.NotFound("debt")
		}
		return apperrors.DatabaseError("failed to load ledger entry", err)
	}

	err = s.runInTx(ctx, func(ctx context.Context) error {
		return s.store.DeleteEntry(ctx, id)
	})
	if err != nil {
		return apperrors.DatabaseError("failed to delete ledger entry", err)
	}

	s.invalidateBalances(ctx, entry.HouseholdID)
	return nil
}
