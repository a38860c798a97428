package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/avoronkov/hearthshare/internal/shared/errors"
)

// settlementDescription is the fixed description written on every
// settlement record.
const settlementDescription = "Debt Settled"

// Settle nets out every unsettled debt the debtor owes the creditor within
// a household. The matched debts are flagged settled and a single reversing
// settlement record is written, crediting the debtor for the summed amount.
// The original debts keep their transaction links; nothing is deleted.
//
// The find-flag-write sequence runs as one serializable unit so two
// concurrent settlements of the same pair cannot both claim the same debts.
func (s *Service) Settle(ctx context.Context, debtor, creditor, householdID string) (*LedgerEntry, error) {
	if debtor == "" {
		return nil, apperrors.Validation("debtor", "is required")
	}
	if creditor == "" {
		return nil, apperrors.Validation("creditor", "is required")
	}
	if householdID == "" {
		return nil, apperrors.Validation("householdId", "is required")
	}

	var settlement *LedgerEntry
	err := s.runInTx(ctx, func(ctx context.Context) error {
		debts, err := s.store.ListEntries(ctx, EntryFilters{
			HouseholdID:   householdID,
			Debtor:        debtor,
			Creditor:      creditor,
			EntryType:     EntryTypeDebt,
			OnlyUnsettled: true,
		})
		if err != nil {
			return err
		}
		if len(debts) == 0 {
			return ErrNoUnsettledDebts
		}

		total := decimal.Zero
		ids := make([]uuid.UUID, 0, len(debts))
		for _, d := range debts {
			total = total.Add(d.Amount)
			ids = append(ids, d.ID)
		}

		if err := s.store.MarkEntriesSettled(ctx, ids); err != nil {
			return err
		}

		// Direction reversed: the repayment flows from the original
		// debtor back to the original creditor.
		settlement = &LedgerEntry{
			ID:          uuid.New(),
			EntryType:   EntryTypeSettlement,
			Creditor:    debtor,
			Debtor:      creditor,
			Amount:      total,
			Description: settlementDescription,
			HouseholdID: householdID,
			IsSettled:   true,
			CreatedAt:   s.now(),
		}
		return s.store.CreateEntry(ctx, settlement)
	})
	if err != nil {
		if err == ErrNoUnsettledDebts {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeNotFound, "no unsettled debts found for pair")
		}
		return nil, apperrors.DatabaseError("failed to settle debts", err)
	}

	s.invalidateBalances(ctx, householdID)
	return settlement, nil
}
