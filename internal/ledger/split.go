package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// two decimal places: shares are money amounts in a single currency
const shareScale = 2

// equalShare returns amount divided evenly across n participants, rounded
// to cent precision.
func equalShare(amount decimal.Decimal, n int) decimal.Decimal {
	return amount.Div(decimal.NewFromInt(int64(n))).Round(shareScale)
}

// splitIntoDebts derives the debt entries a concrete transaction owns: one
// per participant other than the creditor, each owing amount/|participants|.
// The creditor's own share is excluded, so the debts sum to
// amount * (n-1)/n.
func splitIntoDebts(tx *Transaction, now time.Time) []*LedgerEntry {
	share := equalShare(tx.Amount, tx.SplitCount())

	debts := make([]*LedgerEntry, 0, tx.DebtorCount())
	for _, p := range tx.Participants {
		if p == tx.Creditor {
			continue
		}
		txID := tx.ID
		debts = append(debts, &LedgerEntry{
			ID:                   uuid.New(),
			EntryType:            EntryTypeDebt,
			Creditor:             tx.Creditor,
			Debtor:               p,
			Amount:               share,
			Description:          tx.Description,
			HouseholdID:          tx.HouseholdID,
			RelatedTransactionID: &txID,
			IsSettled:            false,
			CreatedAt:            now,
		})
	}
	return debts
}
