package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"

	apperrors "github.com/avoronkov/hearthshare/internal/shared/errors"
)

// CanEdit decides whether a transaction may still be edited. It is a pure
// read: no record is mutated.
//
// A transaction is locked once any of its debts has been settled, since
// recomputing the split would orphan the settlement that already paid the
// old debts.
func (s *Service) CanEdit(ctx context.Context, id uuid.UUID) (EditDecision, error) {
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return EditDecision{}, apperrors.NotFound("transaction")
		}
		return EditDecision{}, apperrors.DatabaseError("failed to load transaction", err)
	}

	if tx.IsSettlement {
		return EditDecision{Allowed: false, Reason: "settlement transactions are immutable"}, nil
	}
	if len(tx.Participants) == 0 || tx.Creditor == "" {
		return EditDecision{Allowed: false, Reason: "incomplete data"}, nil
	}

	entries, err := s.store.ListEntries(ctx, EntryFilters{RelatedTransactionID: &id})
	if err != nil {
		return EditDecision{}, apperrors.DatabaseError("failed to load debts", err)
	}
	for _, e := range entries {
		if e.IsSettled {
			return EditDecision{Allowed: false, Reason: "debts already partially/fully settled"}, nil
		}
	}

	return EditDecision{Allowed: true}, nil
}
