package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/avoronkov/hearthshare/internal/shared/errors"
	"github.com/avoronkov/hearthshare/pkg/dateutil"
)

// DueTemplates lists every recurring template whose next payment date is on
// or before the given day.
func (s *Service) DueTemplates(ctx context.Context, asOf time.Time) ([]*Transaction, error) {
	templates, err := s.store.ListDueTemplates(ctx, dateutil.StartOfDay(asOf))
	if err != nil {
		return nil, apperrors.DatabaseError("failed to list due templates", err)
	}
	return templates, nil
}

// SpawnTemplate spawns one concrete instance of a due template and advances
// or retires the template, as a single atomic unit.
//
// The claim is a compare-and-swap on the template's next payment date: of
// two sweepers racing on the same stale date, exactly one wins the swap and
// spawns; the loser observes a failed claim and backs off, so a duplicate
// instance can never commit. Returns false when the claim was lost.
func (s *Service) SpawnTemplate(ctx context.Context, tmpl *Transaction) (bool, error) {
	if !tmpl.IsRecurring || tmpl.NextPaymentDate == nil {
		return false, apperrors.BadRequest("transaction is not a recurring template")
	}
	due := *tmpl.NextPaymentDate

	var to *time.Time
	if next, ok := tmpl.RecurrenceInterval.Next(due); ok {
		to = &next
	}

	spawned := false
	err := s.runInTx(ctx, func(ctx context.Context) error {
		spawned = false
		claimed, err := s.store.AdvanceTemplate(ctx, tmpl.ID, due, to)
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}

		now := s.now()
		instance := &Transaction{
			ID:           uuid.New(),
			Creditor:     tmpl.Creditor,
			Participants: tmpl.Participants,
			Amount:       tmpl.Amount,
			Description:  tmpl.Description,
			HouseholdID:  tmpl.HouseholdID,
			CreatedAt:    now,
		}
		if err := s.store.CreateTransaction(ctx, instance); err != nil {
			return err
		}
		for _, d := range splitIntoDebts(instance, now) {
			if err := s.store.CreateEntry(ctx, d); err != nil {
				return err
			}
		}
		spawned = true
		return nil
	})
	if err != nil {
		return false, apperrors.DatabaseError("failed to spawn recurring instance", err)
	}

	if spawned {
		s.invalidateBalances(ctx, tmpl.HouseholdID)
	}
	return spawned, nil
}
