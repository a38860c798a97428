package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/avoronkov/hearthshare/internal/shared/errors"
	"github.com/avoronkov/hearthshare/pkg/dateutil"
	"github.com/avoronkov/hearthshare/pkg/logger"
)

// Service owns every mutation of the household ledger: transactions and
// their derived debt entries, recurring templates, and settlements.
// All multi-record mutations commit as one atomic unit against the store.
type Service struct {
	store Store
	cache BalanceCache
	log   *logger.Logger
	now   func() time.Time
}

// NewService creates a new ledger service. cache may be nil to disable
// the balance cache.
func NewService(store Store, cache BalanceCache, log *logger.Logger) *Service {
	return &Service{
		store: store,
		cache: cache,
		log:   log,
		now:   time.Now,
	}
}

// CreateParams carries the caller-supplied fields of a new transaction.
// Participant and household ids are opaque, pre-validated strings from the
// identity service.
type CreateParams struct {
	Creditor     string
	Participants []string
	Amount       decimal.Decimal
	Description  string
	HouseholdID  string
	IsRecurring  bool
	Interval     RecurrenceInterval
	StartDate    *time.Time
}

func (p *CreateParams) validate() error {
	if p.Creditor == "" {
		return apperrors.Validation("creditor", "is required")
	}
	if p.HouseholdID == "" {
		return apperrors.Validation("householdId", "is required")
	}
	if len(p.Participants) == 0 {
		return apperrors.Wrap(ErrNoParticipants, apperrors.ErrCodeValidation, "participants: must not be empty")
	}
	for _, id := range p.Participants {
		if id == "" {
			return apperrors.Validation("participants", "must not contain empty ids")
		}
	}
	if !p.Amount.IsPositive() {
		return apperrors.Wrap(ErrNonPositiveAmount, apperrors.ErrCodeValidation, "amount: must be positive")
	}
	if p.IsRecurring {
		if !p.Interval.IsValid() {
			return apperrors.Wrap(ErrInvalidInterval, apperrors.ErrCodeValidation, "recurrenceInterval: must be one of once, weekly, biweekly, monthly, semiannually")
		}
		if p.StartDate == nil {
			return apperrors.Wrap(ErrInvalidStartDate, apperrors.ErrCodeValidation, "startDate: is required for recurring transactions")
		}
	}
	return nil
}

// CreateTransaction creates a shared expense, deriving one debt entry per
// non-creditor participant as an equal split of the amount.
//
// When IsRecurring is set, a template is created instead (no debts), and if
// its start date is on or before today a first concrete instance is spawned
// immediately: a "once" template retires after that single occurrence, any
// other interval advances its next payment date.
func (s *Service) CreateTransaction(ctx context.Context, params CreateParams) (*Transaction, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	now := s.now()

	if !params.IsRecurring {
		tx := &Transaction{
			ID:           uuid.New(),
			Creditor:     params.Creditor,
			Participants: params.Participants,
			Amount:       params.Amount,
			Description:  params.Description,
			HouseholdID:  params.HouseholdID,
			CreatedAt:    now,
		}
		if err := s.createConcrete(ctx, tx); err != nil {
			return nil, err
		}
		s.invalidateBalances(ctx, tx.HouseholdID)
		return tx, nil
	}

	start := dateutil.StartOfDay(*params.StartDate)
	tmpl := &Transaction{
		ID:                 uuid.New(),
		Creditor:           params.Creditor,
		Participants:       params.Participants,
		Amount:             params.Amount,
		Description:        params.Description,
		HouseholdID:        params.HouseholdID,
		IsRecurring:        true,
		RecurrenceInterval: params.Interval,
		StartDate:          &start,
		NextPaymentDate:    &start,
		CreatedAt:          now,
	}

	err := s.runInTx(ctx, func(ctx context.Context) error {
		return s.store.CreateTransaction(ctx, tmpl)
	})
	if err != nil {
		return nil, apperrors.DatabaseError("failed to create recurring template", err)
	}

	if dateutil.OnOrBefore(start, now) {
		spawned, err := s.SpawnTemplate(ctx, tmpl)
		if err != nil {
			return nil, err
		}
		if spawned {
			if next, ok := tmpl.RecurrenceInterval.Next(start); ok {
				tmpl.NextPaymentDate = &next
			}
		}
	}

	return tmpl, nil
}

// createConcrete atomically persists a concrete transaction together with
// its derived debt entries.
func (s *Service) createConcrete(ctx context.Context, tx *Transaction) error {
	debts := splitIntoDebts(tx, tx.CreatedAt)
	err := s.runInTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateTransaction(ctx, tx); err != nil {
			return err
		}
		for _, d := range debts {
			if err := s.store.CreateEntry(ctx, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.DatabaseError("failed to create transaction", err)
	}
	return nil
}

// UpdateTransaction replaces the scalar fields of a transaction. For a
// concrete transaction the debt set is deleted and recomputed from the new
// participants and amount in the same atomic unit; for a template only the
// scalar and recurrence fields are written and no debts are touched.
func (s *Service) UpdateTransaction(ctx context.Context, id uuid.UUID, params CreateParams) (*Transaction, error) {
	existing, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return nil, apperrors.NotFound("transaction")
		}
		return nil, apperrors.DatabaseError("failed to load transaction", err)
	}
	if existing.IsSettlement {
		return nil, apperrors.ImmutableRecord("settlement transactions are immutable")
	}
	if err := params.validate(); err != nil {
		return nil, err
	}

	updated := &Transaction{
		ID:           existing.ID,
		Creditor:     params.Creditor,
		Participants: params.Participants,
		Amount:       params.Amount,
		Description:  params.Description,
		HouseholdID:  params.HouseholdID,
		IsRecurring:  params.IsRecurring,
		CreatedAt:    existing.CreatedAt,
	}

	if params.IsRecurring {
		start := dateutil.StartOfDay(*params.StartDate)
		updated.RecurrenceInterval = params.Interval
		updated.StartDate = &start
		// Resubmitting the same start date keeps the advanced schedule; a
		// changed start date resets it.
		if existing.IsRecurring && existing.StartDate != nil && existing.StartDate.Equal(start) {
			updated.NextPaymentDate = existing.NextPaymentDate
		} else {
			updated.NextPaymentDate = &start
		}

		err = s.runInTx(ctx, func(ctx context.Context) error {
			return s.store.UpdateTransaction(ctx, updated)
		})
		if err != nil {
			return nil, apperrors.DatabaseError("failed to update recurring template", err)
		}
		return updated, nil
	}

	debts := splitIntoDebts(updated, s.now())
	err = s.runInTx(ctx, func(ctx context.Context) error {
		if err := s.store.DeleteEntriesByTransaction(ctx, id); err != nil {
			return err
		}
		if err := s.store.UpdateTransaction(ctx, updated); err != nil {
			return err
		}
		for _, d := range debts {
			if err := s.store.CreateEntry(ctx, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.DatabaseError("failed to update transaction", err)
	}

	s.invalidateBalances(ctx, updated.HouseholdID)
	return updated, nil
}

// DeleteTransaction removes a transaction and every debt entry that
// references it, atomically. No other records are touched.
func (s *Service) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	existing, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return apperrors.NotFound("transaction")
		}
		return apperrors.DatabaseError("failed to load transaction", err)
	}

	err = s.runInTx(ctx, func(ctx context.Context) error {
		if err := s.store.DeleteEntriesByTransaction(ctx, id); err != nil {
			return err
		}
		return s.store.DeleteTransaction(ctx, id)
	})
	if err != nil {
		return apperrors.DatabaseError("failed to delete transaction", err)
	}

	s.invalidateBalances(ctx, existing.HouseholdID)
	return nil
}

// GetTransaction retrieves a single transaction.
func (s *Service) GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return nil, apperrors.NotFound("transaction")
		}
		return nil, apperrors.DatabaseError("failed to load transaction", err)
	}
	return tx, nil
}

// ListTransactions lists a household's transactions.
func (s *Service) ListTransactions(ctx context.Context, filters TransactionFilters) ([]*Transaction, error) {
	txs, err := s.store.ListTransactions(ctx, filters)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to list transactions", err)
	}
	return txs, nil
}

// txRetries bounds retries of an atomic unit after serialization conflicts.
const txRetries = 3

// runInTx executes fn inside a serializable store transaction, retrying
// with backoff when the commit loses a serialization race. Validation and
// domain errors are never retried.
func (s *Service) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = s.attemptTx(ctx, fn)
		if !errors.Is(err, ErrTxConflict) || attempt >= txRetries {
			return err
		}
		s.log.Debug("retrying after serialization conflict", "attempt", attempt+1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 25 * time.Millisecond):
		}
	}
}

func (s *Service) attemptTx(ctx context.Context, fn func(ctx context.Context) error) error {
	txCtx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := fn(txCtx); err != nil {
		_ = s.store.RollbackTx(txCtx)
		return err
	}
	return s.store.CommitTx(txCtx)
}

func (s *Service) invalidateBalances(ctx context.Context, householdID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, householdID); err != nil {
		s.log.Warn("failed to invalidate balance cache", "household_id", householdID, "error", err)
	}
}
