package ledger

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	apperrors "github.com/avoronkov/hearthshare/internal/shared/errors"
)

// NetBalances aggregates every ledger entry of a household into net
// owed-per-pair balances. Debts add to what the debtor owes; settlement
// records, written with the direction reversed, subtract from it. The view
// is computed on read and never persisted; a cache hit short-circuits the
// aggregation.
func (s *Service) NetBalances(ctx context.Context, householdID string) ([]PairBalance, error) {
	if householdID == "" {
		return nil, apperrors.Validation("householdId", "is required")
	}

	if s.cache != nil {
		if balances, ok, err := s.cache.Get(ctx, householdID); err != nil {
			s.log.Warn("balance cache read failed", "household_id", householdID, "error", err)
		} else if ok {
			return balances, nil
		}
	}

	entries, err := s.store.ListEntries(ctx, EntryFilters{HouseholdID: householdID})
	if err != nil {
		return nil, apperrors.DatabaseError("failed to load ledger entries", err)
	}

	// owed[debtor][creditor] accumulates gross amounts in each direction.
	owed := make(map[string]map[string]decimal.Decimal)
	add := func(debtor, creditor string, amount decimal.Decimal) {
		if owed[debtor] == nil {
			owed[debtor] = make(map[string]decimal.Decimal)
		}
		owed[debtor][creditor] = owed[debtor][creditor].Add(amount)
	}
	for _, e := range entries {
		add(e.Debtor, e.Creditor, e.Amount)
	}

	seen := make(map[[2]string]bool)
	var balances []PairBalance
	for debtor, creditors := range owed {
		for creditor := range creditors {
			a, b := debtor, creditor
			if a > b {
				a, b = b, a
			}
			key := [2]string{a, b}
			if seen[key] {
				continue
			}
			seen[key] = true

			net := owed[a][b].Sub(owed[b][a])
			switch {
			case net.IsPositive():
				balances = append(balances, PairBalance{Debtor: a, Creditor: b, Amount: net})
			case net.IsNegative():
				balances = append(balances, PairBalance{Debtor: b, Creditor: a, Amount: net.Neg()})
			}
		}
	}

	sort.Slice(balances, func(i, j int) bool {
		if balances[i].Debtor != balances[j].Debtor {
			return balances[i].Debtor < balances[j].Debtor
		}
		return balances[i].Creditor < balances[j].Creditor
	})

	if s.cache != nil {
		if err := s.cache.Set(ctx, householdID, balances); err != nil {
			s.log.Warn("balance cache write failed", "household_id", householdID, "error", err)
		}
	}

	return balances, nil
}
