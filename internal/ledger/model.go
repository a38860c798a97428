package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avoronkov/hearthshare/pkg/dateutil"
)

// RecurrenceInterval describes how often a recurring template spawns a
// concrete transaction.
type RecurrenceInterval string

const (
	IntervalOnce         RecurrenceInterval = "once"
	IntervalWeekly       RecurrenceInterval = "weekly"
	IntervalBiweekly     RecurrenceInterval = "biweekly"
	IntervalMonthly      RecurrenceInterval = "monthly"
	IntervalSemiannually RecurrenceInterval = "semiannually"
)

// IsValid returns true if the interval is one of the supported values.
func (i RecurrenceInterval) IsValid() bool {
	switch i {
	case IntervalOnce, IntervalWeekly, IntervalBiweekly, IntervalMonthly, IntervalSemiannually:
		return true
	}
	return false
}

// Next returns the occurrence following from, and whether one exists.
// A "once" interval (or an unknown one) has no further occurrence.
// Monthly and semiannual advancement use calendar-month arithmetic with
// day-of-month clamping, never fixed 30-day increments.
func (i RecurrenceInterval) Next(from time.Time) (time.Time, bool) {
	switch i {
	case IntervalWeekly:
		return from.AddDate(0, 0, 7), true
	case IntervalBiweekly:
		return from.AddDate(0, 0, 14), true
	case IntervalMonthly:
		return dateutil.AddMonths(from, 1), true
	case IntervalSemiannually:
		return dateutil.AddMonths(from, 6), true
	default:
		return time.Time{}, false
	}
}

// Transaction is a shared expense, a settlement marker, or a recurring
// template.
//
// A record with IsRecurring = true is a template: it never owns ledger
// entries directly and only spawns concrete instances. A record with
// IsRecurring = false and IsSettlement = false is a concrete transaction
// and owns exactly one debt entry per participant other than the creditor.
type Transaction struct {
	ID           uuid.UUID
	Creditor     string
	Participants []string
	Amount       decimal.Decimal
	Description  string
	HouseholdID  string
	IsSettlement bool
	IsRecurring  bool

	// Recurrence fields, set only when IsRecurring is true.
	RecurrenceInterval RecurrenceInterval
	StartDate          *time.Time
	NextPaymentDate    *time.Time

	CreatedAt time.Time
}

// IsTemplate reports whether the transaction is a recurring template.
func (t *Transaction) IsTemplate() bool {
	return t.IsRecurring
}

// SplitCount returns the number of participants sharing the amount.
func (t *Transaction) SplitCount() int {
	return len(t.Participants)
}

// DebtorCount returns the number of participants excluding the creditor,
// i.e. the number of debt entries a concrete transaction owns.
func (t *Transaction) DebtorCount() int {
	n := 0
	for _, p := range t.Participants {
		if p != t.Creditor {
			n++
		}
	}
	return n
}

// EntryType discriminates the two kinds of ledger entries.
type EntryType string

const (
	// EntryTypeDebt is an individual obligation derived from a transaction.
	EntryTypeDebt EntryType = "debt"
	// EntryTypeSettlement is a reversing record produced by settling the
	// unsettled debts between a pair.
	EntryTypeSettlement EntryType = "settlement"
)

// LedgerEntry is a single row of the household ledger: either a debt or a
// settlement record, distinguished by an explicit EntryType tag rather than
// field sniffing.
type LedgerEntry struct {
	ID          uuid.UUID
	EntryType   EntryType
	Creditor    string
	Debtor      string
	Amount      decimal.Decimal
	Description string
	HouseholdID string

	// RelatedTransactionID links a debt to its owning transaction.
	// Nil for settlement records.
	RelatedTransactionID *uuid.UUID

	IsSettled bool
	CreatedAt time.Time
}

// IsDebt reports whether the entry is a debt.
func (e *LedgerEntry) IsDebt() bool {
	return e.EntryType == EntryTypeDebt
}

// IsSettlementRecord reports whether the entry is a settlement record.
func (e *LedgerEntry) IsSettlementRecord() bool {
	return e.EntryType == EntryTypeSettlement
}

// PairBalance is the net amount one participant owes another, aggregated
// over every ledger entry of a household. Amount is always positive; the
// direction is given by Debtor and Creditor.
type PairBalance struct {
	Debtor   string          `json:"debtor"`
	Creditor string          `json:"creditor"`
	Amount   decimal.Decimal `json:"amount"`
}

// EditDecision is the result of the edit guard check.
type EditDecision struct {
	Allowed bool   `json:"canEdit"`
	Reason  string `json:"reason,omitempty"`
}

// EntryFilters narrows ListEntries queries. All filters are equality
// filters; zero values are ignored.
type EntryFilters struct {
	HouseholdID          string
	Debtor               string
	Creditor             string
	EntryType            EntryType
	RelatedTransactionID *uuid.UUID
	OnlyUnsettled        bool
}

// TransactionFilters narrows ListTransactions queries.
type TransactionFilters struct {
	HouseholdID   string
	RecurringOnly bool
}
