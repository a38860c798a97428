package ledger

import "errors"

// Store errors
var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrEntryNotFound       = errors.New("ledger entry not found")

	// ErrTxConflict is reported by the store when a serializable
	// transaction fails to commit because of a concurrent writer.
	// The whole atomic unit may be retried.
	ErrTxConflict = errors.New("transaction serialization conflict")
)

// Domain errors
var (
	ErrNoParticipants    = errors.New("participants must not be empty")
	ErrNonPositiveAmount = errors.New("amount must be positive")
	ErrInvalidInterval   = errors.New("invalid recurrence interval")
	ErrInvalidStartDate  = errors.New("invalid start date")
	ErrNoUnsettledDebts  = errors.New("no unsettled debts between pair")
)
