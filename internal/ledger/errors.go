package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrAccountNotFound means no credit record exists for the account.
	// Provisioning is the caller's decision, never the ledger's.
	ErrAccountNotFound = errors.New("credit account not found")

	// ErrLockTimeout is returned after retries on row-lock contention are
	// exhausted. The operation did not happen and is safe to retry later.
	ErrLockTimeout = errors.New("credit ledger busy")

	// ErrInvariantViolation means the ledger detected impossible state,
	// such as a negative balance. The surrounding transaction is rolled
	// back and the request fails.
	ErrInvariantViolation = errors.New("credit ledger invariant violation")

	ErrUnknownKind     = errors.New("unknown operation kind")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrInvalidTier     = errors.New("unknown tier")
)

// InsufficientCreditsError rejects a deduct that would overdraw the account.
// Required and Available feed the HTTP 402 payload so clients can render an
// upgrade prompt without a second balance call.
type InsufficientCreditsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: need %d, have %d", e.Required, e.Available)
}

// IsInsufficientCredits unwraps err looking for an InsufficientCreditsError.
func IsInsufficientCredits(err error) (*InsufficientCreditsError, bool) {
	var ice *InsufficientCreditsError
	if errors.As(err, &ice) {
		return ice, true
	}
	return nil, false
}
