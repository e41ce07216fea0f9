package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence boundary of the credit ledger. Every mutation
// runs inside a single database transaction that updates the account row
// and appends the matching transaction log row, or does neither.
type Store interface {
	// Provision creates the credit record with a full opening allowance.
	// Safe to call twice; the existing record is returned untouched.
	Provision(ctx context.Context, id AccountID, tier Tier, allowance int64) (*CreditRecord, error)

	// Get reads the credit record. Returns ErrAccountNotFound if missing.
	Get(ctx context.Context, id AccountID) (*CreditRecord, error)

	// Deduct atomically charges amount credits. Unlimited tiers are never
	// charged but still get a zero-amount CONSUME row. Returns
	// InsufficientCreditsError when the balance cannot cover amount.
	Deduct(ctx context.Context, id AccountID, amount int64, description string, ref *uuid.UUID) (*DeductResult, error)

	// Refund returns amount credits, clamping total_consumed at zero.
	Refund(ctx context.Context, id AccountID, amount int64, description string, ref *uuid.UUID) (*RefundResult, error)

	// ResetMonthly applies the calendar-month allowance reset. Returns
	// false without mutating when the account was already reset in the
	// current UTC month.
	ResetMonthly(ctx context.Context, id AccountID, now time.Time) (bool, error)

	// ManualReset is the admin override: same effect as a monthly reset
	// but ignores the period guard and logs MANUAL_RESET.
	ManualReset(ctx context.Context, id AccountID) (*CreditRecord, error)

	// GrantBonus adds non-expiring bonus credits.
	GrantBonus(ctx context.Context, id AccountID, amount int64, note string) (*CreditRecord, error)

	// Transactions lists ledger rows newest first.
	Transactions(ctx context.Context, id AccountID, limit, offset int) ([]Transaction, error)

	// SumTransactions folds the signed transaction log for reconciliation.
	SumTransactions(ctx context.Context, id AccountID) (int64, error)

	// ListDueForReset returns accounts whose last reset predates the
	// current month, oldest first.
	ListDueForReset(ctx context.Context, now time.Time, limit int) ([]AccountID, error)
}
