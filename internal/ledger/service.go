package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"adcopysurge/internal/logger"
	"adcopysurge/internal/metrics"
)

const (
	maxRetries       = 3
	baseRetryBackoff = 50 * time.Millisecond
)

// Service wraps the store with pricing, retries, caching and metrics.
// It owns no business policy beyond the ledger itself: it never decides
// when to refund or provision, only how.
type Service interface {
	GetBalance(ctx context.Context, id AccountID) (*BalanceView, error)
	HasSufficient(ctx context.Context, id AccountID, kind Kind, quantity int64) (bool, int64, error)
	Deduct(ctx context.Context, id AccountID, kind Kind, quantity int64, ref *uuid.UUID) (*DeductResult, error)
	Refund(ctx context.Context, id AccountID, kind Kind, quantity int64, ref *uuid.UUID) (*RefundResult, error)
	Provision(ctx context.Context, id AccountID, tier Tier) (*CreditRecord, error)
	ResetMonthly(ctx context.Context, id AccountID) (bool, error)
	ResetDue(ctx context.Context) (int, error)
	ManualReset(ctx context.Context, id AccountID) (*BalanceView, error)
	GrantBonus(ctx context.Context, id AccountID, amount int64, note string) (*BalanceView, error)
	Transactions(ctx context.Context, id AccountID, limit, offset int) ([]Transaction, error)
	Reconcile(ctx context.Context, id AccountID) (*ReconcileReport, error)
}

// AccountDirectory resolves an account's contact address. The ledger owns
// the interface so sending reset notices never drags account storage into
// this package.
type AccountDirectory interface {
	Email(ctx context.Context, id AccountID) (string, error)
}

// ResetNotifier delivers the monthly-reset notice after a grant applies.
type ResetNotifier interface {
	SendMonthlyResetNotice(ctx context.Context, to string, allowance int64) error
}

type service struct {
	store     Store
	costs     *CostTable
	cache     BalanceCache
	directory AccountDirectory
	notifier  ResetNotifier
}

func NewService(store Store, costs *CostTable, cache BalanceCache, directory AccountDirectory, notifier ResetNotifier) Service {
	if cache == nil {
		cache = NewNoopCache()
	}
	if directory == nil {
		directory = noopDirectory{}
	}
	if notifier == nil {
		notifier = noopResetNotifier{}
	}
	return &service{store: store, costs: costs, cache: cache, directory: directory, notifier: notifier}
}

type noopDirectory struct{}

func (noopDirectory) Email(ctx context.Context, id AccountID) (string, error) { return "", nil }

type noopResetNotifier struct{}

func (noopResetNotifier) SendMonthlyResetNotice(ctx context.Context, to string, allowance int64) error {
	return nil
}

func (s *service) GetBalance(ctx context.Context, id AccountID) (*BalanceView, error) {
	if view, ok := s.cache.Get(ctx, id); ok {
		return view, nil
	}

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	view := rec.View()
	s.cache.Set(ctx, id, view)
	return view, nil
}

// HasSufficient is advisory only. The answer can go stale the moment it is
// returned; Deduct re-checks atomically and remains the sole gatekeeper.
func (s *service) HasSufficient(ctx context.Context, id AccountID, kind Kind, quantity int64) (bool, int64, error) {
	required, err := s.costs.Required(kind, quantity)
	if err != nil {
		return false, 0, err
	}

	view, err := s.GetBalance(ctx, id)
	if err != nil {
		return false, required, err
	}

	if view.IsUnlimited {
		return true, required, nil
	}
	return view.Balance >= required, required, nil
}

func (s *service) Deduct(ctx context.Context, id AccountID, kind Kind, quantity int64, ref *uuid.UUID) (*DeductResult, error) {
	required, err := s.costs.Required(kind, quantity)
	if err != nil {
		return nil, err
	}
	description := fmt.Sprintf("%s x%d", kind, quantity)

	var res *DeductResult
	err = s.retryTransient(ctx, func() error {
		var opErr error
		res, opErr = s.store.Deduct(ctx, id, required, description, ref)
		return opErr
	})
	if err != nil {
		if _, ok := IsInsufficientCredits(err); ok {
			metrics.RecordDeductRejection()
			return nil, err
		}
		if errors.Is(err, ErrInvariantViolation) {
			metrics.RecordInvariantViolation()
			logger.WithFields(map[string]any{
				"account_id": id.String(),
				"kind":       string(kind),
				"amount":     required,
			}).Error("deduct hit ledger invariant violation", "error", err)
		}
		return nil, err
	}

	s.cache.Invalidate(ctx, id)
	metrics.RecordConsume(string(kind), res.Amount)
	return res, nil
}

func (s *service) Refund(ctx context.Context, id AccountID, kind Kind, quantity int64, ref *uuid.UUID) (*RefundResult, error) {
	amount, err := s.costs.Required(kind, quantity)
	if err != nil {
		return nil, err
	}
	description := fmt.Sprintf("refund: %s x%d", kind, quantity)

	var res *RefundResult
	err = s.retryTransient(ctx, func() error {
		var opErr error
		res, opErr = s.store.Refund(ctx, id, amount, description, ref)
		return opErr
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, id)
	metrics.RecordRefund(string(kind), res.Amount)
	return res, nil
}

func (s *service) Provision(ctx context.Context, id AccountID, tier Tier) (*CreditRecord, error) {
	if !tier.Valid() {
		return nil, ErrInvalidTier
	}
	rec, err := s.store.Provision(ctx, id, tier, AllowanceFor(tier))
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, id)
	return rec, nil
}

func (s *service) ResetMonthly(ctx context.Context, id AccountID) (bool, error) {
	var applied bool
	err := s.retryTransient(ctx, func() error {
		var opErr error
		applied, opErr = s.store.ResetMonthly(ctx, id, time.Now())
		return opErr
	})
	if err != nil {
		return false, err
	}

	if applied {
		s.cache.Invalidate(ctx, id)
		metrics.RecordMonthlyReset()
		s.notifyReset(ctx, id)
	}
	return applied, nil
}

// notifyReset queues the monthly-reset notice for an account that just
// received its grant. The reset itself already committed, so lookup or
// delivery failures are logged and swallowed.
func (s *service) notifyReset(ctx context.Context, id AccountID) {
	to, err := s.directory.Email(ctx, id)
	if err != nil {
		logger.WithError(err).Warn("could not resolve email for reset notice", "account_id", id.String())
		return
	}
	if to == "" {
		return
	}

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		logger.WithError(err).Warn("could not load record for reset notice", "account_id", id.String())
		return
	}

	if err := s.notifier.SendMonthlyResetNotice(ctx, to, rec.Balance); err != nil {
		logger.WithError(err).Warn("failed to queue monthly reset notice", "account_id", id.String())
	}
}

// ResetDue sweeps every account overdue for its monthly grant. One failed
// account does not abort the sweep; it stays overdue and the next run
// picks it up again.
func (s *service) ResetDue(ctx context.Context) (int, error) {
	ids, err := s.store.ListDueForReset(ctx, time.Now(), 0)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, id := range ids {
		ok, err := s.ResetMonthly(ctx, id)
		if err != nil {
			logger.WithError(err).Error("monthly reset failed", "account_id", id.String())
			continue
		}
		if ok {
			applied++
		}
	}
	return applied, nil
}

func (s *service) ManualReset(ctx context.Context, id AccountID) (*BalanceView, error) {
	rec, err := s.store.ManualReset(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, id)
	logger.Info("manual credit reset applied", "account_id", id.String(), "balance", rec.Balance)
	return rec.View(), nil
}

func (s *service) GrantBonus(ctx context.Context, id AccountID, amount int64, note string) (*BalanceView, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	rec, err := s.store.GrantBonus(ctx, id, amount, note)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, id)
	logger.Info("bonus credits granted", "account_id", id.String(), "amount", amount)
	return rec.View(), nil
}

func (s *service) Transactions(ctx context.Context, id AccountID, limit, offset int) ([]Transaction, error) {
	return s.store.Transactions(ctx, id, limit, offset)
}

func (s *service) Reconcile(ctx context.Context, id AccountID) (*ReconcileReport, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	sum, err := s.store.SumTransactions(ctx, id)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{
		AccountID:  id,
		Balance:    rec.Balance,
		LogSum:     sum,
		Consistent: rec.Balance == sum,
	}
	if !report.Consistent {
		metrics.RecordInvariantViolation()
		logger.WithFields(map[string]any{
			"account_id": id.String(),
			"balance":    rec.Balance,
			"log_sum":    sum,
		}).Error("ledger reconciliation drift detected")
	}
	return report, nil
}

// retryTransient runs op, retrying lock conflicts with exponential backoff.
// Non-transient errors and context cancellation pass through immediately.
func (s *service) retryTransient(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			metrics.RecordLedgerRetry()
			select {
			case <-time.After(baseRetryBackoff << (attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err = op()
		if err == nil || !isTransient(err) {
			return err
		}
	}

	metrics.RecordLockTimeout()
	return fmt.Errorf("%w: %v", ErrLockTimeout, err)
}
