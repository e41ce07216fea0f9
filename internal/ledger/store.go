package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Bounded lock wait inside ledger transactions. Contention past this
// surfaces as a lock_not_available error and goes through the retry path
// instead of stalling the request.
const setLockTimeout = `SET LOCAL lock_timeout = '2000ms'`

const creditColumns = `account_id, balance, monthly_allowance, bonus_balance, total_consumed, tier, last_reset_at, created_at, updated_at`

type postgresStore struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) Store {
	return &postgresStore{db: db}
}

func (s *postgresStore) Provision(ctx context.Context, id AccountID, tier Tier, allowance int64) (*CreditRecord, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rec := &CreditRecord{}
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO credit_accounts (account_id, balance, monthly_allowance, bonus_balance, total_consumed, tier, last_reset_at)
		 VALUES ($1, $2, $2, 0, 0, $3, NOW())
		 ON CONFLICT (account_id) DO NOTHING
		 RETURNING `+creditColumns,
		id, allowance, tier,
	).StructScan(rec)
	if errors.Is(err, sql.ErrNoRows) {
		// Already provisioned; hand back the existing record untouched.
		err = tx.QueryRowxContext(ctx,
			`SELECT `+creditColumns+` FROM credit_accounts WHERE account_id = $1`,
			id,
		).StructScan(rec)
		if err != nil {
			return nil, err
		}
		return rec, tx.Commit()
	}
	if err != nil {
		return nil, err
	}

	// The opening grant is a ledger row too, so the log sums to the
	// balance from day one.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO credit_transactions (id, account_id, operation, amount, balance_after, description)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), id, OpMonthlyGrant, allowance, rec.Balance, "opening allowance grant",
	)
	if err != nil {
		return nil, err
	}

	return rec, tx.Commit()
}

func (s *postgresStore) Get(ctx context.Context, id AccountID) (*CreditRecord, error) {
	rec := &CreditRecord{}
	err := s.db.GetContext(ctx, rec,
		`SELECT `+creditColumns+` FROM credit_accounts WHERE account_id = $1`,
		id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *postgresStore) Deduct(ctx context.Context, id AccountID, amount int64, description string, ref *uuid.UUID) (*DeductResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, setLockTimeout); err != nil {
		return nil, err
	}

	rec := CreditRecord{}
	err = tx.QueryRowxContext(ctx,
		`SELECT `+creditColumns+` FROM credit_accounts WHERE account_id = $1`,
		id,
	).StructScan(&rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	txID := uuid.New()

	if rec.Tier.Unlimited() {
		// No charge, but the consume is still logged for usage history.
		_, err = tx.ExecContext(ctx,
			`INSERT INTO credit_transactions (id, account_id, operation, amount, balance_after, description, reference_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			txID, id, OpConsume, 0, rec.Balance, description, ref,
		)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return &DeductResult{
			Amount:        0,
			NewBalance:    rec.Balance,
			TotalConsumed: rec.TotalConsumed,
			Unlimited:     true,
			TransactionID: txID,
		}, nil
	}

	// The balance guard lives in the UPDATE itself. Two racing deducts
	// serialize on the row and the loser re-evaluates balance >= amount
	// against the committed value, so the account can never go negative.
	var newBalance, totalConsumed int64
	err = tx.QueryRowxContext(ctx,
		`UPDATE credit_accounts
		 SET balance = balance - $2, total_consumed = total_consumed + $2, updated_at = NOW()
		 WHERE account_id = $1 AND balance >= $2
		 RETURNING balance, total_consumed`,
		id, amount,
	).Scan(&newBalance, &totalConsumed)
	if errors.Is(err, sql.ErrNoRows) {
		var available int64
		if err := tx.QueryRowxContext(ctx,
			`SELECT balance FROM credit_accounts WHERE account_id = $1`, id,
		).Scan(&available); err != nil {
			return nil, err
		}
		return nil, &InsufficientCreditsError{Required: amount, Available: available}
	}
	if err != nil {
		return nil, translateError(err)
	}

	if newBalance < 0 {
		return nil, fmt.Errorf("%w: balance %d after deducting %d from account %s",
			ErrInvariantViolation, newBalance, amount, id)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO credit_transactions (id, account_id, operation, amount, balance_after, description, reference_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		txID, id, OpConsume, -amount, newBalance, description, ref,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, translateError(err)
	}

	return &DeductResult{
		Amount:        amount,
		NewBalance:    newBalance,
		TotalConsumed: totalConsumed,
		TransactionID: txID,
	}, nil
}

func (s *postgresStore) Refund(ctx context.Context, id AccountID, amount int64, description string, ref *uuid.UUID) (*RefundResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, setLockTimeout); err != nil {
		return nil, err
	}

	rec := CreditRecord{}
	err = tx.QueryRowxContext(ctx,
		`SELECT `+creditColumns+` FROM credit_accounts WHERE account_id = $1`,
		id,
	).StructScan(&rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	txID := uuid.New()

	if rec.Tier.Unlimited() {
		// Nothing was charged, so nothing comes back. Log it anyway to
		// keep the consume and refund rows paired under the reference.
		_, err = tx.ExecContext(ctx,
			`INSERT INTO credit_transactions (id, account_id, operation, amount, balance_after, description, reference_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			txID, id, OpRefund, 0, rec.Balance, description, ref,
		)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return &RefundResult{
			Amount:        0,
			NewBalance:    rec.Balance,
			Unlimited:     true,
			TransactionID: txID,
		}, nil
	}

	// total_consumed clamps at zero: a refund racing a monthly reset must
	// not drive the lifetime counter negative.
	var newBalance int64
	err = tx.QueryRowxContext(ctx,
		`UPDATE credit_accounts
		 SET balance = balance + $2, total_consumed = GREATEST(total_consumed - $2, 0), updated_at = NOW()
		 WHERE account_id = $1
		 RETURNING balance`,
		id, amount,
	).Scan(&newBalance)
	if err != nil {
		return nil, translateError(err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO credit_transactions (id, account_id, operation, amount, balance_after, description, reference_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		txID, id, OpRefund, amount, newBalance, description, ref,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, translateError(err)
	}

	return &RefundResult{
		Amount:        amount,
		NewBalance:    newBalance,
		TransactionID: txID,
	}, nil
}

func (s *postgresStore) ResetMonthly(ctx context.Context, id AccountID, now time.Time) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, setLockTimeout); err != nil {
		return false, err
	}

	// The row lock serializes concurrent reset attempts; the period guard
	// below makes the second one a no-op instead of a double grant.
	rec := CreditRecord{}
	err = tx.QueryRowxContext(ctx,
		`SELECT `+creditColumns+` FROM credit_accounts WHERE account_id = $1 FOR UPDATE`,
		id,
	).StructScan(&rec)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrAccountNotFound
	}
	if err != nil {
		return false, err
	}

	if !rec.LastResetAt.UTC().Before(monthStart(now)) {
		return false, nil
	}

	newBalance := rec.MonthlyAllowance + rec.BonusBalance
	delta := newBalance - rec.Balance

	_, err = tx.ExecContext(ctx,
		`UPDATE credit_accounts
		 SET balance = $2, total_consumed = 0, last_reset_at = $3, updated_at = NOW()
		 WHERE account_id = $1`,
		id, newBalance, now.UTC(),
	)
	if err != nil {
		return false, translateError(err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO credit_transactions (id, account_id, operation, amount, balance_after, description)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), id, OpMonthlyGrant, delta, newBalance, "monthly allowance grant",
	)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, translateError(err)
	}
	return true, nil
}

func (s *postgresStore) ManualReset(ctx context.Context, id AccountID) (*CreditRecord, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, setLockTimeout); err != nil {
		return nil, err
	}

	rec := &CreditRecord{}
	err = tx.QueryRowxContext(ctx,
		`SELECT `+creditColumns+` FROM credit_accounts WHERE account_id = $1 FOR UPDATE`,
		id,
	).StructScan(rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	newBalance := rec.MonthlyAllowance + rec.BonusBalance
	delta := newBalance - rec.Balance
	now := time.Now().UTC()

	err = tx.QueryRowxContext(ctx,
		`UPDATE credit_accounts
		 SET balance = $2, total_consumed = 0, last_reset_at = $3, updated_at = NOW()
		 WHERE account_id = $1
		 RETURNING `+creditColumns,
		id, newBalance, now,
	).StructScan(rec)
	if err != nil {
		return nil, translateError(err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO credit_transactions (id, account_id, operation, amount, balance_after, description)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), id, OpManualReset, delta, newBalance, "manual reset by admin",
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, translateError(err)
	}
	return rec, nil
}

func (s *postgresStore) GrantBonus(ctx context.Context, id AccountID, amount int64, note string) (*CreditRecord, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, setLockTimeout); err != nil {
		return nil, err
	}

	rec := &CreditRecord{}
	err = tx.QueryRowxContext(ctx,
		`UPDATE credit_accounts
		 SET bonus_balance = bonus_balance + $2, balance = balance + $2, updated_at = NOW()
		 WHERE account_id = $1
		 RETURNING `+creditColumns,
		id, amount,
	).StructScan(rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, translateError(err)
	}

	if note == "" {
		note = "bonus credit grant"
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO credit_transactions (id, account_id, operation, amount, balance_after, description)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), id, OpBonusGrant, amount, rec.Balance, note,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, translateError(err)
	}
	return rec, nil
}

func (s *postgresStore) Transactions(ctx context.Context, id AccountID, limit, offset int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	var txs []Transaction
	err := s.db.SelectContext(ctx, &txs, `
		SELECT id, account_id, operation, amount, balance_after, description, reference_id, created_at
		FROM credit_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, id, limit, offset)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []Transaction{}
	}
	return txs, nil
}

func (s *postgresStore) SumTransactions(ctx context.Context, id AccountID) (int64, error) {
	var sum int64
	err := s.db.GetContext(ctx, &sum,
		`SELECT COALESCE(SUM(amount), 0) FROM credit_transactions WHERE account_id = $1`,
		id,
	)
	return sum, err
}

func (s *postgresStore) ListDueForReset(ctx context.Context, now time.Time, limit int) ([]AccountID, error) {
	if limit <= 0 {
		limit = 500
	}

	var ids []AccountID
	err := s.db.SelectContext(ctx, &ids,
		`SELECT account_id FROM credit_accounts
		 WHERE last_reset_at < $1
		 ORDER BY last_reset_at ASC
		 LIMIT $2`,
		monthStart(now), limit,
	)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// monthStart truncates to the first instant of the UTC calendar month.
func monthStart(now time.Time) time.Time {
	y, m, _ := now.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// translateError maps check-constraint violations onto the invariant error.
// The balance >= 0 constraint in the schema is the last line of defense if
// a future query forgets its guard.
func translateError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23514" {
		return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}
	return err
}

// isTransient reports whether the error is worth retrying: lock wait
// timeout, serialization failure, or deadlock. Everything else is final.
func isTransient(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "55P03", "40001", "40P01":
		return true
	}
	return false
}
