package ledger

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AccountID is the sole identifier accepted at the ledger boundary.
// Callers resolve external identities (auth subjects, API keys) to an
// AccountID before touching credits; raw strings never reach a query.
type AccountID struct {
	uuid.UUID
}

func NewAccountID() AccountID {
	return AccountID{uuid.New()}
}

func ParseAccountID(s string) (AccountID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return AccountID{}, err
	}
	return AccountID{u}, nil
}

// Tier determines the monthly allowance and whether deducts are metered.
type Tier string

const (
	TierFree           Tier = "free"
	TierStarter        Tier = "starter"
	TierProfessional   Tier = "professional"
	TierAgencyStandard Tier = "agency_standard"
	TierAgencyPremium  Tier = "agency_premium"
	TierEnterprise     Tier = "enterprise"
)

// Unlimited reports whether the tier bypasses balance checks entirely.
func (t Tier) Unlimited() bool {
	return t == TierAgencyPremium || t == TierEnterprise
}

func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierStarter, TierProfessional, TierAgencyStandard, TierAgencyPremium, TierEnterprise:
		return true
	}
	return false
}

// Operation classifies a ledger transaction row.
type Operation string

const (
	OpConsume      Operation = "CONSUME"
	OpRefund       Operation = "REFUND"
	OpManualReset  Operation = "MANUAL_RESET"
	OpMonthlyGrant Operation = "MONTHLY_GRANT"
	OpBonusGrant   Operation = "BONUS_GRANT"
)

// Kind is a billable operation. Each kind has a fixed credit cost.
type Kind string

const (
	KindBasicAnalysis Kind = "basic_analysis"
	KindFullAnalysis  Kind = "full_analysis"
	KindAdGeneration  Kind = "ad_generation"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindBasicAnalysis, KindFullAnalysis, KindAdGeneration:
		return Kind(s), nil
	}
	return "", ErrUnknownKind
}

// CreditRecord is one account's row in credit_accounts.
type CreditRecord struct {
	AccountID        AccountID `db:"account_id" json:"account_id"`
	Balance          int64     `db:"balance" json:"balance"`
	MonthlyAllowance int64     `db:"monthly_allowance" json:"monthly_allowance"`
	BonusBalance     int64     `db:"bonus_balance" json:"bonus_balance"`
	TotalConsumed    int64     `db:"total_consumed" json:"total_consumed"`
	Tier             Tier      `db:"tier" json:"tier"`
	LastResetAt      time.Time `db:"last_reset_at" json:"last_reset_at"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

func (r *CreditRecord) View() *BalanceView {
	return &BalanceView{
		Balance:          r.Balance,
		MonthlyAllowance: r.MonthlyAllowance,
		BonusBalance:     r.BonusBalance,
		TotalConsumed:    r.TotalConsumed,
		Tier:             r.Tier,
		IsUnlimited:      r.Tier.Unlimited(),
		LastResetAt:      r.LastResetAt,
	}
}

// Transaction is one append-only ledger row. Amount is signed: negative for
// consumption, positive for credits granted or returned. BalanceAfter
// snapshots the account balance after the row was applied, so the log can
// be audited without replaying it.
type Transaction struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	AccountID    AccountID  `db:"account_id" json:"account_id"`
	Operation    Operation  `db:"operation" json:"operation"`
	Amount       int64      `db:"amount" json:"amount"`
	BalanceAfter int64      `db:"balance_after" json:"balance_after"`
	Description  string     `db:"description" json:"description,omitempty"`
	ReferenceID  *uuid.UUID `db:"reference_id" json:"reference_id,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// BalanceView is the read model returned to clients. Unlimited tiers render
// balance as the string "unlimited" so UIs never show a meaningless number.
type BalanceView struct {
	Balance          int64     `json:"-"`
	MonthlyAllowance int64     `json:"monthly_allowance"`
	BonusBalance     int64     `json:"bonus_balance"`
	TotalConsumed    int64     `json:"total_consumed"`
	Tier             Tier      `json:"tier"`
	IsUnlimited      bool      `json:"is_unlimited"`
	LastResetAt      time.Time `json:"last_reset_at"`
}

func (v BalanceView) MarshalJSON() ([]byte, error) {
	type alias BalanceView
	out := struct {
		Balance any `json:"balance"`
		alias
	}{alias: alias(v)}
	if v.IsUnlimited {
		out.Balance = "unlimited"
	} else {
		out.Balance = v.Balance
	}
	return json.Marshal(out)
}

// DeductResult reports what a deduct actually charged. Amount is 0 for
// unlimited tiers, which still log a CONSUME row for usage analytics.
type DeductResult struct {
	Amount        int64
	NewBalance    int64
	TotalConsumed int64
	Unlimited     bool
	TransactionID uuid.UUID
}

// RefundResult mirrors DeductResult for compensating refunds.
type RefundResult struct {
	Amount        int64
	NewBalance    int64
	Unlimited     bool
	TransactionID uuid.UUID
}

// ReconcileReport compares the materialized balance against the transaction
// log. Consistent is false when the two drifted, which means a bug or manual
// database surgery; every such account needs investigation.
type ReconcileReport struct {
	AccountID  AccountID `json:"account_id"`
	Balance    int64     `json:"balance"`
	LogSum     int64     `json:"log_sum"`
	Consistent bool      `json:"consistent"`
}
