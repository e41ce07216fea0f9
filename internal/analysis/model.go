package analysis

import (
	"time"

	"github.com/google/uuid"

	"adcopysurge/internal/ledger"
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Analysis is one persisted run, successful or not. CreditsSpent records
// what the run ultimately cost after any compensating refund, so summing
// it per account matches the ledger's CONSUME minus REFUND rows.
type Analysis struct {
	ID           uuid.UUID        `db:"id" json:"id"`
	AccountID    ledger.AccountID `db:"account_id" json:"account_id"`
	Kind         ledger.Kind      `db:"kind" json:"kind"`
	Status       string           `db:"status" json:"status"`
	Score        *float64         `db:"score" json:"score,omitempty"`
	Verdict      string           `db:"verdict" json:"verdict,omitempty"`
	CreditsSpent int64            `db:"credits_spent" json:"credits_spent"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
}

// AdCopy is the input handed to the analyzer.
type AdCopy struct {
	Headline string `json:"headline"`
	Body     string `json:"body"`
	CTA      string `json:"cta"`
	Platform string `json:"platform"`
}

// Result is what the analyzer produces for one ad.
type Result struct {
	Score       float64  `json:"score"`
	Verdict     string   `json:"verdict"`
	Suggestions []string `json:"suggestions,omitempty"`
}

type RunRequest struct {
	Kind     string `json:"kind" binding:"required"`
	Headline string `json:"headline" binding:"required,max=500"`
	Body     string `json:"body" binding:"max=5000"`
	CTA      string `json:"cta" binding:"max=200"`
	Platform string `json:"platform" binding:"max=50"`
}

// RunResponse pairs the analysis with the post-deduct balance so clients
// can update their credit display without a second request.
type RunResponse struct {
	Analysis    Analysis `json:"analysis"`
	Result      *Result  `json:"result"`
	CreditsUsed int64    `json:"credits_used"`
	Balance     any      `json:"balance"`
}
