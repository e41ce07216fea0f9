package analysis

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"adcopysurge/internal/ledger"
	"adcopysurge/internal/logger"
	"adcopysurge/internal/metrics"
)

// CreditLedger is the slice of the ledger the orchestrator needs. Deduct
// happens before the analyzer runs; Refund is the compensating transaction
// when the paid-for work fails.
type CreditLedger interface {
	Deduct(ctx context.Context, id ledger.AccountID, kind ledger.Kind, quantity int64, ref *uuid.UUID) (*ledger.DeductResult, error)
	Refund(ctx context.Context, id ledger.AccountID, kind ledger.Kind, quantity int64, ref *uuid.UUID) (*ledger.RefundResult, error)
}

// Notifier queues billing-related emails. A nil-safe no-op implementation
// exists for tests.
type Notifier interface {
	SendLowCreditWarning(ctx context.Context, to string, balance int64) error
	SendRefundFailureAlert(ctx context.Context, accountID string, kind string, amount int64, cause string) error
}

type Service interface {
	// Run consumes credits, performs the analysis, and compensates on
	// failure. callerEmail feeds the low-balance warning; empty skips it.
	Run(ctx context.Context, accountID ledger.AccountID, callerEmail string, req RunRequest) (*RunResponse, error)
	List(ctx context.Context, accountID ledger.AccountID, limit, offset int) ([]Analysis, error)
}

type service struct {
	repo         Repository
	credits      CreditLedger
	analyzer     Analyzer
	notifier     Notifier
	lowThreshold int64
}

func NewService(repo Repository, credits CreditLedger, analyzer Analyzer, notifier Notifier, lowThreshold int64) Service {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &service{
		repo:         repo,
		credits:      credits,
		analyzer:     analyzer,
		notifier:     notifier,
		lowThreshold: lowThreshold,
	}
}

func (s *service) Run(ctx context.Context, accountID ledger.AccountID, callerEmail string, req RunRequest) (*RunResponse, error) {
	kind, err := ledger.ParseKind(req.Kind)
	if err != nil {
		return nil, err
	}

	// The analysis id is generated up front and threaded through the
	// ledger as reference_id, pairing the CONSUME row (and any REFUND)
	// with the run that caused them.
	analysisID := uuid.New()

	deducted, err := s.credits.Deduct(ctx, accountID, kind, 1, &analysisID)
	if err != nil {
		// Includes InsufficientCredits and lock-timeout exhaustion. In
		// both cases nothing was charged, so there is nothing to undo.
		return nil, err
	}

	result, analyzeErr := s.analyzer.Analyze(ctx, AdCopy{
		Headline: req.Headline,
		Body:     req.Body,
		CTA:      req.CTA,
		Platform: req.Platform,
	})
	if analyzeErr != nil {
		return nil, s.compensate(ctx, accountID, kind, analysisID, deducted, analyzeErr)
	}

	a := &Analysis{
		ID:           analysisID,
		AccountID:    accountID,
		Kind:         kind,
		Status:       StatusCompleted,
		Score:        &result.Score,
		Verdict:      result.Verdict,
		CreditsSpent: deducted.Amount,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		// The analysis succeeded and was paid for; losing the history row
		// is not worth failing the request over.
		logger.WithError(err).Error("failed to persist analysis",
			"analysis_id", analysisID.String(), "account_id", accountID.String())
	}

	metrics.RecordAnalysis(string(kind), StatusCompleted)

	if !deducted.Unlimited && callerEmail != "" && deducted.NewBalance <= s.lowThreshold {
		if err := s.notifier.SendLowCreditWarning(ctx, callerEmail, deducted.NewBalance); err != nil {
			logger.WithError(err).Warn("failed to queue low-credit warning",
				"account_id", accountID.String())
		}
	}

	resp := &RunResponse{
		Analysis:    *a,
		Result:      result,
		CreditsUsed: deducted.Amount,
	}
	if deducted.Unlimited {
		resp.Balance = "unlimited"
	} else {
		resp.Balance = deducted.NewBalance
	}
	return resp, nil
}

// compensate issues the at-most-once refund for a failed run and records
// the failed analysis. It is only ever called on the analyzer-failure
// path: ambiguous deduct timeouts never reach it, so a deduct that may or
// may not have happened is never blindly refunded.
func (s *service) compensate(ctx context.Context, accountID ledger.AccountID, kind ledger.Kind, analysisID uuid.UUID, deducted *ledger.DeductResult, cause error) error {
	creditsSpent := int64(0)

	if _, err := s.credits.Refund(ctx, accountID, kind, 1, &analysisID); err != nil {
		// The account paid for work it never got and the compensation
		// failed too. Flag loudly for manual reconciliation.
		creditsSpent = deducted.Amount
		metrics.RecordRefundFailure()
		logger.WithFields(map[string]any{
			"account_id":  accountID.String(),
			"analysis_id": analysisID.String(),
			"kind":        string(kind),
			"amount":      deducted.Amount,
		}).Error("refund failed after analysis failure, manual reconciliation required",
			"refund_error", err, "analysis_error", cause)

		if alertErr := s.notifier.SendRefundFailureAlert(ctx, accountID.String(), string(kind), deducted.Amount, err.Error()); alertErr != nil {
			logger.WithError(alertErr).Error("failed to queue refund-failure alert")
		}
	}

	a := &Analysis{
		ID:           analysisID,
		AccountID:    accountID,
		Kind:         kind,
		Status:       StatusFailed,
		Verdict:      "analysis failed",
		CreditsSpent: creditsSpent,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		logger.WithError(err).Error("failed to persist failed analysis",
			"analysis_id", analysisID.String())
	}

	metrics.RecordAnalysis(string(kind), StatusFailed)
	return fmt.Errorf("analysis failed: %w", cause)
}

func (s *service) List(ctx context.Context, accountID ledger.AccountID, limit, offset int) ([]Analysis, error) {
	return s.repo.ListByAccount(ctx, accountID, limit, offset)
}

type noopNotifier struct{}

func (noopNotifier) SendLowCreditWarning(ctx context.Context, to string, balance int64) error {
	return nil
}

func (noopNotifier) SendRefundFailureAlert(ctx context.Context, accountID string, kind string, amount int64, cause string) error {
	return nil
}
