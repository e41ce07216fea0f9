package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"adcopysurge/internal/ledger"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, a *Analysis) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockRepository) ListByAccount(ctx context.Context, id ledger.AccountID, limit, offset int) ([]Analysis, error) {
	args := m.Called(ctx, id, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Analysis), args.Error(1)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Deduct(ctx context.Context, id ledger.AccountID, kind ledger.Kind, quantity int64, ref *uuid.UUID) (*ledger.DeductResult, error) {
	args := m.Called(ctx, id, kind, quantity, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.DeductResult), args.Error(1)
}

func (m *MockLedger) Refund(ctx context.Context, id ledger.AccountID, kind ledger.Kind, quantity int64, ref *uuid.UUID) (*ledger.RefundResult, error) {
	args := m.Called(ctx, id, kind, quantity, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.RefundResult), args.Error(1)
}

type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) Analyze(ctx context.Context, copy AdCopy) (*Result, error) {
	args := m.Called(ctx, copy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Result), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendLowCreditWarning(ctx context.Context, to string, balance int64) error {
	args := m.Called(ctx, to, balance)
	return args.Error(0)
}

func (m *MockNotifier) SendRefundFailureAlert(ctx context.Context, accountID string, kind string, amount int64, cause string) error {
	args := m.Called(ctx, accountID, kind, amount, cause)
	return args.Error(0)
}

func fullAnalysisRequest() RunRequest {
	return RunRequest{
		Kind:     "full_analysis",
		Headline: "Get Proven Results Now",
		Body:     "Save time with our platform.",
		CTA:      "Start your free trial",
		Platform: "facebook",
	}
}

func TestRun_SuccessfulAnalysis(t *testing.T) {
	id := ledger.NewAccountID()
	repo := new(MockRepository)
	credits := new(MockLedger)
	analyzer := new(MockAnalyzer)

	credits.On("Deduct", mock.Anything, id, ledger.KindFullAnalysis, int64(1), mock.AnythingOfType("*uuid.UUID")).
		Return(&ledger.DeductResult{Amount: 2, NewBalance: 598, TotalConsumed: 2}, nil)
	analyzer.On("Analyze", mock.Anything, mock.Anything).
		Return(&Result{Score: 82, Verdict: "Strong copy"}, nil)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(a *Analysis) bool {
		return a.Status == StatusCompleted && a.CreditsSpent == 2 && a.Kind == ledger.KindFullAnalysis
	})).Return(nil)

	svc := NewService(repo, credits, analyzer, nil, 5)
	resp, err := svc.Run(context.Background(), id, "user@example.com", fullAnalysisRequest())

	require.NoError(t, err)
	assert.EqualValues(t, 598, resp.Balance)
	assert.Equal(t, int64(2), resp.CreditsUsed)
	assert.Equal(t, 82.0, resp.Result.Score)

	repo.AssertExpectations(t)
	credits.AssertExpectations(t)
	credits.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_UnknownKind(t *testing.T) {
	svc := NewService(new(MockRepository), new(MockLedger), new(MockAnalyzer), nil, 5)

	req := fullAnalysisRequest()
	req.Kind = "palm_reading"
	_, err := svc.Run(context.Background(), ledger.NewAccountID(), "", req)

	assert.ErrorIs(t, err, ledger.ErrUnknownKind)
}

func TestRun_InsufficientCredits(t *testing.T) {
	id := ledger.NewAccountID()
	repo := new(MockRepository)
	credits := new(MockLedger)
	analyzer := new(MockAnalyzer)

	credits.On("Deduct", mock.Anything, id, ledger.KindFullAnalysis, int64(1), mock.Anything).
		Return(nil, &ledger.InsufficientCreditsError{Required: 2, Available: 1})

	svc := NewService(repo, credits, analyzer, nil, 5)
	_, err := svc.Run(context.Background(), id, "", fullAnalysisRequest())

	ice, ok := ledger.IsInsufficientCredits(err)
	require.True(t, ok)
	assert.Equal(t, int64(2), ice.Required)
	assert.Equal(t, int64(1), ice.Available)

	// Nothing was charged, so nothing runs and nothing is refunded.
	analyzer.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
	credits.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRun_AnalyzerFailureRefundsExactlyOnce(t *testing.T) {
	id := ledger.NewAccountID()
	repo := new(MockRepository)
	credits := new(MockLedger)
	analyzer := new(MockAnalyzer)

	var deductRef, refundRef *uuid.UUID
	credits.On("Deduct", mock.Anything, id, ledger.KindFullAnalysis, int64(1), mock.Anything).
		Run(func(args mock.Arguments) { deductRef = args.Get(4).(*uuid.UUID) }).
		Return(&ledger.DeductResult{Amount: 2, NewBalance: 598}, nil)
	analyzer.On("Analyze", mock.Anything, mock.Anything).
		Return(nil, ErrAnalyzerUnavailable)
	credits.On("Refund", mock.Anything, id, ledger.KindFullAnalysis, int64(1), mock.Anything).
		Run(func(args mock.Arguments) { refundRef = args.Get(4).(*uuid.UUID) }).
		Return(&ledger.RefundResult{Amount: 2, NewBalance: 600}, nil).
		Once()
	repo.On("Create", mock.Anything, mock.MatchedBy(func(a *Analysis) bool {
		return a.Status == StatusFailed && a.CreditsSpent == 0
	})).Return(nil)

	svc := NewService(repo, credits, analyzer, nil, 5)
	_, err := svc.Run(context.Background(), id, "", fullAnalysisRequest())

	require.ErrorIs(t, err, ErrAnalyzerUnavailable)
	credits.AssertNumberOfCalls(t, "Refund", 1)
	// The refund references the same run as the deduct it compensates.
	require.NotNil(t, deductRef)
	assert.Equal(t, *deductRef, *refundRef)
	repo.AssertExpectations(t)
}

func TestRun_RefundFailureAlertsOperators(t *testing.T) {
	id := ledger.NewAccountID()
	repo := new(MockRepository)
	credits := new(MockLedger)
	analyzer := new(MockAnalyzer)
	notifier := new(MockNotifier)

	credits.On("Deduct", mock.Anything, id, ledger.KindFullAnalysis, int64(1), mock.Anything).
		Return(&ledger.DeductResult{Amount: 2, NewBalance: 598}, nil)
	analyzer.On("Analyze", mock.Anything, mock.Anything).
		Return(nil, errors.New("provider exploded"))
	credits.On("Refund", mock.Anything, id, ledger.KindFullAnalysis, int64(1), mock.Anything).
		Return(nil, ledger.ErrLockTimeout)
	notifier.On("SendRefundFailureAlert", mock.Anything, id.String(), "full_analysis", int64(2), mock.Anything).
		Return(nil)
	// The failed row keeps the charge: the refund never landed.
	repo.On("Create", mock.Anything, mock.MatchedBy(func(a *Analysis) bool {
		return a.Status == StatusFailed && a.CreditsSpent == 2
	})).Return(nil)

	svc := NewService(repo, credits, analyzer, notifier, 5)
	_, err := svc.Run(context.Background(), id, "", fullAnalysisRequest())

	require.Error(t, err)
	notifier.AssertExpectations(t)
	repo.AssertExpectations(t)
}

func TestRun_LowBalanceWarning(t *testing.T) {
	id := ledger.NewAccountID()
	repo := new(MockRepository)
	credits := new(MockLedger)
	analyzer := new(MockAnalyzer)
	notifier := new(MockNotifier)

	credits.On("Deduct", mock.Anything, id, ledger.KindBasicAnalysis, int64(1), mock.Anything).
		Return(&ledger.DeductResult{Amount: 1, NewBalance: 3}, nil)
	analyzer.On("Analyze", mock.Anything, mock.Anything).
		Return(&Result{Score: 70, Verdict: "Decent"}, nil)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	notifier.On("SendLowCreditWarning", mock.Anything, "user@example.com", int64(3)).Return(nil)

	req := fullAnalysisRequest()
	req.Kind = "basic_analysis"

	svc := NewService(repo, credits, analyzer, notifier, 5)
	_, err := svc.Run(context.Background(), id, "user@example.com", req)

	require.NoError(t, err)
	notifier.AssertExpectations(t)
}

func TestRun_UnlimitedSkipsLowBalanceWarning(t *testing.T) {
	id := ledger.NewAccountID()
	repo := new(MockRepository)
	credits := new(MockLedger)
	analyzer := new(MockAnalyzer)
	notifier := new(MockNotifier)

	credits.On("Deduct", mock.Anything, id, ledger.KindFullAnalysis, int64(1), mock.Anything).
		Return(&ledger.DeductResult{Amount: 0, NewBalance: 0, Unlimited: true}, nil)
	analyzer.On("Analyze", mock.Anything, mock.Anything).
		Return(&Result{Score: 90, Verdict: "Strong"}, nil)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(a *Analysis) bool {
		return a.CreditsSpent == 0
	})).Return(nil)

	svc := NewService(repo, credits, analyzer, notifier, 5)
	resp, err := svc.Run(context.Background(), id, "vip@example.com", fullAnalysisRequest())

	require.NoError(t, err)
	assert.Equal(t, "unlimited", resp.Balance)
	notifier.AssertNotCalled(t, "SendLowCreditWarning", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_PersistFailureDoesNotFailRequest(t *testing.T) {
	id := ledger.NewAccountID()
	repo := new(MockRepository)
	credits := new(MockLedger)
	analyzer := new(MockAnalyzer)

	credits.On("Deduct", mock.Anything, id, ledger.KindFullAnalysis, int64(1), mock.Anything).
		Return(&ledger.DeductResult{Amount: 2, NewBalance: 598}, nil)
	analyzer.On("Analyze", mock.Anything, mock.Anything).
		Return(&Result{Score: 75, Verdict: "Decent"}, nil)
	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("insert failed"))

	svc := NewService(repo, credits, analyzer, nil, 5)
	resp, err := svc.Run(context.Background(), id, "", fullAnalysisRequest())

	require.NoError(t, err)
	assert.NotNil(t, resp.Result)
}

func TestList(t *testing.T) {
	id := ledger.NewAccountID()
	repo := new(MockRepository)
	repo.On("ListByAccount", mock.Anything, id, 50, 0).Return([]Analysis{
		{ID: uuid.New(), AccountID: id, Kind: ledger.KindFullAnalysis, Status: StatusCompleted},
	}, nil)

	svc := NewService(repo, new(MockLedger), new(MockAnalyzer), nil, 5)
	list, err := svc.List(context.Background(), id, 50, 0)

	require.NoError(t, err)
	assert.Len(t, list, 1)
}
