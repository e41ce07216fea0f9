package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockService struct{ mock.Mock }

func (m *MockService) GetBalance(ctx context.Context, id AccountID) (*BalanceView, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BalanceView), args.Error(1)
}

func (m *MockService) HasSufficient(ctx context.Context, id AccountID, kind Kind, quantity int64) (bool, int64, error) {
	args := m.Called(ctx, id, kind, quantity)
	return args.Bool(0), args.Get(1).(int64), args.Error(2)
}

func (m *MockService) Deduct(ctx context.Context, id AccountID, kind Kind, quantity int64, ref *uuid.UUID) (*DeductResult, error) {
	args := m.Called(ctx, id, kind, quantity, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*DeductResult), args.Error(1)
}

func (m *MockService) Refund(ctx context.Context, id AccountID, kind Kind, quantity int64, ref *uuid.UUID) (*RefundResult, error) {
	args := m.Called(ctx, id, kind, quantity, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RefundResult), args.Error(1)
}

func (m *MockService) Provision(ctx context.Context, id AccountID, tier Tier) (*CreditRecord, error) {
	args := m.Called(ctx, id, tier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CreditRecord), args.Error(1)
}

func (m *MockService) ResetMonthly(ctx context.Context, id AccountID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockService) ResetDue(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockService) ManualReset(ctx context.Context, id AccountID) (*BalanceView, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BalanceView), args.Error(1)
}

func (m *MockService) GrantBonus(ctx context.Context, id AccountID, amount int64, note string) (*BalanceView, error) {
	args := m.Called(ctx, id, amount, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BalanceView), args.Error(1)
}

func (m *MockService) Transactions(ctx context.Context, id AccountID, limit, offset int) ([]Transaction, error) {
	args := m.Called(ctx, id, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Transaction), args.Error(1)
}

func (m *MockService) Reconcile(ctx context.Context, id AccountID) (*ReconcileReport, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ReconcileReport), args.Error(1)
}

func setupLedgerRouter(svc Service, id AccountID, authed bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(svc)

	r := gin.New()
	if authed {
		r.Use(func(c *gin.Context) { c.Set("account_id", id.UUID) })
	}
	r.GET("/credits/balance", h.GetBalance)
	r.GET("/credits/check", h.CheckSufficient)
	r.GET("/credits/transactions", h.ListTransactions)
	r.POST("/admin/accounts/:accountID/credits/reset", h.ManualReset)
	r.POST("/admin/accounts/:accountID/credits/bonus", h.GrantBonus)
	r.GET("/admin/accounts/:accountID/credits/reconcile", h.Reconcile)
	r.POST("/internal/cron/monthly-reset", h.CronMonthlyReset)
	return r
}

func TestHandler_GetBalanceMetered(t *testing.T) {
	id := NewAccountID()
	svc := new(MockService)
	svc.On("GetBalance", mock.Anything, id).Return(&BalanceView{
		Balance:          598,
		MonthlyAllowance: 600,
		TotalConsumed:    2,
		Tier:             TierAgencyStandard,
		LastResetAt:      time.Now(),
	}, nil)

	router := setupLedgerRouter(svc, id, true)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/credits/balance", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 598, body["balance"])
	assert.Equal(t, "agency_standard", body["tier"])
	assert.Equal(t, false, body["is_unlimited"])
}

func TestHandler_GetBalanceUnlimited(t *testing.T) {
	id := NewAccountID()
	svc := new(MockService)
	svc.On("GetBalance", mock.Anything, id).Return(&BalanceView{
		Balance:     0,
		Tier:        TierEnterprise,
		IsUnlimited: true,
		LastResetAt: time.Now(),
	}, nil)

	router := setupLedgerRouter(svc, id, true)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/credits/balance", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unlimited", body["balance"])
	assert.Equal(t, true, body["is_unlimited"])
}

func TestHandler_GetBalanceUnauthenticated(t *testing.T) {
	svc := new(MockService)
	router := setupLedgerRouter(svc, NewAccountID(), false)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/credits/balance", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	svc.AssertNotCalled(t, "GetBalance", mock.Anything, mock.Anything)
}

func TestHandler_GetBalanceNotFound(t *testing.T) {
	id := NewAccountID()
	svc := new(MockService)
	svc.On("GetBalance", mock.Anything, id).Return(nil, ErrAccountNotFound)

	router := setupLedgerRouter(svc, id, true)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/credits/balance", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_GetBalanceLockTimeout(t *testing.T) {
	id := NewAccountID()
	svc := new(MockService)
	svc.On("GetBalance", mock.Anything, id).Return(nil, ErrLockTimeout)

	router := setupLedgerRouter(svc, id, true)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/credits/balance", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandler_CheckSufficient(t *testing.T) {
	id := NewAccountID()
	svc := new(MockService)
	svc.On("HasSufficient", mock.Anything, id, KindFullAnalysis, int64(1)).
		Return(true, int64(2), nil)

	router := setupLedgerRouter(svc, id, true)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/credits/check?kind=full_analysis", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["sufficient"])
	assert.EqualValues(t, 2, body["required"])
}

func TestHandler_CheckSufficientBadKind(t *testing.T) {
	id := NewAccountID()
	svc := new(MockService)

	router := setupLedgerRouter(svc, id, true)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/credits/check?kind=video_analysis", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "HasSufficient", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_CheckSufficientBadQuantity(t *testing.T) {
	id := NewAccountID()
	svc := new(MockService)

	router := setupLedgerRouter(svc, id, true)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/credits/check?kind=full_analysis&quantity=-1", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_ListTransactions(t *testing.T) {
	id := NewAccountID()
	svc := new(MockService)
	svc.On("Transactions", mock.Anything, id, 50, 0).Return([]Transaction{
		{ID: uuid.New(), AccountID: id, Operation: OpConsume, Amount: -2, BalanceAfter: 598},
	}, nil)

	router := setupLedgerRouter(svc, id, true)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/credits/transactions", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "CONSUME", body[0]["operation"])
	assert.EqualValues(t, -2, body[0]["amount"])
}

func TestHandler_ManualReset(t *testing.T) {
	id := NewAccountID()
	svc := new(MockService)
	svc.On("ManualReset", mock.Anything, id).Return(&BalanceView{
		Balance:          600,
		MonthlyAllowance: 600,
		Tier:             TierAgencyStandard,
	}, nil)

	router := setupLedgerRouter(svc, id, true)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/admin/accounts/"+id.String()+"/credits/reset", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 600, body["balance"])
}

func TestHandler_ManualResetBadAccountID(t *testing.T) {
	svc := new(MockService)
	router := setupLedgerRouter(svc, NewAccountID(), true)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/admin/accounts/not-a-uuid/credits/reset", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "ManualReset", mock.Anything, mock.Anything)
}

func TestHandler_GrantBonus(t *testing.T) {
	id := NewAccountID()
	svc := new(MockService)
	svc.On("GrantBonus", mock.Anything, id, int64(50), "beta reward").Return(&BalanceView{
		Balance:      75,
		BonusBalance: 50,
		Tier:         TierFree,
	}, nil)

	router := setupLedgerRouter(svc, id, true)

	payload := bytes.NewBufferString(`{"amount": 50, "note": "beta reward"}`)
	req := httptest.NewRequest("POST", "/admin/accounts/"+id.String()+"/credits/bonus", payload)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestHandler_GrantBonusRejectsNonPositive(t *testing.T) {
	id := NewAccountID()
	svc := new(MockService)
	router := setupLedgerRouter(svc, id, true)

	payload := bytes.NewBufferString(`{"amount": 0}`)
	req := httptest.NewRequest("POST", "/admin/accounts/"+id.String()+"/credits/bonus", payload)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "GrantBonus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_Reconcile(t *testing.T) {
	id := NewAccountID()
	svc := new(MockService)
	svc.On("Reconcile", mock.Anything, id).Return(&ReconcileReport{
		AccountID:  id,
		Balance:    598,
		LogSum:     598,
		Consistent: true,
	}, nil)

	router := setupLedgerRouter(svc, id, true)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/admin/accounts/"+id.String()+"/credits/reconcile", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["consistent"])
}

func TestHandler_CronMonthlyReset(t *testing.T) {
	svc := new(MockService)
	svc.On("ResetDue", mock.Anything).Return(3, nil)

	router := setupLedgerRouter(svc, NewAccountID(), true)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/internal/cron/monthly-reset", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 3, body["accounts_reset"])
}
