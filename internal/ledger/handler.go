package ledger

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"adcopysurge/internal/api"
	"adcopysurge/internal/auth"
	"adcopysurge/internal/logger"
)

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

type GrantBonusRequest struct {
	Amount int64  `json:"amount" binding:"required,gt=0"`
	Note   string `json:"note"`
}

// GetBalance godoc
// @Summary      Get credit balance
// @Description  Returns the caller's credit balance. Unlimited tiers report balance as the string "unlimited".
// @Tags         credits
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  BalanceView
// @Failure      401  {object}  api.ErrorResponse
// @Failure      404  {object}  api.ErrorResponse
// @Router       /credits/balance [get]
func (h *Handler) GetBalance(c *gin.Context) {
	id, ok := accountFromContext(c)
	if !ok {
		return
	}

	view, err := h.svc.GetBalance(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// CheckSufficient godoc
// @Summary      Check whether the balance covers an operation
// @Description  Advisory pre-check used by clients to disable actions up front. The deduct itself re-checks atomically.
// @Tags         credits
// @Produce      json
// @Security     BearerAuth
// @Param        kind      query  string  true   "Operation kind"  Enums(basic_analysis, full_analysis, ad_generation)
// @Param        quantity  query  int     false  "Units, default 1"
// @Success      200  {object}  gin.H
// @Failure      400  {object}  api.ErrorResponse
// @Failure      401  {object}  api.ErrorResponse
// @Router       /credits/check [get]
func (h *Handler) CheckSufficient(c *gin.Context) {
	id, ok := accountFromContext(c)
	if !ok {
		return
	}

	kind, err := ParseKind(c.Query("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown operation kind"})
		return
	}

	quantity, err := strconv.ParseInt(c.DefaultQuery("quantity", "1"), 10, 64)
	if err != nil || quantity < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be a positive integer"})
		return
	}

	sufficient, required, err := h.svc.HasSufficient(c.Request.Context(), id, kind, quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sufficient": sufficient,
		"required":   required,
	})
}

// ListTransactions godoc
// @Summary      List credit transactions
// @Description  Returns the caller's ledger entries, newest first.
// @Tags         credits
// @Produce      json
// @Security     BearerAuth
// @Param        limit   query  int  false  "Page size, default 50, max 200"
// @Param        offset  query  int  false  "Offset, default 0"
// @Success      200  {array}   Transaction
// @Failure      401  {object}  api.ErrorResponse
// @Router       /credits/transactions [get]
func (h *Handler) ListTransactions(c *gin.Context) {
	id, ok := accountFromContext(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	txs, err := h.svc.Transactions(c.Request.Context(), id, limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, txs)
}

// ManualReset godoc
// @Summary      Reset an account's credits (admin)
// @Description  Restores the full allowance plus bonus immediately, ignoring the monthly schedule.
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        accountID  path  string  true  "Account ID"
// @Success      200  {object}  BalanceView
// @Failure      400  {object}  api.ErrorResponse
// @Failure      404  {object}  api.ErrorResponse
// @Router       /admin/accounts/{accountID}/credits/reset [post]
func (h *Handler) ManualReset(c *gin.Context) {
	id, err := ParseAccountID(c.Param("accountID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return
	}

	view, err := h.svc.ManualReset(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// GrantBonus godoc
// @Summary      Grant bonus credits (admin)
// @Description  Adds non-expiring bonus credits to an account.
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        accountID  path  string             true  "Account ID"
// @Param        request    body  GrantBonusRequest  true  "Bonus grant"
// @Success      200  {object}  BalanceView
// @Failure      400  {object}  api.ErrorResponse
// @Failure      404  {object}  api.ErrorResponse
// @Router       /admin/accounts/{accountID}/credits/bonus [post]
func (h *Handler) GrantBonus(c *gin.Context) {
	id, err := ParseAccountID(c.Param("accountID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return
	}

	var req GrantBonusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
		return
	}

	view, err := h.svc.GrantBonus(c.Request.Context(), id, req.Amount, req.Note)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// Reconcile godoc
// @Summary      Reconcile an account's ledger (admin)
// @Description  Compares the materialized balance against the sum of the transaction log.
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        accountID  path  string  true  "Account ID"
// @Success      200  {object}  ReconcileReport
// @Failure      400  {object}  api.ErrorResponse
// @Failure      404  {object}  api.ErrorResponse
// @Router       /admin/accounts/{accountID}/credits/reconcile [get]
func (h *Handler) Reconcile(c *gin.Context) {
	id, err := ParseAccountID(c.Param("accountID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return
	}

	report, err := h.svc.Reconcile(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// CronMonthlyReset godoc
// @Summary      Apply overdue monthly resets
// @Description  Sweeps accounts whose last reset predates the current UTC month. Idempotent within a month.
// @Tags         internal
// @Produce      json
// @Success      200  {object}  gin.H
// @Failure      500  {object}  api.ErrorResponse
// @Router       /internal/cron/monthly-reset [post]
func (h *Handler) CronMonthlyReset(c *gin.Context) {
	applied, err := h.svc.ResetDue(c.Request.Context())
	if err != nil {
		logger.WithError(err).Error("monthly reset sweep failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset sweep failed"})
		return
	}

	logger.Info("monthly reset sweep finished", "accounts_reset", applied)
	c.JSON(http.StatusOK, gin.H{"accounts_reset": applied})
}

func accountFromContext(c *gin.Context) (AccountID, bool) {
	raw, ok := auth.GetAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return AccountID{}, false
	}
	return AccountID{UUID: raw}, true
}

func (h *Handler) respondError(c *gin.Context, err error) {
	if ice, ok := IsInsufficientCredits(err); ok {
		c.JSON(http.StatusPaymentRequired, api.InsufficientCreditsResponse{
			Error:     "insufficient credits",
			Required:  ice.Required,
			Available: ice.Available,
		})
		return
	}

	switch {
	case errors.Is(err, ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "credit account not found"})
	case errors.Is(err, ErrUnknownKind),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidTier):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrLockTimeout):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "credit system busy, please retry"})
	default:
		logger.WithError(err).Error("ledger request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
